package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/sweetshop/internal/auth"
	"github.com/erazemk/sweetshop/internal/model"
	"github.com/erazemk/sweetshop/internal/store"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// AuthHandler handles account endpoints.
type AuthHandler struct {
	DB        *sqlx.DB
	JWTSecret string
	TokenTTL  time.Duration
	Revoker   auth.Revoker
}

type signupRequest struct {
	Email    string `json:"email"    validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=128"`
	Name     string `json:"name"     validate:"max=100"`
}

type signinRequest struct {
	Email    string `json:"email"    validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// Signup handles POST /api/auth/signup.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := validate.Struct(req); err != nil {
		jsonError(w, http.StatusBadRequest, "A valid email and password are required")
		return
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("hashing password", "error", err)
		jsonError(w, http.StatusInternalServerError, "Failed to create account")
		return
	}

	user, err := store.CreateUser(r.Context(), h.DB, req.Email, strings.TrimSpace(req.Name), string(hash))
	if errors.Is(err, store.ErrDuplicate) {
		jsonError(w, http.StatusConflict, "An account with this email already exists")
		return
	}
	if err != nil {
		slog.Error("creating user", "error", err)
		jsonError(w, http.StatusInternalServerError, "Failed to create account")
		return
	}

	token, err := auth.GenerateToken(h.JWTSecret, h.TokenTTL, user.ID, user.Email)
	if err != nil {
		slog.Error("generating token", "error", err)
		jsonError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	slog.Info("user signed up", "user_id", user.ID)
	jsonResponse(w, http.StatusCreated, tokenResponse{Token: token, User: user})
}

// Signin handles POST /api/auth/signin.
func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := validate.Struct(req); err != nil {
		jsonError(w, http.StatusBadRequest, "Email and password required")
		return
	}

	user, err := store.GetUserByEmail(r.Context(), h.DB, req.Email)
	if err != nil {
		slog.Error("looking up user", "error", err)
		jsonError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	if user == nil {
		jsonError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		slog.Warn("sign-in failed", "email", req.Email, "remote", r.RemoteAddr)
		jsonError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := auth.GenerateToken(h.JWTSecret, h.TokenTTL, user.ID, user.Email)
	if err != nil {
		slog.Error("generating token", "error", err)
		jsonError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	slog.Info("user signed in", "user_id", user.ID)
	jsonResponse(w, http.StatusOK, tokenResponse{Token: token, User: user})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := h.Revoker.Revoke(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
		slog.Error("revoking token", "error", err)
		jsonError(w, http.StatusInternalServerError, "Failed to log out")
		return
	}

	slog.Info("user logged out", "user_id", claims.UserID)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "Logged out"})
}
