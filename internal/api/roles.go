package api

import (
	"net/http"

	"github.com/erazemk/sweetshop/internal/inventory"
)

// RolesHandler handles role lookup and self-promotion.
type RolesHandler struct {
	Gate *inventory.Gate
}

type roleResponse struct {
	UserID  int64  `json:"userId"`
	IsAdmin bool   `json:"isAdmin"`
	Email   string `json:"email"`
}

// Get handles GET /api/user/role.
func (h *RolesHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())

	role, err := h.Gate.Role(r.Context(), actor)
	if err != nil {
		writeError(w, r, err, "Failed to fetch user role")
		return
	}
	jsonResponse(w, http.StatusOK, roleResponse{
		UserID:  actor.UserID,
		IsAdmin: role.IsAdmin,
		Email:   actor.Email,
	})
}

// Promote handles POST /api/admin/promote.
func (h *RolesHandler) Promote(w http.ResponseWriter, r *http.Request) {
	result, err := h.Gate.Promote(r.Context(), actorFrom(r.Context()))
	if err != nil {
		writeError(w, r, err, "Failed to promote user")
		return
	}

	msg := "Successfully promoted to admin"
	if result == inventory.AlreadyAdmin {
		msg = "You are already an admin"
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": msg})
}
