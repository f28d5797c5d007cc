package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/erazemk/sweetshop/internal/inventory"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("error encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// writeError maps an engine error to its HTTP status. Anything outside the
// taxonomy is logged and answered with fallback, never with its text.
func writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var (
		ve *inventory.ValidationError
		se *inventory.InsufficientStockError
	)
	switch {
	case errors.As(err, &ve):
		jsonError(w, http.StatusBadRequest, ve.Message)
	case errors.As(err, &se):
		jsonError(w, http.StatusBadRequest, se.Error())
	case errors.Is(err, inventory.ErrUnauthorized):
		jsonError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, inventory.ErrForbidden):
		jsonError(w, http.StatusForbidden, "Forbidden: Admin access required")
	case errors.Is(err, inventory.ErrNotFound):
		jsonError(w, http.StatusNotFound, "Sweet not found")
	default:
		slog.Error(fallback, "error", err, "method", r.Method, "path", r.URL.Path, "request_id", GetRequestID(r.Context()))
		jsonError(w, http.StatusInternalServerError, fallback)
	}
}

// pathID parses the {id} route parameter.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		jsonError(w, http.StatusBadRequest, "Invalid sweet id")
		return 0, false
	}
	return id, true
}
