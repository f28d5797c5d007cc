package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/erazemk/sweetshop/internal/imaging"
	"github.com/erazemk/sweetshop/internal/inventory"
	"github.com/erazemk/sweetshop/internal/model"
)

// SweetsHandler handles catalog endpoints.
type SweetsHandler struct {
	Engine *inventory.Engine
	Images imaging.Options
}

type sweetResponse struct {
	Message string      `json:"message,omitempty"`
	Sweet   *model.Item `json:"sweet"`
}

// List handles GET /api/sweets.
func (h *SweetsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.ItemFilter{
		Search:   q.Get("search"),
		Category: q.Get("category"),
	}

	var err error
	if filter.MinPrice, err = priceParam(q.Get("minPrice")); err != nil {
		jsonError(w, http.StatusBadRequest, "Invalid minPrice")
		return
	}
	if filter.MaxPrice, err = priceParam(q.Get("maxPrice")); err != nil {
		jsonError(w, http.StatusBadRequest, "Invalid maxPrice")
		return
	}

	sweets, err := h.Engine.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err, "Failed to fetch sweets")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"sweets": sweets})
}

func priceParam(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parsing price %q: %w", s, err)
	}
	return &d, nil
}

// Get handles GET /api/sweets/{id}.
func (h *SweetsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	sweet, err := h.Engine.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "Failed to fetch sweet")
		return
	}
	jsonResponse(w, http.StatusOK, sweetResponse{Sweet: sweet})
}

// Create handles POST /api/sweets.
func (h *SweetsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req inventory.CreateItemInput
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sweet, err := h.Engine.Create(r.Context(), actorFrom(r.Context()), req)
	if err != nil {
		writeError(w, r, err, "Failed to create sweet")
		return
	}
	jsonResponse(w, http.StatusCreated, sweetResponse{Sweet: sweet})
}

// Update handles PUT /api/sweets/{id}.
func (h *SweetsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req inventory.UpdateItemInput
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sweet, err := h.Engine.Update(r.Context(), actorFrom(r.Context()), id, req)
	if err != nil {
		writeError(w, r, err, "Failed to update sweet")
		return
	}
	jsonResponse(w, http.StatusOK, sweetResponse{Sweet: sweet})
}

// Delete handles DELETE /api/sweets/{id}.
func (h *SweetsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	sweet, err := h.Engine.Delete(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		writeError(w, r, err, "Failed to delete sweet")
		return
	}
	jsonResponse(w, http.StatusOK, sweetResponse{Message: "Sweet deleted successfully", Sweet: sweet})
}

// Restock handles POST /api/sweets/{id}/restock.
func (h *SweetsHandler) Restock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	// An unreadable body is left as quantity 0 so the engine reports it
	// after the admin check.
	var req inventory.QuantityInput
	if err := decodeJSON(w, r, &req); err != nil {
		req = inventory.QuantityInput{}
	}

	sweet, err := h.Engine.Restock(r.Context(), actorFrom(r.Context()), id, req)
	if err != nil {
		writeError(w, r, err, "Failed to restock sweet")
		return
	}
	jsonResponse(w, http.StatusOK, sweetResponse{Message: "Restock successful", Sweet: sweet})
}

// UploadImage handles PUT /api/sweets/{id}/image.
func (h *SweetsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	limit := h.Images.MaxBytes
	if limit <= 0 {
		limit = imaging.MaxBytes
	}
	// Leave room for the multipart framing around the file.
	r.Body = http.MaxBytesReader(w, r.Body, limit+64<<10)

	if err := r.ParseMultipartForm(limit); err != nil {
		jsonError(w, http.StatusBadRequest, "File too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "Image file required")
		return
	}
	defer file.Close()

	img, err := imaging.Process(file, h.Images)
	if err != nil {
		switch {
		case errors.Is(err, imaging.ErrTooLarge):
			jsonError(w, http.StatusBadRequest, "Image too large")
		case errors.Is(err, imaging.ErrUnsupported):
			jsonError(w, http.StatusBadRequest, "Image must be JPEG, PNG, or WebP")
		default:
			slog.Error("processing sweet image", "error", err, "sweet_id", id)
			jsonError(w, http.StatusInternalServerError, "Failed to process image")
		}
		return
	}

	imageURL := fmt.Sprintf("/api/sweets/%d/image", id)
	sweet, err := h.Engine.SetImage(r.Context(), actorFrom(r.Context()), id, *img, imageURL)
	if err != nil {
		writeError(w, r, err, "Failed to save image")
		return
	}
	jsonResponse(w, http.StatusOK, sweetResponse{Sweet: sweet})
}

// GetImage handles GET /api/sweets/{id}/image.
func (h *SweetsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	img, err := h.Engine.Image(r.Context(), id)
	if errors.Is(err, inventory.ErrNotFound) {
		jsonError(w, http.StatusNotFound, "No image")
		return
	}
	if err != nil {
		writeError(w, r, err, "Failed to get image")
		return
	}

	w.Header().Set("Content-Type", img.MIME)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(img.Data)
}
