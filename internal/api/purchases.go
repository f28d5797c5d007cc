package api

import (
	"net/http"

	"github.com/erazemk/sweetshop/internal/inventory"
	"github.com/erazemk/sweetshop/internal/model"
)

// PurchasesHandler handles purchase endpoints.
type PurchasesHandler struct {
	Engine *inventory.Engine
}

type purchaseResponse struct {
	Message  string          `json:"message"`
	Sweet    *model.Item     `json:"sweet"`
	Purchase *model.Purchase `json:"purchase"`
}

// Purchase handles POST /api/sweets/{id}/purchase.
func (h *PurchasesHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req inventory.QuantityInput
	if err := decodeJSON(w, r, &req); err != nil {
		req = inventory.QuantityInput{}
	}

	sweet, purchase, err := h.Engine.Purchase(r.Context(), actorFrom(r.Context()), id, req)
	if err != nil {
		writeError(w, r, err, "Failed to process purchase")
		return
	}
	jsonResponse(w, http.StatusOK, purchaseResponse{
		Message:  "Purchase successful",
		Sweet:    sweet,
		Purchase: purchase,
	})
}

// ListMine handles GET /api/purchases.
func (h *PurchasesHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	purchases, err := h.Engine.PurchasesForActor(r.Context(), actorFrom(r.Context()))
	if err != nil {
		writeError(w, r, err, "Failed to fetch purchases")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"purchases": purchases})
}

// ListForSweet handles GET /api/sweets/{id}/purchases.
func (h *PurchasesHandler) ListForSweet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	purchases, err := h.Engine.PurchasesForItem(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		writeError(w, r, err, "Failed to fetch purchases")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"purchases": purchases})
}
