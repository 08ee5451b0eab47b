package cart

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/storefront-api/internal/common"
	"github.com/noah-isme/storefront-api/internal/db"
	"github.com/noah-isme/storefront-api/internal/obs"
)

// Handler wires cart services to HTTP.
type Handler struct {
	Svc *Service
}

// Get returns cart contents and a pricing estimate.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	userID, err := common.CurrentUserID(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := h.Svc.Get(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// AddItem adds a product to the active cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	userID, err := common.CurrentUserID(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var in AddItemInput
	if err := common.DecodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	item, err := h.Svc.AddItem(r.Context(), userID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": itemView(item)})
}

// UpdateItem sets the quantity of a cart line.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	userID, err := common.CurrentUserID(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	itemID, err := common.ParseUUID("id", chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var in UpdateItemInput
	if err := common.DecodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	item, err := h.Svc.UpdateItem(r.Context(), userID, itemID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": itemView(item)})
}

// RemoveItem deletes a cart line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	userID, err := common.CurrentUserID(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	itemID, err := common.ParseUUID("id", chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Svc.RemoveItem(r.Context(), userID, itemID); err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]string{"message": "item removed from cart"}})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrProductUnavailable) {
		common.JSONError(w, http.StatusUnprocessableEntity, "PRODUCT_UNAVAILABLE", err.Error(), nil)
		return
	}
	if common.WriteAppError(w, err) {
		return
	}
	obs.Logger(r.Context()).Error().Err(err).Msg("cart_request_failed")
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
}

type itemResponse struct {
	ID        string  `json:"id"`
	CartID    string  `json:"cart_id"`
	ProductID string  `json:"product_id"`
	VariantID *string `json:"variant_id,omitempty"`
	Quantity  int32   `json:"quantity"`
}

func itemView(item db.CartItem) itemResponse {
	out := itemResponse{
		ID:        item.ID.String(),
		CartID:    item.CartID.String(),
		ProductID: item.ProductID.String(),
		Quantity:  item.Quantity,
	}
	if item.VariantID.Valid {
		v := item.VariantID.UUID.String()
		out.VariantID = &v
	}
	return out
}
