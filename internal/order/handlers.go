package order

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/storefront-api/internal/common"
	"github.com/noah-isme/storefront-api/internal/obs"
	"github.com/noah-isme/storefront-api/internal/voucher"
)

// Handler exposes order endpoints.
type Handler struct {
	Svc *Service
}

// List handles GET /api/v1/orders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	userID, err := common.CurrentUserID(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, perPage := common.ParsePagination(r, 20, 100)
	orders, total, err := h.Svc.List(r.Context(), userID, page, perPage)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       orders,
		"pagination": common.NewPagination(page, perPage, total),
	})
}

// Create handles POST /api/v1/orders.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	userID, err := common.CurrentUserID(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var in CreateInput
	if r.ContentLength != 0 {
		if err := common.DecodeJSON(r, &in); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	o, err := h.Svc.Create(r.Context(), userID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": o})
}

// Get handles GET /api/v1/orders/{id}. Administrators may read any order.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	userID, err := common.CurrentUserID(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	orderID, err := common.ParseUUID("id", chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	o, err := h.Svc.Get(r.Context(), userID, orderID, common.Role(r.Context()) == common.RoleAdmin)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// UpdateStatus handles PATCH /api/v1/orders/{id}/status for administrators.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	actorID, err := common.CurrentUserID(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	orderID, err := common.ParseUUID("id", chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var in UpdateStatusInput
	if err := common.DecodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	o, err := h.Svc.UpdateStatus(r.Context(), actorID, orderID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if _, _, ok := voucher.ErrorStatus(err); ok {
		voucher.WriteError(w, r, err)
		return
	}
	if common.WriteAppError(w, err) {
		return
	}
	obs.Logger(r.Context()).Error().Err(err).Msg("order_request_failed")
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
}
