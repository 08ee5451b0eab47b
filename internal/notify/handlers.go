package notify

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/storefront-api/internal/common"
	"github.com/noah-isme/storefront-api/internal/obs"
)

// Handler exposes the inbox endpoints.
type Handler struct {
	Svc *Service
}

// List handles GET /api/v1/users/notifications.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "notification service not configured", nil)
		return
	}
	userID, err := common.CurrentUserID(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, perPage := common.ParsePagination(r, 20, 100)
	inbox, err := h.Svc.List(r.Context(), userID, page, perPage)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       inbox.Items,
		"unread":     inbox.Unread,
		"pagination": common.NewPagination(page, perPage, inbox.Total),
	})
}

// MarkRead handles PUT /api/v1/users/notifications/{id}/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "notification service not configured", nil)
		return
	}
	userID, err := common.CurrentUserID(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := common.ParseUUID("id", chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	n, err := h.Svc.MarkRead(r.Context(), userID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": n})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if common.WriteAppError(w, err) {
		return
	}
	obs.Logger(r.Context()).Error().Err(err).Msg("notification_request_failed")
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
}
