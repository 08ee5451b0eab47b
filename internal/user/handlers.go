package user

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/storefront-api/internal/common"
	"github.com/noah-isme/storefront-api/internal/obs"
)

// Handler exposes profile, address book and admin user endpoints.
type Handler struct {
	Svc *Service
}

// Profile handles GET /api/v1/users/profile.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "user service not configured", nil)
		return
	}
	userID, err := common.CurrentUserID(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.Svc.Profile(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}

// UpdateProfile handles PUT /api/v1/users/profile.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "user service not configured", nil)
		return
	}
	userID, err := common.CurrentUserID(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var in UpdateProfileInput
	if err := common.DecodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.Svc.UpdateProfile(r.Context(), userID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}

// Rank handles GET /api/v1/users/rank.
func (h *Handler) Rank(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "user service not configured", nil)
		return
	}
	userID, err := common.CurrentUserID(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rank, err := h.Svc.Rank(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rank})
}

// Addresses handles GET /api/v1/users/addresses.
func (h *Handler) Addresses(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "user service not configured", nil)
		return
	}
	userID, err := common.CurrentUserID(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out, err := h.Svc.Addresses(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// AddAddress handles POST /api/v1/users/addresses.
func (h *Handler) AddAddress(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "user service not configured", nil)
		return
	}
	userID, err := common.CurrentUserID(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var in AddressInput
	if err := common.DecodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	a, err := h.Svc.AddAddress(r.Context(), userID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": a})
}

// UpdateAddress handles PUT /api/v1/users/addresses/{id}.
func (h *Handler) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "user service not configured", nil)
		return
	}
	userID, err := common.CurrentUserID(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	addressID, err := common.ParseUUID("id", chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var in UpdateAddressInput
	if err := common.DecodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	a, err := h.Svc.UpdateAddress(r.Context(), userID, addressID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": a})
}

// DeleteAddress handles DELETE /api/v1/users/addresses/{id}.
func (h *Handler) DeleteAddress(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "user service not configured", nil)
		return
	}
	userID, err := common.CurrentUserID(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	addressID, err := common.ParseUUID("id", chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Svc.DeleteAddress(r.Context(), userID, addressID); err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]string{"message": "address deleted"}})
}

// List handles GET /api/v1/users for administrators.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "user service not configured", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 20, 100)
	users, total, err := h.Svc.List(r.Context(), page, perPage)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       users,
		"pagination": common.NewPagination(page, perPage, total),
	})
}

// UpdateRole handles PUT /api/v1/users/{id}/role.
func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "user service not configured", nil)
		return
	}
	userID, err := common.ParseUUID("id", chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var in UpdateRoleInput
	if err := common.DecodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.Svc.UpdateRole(r.Context(), userID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if common.WriteAppError(w, err) {
		return
	}
	obs.Logger(r.Context()).Error().Err(err).Msg("user_request_failed")
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
}
