package voucher

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/storefront-api/internal/cart"
	"github.com/noah-isme/storefront-api/internal/common"
	"github.com/noah-isme/storefront-api/internal/obs"
	"github.com/noah-isme/storefront-api/internal/pricing"
)

// Handler exposes voucher endpoints.
type Handler struct {
	Svc *Service
}

// List returns active vouchers.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "voucher service not configured", nil)
		return
	}
	vouchers, err := h.Svc.List(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": vouchers})
}

// Get returns a voucher by id.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "voucher service not configured", nil)
		return
	}
	id, err := common.ParseUUID("id", chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	v, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": v})
}

// Create inserts a new voucher.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "voucher service not configured", nil)
		return
	}
	var in CreateInput
	if err := common.DecodeJSON(r, &in); err != nil {
		WriteError(w, r, err)
		return
	}
	v, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": v})
}

// Assign gives a voucher to a user.
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "voucher service not configured", nil)
		return
	}
	voucherID, err := common.ParseUUID("id", chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	var in AssignInput
	if err := common.DecodeJSON(r, &in); err != nil {
		WriteError(w, r, err)
		return
	}
	userID, err := common.ParseUUID("user_id", in.UserID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	a, err := h.Svc.Assign(r.Context(), voucherID, userID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": a})
}

// Mine lists the caller's usable vouchers.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "voucher service not configured", nil)
		return
	}
	userID, err := common.CurrentUserID(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	out, err := h.Svc.ListForUser(r.Context(), userID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// Preview evaluates a voucher against the caller's cart without consuming it.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "voucher service not configured", nil)
		return
	}
	userID, err := common.CurrentUserID(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	var in PreviewInput
	if err := common.DecodeJSON(r, &in); err != nil {
		WriteError(w, r, err)
		return
	}
	res, err := h.Svc.Preview(r.Context(), userID, in)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}

// Apply redeems a voucher against one of the caller's pending orders.
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "voucher service not configured", nil)
		return
	}
	userID, err := common.CurrentUserID(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	var in ApplyInput
	if err := common.DecodeJSON(r, &in); err != nil {
		WriteError(w, r, err)
		return
	}
	res, err := h.Svc.ApplyToOrder(r.Context(), userID, in)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}

// WriteError renders voucher, pricing and application errors. Each engine failure keeps its own
// error code.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	if status, code, ok := ErrorStatus(err); ok {
		var details any
		var minErr *MinimumOrderValueError
		if errors.As(err, &minErr) {
			details = map[string]string{"min_order_value": minErr.Threshold.String()}
		}
		common.JSONError(w, status, code, err.Error(), details)
		return
	}
	if common.WriteAppError(w, err) {
		return
	}
	obs.Logger(r.Context()).Error().Err(err).Msg("voucher_request_failed")
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
}

// ErrorStatus maps engine sentinels to an HTTP status and error code.
func ErrorStatus(err error) (int, string, bool) {
	switch {
	case errors.Is(err, ErrVoucherNotFound):
		return http.StatusNotFound, "VOUCHER_NOT_FOUND", true
	case errors.Is(err, ErrVoucherExpiredOrInactive):
		return http.StatusBadRequest, "VOUCHER_EXPIRED_OR_INACTIVE", true
	case errors.Is(err, ErrVoucherNotAssignedOrUsed):
		return http.StatusBadRequest, "VOUCHER_NOT_ASSIGNED_OR_USED", true
	case errors.Is(err, ErrMinimumOrderValueNotMet):
		return http.StatusUnprocessableEntity, "MIN_ORDER_VALUE_NOT_MET", true
	case errors.Is(err, ErrVoucherUsageLimitReached):
		return http.StatusConflict, "VOUCHER_USAGE_LIMIT_REACHED", true
	case errors.Is(err, ErrPerUserUsageLimitReached):
		return http.StatusConflict, "VOUCHER_PER_USER_LIMIT_REACHED", true
	case errors.Is(err, ErrConcurrentVoucherConflict):
		return http.StatusConflict, "VOUCHER_CONFLICT", true
	case errors.Is(err, pricing.ErrEmptyCart):
		return http.StatusBadRequest, "CART_EMPTY", true
	case errors.Is(err, pricing.ErrInvalidLineItem):
		return http.StatusBadRequest, "INVALID_LINE_ITEM", true
	case errors.Is(err, cart.ErrProductUnavailable):
		return http.StatusUnprocessableEntity, "PRODUCT_UNAVAILABLE", true
	default:
		return 0, "", false
	}
}
