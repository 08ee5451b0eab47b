package audit

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/storefront-api/internal/common"
	"github.com/noah-isme/storefront-api/internal/db"
	"github.com/noah-isme/storefront-api/internal/obs"
)

// Handler exposes HTTP endpoints for working with audit logs.
type Handler struct {
	Store Store
}

// LogView is the API shape of an audit row.
type LogView struct {
	ID           uuid.UUID       `json:"id"`
	ActorKind    string          `json:"actor_kind"`
	ActorUserID  *uuid.UUID      `json:"actor_user_id,omitempty"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   *string         `json:"resource_id,omitempty"`
	Method       string          `json:"method"`
	Path         string          `json:"path"`
	Status       int32           `json:"status"`
	RequestID    *string         `json:"request_id,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// List returns a page of audit logs for administrators.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_NOT_CONFIGURED", "audit store not configured", nil)
		return
	}
	page, limit := common.ParsePagination(r, 50, 200)
	rows, err := h.Store.ListAuditLogs(r.Context(), db.ListAuditLogsParams{
		Limit:  int32(limit),
		Offset: int32(common.Offset(page, limit)),
	})
	if err != nil {
		obs.Logger(r.Context()).Error().Err(err).Msg("list_audit_logs_failed")
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", "unable to fetch audit logs", nil)
		return
	}
	out := make([]LogView, 0, len(rows))
	for _, row := range rows {
		out = append(out, toView(row))
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

func toView(row db.AuditLog) LogView {
	v := LogView{
		ID:           row.ID,
		ActorKind:    row.ActorKind,
		Action:       row.Action,
		ResourceType: row.ResourceType,
		Method:       row.Method,
		Path:         row.Path,
		Status:       row.Status,
		CreatedAt:    row.CreatedAt,
	}
	if row.ActorUserID.Valid {
		id := row.ActorUserID.UUID
		v.ActorUserID = &id
	}
	if row.ResourceID.Valid {
		v.ResourceID = &row.ResourceID.String
	}
	if row.RequestID.Valid {
		v.RequestID = &row.RequestID.String
	}
	if len(row.Metadata) > 0 {
		v.Metadata = json.RawMessage(row.Metadata)
	}
	return v
}
