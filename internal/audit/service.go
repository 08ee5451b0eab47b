package audit

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/storefront-api/internal/common"
	"github.com/noah-isme/storefront-api/internal/db"
	"github.com/noah-isme/storefront-api/internal/obs"
)

// ActorKind represents the source of an audited action.
type ActorKind string

const (
	ActorKindUser      ActorKind = "user"
	ActorKindSystem    ActorKind = "system"
	ActorKindAnonymous ActorKind = "anonymous"
)

// Actor describes the entity performing the action.
type Actor struct {
	Kind   ActorKind
	UserID *uuid.UUID
}

// ActorFromContext returns the authenticated user, or an anonymous actor.
func ActorFromContext(ctx context.Context) Actor {
	if id, err := common.CurrentUserID(ctx); err == nil {
		return Actor{Kind: ActorKindUser, UserID: &id}
	}
	return Actor{Kind: ActorKindAnonymous}
}

// Store defines the database operations required for auditing.
type Store interface {
	InsertAuditLog(ctx context.Context, arg db.InsertAuditLogParams) (db.InsertAuditLogRow, error)
	ListAuditLogs(ctx context.Context, arg db.ListAuditLogsParams) ([]db.AuditLog, error)
}

// Entry is one audited change. Old and New hold the before/after values of the resource.
type Entry struct {
	Actor        *Actor
	Action       string
	ResourceType string
	ResourceID   string
	Status       int
	Old          any
	New          any
	Metadata     map[string]any
}

// Service persists audit logs for critical application flows.
type Service struct {
	Store        Store
	Enabled      bool
	SamplingRate float64
	Rand         func() float64
}

// Record persists an audit log entry when auditing is enabled. Request details come from the
// context populated by CaptureRequest; entries written outside a request are tagged INTERNAL.
func (s *Service) Record(ctx context.Context, e Entry) error {
	if s == nil || !s.Enabled {
		return nil
	}
	if s.Store == nil {
		return errors.New("audit: store not configured")
	}
	if s.SamplingRate > 0 && s.SamplingRate < 1 && s.random() > s.SamplingRate {
		return nil
	}

	actor := ActorFromContext(ctx)
	if e.Actor != nil {
		actor = *e.Actor
	}
	info, ok := RequestInfoFromContext(ctx)
	if !ok {
		info = RequestInfo{Method: "INTERNAL", Path: "internal"}
	}
	route := routeFromContext(ctx)

	status := e.Status
	if status == 0 {
		status = http.StatusOK
	}
	metadata, err := encodeMetadata(e)
	if err != nil {
		return err
	}

	_, err = s.Store.InsertAuditLog(ctx, db.InsertAuditLogParams{
		ActorKind:    string(normalizeActorKind(actor.Kind)),
		ActorUserID:  toNullUUID(actor.UserID),
		Action:       buildAction(e.Action, info.Method, route),
		ResourceType: buildResource(e.ResourceType, route),
		ResourceID:   toNullText(e.ResourceID),
		Method:       info.Method,
		Path:         info.Path,
		Route:        toNullText(route),
		Status:       int32(status),
		Ip:           toNullText(info.IP),
		UserAgent:    toNullText(info.UserAgent),
		RequestID:    toNullText(info.RequestID),
		Metadata:     metadata,
	})
	return err
}

// RecordAsync writes the entry and logs failures. Callers use it after a committed transaction.
func (s *Service) RecordAsync(ctx context.Context, e Entry) {
	if err := s.Record(ctx, e); err != nil {
		obs.Logger(ctx).Warn().Err(err).Str("action", e.Action).Msg("audit_record_failed")
	}
}

func (s *Service) random() float64 {
	if s.Rand != nil {
		return s.Rand()
	}
	return rand.Float64()
}

// RequestInfo is the request metadata attached to audit rows.
type RequestInfo struct {
	Method    string
	Path      string
	IP        string
	UserAgent string
	RequestID string
}

type requestInfoKey struct{}

// WithRequestInfo stores request metadata on the context.
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFromContext returns request metadata stored by CaptureRequest.
func RequestInfoFromContext(ctx context.Context) (RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info, ok
}

// CaptureRequest makes request metadata available to services that record audit entries.
func CaptureRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := middleware.GetReqID(r.Context())
		if reqID == "" {
			reqID = r.Header.Get("X-Request-ID")
		}
		info := RequestInfo{
			Method:    r.Method,
			Path:      r.URL.Path,
			IP:        common.ClientIP(r),
			UserAgent: r.UserAgent(),
			RequestID: reqID,
		}
		next.ServeHTTP(w, r.WithContext(WithRequestInfo(r.Context(), info)))
	})
}

func routeFromContext(ctx context.Context) string {
	if route := obs.RoutePatternFromContext(ctx); route != "" {
		return route
	}
	if rc := chi.RouteContext(ctx); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}

func buildAction(action, method, route string) string {
	trimmed := strings.TrimSpace(action)
	if trimmed != "" {
		return trimmed
	}
	target := route
	if target == "" {
		target = "/"
	}
	return strings.ToUpper(strings.TrimSpace(method)) + " " + target
}

func buildResource(resourceType, route string) string {
	if trimmed := strings.TrimSpace(resourceType); trimmed != "" {
		return trimmed
	}
	route = strings.Trim(strings.TrimSpace(route), "/")
	if route == "" {
		return "unknown"
	}
	segments := strings.Split(route, "/")
	if len(segments) >= 3 && segments[0] == "api" && segments[1] == "v1" {
		segments = segments[2:]
	}
	kept := segments[:0]
	for _, seg := range segments {
		if strings.HasPrefix(seg, "{") {
			continue
		}
		kept = append(kept, seg)
	}
	return strings.Join(kept, ".")
}

func encodeMetadata(e Entry) ([]byte, error) {
	payload := map[string]any{}
	for k, v := range e.Metadata {
		payload[k] = v
	}
	if e.Old != nil {
		payload["old_values"] = e.Old
	}
	if e.New != nil {
		payload["new_values"] = e.New
	}
	if len(payload) == 0 {
		return nil, nil
	}
	return json.Marshal(payload)
}

func normalizeActorKind(kind ActorKind) ActorKind {
	switch kind {
	case ActorKindUser, ActorKindSystem:
		return kind
	default:
		return ActorKindAnonymous
	}
}

func toNullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil || *id == uuid.Nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func toNullText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}
