package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-api/internal/common"
	"github.com/noah-isme/storefront-api/internal/db"
)

type stubStore struct {
	inserts []db.InsertAuditLogParams
	rows    []db.AuditLog
	list    db.ListAuditLogsParams
	err     error
}

func (s *stubStore) InsertAuditLog(_ context.Context, arg db.InsertAuditLogParams) (db.InsertAuditLogRow, error) {
	if s.err != nil {
		return db.InsertAuditLogRow{}, s.err
	}
	s.inserts = append(s.inserts, arg)
	return db.InsertAuditLogRow{ID: uuid.New()}, nil
}

func (s *stubStore) ListAuditLogs(_ context.Context, arg db.ListAuditLogsParams) ([]db.AuditLog, error) {
	s.list = arg
	return s.rows, s.err
}

func TestRecordCapturesRequestAndValues(t *testing.T) {
	store := &stubStore{}
	svc := &Service{Store: store, Enabled: true, SamplingRate: 1}
	userID := uuid.New()

	r := chi.NewRouter()
	r.With(CaptureRequest).Post("/api/v1/vouchers/apply", func(w http.ResponseWriter, req *http.Request) {
		ctx := common.WithUserID(req.Context(), userID.String())
		err := svc.Record(ctx, Entry{
			Action:       "APPLY_VOUCHER",
			ResourceType: "orders",
			ResourceID:   "order-1",
			Old:          map[string]any{"voucher_id": nil},
			New:          map[string]any{"voucher_id": "v-1"},
		})
		require.NoError(t, err)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/vouchers/apply", nil)
	req.Header.Set("User-Agent", "tester")
	req.Header.Set("X-Request-ID", "req-123")
	req.RemoteAddr = "10.0.0.2:54321"
	r.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, store.inserts, 1)
	got := store.inserts[0]
	require.Equal(t, "user", got.ActorKind)
	require.True(t, got.ActorUserID.Valid)
	require.Equal(t, userID, got.ActorUserID.UUID)
	require.Equal(t, "APPLY_VOUCHER", got.Action)
	require.Equal(t, "orders", got.ResourceType)
	require.Equal(t, "order-1", got.ResourceID.String)
	require.Equal(t, http.MethodPost, got.Method)
	require.Equal(t, "/api/v1/vouchers/apply", got.Route.String)
	require.Equal(t, "10.0.0.2", got.Ip.String)
	require.Equal(t, "req-123", got.RequestID.String)
	require.EqualValues(t, http.StatusOK, got.Status)

	var meta map[string]map[string]any
	require.NoError(t, json.Unmarshal(got.Metadata, &meta))
	require.Equal(t, "v-1", meta["new_values"]["voucher_id"])
	require.Contains(t, meta, "old_values")
}

func TestRecordOutsideRequest(t *testing.T) {
	store := &stubStore{}
	svc := &Service{Store: store, Enabled: true}

	require.NoError(t, svc.Record(context.Background(), Entry{Actor: &Actor{Kind: ActorKindSystem}, Action: "EXPIRE"}))
	require.Len(t, store.inserts, 1)
	require.Equal(t, "system", store.inserts[0].ActorKind)
	require.Equal(t, "INTERNAL", store.inserts[0].Method)
	require.Equal(t, "unknown", store.inserts[0].ResourceType)
	require.Nil(t, store.inserts[0].Metadata)
}

func TestRecordDisabledAndSampled(t *testing.T) {
	store := &stubStore{}
	var nilSvc *Service
	require.NoError(t, nilSvc.Record(context.Background(), Entry{Action: "X"}))

	disabled := &Service{Store: store}
	require.NoError(t, disabled.Record(context.Background(), Entry{Action: "X"}))

	sampled := &Service{Store: store, Enabled: true, SamplingRate: 0.1, Rand: func() float64 { return 0.5 }}
	require.NoError(t, sampled.Record(context.Background(), Entry{Action: "X"}))
	require.Empty(t, store.inserts)

	unconfigured := &Service{Enabled: true}
	require.Error(t, unconfigured.Record(context.Background(), Entry{Action: "X"}))
}

func TestMiddlewareDerivesActionAndResource(t *testing.T) {
	store := &stubStore{}
	rec := HTTPRecorder{Service: &Service{Store: store, Enabled: true}}

	r := chi.NewRouter()
	r.Use(CaptureRequest)
	r.With(rec.Middleware(HTTPConfig{ResourceIDParam: "id"})).Patch("/api/v1/orders/{id}/status", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/orders/abc/status", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, store.inserts, 1)
	got := store.inserts[0]
	require.Equal(t, "PATCH /api/v1/orders/{id}/status", got.Action)
	require.Equal(t, "orders.status", got.ResourceType)
	require.Equal(t, "abc", got.ResourceID.String)
	require.EqualValues(t, http.StatusConflict, got.Status)
	require.Equal(t, "anonymous", got.ActorKind)
}

func TestMiddlewareReportsStoreErrors(t *testing.T) {
	store := &stubStore{err: errors.New("db down")}
	var reported error
	rec := HTTPRecorder{Service: &Service{Store: store, Enabled: true}, OnError: func(err error) { reported = err }}

	h := rec.Middleware(HTTPConfig{Action: "DELETE_PRODUCT"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/v1/products/1", nil))

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.EqualError(t, reported, "db down")
}

func TestHandlerList(t *testing.T) {
	userID := uuid.New()
	store := &stubStore{rows: []db.AuditLog{{
		ID:          uuid.New(),
		ActorKind:   "user",
		ActorUserID: uuid.NullUUID{UUID: userID, Valid: true},
		Action:      "APPLY_VOUCHER",
		Method:      http.MethodPost,
		Metadata:    []byte(`{"new_values":{"total":"10"}}`),
	}}}
	h := Handler{Store: store}

	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/api/v1/audit-logs?limit=25&page=3", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.EqualValues(t, 25, store.list.Limit)
	require.EqualValues(t, 50, store.list.Offset)

	var payload struct {
		Data []LogView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	require.Len(t, payload.Data, 1)
	require.Equal(t, userID, *payload.Data[0].ActorUserID)
	require.JSONEq(t, `{"new_values":{"total":"10"}}`, string(payload.Data[0].Metadata))
}

func TestHandlerListClampsLimit(t *testing.T) {
	store := &stubStore{}
	h := Handler{Store: store}
	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/api/v1/audit-logs?limit=1000&page=-3", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.EqualValues(t, 200, store.list.Limit)
	require.EqualValues(t, 0, store.list.Offset)
}
