package audit

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HTTPRecorder records admin requests after they have been handled.
type HTTPRecorder struct {
	Service *Service
	OnError func(error)
}

// HTTPConfig customises how the audit entry is produced for a route.
type HTTPConfig struct {
	Action          string
	ResourceType    string
	ResourceIDParam string
	MetadataFunc    func(*http.Request, int) map[string]any
}

// Middleware returns a chi-compatible middleware that records one entry per request. Failed
// requests (status >= 400) are recorded as well.
func (r HTTPRecorder) Middleware(cfg HTTPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if r.Service == nil || !r.Service.Enabled {
				next.ServeHTTP(w, req)
				return
			}

			recorder := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(recorder, req)

			ctx := req.Context()
			if _, ok := RequestInfoFromContext(ctx); !ok {
				ctx = WithRequestInfo(ctx, RequestInfo{Method: req.Method, Path: req.URL.Path, UserAgent: req.UserAgent()})
			}
			entry := Entry{
				Action:       cfg.Action,
				ResourceType: cfg.ResourceType,
				Status:       recorder.Status(),
			}
			if cfg.ResourceIDParam != "" {
				entry.ResourceID = chi.URLParam(req, cfg.ResourceIDParam)
			}
			if cfg.MetadataFunc != nil {
				entry.Metadata = cfg.MetadataFunc(req, recorder.Status())
			}
			if err := r.Service.Record(ctx, entry); err != nil && r.OnError != nil {
				r.OnError(err)
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Status() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}
