// Package httpapi exposes the Log Sink and Workflow engine over a
// chi-routed JSON REST surface. Grounded on
// Sergey-Bar-Alfred/services/gateway/router/router.go for the
// middleware chain ordering and handler-per-resource layout, adapted
// from an LLM proxy's routes to this system's logs/lifecycle/workflow
// surface.
package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/cuemby/warrenflow/pkg/authgate"
	"github.com/cuemby/warrenflow/pkg/log"
	"github.com/cuemby/warrenflow/pkg/logsink"
	"github.com/cuemby/warrenflow/pkg/metrics"
	"github.com/cuemby/warrenflow/pkg/types"
	"github.com/cuemby/warrenflow/pkg/workflow"
)

// Server bundles the dependencies the HTTP surface serves.
type Server struct {
	Sink      *logsink.Sink
	Engine    *workflow.Engine
	Runs      *workflow.FileCheckpointer
	Workflows WorkflowLookup
	Gate      *authgate.Gate

	// CancelGrace is how long handleWorkflowRunCancel gives an
	// in-flight node before the engine hard-cancels its context.
	// Defaults to 5s if unset.
	CancelGrace time.Duration

	// RateLimiter enforces a per-API-key requests-per-minute ceiling on
	// every authenticated endpoint. Nil disables rate limiting.
	RateLimiter *authgate.RateLimiter

	logger zerolog.Logger
}

// WorkflowLookup resolves a workflow_id to its static definition, so
// handlers can validate a run request before starting it.
type WorkflowLookup interface {
	Get(workflowID string) (*types.Workflow, bool)
}

// NewServer builds a Server. Call Router to obtain the http.Handler.
func NewServer(sink *logsink.Sink, engine *workflow.Engine, runs *workflow.FileCheckpointer, workflows WorkflowLookup, gate *authgate.Gate) *Server {
	return &Server{
		Sink:        sink,
		Engine:      engine,
		Runs:        runs,
		Workflows:   workflows,
		Gate:        gate,
		CancelGrace: 5 * time.Second,
		logger:      log.WithComponent("httpapi"),
	}
}

// Router builds the full middleware chain and route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// Order matters: CORS must answer preflight before anything else
	// runs; security headers next; request-id and recoverer are chi's
	// own so every downstream middleware and handler can rely on them;
	// request logger last before auth so it also captures auth
	// rejections.
	r.Use(corsMiddleware)
	r.Use(securityHeadersMiddleware)
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		if s.RateLimiter != nil {
			r.Use(s.RateLimiter.Middleware)
		}

		r.Post("/logs", s.handleLogsCreate)
		r.Post("/logs/batch", s.handleLogsBatchCreate)
		r.Get("/logs", s.handleLogsList)
		r.Get("/logs/stats", s.handleLogsStats)
		r.Get("/logs/{id}", s.handleLogsGet)
		r.Delete("/logs/cleanup", s.handleLogsCleanup)
		r.Delete("/logs/cleanup/all", s.handleLogsCleanupAll)

		r.Get("/lifecycle/document/{id}", s.handleLifecycleDocument)
		r.Get("/lifecycle/file/{name}", s.handleLifecycleFile)
		r.Get("/lifecycle/hash/{hash}", s.handleLifecycleHash)

		r.Post("/workflows/{id}/runs", s.handleWorkflowRunCreate)
		r.Get("/workflows/{id}/runs", s.handleWorkflowRunList)
		r.Get("/workflows/{id}/runs/{run_id}", s.handleWorkflowRunGet)
		r.Post("/workflows/{id}/runs/{run_id}/cancel", s.handleWorkflowRunCancel)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(rw, r)
		duration := time.Since(start)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		metrics.APIRequestsTotal.WithLabelValues(route, strconv.Itoa(rw.Status())).Inc()
		metrics.APIRequestDuration.WithLabelValues(route).Observe(duration.Seconds())

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("req_id", chimw.GetReqID(r.Context())).
			Int("status", rw.Status()).
			Dur("duration", duration).
			Msg("request completed")
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}
