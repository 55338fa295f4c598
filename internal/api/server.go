package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/apilog-dashboard/internal/backend"
	"github.com/JakeFAU/apilog-dashboard/internal/config"
	"github.com/JakeFAU/apilog-dashboard/internal/logs"
	"github.com/JakeFAU/apilog-dashboard/internal/metrics"
	"github.com/JakeFAU/apilog-dashboard/internal/policy/ratelimit"
)

// Enqueuer hands accepted jobs to the workers.
type Enqueuer interface {
	Enqueue(ctx context.Context, item backend.QueueItem) error
}

// ReadyCheck reports whether a downstream dependency is usable.
type ReadyCheck func(ctx context.Context) error

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router   chi.Router
	jobStore backend.JobStore
	enqueuer Enqueuer
	files    backend.BlobStore
	logs     *LogsHandler
	stats    *AnalyticsHandler
	idGen    backend.IDGenerator
	clock    backend.Clock
	cfg      config.Config
	limiter  *ratelimit.Limiter
	checks   map[string]ReadyCheck
	logger   *zap.Logger
}

// Option customizes a Server.
type Option func(*Server)

// WithReadyCheck adds a dependency checked by /readyz.
func WithReadyCheck(name string, check ReadyCheck) Option {
	return func(s *Server) {
		s.checks[name] = check
	}
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	jobStore backend.JobStore,
	enqueuer Enqueuer,
	files backend.BlobStore,
	logStore logs.Store,
	idGen backend.IDGenerator,
	clock backend.Clock,
	cfg config.Config,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		jobStore: jobStore,
		enqueuer: enqueuer,
		files:    files,
		logs:     NewLogsHandler(logStore, logger),
		stats:    NewAnalyticsHandler(analyticsOf(logStore), logger),
		idGen:    idGen,
		clock:    clock,
		cfg:      cfg,
		checks:   make(map[string]ReadyCheck),
		logger:   logger,
	}
	if cfg.Server.ExportRPS > 0 {
		s.limiter = ratelimit.New(ratelimit.Config{RPS: cfg.Server.ExportRPS, Burst: cfg.Server.ExportBurst})
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if cfg.Metrics.Enabled {
		r.Handle("/metrics", metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(bearerAuthMiddleware(cfg.Auth.Token))
		}
		r.Get("/logs", s.logs.List)
		r.Route("/analytics", func(r chi.Router) {
			r.Get("/avg-response-time", s.stats.AvgResponseTime)
			r.Get("/status-code-breakdown", s.stats.StatusCodeBreakdown)
			r.Get("/requests-per-day", s.stats.RequestsPer)
		})
		r.Route("/logs/export/{kind}", func(r chi.Router) {
			r.With(rateLimitMiddleware(s.limiter)).Post("/", s.submitExport)
			r.Get("/status/{job_id}", s.getExportStatus)
			r.Get("/download/{job_id}", s.downloadExport)
			r.Delete("/{job_id}", s.cancelExport)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server. Incoming trace
// context is extracted and each request runs in a server span.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "apilog-api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// analyticsOf returns store's aggregate views when it offers them.
func analyticsOf(store logs.Store) logs.Analytics {
	if a, ok := store.(logs.Analytics); ok {
		return a
	}
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	failed := map[string]string{}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		s.logger.Warn("readiness check failed", zap.Any("failures", failed))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failures": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
