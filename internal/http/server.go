package http

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"sikdae/internal/core"
	applog "sikdae/internal/log"
	"sikdae/internal/metrics"
	"sikdae/internal/middleware/ratelimit"
	"sikdae/internal/middleware/security"
	"sikdae/internal/services"
)

const defaultMaxUploadBytes = 10 << 20

// Analyzer is the part of the analysis service the API depends on.
type Analyzer interface {
	AnalyzeUpload(ctx context.Context, filename string, r io.Reader, meta services.Meta) (*services.StoredReport, error)
	Get(id string) (*services.StoredReport, error)
	List() []services.ReportSummary
	Policy() core.Policy
}

// ReadyCheck reports whether one dependency can serve traffic.
type ReadyCheck func(ctx context.Context) error

type Options struct {
	Addr               string
	Analyzer           Analyzer
	Logger             *applog.Logger
	Metrics            *metrics.Metrics // optional, also enables /metrics
	MaxUploadBytes     int64
	RateLimitPerMinute int
	ReadyChecks        map[string]ReadyCheck
}

// Server serves the analysis API.
type Server struct {
	http.Server
	analyzer     Analyzer
	logger       *applog.Logger
	metrics      *metrics.Metrics
	limiter      *ratelimit.Limiter
	ips          *security.IPResolver
	maxUpload    int64
	readyChecks  map[string]ReadyCheck
	started      time.Time
	shutdownOnce sync.Once
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}

	s := &Server{
		analyzer:    opts.Analyzer,
		logger:      opts.Logger.WithComponent(applog.ComponentHTTP),
		metrics:     opts.Metrics,
		limiter:     ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		ips:         security.NewIPResolver(),
		maxUpload:   opts.MaxUploadBytes,
		readyChecks: opts.ReadyChecks,
		started:     time.Now(),
	}
	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(applog.Middleware(s.logger, requestID))
	r.Use(applog.AccessLog(s.ips.ClientIP))
	r.Use(s.instrument)
	r.Use(middleware.Recoverer)
	r.Use(security.Headers(security.DefaultHeadersConfig()))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/policy", s.handlePolicy)
		r.Route("/analyses", func(r chi.Router) {
			r.With(s.limiter.Middleware(s.ips.ClientIP, rateLimited)).Post("/", s.handleCreateAnalysis)
			r.Get("/", s.handleListAnalyses)
			r.Get("/{id}", s.handleGetAnalysis)
			r.Get("/{id}/export.zip", s.handleExport)
			r.Get("/{id}/{class}/details", s.handleDetails)
		})
	})
	return r
}

// instrument records request metrics under the matched route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveHTTP(r.Method, route, status, time.Since(start))
	})
}

func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(middleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

func rateLimited(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
}

// Shutdown stops the rate limiter and drains the HTTP server. It is safe to
// call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
