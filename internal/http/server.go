package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"orderlens/internal/dashboard"
	"orderlens/internal/log"
	"orderlens/internal/middleware/ratelimit"
	"orderlens/internal/middleware/security"
	"orderlens/internal/middleware/trace"
	"orderlens/internal/parser"
	"orderlens/internal/storage"

	"github.com/go-chi/chi/v5"
)

// Deps are the collaborators of the API server.
type Deps struct {
	Session *dashboard.Session
	Parser  *parser.Parser
	Logger  *log.Logger
	// Location interprets dates in filter requests. Defaults to UTC.
	Location         *time.Location
	MaxUploadBytes   int64
	UploadsPerMinute int
	// RequestsPerSecond caps the whole API. Defaults to 50.
	RequestsPerSecond int
	Now               func() time.Time
}

type Server struct {
	http.Server

	session        *dashboard.Session
	parser         *parser.Parser
	logger         *log.Logger
	events         *log.StructuredLogger
	loc            *time.Location
	maxUploadBytes int64
	now            func() time.Time

	tracer        *trace.Middleware
	detector      *security.Detector
	uploadLimiter *ratelimit.Limiter
	throttle      *ratelimit.Throttle

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	maxUpload := deps.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}

	detector := security.NewDetector()
	s := &Server{
		session:        deps.Session,
		parser:         deps.Parser,
		logger:         logger,
		events:         log.NewStructuredLogger(logger),
		loc:            loc,
		maxUploadBytes: maxUpload,
		now:            now,
		tracer:         trace.NewMiddleware(logger, detector.ExtractClientIP),
		detector:       detector,
		uploadLimiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.UploadsPerMinute}),
		throttle:       ratelimit.NewThrottle(deps.RequestsPerSecond, 0),
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.tracer.Middleware)
	r.Use(log.RequestIDMiddleware(s.logger, trace.RequestID))
	r.Use(s.detector.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.throttle.Middleware(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "server busy, try again later").Write(w)
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("no such route").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").Write(w)
	})

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Get("/options", handleOptions)

		r.Get("/dataset", s.handleGetDataset)
		r.With(s.uploadLimiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
			ErrorResponse(http.StatusTooManyRequests, "too many uploads, try again later").Write(w)
		})).Post("/dataset", s.handleUpload)

		r.Get("/columns", s.handleColumns)
		r.Get("/columns/{column}/values", s.handleColumnValues)

		r.Route("/filter", func(r chi.Router) {
			r.Get("/", s.handleGetFilter)
			r.Put("/date-range", s.handleSetDateRange)
			r.Put("/metric", s.handleSetMetric)
			r.Post("/preset", s.handleApplyPreset)
			r.Route("/columns/{column}", func(r chi.Router) {
				r.Delete("/", s.handleRemoveColumnFilter)
				r.Post("/exclude", s.handleExcludeValue)
				r.Post("/include", s.handleIncludeValue)
				r.Post("/toggle", s.handleToggleValue)
				r.Post("/include-all", s.handleIncludeAll)
				r.Post("/exclude-all", s.handleExcludeAll)
			})
		})

		r.Get("/view", s.handleGetView)
		r.Put("/view", s.handleSetView)
		r.Get("/dashboard", s.handleDashboard)
	})
	return r
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.uploadLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type readyResponse struct {
	Status             string `json:"status"`
	DatasetLoaded      bool   `json:"dataset_loaded"`
	Requests           int64  `json:"requests"`
	RateLimitedUploads int64  `json:"rate_limited_uploads"`
	ThrottledRequests  int64  `json:"throttled_requests"`
	SuspiciousRequests int64  `json:"suspicious_requests"`
}

// handleReady reports readiness along with request counters. A failing
// store makes the server unready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	_, err := s.session.Dataset(r.Context())
	if err != nil && !errors.Is(err, storage.ErrNoDataset) {
		s.events.LogError(r.Context(), "Readiness check failed", err, log.ComponentStorage, "readiness", nil)
		ErrorResponse(http.StatusServiceUnavailable, "dataset store unavailable").Write(w)
		return
	}
	OK(readyResponse{
		Status:             "ready",
		DatasetLoaded:      err == nil,
		Requests:           s.tracer.GetMetrics().TotalRequests,
		RateLimitedUploads: s.uploadLimiter.GetMetrics().TotalHits,
		ThrottledRequests:  s.throttle.Rejected(),
		SuspiciousRequests: s.detector.GetMetrics().SuspiciousRequests,
	}).Write(w)
}

// writeError maps err to a response. Unknown errors are logged and
// answered with 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var reqErr *RequestError
	switch {
	case errors.As(err, &reqErr):
		FieldError(reqErr.Status, reqErr.Field, reqErr.Message).Write(w)
	case errors.Is(err, storage.ErrNoDataset):
		ConflictError("no dataset loaded, upload an order history first").Write(w)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		ErrorResponse(http.StatusServiceUnavailable, "request cancelled").Write(w)
	default:
		log.NewStructuredLogger(log.FromContext(r.Context())).LogError(r.Context(), "Request failed", err, log.ComponentHTTP, op, nil)
		InternalServerError().Write(w)
	}
}
