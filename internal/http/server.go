package http

import (
	"context"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"monthbook/internal/log"
	"monthbook/internal/middleware/ratelimit"
	"monthbook/internal/middleware/security"
	"monthbook/internal/middleware/trace"
	appweb "monthbook/web"
)

// Options tunes the server. The zero value is usable.
type Options struct {
	RateLimit ratelimit.Config
	// Ready reports whether the process can serve traffic; nil means ready.
	Ready  func(context.Context) error
	Logger *log.Logger
}

type Server struct {
	http.Server
	ledger  LedgerAPI
	reports ReportAPI
	ready   func(context.Context) error
	logger  *log.Logger

	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware
	detector *security.Detector
	index    []byte

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, ledger LedgerAPI, reports ReportAPI, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default(log.ComponentHTTP)
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
		ledger:   ledger,
		reports:  reports,
		ready:    opts.Ready,
		logger:   logger,
		limiter:  ratelimit.NewLimiter(opts.RateLimit),
		detector: security.NewDetector(logger),
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	index, err := fs.ReadFile(appweb.StaticFS, "static/index.html")
	if err != nil {
		logger.Warn("Failed to load embedded index page", log.FieldError, err)
	}
	s.index = index

	mux := http.NewServeMux()
	s.routes(mux)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.Handler = s.tracer.Middleware(s.detector.Middleware(headers.Middleware(mux)))
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.Handle("POST /api/capital", s.api(s.handleSetCapital))
	mux.Handle("POST /api/expenses", s.api(s.handleAddExpense))
	mux.Handle("GET /api/expenses/{month}", s.api(s.handleListExpenses))
	mux.Handle("DELETE /api/expenses/{id}", s.api(s.handleRemoveExpense))
	mux.Handle("GET /api/summary/{month}", s.api(s.handleSummary))
	mux.Handle("GET /api/months", s.api(s.handleMonths))
	mux.Handle("GET /api/export/{month}", s.api(s.handleExport))
	mux.Handle("GET /api/export/{month}/csv", s.api(s.handleExportCSV))
	mux.Handle("GET /api/exports/{month}", s.api(s.handleExportHistory))
	mux.Handle("GET /api/metrics", s.api(s.handleMetrics))
	mux.HandleFunc("GET /api/", func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("unknown endpoint").Write(w)
	})

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /", s.handleIndex)
}

// api applies per-client rate limiting to an API handler.
func (s *Server) api(h http.HandlerFunc) http.Handler {
	onLimit := func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ExtractClientIP(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	}
	return s.limiter.Middleware(s.detector.ExtractClientIP, onLimit)(h)
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleIndex serves the single page UI for every GET outside /api and
// /static so client-side routes survive a reload.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		http.Error(w, "index page not available", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(s.index)
}

type metricsResponse struct {
	Requests struct {
		Total             int64 `json:"total"`
		ServerErrors      int64 `json:"serverErrors"`
		AverageResponseUs int64 `json:"averageResponseUs"`
	} `json:"requests"`
	RateLimit struct {
		Allowed  int64 `json:"allowed"`
		Rejected int64 `json:"rejected"`
		Clients  int64 `json:"clients"`
	} `json:"rateLimit"`
	Security struct {
		Suspicious int64 `json:"suspicious"`
		Blocked    int64 `json:"blocked"`
	} `json:"security"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var out metricsResponse
	tm := s.tracer.GetMetrics()
	out.Requests.Total = tm.TotalRequests
	out.Requests.ServerErrors = tm.ServerErrors
	out.Requests.AverageResponseUs = tm.AverageResponseTime

	rm := s.limiter.GetMetrics()
	out.RateLimit.Allowed = rm.Allowed
	out.RateLimit.Rejected = rm.Rejected
	out.RateLimit.Clients = rm.ClientCount

	dm := s.detector.GetMetrics()
	out.Security.Suspicious = dm.SuspiciousRequests
	out.Security.Blocked = dm.BlockedRequests

	NewJSONResponse().JSON(out).Write(w)
}
