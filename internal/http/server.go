package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"workhours/internal/auth"
	"workhours/internal/core"
	"workhours/internal/log"
	"workhours/internal/middleware/ratelimit"
	"workhours/internal/middleware/security"
	"workhours/internal/middleware/trace"
	"workhours/internal/services"
	appweb "workhours/web"
)

// storeTimeout bounds every handler call that reaches the work log.
const storeTimeout = 15 * time.Second

// retryLoadTimeout bounds the store retry made on a dashboard load while the
// work log is unreachable.
const retryLoadTimeout = 3 * time.Second

// Options configures a Server.
type Options struct {
	Addr    string
	Session *services.Session
	Logger  *log.Logger
	// UnlockAttemptsPerMinute limits password guesses per client IP.
	UnlockAttemptsPerMinute int
	// Grants signs unlock cookies. Nil uses a random key and the default TTL.
	Grants *auth.Grants
	// Templates and Static default to the embedded web assets.
	Templates fs.FS
	Static    fs.FS
	Now       func() time.Time
}

type Server struct {
	http.Server
	templates *template.Template
	session   *services.Session
	grants    *auth.Grants
	logger    *log.Logger
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	tracer    *trace.Middleware
	now       func() time.Time
	started   time.Time
}

// templateFuncs exposes the formatters to the dashboard templates.
var templateFuncs = template.FuncMap{
	"hours":     core.FormatHours,
	"signed":    core.FormatSignedHours,
	"tone":      core.Tone,
	"monthKey":  core.FormatMonth,
	"prevMonth": func(y, m int) string { d := core.NewDate(y, m-1, 1); return core.FormatMonth(d.Year(), d.Month()) },
	"nextMonth": func(y, m int) string { d := core.NewDate(y, m+1, 1); return core.FormatMonth(d.Year(), d.Month()) },
	"inputHours": func(d core.DayView) string {
		if !d.Recorded {
			return ""
		}
		return formatInputHours(d.Hours)
	},
}

// NewServer builds the HTTP server around a loaded session. A template parse
// failure is logged and surfaces as 500 on the dashboard and not-ready on
// /readyz; the JSON API keeps working.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Templates == nil {
		opts.Templates = appweb.TemplatesFS
	}
	if opts.Static == nil {
		if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
			opts.Static = sub
		}
	}

	logger := opts.Logger.WithComponent(log.ComponentHTTP)
	if opts.Grants == nil {
		grants, err := auth.NewGrants("", 0)
		if err != nil {
			logger.Error("Failed to create unlock signing key, editing disabled", log.FieldOperation, log.OpUnlock, log.FieldError, err)
		}
		opts.Grants = grants
	}
	s := &Server{
		session:  opts.Session,
		grants:   opts.Grants,
		logger:   logger,
		detector: security.NewDetector(),
		limiter:  ratelimit.NewLimiter(ratelimit.Config{AttemptsPerMinute: opts.UnlockAttemptsPerMinute}),
		now:      opts.Now,
		started:  opts.Now(),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP)

	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(opts.Templates, "templates/*.html")
	if err != nil {
		logger.Error("Failed to parse templates", log.FieldOperation, log.OpRender, log.FieldError, err)
	} else {
		s.templates = tmpl
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/overview", s.handleOverview)
	api.HandleFunc("PUT /api/days/{date}", s.handleSetDay)
	api.HandleFunc("POST /api/save", s.handleSave)
	api.HandleFunc("POST /api/reload", s.handleReload)
	api.HandleFunc("POST /api/week/fill", s.handleFillWeek)
	api.HandleFunc("POST /api/week/clear", s.handleClearWeek)
	api.HandleFunc("POST /api/sessions", s.handleAddSession)
	api.HandleFunc("POST /api/timer/start", s.handleTimerStart)
	api.HandleFunc("POST /api/timer/stop", s.handleTimerStop)
	api.Handle("POST /api/unlock", s.limiter.Middleware(s.detector.ExtractClientIP, s.onUnlockLimited)(http.HandlerFunc(s.handleUnlock)))
	api.HandleFunc("POST /api/lock", s.handleLock)
	api.HandleFunc("PUT /api/target", s.handleSetTarget)
	api.HandleFunc("PUT /api/preferences", s.handleSetPreferences)
	api.HandleFunc("POST /api/demo", s.handleDemo)
	api.HandleFunc("POST /api/demo/exit", s.handleExitDemo)
	api.HandleFunc("GET /export.csv", s.handleExport)
	mux.Handle("/api/", security.NoStore(api))
	mux.Handle("GET /export.csv", security.NoStore(api))

	if opts.Static != nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(opts.Static)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	}

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	var handler http.Handler = mux
	handler = s.withEditor(handler)
	handler = s.flagSuspicious(handler)
	handler = headers.Middleware(handler)
	handler = s.tracer.Middleware(handler)
	handler = log.Middleware(logger, trace.RequestIDFromRequest)(handler)
	handler = trace.WithRequestID(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// flagSuspicious logs scans for paths this app never serves; they still get
// the normal 404.
func (s *Server) flagSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				log.FieldPath, r.URL.Path,
				log.FieldClientIP, s.detector.ExtractClientIP(r))
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown stops the unlock limiter and drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.Server.Shutdown(ctx)
}

// Run serves until ctx is cancelled, then shuts down within timeout.
func (s *Server) Run(ctx context.Context, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.Addr)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.limiter.Stop()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
