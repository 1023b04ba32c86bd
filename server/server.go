// Package server exposes the install flow over HTTP: the install landing
// page, the provider callback, metrics and a health check.
package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goliatone/go-appinstall/adapters/gologger"
	"github.com/goliatone/go-appinstall/core"
	"github.com/goliatone/go-appinstall/metrics"
	"github.com/goliatone/go-appinstall/session"
	glog "github.com/goliatone/go-logger/glog"
)

//go:embed templates/*.html
var templateFS embed.FS

// SuccessBody is written for every callback that passes verification.
const SuccessBody = "OKAY"

// Installer is the slice of core.Service the handlers need.
type Installer interface {
	Config() core.Config
	BuildInstallURL(ctx context.Context, req core.InstallRequest, session core.SessionStore) (core.InstallResponse, error)
	Verify(ctx context.Context, params core.CallbackParams) bool
	CompleteInstall(ctx context.Context, params core.CallbackParams) (core.CommitResult, error)
}

// CompletionQueue defers the exchange and commit of a verified callback to
// a background worker.
type CompletionQueue interface {
	EnqueueCompleteInstall(ctx context.Context, params core.CallbackParams) error
}

type Server struct {
	installer Installer
	queue     CompletionQueue
	sessions  *session.Manager
	metrics   *metrics.Recorder
	logger    core.Logger
	templates *template.Template
	router    chi.Router
}

type Option func(*Server)

func WithMetrics(recorder *metrics.Recorder) Option {
	return func(s *Server) {
		s.metrics = recorder
	}
}

// WithCompletionQueue answers verified callbacks once they are queued. The
// exchange outcome is then only visible in logs and metrics.
func WithCompletionQueue(queue CompletionQueue) Option {
	return func(s *Server) {
		s.queue = queue
	}
}

// WithLoggerProvider resolves the server logger by name from provider.
func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(s *Server) {
		if provider != nil {
			s.logger = gologger.HTTPLogger(provider)
		}
	}
}

func New(installer Installer, sessions *session.Manager, opts ...Option) (*Server, error) {
	if installer == nil {
		return nil, errors.New("server: installer is required")
	}
	if sessions == nil {
		return nil, errors.New("server: session manager is required")
	}
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	s := &Server{
		installer: installer,
		sessions:  sessions,
		logger:    glog.Nop(),
		templates: tmpl,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware(routePattern))
	}

	callbackPath := s.installer.Config().CallbackPath
	if strings.TrimSpace(callbackPath) == "" {
		callbackPath = core.DefaultConfig().CallbackPath
	}

	r.Get("/install", s.handleInstall)
	r.Get(callbackPath, s.handleCallback)
	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return r
}

type installPage struct {
	ServiceName string
	Shop        string
	URL         template.URL
}

func (s *Server) handleInstall(w http.ResponseWriter, r *http.Request) {
	cfg := s.installer.Config()
	shop := strings.TrimSpace(r.URL.Query().Get("shop"))
	if shop == "" {
		shop = cfg.DefaultShop
	}

	sess := s.sessions.Load(w, r)
	response, err := s.installer.BuildInstallURL(r.Context(), core.InstallRequest{
		AccountName: shop,
		Host:        r.Host,
	}, sess)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = s.templates.ExecuteTemplate(w, "install.html", installPage{
		ServiceName: cfg.ServiceName,
		Shop:        shop,
		URL:         template.URL(response.URL),
	})
	if err != nil {
		s.logger.Error("render install page failed", "error", err)
	}
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	params := core.NewCallbackParams(r.URL.Query())
	if s.queue != nil {
		s.enqueueCallback(w, r, params)
		return
	}
	result, err := s.installer.CompleteInstall(r.Context(), params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !result.Succeeded() && s.installer.Config().StrictCommit {
		http.Error(w, "install failed: "+string(result.Reason), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(SuccessBody))
}

func (s *Server) enqueueCallback(w http.ResponseWriter, r *http.Request, params core.CallbackParams) {
	if !s.installer.Verify(r.Context(), params) {
		s.writeError(w, r, core.ErrCallbackForbidden)
		return
	}
	if err := params.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.queue.EnqueueCompleteInstall(r.Context(), params); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(SuccessBody))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	mapped := core.MapError(err)
	status := http.StatusInternalServerError
	message := http.StatusText(status)
	if mapped != nil {
		status = mapped.Code
		if status < 500 {
			message = http.StatusText(status)
		}
	}
	if status >= 500 {
		s.logger.Error("request failed",
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"status_code", status,
			"error", err,
		)
	}
	http.Error(w, message, status)
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests for up to shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}
