package httpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"github.com/sirupsen/logrus"

	"taskadmin/admin-console/internal/config"
	"taskadmin/admin-console/internal/console"
	"taskadmin/admin-console/internal/migrations"
	"taskadmin/admin-console/internal/pages"
	"taskadmin/admin-console/internal/sessionstore"
)

const (
	serviceName    = "admin-console-api"
	serviceVersion = "0.3.0"
)

// Console is the session state machine driven by the console endpoints.
type Console interface {
	Initialize(ctx context.Context, s *console.Session, params console.Params) *console.Session
	SubmitCredentials(ctx context.Context, s *console.Session, params console.Params, username, password string) error
	Navigate(ctx context.Context, s *console.Session, params console.Params, page string) error
	Logout(ctx context.Context, s *console.Session, params console.Params)
}

type PageRouter interface {
	Render(ctx context.Context, env pages.Env) (pages.View, error)
	Act(ctx context.Context, env pages.Env, name string) (pages.View, error)
}

// Readiness reports whether the database answers and how its pool is used.
type Readiness interface {
	IsConnected(ctx context.Context) bool
	Stats() sql.DBStats
}

type MigrationService interface {
	List() ([]migrations.FileInfo, error)
	Status(ctx context.Context) ([]migrations.Status, error)
	MarkApplied(ctx context.Context, name string, appliedAt time.Time) error
}

type AuditLogger interface {
	Log(actor, action, target, outcome, detail string) error
}

type Deps struct {
	Console    Console
	Pages      PageRouter
	States     sessionstore.Store
	Cookies    sessions.Store
	DB         Readiness
	Migrations MigrationService
	Audit      AuditLogger
	Logger     logrus.FieldLogger

	// CookieSecure marks the context cookie Secure.
	CookieSecure bool
	// CookieMaxAge is the context cookie lifetime in seconds.
	CookieMaxAge int
}

type Server struct {
	httpServer *http.Server
}

func New(cfg config.HTTPConfig, deps Deps) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      NewHandler(deps),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
	}
}

type handler struct {
	Deps
	log      logrus.FieldLogger
	nowFunc  func() time.Time
	contexts contextLocks
}

func NewHandler(deps Deps) http.Handler {
	log := deps.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	h := &handler{Deps: deps, log: log.WithField("component", "http"), nowFunc: time.Now}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestIDMiddleware)
	r.Use(h.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(bodySizeLimitMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", h.handleReady)
	r.Get("/v1/info", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"service": serviceName,
			"version": serviceVersion,
		})
	})

	r.Route("/v1/console", func(r chi.Router) {
		r.Get("/", h.handleConsole)
		r.Post("/login", h.handleLogin)
		r.Post("/navigate", h.handleNavigate)
		r.Post("/logout", h.handleLogout)
		r.Post("/actions/{action}", h.handleAction)
	})

	r.Route("/v1/system/migrations", func(r chi.Router) {
		r.Get("/", h.handleMigrationList)
		r.Get("/status", h.handleMigrationStatus)
		r.Post("/{name}/apply", h.handleMigrationMarkApplied)
	})

	return r
}

func (h *handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.DB == nil || !h.DB.IsConnected(r.Context()) {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	st := h.DB.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"pool": map[string]int{
			"open":   st.OpenConnections,
			"in_use": st.InUse,
			"idle":   st.Idle,
		},
	})
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
