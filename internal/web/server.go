// Package web provides the HTTP API for building forms and collecting
// submissions.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/JonMunkholm/formsvc/internal/config"
	"github.com/JonMunkholm/formsvc/internal/core"
	"github.com/JonMunkholm/formsvc/internal/metrics"
	mw "github.com/JonMunkholm/formsvc/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// RequestIDHeader is read from incoming requests and echoed on responses.
const RequestIDHeader = "X-Request-ID"

// Server is the HTTP server for the forms service.
type Server struct {
	service *core.Service
	cfg     *config.Config
	metrics *metrics.Registry
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a Server. reg may be nil, in which case /metrics is not
// served and no request metrics are recorded.
func NewServer(service *core.Service, cfg *config.Config, reg *metrics.Registry) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		metrics: reg,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(requestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware)
	}
	s.router.Use(securityHeaders)
	s.router.Use(middleware.Compress(5, "application/json"))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	var adminLimit, publicLimit *mw.RateLimiter
	if s.cfg.Rate.Enabled {
		adminLimit = mw.NewRateLimiter(s.cfg.Rate.AdminPerMinute, s.cfg.Rate.Burst)
		publicLimit = mw.NewRateLimiter(s.cfg.Rate.SubmitPerMinute, s.cfg.Rate.Burst)
	}

	s.router.Get("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	timeout := middleware.Timeout(s.cfg.Server.RequestTimeout)

	s.router.Route("/api/admin/forms", func(r chi.Router) {
		r.Use(mw.AdminToken(s.cfg.Security.AdminToken))
		r.Use(mw.RateLimit(adminLimit))

		r.With(timeout).Get("/", s.handleListForms)
		r.With(timeout).Post("/", s.handleCreateForm)

		r.Route("/{formID}", func(r chi.Router) {
			// Exports stream for as long as the data takes and skip the
			// request timeout.
			r.Get("/export.csv", s.handleExportCSV)

			r.Group(func(r chi.Router) {
				r.Use(timeout)
				r.Get("/", s.handleGetForm)
				r.Put("/", s.handleUpdateForm)
				r.Delete("/", s.handleDeleteForm)
				r.Put("/fields", s.handleReplaceFields)
				r.Post("/publish", s.handlePublishForm)
				r.Get("/submissions", s.handleListSubmissions)
				r.Get("/submissions/{submissionID}", s.handleGetSubmission)
			})
		})
	})

	s.router.Route("/api/f/{slug}", func(r chi.Router) {
		r.Use(mw.RateLimit(publicLimit))
		r.Use(timeout)

		r.Get("/", s.handlePublicForm)
		r.Post("/submit", s.handleSubmit)
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, r, core.NotFoundf("route not found"))
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.respondStatus(w, r, http.StatusMethodNotAllowed, core.Validationf("method not allowed"))
	})
}

// Start begins listening for HTTP requests on the configured address.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.service.Ping(ctx); err != nil {
		s.respondStatus(w, r, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// requestID stores a request id in the context the way chi's RequestID does,
// but accepts a caller supplied X-Request-ID and otherwise generates a UUID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// securityHeaders adds security headers to all responses. The API serves
// JSON and CSV only, so nothing may be loaded or framed.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
