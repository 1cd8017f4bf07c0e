// Package httpapi exposes the authentication flows over HTTP/JSON.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/auth"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options configures the router.
type Options struct {
	AllowedOrigins     []string
	RequireLiveSession bool
	// Ping reports store reachability for /health. Nil means always healthy.
	Ping func(ctx context.Context) error
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

type Server struct {
	auth        *services.AuthService
	codec       *auth.Codec
	logger      logging.Logger
	ping        func(ctx context.Context) error
	gatherer    prometheus.Gatherer
	origins     []string
	liveSession bool
}

func New(svc *services.AuthService, codec *auth.Codec, logger logging.Logger, o Options) *Server {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Server{
		auth:        svc,
		codec:       codec,
		logger:      logger.With("module", "http_api"),
		ping:        o.Ping,
		gatherer:    o.Gatherer,
		origins:     o.AllowedOrigins,
		liveSession: o.RequireLiveSession,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", sessionHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/otp/request", s.handleRequestOTP)
		r.Post("/otp/verify", s.handleVerifyOTP)
		r.Post("/face/verify", s.handleFaceVerify)
		r.Post("/refresh", s.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(s.requireRole())
			r.Post("/logout", s.handleLogout)
			r.Get("/me", s.handleMe)
			r.Put("/me/face", s.handleEnrollFace)
			r.Post("/me/password", s.handleChangePassword)
		})
	})

	r.With(s.requireRole(models.RoleAdmin)).Get("/api/admin/users/{id}", s.handleGetUser)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			s.logger.Warn(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// logRequests writes one access log line per request and tags the request
// context so downstream log entries carry the same request id.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		r = r.WithContext(logging.WithRequestID(r.Context(), middleware.GetReqID(r.Context())))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			s.logger.Info(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
