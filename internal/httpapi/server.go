// Package httpapi provides the thin HTTP surface over the core operations.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"tondonate/internal/alerting"
	"tondonate/internal/config"
	"tondonate/internal/metrics"
	"tondonate/internal/price"
	"tondonate/internal/storage"
	"tondonate/internal/verify"
)

// Server is the HTTP server.
type Server struct {
	cfg      *config.Config
	oracle   *price.Oracle
	verifier *verify.Verifier
	store    storage.VerificationStore
	notifier alerting.Notifier
	logger   zerolog.Logger
	router   *chi.Mux
}

// New creates a new server. store and notifier may be nil; the affected
// endpoints degrade gracefully.
func New(cfg *config.Config, oracle *price.Oracle, verifier *verify.Verifier, store storage.VerificationStore, notifier alerting.Notifier, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		oracle:   oracle,
		verifier: verifier,
		store:    store,
		notifier: notifier,
		logger:   logger.With().Str("component", "httpapi").Logger(),
		router:   chi.NewRouter(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.RequestID)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)

	s.router.Use(rateLimiter(rateLimitConfig{
		RequestsPerMin: s.cfg.HTTP.RequestsPerMin,
		Burst:          s.cfg.HTTP.RateLimitBurst,
	}))

	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/config", s.handleConfig)
	s.router.Get("/rate", s.handleRate)
	s.router.Post("/verify", s.handleVerify)
	s.router.Post("/proof", s.handleProof)
	s.router.Get("/donations/recent", s.handleRecentDonations)
	s.router.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.router.Group(func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Post("/admin/approve", s.handleAdminApprove)
	})
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		})
	}
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := s.cfg.HTTP.AdminToken
		if token == "" {
			writeError(w, http.StatusForbidden, "admin endpoints disabled: http.admin_token not configured")
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+token {
			writeError(w, http.StatusUnauthorized, "invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
