// Package api serves the local HTTP API that embedding consumers use to read
// the synced stores, drive the session and follow the change feed.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/stackitapp/stackit-sync/internal/ratelimit"
	"github.com/stackitapp/stackit-sync/internal/validation"
)

// Options configures the server.
type Options struct {
	CORSOrigins []string
	// Events serves the change feed at /events. Nil disables the route.
	Events http.Handler
	// Metrics serves the Prometheus exposition at /metrics. Nil disables the route.
	Metrics http.Handler
	// Observer records per-route request metrics. May be nil.
	Observer RequestObserver
	// SessionRPS limits sign-in and sign-up per client address. Zero uses 1 per second.
	SessionRPS float64
}

// RequestObserver records one served request.
type RequestObserver interface {
	ObserveAPI(method, route string, status int, elapsed time.Duration)
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	services       *Services
	router         *chi.Mux
	api            huma.API
	validator      *validation.Validator
	sessionLimiter *ratelimit.KeyedRateLimiter
	logger         *slog.Logger
}

// NewServer creates the server with all routes configured.
func NewServer(services *Services, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.SessionRPS <= 0 {
		opts.SessionRPS = 1
	}

	sessionLimiter := ratelimit.New(opts.SessionRPS, 5)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logger))
	if opts.Observer != nil {
		router.Use(observe(opts.Observer))
	}
	router.Use(limitWrites(sessionLimiter, "/api/v1/session", logger))
	if len(opts.CORSOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	if opts.Events != nil {
		router.Get("/events", opts.Events.ServeHTTP)
	}
	if opts.Metrics != nil {
		router.Get("/metrics", opts.Metrics.ServeHTTP)
	}

	humaConfig := huma.DefaultConfig("StackIt Sync API", "1.0.0")
	humaConfig.Info.Description = "Local access to the synced StackIt stores"
	api := humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s := &Server{
		services:       services,
		router:         router,
		api:            api,
		validator:      validation.New(),
		sessionLimiter: sessionLimiter,
		logger:         logger,
	}

	s.registerHealthRoutes()
	s.registerSessionRoutes()
	s.registerQuestionRoutes()
	s.registerAnswerRoutes()
	s.registerNotificationRoutes()
	s.registerTagRoutes()
	s.registerSearchRoutes()
	if services.Files != nil {
		s.registerFileRoutes()
	}

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API, mainly for OpenAPI export.
func (s *Server) API() huma.API { return s.api }

// Close releases background resources.
func (s *Server) Close() {
	s.sessionLimiter.Stop()
}
