// Package api provides the HTTP API server and handlers for the Relove
// marketplace: catalog, bags, reservations, checkout and the availability
// stream.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/reloveapp/relove-server/internal/sse"
	"github.com/reloveapp/relove-server/internal/store"
	"github.com/reloveapp/relove-server/internal/validation"
)

// Version is the API version reported in the OpenAPI document.
const Version = "1.0.0"

// Server holds dependencies for HTTP handlers.
type Server struct {
	store           *store.Store
	services        Services
	validator       *validation.Validator
	sseManager      *sse.Manager
	router          *chi.Mux
	api             huma.API
	logger          *slog.Logger
	corsOrigins     []string
	authRateLimiter *RateLimiter
}

// ServerOption customizes a Server.
type ServerOption func(*Server)

// WithCORSOrigins overrides the allowed CORS origins (default "*").
func WithCORSOrigins(origins []string) ServerOption {
	return func(s *Server) {
		if len(origins) > 0 {
			s.corsOrigins = origins
		}
	}
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(st *store.Store, services Services, sseManager *sse.Manager, logger *slog.Logger, opts ...ServerOption) *Server {
	router := chi.NewRouter()

	humaConfig := huma.DefaultConfig("Relove API", Version)
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	s := &Server{
		store:           st,
		services:        services,
		validator:       validation.New(),
		sseManager:      sseManager,
		router:          router,
		logger:          logger,
		corsOrigins:     []string{"*"},
		authRateLimiter: NewRateLimiter(100, time.Minute, 50),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupMiddleware()
	s.api = humachi.New(router, humaConfig)
	RegisterErrorHandler()
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures the middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	s.router.Use(authMiddleware(s.services.Identity))
}

// setupRoutes registers all route groups.
func (s *Server) setupRoutes() {
	s.registerHealthRoutes()
	s.registerAuthRoutes()
	s.registerProductRoutes()
	s.registerBagRoutes()
	s.registerViewerRoutes()
	s.registerAvailabilityRoutes()
	s.registerCheckoutRoutes()
}

// === Health ===

// HealthResponse reports server liveness.
type HealthResponse struct {
	Status string `json:"status" doc:"Server status"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"System"},
	}, func(_ context.Context, _ *struct{}) (*HealthOutput, error) {
		return &HealthOutput{Body: HealthResponse{Status: "healthy"}}, nil
	})
}
