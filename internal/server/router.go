package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/saasplatform/backend/internal/handler"
	appMiddleware "github.com/saasplatform/backend/internal/middleware"
	"github.com/saasplatform/backend/internal/ws"
)

// Routes holds everything the HTTP surface dispatches to.
type Routes struct {
	Auth          appMiddleware.TokenVerifier
	Subscriptions *handler.SubscriptionHandler
	Deployments   *handler.DeploymentHandler
	Health        *handler.HealthHandler
	Hub           *ws.DeploymentHandler
	// Metrics serves /metrics when set.
	Metrics     http.Handler
	RateLimiter *appMiddleware.RateLimiter
	CORSOrigins []string
	Logger      *zap.Logger
}

// NewRouter builds the chi router for the API, the deployment hub and health endpoints.
func NewRouter(rt Routes) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(appMiddleware.Recovery(rt.Logger))
	r.Use(appMiddleware.Logger(rt.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if rt.RateLimiter != nil {
		r.Use(rt.RateLimiter.Middleware())
	}

	r.Get("/health", rt.Health.Check)
	if rt.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.Metrics)
	}

	// Admin API routes
	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.Auth(rt.Auth))
		r.Use(appMiddleware.AdminOnly)

		r.Get("/api/subscriptions", rt.Subscriptions.List)
		r.Post("/api/subscriptions", rt.Subscriptions.Create)
		r.Get("/api/subscriptions/{id}", rt.Subscriptions.Get)
		r.Put("/api/subscriptions/{id}/status", rt.Subscriptions.UpdateStatus)
		r.Delete("/api/subscriptions/{id}", rt.Subscriptions.Delete)
		r.Post("/api/subscriptions/{id}/deploy", rt.Subscriptions.Deploy)

		r.Get("/api/deployments/{deploymentId}/status", rt.Deployments.Status)
		r.Post("/api/deployments/{deploymentId}/cancel", rt.Deployments.Cancel)
	})

	// WebSocket deployment hub (auth via query param)
	r.HandleFunc("/hubs/deployment", rt.Hub.Handle)

	return r
}
