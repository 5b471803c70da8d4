package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/kidconnect/broadcast/internal/auth"
	"github.com/kidconnect/broadcast/internal/directory"
	"github.com/kidconnect/broadcast/internal/engine"
	"github.com/kidconnect/broadcast/internal/ledger"
)

// Deps collects everything the router needs. Pinger is optional; when nil,
// readiness skips the store check.
type Deps struct {
	Engine     *engine.Engine
	Directory  *directory.Directory
	Ledger     ledger.Ledger
	Pinger     Pinger
	Authorizer auth.Authorizer
	JWT        *auth.JWTService
	Log        zerolog.Logger
}

// NewRouter creates a chi.Mux with all routes, middleware, and handlers configured.
func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CorrelationIDMiddleware)
	r.Use(LoggingMiddleware(deps.Log))
	r.Use(RecoverMiddleware(deps.Log))

	// Health and metrics endpoints (no auth required)
	r.Get("/healthz", HealthHandler())
	r.Get("/readyz", ReadyHandler(deps.Pinger))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Login endpoint (no auth required)
	r.Post("/api/v1/login", LoginHandler(deps.Authorizer, deps.JWT))

	// API routes (auth required)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.JWTAuth(deps.JWT))

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RolePrincipal, auth.RoleStaff))
			r.Post("/broadcasts", BroadcastHandler(deps.Engine))
			r.Get("/log", LogHandler(deps.Ledger))
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RolePrincipal))
			r.Put("/roster", RosterHandler(deps.Directory))
			r.Put("/allowlist", AllowListHandler(deps.Directory))
		})
	})

	return r
}
