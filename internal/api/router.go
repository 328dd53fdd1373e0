// Package api provides the HTTP surface of the bot: health, metrics and the
// provider OAuth callback.
package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"norelock.dev/nowplaying/bot/internal/api/handlers"
	appMiddleware "norelock.dev/nowplaying/bot/internal/api/middleware"
	"norelock.dev/nowplaying/bot/internal/services/system"
	"norelock.dev/nowplaying/bot/internal/utils"
)

// Router is the main HTTP router for the bot.
type Router struct {
	*chi.Mux
	logger *utils.Logger
}

// NewRouter creates a new API router.
func NewRouter(
	healthHandler *handlers.HealthHandler,
	linkHandler *handlers.LinkHandler,
	metrics *system.MetricsService,
	logger *utils.Logger,
) *Router {
	r := chi.NewRouter()
	apiLogger := logger.Named("api")

	recoveryMiddleware := appMiddleware.NewRecoveryMiddleware(apiLogger)
	loggerMiddleware := appMiddleware.NewLoggerMiddleware(apiLogger)

	r.Use(recoveryMiddleware.Recovery)
	r.Use(loggerMiddleware.Logger)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Heartbeat("/ping"))

	r.Get("/health", healthHandler.Check)
	r.Method("GET", "/metrics", metrics.Handler())

	// The linking surface only exists when an OAuth provider is configured.
	if linkHandler != nil {
		r.Route("/link", func(r chi.Router) {
			r.Get("/spotify/callback", linkHandler.SpotifyCallback)
		})
	}

	return &Router{
		Mux:    r,
		logger: apiLogger,
	}
}
