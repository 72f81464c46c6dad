// Package rest wires the chi router for the card metadata API.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	"cardvault/infrastructure/config"
	"cardvault/interfaces/http/rest/handlers"
	"cardvault/interfaces/http/rest/middleware"
	"cardvault/pkg/common"
)

// NewRouter builds the full HTTP surface: health probes plus the
// authenticated /api/v1 card routes.
func NewRouter(cfg *config.Config, cardHandler *handlers.CardHandler, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogger(logger))
	r.Use(httprate.LimitByIP(cfg.RateLimit, cfg.RateWindow))

	if cfg.EnableCORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		common.RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		common.RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	authenticator := middleware.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, logger)

	write := middleware.RequireScope("cards:write")

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authenticator.Middleware)

		r.Route("/cards", func(r chi.Router) {
			r.With(write).Post("/", cardHandler.CreateCard)
			r.Get("/", cardHandler.ListCards)
			r.Get("/search", cardHandler.SearchCards)

			r.Route("/{cardID}", func(r chi.Router) {
				r.Get("/", cardHandler.GetCard)
				r.With(write).Patch("/", cardHandler.PatchCard)
				r.With(write).Delete("/", cardHandler.DeleteCard)
				r.With(write).Post("/reprocess", cardHandler.ReprocessCard)
			})
		})

		r.With(write).Post("/uploads", cardHandler.RequestUpload)
	})

	return r
}
