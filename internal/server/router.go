package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/textmill/textmill/internal/api"
	"github.com/textmill/textmill/internal/api/handlers"
	"github.com/textmill/textmill/internal/api/middleware"
)

type RouterConfig struct {
	AuthValidator   middleware.AuthValidator
	ProjectHandler  *handlers.ProjectHandler
	DocumentHandler *handlers.DocumentHandler
	SearchHandler   *handlers.SearchHandler
	AuthHandler     *handlers.AuthHandler
	MaxBodyBytes    int64
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	maxBodyBytes := cfg.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = 25 * 1024 * 1024
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.AuthValidator))

		r.Route("/projects", func(r chi.Router) {
			r.Post("/", cfg.ProjectHandler.Create)
			r.Get("/", cfg.ProjectHandler.List)
			r.Get("/{id}", cfg.ProjectHandler.Get)
			r.Delete("/{id}", cfg.ProjectHandler.Delete)

			r.Route("/{projectID}/documents", func(r chi.Router) {
				r.Post("/", cfg.DocumentHandler.Upload)
				r.Get("/", cfg.DocumentHandler.List)
			})
		})

		r.Route("/documents", func(r chi.Router) {
			r.Get("/{id}", cfg.DocumentHandler.Get)
			r.Delete("/{id}", cfg.DocumentHandler.Delete)
			r.Get("/{id}/chunks", cfg.DocumentHandler.ListChunks)
			r.Post("/{id}/reprocess", cfg.DocumentHandler.Reprocess)
		})

		r.Post("/search", cfg.SearchHandler.Search)

		r.Get("/apikeys", cfg.AuthHandler.ListAPIKeys)
		r.Delete("/apikeys/{id}", cfg.AuthHandler.RevokeAPIKey)
	})

	r.Post("/apikeys", cfg.AuthHandler.CreateAPIKey)

	return r
}
