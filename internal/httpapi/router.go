// Package httpapi assembles the REST surface of the render pipeline.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"recap/internal/httpapi/handlers"
	"recap/internal/httpkit"
	"recap/internal/pkg/logger"
	"recap/internal/pkg/middleware"
)

func NewRouter(d handlers.Deps, log *logger.Logger, corsOrigins []string) http.Handler {
	if log == nil {
		log = logger.NewDefault()
	}
	h := handlers.New(d)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logging(log))

	if len(corsOrigins) > 0 {
		r.Use(httpkit.CORS(httpkit.CORSOptions{
			AllowedOrigins:   corsOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "Authorization", handlers.OrganizationHeader},
			AllowCredentials: false,
			MaxAgeSeconds:    600,
		}))
	}

	r.Get("/health", h.Health)

	// Signed downloads carry authorization in the URL itself.
	r.Get("/artifacts/*", middleware.WrapHandler(log, h.StreamArtifact))

	r.Route("/api", func(r chi.Router) {
		r.Use(handlers.RequireOrganization)

		r.Route("/renders", func(r chi.Router) {
			r.Post("/", middleware.WrapHandler(log, h.CreateRender))
			r.Get("/", middleware.WrapHandler(log, h.ListRenders))
			r.Get("/{jobID}", middleware.WrapHandler(log, h.GetRender))
			r.Delete("/{jobID}", middleware.WrapHandler(log, h.DeleteRender))
			r.Get("/{jobID}/download", middleware.WrapHandler(log, h.DownloadRender))
		})

		r.Get("/templates", middleware.WrapHandler(log, h.ListTemplates))
	})

	return r
}
