package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"viba/internal/http/handlers"
	"viba/internal/infra"
	"viba/internal/middleware"
)

func NewRouter(app *handlers.App, cfg *infra.Config, logger infra.Logger) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health
	r.Get("/v1/healthz", app.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AuthJWT(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute))

		r.Route("/generations", func(r chi.Router) {
			r.Post("/derivations", app.GenerateDerivations)
			r.Post("/avatar", app.TrainAvatar)
			r.Post("/try-on", app.TryOn)
			r.Post("/swap", app.Swap)
		})

		r.Route("/history", func(r chi.Router) {
			r.Post("/", app.HistoryCreate)
			r.Get("/", app.HistoryList)
			r.Get("/{id}", app.HistoryGet)
			r.Delete("/{id}", app.HistoryDelete)
			r.Get("/{id}/download", app.HistoryDownload)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", app.JobsList)
			r.Get("/{id}", app.JobGet)
			r.Post("/{id}/retry", app.JobRetry)
			r.Delete("/{id}", app.JobDelete)
		})
	})

	return r
}
