package httpapi

import (
	"net/http"
	"time"

	"vibetunes/internal/http/handlers"
	"vibetunes/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type Options struct {
	Logger          zerolog.Logger
	AllowedOrigins  []string
	SubmitPerMinute int
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", app.CreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", app.GetSession)
			r.Delete("/", app.DeleteSession)
			r.Put("/mode", app.SelectMode)
			r.Post("/capture", app.Capture)
			r.Post("/upload", app.Upload)
			r.With(middleware.RateLimit(opts.SubmitPerMinute, time.Minute)).Post("/submit", app.Submit)
			r.Post("/try-again", app.TryAgain)
			r.Get("/preview", app.Preview)
			r.Get("/events", app.Events)
			r.Get("/camera", app.Camera)
		})
	})

	return r
}
