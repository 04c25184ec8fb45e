// Package api assembles the HTTP surface: global middleware, JWT auth, and
// one route group per service.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loceval/loceval/internal/api/handlers"
	"github.com/loceval/loceval/internal/api/middleware"
	"github.com/loceval/loceval/internal/auth"
	"github.com/loceval/loceval/internal/config"
	"github.com/loceval/loceval/internal/evaluation"
	"github.com/loceval/loceval/internal/prompt"
	"github.com/loceval/loceval/internal/testset"
)

// Deps carries the constructed services into the router. Services are built in
// main so the worker process can reuse the same wiring without HTTP.
type Deps struct {
	DB       *pgxpool.Pool
	Cache    handlers.Pinger
	Cfg      *config.Config
	Prompts  *prompt.Service
	Evals    *evaluation.Service
	Sessions *evaluation.SessionService
	TestSets *testset.Service
}

func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	health := handlers.NewHealthHandler(deps.DB, deps.Cache)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	jwt := auth.NewJWTMiddleware(deps.Cfg.Auth.JWTSecret)

	promptH := handlers.NewPromptHandler(deps.Prompts)
	evalH := handlers.NewEvaluationHandler(deps.Evals)
	sessionH := handlers.NewSessionHandler(deps.Sessions)
	testSetH := handlers.NewTestSetHandler(deps.TestSets)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(jwt.Authenticate)

		r.Route("/prompts", func(r chi.Router) {
			r.Post("/", promptH.Create)
			r.Get("/", promptH.List)
			r.Get("/production", promptH.Production)
			r.Get("/{id}", promptH.Get)
			r.Delete("/{id}", promptH.Delete)
			r.Post("/{id}/versions", promptH.Save)
			r.Get("/{id}/versions", promptH.Chain)
			r.Get("/{id}/history", promptH.History)
			r.Post("/{id}/restore", promptH.Restore)
		})

		r.Route("/evaluations", func(r chi.Router) {
			r.Post("/", evalH.Submit)
			r.Get("/", evalH.List)
			r.Get("/{id}", evalH.Get)
			r.Get("/{id}/status", evalH.Status)
			r.Get("/{id}/results", evalH.Results)
			r.Post("/{id}/judge", evalH.TriggerJudge)
			r.Delete("/{id}/judge", evalH.ResetJudge)
		})

		r.Patch("/results/{id}/score", evalH.UpdateManualScore)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionH.Save)
			r.Get("/", sessionH.List)
			r.Get("/{id}", sessionH.Get)
			r.Delete("/{id}", sessionH.Delete)
		})

		r.Route("/testsets", func(r chi.Router) {
			r.Post("/", testSetH.Upload)
			r.Get("/", testSetH.List)
			r.Get("/{id}/rows", testSetH.Rows)
		})
	})

	return r
}
