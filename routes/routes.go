package routes

import (
	"log/slog"
	"net/http"

	"github.com/Dosada05/pyramid-ladder/handlers"
	"github.com/Dosada05/pyramid-ladder/metrics"
	"github.com/Dosada05/pyramid-ladder/middleware"
	"github.com/Dosada05/pyramid-ladder/models"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"
)

// Deps collects everything the router needs.
type Deps struct {
	JWTSecret      []byte
	AllowedOrigins []string
	RateLimiter    *middleware.RateLimiter
	Metrics        *metrics.Metrics
	Logger         *slog.Logger

	Matches   *handlers.MatchHandler
	Scores    *handlers.ScoreHandler
	Pyramids  *handlers.PyramidHandler
	Admin     *handlers.AdminHandler
	WebSocket *handlers.WebSocketHandler
}

func SetupRoutes(router chi.Router, d Deps) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Language", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	router.Use(d.Metrics.Middleware)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	router.Handle("/metrics", d.Metrics.Handler())

	authenticate := middleware.Authenticate(d.JWTSecret, d.Logger)

	// Живые обновления: токен передаётся в ?token=, браузер не шлёт заголовки при апгрейде.
	router.With(authenticate).Get("/ws/pyramids/{pyramidID}", d.WebSocket.ServeWs)

	router.Route("/pyramids", func(r chi.Router) {
		// Публичное чтение лестницы
		r.Get("/", d.Pyramids.ListPyramids)
		r.Get("/{pyramidID}", d.Pyramids.GetPyramid)
		r.Get("/{pyramidID}/history", d.Pyramids.ListHistory)
		r.Get("/{pyramidID}/at", d.Pyramids.StandingsAt)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Get("/{pyramidID}/matches", d.Matches.ListMatches)
			r.With(d.RateLimiter.Middleware).Post("/{pyramidID}/matches", d.Matches.CreateChallenge)
		})
	})

	router.Route("/matches", func(r chi.Router) {
		r.Use(authenticate)

		r.Get("/{matchID}", d.Matches.GetMatch)
		r.Get("/{matchID}/score", d.Scores.GetScore)

		r.Group(func(r chi.Router) {
			r.Use(d.RateLimiter.Middleware)

			r.Post("/sweep", d.Matches.SweepExpired)
			r.Post("/{matchID}/accept", d.Matches.AcceptChallenge)
			r.Post("/{matchID}/reject", d.Matches.RejectChallenge)
			r.Post("/{matchID}/cancel", d.Matches.CancelChallenge)
			r.Post("/{matchID}/complete", d.Matches.CompleteMatch)

			r.Post("/{matchID}/score", d.Scores.StartScoring)
			r.Put("/{matchID}/score", d.Scores.SubmitScore)
			r.Post("/{matchID}/score/agreement", d.Scores.AgreeScore)
		})
	})

	router.Route("/admin", func(r chi.Router) {
		r.Use(authenticate)
		r.Use(middleware.Authorize(models.RoleAdmin))

		r.Post("/pyramids", d.Admin.CreatePyramid)
		r.Patch("/pyramids/{pyramidID}", d.Admin.UpdatePyramid)
		r.Put("/pyramids/{pyramidID}/positions", d.Admin.PlaceTeam)
		r.Delete("/pyramids/{pyramidID}/positions/{teamID}", d.Admin.RemoveTeam)
		r.Post("/pyramids/{pyramidID}/risky-check", d.Admin.RunRiskyCheck)
		r.Post("/pyramids/{pyramidID}/snapshots", d.Admin.ExportSnapshot)
	})
}
