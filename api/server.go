/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    Prometheus request counter and latency histogram
  5. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/houses/*         Membership, expenses, balances, polls per house
  /api/me/house         Caller's current house
  /api/expenses/*       Contributions toward one expense
  /api/polls/*          Poll results and voting
  /api/scenarios/*      Demo scenarios and database reset (dev only)
  /health               Liveness, including the database
  /metrics              Prometheus scrape endpoint

SECURITY NOTE:
  Authentication happens upstream; this router trusts X-User-ID. Do not
  expose it directly to the internet.

SEE ALSO:
  - handlers.go: Handler implementations
  - metrics.go: Collectors
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured. An empty
// allowedOrigins allows any origin.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(h.Metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", UserHeader},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)
	r.Handle("/metrics", h.Metrics.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		// House routes
		r.Route("/houses", func(r chi.Router) {
			r.Post("/", h.CreateHouse)
			r.Post("/join", h.JoinHouse)
			r.Post("/leave", h.LeaveHouse)

			r.Route("/{houseID}", func(r chi.Router) {
				r.Get("/", h.GetHouse)
				r.Get("/expenses", h.ListExpenses)
				r.Post("/expenses", h.CreateExpense)
				r.Get("/balances", h.GetBalances)
				r.Get("/summary", h.GetSummary)
				r.Get("/polls", h.ListPolls)
				r.Post("/polls", h.CreatePoll)
			})
		})

		r.Get("/me/house", h.MyHouse)

		// Expense routes
		r.Route("/expenses/{expenseID}", func(r chi.Router) {
			r.Get("/contributions", h.ListContributions)
			r.Post("/contributions", h.AddContribution)
		})

		// Poll routes
		r.Route("/polls/{pollID}", func(r chi.Router) {
			r.Get("/", h.GetPoll)
			r.Post("/votes", h.CastVote)
			r.Delete("/votes", h.RemoveVotes)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
