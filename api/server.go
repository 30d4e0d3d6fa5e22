/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/investments/*    Investment lifecycle
  /api/returns/*        Profit settlement
  /api/accruals/*       Batch accrual trigger and history
  /api/investors/*      Investor records
  /api/outlets/*        Outlet records
  /api/portfolio        Dashboard totals
  /api/reset            Database reset (dev only)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Investment routes
		r.Route("/investments", func(r chi.Router) {
			r.Get("/", h.ListInvestments)
			r.Post("/", h.CreateInvestment)
			r.Get("/{id}", h.GetInvestment)
			r.Put("/{id}", h.UpdateInvestment)
			r.Delete("/{id}", h.DeleteInvestment)
			r.Get("/{id}/summary", h.GetInvestmentSummary)
			r.Get("/{id}/returns", h.ListReturns)
			r.Get("/{id}/withdrawals", h.ListWithdrawals)
			r.Post("/{id}/withdrawals", h.CreateWithdrawal)
			r.Get("/{id}/audit", h.GetAuditTrail)
			r.Post("/{id}/status", h.OverrideInvestmentStatus)
		})

		// Return settlement routes
		r.Route("/returns", func(r chi.Router) {
			r.Post("/{id}/pay", h.PayReturn)
		})

		// Accrual routes
		r.Route("/accruals", func(r chi.Router) {
			r.Post("/run", h.RunAccrual)
			r.Get("/runs", h.ListAccrualRuns)
		})

		// Collaborator routes
		r.Route("/investors", func(r chi.Router) {
			r.Get("/", h.ListInvestors)
			r.Post("/", h.CreateInvestor)
		})
		r.Route("/outlets", func(r chi.Router) {
			r.Get("/", h.ListOutlets)
			r.Post("/", h.CreateOutlet)
		})

		// Portfolio dashboard
		r.Get("/portfolio", h.GetPortfolio)

		// Dev only
		r.Post("/reset", h.ResetDatabase)
	})

	return r
}
