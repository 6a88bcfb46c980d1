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
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. zerolog:    Structured request logging
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/orders/*       Work order lifecycle and payments
  /api/assignments/*  Worker assignments and review
  /api/batches/*      Service batches
  /api/items/*        Batch item review
  /api/workers/*      Worker registry and earnings
  /api/debts/*        Receivables
  /api/scenarios/*    Demo scenarios
  /api/reset          Database reset (dev only)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Work order routes
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.ListWorkOrders)
			r.Post("/", h.CreateWorkOrder)
			r.Get("/{id}", h.GetWorkOrder)
			r.Put("/{id}/items", h.UpdateLineItems)
			r.Delete("/{id}", h.DeleteWorkOrder)
			r.Post("/{id}/payments", h.RecordOrderPayment)
			r.Post("/{id}/deliver", h.DeliverWorkOrder)
			r.Get("/{id}/status", h.GetOrderStatus)
			r.Get("/{id}/debt", h.GetOrderDebt)
			r.Get("/{id}/assignments", h.GetOrderAssignments)
			r.Get("/{id}/batches", h.GetOrderBatches)
		})

		// Assignment routes
		r.Route("/assignments", func(r chi.Router) {
			r.Post("/", h.AssignWorkers)
			r.Post("/{id}/approve", h.ApproveAssignment)
			r.Post("/{id}/reject", h.RejectAssignment)
			r.Post("/{id}/transition", h.TransitionAssignment)
		})

		// Batch routes
		r.Route("/batches", func(r chi.Router) {
			r.Get("/{id}", h.GetBatch)
			r.Post("/{id}/payments", h.RecordBatchPayment)
		})

		// Item routes
		r.Route("/items", func(r chi.Router) {
			r.Post("/{id}/review", h.ReviewItem)
			r.Post("/{id}/transition", h.TransitionItem)
		})

		// Worker routes
		r.Route("/workers", func(r chi.Router) {
			r.Get("/", h.ListWorkers)
			r.Post("/", h.CreateWorker)
			r.Get("/{id}", h.GetWorker)
			r.Post("/{id}/period-reset", h.PeriodReset)
		})

		// Debt routes
		r.Route("/debts", func(r chi.Router) {
			r.Get("/{id}", h.GetDebt)
			r.Post("/{id}/payments", h.RecordDebtPayment)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})

		r.Post("/reset", h.ResetDatabase)
	})

	return r
}

// requestLogger logs one line per request with method, path, status and
// latency.
func requestLogger(h *Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			h.Log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("elapsed", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		})
	}
}
