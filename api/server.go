/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Lightweight, context-based, RESTful route patterns.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. requestLogger: Structured request logging through zap
  4. CORS:       Cross-origin requests for the back-office frontend

ROUTE GROUPS:
  /api/dispense/*   Dispense event submission and lifecycle
  /api/records/*    Journey records, checkpoints, verification
  /api/health       Liveness
  /metrics          Prometheus scrape endpoint

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/fueld: Server startup and shutdown
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8090"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/dispense", func(r chi.Router) {
			r.Post("/", h.SubmitDispense)
			r.Get("/", h.ListDispenseEvents)
			r.Get("/{id}", h.GetDispenseEvent)
			r.Post("/{id}/link", h.LinkDispenseEvent)
			r.Post("/{id}/reject", h.RejectDispenseEvent)
			r.Post("/{id}/resolve", h.ResolveRejection)
			r.Post("/{id}/reenter", h.ReenterDispenseEvent)
		})

		r.Route("/records", func(r chi.Router) {
			r.Post("/", h.CreateRecord)
			r.Get("/", h.ListRecords)
			r.Get("/verify", h.VerifyBalances)
			r.Get("/{id}", h.GetRecord)
			r.Post("/{id}/checkpoints", h.PostCheckpoint)
			r.Post("/{id}/return-do", h.AttachReturnDO)
			r.Post("/{id}/cancel", h.CancelRecord)
			r.Delete("/{id}", h.SoftDeleteRecord)
		})
	})

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// requestLogger logs one structured line per request.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("requestId", middleware.GetReqID(r.Context())))
		})
	}
}
