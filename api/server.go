/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:      Unique ID per request for tracing
  2. RealIP:         Client address behind a proxy
  3. RequestLogger:  One slog line per request
  4. Recoverer:      Panic recovery (500 instead of crash)
  5. Metrics:        Prometheus counters/histograms (when enabled)
  6. CORS:           Cross-origin requests for the front end

ROUTE GROUPS:
  /healthz, /readyz     Liveness and readiness
  /metrics              Prometheus scrape endpoint
  /api/expenses/*       Fixed and variable expenses, monthly breakdown
  /api/payroll/*        Payroll months, records, import, statement
  /api/payments/*       Payment removal
  /api/employees/*      Identity directory
  /api/scenarios/*      Demo scenarios

SECURITY NOTE:
  No authentication middleware. Run behind an authenticating proxy.

SEE ALSO:
  - handlers.go, payroll.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions tunes NewRouter. The zero value allows the local dev
// front ends and serves no metrics.
type RouterOptions struct {
	CORSOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:3000"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(h.Metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/expenses", func(r chi.Router) {
			r.Route("/fixed", func(r chi.Router) {
				r.Get("/", h.ListDefinitions)
				r.Post("/", h.CreateDefinition)
				r.Get("/{id}", h.GetDefinition)
				r.Post("/{id}/rates", h.SetAmount)
				r.Get("/{id}/resolve", h.ResolveAmount)
				r.Post("/{id}/deactivate", h.DeactivateDefinition)
			})
			r.Route("/variable", func(r chi.Router) {
				r.Get("/", h.ListVariable)
				r.Post("/", h.CreateVariable)
				r.Delete("/{id}", h.DeleteVariable)
			})
			r.Get("/{year}/{month}", h.Breakdown)
		})

		r.Route("/payroll", func(r chi.Router) {
			r.Get("/months", h.ListPayrollMonths)
			r.Route("/records/{id}", func(r chi.Router) {
				r.Get("/", h.GetPayrollRecord)
				r.Patch("/", h.CorrectPayrollRecord)
				r.Get("/payments", h.ListPayments)
				r.Post("/payments", h.RecordPayment)
			})
			r.Route("/{year}/{month}", func(r chi.Router) {
				r.Get("/", h.GetPayrollMonth)
				r.Delete("/", h.DeletePayrollMonth)
				r.Post("/import", h.ImportPayroll)
				r.Get("/statement.pdf", h.PayrollStatement)
			})
		})

		r.Delete("/payments/{id}", h.DeletePayment)

		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// RequestLogger logs one line per request at Info, or Warn for 5xx.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
