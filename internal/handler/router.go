package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rating-service/internal/metrics"
	"rating-service/internal/util"
)

// HealthChecker reports whether the backing stores are reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type RouterConfig struct {
	Submissions *SubmissionHandler
	Stats       *StatsHandler
	Maintenance *MaintenanceHandler
	Health      HealthChecker

	AllowedOrigins    []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(cfg RouterConfig) chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(LoggerMiddleware)
	router.Use(middleware.Recoverer)
	router.Use(SecurityHeaders)
	router.Use(middleware.Timeout(30 * time.Second))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	router.Get("/health", healthHandler(cfg.Health))
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimitRequests > 0 {
			r.Use(httprate.LimitByRealIP(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}
		if cfg.Submissions != nil {
			cfg.Submissions.RegisterRoutes(r)
		}
		if cfg.Stats != nil {
			cfg.Stats.RegisterRoutes(r)
		}
		if cfg.Maintenance != nil {
			cfg.Maintenance.RegisterRoutes(r)
		}
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"error":"endpoint not found"}`))
	})

	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		w.Write([]byte(`{"success":false,"error":"method not allowed"}`))
	})

	return router
}

func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			if err := checker.HealthCheck(ctx); err != nil {
				respondWithError(w, http.StatusServiceUnavailable, err, "Service unhealthy")
				return
			}
		}
		respondWithJSON(w, http.StatusOK, successResponse(map[string]string{
			"status":  "healthy",
			"service": "rating-service",
		}, ""))
	}
}

// SecurityHeaders sets the headers every response carries.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// LoggerMiddleware logs every request and records its latency. The client
// address is not logged so that log lines cannot be joined with identities.
func LoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			duration := time.Since(start)

			metrics.RecordAPIRequest(r.Method, route, status, duration)
			util.Info("HTTP request",
				util.String("method", r.Method),
				util.String("route", route),
				util.Int("status", status),
				util.Duration("duration", duration),
				util.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
