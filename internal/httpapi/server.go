// Package httpapi exposes the registry and the ledger over HTTP/JSON.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jask/wbtrace/internal/service"
)

// DefaultAllowedOrigins are the add-in development origins.
var DefaultAllowedOrigins = []string{"https://localhost:3000", "http://localhost:3000"}

// Server wires HTTP routes to the services.
type Server struct {
	Registry    *service.Registry
	Ledger      *service.Ledger
	Maintenance *service.MaintenanceService
	Logger      *slog.Logger
	// Gatherer backs /metrics; the route is omitted when nil.
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	// StorageName is reported by the health endpoint.
	StorageName string
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	origins := s.AllowedOrigins
	if len(origins) == 0 {
		origins = DefaultAllowedOrigins
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", s.handleHealth)
	r.Route("/wb", func(r chi.Router) {
		r.Put("/upsert-model", s.handleUpsertModel)
		r.Get("/load-model", s.handleLoadModel)
		r.Post("/create-model-trace", s.handleCreateTrace)
		r.Post("/create-model-trace-batch", s.handleCreateTraceBatch)
		r.Get("/models", s.handleListModels)
		r.Get("/traces", s.handleListTraces)
		r.Get("/traces/{model_id}", s.handleListModelTraces)
	})
	if s.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger().InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
