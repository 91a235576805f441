// Package httpapi exposes the enrichment service over HTTP: interactive
// enrichment, market comparison, profile reads, health, and metrics.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/marketlens/market-enrich/pkg/logging"
	"github.com/marketlens/market-enrich/pkg/metrics"
	"github.com/marketlens/market-enrich/pkg/orchestrate"
	"github.com/marketlens/market-enrich/pkg/ranking"
)

// Server holds the handler dependencies.
type Server struct {
	service *orchestrate.Service
	engine  *ranking.Engine
	store   ranking.Store
	logger  zerolog.Logger
}

// NewServer creates the HTTP surface over the orchestrator, the ranking
// engine, and the latest-record read side of the feature store.
func NewServer(service *orchestrate.Service, engine *ranking.Engine, store ranking.Store) *Server {
	if service == nil || engine == nil || store == nil {
		panic("service, engine, and store are required")
	}
	return &Server{
		service: service,
		engine:  engine,
		store:   store,
		logger:  logging.NewLogger("http"),
	}
}

// Router builds the route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1/markets", func(r chi.Router) {
		r.Post("/enrich", s.handleEnrich)
		r.Post("/compare", s.handleCompare)
		r.Post("/profile", s.handleProfile)
	})

	return r
}
