// Package orchestrate implements the cache-hit/miss/refresh decision policy:
// the synchronous orchestrator serving interactive requests, the asynchronous
// batch refresh worker, and the scheduled seeder. All three share the same
// idempotent overwrite write path keyed by the cache key.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/marketlens/market-enrich/pkg/cache"
	"github.com/marketlens/market-enrich/pkg/logging"
	"github.com/marketlens/market-enrich/pkg/market"
	"github.com/marketlens/market-enrich/pkg/queue"
)

var enrichRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "enrich_requests_total",
	Help: "Interactive enrichment requests by outcome",
}, []string{"outcome"}) // "cached", "live", "invalid", "gateway_error", "store_error"

// FeatureStore is the persistent key-value store consumed by orchestration.
// Reads of expired records behave as misses.
type FeatureStore interface {
	Get(ctx context.Context, key cache.Key) (*cache.FeatureRecord, error)
	Put(ctx context.Context, key cache.Key, rec *cache.FeatureRecord, ttl time.Duration) error
}

// Gateway is the external enrichment provider.
type Gateway interface {
	Enrich(ctx context.Context, d market.Descriptor, radiusMiles float64, variables []string, includeGeometry bool) (*cache.FeatureRecord, error)
}

// Dispatcher accepts refresh requests for out-of-band processing.
type Dispatcher interface {
	Enqueue(ctx context.Context, req queue.RefreshRequest) error
}

// Freshness tags where a returned record came from.
type Freshness string

const (
	// FreshnessCached marks records served from the feature store.
	FreshnessCached Freshness = "cached"

	// FreshnessLive marks records from a fresh provider call.
	FreshnessLive Freshness = "live"
)

// HandleRequest is one interactive enrichment request.
type HandleRequest struct {
	MarketID        string
	RadiusMiles     float64  // 0 means the default radius of 1
	Variables       []string // nil means market.DefaultVariables
	IncludeGeometry bool
	ForceRefresh    bool
}

// Service is the synchronous orchestrator. Each invocation performs at most
// one store write, one enqueue, and one outbound provider call.
type Service struct {
	store      FeatureStore
	gateway    Gateway
	dispatcher Dispatcher
	ttl        time.Duration
	logger     zerolog.Logger
}

// NewService creates a synchronous orchestrator. All collaborators are
// injected so tests can substitute in-memory fakes.
func NewService(store FeatureStore, gateway Gateway, dispatcher Dispatcher) *Service {
	if store == nil || gateway == nil || dispatcher == nil {
		panic("store, gateway, and dispatcher are required")
	}
	return &Service{
		store:      store,
		gateway:    gateway,
		dispatcher: dispatcher,
		ttl:        cache.DefaultTTL,
		logger:     logging.NewLogger("orchestrator"),
	}
}

// Handle serves one interactive request.
//
// A fresh cached record short-circuits with no side effects. On a miss (or
// forced refresh) the same request is first enqueued as a consistency
// backstop, then answered with a live provider call whose result is written
// back under the cache key. A failed enqueue never fails the request; a
// failed provider call does.
func (s *Service) Handle(ctx context.Context, req HandleRequest) (*cache.FeatureRecord, Freshness, error) {
	if req.MarketID == "" {
		enrichRequestsTotal.WithLabelValues("invalid").Inc()
		return nil, "", fmt.Errorf("%w: market_id required", ErrInvalidRequest)
	}

	radius := req.RadiusMiles
	if radius == 0 {
		radius = 1
	}
	variables := req.Variables
	if len(variables) == 0 {
		variables = market.DefaultVariables
	}

	key, err := cache.Derive(req.MarketID, radius, variables)
	if err != nil {
		enrichRequestsTotal.WithLabelValues("invalid").Inc()
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if !req.ForceRefresh {
		rec, err := s.store.Get(ctx, key)
		switch {
		case err == nil:
			enrichRequestsTotal.WithLabelValues("cached").Inc()
			s.logger.Debug().
				Str("market_id", req.MarketID).
				Str("freshness", string(FreshnessCached)).
				Msg("Cache hit")
			return rec, FreshnessCached, nil
		case errors.Is(err, cache.ErrCacheMiss):
			// Fall through to the live path.
		default:
			enrichRequestsTotal.WithLabelValues("store_error").Inc()
			return nil, "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	// Backstop enqueue: a later worker pass repeats this enrichment and
	// repairs the cached value even if the synchronous write below is lost.
	// Best effort only.
	if err := s.dispatcher.Enqueue(ctx, queue.RefreshRequest{
		MarketID:        req.MarketID,
		RadiusMiles:     radius,
		Variables:       variables,
		IncludeGeometry: req.IncludeGeometry,
	}); err != nil {
		s.logger.Warn().Err(err).
			Str("market_id", req.MarketID).
			Msg("Backstop enqueue failed, continuing with live call")
	}

	rec, err := s.gateway.Enrich(ctx, market.Descriptor{MarketID: req.MarketID}, radius, variables, req.IncludeGeometry)
	if err != nil {
		enrichRequestsTotal.WithLabelValues("gateway_error").Inc()
		return nil, "", &GatewayError{MarketID: req.MarketID, Err: err}
	}

	if err := s.store.Put(ctx, key, rec, s.ttl); err != nil {
		enrichRequestsTotal.WithLabelValues("store_error").Inc()
		return nil, "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	enrichRequestsTotal.WithLabelValues("live").Inc()
	s.logger.Info().
		Str("market_id", req.MarketID).
		Float64("radius_miles", radius).
		Str("freshness", string(FreshnessLive)).
		Msg("Enriched market live")
	return rec, FreshnessLive, nil
}
