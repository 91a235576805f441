package orchestrate

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/marketlens/market-enrich/pkg/cache"
	"github.com/marketlens/market-enrich/pkg/logging"
	"github.com/marketlens/market-enrich/pkg/market"
)

var seedMarketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "seed_markets_total",
	Help: "Seeded markets by outcome",
}, []string{"outcome"}) // "ok", "error"

// DefaultSeedMarkets are the priority markets kept warm when no seed list is
// configured.
var DefaultSeedMarkets = []market.Descriptor{
	{MarketID: "new-york"},
	{MarketID: "chicago"},
	{MarketID: "los-angeles"},
}

// seedRadius is the study-area radius used for seeded records.
const seedRadius = 1

// Seeder primes the feature store for a fixed set of high-priority markets,
// using the same write path as the refresh worker. Intended to run on a
// daily schedule.
type Seeder struct {
	store   FeatureStore
	gateway Gateway
	markets []market.Descriptor
	ttl     time.Duration
	logger  zerolog.Logger
}

// NewSeeder creates a seeder over the given priority markets; nil markets
// selects DefaultSeedMarkets.
func NewSeeder(store FeatureStore, gateway Gateway, markets []market.Descriptor) *Seeder {
	if store == nil || gateway == nil {
		panic("store and gateway are required")
	}
	if len(markets) == 0 {
		markets = DefaultSeedMarkets
	}
	return &Seeder{
		store:   store,
		gateway: gateway,
		markets: markets,
		ttl:     cache.DefaultTTL,
		logger:  logging.NewLogger("seeder"),
	}
}

// Seed enriches and writes every priority market at the seed radius with the
// default variable set. A failed market does not abort the remaining work;
// failures are aggregated into the returned error.
func (s *Seeder) Seed(ctx context.Context) (int, error) {
	var errs *multierror.Error
	seeded := 0

	for _, m := range s.markets {
		if err := s.seedOne(ctx, m); err != nil {
			marketID, _ := m.ID()
			errs = multierror.Append(errs, ItemFailure{MarketID: marketID, Err: err})
			seedMarketsTotal.WithLabelValues("error").Inc()
			s.logger.Error().Err(err).Str("market_id", marketID).Msg("Seed failed for market")
			continue
		}
		seeded++
		seedMarketsTotal.WithLabelValues("ok").Inc()
	}

	s.logger.Info().
		Int("seeded", seeded).
		Int("failed", len(s.markets)-seeded).
		Msg("Seed run complete")
	return seeded, errs.ErrorOrNil()
}

func (s *Seeder) seedOne(ctx context.Context, m market.Descriptor) error {
	marketID, err := m.ID()
	if err != nil {
		return err
	}

	key, err := cache.Derive(marketID, seedRadius, market.DefaultVariables)
	if err != nil {
		return err
	}

	rec, err := s.gateway.Enrich(ctx, m, seedRadius, market.DefaultVariables, false)
	if err != nil {
		return err
	}

	return s.store.Put(ctx, key, rec, s.ttl)
}
