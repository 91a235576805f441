// Package ranking implements the market comparison engine: per-metric
// min-max normalization across a candidate set and a weighted composite
// score, computed deterministically at ranking time.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/marketlens/market-enrich/pkg/cache"
	"github.com/marketlens/market-enrich/pkg/logging"
)

var (
	// ErrNoMarkets indicates an empty candidate list.
	ErrNoMarkets = errors.New("market_ids required")

	// ErrNoneFound indicates none of the requested markets have a record.
	ErrNoneFound = errors.New("no markets found")
)

// Metrics are the ranking metrics, normalized independently.
var Metrics = []string{"totpop", "medhinc", "bachdeg", "divindx"}

// DefaultWeights is the fixed weighting applied when the caller supplies
// none. Weights are used as-given and never re-normalized; callers supplying
// weights that do not sum to 1 get scores on their own scale.
var DefaultWeights = map[string]float64{
	"totpop":  0.35,
	"medhinc": 0.30,
	"bachdeg": 0.20,
	"divindx": 0.15,
}

// DefaultTopK is the truncation applied when the caller does not ask for a
// specific count.
const DefaultTopK = 3

// Store is the read side of the feature store the engine consumes: the most
// recent record per market, irrespective of radius and variable set.
type Store interface {
	Latest(ctx context.Context, marketID string) (*cache.FeatureRecord, error)
}

// RawMetrics carries a candidate's unnormalized values for explainability.
type RawMetrics struct {
	Totpop    float64   `json:"totpop"`
	Medhinc   float64   `json:"medhinc"`
	Bachdeg   float64   `json:"bachdeg"`
	Divindx   float64   `json:"divindx"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RankedMarket is one scored candidate.
type RankedMarket struct {
	MarketID string `json:"market_id"`

	// Score is the weighted composite, rounded to 6 decimal digits.
	Score float64 `json:"score"`

	// Components are the per-metric weighted contributions, each rounded to
	// 6 decimal digits.
	Components map[string]float64 `json:"components"`

	Raw RawMetrics `json:"raw"`
}

// Result is a ranking response.
type Result struct {
	Ranked      []RankedMarket     `json:"ranked"`
	Weights     map[string]float64 `json:"weights"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// Engine ranks cached markets. It only reads the feature store.
type Engine struct {
	store  Store
	logger zerolog.Logger
}

// NewEngine creates a ranking engine.
func NewEngine(store Store) *Engine {
	if store == nil {
		panic("store is required")
	}
	return &Engine{
		store:  store,
		logger: logging.NewLogger("ranking-engine"),
	}
}

type candidate struct {
	marketID  string
	raw       map[string]float64
	norm      map[string]float64
	updatedAt time.Time
}

// Rank scores the given markets and returns at most topK of them, ordered by
// descending composite score with ties broken by input order.
//
// Markets with no cached record are silently dropped; if all are missing the
// call fails with ErrNoneFound. Normalization is recomputed across exactly
// the surviving candidates on every call, so scores are always relative to
// the comparison set at hand.
func (e *Engine) Rank(ctx context.Context, marketIDs []string, weights map[string]float64, topK int) (*Result, error) {
	if len(marketIDs) == 0 {
		return nil, ErrNoMarkets
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if len(weights) == 0 {
		weights = DefaultWeights
	}

	candidates, err := e.load(ctx, marketIDs)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoneFound
	}

	for _, metric := range Metrics {
		normalize(candidates, metric)
	}

	ranked := make([]RankedMarket, 0, len(candidates))
	for _, c := range candidates {
		components := make(map[string]float64, len(weights))
		score := 0.0
		for metric, weight := range weights {
			contribution := c.norm[metric] * weight
			components[metric] = round6(contribution)
			score += contribution
		}
		ranked = append(ranked, RankedMarket{
			MarketID:   c.marketID,
			Score:      round6(score),
			Components: components,
			Raw: RawMetrics{
				Totpop:    c.raw["totpop"],
				Medhinc:   c.raw["medhinc"],
				Bachdeg:   c.raw["bachdeg"],
				Divindx:   c.raw["divindx"],
				UpdatedAt: c.updatedAt,
			},
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	e.logger.Debug().
		Int("requested", len(marketIDs)).
		Int("ranked", len(ranked)).
		Msg("Ranked markets")

	return &Result{
		Ranked:      ranked,
		Weights:     weights,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// load fetches the latest record per market in input order, dropping markets
// without one.
func (e *Engine) load(ctx context.Context, marketIDs []string) ([]*candidate, error) {
	candidates := make([]*candidate, 0, len(marketIDs))
	for _, id := range marketIDs {
		rec, err := e.store.Latest(ctx, id)
		if errors.Is(err, cache.ErrCacheMiss) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("latest record for %s: %w", id, err)
		}

		raw := make(map[string]float64, len(Metrics))
		for _, metric := range Metrics {
			raw[metric] = rec.Metric(metric)
		}
		candidates = append(candidates, &candidate{
			marketID:  id,
			raw:       raw,
			norm:      make(map[string]float64, len(Metrics)),
			updatedAt: rec.UpdatedAt,
		})
	}
	return candidates, nil
}

// normalize min-max rescales one metric across the candidate set. When every
// candidate has the same value (or there is a single candidate) each
// normalized value is exactly 0.5.
func normalize(candidates []*candidate, metric string) {
	min, max := candidates[0].raw[metric], candidates[0].raw[metric]
	for _, c := range candidates[1:] {
		v := c.raw[metric]
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	if max == min {
		for _, c := range candidates {
			c.norm[metric] = 0.5
		}
		return
	}
	for _, c := range candidates {
		c.norm[metric] = (c.raw[metric] - min) / (max - min)
	}
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
