package ranking

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/marketlens/market-enrich/internal/testutil"
	"github.com/marketlens/market-enrich/pkg/cache"
	"github.com/marketlens/market-enrich/pkg/market"
)

func seedMarket(t *testing.T, store *testutil.FakeStore, marketID string, totpop, medhinc, bachdeg, divindx float64) {
	t.Helper()
	key, err := cache.Derive(marketID, 1, market.DefaultVariables)
	if err != nil {
		t.Fatalf("Derive() error = %v", err)
	}
	store.Seed(key, &cache.FeatureRecord{
		MarketID: marketID,
		AsOfDate: "2026-09-01",
		Metrics: map[string]float64{
			"totpop":  totpop,
			"medhinc": medhinc,
			"bachdeg": bachdeg,
			"divindx": divindx,
		},
		RadiusMiles: 1,
		Source:      cache.SourceLive,
	}, time.Hour)
}

func TestEngine_Rank_Validation(t *testing.T) {
	engine := NewEngine(testutil.NewFakeStore())

	if _, err := engine.Rank(context.Background(), nil, nil, 3); !errors.Is(err, ErrNoMarkets) {
		t.Errorf("Rank() with no markets error = %v, want ErrNoMarkets", err)
	}
}

func TestEngine_Rank_AllMissing(t *testing.T) {
	engine := NewEngine(testutil.NewFakeStore())

	_, err := engine.Rank(context.Background(), []string{"ghost_a", "ghost_b"}, nil, 3)
	if !errors.Is(err, ErrNoneFound) {
		t.Errorf("Rank() error = %v, want ErrNoneFound", err)
	}
}

func TestEngine_Rank_MissingMarketsDropped(t *testing.T) {
	store := testutil.NewFakeStore()
	seedMarket(t, store, "austin_tx", 100000, 85000, 41.4, 63.2)
	engine := NewEngine(store)

	res, err := engine.Rank(context.Background(), []string{"austin_tx", "ghost"}, nil, 3)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(res.Ranked) != 1 {
		t.Fatalf("Ranked = %d entries, want 1 (missing market dropped silently)", len(res.Ranked))
	}
	if res.Ranked[0].MarketID != "austin_tx" {
		t.Errorf("Ranked[0] = %q, want austin_tx", res.Ranked[0].MarketID)
	}
}

func TestEngine_Rank_SingletonNormalizesToHalf(t *testing.T) {
	store := testutil.NewFakeStore()
	seedMarket(t, store, "austin_tx", 100000, 85000, 41.4, 63.2)
	engine := NewEngine(store)

	res, err := engine.Rank(context.Background(), []string{"austin_tx"}, nil, 3)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}

	// Every metric degenerates to 0.5, so the score is half the weight sum.
	want := 0.5 * (0.35 + 0.30 + 0.20 + 0.15)
	if got := res.Ranked[0].Score; math.Abs(got-want) > 1e-9 {
		t.Errorf("Score = %v, want %v", got, want)
	}
	for metric, weight := range DefaultWeights {
		want := round6(0.5 * weight)
		if got := res.Ranked[0].Components[metric]; got != want {
			t.Errorf("Components[%s] = %v, want %v", metric, got, want)
		}
	}
}

func TestEngine_Rank_IdenticalMetricNormalizesToHalf(t *testing.T) {
	store := testutil.NewFakeStore()
	// Same totpop everywhere; other metrics differ.
	seedMarket(t, store, "a", 100000, 85000, 41.4, 63.2)
	seedMarket(t, store, "b", 100000, 60000, 30.0, 40.0)
	engine := NewEngine(store)

	res, err := engine.Rank(context.Background(), []string{"a", "b"}, map[string]float64{"totpop": 1}, 3)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	for _, r := range res.Ranked {
		if r.Components["totpop"] != 0.5 {
			t.Errorf("%s totpop contribution = %v, want 0.5", r.MarketID, r.Components["totpop"])
		}
	}
}

func TestEngine_Rank_DeterministicOrdering(t *testing.T) {
	store := testutil.NewFakeStore()
	seedMarket(t, store, "a", 100000, 85000, 41.4, 63.2)
	seedMarket(t, store, "b", 50000, 60000, 30.0, 40.0)
	seedMarket(t, store, "c", 150000, 90000, 50.0, 70.0)
	engine := NewEngine(store)

	res, err := engine.Rank(context.Background(), []string{"a", "b", "c"}, nil, 3)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}

	wantOrder := []string{"c", "a", "b"}
	for i, want := range wantOrder {
		if res.Ranked[i].MarketID != want {
			t.Fatalf("Ranked[%d] = %q, want %q (full order %v)", i, res.Ranked[i].MarketID, want, res.Ranked)
		}
	}

	// c maxes every metric, so its score is exactly the weight sum.
	if got := res.Ranked[0].Score; got != 1.0 {
		t.Errorf("top score = %v, want 1.0", got)
	}
	// b mins every metric.
	if got := res.Ranked[2].Score; got != 0 {
		t.Errorf("bottom score = %v, want 0", got)
	}

	// Components sum to the reported score within rounding.
	for _, r := range res.Ranked {
		sum := 0.0
		for _, c := range r.Components {
			sum += c
		}
		if math.Abs(sum-r.Score) > 5e-6 {
			t.Errorf("%s components sum %v != score %v", r.MarketID, sum, r.Score)
		}
	}

	// Raw values pass through unnormalized.
	if res.Ranked[1].Raw.Totpop != 100000 || res.Ranked[1].Raw.Bachdeg != 41.4 {
		t.Errorf("Raw = %+v, want the unnormalized input values", res.Ranked[1].Raw)
	}
}

func TestEngine_Rank_WeightPassThrough(t *testing.T) {
	store := testutil.NewFakeStore()
	seedMarket(t, store, "a", 100000, 85000, 41.4, 63.2)
	seedMarket(t, store, "b", 50000, 60000, 30.0, 40.0)
	seedMarket(t, store, "c", 150000, 90000, 50.0, 70.0)
	engine := NewEngine(store)
	ctx := context.Background()

	unit, err := engine.Rank(ctx, []string{"a", "b", "c"}, DefaultWeights, 3)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}

	doubled := map[string]float64{"totpop": 0.70, "medhinc": 0.60, "bachdeg": 0.40, "divindx": 0.30}
	twice, err := engine.Rank(ctx, []string{"a", "b", "c"}, doubled, 3)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}

	for i := range unit.Ranked {
		if twice.Ranked[i].MarketID != unit.Ranked[i].MarketID {
			t.Errorf("ordering changed under scaled weights: %q vs %q",
				twice.Ranked[i].MarketID, unit.Ranked[i].MarketID)
		}
		if math.Abs(twice.Ranked[i].Score-2*unit.Ranked[i].Score) > 1e-5 {
			t.Errorf("%s: score %v, want double of %v",
				twice.Ranked[i].MarketID, twice.Ranked[i].Score, unit.Ranked[i].Score)
		}
	}
}

func TestEngine_Rank_TopKTruncation(t *testing.T) {
	store := testutil.NewFakeStore()
	seedMarket(t, store, "a", 100000, 85000, 41.4, 63.2)
	seedMarket(t, store, "b", 50000, 60000, 30.0, 40.0)
	seedMarket(t, store, "c", 150000, 90000, 50.0, 70.0)
	engine := NewEngine(store)

	res, err := engine.Rank(context.Background(), []string{"a", "b", "c"}, nil, 2)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(res.Ranked) != 2 {
		t.Fatalf("Ranked = %d entries, want 2", len(res.Ranked))
	}
	if res.Ranked[0].MarketID != "c" || res.Ranked[1].MarketID != "a" {
		t.Errorf("top-2 = %q, %q; want c, a", res.Ranked[0].MarketID, res.Ranked[1].MarketID)
	}
}

func TestEngine_Rank_TieBrokenByInputOrder(t *testing.T) {
	store := testutil.NewFakeStore()
	// Identical metrics everywhere: all scores equal, input order preserved.
	seedMarket(t, store, "x", 100000, 85000, 41.4, 63.2)
	seedMarket(t, store, "y", 100000, 85000, 41.4, 63.2)
	seedMarket(t, store, "z", 100000, 85000, 41.4, 63.2)
	engine := NewEngine(store)

	res, err := engine.Rank(context.Background(), []string{"y", "z", "x"}, nil, 3)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	want := []string{"y", "z", "x"}
	for i, id := range want {
		if res.Ranked[i].MarketID != id {
			t.Errorf("Ranked[%d] = %q, want %q (stable tie-break)", i, res.Ranked[i].MarketID, id)
		}
	}
}
