package esri

import (
	"context"
	"time"

	"github.com/marketlens/market-enrich/pkg/cache"
	"github.com/marketlens/market-enrich/pkg/market"
)

// placeholderValues are the fixed metric values served for markets that have
// not been enriched live yet.
var placeholderValues = map[string]float64{
	"totpop":  100000,
	"avghhsz": 2.6,
	"medhinc": 85000,
	"divindx": 63.2,
	"medage":  36.1,
	"bachdeg": 41.4,
}

// Placeholder is a gateway that returns fixed values without calling the
// provider. The seeder uses it to keep priority markets warm without
// spending provider credits; records it writes are tagged so readers can
// tell them from live data.
type Placeholder struct{}

// NewPlaceholder creates a placeholder gateway.
func NewPlaceholder() *Placeholder {
	return &Placeholder{}
}

// Enrich returns a placeholder record for the descriptor.
func (p *Placeholder) Enrich(ctx context.Context, d market.Descriptor, radiusMiles float64, variables []string, includeGeometry bool) (*cache.FeatureRecord, error) {
	if len(variables) == 0 {
		variables = market.DefaultVariables
	}

	marketID, err := d.ID()
	if err != nil {
		return nil, err
	}

	rec := &cache.FeatureRecord{
		MarketID:    marketID,
		AsOfDate:    time.Now().Format("2006-01-02"),
		Metrics:     make(map[string]float64, len(variables)),
		RadiusMiles: radiusMiles,
		Source:      cache.SourcePlaceholder,
	}
	for _, v := range variables {
		rec.Metrics[market.MetricName(v)] = placeholderValues[market.MetricName(v)]
	}
	return rec, nil
}
