// Package cache provides the feature cache: deterministic key derivation
// for (market, radius, variable set) combinations and a Redis-backed store
// with per-record expiry.
package cache

import (
	"encoding/json"
	"time"
)

// Source tags describing where a record's values came from.
const (
	// SourceLive marks records produced by a live provider call.
	SourceLive = "esri_live"

	// SourcePlaceholder marks records produced by the placeholder gateway.
	SourcePlaceholder = "esri"
)

// DefaultTTL is the freshness window for every feature record.
const DefaultTTL = 24 * time.Hour

// FeatureRecord is the cached payload for one (market, radius, variable set)
// combination. Writes always replace the full record; there are no partial
// updates.
type FeatureRecord struct {
	// MarketID is the market the record describes.
	MarketID string `json:"market_id"`

	// AsOfDate is the date the enrichment was performed (YYYY-MM-DD).
	AsOfDate string `json:"as_of_date"`

	// Metrics maps short metric names (totpop, medhinc, ...) to values.
	Metrics map[string]float64 `json:"metrics"`

	// RadiusMiles is the study-area radius the values were computed for.
	RadiusMiles float64 `json:"radius_miles"`

	// Source distinguishes live provider data from placeholder data.
	Source string `json:"source"`

	// Shape carries the study-area geometry when it was requested.
	Shape json.RawMessage `json:"shape,omitempty"`

	// UpdatedAt is when the record was written.
	UpdatedAt time.Time `json:"updated_at"`

	// ExpiresAt is when the record stops being served as a cache hit.
	ExpiresAt time.Time `json:"expires_at"`
}

// Metric returns the named metric value, or 0 if absent.
func (r *FeatureRecord) Metric(name string) float64 {
	return r.Metrics[name]
}

// IsExpired reports whether the record is past its freshness window.
// Expired records are treated as cache misses by the store.
func (r *FeatureRecord) IsExpired() bool {
	return time.Now().After(r.ExpiresAt)
}

// TTL returns the time until expiry, or 0 if already expired.
func (r *FeatureRecord) TTL() time.Duration {
	ttl := time.Until(r.ExpiresAt)
	if ttl < 0 {
		return 0
	}
	return ttl
}
