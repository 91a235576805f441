// Package market defines market identifiers and descriptors for the
// enrichment provider.
package market

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoIdentifier indicates a descriptor with neither a market id, a
// city/state pair, nor coordinates.
var ErrNoIdentifier = errors.New("market_id (or city/state) is required")

// DefaultVariables is the provider variable set requested when a caller does
// not name one.
var DefaultVariables = []string{
	"TOTPOP_CY",
	"DIVINDX_CY",
	"AVGHHSZ_CY",
	"MEDAGE_CY",
	"MEDHINC_CY",
	"BACHDEG_CY",
}

// Descriptor names a market for enrichment: a slug, an explicit city/state
// pair, or a coordinate point. MarketID takes precedence for identity; the
// other fields refine how the provider locates the study area.
type Descriptor struct {
	MarketID string   `json:"market_id,omitempty"`
	City     string   `json:"city,omitempty"`
	State    string   `json:"state,omitempty"`
	Lat      *float64 `json:"lat,omitempty"`
	Lon      *float64 `json:"lon,omitempty"`
}

// Slug normalizes a city/state pair into a stable market identifier:
// lower-cased, whitespace collapsed to underscores.
// Slug("New York", "NY") == "new_york_ny".
func Slug(city, state string) string {
	c := strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(city))), "_")
	s := strings.ToLower(strings.TrimSpace(state))
	return c + "_" + s
}

// ID resolves the descriptor's stable market identifier, synthesizing a slug
// from city/state when no id was supplied.
func (d Descriptor) ID() (string, error) {
	if d.MarketID != "" {
		return d.MarketID, nil
	}
	if d.City != "" && d.State != "" {
		return Slug(d.City, d.State), nil
	}
	return "", ErrNoIdentifier
}

// HasPoint reports whether the descriptor carries an explicit coordinate.
func (d Descriptor) HasPoint() bool {
	return d.Lat != nil && d.Lon != nil
}

// QueryText decomposes the descriptor into the free-text location query the
// provider geocodes. A slug whose last segment looks like a state code
// ("austin_tx") becomes "Austin, TX"; anything else has its separators
// replaced with spaces.
func (d Descriptor) QueryText() (string, error) {
	if d.City != "" && d.State != "" {
		return fmt.Sprintf("%s, %s", d.City, d.State), nil
	}

	id := strings.ToLower(strings.TrimSpace(d.MarketID))
	if id == "" {
		return "", ErrNoIdentifier
	}

	parts := strings.Split(strings.ReplaceAll(id, "-", "_"), "_")
	if last := parts[len(parts)-1]; len(parts) >= 2 && len(last) == 2 {
		city := titleWords(strings.Join(parts[:len(parts)-1], " "))
		return fmt.Sprintf("%s, %s", city, strings.ToUpper(last)), nil
	}

	return strings.ReplaceAll(strings.ReplaceAll(id, "_", " "), "-", " "), nil
}

// MetricName maps a provider variable code to the short metric name used in
// feature records: TOTPOP_CY -> totpop.
func MetricName(code string) string {
	return strings.ToLower(strings.TrimSuffix(code, "_CY"))
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
