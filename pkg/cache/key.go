package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidKey indicates the key inputs were malformed.
var ErrInvalidKey = errors.New("invalid cache key input")

// Key identifies one cached (market, radius, variable set) combination.
// The partition component depends only on the market, so every record for a
// market shares a prefix; the sort component scopes the record to a radius
// and a specific set of requested variables.
type Key struct {
	MarketID    string
	RadiusMiles float64
	Variables   []string
}

// Derive builds a Key after validating its inputs.
// The same market, radius, and variable set always derive the same key,
// regardless of the order the variables were supplied in.
func Derive(marketID string, radiusMiles float64, variables []string) (Key, error) {
	if strings.TrimSpace(marketID) == "" {
		return Key{}, fmt.Errorf("%w: market id is required", ErrInvalidKey)
	}
	if len(variables) == 0 {
		return Key{}, fmt.Errorf("%w: variable list is required", ErrInvalidKey)
	}
	return Key{
		MarketID:    marketID,
		RadiusMiles: radiusMiles,
		Variables:   variables,
	}, nil
}

// Partition returns the market-scoped key component.
// Format: market#<market_id>
func (k Key) Partition() string {
	return "market#" + k.MarketID
}

// Sort returns the radius and variable-set scoped key component.
// Format: r#<radius>#v#<first 10 hex chars of sha256 over the sorted,
// comma-joined variable list>
//
// Sorting before hashing makes the component invariant to caller-supplied
// variable order. Ten hex characters (40 bits) keep the key compact; the
// variable-set cardinality is a few dozen at most, so collisions are not a
// practical concern.
func (k Key) Sort() string {
	vars := make([]string, len(k.Variables))
	copy(vars, k.Variables)
	sort.Strings(vars)

	sum := sha256.Sum256([]byte(strings.Join(vars, ",")))
	digest := hex.EncodeToString(sum[:])[:10]

	return "r#" + formatRadius(k.RadiusMiles) + "#v#" + digest
}

// String joins both components for use as a flat store key.
func (k Key) String() string {
	return k.Partition() + "|" + k.Sort()
}

// formatRadius renders a radius with no trailing zeros so 1 and 1.0 derive
// the same key at every call site.
func formatRadius(radius float64) string {
	return strconv.FormatFloat(radius, 'f', -1, 64)
}
