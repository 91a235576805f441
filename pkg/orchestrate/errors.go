package orchestrate

import (
	"errors"
	"fmt"
)

// Error taxonomy for orchestration. Invalid requests are the caller's to fix;
// gateway failures may be retried by the caller or repaired by the
// asynchronous backstop; store failures are fatal for the current unit of
// work and never swallowed.
var (
	// ErrInvalidRequest indicates missing or malformed required input.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrStoreUnavailable indicates the feature store failed.
	ErrStoreUnavailable = errors.New("feature store unavailable")
)

// GatewayError reports a failed enrichment call for one market, carrying the
// underlying cause.
type GatewayError struct {
	MarketID string
	Err      error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("enrichment gateway failed for market %s: %v", e.MarketID, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *GatewayError) Unwrap() error {
	return e.Err
}
