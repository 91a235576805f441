// Package queue provides the asynchronous refresh pipeline on Redis Streams:
// a fire-and-forget dispatcher for refresh requests and a consumer-group
// reader that delivers them to the worker in batches, at least once.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/marketlens/market-enrich/pkg/logging"
)

// Prometheus metrics for the refresh pipeline.
var (
	refreshEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refresh_enqueued_total",
		Help: "Total refresh requests enqueued",
	})

	refreshEnqueueErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refresh_enqueue_errors_total",
		Help: "Total refresh enqueue failures",
	})

	refreshDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refresh_delivered_total",
		Help: "Total refresh requests delivered to the worker",
	})

	refreshAcked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refresh_acked_total",
		Help: "Total refresh requests acknowledged after successful processing",
	})
)

// DefaultStream is the Redis stream carrying refresh requests.
const DefaultStream = "refresh:requests"

const payloadField = "payload"

// RefreshRequest is an at-least-once queued enrichment request. It has no
// identity beyond its payload; duplicates are tolerated because writes are
// idempotent overwrites keyed by the cache key.
type RefreshRequest struct {
	MarketID        string   `json:"market_id"`
	RadiusMiles     float64  `json:"radius_miles"`
	Variables       []string `json:"variables"`
	IncludeGeometry bool     `json:"include_geometry"`
}

// Dispatcher enqueues refresh requests for out-of-band processing.
type Dispatcher struct {
	redis  *redis.Client
	stream string
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher writing to the given stream.
func NewDispatcher(redisClient *redis.Client, stream string) *Dispatcher {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if stream == "" {
		stream = DefaultStream
	}
	return &Dispatcher{
		redis:  redisClient,
		stream: stream,
		logger: logging.NewLogger("refresh-dispatcher"),
	}
}

// Enqueue appends a refresh request to the stream. Callers do not await
// processing; on the interactive path a failed enqueue is logged and
// swallowed by the caller.
func (d *Dispatcher) Enqueue(ctx context.Context, req RefreshRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		refreshEnqueueErrors.Inc()
		return fmt.Errorf("marshal refresh request: %w", err)
	}

	err = d.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: d.stream,
		Values: map[string]any{payloadField: string(payload)},
	}).Err()
	if err != nil {
		refreshEnqueueErrors.Inc()
		return fmt.Errorf("xadd %s: %w", d.stream, err)
	}

	refreshEnqueued.Inc()
	d.logger.Debug().
		Str("market_id", req.MarketID).
		Float64("radius_miles", req.RadiusMiles).
		Msg("Enqueued refresh request")
	return nil
}
