package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/marketlens/market-enrich/pkg/logging"
)

// Handler processes one delivered batch and returns a per-item error slice of
// the same length; a nil element marks the item as successfully processed.
type Handler func(ctx context.Context, batch []RefreshRequest) []error

// ConsumerConfig holds consumer-group settings.
type ConsumerConfig struct {
	Stream    string
	Group     string
	Consumer  string
	BatchSize int64

	// Block is how long each read waits for new entries.
	Block time.Duration

	// ClaimMinIdle is the pending-entry age after which another consumer's
	// unacknowledged deliveries are claimed and retried.
	ClaimMinIdle time.Duration
}

// DefaultConsumerConfig returns settings matching the refresh workload.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Stream:       DefaultStream,
		Group:        "refresh-workers",
		Consumer:     "worker-1",
		BatchSize:    10,
		Block:        5 * time.Second,
		ClaimMinIdle: 2 * time.Minute,
	}
}

// Consumer drains the refresh stream through a consumer group.
//
// Delivery is at least once: only items the handler reports as successful are
// acknowledged, so failed items stay pending and are re-claimed later. One
// bad item never blocks the rest of its batch.
type Consumer struct {
	redis  *redis.Client
	config ConsumerConfig
	logger zerolog.Logger
}

// NewConsumer creates a consumer for the refresh stream.
func NewConsumer(redisClient *redis.Client, cfg ConsumerConfig) *Consumer {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	if cfg.Group == "" {
		cfg.Group = "refresh-workers"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "worker-1"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.ClaimMinIdle <= 0 {
		cfg.ClaimMinIdle = 2 * time.Minute
	}
	return &Consumer{
		redis:  redisClient,
		config: cfg,
		logger: logging.NewLogger("refresh-consumer"),
	}
}

// Run reads batches and hands them to the handler until the context is
// cancelled.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Reclaim stale pending entries left by dead consumers first, then
		// read new entries.
		if msgs, err := c.claimStale(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Claim of stale entries failed")
		} else if len(msgs) > 0 {
			c.dispatch(ctx, handler, msgs)
			continue
		}

		msgs, err := c.readNew(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			c.logger.Error().Err(err).Msg("Stream read failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		if len(msgs) == 0 {
			continue
		}
		c.dispatch(ctx, handler, msgs)
	}
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.redis.XGroupCreateMkStream(ctx, c.config.Stream, c.config.Group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (c *Consumer) readNew(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := c.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.config.Group,
		Consumer: c.config.Consumer,
		Streams:  []string{c.config.Stream, ">"},
		Count:    c.config.BatchSize,
		Block:    c.config.Block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var msgs []redis.XMessage
	for _, s := range streams {
		msgs = append(msgs, s.Messages...)
	}
	return msgs, nil
}

func (c *Consumer) claimStale(ctx context.Context) ([]redis.XMessage, error) {
	msgs, _, err := c.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.config.Stream,
		Group:    c.config.Group,
		Consumer: c.config.Consumer,
		MinIdle:  c.config.ClaimMinIdle,
		Start:    "0-0",
		Count:    c.config.BatchSize,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	return msgs, err
}

// dispatch decodes a delivery, runs the handler, and acknowledges exactly the
// items that succeeded. Undecodable entries are acknowledged and dropped;
// redelivering them cannot help.
func (c *Consumer) dispatch(ctx context.Context, handler Handler, msgs []redis.XMessage) {
	batch := make([]RefreshRequest, 0, len(msgs))
	ids := make([]string, 0, len(msgs))

	for _, msg := range msgs {
		payload, _ := msg.Values[payloadField].(string)
		var req RefreshRequest
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			c.logger.Error().Err(err).Str("id", msg.ID).Msg("Dropping undecodable refresh request")
			c.ack(ctx, msg.ID)
			continue
		}
		batch = append(batch, req)
		ids = append(ids, msg.ID)
	}
	if len(batch) == 0 {
		return
	}

	refreshDelivered.Add(float64(len(batch)))
	results := handler(ctx, batch)

	for i, id := range ids {
		if i < len(results) && results[i] != nil {
			continue
		}
		c.ack(ctx, id)
	}
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.redis.XAck(ctx, c.config.Stream, c.config.Group, id).Err(); err != nil {
		c.logger.Warn().Err(err).Str("id", id).Msg("Ack failed")
		return
	}
	refreshAcked.Inc()
}
