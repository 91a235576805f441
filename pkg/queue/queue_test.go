package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a Redis client against a local instance, skipping
// the test when none is available. The testcontainers-backed variant lives in
// tests/integration.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   14,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func testConsumerConfig(stream string) ConsumerConfig {
	cfg := DefaultConsumerConfig()
	cfg.Stream = stream
	cfg.Block = 100 * time.Millisecond
	cfg.ClaimMinIdle = time.Minute
	return cfg
}

// waitPending polls the pending-entries count until it reaches want or the
// deadline passes.
func waitPending(t *testing.T, client *redis.Client, stream, group string, want int64) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	var got int64 = -1
	for time.Now().Before(deadline) {
		pending, err := client.XPending(context.Background(), stream, group).Result()
		if err == nil {
			got = pending.Count
			if got == want {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Errorf("pending count = %d, want %d", got, want)
}

func TestDispatcher_Enqueue(t *testing.T) {
	client := setupTestRedis(t)
	dispatcher := NewDispatcher(client, "test:enqueue")
	ctx := context.Background()

	req := RefreshRequest{
		MarketID:    "austin_tx",
		RadiusMiles: 3,
		Variables:   []string{"TOTPOP_CY", "MEDHINC_CY"},
	}
	if err := dispatcher.Enqueue(ctx, req); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	msgs, err := client.XRange(ctx, "test:enqueue", "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("stream length = %d, want 1", len(msgs))
	}

	payload, _ := msgs[0].Values[payloadField].(string)
	var got RefreshRequest
	if err := json.Unmarshal([]byte(payload), &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got.MarketID != req.MarketID || got.RadiusMiles != req.RadiusMiles {
		t.Errorf("round-tripped request = %+v, want %+v", got, req)
	}
	if len(got.Variables) != 2 || got.Variables[0] != "TOTPOP_CY" {
		t.Errorf("Variables = %v, want %v", got.Variables, req.Variables)
	}
}

func TestConsumer_DeliversAndAcks(t *testing.T) {
	client := setupTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const stream = "test:deliver"
	cfg := testConsumerConfig(stream)

	// Create the group up front so entries enqueued below are delivered
	// regardless of when the consumer goroutine starts.
	if err := client.XGroupCreateMkStream(ctx, stream, cfg.Group, "$").Err(); err != nil {
		t.Fatalf("create group: %v", err)
	}

	delivered := make(chan []RefreshRequest, 1)
	consumer := NewConsumer(client, cfg)
	go consumer.Run(ctx, func(_ context.Context, batch []RefreshRequest) []error {
		delivered <- batch
		return make([]error, len(batch))
	})

	dispatcher := NewDispatcher(client, stream)
	for _, id := range []string{"austin_tx", "denver_co"} {
		if err := dispatcher.Enqueue(ctx, RefreshRequest{MarketID: id, RadiusMiles: 1}); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	var batch []RefreshRequest
	deadline := time.After(3 * time.Second)
	for len(batch) < 2 {
		select {
		case b := <-delivered:
			batch = append(batch, b...)
		case <-deadline:
			t.Fatalf("delivered %d requests before timeout, want 2", len(batch))
		}
	}

	// Every item succeeded, so nothing stays pending.
	waitPending(t, client, stream, cfg.Group, 0)
}

func TestConsumer_FailedItemStaysPending(t *testing.T) {
	client := setupTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const stream = "test:partial"
	cfg := testConsumerConfig(stream)
	if err := client.XGroupCreateMkStream(ctx, stream, cfg.Group, "$").Err(); err != nil {
		t.Fatalf("create group: %v", err)
	}

	handled := make(chan RefreshRequest, 4)
	consumer := NewConsumer(client, cfg)
	go consumer.Run(ctx, func(_ context.Context, batch []RefreshRequest) []error {
		results := make([]error, len(batch))
		for i, req := range batch {
			handled <- req
			if req.MarketID == "bad_market" {
				results[i] = errors.New("enrichment failed")
			}
		}
		return results
	})

	dispatcher := NewDispatcher(client, stream)
	for _, id := range []string{"austin_tx", "bad_market", "denver_co"} {
		if err := dispatcher.Enqueue(ctx, RefreshRequest{MarketID: id, RadiusMiles: 1}); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	seen := 0
	deadline := time.After(3 * time.Second)
	for seen < 3 {
		select {
		case <-handled:
			seen++
		case <-deadline:
			t.Fatalf("handled %d requests before timeout, want 3", seen)
		}
	}

	// Only the failed item remains pending for redelivery.
	waitPending(t, client, stream, cfg.Group, 1)
}

func TestConsumer_DropsUndecodableEntries(t *testing.T) {
	client := setupTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const stream = "test:garbage"
	cfg := testConsumerConfig(stream)
	if err := client.XGroupCreateMkStream(ctx, stream, cfg.Group, "$").Err(); err != nil {
		t.Fatalf("create group: %v", err)
	}

	delivered := make(chan RefreshRequest, 4)
	consumer := NewConsumer(client, cfg)
	go consumer.Run(ctx, func(_ context.Context, batch []RefreshRequest) []error {
		for _, req := range batch {
			delivered <- req
		}
		return make([]error, len(batch))
	})

	if err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{payloadField: "{not json"},
	}).Err(); err != nil {
		t.Fatalf("xadd garbage: %v", err)
	}
	dispatcher := NewDispatcher(client, stream)
	if err := dispatcher.Enqueue(ctx, RefreshRequest{MarketID: "austin_tx", RadiusMiles: 1}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	select {
	case req := <-delivered:
		if req.MarketID != "austin_tx" {
			t.Errorf("delivered MarketID = %q, want austin_tx", req.MarketID)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("the decodable request was never delivered")
	}

	select {
	case req := <-delivered:
		t.Errorf("unexpected extra delivery: %+v", req)
	case <-time.After(200 * time.Millisecond):
	}

	// The garbage entry is acked and dropped, not left pending.
	waitPending(t, client, stream, cfg.Group, 0)
}

func TestNewDispatcher_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewDispatcher should panic with nil redis client")
		}
	}()
	NewDispatcher(nil, "")
}

func TestConsumerConfig_Defaults(t *testing.T) {
	client := setupTestRedis(t)
	c := NewConsumer(client, ConsumerConfig{})
	if c.config.Stream != DefaultStream {
		t.Errorf("Stream = %q, want %q", c.config.Stream, DefaultStream)
	}
	if c.config.Group != "refresh-workers" || c.config.Consumer != "worker-1" {
		t.Errorf("group/consumer defaults = %q/%q", c.config.Group, c.config.Consumer)
	}
	if c.config.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want 10", c.config.BatchSize)
	}
}
