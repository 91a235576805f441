package orchestrate

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/marketlens/market-enrich/pkg/cache"
	"github.com/marketlens/market-enrich/pkg/logging"
	"github.com/marketlens/market-enrich/pkg/market"
	"github.com/marketlens/market-enrich/pkg/queue"
)

var refreshItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "refresh_items_total",
	Help: "Refresh worker items by outcome",
}, []string{"outcome"}) // "ok", "error"

// ItemFailure records one failed item in a batch.
type ItemFailure struct {
	MarketID string
	Err      error
}

func (f ItemFailure) Error() string {
	return "refresh " + f.MarketID + ": " + f.Err.Error()
}

// Unwrap implements error unwrapping for errors.Is/As.
func (f ItemFailure) Unwrap() error {
	return f.Err
}

// BatchResult is the outcome of processing one batch. Successful items'
// writes are durable regardless of the batch-level outcome.
type BatchResult struct {
	// Processed is the number of items attempted.
	Processed int

	// Failures lists the items that failed, in batch order.
	Failures []ItemFailure

	perItem []error
}

// Err aggregates the per-item failures into a single batch-level error, or
// nil when every item succeeded.
func (r BatchResult) Err() error {
	var errs *multierror.Error
	for _, f := range r.Failures {
		errs = multierror.Append(errs, f)
	}
	return errs.ErrorOrNil()
}

// ItemErrors returns the per-item error slice aligned with the batch, for
// delivery mechanisms that acknowledge item by item.
func (r BatchResult) ItemErrors() []error {
	return r.perItem
}

// Worker drains queued refresh requests: enrich, then overwrite the cached
// record. Items are processed independently so one bad market never stalls
// the rest of its batch.
type Worker struct {
	store   FeatureStore
	gateway Gateway
	ttl     time.Duration
	logger  zerolog.Logger
}

// NewWorker creates a refresh worker.
func NewWorker(store FeatureStore, gateway Gateway) *Worker {
	if store == nil || gateway == nil {
		panic("store and gateway are required")
	}
	return &Worker{
		store:   store,
		gateway: gateway,
		ttl:     cache.DefaultTTL,
		logger:  logging.NewLogger("refresh-worker"),
	}
}

// ProcessBatch processes every item in the batch, committing each successful
// write before the batch outcome is evaluated.
func (w *Worker) ProcessBatch(ctx context.Context, batch []queue.RefreshRequest) BatchResult {
	res := BatchResult{
		Processed: len(batch),
		perItem:   make([]error, len(batch)),
	}

	for i, req := range batch {
		if err := w.processItem(ctx, req); err != nil {
			res.perItem[i] = err
			res.Failures = append(res.Failures, ItemFailure{MarketID: req.MarketID, Err: err})
			refreshItemsTotal.WithLabelValues("error").Inc()
			w.logger.Error().Err(err).
				Str("market_id", req.MarketID).
				Msg("Refresh item failed")
			continue
		}
		refreshItemsTotal.WithLabelValues("ok").Inc()
	}

	return res
}

// Handler adapts the worker to the queue consumer contract.
func (w *Worker) Handler() queue.Handler {
	return func(ctx context.Context, batch []queue.RefreshRequest) []error {
		res := w.ProcessBatch(ctx, batch)
		if err := res.Err(); err != nil {
			w.logger.Error().Err(err).
				Int("processed", res.Processed).
				Int("failed", len(res.Failures)).
				Msg("Batch completed with failures")
		}
		return res.ItemErrors()
	}
}

func (w *Worker) processItem(ctx context.Context, req queue.RefreshRequest) error {
	radius := req.RadiusMiles
	if radius == 0 {
		radius = 1
	}
	variables := req.Variables
	if len(variables) == 0 {
		variables = market.DefaultVariables
	}

	key, err := cache.Derive(req.MarketID, radius, variables)
	if err != nil {
		return err
	}

	rec, err := w.gateway.Enrich(ctx, market.Descriptor{MarketID: req.MarketID}, radius, variables, req.IncludeGeometry)
	if err != nil {
		return err
	}

	return w.store.Put(ctx, key, rec, w.ttl)
}
