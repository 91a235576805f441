package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/marketlens/market-enrich/pkg/cache"
	"github.com/marketlens/market-enrich/pkg/market"
	"github.com/marketlens/market-enrich/pkg/queue"
)

// FakeStore is an in-memory feature store honoring the expired-read-as-miss
// contract.
type FakeStore struct {
	mu      sync.Mutex
	scoped  map[string]*cache.FeatureRecord
	latest  map[string]*cache.FeatureRecord
	PutErr  error
	GetErr  error
	PutCnt  int
	GetCnt  int
}

// NewFakeStore creates an empty in-memory store.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		scoped: make(map[string]*cache.FeatureRecord),
		latest: make(map[string]*cache.FeatureRecord),
	}
}

// Seed places a record directly under a key, bypassing Put accounting.
// A zero ttl seeds an already-expired record.
func (s *FakeStore) Seed(key cache.Key, rec *cache.FeatureRecord, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	rec.UpdatedAt = now
	rec.ExpiresAt = now.Add(ttl)
	s.scoped[key.String()] = rec
	s.latest[key.Partition()] = rec
}

func (s *FakeStore) Get(ctx context.Context, key cache.Key) (*cache.FeatureRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GetCnt++
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	rec, ok := s.scoped[key.String()]
	if !ok || rec.IsExpired() {
		return nil, cache.ErrCacheMiss
	}
	return rec, nil
}

func (s *FakeStore) Put(ctx context.Context, key cache.Key, rec *cache.FeatureRecord, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PutCnt++
	if s.PutErr != nil {
		return s.PutErr
	}
	now := time.Now()
	rec.UpdatedAt = now
	rec.ExpiresAt = now.Add(ttl)
	s.scoped[key.String()] = rec
	s.latest[key.Partition()] = rec
	return nil
}

func (s *FakeStore) Latest(ctx context.Context, marketID string) (*cache.FeatureRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.latest[cache.Key{MarketID: marketID}.Partition()]
	if !ok || rec.IsExpired() {
		return nil, cache.ErrCacheMiss
	}
	return rec, nil
}

// Stored returns the record under a key, or nil.
func (s *FakeStore) Stored(key cache.Key) *cache.FeatureRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scoped[key.String()]
}

// FakeDispatcher records enqueued refresh requests.
type FakeDispatcher struct {
	mu       sync.Mutex
	Enqueued []queue.RefreshRequest
	Err      error
}

func (d *FakeDispatcher) Enqueue(ctx context.Context, req queue.RefreshRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.Enqueued = append(d.Enqueued, req)
	return nil
}

// Count returns the number of accepted enqueues.
func (d *FakeDispatcher) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Enqueued)
}

// FakeGateway serves scripted records per market id.
type FakeGateway struct {
	mu      sync.Mutex
	Records map[string]*cache.FeatureRecord
	Errs    map[string]error
	Calls   []string
}

// NewFakeGateway creates a gateway with no scripted responses; unscripted
// markets get a minimal live-tagged record.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		Records: make(map[string]*cache.FeatureRecord),
		Errs:    make(map[string]error),
	}
}

func (g *FakeGateway) Enrich(ctx context.Context, d market.Descriptor, radiusMiles float64, variables []string, includeGeometry bool) (*cache.FeatureRecord, error) {
	marketID, err := d.ID()
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls = append(g.Calls, marketID)

	if err := g.Errs[marketID]; err != nil {
		return nil, err
	}
	if rec, ok := g.Records[marketID]; ok {
		return rec, nil
	}
	return &cache.FeatureRecord{
		MarketID:    marketID,
		AsOfDate:    time.Now().Format("2006-01-02"),
		Metrics:     map[string]float64{"totpop": 100000},
		RadiusMiles: radiusMiles,
		Source:      cache.SourceLive,
	}, nil
}

// CallCount returns the number of Enrich invocations.
func (g *FakeGateway) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Calls)
}
