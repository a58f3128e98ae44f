package infra

import (
	"context"
	"maps"
	"sync"

	"middleware-pipeline/middleware/ratelimit/domain"
)

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento; não expira nada.
type MemoryStatsStore struct {
	mu       sync.Mutex
	total    domain.Counters
	byRoute  map[string]domain.Counters
	byBucket map[domain.Bucket]domain.Counters
	byKey    map[string]domain.Counters

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute:  make(map[string]domain.Counters),
		byBucket: make(map[domain.Bucket]domain.Counters),
		byKey:    make(map[string]domain.Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.Add(ev.Outcome, 1)
	bump(s.byRoute, route, ev.Outcome)
	if ev.Bucket != "" {
		bump(s.byBucket, ev.Bucket, ev.Outcome)
	}
	if s.trackKeys {
		bump(s.byKey, string(ev.Key), ev.Outcome)
	}
	return nil
}

func bump[K comparable](m map[K]domain.Counters, k K, o domain.Outcome) {
	c := m[k]
	c.Add(o, 1)
	m[k] = c
}

func (s *MemoryStatsStore) Total() domain.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByRoute() map[string]domain.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byRoute)
}

func (s *MemoryStatsStore) ByBucket() map[domain.Bucket]domain.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byBucket)
}

func (s *MemoryStatsStore) ByKey() map[string]domain.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byKey)
}

func (s *MemoryStatsStore) Summary(context.Context) (domain.StatsSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.StatsSummary{Total: s.total, ByBucket: maps.Clone(s.byBucket)}, nil
}
