package infra

import (
	"context"
	"sync"
	"time"

	"middleware-pipeline/middleware/ratelimit/domain"
)

// MemoryCounterStore é uma janela fixa em memória do processo, com limpeza periódica.
//
// Serve para desenvolvimento, testes e instância única. Com várias instâncias cada
// processo conta sozinho e o limite efetivo multiplica: use RedisCounterStore.
type MemoryCounterStore struct {
	mu           sync.Mutex
	entries      map[domain.Key]*windowEntry
	cleanupEvery time.Duration
	now          func() time.Time
}

type windowEntry struct {
	count     int64
	expiresAt time.Time
}

type MemoryCounterOption func(*MemoryCounterStore)

func WithCleanupEvery(d time.Duration) MemoryCounterOption {
	return func(s *MemoryCounterStore) { s.cleanupEvery = d }
}

// WithClock troca o relógio (testes).
func WithClock(now func() time.Time) MemoryCounterOption {
	return func(s *MemoryCounterStore) { s.now = now }
}

func NewMemoryCounterStore(opts ...MemoryCounterOption) *MemoryCounterStore {
	s := &MemoryCounterStore{
		entries:      make(map[domain.Key]*windowEntry),
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryCounterStore) Increment(_ context.Context, key domain.Key, window time.Duration) (domain.Window, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok || !now.Before(ent.expiresAt) {
		ent = &windowEntry{expiresAt: now.Add(window)}
		s.entries[key] = ent
	}
	ent.count++
	return domain.Window{Count: ent.count, TTL: ent.expiresAt.Sub(now)}, nil
}

// Cleanup remove janelas expiradas.
func (s *MemoryCounterStore) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if !now.Before(ent.expiresAt) {
			delete(s.entries, k)
		}
	}
}

func (s *MemoryCounterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartJanitor inicia uma goroutine que limpa janelas expiradas periodicamente.
// Pare cancelando o contexto.
func (s *MemoryCounterStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
