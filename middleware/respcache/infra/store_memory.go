package infra

import (
	"container/list"
	"context"
	"sync"
	"time"

	"middleware-pipeline/middleware/respcache/domain"
)

type memEntry struct {
	key       string
	value     domain.Entry
	expiresAt time.Time // zero = não expira
}

// MemoryStore é um LRU limitado com TTL, para instância única e testes.
type MemoryStore struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	eviction *list.List
	tags     map[string]map[string]struct{}

	maxEntries int
	now        func() time.Time
	closed     bool
	done       chan struct{}
}

type MemoryOption func(*MemoryStore)

// WithMaxEntries limita o número de entradas; 0 desliga o limite.
func WithMaxEntries(n int) MemoryOption { return func(m *MemoryStore) { m.maxEntries = n } }

func WithClock(now func() time.Time) MemoryOption { return func(m *MemoryStore) { m.now = now } }

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		items:      make(map[string]*list.Element),
		eviction:   list.New(),
		tags:       make(map[string]map[string]struct{}),
		maxEntries: 10_000,
		now:        time.Now,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartJanitor remove entradas expiradas a cada interval até ctx ou Close.
func (m *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.done:
				return
			case <-ticker.C:
				m.deleteExpired()
			}
		}
	}()
}

func (m *MemoryStore) expired(e *memEntry) bool {
	return !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt)
}

func (m *MemoryStore) Get(_ context.Context, key string) (domain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		return domain.Entry{}, domain.ErrNotFound
	}
	e := elem.Value.(*memEntry)
	if m.expired(e) {
		m.remove(elem)
		return domain.Entry{}, domain.ErrNotFound
	}
	m.eviction.MoveToFront(elem)
	return e.value, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, v domain.Entry, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return domain.ErrClosed
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = m.now().Add(ttl)
	}

	if elem, ok := m.items[key]; ok {
		e := elem.Value.(*memEntry)
		e.value = v
		e.expiresAt = expiresAt
		m.eviction.MoveToFront(elem)
		return nil
	}

	if m.maxEntries > 0 && len(m.items) >= m.maxEntries {
		if oldest := m.eviction.Back(); oldest != nil {
			m.remove(oldest)
		}
	}
	m.items[key] = m.eviction.PushFront(&memEntry{key: key, value: v, expiresAt: expiresAt})
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if elem, ok := m.items[key]; ok {
		m.remove(elem)
	}
	return nil
}

func (m *MemoryStore) Tag(_ context.Context, tag, key string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.tags[tag]
	if !ok {
		set = make(map[string]struct{})
		m.tags[tag] = set
	}
	set[key] = struct{}{}
	return nil
}

func (m *MemoryStore) Invalidate(_ context.Context, tag string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key := range m.tags[tag] {
		if elem, ok := m.items[key]; ok {
			m.remove(elem)
			n++
		}
	}
	delete(m.tags, tag)
	return n, nil
}

// Len conta as entradas, incluindo expiradas ainda não coletadas.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Close para o janitor. É idempotente.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

func (m *MemoryStore) deleteExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for elem := m.eviction.Back(); elem != nil; {
		prev := elem.Prev()
		if m.expired(elem.Value.(*memEntry)) {
			m.remove(elem)
		}
		elem = prev
	}
	for tag, set := range m.tags {
		for key := range set {
			if _, ok := m.items[key]; !ok {
				delete(set, key)
			}
		}
		if len(set) == 0 {
			delete(m.tags, tag)
		}
	}
}

// remove exige o mutex.
func (m *MemoryStore) remove(elem *list.Element) {
	m.eviction.Remove(elem)
	delete(m.items, elem.Value.(*memEntry).key)
}

var (
	_ domain.Store  = (*MemoryStore)(nil)
	_ domain.Tagger = (*MemoryStore)(nil)
)
