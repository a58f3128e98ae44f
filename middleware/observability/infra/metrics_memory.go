package infra

import (
	"context"
	"maps"
	"strconv"
	"sync"

	"middleware-pipeline/middleware/observability/application"
	"middleware-pipeline/middleware/observability/domain"
)

// MemoryMetricsStore é o equivalente em processo do RedisMetricsStore.
// Não expira contadores; serve para dev e testes.
type MemoryMetricsStore struct {
	mu           sync.Mutex
	total        int64
	statusClass  map[string]int64
	methodStatus map[string]int64
	errs         map[string]int64
	errClasses   map[string]int64

	samples []float64 // anel
	next    int
	size    int
}

func NewMemoryMetricsStore(sampleSize int) *MemoryMetricsStore {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	return &MemoryMetricsStore{
		statusClass:  map[string]int64{},
		methodStatus: map[string]int64{},
		errs:         map[string]int64{},
		errClasses:   map[string]int64{},
		samples:      make([]float64, 0, sampleSize),
		size:         sampleSize,
	}
}

func (m *MemoryMetricsStore) Record(_ context.Context, s domain.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.statusClass[s.StatusClass()]++
	m.methodStatus[s.Method+":"+strconv.Itoa(s.Status)]++
	if s.Status >= 400 || s.Failed() {
		m.errs[s.Endpoint()]++
	}
	if s.Failed() {
		m.errClasses[string(s.ErrorClass)]++
	}

	ms := float64(s.Duration.Microseconds()) / 1000
	if len(m.samples) < m.size {
		m.samples = append(m.samples, ms)
	} else {
		m.samples[m.next] = ms
	}
	m.next = (m.next + 1) % m.size
	return nil
}

func (m *MemoryMetricsStore) Snapshot(context.Context) (domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.Snapshot{
		Total:        m.total,
		StatusClass:  maps.Clone(m.statusClass),
		MethodStatus: maps.Clone(m.methodStatus),
		Errors:       maps.Clone(m.errs),
		ErrorClasses: maps.Clone(m.errClasses),
		Latency:      application.Summarize(m.samples),
	}, nil
}

var _ domain.MetricsStore = (*MemoryMetricsStore)(nil)
