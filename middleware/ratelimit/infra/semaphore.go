package infra

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"middleware-pipeline/middleware/ratelimit/domain"

	"golang.org/x/sync/semaphore"
)

type SemaphoreLimiter struct {
	sem      *semaphore.Weighted
	capacity int
	inFlight atomic.Int64
}

// NewSemaphoreLimiter cria o limitador com capacity vagas. capacity <= 0 vira 1.
func NewSemaphoreLimiter(capacity int) *SemaphoreLimiter {
	capacity = max(capacity, 1)
	return &SemaphoreLimiter{sem: semaphore.NewWeighted(int64(capacity)), capacity: capacity}
}

func (l *SemaphoreLimiter) Acquire(ctx context.Context) (func(), error) {
	if !l.sem.TryAcquire(1) {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return nil, errors.Join(domain.ErrBusy, err)
		}
	}
	l.inFlight.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			l.inFlight.Add(-1)
			l.sem.Release(1)
		})
	}, nil
}

func (l *SemaphoreLimiter) InFlight() int { return int(l.inFlight.Load()) }

func (l *SemaphoreLimiter) Capacity() int { return l.capacity }
