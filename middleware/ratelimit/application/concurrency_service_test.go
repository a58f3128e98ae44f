package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"middleware-pipeline/middleware/ratelimit/domain"

	"github.com/stretchr/testify/require"
)

// blockingLimiter nunca libera vaga: só devolve quando o ctx encerra.
type blockingLimiter struct{}

func (blockingLimiter) Acquire(ctx context.Context) (func(), error) {
	<-ctx.Done()
	return nil, errors.Join(domain.ErrBusy, ctx.Err())
}
func (blockingLimiter) InFlight() int { return 1 }
func (blockingLimiter) Capacity() int { return 1 }

type brokenLimiter struct{}

func (brokenLimiter) Acquire(context.Context) (func(), error) { return nil, errors.New("boom") }
func (brokenLimiter) InFlight() int { return 0 }
func (brokenLimiter) Capacity() int { return 0 }

func TestConcurrencyService_NoLimiterAlwaysAdmits(t *testing.T) {
	t.Parallel()

	release, err := ConcurrencyService{}.Acquire(context.Background())
	require.NoError(t, err)
	release()
}

func TestConcurrencyService_TimeoutIsBusy(t *testing.T) {
	t.Parallel()

	svc := ConcurrencyService{Limiter: blockingLimiter{}, AcquireTimeout: 10 * time.Millisecond}
	_, err := svc.Acquire(context.Background())
	require.ErrorIs(t, err, domain.ErrBusy)
	require.NotErrorIs(t, err, ErrClientGone)
}

func TestConcurrencyService_CanceledRequestIsClientGone(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ConcurrencyService{Limiter: blockingLimiter{}, AcquireTimeout: time.Second}.Acquire(ctx)
	require.ErrorIs(t, err, ErrClientGone)
	require.ErrorIs(t, err, domain.ErrBusy)
}

func TestConcurrencyService_UnknownLimiterErrorIsBusy(t *testing.T) {
	t.Parallel()

	_, err := ConcurrencyService{Limiter: brokenLimiter{}}.Acquire(context.Background())
	require.ErrorIs(t, err, domain.ErrBusy)
}
