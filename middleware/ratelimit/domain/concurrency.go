package domain

import (
	"context"
	"errors"
)

var ErrBusy = errors.New("ratelimit: no concurrency slot available")

// ConcurrencyLimiter controla quantas requisições ficam em voo ao mesmo tempo.
//
// Acquire bloqueia até uma vaga ou até ctx encerrar. Na falha o erro satisfaz
// errors.Is(err, ErrBusy) e nenhuma vaga fica presa. O release é idempotente.
type ConcurrencyLimiter interface {
	Acquire(ctx context.Context) (release func(), err error)
	InFlight() int
	Capacity() int
}
