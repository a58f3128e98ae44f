package application

import (
	"context"
	"errors"
	"time"

	"middleware-pipeline/middleware/ratelimit/domain"
)

// ErrClientGone indica que o cliente desistiu enquanto esperava uma vaga.
var ErrClientGone = errors.New("ratelimit: client canceled while waiting for a slot")

// ConcurrencyService aplica o tempo máximo de espera por vaga.
type ConcurrencyService struct {
	Limiter        domain.ConcurrencyLimiter
	AcquireTimeout time.Duration
}

// Acquire espera no máximo AcquireTimeout (ou até ctx encerrar, se <= 0).
//
// Erros: ErrBusy quando o tempo de espera acaba; ErrClientGone (junto de ErrBusy)
// quando o próprio ctx da requisição foi cancelado.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), error) {
	if s.Limiter == nil {
		return func() {}, nil
	}

	waitCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, err := s.Limiter.Acquire(waitCtx)
	if err == nil {
		return release, nil
	}
	if ctx.Err() != nil {
		return nil, errors.Join(ErrClientGone, err)
	}
	if !errors.Is(err, domain.ErrBusy) {
		err = errors.Join(domain.ErrBusy, err)
	}
	return nil, err
}
