package application

import (
	"context"
	"time"

	"middleware-pipeline/middleware/ratelimit/domain"
)

// Service concentra a regra de janela fixa do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Todo pedido incrementa (inclusive os negados) e a checagem é count > max:
// o contador reflete "pedidos vistos na janela".
type Service struct {
	Store domain.CounterStore
	Now   func() time.Time
}

// CheckAndIncrement incrementa o contador de key e decide.
//
// Em erro do store, devolve uma decisão permitida junto com o erro: cabe ao chamador
// registrar a falha e seguir (fail-open).
func (s Service) CheckAndIncrement(ctx context.Context, key domain.Key, maxAttempts int, window time.Duration) (domain.Decision, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	if s.Store == nil || maxAttempts <= 0 || window <= 0 {
		return domain.Decision{Allowed: true, Limit: maxAttempts, Remaining: max(maxAttempts, 0)}, nil
	}

	w, err := s.Store.Increment(ctx, key, window)
	if err != nil {
		return domain.Decision{Allowed: true, Limit: maxAttempts, Remaining: maxAttempts}, err
	}

	ttl := w.TTL
	if ttl <= 0 || ttl > window {
		ttl = window
	}

	dec := domain.Decision{
		Allowed:   w.Count <= int64(maxAttempts),
		Limit:     maxAttempts,
		Remaining: int(max(int64(maxAttempts)-w.Count, 0)),
		ResetAt:   now().Add(ttl),
	}
	if !dec.Allowed {
		dec.RetryAfter = ceilSeconds(ttl)
	}
	return dec, nil
}

// ceilSeconds arredonda para cima em segundos, com mínimo de 1s.
func ceilSeconds(d time.Duration) time.Duration {
	secs := (d + time.Second - 1) / time.Second
	return max(secs, 1) * time.Second
}
