package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"errors"
	"time"
)

type Key string

// Bucket identifica qual regra da política gerou a chave.
type Bucket string

const (
	BucketAuth Bucket = "auth"
	BucketUser Bucket = "user"
	BucketIP   Bucket = "ip"
)

var ErrStoreUnavailable = errors.New("ratelimit: counter store unavailable")

// Window é o estado de uma janela fixa logo após o incremento.
type Window struct {
	Count int64
	// TTL é o tempo restante até a janela expirar.
	TTL time.Duration
}

// CounterStore incrementa atomicamente o contador da chave.
//
// No primeiro incremento da janela a implementação define a expiração = window;
// nos seguintes apenas incrementa. Nunca leia-e-escreva em dois passos do lado da
// aplicação: sob concorrência isso perde atualizações.
type CounterStore interface {
	Increment(ctx context.Context, key Key, window time.Duration) (Window, error)
}

// Rule é o resultado da política para uma requisição: qual chave e qual teto.
type Rule struct {
	Key    Key
	Bucket Bucket
	Max    int
	Window time.Duration
}

type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter é o TTL restante da janela, arredondado para cima em segundos.
	// Zero quando permitido.
	RetryAfter time.Duration
}
