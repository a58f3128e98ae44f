// Package domain define a entrada de cache de resposta e os contratos de armazenamento.
package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("respcache: entry not found")
	ErrClosed   = errors.New("respcache: store closed")
)

// Strategy decide como requisições autenticadas se relacionam com o cache.
// Uma única estratégia vale para o deployment inteiro.
type Strategy string

const (
	// StrategyShared: qualquer requisição com Authorization ignora o cache.
	StrategyShared Strategy = "shared"
	// StrategyPersonalized: o user id entra na chave; Authorization sem identidade ignora o cache.
	StrategyPersonalized Strategy = "personalized"
)

func (s Strategy) Valid() bool {
	return s == StrategyShared || s == StrategyPersonalized
}

// Entry é uma resposta armazenada.
type Entry struct {
	Status   int                 `json:"status"`
	Header   map[string][]string `json:"header"`
	Body     []byte              `json:"body"`
	StoredAt time.Time           `json:"stored_at"`
}

// Store guarda entradas com TTL. Get devolve ErrNotFound quando ausente ou expirada.
type Store interface {
	Get(ctx context.Context, key string) (Entry, error)
	Set(ctx context.Context, key string, e Entry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Tagger é opcional: agrupa chaves por recurso para invalidação.
type Tagger interface {
	Tag(ctx context.Context, tag, key string, ttl time.Duration) error
	// Invalidate apaga as chaves do tag e devolve quantas foram removidas.
	Invalidate(ctx context.Context, tag string) (int, error)
}
