package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"middleware-pipeline/middleware/respcache/domain"
)

// ErrTagsUnsupported indica que o Store configurado não implementa domain.Tagger.
var ErrTagsUnsupported = errors.New("respcache: store does not support tags")

type Service struct {
	Store domain.Store
	TTL   time.Duration
	// ResourceDepth define quantos segmentos do caminho formam o tag de recurso.
	ResourceDepth int
	// Tagging liga a associação chave -> recurso ao salvar.
	Tagging bool
	Now     func() time.Time
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Lookup devolve a entrada. Falha do store conta como miss; o erro volta só para log.
// Entradas com idade >= TTL contam como miss mesmo que o store ainda as tenha.
func (s Service) Lookup(ctx context.Context, key string) (domain.Entry, bool, error) {
	if s.Store == nil {
		return domain.Entry{}, false, nil
	}
	e, err := s.Store.Get(ctx, key)
	switch {
	case err == nil:
		if s.TTL > 0 && !e.StoredAt.IsZero() && s.now().Sub(e.StoredAt) >= s.TTL {
			return domain.Entry{}, false, nil
		}
		return e, true, nil
	case errors.Is(err, domain.ErrNotFound):
		return domain.Entry{}, false, nil
	default:
		return domain.Entry{}, false, err
	}
}

// Save grava a entrada (carimbando StoredAt) e, com Tagging, associa ao recurso.
func (s Service) Save(ctx context.Context, key, reqPath string, e domain.Entry) error {
	if s.Store == nil {
		return nil
	}
	if e.StoredAt.IsZero() {
		e.StoredAt = s.now()
	}
	if err := s.Store.Set(ctx, key, e, s.TTL); err != nil {
		return fmt.Errorf("respcache: store entry: %w", err)
	}
	if !s.Tagging {
		return nil
	}
	tagger, ok := s.Store.(domain.Tagger)
	if !ok {
		return ErrTagsUnsupported
	}
	if err := tagger.Tag(ctx, ResourceTag(reqPath, s.ResourceDepth), key, s.TTL); err != nil {
		return fmt.Errorf("respcache: tag entry: %w", err)
	}
	return nil
}

// InvalidateResource apaga todas as entradas do recurso de reqPath.
func (s Service) InvalidateResource(ctx context.Context, reqPath string) (int, error) {
	tagger, ok := s.Store.(domain.Tagger)
	if !ok {
		return 0, ErrTagsUnsupported
	}
	n, err := tagger.Invalidate(ctx, ResourceTag(reqPath, s.ResourceDepth))
	if err != nil {
		return 0, fmt.Errorf("respcache: invalidate: %w", err)
	}
	return n, nil
}

// Age é a idade da entrada em segundos inteiros, nunca negativa.
func (s Service) Age(e domain.Entry) int64 {
	age := s.now().Sub(e.StoredAt)
	if age < 0 {
		return 0
	}
	return int64(age / time.Second)
}
