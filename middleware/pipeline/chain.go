package pipeline

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Middleware é a assinatura de todos os estágios.
type Middleware = func(http.Handler) http.Handler

var (
	ErrUnknownStage   = errors.New("pipeline: unknown stage")
	ErrDuplicateStage = errors.New("pipeline: duplicate stage")
)

// Chain aplica os middlewares de forma que o primeiro da lista seja o mais externo.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		h = mws[i](h)
	}
	return h
}

// Builder mantém estágios nomeados para compor a cadeia a partir de uma ordem
// vinda de configuração.
type Builder struct {
	stages map[string]Middleware
}

func NewBuilder() *Builder {
	return &Builder{stages: make(map[string]Middleware)}
}

// Register associa um nome a um estágio. Registrar mw nil desabilita o estágio
// sem invalidar a ordem configurada.
func (b *Builder) Register(name string, mw Middleware) *Builder {
	b.stages[normalizeStage(name)] = mw
	return b
}

// Middlewares resolve a ordem em uma lista de estágios (primeiro = mais externo).
func (b *Builder) Middlewares(order []string) ([]Middleware, error) {
	seen := make(map[string]struct{}, len(order))
	out := make([]Middleware, 0, len(order))
	for _, raw := range order {
		name := normalizeStage(raw)
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateStage, raw)
		}
		seen[name] = struct{}{}

		mw, ok := b.stages[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStage, raw)
		}
		if mw != nil {
			out = append(out, mw)
		}
	}
	return out, nil
}

// Build compõe h com os estágios na ordem informada.
func (b *Builder) Build(order []string, h http.Handler) (http.Handler, error) {
	mws, err := b.Middlewares(order)
	if err != nil {
		return nil, err
	}
	return Chain(h, mws...), nil
}

func normalizeStage(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
