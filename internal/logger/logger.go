// Package logger monta o *slog.Logger do processo: JSON em stdout, atributos extraídos
// do contexto a cada chamada e, opcionalmente, envio para o Sentry.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ContextExtractor extrai um atributo de log do contexto da requisição.
type ContextExtractor func(ctx context.Context) (slog.Attr, bool)

// New cria um logger JSON em stdout no nível informado.
func New(level slog.Level, extractors ...ContextExtractor) *slog.Logger {
	return newWithWriter(os.Stdout, level, extractors...)
}

func newWithWriter(w io.Writer, level slog.Level, extractors ...ContextExtractor) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(NewLogHandlerDecorator(h, extractors...))
}

// NewNope descarta tudo. Default dos middlewares quando nenhum logger é injetado.
func NewNope() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel aceita debug/info/warn/warning/error; qualquer outro valor vira info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
