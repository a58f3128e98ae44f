package pipeline

import (
	"context"
	"log/slog"
)

// RequestIDExtractor devolve o request id como atributo de log.
// A assinatura casa com logger.ContextExtractor.
func RequestIDExtractor(ctx context.Context) (slog.Attr, bool) {
	if id := From(ctx).RequestID(); id != "" {
		return slog.String("request_id", id), true
	}
	return slog.Attr{}, false
}

func UserIDExtractor(ctx context.Context) (slog.Attr, bool) {
	if id, ok := From(ctx).Identity(); ok && id.UserID != "" {
		return slog.String("user_id", id.UserID), true
	}
	return slog.Attr{}, false
}
