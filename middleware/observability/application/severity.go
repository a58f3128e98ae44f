package application

import (
	"errors"
	"log/slog"
	"runtime"
	"time"

	"middleware-pipeline/middleware/observability/domain"
)

const DefaultSlowThreshold = 200 * time.Millisecond

// Severity: ERROR para 5xx ou falha; WARN para 4xx ou lentidão; INFO no resto.
func Severity(status int, failed bool, latency, slow time.Duration) slog.Level {
	if slow <= 0 {
		slow = DefaultSlowThreshold
	}
	switch {
	case failed || status >= 500:
		return slog.LevelError
	case status >= 400 || latency > slow:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// Classify decide a classe de um valor de panic ou erro. nil não tem classe.
func Classify(v any) domain.ErrorClass {
	if v == nil {
		return domain.ClassNone
	}
	if err, ok := v.(error); ok {
		var rerr runtime.Error
		if errors.As(err, &rerr) || errors.Is(err, domain.ErrFatal) {
			return domain.ClassCritical
		}
	}
	return domain.ClassWarning
}
