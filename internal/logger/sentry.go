package logger

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
)

type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
	Level       slog.Level
	// MinLevel define o que vai para o Sentry como log (WARN inclui WARN+ERROR).
	// ERROR sempre gera evento/issue.
	MinLevel slog.Level
}

// NewWithSentry envia para stdout e Sentry. Sem DSN (ou se o init falhar) cai para stdout apenas.
// O retorno flush deve ser chamado no shutdown.
func NewWithSentry(cfg SentryConfig, extractors ...ContextExtractor) (*slog.Logger, func(time.Duration)) {
	stdout := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level})
	noop := func(time.Duration) {}

	if cfg.DSN == "" {
		return slog.New(NewLogHandlerDecorator(stdout, extractors...)), noop
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		EnableLogs:  true,
	}); err != nil {
		slog.New(stdout).Error("failed to initialize sentry", slog.String("error", err.Error()))
		return slog.New(NewLogHandlerDecorator(stdout, extractors...)), noop
	}

	logLevels := []slog.Level{slog.LevelWarn, slog.LevelError}
	if cfg.MinLevel >= slog.LevelError {
		logLevels = []slog.Level{slog.LevelError}
	}

	sh := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   logLevels,
	}.NewSentryHandler(context.Background())

	flush := func(d time.Duration) { sentry.Flush(d) }
	return slog.New(NewLogHandlerDecorator(fanout{stdout, sh}, extractors...)), flush
}
