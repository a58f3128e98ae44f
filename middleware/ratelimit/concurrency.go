package ratelimit

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"middleware-pipeline/middleware/pipeline"
	"middleware-pipeline/middleware/ratelimit/application"
	"middleware-pipeline/middleware/ratelimit/infra"

	"golang.org/x/time/rate"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// RetryAfter vai no cabeçalho da recusa. Default 1s.
	RetryAfter time.Duration

	Logger *slog.Logger
}

// ConcurrencyMiddleware limita requisições simultâneas. Max <= 0 desabilita.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	limiter := infra.NewSemaphoreLimiter(opts.Max)
	svc := application.ConcurrencyService{Limiter: limiter, AcquireTimeout: opts.AcquireTimeout}
	retryAfter := strconv.Itoa(int(max(opts.RetryAfter/time.Second, 1)))
	saturatedLog := &rate.Sometimes{First: 1, Interval: 10 * time.Second}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, err := svc.Acquire(r.Context())
			if err != nil {
				// ninguém para ler a resposta
				if errors.Is(err, application.ErrClientGone) {
					return
				}
				saturatedLog.Do(func() {
					opts.Logger.WarnContext(r.Context(), "concurrency limit reached",
						slog.Int("in_flight", limiter.InFlight()),
						slog.Int("capacity", limiter.Capacity()),
					)
				})
				w.Header().Set("Retry-After", retryAfter)
				pipeline.WriteError(w, opts.RejectStatus, pipeline.CodeServiceUnavailable, "server is busy, please retry")
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
