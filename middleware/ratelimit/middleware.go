package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"middleware-pipeline/middleware/pipeline"
	"middleware-pipeline/middleware/ratelimit/application"
	"middleware-pipeline/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

type KeyFunc func(r *http.Request) string

type Options struct {
	Store  domain.CounterStore
	Stats  domain.StatsStore
	Policy application.Policy

	// KeyFn resolve a identidade de rede do cliente (IP). Default: DefaultKeyFunc.
	KeyFn             KeyFunc
	KeyHeader         string
	TrustProxyHeaders bool

	// Timeout limita a chamada ao store; ao estourar, a requisição passa (fail-open).
	Timeout time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// DefaultKeyFunc usa keyHeader (ex.: X-Api-Key) quando presente; caso contrário o IP do cliente.
func DefaultKeyFunc(keyHeader string, trustProxy bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}
		return pipeline.ClientIP(r, trustProxy)
	}
}

// Middleware aplica a política de janela fixa.
//
// Para que o bucket por usuário funcione, a identidade precisa estar no RequestContext
// antes deste estágio (ex.: auth.Authenticate com Optional=true mais externo).
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustProxyHeaders)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 50 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	svc := application.Service{Store: opts.Store, Now: opts.Now}
	// durante uma queda do store, um aviso a cada 10s basta
	failOpenLog := &rate.Sometimes{First: 1, Interval: 10 * time.Second}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, rc := pipeline.Ensure(r)

			subject := application.Subject{Path: r.URL.Path, ClientIP: opts.KeyFn(r)}
			if id, ok := rc.Identity(); ok {
				subject.UserID = id.UserID
				subject.Roles = id.Roles
			}
			rule := opts.Policy.Resolve(subject)

			ctx, cancel := context.WithTimeout(r.Context(), opts.Timeout)
			dec, err := svc.CheckAndIncrement(ctx, rule.Key, rule.Max, rule.Window)
			cancel()

			outcome := domain.OutcomeAllowed
			switch {
			case err != nil:
				outcome = domain.OutcomeFailOpen
				failOpenLog.Do(func() {
					opts.Logger.WarnContext(r.Context(), "rate limit store unavailable, failing open",
						slog.String("bucket", string(rule.Bucket)),
						slog.String("error", err.Error()),
					)
				})
			case !dec.Allowed:
				outcome = domain.OutcomeDenied
			}

			if opts.Stats != nil {
				if serr := opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     rule.Key,
					Bucket:  rule.Bucket,
					Outcome: outcome,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      opts.Now(),
				}); serr != nil {
					opts.Logger.DebugContext(r.Context(), "rate limit stats not recorded", slog.String("error", serr.Error()))
				}
			}

			if outcome == domain.OutcomeFailOpen {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(dec.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
			if !dec.ResetAt.IsZero() {
				h.Set("X-RateLimit-Reset", strconv.FormatInt(dec.ResetAt.Unix(), 10))
			}

			if !dec.Allowed {
				h.Set("Retry-After", strconv.FormatInt(int64(dec.RetryAfter/time.Second), 10))
				pipeline.WriteError(w, http.StatusTooManyRequests, pipeline.CodeRateLimitExceeded,
					"too many requests, please try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
