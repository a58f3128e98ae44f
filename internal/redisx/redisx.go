// Package redisx abre a conexão Redis compartilhada pelos stores do pipeline
// (rate limit, cache, métricas, blacklist de tokens).
//
// Os timeouts padrão de leitura/escrita são curtos (dezenas de ms): os estágios
// falham abertos quando o Redis demora, então esperar segundos só aumenta a latência.
package redisx

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrEmptyURL          = errors.New("redisx: empty connection URL")
	ErrInvalidURL        = errors.New("redisx: failed to parse connection URL")
	ErrConnectionFailed  = errors.New("redisx: failed to establish connection")
	ErrHealthcheckFailed = errors.New("redisx: healthcheck failed")
)

type Option func(*options)

type options struct {
	poolSize      int
	minIdleConns  int
	retryAttempts int
	retryInterval time.Duration
	readTimeout   time.Duration
	writeTimeout  time.Duration
	dialTimeout   time.Duration
}

func defaultOptions() *options {
	return &options{
		poolSize:      20,
		minIdleConns:  2,
		retryAttempts: 3,
		retryInterval: time.Second,
		readTimeout:   50 * time.Millisecond,
		writeTimeout:  50 * time.Millisecond,
		dialTimeout:   2 * time.Second,
	}
}

func WithPoolSize(n int) Option {
	return func(o *options) { o.poolSize = n }
}

func WithMinIdleConns(n int) Option {
	return func(o *options) { o.minIdleConns = n }
}

func WithRetry(attempts int, interval time.Duration) Option {
	return func(o *options) {
		o.retryAttempts = attempts
		o.retryInterval = interval
	}
}

// WithOpTimeout define o mesmo timeout para leitura e escrita.
func WithOpTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.readTimeout = d
			o.writeTimeout = d
		}
	}
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// Open conecta usando uma URL redis:// ou rediss:// com retry linear.
func Open(ctx context.Context, url string, opts ...Option) (redis.UniversalClient, error) {
	if strings.TrimSpace(url) == "" {
		return nil, ErrEmptyURL
	}
	if !strings.HasPrefix(url, "redis://") && !strings.HasPrefix(url, "rediss://") {
		return nil, ErrInvalidURL
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	ro, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Join(ErrInvalidURL, err)
	}
	ro.PoolSize = o.poolSize
	ro.MinIdleConns = o.minIdleConns
	ro.ReadTimeout = o.readTimeout
	ro.WriteTimeout = o.writeTimeout
	ro.DialTimeout = o.dialTimeout

	return connect(ctx, ro, o.retryAttempts, o.retryInterval)
}

func connect(ctx context.Context, ro *redis.Options, attempts int, interval time.Duration) (redis.UniversalClient, error) {
	attempts = max(attempts, 1)

	var lastErr error
	for i := range attempts {
		client := redis.NewClient(ro)
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return client, nil
		}
		_ = client.Close()

		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrConnectionFailed, ctx.Err())
		case <-time.After(time.Duration(i+1) * interval):
		}
	}
	return nil, errors.Join(ErrConnectionFailed, lastErr)
}

// Healthcheck devolve uma função de checagem para o endpoint de readiness.
func Healthcheck(client redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		if client == nil {
			return ErrHealthcheckFailed
		}
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}

// Shutdown fecha o cliente; nil é aceito.
func Shutdown(client redis.UniversalClient) error {
	if client == nil {
		return nil
	}
	if err := client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
