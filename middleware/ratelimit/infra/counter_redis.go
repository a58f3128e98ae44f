package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"middleware-pipeline/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript incrementa e define a expiração na mesma operação atômica.
// Se a chave perdeu o TTL (ex.: PERSIST manual), a janela é reaberta.
var fixedWindowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if count == 1 or ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisCounterStore é o CounterStore de produção: compartilhado entre instâncias.
type RedisCounterStore struct {
	rdb    redis.Scripter
	prefix string
}

type RedisCounterOption func(*RedisCounterStore)

func WithCounterPrefix(prefix string) RedisCounterOption {
	return func(s *RedisCounterStore) { s.prefix = strings.Trim(prefix, ":") }
}

func NewRedisCounterStore(rdb redis.Scripter, opts ...RedisCounterOption) *RedisCounterStore {
	s := &RedisCounterStore{rdb: rdb, prefix: "ratelimit"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisCounterStore) Increment(ctx context.Context, key domain.Key, window time.Duration) (domain.Window, error) {
	if s == nil || s.rdb == nil {
		return domain.Window{}, domain.ErrStoreUnavailable
	}

	ms := window.Milliseconds()
	if ms <= 0 {
		return domain.Window{}, fmt.Errorf("ratelimit: invalid window %s", window)
	}

	vals, err := fixedWindowScript.Run(ctx, s.rdb, []string{s.prefix + ":" + string(key)}, ms).Int64Slice()
	if err != nil {
		return domain.Window{}, errors.Join(domain.ErrStoreUnavailable, err)
	}
	if len(vals) != 2 {
		return domain.Window{}, fmt.Errorf("%w: unexpected script reply %v", domain.ErrStoreUnavailable, vals)
	}
	return domain.Window{Count: vals[0], TTL: time.Duration(vals[1]) * time.Millisecond}, nil
}
