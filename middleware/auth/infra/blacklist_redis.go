package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBlacklist guarda jti revogados até a expiração natural do token.
type RedisBlacklist struct {
	rdb    redis.Cmdable
	prefix string
	now    func() time.Time
}

type BlacklistOption func(*RedisBlacklist)

func WithBlacklistPrefix(prefix string) BlacklistOption {
	return func(b *RedisBlacklist) { b.prefix = strings.Trim(prefix, ":") }
}

func WithBlacklistClock(now func() time.Time) BlacklistOption {
	return func(b *RedisBlacklist) { b.now = now }
}

func NewRedisBlacklist(rdb redis.Cmdable, opts ...BlacklistOption) *RedisBlacklist {
	b := &RedisBlacklist{rdb: rdb, prefix: "auth:revoked", now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *RedisBlacklist) key(jti string) string { return b.prefix + ":" + jti }

// Revoke marca jti como revogado até until. Um until no passado não grava nada.
func (b *RedisBlacklist) Revoke(ctx context.Context, jti string, until time.Time) error {
	if jti == "" {
		return fmt.Errorf("auth: revoke: empty jti")
	}
	ttl := until.Sub(b.now())
	if ttl <= 0 {
		return nil
	}
	if err := b.rdb.Set(ctx, b.key(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("auth: revoke %s: %w", jti, err)
	}
	return nil
}

func (b *RedisBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := b.rdb.Exists(ctx, b.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("auth: blacklist lookup: %w", err)
	}
	return n > 0, nil
}
