// Package infra implementa os stores de cache de resposta (Redis e memória).
package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"middleware-pipeline/middleware/respcache/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStore guarda entradas como JSON com TTL nativo e tags em SETs.
type RedisStore struct {
	rdb       redis.UniversalClient
	tagPrefix string
}

type RedisOption func(*RedisStore)

// WithTagPrefix muda o prefixo dos SETs de tags (default "respcache:tag").
func WithTagPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.tagPrefix = strings.TrimSuffix(prefix, ":") }
}

// NewRedisStore usa as chaves como vêm; elas já carregam o prefixo "respcache:".
func NewRedisStore(rdb redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{rdb: rdb, tagPrefix: "respcache:tag"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Get(ctx context.Context, key string) (domain.Entry, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Entry{}, domain.ErrNotFound
		}
		return domain.Entry{}, err
	}
	var e domain.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return domain.Entry{}, fmt.Errorf("respcache: decode entry: %w", err)
	}
	return e, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, e domain.Entry, ttl time.Duration) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("respcache: encode entry: %w", err)
	}
	return s.rdb.Set(ctx, key, data, max(ttl, 0)).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

func (s *RedisStore) tagKey(tag string) string { return s.tagPrefix + ":" + tag }

// Tag adiciona key ao SET do tag. O SET expira junto com a entrada mais recente.
func (s *RedisStore) Tag(ctx context.Context, tag, key string, ttl time.Duration) error {
	tk := s.tagKey(tag)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, tk, key)
		if ttl > 0 {
			p.Expire(ctx, tk, ttl)
		}
		return nil
	})
	return err
}

func (s *RedisStore) Invalidate(ctx context.Context, tag string) (int, error) {
	tk := s.tagKey(tag)
	keys, err := s.rdb.SMembers(ctx, tk).Result()
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	// um DEL por chave: em cluster as entradas caem em slots diferentes
	dels := make([]*redis.IntCmd, 0, len(keys))
	_, err = s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, k := range keys {
			dels = append(dels, p.Del(ctx, k))
		}
		p.Del(ctx, tk)
		return nil
	})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, d := range dels {
		n += int(d.Val())
	}
	return n, nil
}

var (
	_ domain.Store  = (*RedisStore)(nil)
	_ domain.Tagger = (*RedisStore)(nil)
)
