package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"middleware-pipeline/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore grava contadores de decisão em hashes:
//
//	<prefix>:total                   allowed|denied|fail_open (cumulativo, sem TTL)
//	<prefix>:minute:<YYYYmmddHHMM>   idem, por minuto
//	<prefix>:bucket                  <bucket>:<outcome>
//	<prefix>:route                   "<METHOD> <path>:<outcome>"
//	<prefix>:key:<key>               opcional (trackKeys)
type RedisStatsStore struct {
	rdb redis.UniversalClient

	prefix string
	// ttl aplica apenas em chaves de série temporal / por key.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.UniversalClient, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := string(ev.Outcome)
	if field == "" {
		field = string(domain.OutcomeAllowed)
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	if s.bucket == "minute" {
		minuteKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, minuteKey, field, 1)
		s.expire(ctx, pipe, minuteKey)
	}

	if ev.Bucket != "" {
		pipe.HIncrBy(ctx, s.prefix+":bucket", string(ev.Bucket)+":"+field, 1)
	}

	if route := strings.TrimSpace(strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path)); route != "" {
		pipe.HIncrBy(ctx, s.prefix+":route", route+":"+field, 1)
	}

	if s.trackKeys {
		if k := strings.TrimSpace(string(ev.Key)); k != "" {
			keyKey := s.prefix + ":key:" + k
			pipe.HIncrBy(ctx, keyKey, field, 1)
			s.expire(ctx, pipe, keyKey)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStatsStore) expire(ctx context.Context, pipe redis.Pipeliner, key string) {
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
}

// Summary lê o total cumulativo e o recorte por bucket.
func (s *RedisStatsStore) Summary(ctx context.Context) (domain.StatsSummary, error) {
	out := domain.StatsSummary{ByBucket: map[domain.Bucket]domain.Counters{}}
	if s == nil || s.rdb == nil {
		return out, nil
	}

	pipe := s.rdb.Pipeline()
	total := pipe.HGetAll(ctx, s.prefix+":total")
	buckets := pipe.HGetAll(ctx, s.prefix+":bucket")
	if _, err := pipe.Exec(ctx); err != nil {
		return out, err
	}

	for field, raw := range total.Val() {
		n, _ := strconv.ParseInt(raw, 10, 64)
		out.Total.Add(domain.Outcome(field), n)
	}
	// campos "<bucket>:<outcome>"
	for field, raw := range buckets.Val() {
		bucket, outcome, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}
		n, _ := strconv.ParseInt(raw, 10, 64)
		c := out.ByBucket[domain.Bucket(bucket)]
		c.Add(domain.Outcome(outcome), n)
		out.ByBucket[domain.Bucket(bucket)] = c
	}
	return out, nil
}
