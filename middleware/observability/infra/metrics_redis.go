// Package infra implementa os sinks de métricas (Redis, memória, Prometheus) e o tracer.
package infra

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"middleware-pipeline/middleware/observability/application"
	"middleware-pipeline/middleware/observability/domain"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultCountersTTL = 24 * time.Hour
	DefaultSamplesTTL  = 5 * time.Minute
	DefaultSampleSize  = 1000
)

// RedisMetricsStore guarda os contadores compartilhados entre instâncias.
type RedisMetricsStore struct {
	rdb         redis.UniversalClient
	prefix      string
	countersTTL time.Duration
	samplesTTL  time.Duration
	sampleSize  int64
}

type RedisMetricsOption func(*RedisMetricsStore)

func WithMetricsPrefix(p string) RedisMetricsOption {
	return func(s *RedisMetricsStore) { s.prefix = strings.Trim(p, ":") }
}

func WithCountersTTL(d time.Duration) RedisMetricsOption {
	return func(s *RedisMetricsStore) { s.countersTTL = d }
}

func WithSamples(size int, ttl time.Duration) RedisMetricsOption {
	return func(s *RedisMetricsStore) {
		if size > 0 {
			s.sampleSize = int64(size)
		}
		if ttl > 0 {
			s.samplesTTL = ttl
		}
	}
}

func NewRedisMetricsStore(rdb redis.UniversalClient, opts ...RedisMetricsOption) *RedisMetricsStore {
	s := &RedisMetricsStore{
		rdb:         rdb,
		prefix:      "metrics",
		countersTTL: DefaultCountersTTL,
		samplesTTL:  DefaultSamplesTTL,
		sampleSize:  DefaultSampleSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisMetricsStore) key(name string) string { return s.prefix + ":" + name }

// Record grava a amostra numa única transação e depois recalcula o resumo de latência.
func (s *RedisMetricsStore) Record(ctx context.Context, smp domain.Sample) error {
	ms := float64(smp.Duration.Microseconds()) / 1000

	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, s.key("total"))
		p.Expire(ctx, s.key("total"), s.countersTTL)

		p.HIncrBy(ctx, s.key("status_class"), smp.StatusClass(), 1)
		p.Expire(ctx, s.key("status_class"), s.countersTTL)

		p.HIncrBy(ctx, s.key("method_status"), smp.Method+":"+strconv.Itoa(smp.Status), 1)
		p.Expire(ctx, s.key("method_status"), s.countersTTL)

		if smp.Status >= 400 || smp.Failed() {
			p.HIncrBy(ctx, s.key("errors"), smp.Endpoint(), 1)
			p.Expire(ctx, s.key("errors"), s.countersTTL)
		}
		if smp.Failed() {
			p.HIncrBy(ctx, s.key("errors_class"), string(smp.ErrorClass), 1)
			p.Expire(ctx, s.key("errors_class"), s.countersTTL)
		}

		p.LPush(ctx, s.key("samples"), strconv.FormatFloat(ms, 'f', 3, 64))
		p.LTrim(ctx, s.key("samples"), 0, s.sampleSize-1)
		p.Expire(ctx, s.key("samples"), s.samplesTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("metrics: record: %w", err)
	}

	return s.refreshSummary(ctx)
}

func (s *RedisMetricsStore) refreshSummary(ctx context.Context) error {
	raw, err := s.rdb.LRange(ctx, s.key("samples"), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("metrics: read samples: %w", err)
	}
	lat := application.Summarize(parseFloats(raw))

	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.key("summary"),
			"count", lat.Count,
			"avg_ms", lat.Avg,
			"p95_ms", lat.P95,
			"p99_ms", lat.P99,
		)
		p.Expire(ctx, s.key("summary"), s.samplesTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("metrics: write summary: %w", err)
	}
	return nil
}

func (s *RedisMetricsStore) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	var (
		total   *redis.StringCmd
		hashes  = map[string]*redis.MapStringStringCmd{}
		summary *redis.MapStringStringCmd
	)
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		total = p.Get(ctx, s.key("total"))
		for _, h := range []string{"status_class", "method_status", "errors", "errors_class"} {
			hashes[h] = p.HGetAll(ctx, s.key(h))
		}
		summary = p.HGetAll(ctx, s.key("summary"))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.Snapshot{}, fmt.Errorf("metrics: snapshot: %w", err)
	}

	snap := domain.Snapshot{
		StatusClass:  toCounts(hashes["status_class"].Val()),
		MethodStatus: toCounts(hashes["method_status"].Val()),
		Errors:       toCounts(hashes["errors"].Val()),
		ErrorClasses: toCounts(hashes["errors_class"].Val()),
	}
	snap.Total, _ = strconv.ParseInt(total.Val(), 10, 64)

	sm := summary.Val()
	snap.Latency.Count, _ = strconv.Atoi(sm["count"])
	snap.Latency.Avg, _ = strconv.ParseFloat(sm["avg_ms"], 64)
	snap.Latency.P95, _ = strconv.ParseFloat(sm["p95_ms"], 64)
	snap.Latency.P99, _ = strconv.ParseFloat(sm["p99_ms"], 64)
	return snap, nil
}

func toCounts(in map[string]string) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		n, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			out[k] = n
		}
	}
	return out
}

func parseFloats(raw []string) []float64 {
	out := make([]float64, 0, len(raw))
	for _, v := range raw {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out = append(out, f)
		}
	}
	return out
}

var _ domain.MetricsStore = (*RedisMetricsStore)(nil)
