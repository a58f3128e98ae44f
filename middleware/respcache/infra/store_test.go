package infra

import (
	"context"
	"sync"
	"testing"
	"time"

	"middleware-pipeline/middleware/respcache/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func sample() domain.Entry {
	return domain.Entry{
		Status:   200,
		Header:   map[string][]string{"Content-Type": {"application/json"}},
		Body:     []byte(`{"success":true}`),
		StoredAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// --- RedisStore ---

func TestRedisStore_RoundTripWithTTL(t *testing.T) {
	t.Parallel()

	mr, rdb := newRedis(t)
	s := NewRedisStore(rdb)
	ctx := context.Background()

	_, err := s.Get(ctx, "respcache:a")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.Set(ctx, "respcache:a", sample(), time.Minute))
	require.Equal(t, time.Minute, mr.TTL("respcache:a"))

	got, err := s.Get(ctx, "respcache:a")
	require.NoError(t, err)
	require.Equal(t, sample(), got)

	mr.FastForward(2 * time.Minute)
	_, err = s.Get(ctx, "respcache:a")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRedisStore_TagsAndInvalidate(t *testing.T) {
	t.Parallel()

	mr, rdb := newRedis(t)
	s := NewRedisStore(rdb)
	ctx := context.Background()

	for _, k := range []string{"k1", "k2"} {
		require.NoError(t, s.Set(ctx, k, sample(), time.Minute))
		require.NoError(t, s.Tag(ctx, "/api/students", k, time.Minute))
	}
	require.NoError(t, s.Set(ctx, "other", sample(), time.Minute))

	n, err := s.Invalidate(ctx, "/api/students")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.False(t, mr.Exists("k1"))
	require.False(t, mr.Exists("respcache:tag:/api/students"))
	require.True(t, mr.Exists("other"))

	n, err = s.Invalidate(ctx, "/api/students")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRedisStore_CorruptEntry(t *testing.T) {
	t.Parallel()

	mr, rdb := newRedis(t)
	require.NoError(t, mr.Set("bad", "not json"))

	_, err := NewRedisStore(rdb).Get(context.Background(), "bad")
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrNotFound)
}

// delRecorder guarda os DEL que passam pelo cliente.
type delRecorder struct {
	mu   sync.Mutex
	dels [][]any
}

func (h *delRecorder) record(cmd redis.Cmder) {
	if cmd.Name() != "del" {
		return
	}
	h.mu.Lock()
	h.dels = append(h.dels, cmd.Args()[1:])
	h.mu.Unlock()
}

func (h *delRecorder) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *delRecorder) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.record(cmd)
		return next(ctx, cmd)
	}
}

func (h *delRecorder) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, c := range cmds {
			h.record(c)
		}
		return next(ctx, cmds)
	}
}

func TestRedisStore_InvalidateDeletesKeysOneByOne(t *testing.T) {
	t.Parallel()

	_, rdb := newRedis(t)
	hook := &delRecorder{}
	rdb.AddHook(hook)
	s := NewRedisStore(rdb)
	ctx := context.Background()

	for _, k := range []string{"respcache:k1", "respcache:k2", "respcache:k3"} {
		require.NoError(t, s.Set(ctx, k, sample(), time.Minute))
		require.NoError(t, s.Tag(ctx, "/api/students", k, time.Minute))
	}
	require.NoError(t, s.Tag(ctx, "/api/students", "respcache:gone", time.Minute))

	n, err := s.Invalidate(ctx, "/api/students")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	require.Len(t, hook.dels, 5)
	for _, args := range hook.dels {
		require.Len(t, args, 1)
	}
}

// --- MemoryStore ---

func TestMemoryStore_ExpiresByClock(t *testing.T) {
	t.Parallel()

	now := time.Now()
	m := NewMemoryStore(WithClock(func() time.Time { return now }))
	t.Cleanup(func() { _ = m.Close() })
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", sample(), time.Minute))
	_, err := m.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = m.Get(ctx, "k")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.Zero(t, m.Len())
}

func TestMemoryStore_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore(WithMaxEntries(2))
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", sample(), time.Minute))
	require.NoError(t, m.Set(ctx, "b", sample(), time.Minute))
	_, err := m.Get(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, m.Set(ctx, "c", sample(), time.Minute))

	_, err = m.Get(ctx, "b")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = m.Get(ctx, "a")
	require.NoError(t, err)
}

func TestMemoryStore_Invalidate(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "k1", sample(), time.Minute))
	require.NoError(t, m.Tag(ctx, "/api/students", "k1", time.Minute))
	require.NoError(t, m.Tag(ctx, "/api/students", "gone", time.Minute))

	n, err := m.Invalidate(ctx, "/api/students")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Zero(t, m.Len())
}

func TestMemoryStore_JanitorAndClose(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "k", sample(), 5*time.Millisecond))
	m.StartJanitor(ctx, time.Millisecond)

	require.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	require.ErrorIs(t, m.Set(ctx, "k", sample(), time.Minute), domain.ErrClosed)
}
