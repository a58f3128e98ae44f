package application

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"middleware-pipeline/middleware/respcache/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_StableAcrossParameterOrder(t *testing.T) {
	t.Parallel()

	a, _ := url.ParseQuery("b=2&a=1&a=0")
	b, _ := url.ParseQuery("a=0&b=2&a=1")
	require.Equal(t, Key(http.MethodGet, "/api/students", a, ""), Key(http.MethodGet, "/api/students/", b, ""))
}

func TestKey_Distinguishes(t *testing.T) {
	t.Parallel()

	q := url.Values{"page": {"1"}}
	base := Key(http.MethodGet, "/api/students", q, "")

	assert.NotEqual(t, base, Key(http.MethodGet, "/api/teachers", q, ""))
	assert.NotEqual(t, base, Key(http.MethodGet, "/api/students", url.Values{"page": {"2"}}, ""))
	assert.NotEqual(t, base, Key(http.MethodGet, "/api/students", q, "u1"))
	assert.NotEqual(t, Key(http.MethodGet, "/x/AbC", nil, ""), Key(http.MethodGet, "/x/aBc", nil, ""), "caminho diferencia caixa")
	assert.Equal(t, base, Key(http.MethodHead, "/api/students", q, ""), "HEAD reaproveita a entrada de GET")
	assert.Regexp(t, `^respcache:[0-9a-f]{64}$`, base)
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                  "/",
		"/":                 "/",
		"/API/Students/":    "/API/Students",
		"/x/AbC":            "/x/AbC",
		"api/students":      "/api/students",
		"/api//students/./": "/api/students",
		"/api/x/../y":       "/api/y",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePath(in), in)
	}
}

func TestResourceTag(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/api/students", ResourceTag("/api/students/7/grades", 2))
	assert.Equal(t, "/api/students", ResourceTag("/api/students", 0))
	assert.Equal(t, "/api", ResourceTag("/api/students/7", 1))
	assert.Equal(t, "/", ResourceTag("/", 2))
	assert.Equal(t, "/api/students", ResourceTag("/API/Students/7", 2))
}

func TestExcluded(t *testing.T) {
	t.Parallel()

	assert.True(t, Excluded("/api/auth/login", DefaultExcludedPrefixes))
	assert.True(t, Excluded("/api/me", DefaultExcludedPrefixes))
	assert.False(t, Excluded("/api/meetings", DefaultExcludedPrefixes), "prefixo casa por segmento")
	assert.False(t, Excluded("/api/students", DefaultExcludedPrefixes))
	assert.True(t, Excluded("/API/Auth/login", DefaultExcludedPrefixes))
}

func TestCacheableResponse(t *testing.T) {
	t.Parallel()

	h := func(kv ...string) http.Header {
		out := http.Header{}
		for i := 0; i < len(kv); i += 2 {
			out.Add(kv[i], kv[i+1])
		}
		return out
	}

	assert.True(t, CacheableResponse(200, h("Content-Type", "application/json; charset=utf-8")))
	assert.True(t, CacheableResponse(200, h("Content-Type", "application/problem+json")))
	assert.False(t, CacheableResponse(404, h("Content-Type", "application/json")))
	assert.False(t, CacheableResponse(206, h("Content-Type", "application/json")))
	assert.False(t, CacheableResponse(200, h("Content-Type", "text/html")))
	assert.False(t, CacheableResponse(200, h("Content-Type", "application/json", "Set-Cookie", "a=b")))
	assert.False(t, CacheableResponse(200, h("Content-Type", "application/json", "Cache-Control", "no-store")))
	assert.False(t, CacheableResponse(200, h("Content-Type", "application/json", "Cache-Control", "max-age=0, private")))
}

type mapStore map[string]domain.Entry

func (m mapStore) Get(_ context.Context, k string) (domain.Entry, error) {
	e, ok := m[k]
	if !ok {
		return domain.Entry{}, domain.ErrNotFound
	}
	return e, nil
}
func (m mapStore) Set(_ context.Context, k string, e domain.Entry, _ time.Duration) error {
	m[k] = e
	return nil
}
func (m mapStore) Delete(_ context.Context, k string) error { delete(m, k); return nil }

type brokenStore struct{ mapStore }

func (brokenStore) Get(context.Context, string) (domain.Entry, error) {
	return domain.Entry{}, errors.New("connection refused")
}

func TestService_LookupAndSave(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	store := mapStore{}
	svc := Service{Store: store, TTL: time.Minute, Now: func() time.Time { return now }}

	_, hit, err := svc.Lookup(context.Background(), "k")
	require.NoError(t, err)
	require.False(t, hit)

	require.NoError(t, svc.Save(context.Background(), "k", "/api/students", domain.Entry{Status: 200, Body: []byte("{}")}))
	e, hit, err := svc.Lookup(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, now, e.StoredAt)

	now = now.Add(42*time.Second + 900*time.Millisecond)
	require.Equal(t, int64(42), svc.Age(e))

	// o mapStore não expira nada; quem corta é o relógio do serviço
	now = now.Add(time.Minute)
	_, hit, err = svc.Lookup(context.Background(), "k")
	require.NoError(t, err)
	require.False(t, hit)
}

func TestService_StoreErrorIsMiss(t *testing.T) {
	t.Parallel()

	svc := Service{Store: brokenStore{mapStore{}}}
	_, hit, err := svc.Lookup(context.Background(), "k")
	require.False(t, hit)
	require.Error(t, err)
}

func TestService_TaggingNeedsTagger(t *testing.T) {
	t.Parallel()

	svc := Service{Store: mapStore{}, Tagging: true}
	err := svc.Save(context.Background(), "k", "/api/students", domain.Entry{Status: 200})
	require.ErrorIs(t, err, ErrTagsUnsupported)

	_, err = svc.InvalidateResource(context.Background(), "/api/students")
	require.ErrorIs(t, err, ErrTagsUnsupported)
}
