package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"middleware-pipeline/internal/config"
	"middleware-pipeline/middleware/identity"
	"middleware-pipeline/middleware/pipeline"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "gateway-test-secret-32-bytes-ok!"

const routesYAML = `
jwt:
  secret: "` + testSecret + `"
ratelimit:
  default_max: 3
  user_default: 50
routes:
  - pattern: /api/students
    methods: [GET]
    cache: true
  - pattern: /api/grades
    roles: teacher|admin
  - pattern: /api/reports
    permission: reports.read
role_permissions:
  staff: ["reports.*"]
`

func loadConfig(t *testing.T, body string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	return cfg
}

// upstream simula o serviço de domínio e conta as chamadas.
func upstream(t *testing.T, calls *atomic.Int32) *url.URL {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"path":"` + r.URL.Path + `"}}`))
	}))
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return u
}

func newHandler(t *testing.T, cfg *config.Config, deps Deps, target *url.URL) (*Stack, http.Handler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s, err := New(ctx, cfg, deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	proxy := NewProxy(target, nil)
	h, err := s.Handler(proxy, proxy, nil)
	require.NoError(t, err)
	return s, h
}

func call(h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, nil)
	r.RemoteAddr = "198.51.100.7:4000"
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env pipeline.ErrorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Error.Code
}

func token(t *testing.T, s *Stack, userID string, roles ...string) string {
	t.Helper()
	require.NotNil(t, s.Issuer())
	tok, _, err := s.Issuer().Issue(identity.Identity{UserID: userID, Roles: roles}, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestStack_UnmatchedGoesToUpstreamWithGlobalStages(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	_, h := newHandler(t, loadConfig(t, routesYAML), Deps{}, upstream(t, &calls))

	w := call(h, http.MethodGet, "/api/announcements", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.NotEmpty(t, w.Header().Get("X-Response-Time"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, w.Body.String(), "/api/announcements")
	assert.Equal(t, int32(1), calls.Load())
}

func TestStack_RoleProtectedRoute(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	s, h := newHandler(t, loadConfig(t, routesYAML), Deps{}, upstream(t, &calls))

	w := call(h, http.MethodGet, "/api/grades", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, pipeline.CodeUnauthorized, errorCode(t, w))

	w = call(h, http.MethodGet, "/api/grades", token(t, s, "s-1", "student"))
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, pipeline.CodeForbidden, errorCode(t, w))

	w = call(h, http.MethodGet, "/api/grades", token(t, s, "t-1", "teacher"))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, int32(1), calls.Load())
}

func TestStack_PermissionFromRoleMap(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	s, h := newHandler(t, loadConfig(t, routesYAML), Deps{}, upstream(t, &calls))

	require.Equal(t, http.StatusOK, call(h, http.MethodGet, "/api/reports", token(t, s, "st-1", "staff")).Code)
	require.Equal(t, http.StatusForbidden, call(h, http.MethodGet, "/api/reports", token(t, s, "s-1", "student")).Code)
}

func TestStack_CachedRoute(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	_, h := newHandler(t, loadConfig(t, routesYAML), Deps{}, upstream(t, &calls))

	first := call(h, http.MethodGet, "/api/students", "")
	require.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := call(h, http.MethodGet, "/api/students", "")
	require.Equal(t, "HIT", second.Header().Get("X-Cache"))
	require.Equal(t, first.Body.String(), second.Body.String())
	require.Equal(t, int32(1), calls.Load())

	// método fora da rota vai direto para o upstream, sem cache
	post := call(h, http.MethodPost, "/api/students", "")
	require.Equal(t, http.StatusOK, post.Code)
	require.Empty(t, post.Header().Get("X-Cache"))
}

func TestStack_RateLimitPerIP(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	_, h := newHandler(t, loadConfig(t, routesYAML), Deps{}, upstream(t, &calls))

	for range 3 {
		require.Equal(t, http.StatusOK, call(h, http.MethodGet, "/api/news", "").Code)
	}
	w := call(h, http.MethodGet, "/api/news", "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, pipeline.CodeRateLimitExceeded, errorCode(t, w))
	require.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestStack_UpstreamDownIsBadGateway(t *testing.T) {
	t.Parallel()

	dead := httptest.NewServer(http.NotFoundHandler())
	target, err := url.Parse(dead.URL)
	require.NoError(t, err)
	dead.Close()

	_, h := newHandler(t, loadConfig(t, routesYAML), Deps{}, target)

	w := call(h, http.MethodGet, "/api/anything", "")
	require.Equal(t, http.StatusBadGateway, w.Code)
	require.Equal(t, pipeline.CodeBadGateway, errorCode(t, w))
}

func TestStack_OperationalEndpoints(t *testing.T) {
	t.Parallel()

	cfg := loadConfig(t, routesYAML)
	cfg.RateLimit.DefaultMax = 100

	var calls atomic.Int32
	_, h := newHandler(t, cfg, Deps{}, upstream(t, &calls))

	call(h, http.MethodGet, "/api/announcements", "")

	require.Equal(t, http.StatusOK, call(h, http.MethodGet, "/health", "").Code)
	require.Equal(t, http.StatusOK, call(h, http.MethodGet, "/ready", "").Code)

	m := call(h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, m.Code)
	require.Contains(t, m.Body.String(), "pipeline_http_requests_total")

	summary := call(h, http.MethodGet, "/metrics/summary", "")
	require.Equal(t, http.StatusOK, summary.Code)
	require.True(t, strings.Contains(summary.Body.String(), `"success":true`))
	require.Equal(t, int32(1), calls.Load())
}

func TestStack_RateLimitStatsEndpoint(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	_, h := newHandler(t, loadConfig(t, routesYAML), Deps{}, upstream(t, &calls))
	require.Equal(t, http.StatusOK, call(h, http.MethodGet, "/metrics/ratelimit", "").Code)
	require.Equal(t, int32(1), calls.Load(), "sem stats a rota cai no proxy")

	cfg := loadConfig(t, routesYAML)
	cfg.RateLimit.Stats.Enabled = true
	_, h = newHandler(t, cfg, Deps{}, upstream(t, &calls))
	for range 4 {
		call(h, http.MethodGet, "/api/announcements", "")
	}

	// outro IP, senão o próprio endpoint seria barrado
	r := httptest.NewRequest(http.MethodGet, "/metrics/ratelimit", nil)
	r.RemoteAddr = "198.51.100.8:4000"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var env struct {
		Data struct {
			Total struct {
				Allowed int64 `json:"allowed"`
				Denied  int64 `json:"denied"`
			} `json:"total"`
			ByBucket map[string]json.RawMessage `json:"by_bucket"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Equal(t, int64(4), env.Data.Total.Allowed, "três do primeiro IP e a própria consulta")
	require.Equal(t, int64(1), env.Data.Total.Denied)
	require.Contains(t, env.Data.ByBucket, "ip")
}

func TestStack_RedisBackedStores(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	var calls atomic.Int32
	_, h := newHandler(t, loadConfig(t, routesYAML), Deps{Redis: rdb}, upstream(t, &calls))

	require.Equal(t, "MISS", call(h, http.MethodGet, "/api/students", "").Header().Get("X-Cache"))
	require.Equal(t, "HIT", call(h, http.MethodGet, "/api/students", "").Header().Get("X-Cache"))
	require.Equal(t, http.StatusOK, call(h, http.MethodGet, "/ready", "").Code)

	keys := mr.Keys()
	assert.True(t, hasPrefix(keys, "ratelimit:"), "contadores de rate limit no redis: %v", keys)
	assert.True(t, hasPrefix(keys, "respcache:"), "entrada de cache no redis: %v", keys)
	assert.True(t, hasPrefix(keys, "metrics:"), "métricas no redis: %v", keys)
}

func TestStack_LogoutRevokesToken(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	var calls atomic.Int32
	s, h := newHandler(t, loadConfig(t, routesYAML), Deps{Redis: rdb}, upstream(t, &calls))
	tok := token(t, s, "t1", "teacher")

	require.Equal(t, http.StatusOK, call(h, http.MethodGet, "/api/grades", tok).Code)
	require.Equal(t, http.StatusOK, call(h, http.MethodPost, "/auth/logout", tok).Code)
	require.True(t, hasPrefix(mr.Keys(), "auth:revoked:"))

	w := call(h, http.MethodGet, "/api/grades", tok)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, int32(1), calls.Load())
}

func TestStack_NoLogoutWithoutRedis(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	s, h := newHandler(t, loadConfig(t, routesYAML), Deps{}, upstream(t, &calls))

	// sem blacklist gravável a rota não existe e a requisição segue para o upstream
	require.Equal(t, http.StatusOK, call(h, http.MethodPost, "/auth/logout", token(t, s, "t1")).Code)
	require.Equal(t, int32(1), calls.Load())
}

func hasPrefix(keys []string, prefix string) bool {
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

func TestStack_OrderAddsTracingAfterRecover(t *testing.T) {
	t.Parallel()

	cfg := loadConfig(t, routesYAML)
	s, err := New(context.Background(), cfg, Deps{})
	require.NoError(t, err)
	require.Equal(t, config.DefaultOrder, s.Order())

	cfg.Tracing.Enabled = true
	require.Equal(t, []string{"recover", "tracing", "observability"}, s.Order()[:3])
}

func TestStack_UnknownStageInOrder(t *testing.T) {
	t.Parallel()

	cfg := loadConfig(t, routesYAML)
	cfg.Pipeline.Order = []string{"recover", "gzip"}
	s, err := New(context.Background(), cfg, Deps{})
	require.NoError(t, err)

	_, err = s.Handler(nil, nil, nil)
	require.ErrorIs(t, err, pipeline.ErrUnknownStage)
}
