package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"middleware-pipeline/internal/logger"
	"middleware-pipeline/internal/redisx"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) Report {
	t.Helper()
	var rep Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	return rep
}

func TestLiveness_AlwaysHealthy(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	Liveness()(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, StatusHealthy, decode(t, w).Status)
}

func TestReadiness_AllChecksPass(t *testing.T) {
	t.Parallel()

	h := Readiness(Checks{
		"a": func(context.Context) error { return nil },
		"b": func(context.Context) error { return nil },
	})
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	require.Equal(t, http.StatusOK, w.Code)
	rep := decode(t, w)
	assert.Equal(t, StatusHealthy, rep.Status)
	assert.Len(t, rep.Checks, 2)
}

func TestReadiness_OneFailureIsUnavailable(t *testing.T) {
	t.Parallel()

	h := Readiness(Checks{
		"ok":  func(context.Context) error { return nil },
		"bad": func(context.Context) error { return errors.New("connection refused") },
	})
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	rep := decode(t, w)
	assert.Equal(t, StatusUnhealthy, rep.Status)
	assert.Equal(t, StatusHealthy, rep.Checks["ok"].Status)
	assert.Equal(t, "connection refused", rep.Checks["bad"].Error)
}

func TestRun_TimeoutMarksCheck(t *testing.T) {
	t.Parallel()

	rep := Run(context.Background(), Checks{
		"slow": func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}, 20*time.Millisecond, logger.NewNope())

	require.Equal(t, StatusUnhealthy, rep.Status)
	require.Contains(t, rep.Checks["slow"].Error, ErrCheckTimeout.Error())
}

func TestReadiness_RedisCheck(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := Readiness(Checks{"redis": redisx.Healthcheck(rdb)})

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)

	mr.Close()
	w = httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}
