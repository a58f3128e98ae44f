//go:build integration

package server

import (
	"context"
	"net/http"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"middleware-pipeline/internal/redisx"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Roda contra um Redis real: REDIS_URL=redis://localhost:6379/0 go test -tags integration ./internal/server/
func TestStack_RealRedis(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rdb, err := redisx.Open(ctx, url, redisx.WithOpTimeout(500*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisx.Shutdown(rdb) })

	cfg := loadConfig(t, routesYAML)
	// prefixos únicos para não colidir com execuções anteriores
	run := uuid.NewString()
	cfg.RateLimit.Prefix = "it:" + run + ":ratelimit"
	cfg.Observability.MetricsPrefix = "it:" + run + ":metrics"

	var calls atomic.Int32
	_, h := newHandler(t, cfg, Deps{Redis: rdb}, upstream(t, &calls))

	require.Equal(t, http.StatusOK, call(h, http.MethodGet, "/ready", "").Code)
	for range 2 {
		require.Equal(t, http.StatusOK, call(h, http.MethodGet, "/api/"+run, "").Code)
	}
	require.Equal(t, http.StatusTooManyRequests, call(h, http.MethodGet, "/api/"+run, "").Code)
}
