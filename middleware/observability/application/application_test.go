package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"middleware-pipeline/middleware/observability/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactor_Value(t *testing.T) {
	t.Parallel()

	r := NewRedactor(0)
	in := map[string]any{
		"username":     "ana",
		"Password":     "hunter2",
		"api_key":      "k",
		"X-Auth-Token": "t",
		"profile": map[string]any{
			"credit-card": "4111",
			"nested":      []any{map[string]any{"client_secret": "s"}, "plain"},
		},
		"age": 9,
	}
	out := r.Value(in).(map[string]any)

	assert.Equal(t, "ana", out["username"])
	assert.Equal(t, Redacted, out["Password"])
	assert.Equal(t, Redacted, out["api_key"])
	assert.Equal(t, Redacted, out["X-Auth-Token"])
	profile := out["profile"].(map[string]any)
	assert.Equal(t, Redacted, profile["credit-card"])
	nested := profile["nested"].([]any)
	assert.Equal(t, Redacted, nested[0].(map[string]any)["client_secret"])
	assert.Equal(t, "plain", nested[1])
	assert.Equal(t, 9, out["age"])

	assert.Equal(t, "hunter2", in["Password"], "a entrada não é alterada")
}

func TestRedactor_Truncates(t *testing.T) {
	t.Parallel()

	r := NewRedactor(5)
	assert.Equal(t, "ábcde"+truncatedSuffix, r.Value("ábcdefgh"))
	assert.Equal(t, "short", r.Value("short"))
}

func TestRedactor_Values(t *testing.T) {
	t.Parallel()

	r := NewRedactor(0)
	out := r.Values(map[string][]string{
		"Authorization": {"Bearer x"},
		"Cookie":        {"sid=1"},
		"Accept":        {"application/json"},
		"X-Multi":       {"a", "b"},
	})
	assert.Equal(t, Redacted, out["Authorization"])
	assert.Equal(t, Redacted, out["Cookie"])
	assert.Equal(t, "application/json", out["Accept"])
	assert.Equal(t, []any{"a", "b"}, out["X-Multi"])
}

func TestRedactor_CustomKeys(t *testing.T) {
	t.Parallel()

	r := NewRedactor(0, "CPF")
	assert.True(t, r.Sensitive("aluno_cpf"))
	assert.False(t, r.Sensitive("password"))
}

func TestSeverity(t *testing.T) {
	t.Parallel()

	slow := 200 * time.Millisecond
	assert.Equal(t, slog.LevelInfo, Severity(200, false, 10*time.Millisecond, slow))
	assert.Equal(t, slog.LevelWarn, Severity(200, false, 250*time.Millisecond, slow))
	assert.Equal(t, slog.LevelWarn, Severity(404, false, 0, slow))
	assert.Equal(t, slog.LevelError, Severity(503, false, 0, slow))
	assert.Equal(t, slog.LevelError, Severity(200, true, 0, slow))
	assert.Equal(t, slog.LevelWarn, Severity(200, false, 201*time.Millisecond, 0), "zero usa o default")
}

func TestClassify(t *testing.T) {
	t.Parallel()

	var runtimeErr error
	func() {
		defer func() { runtimeErr = recover().(error) }()
		var m map[string]int
		m["x"] = 1
	}()

	assert.Equal(t, domain.ClassNone, Classify(nil))
	assert.Equal(t, domain.ClassCritical, Classify(runtimeErr))
	assert.Equal(t, domain.ClassCritical, Classify(fmt.Errorf("db: %w", domain.ErrFatal)))
	assert.Equal(t, domain.ClassWarning, Classify(errors.New("boom")))
	assert.Equal(t, domain.ClassWarning, Classify("string panic"))
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	samples := make([]float64, 0, 100)
	for i := 100; i >= 1; i-- {
		samples = append(samples, float64(i))
	}
	lat := Summarize(samples)
	assert.Equal(t, 100, lat.Count)
	assert.InDelta(t, 50.5, lat.Avg, 0.001)
	assert.InDelta(t, 95.0, lat.P95, 0.001)
	assert.InDelta(t, 99.0, lat.P99, 0.001)
	assert.Equal(t, float64(100), samples[0], "a entrada não é reordenada")

	assert.Equal(t, domain.Latency{}, Summarize(nil))
	one := Summarize([]float64{3.333})
	assert.InDelta(t, 3.33, one.P99, 0.001)
}

type errSink struct{ err error }

func (e errSink) Record(context.Context, domain.Sample) error { return e.err }

type countSink struct{ n int }

func (c *countSink) Record(context.Context, domain.Sample) error { c.n++; return nil }

func TestRecorder_FansOutAndSwallowsErrors(t *testing.T) {
	t.Parallel()

	var logs strings.Builder
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	good := &countSink{}
	rec := NewRecorder(logger, errSink{errors.New("redis down")}, nil, good)

	rec.Record(context.Background(), domain.Sample{Status: 200})
	require.Equal(t, 1, good.n)
	require.Contains(t, logs.String(), "redis down")

	var nilRec *Recorder
	require.NotPanics(t, func() { nilRec.Record(context.Background(), domain.Sample{}) })
}
