package application

import (
	"context"
	"io"
	"log/slog"

	"middleware-pipeline/middleware/observability/domain"
)

// Recorder repassa cada amostra a todos os sinks. Falhas viram log DEBUG e nada mais.
type Recorder struct {
	sinks  []domain.Sink
	logger *slog.Logger
}

func NewRecorder(logger *slog.Logger, sinks ...domain.Sink) *Recorder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	out := make([]domain.Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Recorder{sinks: out, logger: logger}
}

func (r *Recorder) Record(ctx context.Context, s domain.Sample) {
	if r == nil {
		return
	}
	for _, sink := range r.sinks {
		if err := sink.Record(ctx, s); err != nil {
			r.logger.DebugContext(ctx, "metrics sample dropped", slog.String("error", err.Error()))
		}
	}
}
