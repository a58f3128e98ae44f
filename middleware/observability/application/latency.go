package application

import (
	"math"
	"slices"

	"middleware-pipeline/middleware/observability/domain"
)

// Summarize calcula média, p95 e p99 (nearest-rank) de amostras em milissegundos.
func Summarize(samplesMs []float64) domain.Latency {
	if len(samplesMs) == 0 {
		return domain.Latency{}
	}
	sorted := slices.Clone(samplesMs)
	slices.Sort(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return domain.Latency{
		Count: len(sorted),
		Avg:   round2(sum / float64(len(sorted))),
		P95:   round2(percentile(sorted, 95)),
		P99:   round2(percentile(sorted, 99)),
	}
}

func percentile(sorted []float64, p float64) float64 {
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	return sorted[max(rank-1, 0)]
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
