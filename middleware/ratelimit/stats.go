package ratelimit

import (
	"net/http"

	"middleware-pipeline/middleware/pipeline"
	"middleware-pipeline/middleware/ratelimit/domain"
)

// StatsHandler expõe o agregado de decisões (total e por bucket) no envelope padrão.
func StatsHandler(reader domain.StatsReader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sum, err := reader.Summary(r.Context())
		if err != nil {
			pipeline.WriteError(w, http.StatusServiceUnavailable, pipeline.CodeServiceUnavailable, "ratelimit stats unavailable")
			return
		}
		pipeline.WriteSuccess(w, http.StatusOK, sum, "")
	})
}
