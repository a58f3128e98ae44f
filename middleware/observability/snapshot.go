package observability

import (
	"net/http"

	"middleware-pipeline/middleware/observability/domain"
	"middleware-pipeline/middleware/pipeline"
)

// SnapshotHandler expõe o agregado do store no envelope de sucesso.
func SnapshotHandler(store domain.MetricsStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap, err := store.Snapshot(r.Context())
		if err != nil {
			pipeline.WriteError(w, http.StatusServiceUnavailable, pipeline.CodeServiceUnavailable, "metrics unavailable")
			return
		}
		pipeline.WriteSuccess(w, http.StatusOK, snap, "")
	})
}
