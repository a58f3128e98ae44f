package server

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"middleware-pipeline/middleware/pipeline"
)

// NewProxy encaminha para o serviço de domínio. Falha de upstream vira 502 BAD_GATEWAY no envelope.
func NewProxy(target *url.URL, logger *slog.Logger) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if logger != nil {
			logger.ErrorContext(r.Context(), "proxy error",
				slog.String("upstream", target.Host),
				slog.String("error", err.Error()),
			)
		}
		pipeline.WriteError(w, http.StatusBadGateway, pipeline.CodeBadGateway, "bad gateway")
	}
	return proxy
}
