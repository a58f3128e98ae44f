// Package security aplica cabeçalhos de segurança e CORS.
package security

import "net/http"

// DefaultHeaders é a base sobre a qual os cabeçalhos configurados são aplicados.
func DefaultHeaders() map[string]string {
	return map[string]string{
		"Content-Security-Policy":   "default-src 'self'; frame-ancestors 'none'",
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"X-Frame-Options":           "DENY",
		"X-Content-Type-Options":    "nosniff",
		"Referrer-Policy":           "strict-origin-when-cross-origin",
		"Permissions-Policy":        "camera=(), microphone=(), geolocation=()",
	}
}

// Headers define cada cabeçalho antes de chamar next. Os configurados são
// aplicados sobre DefaultHeaders; valor vazio remove o cabeçalho.
func Headers(headers map[string]string) func(next http.Handler) http.Handler {
	set := mergeHeaders(DefaultHeaders(), headers)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for k, v := range set {
				if v == "" {
					h.Del(k)
					continue
				}
				h.Set(k, v)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// mergeHeaders copia over sobre base com as chaves na forma canônica,
// para "x-frame-options" substituir "X-Frame-Options".
func mergeHeaders(base, over map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(over))
	for k, v := range base {
		out[http.CanonicalHeaderKey(k)] = v
	}
	for k, v := range over {
		out[http.CanonicalHeaderKey(k)] = v
	}
	return out
}
