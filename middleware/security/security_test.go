package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

func TestHeaders_Defaults(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	Headers(nil)(ok).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	for k, v := range DefaultHeaders() {
		assert.Equal(t, v, w.Header().Get(k), k)
	}
}

func TestHeaders_EmptyValueRemoves(t *testing.T) {
	t.Parallel()

	h := Headers(map[string]string{"X-Powered-By": "", "X-Frame-Options": "SAMEORIGIN"})(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			require.Empty(t, w.Header().Get("X-Powered-By"))
			w.WriteHeader(http.StatusOK)
		}))

	w := httptest.NewRecorder()
	w.Header().Set("X-Powered-By", "php")
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "SAMEORIGIN", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, DefaultHeaders()["Content-Security-Policy"], w.Header().Get("Content-Security-Policy"))
}

func TestHeaders_ConfiguredMergeOverDefaults(t *testing.T) {
	t.Parallel()

	h := Headers(map[string]string{
		"strict-transport-security": "",
		"x-frame-options":           "SAMEORIGIN",
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Empty(t, w.Header().Values("Strict-Transport-Security"))
	assert.Equal(t, []string{"SAMEORIGIN"}, w.Header().Values("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, DefaultHeaders()["Referrer-Policy"], w.Header().Get("Referrer-Policy"))
}

func TestCORS_AllowedOrigin(t *testing.T) {
	t.Parallel()

	h := CORS(CORSOptions{AllowedOrigins: []string{"https://app.escola.dev"}, AllowCredentials: true})(ok)

	r := httptest.NewRequest(http.MethodGet, "/api/students", nil)
	r.Header.Set("Origin", "https://app.escola.dev")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, "https://app.escola.dev", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "X-Request-Id")

	r = httptest.NewRequest(http.MethodGet, "/api/students", nil)
	r.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_Preflight(t *testing.T) {
	t.Parallel()

	h := CORS(CORSOptions{AllowedOrigins: []string{"https://app.escola.dev"}})(ok)

	r := httptest.NewRequest(http.MethodOptions, "/api/students", nil)
	r.Header.Set("Origin", "https://app.escola.dev")
	r.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	r.Header.Set("Access-Control-Request-Headers", "authorization")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.escola.dev", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.MethodPatch, w.Header().Get("Access-Control-Allow-Methods"))
}

func TestCORS_NoOriginsAllowsNone(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://anything.example")
	w := httptest.NewRecorder()
	CORS(CORSOptions{})(ok).ServeHTTP(w, r)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
