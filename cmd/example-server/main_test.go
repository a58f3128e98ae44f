package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"middleware-pipeline/internal/config"
	"middleware-pipeline/internal/logger"

	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) http.Handler {
	t.Helper()
	cfg, err := config.LoadFile(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h, _, err := newApp(ctx, cfg, logger.NewNope())
	require.NoError(t, err)
	return h
}

func send(h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func login(t *testing.T, h http.Handler, email, password string) string {
	t.Helper()
	w := send(h, http.MethodPost, "/api/auth/login", `{"email":"`+email+`","password":"`+password+`"}`, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var env struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NotEmpty(t, env.Data.Token)
	return env.Data.Token
}

func TestApp_LoginRejectsBadCredentials(t *testing.T) {
	t.Parallel()
	h := newTestApp(t)

	w := send(h, http.MethodPost, "/api/auth/login", `{"email":"teacher@example.com","password":"nope"}`, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = send(h, http.MethodPost, "/api/auth/login", `{"email":"not-an-email"}`, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApp_ListIsCachedAndCreateInvalidates(t *testing.T) {
	t.Parallel()
	h := newTestApp(t)

	w := send(h, http.MethodGet, "/api/students", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "MISS", w.Header().Get("X-Cache"))
	require.Equal(t, "HIT", send(h, http.MethodGet, "/api/students", "", "").Header().Get("X-Cache"))

	teacher := login(t, h, "teacher@example.com", "teacher123")
	w = send(h, http.MethodPost, "/api/students", `{"name":"<script>x</script>Carla","grade":"8A"}`, teacher)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NotContains(t, w.Body.String(), "<script>")

	w = send(h, http.MethodGet, "/api/students", "", "")
	require.Equal(t, "MISS", w.Header().Get("X-Cache"))
	require.Contains(t, w.Body.String(), "Carla")
}

func TestApp_CreateRequiresTeacher(t *testing.T) {
	t.Parallel()
	h := newTestApp(t)

	require.Equal(t, http.StatusUnauthorized,
		send(h, http.MethodPost, "/api/students", `{"name":"X","grade":"1A"}`, "").Code)

	student := login(t, h, "student@example.com", "student123")
	require.Equal(t, http.StatusForbidden,
		send(h, http.MethodPost, "/api/students", `{"name":"X","grade":"1A"}`, student).Code)
}
