// Upstream burro para validar o gateway na mão: responde HTML, um JSON de alunos e um login
// que emite tokens com o mesmo segredo configurado no gateway.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"middleware-pipeline/internal/config"
	"middleware-pipeline/internal/logger"
	authinfra "middleware-pipeline/middleware/auth/infra"
	"middleware-pipeline/middleware/identity"
	"middleware-pipeline/middleware/pipeline"

	"github.com/go-chi/chi/v5"
)

const addr = ":8081"

func main() {
	log := logger.New(slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var issuer *authinfra.JWTValidator
	if cfg.JWT.Secret != "" {
		issuer, err = authinfra.NewJWTValidator([]byte(cfg.JWT.Secret), authinfra.WithIssuer(cfg.JWT.Issuer))
		if err != nil {
			log.Error("jwt setup failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	r := chi.NewRouter()

	r.Get("/showTela", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<h1>Tela do Sistema</h1><p>Requisição recebida com sucesso!</p>")
		log.Info("showTela accessed", slog.String("remote", r.RemoteAddr))
	})

	r.Get("/api/students", func(w http.ResponseWriter, r *http.Request) {
		pipeline.WriteSuccess(w, http.StatusOK, []map[string]any{
			{"id": 1, "name": "Ana Souza", "grade": "9A"},
			{"id": 2, "name": "Bruno Lima", "grade": "9B"},
		}, "")
		log.Info("students listed", slog.String("request_id", r.Header.Get("X-Request-ID")))
	})

	// qualquer usuário entra; o papel vem do corpo
	r.Post("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if issuer == nil {
			pipeline.WriteError(w, http.StatusServiceUnavailable, pipeline.CodeServiceUnavailable, "jwt secret not configured")
			return
		}
		var req struct {
			UserID string `json:"user_id"`
			Role   string `json:"role"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
			pipeline.WriteError(w, http.StatusBadRequest, pipeline.CodeValidationError, "user_id is required")
			return
		}
		id := identity.Identity{UserID: req.UserID}
		if req.Role != "" {
			id.Roles = []string{req.Role}
		}
		token, _, err := issuer.Issue(id, cfg.JWT.TTL)
		if err != nil {
			pipeline.Fail(w, r, err)
			return
		}
		pipeline.WriteSuccess(w, http.StatusOK, map[string]string{"token": token}, "")
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info("upstream stub listening", slog.String("addr", "http://localhost"+addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
