// Exemplo: o pipeline embutido direto no roteador da aplicação, sem proxy e com stores em memória.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"middleware-pipeline/internal/config"
	"middleware-pipeline/internal/logger"
	"middleware-pipeline/internal/server"
	authinfra "middleware-pipeline/middleware/auth/infra"
	"middleware-pipeline/middleware/identity"
	"middleware-pipeline/middleware/pipeline"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// segredo de demonstração, usado só quando jwt.secret não vem da configuração
const demoSecret = "example-server-demo-secret-change-me"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cfg.Server.Addr == ":8080" {
		cfg.Server.Addr = ":8081"
	}

	log := logger.New(logger.ParseLevel(cfg.Log.Level), pipeline.RequestIDExtractor, pipeline.UserIDExtractor)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	h, stack, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("app setup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = stack.Shutdown(shutdownCtx)
	}()

	log.Info("example server listening", slog.String("addr", cfg.Server.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (http.Handler, *server.Stack, error) {
	if cfg.JWT.Secret == "" {
		log.Warn("jwt.secret not set; using the demo secret")
		cfg.JWT.Secret = demoSecret
	}
	// o POST em /api/students precisa derrubar a listagem em cache
	cfg.Cache.InvalidateOnWrite = true

	stack, err := server.New(ctx, cfg, server.Deps{Logger: log})
	if err != nil {
		return nil, nil, err
	}

	app := &app{
		issuer:   stack.Issuer(),
		ttl:      cfg.JWT.TTL,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		students: []student{
			{ID: 1, Name: "Ana Souza", Grade: "9A"},
			{ID: 2, Name: "Bruno Lima", Grade: "9B"},
		},
	}

	list := config.Route{Pattern: "/api/students", Cache: true}
	create := config.Route{Pattern: "/api/students", Roles: "teacher|admin", Cache: true}

	h, err := stack.Handler(nil, nil, func(r chi.Router) {
		r.Post("/api/auth/login", app.login)
		r.With(stack.RouteStages(list)...).Get("/api/students", app.listStudents)
		r.With(stack.RouteStages(create)...).Post("/api/students", app.createStudent)
	})
	if err != nil {
		return nil, nil, err
	}
	return h, stack, nil
}

type student struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Grade string `json:"grade"`
}

type demoUser struct {
	id       string
	password string
	roles    []string
}

// usuários fixos de demonstração
var demoUsers = map[string]demoUser{
	"teacher@example.com": {id: "u-teacher", password: "teacher123", roles: []string{"teacher"}},
	"student@example.com": {id: "u-student", password: "student123", roles: []string{"student"}},
}

type app struct {
	issuer   *authinfra.JWTValidator
	ttl      time.Duration
	validate *validator.Validate

	mu       sync.RWMutex
	students []student
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (a *app) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || a.validate.Struct(req) != nil {
		pipeline.WriteError(w, http.StatusBadRequest, pipeline.CodeValidationError, "email and password are required")
		return
	}

	u, ok := demoUsers[req.Email]
	if !ok || u.password != req.Password {
		pipeline.WriteError(w, http.StatusUnauthorized, pipeline.CodeUnauthorized, "invalid credentials")
		return
	}

	token, _, err := a.issuer.Issue(identity.Identity{UserID: u.id, Roles: u.roles}, a.ttl)
	if err != nil {
		pipeline.Fail(w, r, err)
		return
	}
	pipeline.WriteSuccess(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int(a.ttl / time.Second),
	}, "")
}

func (a *app) listStudents(w http.ResponseWriter, _ *http.Request) {
	a.mu.RLock()
	out := make([]student, len(a.students))
	copy(out, a.students)
	a.mu.RUnlock()

	pipeline.WriteSuccess(w, http.StatusOK, out, "")
}

type createStudentRequest struct {
	Name  string `json:"name" validate:"required,max=120"`
	Grade string `json:"grade" validate:"required,max=10"`
}

func (a *app) createStudent(w http.ResponseWriter, r *http.Request) {
	var req createStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || a.validate.Struct(req) != nil {
		pipeline.WriteError(w, http.StatusBadRequest, pipeline.CodeValidationError, "name and grade are required")
		return
	}

	a.mu.Lock()
	s := student{ID: len(a.students) + 1, Name: req.Name, Grade: req.Grade}
	a.students = append(a.students, s)
	a.mu.Unlock()

	w.Header().Set("Location", "/api/students/"+strconv.Itoa(s.ID))
	pipeline.WriteSuccess(w, http.StatusCreated, s, "student created")
}
