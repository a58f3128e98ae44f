// Package auth expõe autenticação JWT e autorização RBAC como middlewares HTTP.
package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"middleware-pipeline/middleware/auth/application"
	"middleware-pipeline/middleware/auth/domain"
	"middleware-pipeline/middleware/pipeline"
)

const (
	msgTokenRequired = "token required"
	msgInvalidToken  = "invalid or expired token"
	msgForbidden     = "insufficient permissions"
)

type Options struct {
	Authenticator application.Authenticator

	// Optional anexa a identidade quando o token é válido e nunca rejeita.
	// É o modo do estágio global, para o rate limiter enxergar o usuário.
	Optional bool

	Logger *slog.Logger
}

func nopLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// Authenticate resolve o cabeçalho Authorization e grava a identidade no RequestContext.
// Se a identidade já estiver lá, o estágio só repassa.
func Authenticate(opts Options) func(next http.Handler) http.Handler {
	if opts.Logger == nil {
		opts.Logger = nopLogger()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, rc := pipeline.Ensure(r)
			if _, ok := rc.Identity(); ok {
				next.ServeHTTP(w, r)
				return
			}

			id, token, err := opts.Authenticator.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err == nil {
				rc.SetIdentity(id, token)
				next.ServeHTTP(w, r)
				return
			}

			if opts.Optional {
				if !errors.Is(err, domain.ErrTokenRequired) {
					opts.Logger.DebugContext(r.Context(), "optional authentication failed", slog.String("error", err.Error()))
				}
				next.ServeHTTP(w, r)
				return
			}

			msg := msgInvalidToken
			if errors.Is(err, domain.ErrTokenRequired) {
				msg = msgTokenRequired
			} else {
				opts.Logger.InfoContext(r.Context(), "authentication rejected", slog.String("error", err.Error()))
			}
			pipeline.WriteError(w, http.StatusUnauthorized, pipeline.CodeUnauthorized, msg)
		})
	}
}

// RequireAuth exige identidade; reaproveita a do estágio opcional quando houver.
func RequireAuth(opts Options) func(next http.Handler) http.Handler {
	opts.Optional = false
	return Authenticate(opts)
}

// Guard aplica requisitos de papel/permissão sobre a identidade do RequestContext.
type Guard struct {
	Authorizer application.Authorizer
	Logger     *slog.Logger
}

func (g Guard) Require(req domain.Requirement) func(next http.Handler) http.Handler {
	logger := g.Logger
	if logger == nil {
		logger = nopLogger()
	}

	return func(next http.Handler) http.Handler {
		if req.IsZero() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, rc := pipeline.Ensure(r)

			var idp *pipeline.Identity
			if id, ok := rc.Identity(); ok {
				idp = &id
			}

			err := g.Authorizer.Authorize(r.Context(), idp, req)
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, domain.ErrUnauthenticated):
				pipeline.WriteError(w, http.StatusUnauthorized, pipeline.CodeUnauthorized, msgTokenRequired)
			default:
				// negação simples é o próprio sentinel; qualquer outra coisa traz causa
				if err != domain.ErrForbidden { //nolint:errorlint
					logger.WarnContext(r.Context(), "authorization check failed", slog.String("error", err.Error()))
				}
				pipeline.WriteError(w, http.StatusForbidden, pipeline.CodeForbidden, msgForbidden)
			}
		})
	}
}

// RequireRoles aceita "admin|teacher" (qualquer um dos papéis).
func (g Guard) RequireRoles(roles string) func(next http.Handler) http.Handler {
	return g.Require(domain.Requirement{Roles: roles})
}

func (g Guard) RequirePermission(perm string) func(next http.Handler) http.Handler {
	return g.Require(domain.Requirement{Permission: perm})
}
