package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"middleware-pipeline/middleware/auth/domain"
	"middleware-pipeline/middleware/pipeline"
)

// TokenRevoker invalida um token bruto (ex.: *infra.JWTValidator).
type TokenRevoker interface {
	Revoke(ctx context.Context, token string) error
}

// Logout revoga o token da requisição. Monte atrás de RequireAuth: o token vem do RequestContext.
func Logout(revoker TokenRevoker, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = nopLogger()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := pipeline.From(r.Context()).Token()
		if token == "" {
			pipeline.WriteError(w, http.StatusUnauthorized, pipeline.CodeUnauthorized, msgTokenRequired)
			return
		}

		err := revoker.Revoke(r.Context(), token)
		switch {
		case err == nil:
			pipeline.WriteSuccess(w, http.StatusOK, nil, "logged out")
		case errors.Is(err, domain.ErrRevokeDisabled):
			pipeline.WriteError(w, http.StatusServiceUnavailable, pipeline.CodeServiceUnavailable, "logout unavailable")
		case errors.Is(err, domain.ErrInvalidToken):
			pipeline.WriteError(w, http.StatusUnauthorized, pipeline.CodeUnauthorized, msgInvalidToken)
		default:
			logger.ErrorContext(r.Context(), "token revocation failed", slog.String("error", err.Error()))
			pipeline.WriteError(w, http.StatusServiceUnavailable, pipeline.CodeServiceUnavailable, "logout unavailable")
		}
	})
}
