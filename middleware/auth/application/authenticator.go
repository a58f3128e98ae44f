// Package application contém os casos de uso de autenticação e autorização.
package application

import (
	"context"
	"errors"
	"strings"

	"middleware-pipeline/middleware/auth/domain"
	"middleware-pipeline/middleware/identity"
)

const bearerPrefix = "Bearer "

// Authenticator valida o cabeçalho Authorization. Não faz checagem de papel/permissão.
type Authenticator struct {
	Validator domain.TokenValidator
	Users     domain.UserLookup
}

// Authenticate devolve a identidade e o token bruto.
//
// Os erros sempre satisfazem errors.Is com ErrTokenRequired ou ErrInvalidToken;
// a causa original vem junto (errors.Join) apenas para log.
func (a Authenticator) Authenticate(ctx context.Context, header string) (identity.Identity, string, error) {
	// prefixo exato e sensível a maiúsculas
	if !strings.HasPrefix(header, bearerPrefix) {
		return identity.Identity{}, "", domain.ErrTokenRequired
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return identity.Identity{}, "", domain.ErrTokenRequired
	}

	if a.Validator == nil {
		return identity.Identity{}, "", domain.ErrInvalidToken
	}
	id, err := a.Validator.Validate(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidToken) {
			return identity.Identity{}, "", err
		}
		return identity.Identity{}, "", errors.Join(domain.ErrInvalidToken, err)
	}
	if id == nil || id.UserID == "" {
		return identity.Identity{}, "", domain.ErrInvalidToken
	}

	if a.Users != nil {
		ok, err := a.Users.Exists(ctx, id.UserID)
		if err != nil {
			return identity.Identity{}, "", errors.Join(domain.ErrInvalidToken, err)
		}
		if !ok {
			return identity.Identity{}, "", domain.ErrInvalidToken
		}
	}

	return id.Clone(), token, nil
}
