// Package domain define os contratos de autenticação e autorização, sem net/http.
package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"middleware-pipeline/middleware/identity"
)

// Erros de negação. São valores esperados (mapeados para 401/403), não falhas.
var (
	// ErrTokenRequired: cabeçalho ausente ou sem o prefixo "Bearer ".
	ErrTokenRequired = errors.New("auth: token required")
	// ErrInvalidToken cobre assinatura, expiração, revogação e usuário desconhecido.
	// O motivo exato nunca chega ao cliente.
	ErrInvalidToken = errors.New("auth: invalid or expired token")
	ErrRevoked      = errors.New("auth: token revoked")

	ErrUnauthenticated = errors.New("auth: no authenticated identity")
	ErrRevokeDisabled  = errors.New("auth: token revocation not configured")
	ErrForbidden       = errors.New("auth: forbidden")
)

// TokenValidator resolve um token para uma identidade (assinatura, expiração, blacklist).
// Identidade nil sem erro é tratada como token inválido.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*identity.Identity, error)
}

// UserLookup confirma que o usuário do token ainda existe.
type UserLookup interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// PermissionResolver decide se a identidade tem a permissão (via papéis).
type PermissionResolver interface {
	HasPermission(ctx context.Context, id identity.Identity, permission string) (bool, error)
}

// Blacklist guarda os jti revogados até a expiração natural do token.
type Blacklist interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Revoker é o lado de escrita da blacklist.
type Revoker interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
}

// Requirement é o que a rota exige. Roles aceita lista separada por "|" (OR).
type Requirement struct {
	Roles      string
	Permission string
}

func (r Requirement) IsZero() bool {
	return strings.TrimSpace(r.Roles) == "" && strings.TrimSpace(r.Permission) == ""
}

// RoleList separa "admin|teacher" em ["admin", "teacher"], ignorando vazios.
func (r Requirement) RoleList() []string {
	var out []string
	for _, role := range strings.Split(r.Roles, "|") {
		if role = strings.TrimSpace(role); role != "" {
			out = append(out, role)
		}
	}
	return out
}
