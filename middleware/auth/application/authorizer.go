package application

import (
	"context"
	"errors"

	"middleware-pipeline/middleware/auth/domain"
	"middleware-pipeline/middleware/identity"
)

// Authorizer aplica RBAC sobre uma identidade já resolvida.
type Authorizer struct {
	Resolver domain.PermissionResolver
}

// Authorize devolve nil (permitido), ErrUnauthenticated (sem identidade) ou ErrForbidden.
//
// Com Roles e Permission definidos, ambos precisam passar. Roles é OR entre os papéis.
// Erro do resolver nega (ErrForbidden junto da causa).
func (a Authorizer) Authorize(ctx context.Context, id *identity.Identity, req domain.Requirement) error {
	if req.IsZero() {
		return nil
	}
	if id == nil || id.UserID == "" {
		return domain.ErrUnauthenticated
	}

	if roles := req.RoleList(); len(roles) > 0 && !id.HasAnyRole(roles...) {
		return domain.ErrForbidden
	}

	if req.Permission == "" || id.HasPermission(req.Permission) {
		return nil
	}
	if a.Resolver == nil {
		return domain.ErrForbidden
	}
	ok, err := a.Resolver.HasPermission(ctx, *id, req.Permission)
	if err != nil {
		return errors.Join(domain.ErrForbidden, err)
	}
	if !ok {
		return domain.ErrForbidden
	}
	return nil
}
