package infra

import (
	"context"
	"strings"

	"middleware-pipeline/middleware/identity"
)

// RolePermissions resolve permissões a partir de um mapa estático papel -> permissões.
//
// Curingas: "*" concede tudo; "students.*" concede qualquer "students.<algo>".
type RolePermissions map[string][]string

func (rp RolePermissions) HasPermission(_ context.Context, id identity.Identity, perm string) (bool, error) {
	if perm == "" {
		return true, nil
	}
	for _, g := range id.Permissions {
		if grants(g, perm) {
			return true, nil
		}
	}
	for _, role := range id.Roles {
		for _, g := range rp[role] {
			if grants(g, perm) {
				return true, nil
			}
		}
	}
	return false, nil
}

func grants(grant, perm string) bool {
	switch {
	case grant == "*", grant == perm:
		return true
	case strings.HasSuffix(grant, ".*"):
		return strings.HasPrefix(perm, grant[:len(grant)-1])
	}
	return false
}
