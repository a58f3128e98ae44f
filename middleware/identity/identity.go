// Package identity define o usuário autenticado de uma requisição.
// Não depende de net/http para poder ser usado pelas camadas de domínio.
package identity

import "slices"

// Identity é o usuário autenticado, com os fatos de papel/permissão necessários
// para autorização. Derivada uma vez a partir do token.
type Identity struct {
	UserID      string
	TenantID    string
	Roles       []string
	Permissions []string
}

func (id Identity) HasRole(role string) bool {
	return slices.Contains(id.Roles, role)
}

// HasAnyRole retorna true se a identidade tiver qualquer um dos papéis informados.
func (id Identity) HasAnyRole(roles ...string) bool {
	return slices.ContainsFunc(roles, id.HasRole)
}

// HasPermission checa apenas as permissões carregadas no token.
// A resolução completa (papel -> permissões) fica com o PermissionResolver.
func (id Identity) HasPermission(perm string) bool {
	return slices.Contains(id.Permissions, perm)
}

// Clone devolve uma cópia sem compartilhar os slices.
func (id Identity) Clone() Identity {
	id.Roles = slices.Clone(id.Roles)
	id.Permissions = slices.Clone(id.Permissions)
	return id
}
