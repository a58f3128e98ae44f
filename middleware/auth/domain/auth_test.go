package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequirement_RoleList(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"admin", "teacher"}, Requirement{Roles: " admin | |teacher"}.RoleList())
	require.Empty(t, Requirement{}.RoleList())
}

func TestRequirement_IsZero(t *testing.T) {
	t.Parallel()

	require.True(t, Requirement{Roles: "  "}.IsZero())
	require.False(t, Requirement{Permission: "grades.write"}.IsZero())
}
