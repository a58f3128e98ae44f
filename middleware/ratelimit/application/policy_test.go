package application

import (
	"testing"
	"time"

	"middleware-pipeline/middleware/ratelimit/domain"

	"github.com/stretchr/testify/require"
)

func TestPolicy_AuthRouteWinsOverIdentity(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	rule := p.Resolve(Subject{Path: "/api/auth/login", ClientIP: "1.2.3.4", UserID: "u1", Roles: []string{"admin"}})

	require.Equal(t, domain.BucketAuth, rule.Bucket)
	require.Equal(t, domain.Key("auth:ip:1.2.3.4"), rule.Key)
	require.Equal(t, 10, rule.Max)
	require.Equal(t, time.Minute, rule.Window)
}

func TestPolicy_PasswordWildcard(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	require.True(t, p.IsAuthRoute("/api/auth/password/reset"))
	require.True(t, p.IsAuthRoute("/api/auth/login/"))
	require.False(t, p.IsAuthRoute("/api/auth/password/reset/confirm"))
	require.False(t, p.IsAuthRoute("/api/students"))
}

func TestPolicy_UserCeilingByHighestRole(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()

	rule := p.Resolve(Subject{Path: "/api/grades", ClientIP: "1.2.3.4", UserID: "42", Roles: []string{"student", "teacher"}})
	require.Equal(t, domain.BucketUser, rule.Bucket)
	require.Equal(t, domain.Key("user:42"), rule.Key)
	require.Equal(t, 200, rule.Max)

	rule = p.Resolve(Subject{Path: "/api/grades", UserID: "43", Roles: []string{"guardian"}})
	require.Equal(t, 120, rule.Max)
}

func TestPolicy_AnonymousFallsBackToIP(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	rule := p.Resolve(Subject{Path: "/api/news", ClientIP: "5.6.7.8"})
	require.Equal(t, domain.BucketIP, rule.Bucket)
	require.Equal(t, domain.Key("ip:5.6.7.8"), rule.Key)
	require.Equal(t, 60, rule.Max)
}

func TestPolicy_ZeroWindowDefaultsToMinute(t *testing.T) {
	t.Parallel()

	rule := Policy{DefaultMax: 1}.Resolve(Subject{ClientIP: "x"})
	require.Equal(t, time.Minute, rule.Window)
}
