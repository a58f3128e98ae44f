package infra

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"middleware-pipeline/middleware/auth/domain"
	"middleware-pipeline/middleware/identity"
)

type decision struct {
	allowed bool
	expires time.Time
}

// CachedResolver memoriza as decisões de outro resolver por ttl.
// Erros não são memorizados.
type CachedResolver struct {
	next domain.PermissionResolver
	ttl  time.Duration
	now  func() time.Time

	mu        sync.Mutex
	entries   map[string]decision
	lastSweep time.Time
}

func NewCachedResolver(next domain.PermissionResolver, ttl time.Duration) *CachedResolver {
	return &CachedResolver{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]decision),
	}
}

// cacheKey inclui papéis e permissões do token: identidades com concessões
// diferentes nunca compartilham decisão.
func cacheKey(id identity.Identity, perm string) string {
	return id.UserID + "\x00" + sortedJoin(id.Roles) + "\x00" + sortedJoin(id.Permissions) + "\x00" + perm
}

func sortedJoin(v []string) string {
	v = slices.Clone(v)
	slices.Sort(v)
	return strings.Join(v, ",")
}

func (c *CachedResolver) HasPermission(ctx context.Context, id identity.Identity, perm string) (bool, error) {
	key := cacheKey(id, perm)
	now := c.now()

	c.mu.Lock()
	if d, ok := c.entries[key]; ok {
		if now.Before(d.expires) {
			c.mu.Unlock()
			return d.allowed, nil
		}
		delete(c.entries, key)
	}
	c.mu.Unlock()

	ok, err := c.next.HasPermission(ctx, id, perm)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	if now.Sub(c.lastSweep) >= c.ttl {
		c.sweepLocked(now)
	}
	c.entries[key] = decision{allowed: ok, expires: now.Add(c.ttl)}
	c.mu.Unlock()
	return ok, nil
}

// sweepLocked remove decisões vencidas, no máximo uma vez por ttl.
// Chamado com mu travado.
func (c *CachedResolver) sweepLocked(now time.Time) {
	c.lastSweep = now
	maps.DeleteFunc(c.entries, func(_ string, d decision) bool {
		return !now.Before(d.expires)
	})
}

// Len devolve quantas decisões estão memorizadas.
func (c *CachedResolver) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge descarta todas as decisões (ex.: após mudança de papéis).
func (c *CachedResolver) Purge() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
}
