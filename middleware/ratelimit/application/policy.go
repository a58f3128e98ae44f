package application

import (
	"path"
	"strings"
	"time"

	"middleware-pipeline/middleware/ratelimit/domain"
)

// Policy decide qual bucket e qual teto se aplicam a uma requisição.
//
// Precedência (a primeira que casar vence):
//  1. rota sensível de autenticação -> bucket por IP com AuthMax
//  2. identidade autenticada        -> bucket por usuário com teto por papel
//  3. demais                        -> bucket por IP com DefaultMax
type Policy struct {
	Window time.Duration

	// AuthPatterns usa a sintaxe de path.Match; "/x/*" casa um segmento.
	AuthPatterns []string
	AuthMax      int

	// RoleMax define o teto por papel. Com vários papéis, vale o maior.
	RoleMax     map[string]int
	UserDefault int

	DefaultMax int
}

func DefaultPolicy() Policy {
	return Policy{
		Window: time.Minute,
		AuthPatterns: []string{
			"/api/auth/login",
			"/api/auth/register",
			"/api/auth/password/*",
			"/api/login",
			"/api/register",
		},
		AuthMax: 10,
		RoleMax: map[string]int{
			"admin":   300,
			"teacher": 200,
			"staff":   200,
			"student": 100,
		},
		UserDefault: 120,
		DefaultMax:  60,
	}
}

// Subject descreve quem fez a requisição, já extraído do HTTP.
type Subject struct {
	Path     string
	ClientIP string
	UserID   string
	Roles    []string
}

func (p Policy) Resolve(s Subject) domain.Rule {
	window := p.Window
	if window <= 0 {
		window = time.Minute
	}

	if p.IsAuthRoute(s.Path) {
		return domain.Rule{
			Key:    domain.Key("auth:ip:" + s.ClientIP),
			Bucket: domain.BucketAuth,
			Max:    p.AuthMax,
			Window: window,
		}
	}

	if s.UserID != "" {
		return domain.Rule{
			Key:    domain.Key("user:" + s.UserID),
			Bucket: domain.BucketUser,
			Max:    p.ceilingFor(s.Roles),
			Window: window,
		}
	}

	return domain.Rule{
		Key:    domain.Key("ip:" + s.ClientIP),
		Bucket: domain.BucketIP,
		Max:    p.DefaultMax,
		Window: window,
	}
}

func (p Policy) IsAuthRoute(reqPath string) bool {
	clean := path.Clean("/" + strings.TrimSpace(reqPath))
	for _, pattern := range p.AuthPatterns {
		if ok, err := path.Match(pattern, clean); err == nil && ok {
			return true
		}
	}
	return false
}

func (p Policy) ceilingFor(roles []string) int {
	best, found := 0, false
	for _, r := range roles {
		if v, ok := p.RoleMax[r]; ok && (!found || v > best) {
			best, found = v, true
		}
	}
	if found {
		return best
	}
	return p.UserDefault
}
