// Package infra traz as implementações concretas de auth: JWT, blacklist e resolvers.
package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"middleware-pipeline/middleware/auth/domain"
	"middleware-pipeline/middleware/identity"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const minSecretLen = 16

var ErrWeakSecret = fmt.Errorf("auth: jwt secret must have at least %d bytes", minSecretLen)

// Claims é o payload dos tokens emitidos e aceitos.
type Claims struct {
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	TenantID    string   `json:"tenant,omitempty"`
	jwt.RegisteredClaims
}

// JWTValidator implementa domain.TokenValidator com HMAC.
type JWTValidator struct {
	secret    []byte
	issuer    string
	leeway    time.Duration
	blacklist domain.Blacklist
	now       func() time.Time
}

type JWTOption func(*JWTValidator)

func WithIssuer(iss string) JWTOption { return func(v *JWTValidator) { v.issuer = iss } }

func WithLeeway(d time.Duration) JWTOption { return func(v *JWTValidator) { v.leeway = d } }

// WithBlacklist liga a checagem de revogação pelo jti.
func WithBlacklist(b domain.Blacklist) JWTOption { return func(v *JWTValidator) { v.blacklist = b } }

func WithClock(now func() time.Time) JWTOption { return func(v *JWTValidator) { v.now = now } }

func NewJWTValidator(secret []byte, opts ...JWTOption) (*JWTValidator, error) {
	if len(secret) < minSecretLen {
		return nil, ErrWeakSecret
	}
	v := &JWTValidator{secret: secret, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

func (v *JWTValidator) parser() *jwt.Parser {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{
			jwt.SigningMethodHS256.Alg(),
			jwt.SigningMethodHS384.Alg(),
			jwt.SigningMethodHS512.Alg(),
		}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	return jwt.NewParser(opts...)
}

// Validate confere assinatura, algoritmo, expiração, emissor e blacklist.
// Toda falha satisfaz errors.Is(err, domain.ErrInvalidToken).
func (v *JWTValidator) Validate(ctx context.Context, raw string) (*identity.Identity, error) {
	claims, err := v.parse(raw)
	if err != nil {
		return nil, err
	}

	if v.blacklist != nil && claims.ID != "" {
		revoked, err := v.blacklist.IsRevoked(ctx, claims.ID)
		if err != nil {
			// sem confirmação, o token não passa
			return nil, errors.Join(domain.ErrInvalidToken, err)
		}
		if revoked {
			return nil, errors.Join(domain.ErrInvalidToken, domain.ErrRevoked)
		}
	}

	return &identity.Identity{
		UserID:      claims.Subject,
		TenantID:    claims.TenantID,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
	}, nil
}

func (v *JWTValidator) parse(raw string) (Claims, error) {
	var claims Claims
	_, err := v.parser().ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Claims{}, errors.Join(domain.ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", domain.ErrInvalidToken)
	}
	return claims, nil
}

// Revoke põe o jti de raw na blacklist até a expiração do token.
// Só funciona quando a blacklist configurada também aceita escrita.
func (v *JWTValidator) Revoke(ctx context.Context, raw string) error {
	rev, ok := v.blacklist.(domain.Revoker)
	if !ok {
		return domain.ErrRevokeDisabled
	}
	claims, err := v.parse(raw)
	if err != nil {
		return err
	}
	if claims.ID == "" {
		return fmt.Errorf("%w: missing jti", domain.ErrInvalidToken)
	}
	return rev.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}

// Revocable informa se Revoke tem onde gravar.
func (v *JWTValidator) Revocable() bool {
	_, ok := v.blacklist.(domain.Revoker)
	return ok
}

// Issue assina um token HS256 para id, válido por ttl. Devolve também o jti gerado.
func (v *JWTValidator) Issue(id identity.Identity, ttl time.Duration) (string, string, error) {
	if id.UserID == "" {
		return "", "", errors.New("auth: cannot issue token without user id")
	}
	now := v.now()
	jti := uuid.NewString()
	claims := Claims{
		Roles:       id.Roles,
		Permissions: id.Permissions,
		TenantID:    id.TenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    v.issuer,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, jti, nil
}
