package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/lumenhr/lumenhr/pkg/authz"
)

type Principal struct {
	UserID   string
	TenantID string
	RoleSlug string
	Email    string
}

type principalContextKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

func currentPrincipal(ctx context.Context) (Principal, bool) {
	v := ctx.Value(principalContextKey{})
	if v == nil {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

var (
	errNoBearerToken   = errors.New("server: no bearer token")
	errInvalidToken    = errors.New("server: invalid bearer token")
	errTenantMismatch  = errors.New("server: token tenant mismatch")
	errMissingJWTKey   = errors.New("server: AUTH_JWT_SECRET not set")
	errUnexpectedAlg   = errors.New("server: unexpected token signing method")
	errMissingSubClaim = errors.New("server: token missing sub claim")
)

func jwtSecretFromEnv() ([]byte, error) {
	secret := strings.TrimSpace(os.Getenv("AUTH_JWT_SECRET"))
	if secret == "" {
		return nil, errMissingJWTKey
	}
	return []byte(secret), nil
}

type principalClaims struct {
	TenantID string `json:"tenant"`
	Role     string `json:"role"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// principalFromRequest verifies the Authorization bearer token and binds it
// to the resolved tenant. Tokens are issued by the identity provider out of
// band; this server only verifies.
func principalFromRequest(r *http.Request, secret []byte, tenant Tenant) (Principal, error) {
	raw := bearerToken(r)
	if raw == "" {
		return Principal{}, errNoBearerToken
	}

	var claims principalClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errUnexpectedAlg
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return Principal{}, errInvalidToken
	}

	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return Principal{}, errMissingSubClaim
	}
	if !strings.EqualFold(strings.TrimSpace(claims.TenantID), tenant.ID) {
		return Principal{}, errTenantMismatch
	}

	role := strings.ToLower(strings.TrimSpace(claims.Role))
	if role == "" {
		role = authz.RoleEmployee
	}
	return Principal{
		UserID:   sub,
		TenantID: tenant.ID,
		RoleSlug: role,
		Email:    strings.ToLower(strings.TrimSpace(claims.Email)),
	}, nil
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return ""
	}
	scheme, rest, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(rest)
}
