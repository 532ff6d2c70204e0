package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/docent-dev/docent/pkg/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/m-mizutani/goerr/v2"
)

type ctxTenantKey struct{}

// tenantFrom returns the tenant resolved by the auth middleware.
func tenantFrom(ctx context.Context) (model.TenantID, bool) {
	tenant, ok := ctx.Value(ctxTenantKey{}).(model.TenantID)
	return tenant, ok
}

// tenantClaims is the accepted token payload. tenant_id is the only
// claim the service acts on; everything else in the token is ignored.
type tenantClaims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// verifyToken validates an HS256 bearer token and extracts the tenant.
func verifyToken(token, secret string) (model.TenantID, error) {
	claims := &tenantClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, goerr.New("unexpected signing method", goerr.V("alg", t.Header["alg"]))
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", goerr.Wrap(err, "invalid token")
	}
	if !parsed.Valid {
		return "", goerr.New("invalid token")
	}
	if claims.TenantID == "" {
		return "", goerr.New("token has no tenant_id claim")
	}

	return model.TenantID(claims.TenantID), nil
}

// authMiddleware resolves the tenant from the Authorization header and
// stores it in the request context. The tenant in the token is the
// only tenant the request can touch; nothing in the body or path can
// widen it.
func authMiddleware(secret string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, "authorization header required")
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			writeError(w, http.StatusUnauthorized, "authorization header must be a bearer token")
			return
		}

		tenant, err := verifyToken(token, secret)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxTenantKey{}, tenant)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
