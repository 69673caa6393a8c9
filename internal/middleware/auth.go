package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/storefront/order-service/pkg/utils"

	"github.com/golang-jwt/jwt/v4"
)

const RoleAdmin = "admin"

type claimsKey struct{}

// Claims is the identity the gateway attaches to each request. The core
// trusts the userId as given; it is owned by the identity service.
type Claims struct {
	UserID string
	Role   string
}

func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(Claims)
	return claims, ok
}

func WithClaims(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// Auth verifies the bearer token and stores userId and role claims in the
// request context. Requests without a valid token are rejected.
func Auth(secret string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				utils.WriteError(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			claims, err := parseToken(token, secret)
			if err != nil {
				utils.WriteError(w, "invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireAdmin gates the admin façade on an explicit role claim; there is
// deliberately no special-cased account here.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok || claims.Role != RoleAdmin {
			utils.WriteError(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func parseToken(tokenString, secret string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("failed to parse token: %w", err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Claims{}, fmt.Errorf("invalid token claims")
	}

	sub, _ := mapClaims["sub"].(string)
	if sub == "" {
		return Claims{}, fmt.Errorf("token has no subject")
	}
	role, _ := mapClaims["role"].(string)

	return Claims{UserID: sub, Role: role}, nil
}
