package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const opsClaimsKey contextKey = "opsClaims"

// OpsJWT guards the operations endpoints with an HMAC-signed bearer token.
// An empty secret disables the endpoints entirely.
func OpsJWT(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "ops auth disabled", http.StatusUnauthorized)
				return
			}
			tokenString, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(tokenString) == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			claims := jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(strings.TrimSpace(tokenString), &claims, func(token *jwt.Token) (any, error) {
				return key, nil
			}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), opsClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OperatorFromContext returns the token subject of an authenticated ops request.
func OperatorFromContext(ctx context.Context) (string, bool) {
	claims, ok := ctx.Value(opsClaimsKey).(jwt.RegisteredClaims)
	if !ok {
		return "", false
	}
	return claims.Subject, true
}
