package master

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/projectpolygon/hypercube-go/internal/config"
)

// adminClaims identifies the bearer of an admin token. There is only one
// role: operator. Workers never see this middleware.
type adminClaims struct {
	jwt.RegisteredClaims
}

// AdminAuth gates the dashboard and /admin/status endpoints behind a bearer
// JWT signed with cfg.JWTSecret. It is never applied to the worker-facing
// protocol endpoints. When cfg.Enabled is false the middleware is a no-op,
// matching the "off by default" posture of the rest of the admin surface.
func AdminAuth(cfg *config.AdminConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if authHeader == "" || tokenString == authHeader {
				http.Error(w, "authorization header required", http.StatusUnauthorized)
				return
			}

			claims := &adminClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
				return []byte(cfg.JWTSecret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
