package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const adminRole = "admin"

type adminClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// NewAdminToken signs an HS256 token accepted by the admin routes.
func NewAdminToken(secret, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, adminClaims{
		Role: adminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString([]byte(secret))
}

func validateAdminToken(secret, raw string) (*adminClaims, error) {
	claims := &adminClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUnauthorized, err)
	}
	if !token.Valid || claims.Role != adminRole {
		return nil, fmt.Errorf("%w: not an admin token", errUnauthorized)
	}
	return claims, nil
}

// adminOnly requires a bearer token signed with secret. With no secret
// configured every admin request is refused.
func adminOnly(secret string, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeError(w, fmt.Errorf("%w: admin access is not configured", errUnauthorized))
				return
			}
			header := r.Header.Get("Authorization")
			raw := strings.TrimPrefix(header, "Bearer ")
			if header == "" || raw == header {
				writeError(w, fmt.Errorf("%w: missing bearer token", errUnauthorized))
				return
			}
			claims, err := validateAdminToken(secret, raw)
			if err != nil {
				log.Warn("admin token rejected", zap.String("path", r.URL.Path), zap.Error(err))
				writeError(w, err)
				return
			}
			log.Info("admin request", zap.String("subject", claims.Subject), zap.String("path", r.URL.Path))
			next.ServeHTTP(w, r)
		})
	}
}
