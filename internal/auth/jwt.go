package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

// JWTCustomClaims is what the identity service puts in the token. The
// subject is the display name used as the audit actor.
type JWTCustomClaims struct {
	Name string `json:"name"`
	Role Role   `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 token. Production tokens come from the
// identity service; this is used by tests and local tooling.
func GenerateToken(secret, name string, role Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &JWTCustomClaims{
		Name: name,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   name,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
