package utils

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token shape issued by the auth service
type Claims struct {
	UserID string `json:"id"`
	Role   string `json:"role"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// CallerID prefers the explicit id claim and falls back to sub
func (c *Claims) CallerID() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.RegisteredClaims.Subject
}

// IssueToken signs an HS256 token. Tokens are normally minted by the auth
// service; this is used by operator tooling and tests.
func IssueToken(secret, userID, role, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Role:   role,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
