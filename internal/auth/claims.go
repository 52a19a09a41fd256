package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims são as claims aceitas pela API. O usuário é o subject (sub).
type CustomClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the authenticated user's id.
func (c *CustomClaims) UserID() string {
	return c.Subject
}

// Validate performs additional validation on custom claims
func (c *CustomClaims) Validate() error {
	if strings.TrimSpace(c.Subject) == "" {
		return jwt.ErrTokenInvalidClaims
	}
	return nil
}
