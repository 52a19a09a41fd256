package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenValidator validates JWT tokens
type TokenValidator interface {
	Validate(tokenString string, kid string) (*CustomClaims, error)
}

// SignedValidator checks one issuer's tokens with one signing algorithm.
type SignedValidator struct {
	method    string
	lookup    func(kid string) (any, bool)
	issuer    string
	clockSkew time.Duration
}

// NewHS256Validator validates HMAC-SHA256 tokens against the issuer's secrets.
func NewHS256Validator(keyStore *KeyStore, issuer string, clockSkew time.Duration) *SignedValidator {
	return &SignedValidator{
		method: jwt.SigningMethodHS256.Alg(),
		lookup: func(kid string) (any, bool) {
			return keyStore.GetHS256Key(issuer, kid)
		},
		issuer:    issuer,
		clockSkew: clockSkew,
	}
}

// NewRS256Validator validates RSA-SHA256 tokens against the issuer's public keys.
func NewRS256Validator(keyStore *KeyStore, issuer string, clockSkew time.Duration) *SignedValidator {
	return &SignedValidator{
		method: jwt.SigningMethodRS256.Alg(),
		lookup: func(kid string) (any, bool) {
			return keyStore.GetRS256Key(issuer, kid)
		},
		issuer:    issuer,
		clockSkew: clockSkew,
	}
}

func (v *SignedValidator) Validate(tokenString string, kid string) (*CustomClaims, error) {
	key, ok := v.lookup(kid)
	if !ok {
		return nil, NewAuthError(AuthFailureUnknown, fmt.Sprintf("key not found for issuer %s and kid %s", v.issuer, kid), nil)
	}

	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(*jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithLeeway(v.clockSkew), jwt.WithValidMethods([]string{v.method}))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, NewAuthError(AuthFailureTokenExpired, "token expired", err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, NewAuthError(AuthFailureInvalidSignature, "invalid signature", err)
		}
		return nil, NewAuthError(AuthFailureUnknown, "failed to parse token", err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, NewAuthError(AuthFailureUnknown, fmt.Sprintf("invalid token: valid=%v", token.Valid), nil)
	}
	if err := claims.Validate(); err != nil {
		return nil, NewAuthError(AuthFailureUnknown, "invalid claims", err)
	}
	return claims, nil
}
