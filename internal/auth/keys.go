package auth

import (
	"crypto/rsa"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type keyRef struct {
	issuer string
	kid    string
}

// KeyStore holds verification keys by (issuer, kid).
type KeyStore struct {
	hmac map[keyRef][]byte
	rsa  map[keyRef]*rsa.PublicKey
}

func NewKeyStore() *KeyStore {
	return &KeyStore{
		hmac: make(map[keyRef][]byte),
		rsa:  make(map[keyRef]*rsa.PublicKey),
	}
}

// LoadHS256Key registers a shared secret.
func (ks *KeyStore) LoadHS256Key(issuer, kid string, secret []byte) {
	ks.hmac[keyRef{issuer, kid}] = secret
}

// LoadRS256Key parses and registers a PEM public key. Literal "\n"
// sequences (common when the key comes from an env var) are expanded.
func (ks *KeyStore) LoadRS256Key(issuer, kid string, publicKeyPEM string) error {
	pem := strings.TrimSpace(strings.ReplaceAll(publicKeyPEM, `\n`, "\n"))

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
	if err != nil {
		return fmt.Errorf("failed to parse RSA public key: %w", err)
	}
	ks.rsa[keyRef{issuer, kid}] = publicKey
	return nil
}

func (ks *KeyStore) GetHS256Key(issuer, kid string) ([]byte, bool) {
	secret, ok := ks.hmac[keyRef{issuer, kid}]
	return secret, ok
}

func (ks *KeyStore) GetRS256Key(issuer, kid string) (*rsa.PublicKey, bool) {
	key, ok := ks.rsa[keyRef{issuer, kid}]
	return key, ok
}
