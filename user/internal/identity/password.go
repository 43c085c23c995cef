package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var ErrPasswordMismatch = errors.New("password mismatch")

// PasswordHasher abstracts credential hashing so deployments can swap in a
// stronger KDF without touching the handlers.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(encoded string, password string) error
}

// SaltedHasher hashes passwords as sha256(salt || password), stored as
// "<salt-hex>$<digest-hex>".
type SaltedHasher struct{}

func (SaltedHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is required")
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	digest := digest(salt, password)
	return hex.EncodeToString(salt) + "$" + hex.EncodeToString(digest), nil
}

func (SaltedHasher) Compare(encoded string, password string) error {
	parts := strings.SplitN(encoded, "$", 2)
	if len(parts) != 2 {
		return errors.New("malformed password hash")
	}
	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return errors.New("malformed password hash")
	}
	want, err := hex.DecodeString(parts[1])
	if err != nil {
		return errors.New("malformed password hash")
	}
	got := digest(salt, password)
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}

func digest(salt []byte, password string) []byte {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(password))
	return h.Sum(nil)
}
