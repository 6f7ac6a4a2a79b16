package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the bcrypt input limit.
const MaxPasswordBytes = 72

var (
	ErrInvalidPassword  = errors.New("invalid password")
	ErrPasswordRequired = errors.New("password is required")
	ErrPasswordTooLong  = errors.New("password exceeds maximum length of 72 bytes")
)

// HashPassword returns a salted bcrypt hash of password at the given cost.
func HashPassword(password string, cost int) (string, error) {
	switch {
	case password == "":
		return "", ErrPasswordRequired
	case len(password) > MaxPasswordBytes:
		return "", ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(hash), err
}

// CheckPassword returns nil when password matches hash and
// ErrInvalidPassword when it does not. Malformed hashes yield bcrypt's error.
func CheckPassword(password, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrInvalidPassword
	}
	return err
}

// NeedsRehash reports whether hash was produced with a cost other than cost,
// e.g. after AUTH_BCRYPT_COST was raised. Unparseable hashes are left alone.
func NeedsRehash(hash string, cost int) bool {
	current, err := bcrypt.Cost([]byte(hash))
	return err == nil && current != cost
}

// Hasher binds the password helpers to the configured bcrypt cost.
type Hasher struct {
	cost int

	decoyOnce sync.Once
	decoy     string
}

func NewHasher(cost int) *Hasher {
	return &Hasher{cost: cost}
}

func (h *Hasher) Hash(password string) (string, error) {
	return HashPassword(password, h.cost)
}

func (h *Hasher) Stale(hash string) bool {
	return NeedsRehash(hash, h.cost)
}

// CompareDecoy runs a full bcrypt comparison against a throwaway hash so that
// a login for an unknown email takes as long as one with a wrong password.
func (h *Hasher) CompareDecoy(password string) {
	h.decoyOnce.Do(func() {
		h.decoy, _ = HashPassword("decoy-password", h.cost)
	})
	if h.decoy != "" {
		_ = CheckPassword(password, h.decoy)
	}
}

// GenerateSessionSecret returns 32 random bytes, hex encoded, for CSRF
// token signing.
func GenerateSessionSecret() (string, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", err
	}
	return hex.EncodeToString(secret), nil
}
