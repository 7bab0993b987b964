package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	ports "workhours/internal/sheets"
)

// ErrNotConfigured is returned when no edit password has been set up.
var ErrNotConfigured = errors.New("edit password not configured")

var (
	_ ports.PasswordVerifier = (*BcryptVerifier)(nil)
	_ ports.PasswordVerifier = Disabled{}
)

// BcryptVerifier checks passwords against a bcrypt hash.
type BcryptVerifier struct {
	hash []byte
}

// NewBcryptVerifier accepts a hash as produced by HashPassword.
func NewBcryptVerifier(hash string) (*BcryptVerifier, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("parse password hash: %w", err)
	}
	return &BcryptVerifier{hash: []byte(hash)}, nil
}

// FromPlaintext hashes password at startup. Meant for local setups where
// only EDIT_PASSWORD is given.
func FromPlaintext(password string) (*BcryptVerifier, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	return &BcryptVerifier{hash: []byte(hash)}, nil
}

// HashPassword returns the bcrypt hash to put in EDIT_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

func (v *BcryptVerifier) VerifyPassword(ctx context.Context, password string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err := bcrypt.CompareHashAndPassword(v.hash, []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("compare password: %w", err)
	}
}

// Disabled rejects every unlock attempt.
type Disabled struct{}

func (Disabled) VerifyPassword(context.Context, string) (bool, error) {
	return false, ErrNotConfigured
}

// New picks the verifier matching the configured password settings.
func New(hash, plaintext string) (ports.PasswordVerifier, error) {
	switch {
	case hash != "":
		return NewBcryptVerifier(hash)
	case plaintext != "":
		return FromPlaintext(plaintext)
	default:
		return Disabled{}, nil
	}
}
