package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// BcryptPINVerifier checks supervisor PINs against a bcrypt hash loaded
// from configuration. Only the hash is ever stored or configured.
type BcryptPINVerifier struct {
	hash []byte
}

func NewBcryptPINVerifier(hash string) (*BcryptPINVerifier, error) {
	if hash == "" {
		return nil, errors.New("supervisor pin hash is required")
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("supervisor pin hash is not a valid bcrypt hash: %w", err)
	}
	return &BcryptPINVerifier{hash: []byte(hash)}, nil
}

func (v *BcryptPINVerifier) Verify(_ context.Context, pin string) (bool, error) {
	err := bcrypt.CompareHashAndPassword(v.hash, []byte(pin))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("verify pin: %w", err)
}

// HashPIN produces a bcrypt hash suitable for the supervisor PIN
// configuration. Used by the enrollment tooling, not the hot path.
func HashPIN(pin string) (string, error) {
	if len(pin) < 4 {
		return "", errors.New("pin must be at least 4 digits")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash pin: %w", err)
	}
	return string(h), nil
}
