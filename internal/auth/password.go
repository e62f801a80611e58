package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/console-bank/internal/domain"
)

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

// HashPassword returns a salted bcrypt hash. A cost outside bcrypt's range
// falls back to bcrypt.DefaultCost. Passwords longer than MaxPasswordBytes
// are rejected with domain.ErrInvalidRequest.
func HashPassword(password string, cost int) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", fmt.Errorf("HashPassword: password longer than %d bytes: %w", MaxPasswordBytes, domain.ErrInvalidRequest)
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("HashPassword: %w: %w", domain.ErrInvalidRequest, err)
		}
		return "", fmt.Errorf("HashPassword: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash. Only a mismatch
// yields false with a nil error.
func CheckPassword(hash, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("CheckPassword: %w", err)
}
