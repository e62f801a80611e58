package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrAccountNotFound    = errors.New("account not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidAmount      = errors.New("amount must be greater than zero with at most two decimal places")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrVersionConflict    = errors.New("optimistic lock conflict")
	ErrBalanceLimit       = errors.New("balance would exceed the maximum an account can hold")
)

var domainErrors = []error{
	ErrNotFound,
	ErrAccountNotFound,
	ErrUserNotFound,
	ErrInsufficientFunds,
	ErrInvalidAmount,
	ErrInvalidCredentials,
	ErrStorageUnavailable,
	ErrUsernameTaken,
	ErrInvalidRole,
	ErrInvalidRequest,
	ErrNotAuthenticated,
	ErrForbidden,
	ErrVersionConflict,
	ErrBalanceLimit,
}

// IsDomainError reports whether err wraps one of the sentinels above.
func IsDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// StorageError wraps a failure coming from the store so that callers can
// match ErrStorageUnavailable. Domain errors pass through untouched.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomainError(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
