package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/josh-kwaku/console-bank/internal/domain"
)

// AppError is an API error code with its HTTP status. Retryable errors are
// answered with a Retry-After header.
type AppError struct {
	Status    int
	Code      string
	Message   string
	Retryable bool
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken       = &AppError{Status: http.StatusUnauthorized, Code: "MISSING_TOKEN", Message: "Authorization header required"}
	ErrInvalidToken       = &AppError{Status: http.StatusUnauthorized, Code: "INVALID_TOKEN", Message: "Token is invalid, expired or revoked"}
	ErrInvalidCredentials = &AppError{Status: http.StatusUnauthorized, Code: "INVALID_CREDENTIALS", Message: "Invalid username or password"}
	ErrForbidden          = &AppError{Status: http.StatusForbidden, Code: "FORBIDDEN", Message: "Administrator access required"}
	ErrInvalidRequest     = &AppError{Status: http.StatusBadRequest, Code: "INVALID_REQUEST", Message: "Invalid request body"}
	ErrValidationFailed   = &AppError{Status: http.StatusBadRequest, Code: "VALIDATION_FAILED", Message: "Validation failed"}
	ErrResourceNotFound   = &AppError{Status: http.StatusNotFound, Code: "RESOURCE_NOT_FOUND", Message: "Resource not found"}
	ErrInternalError      = &AppError{Status: http.StatusInternalServerError, Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}
	ErrStorageUnavailable = &AppError{Status: http.StatusServiceUnavailable, Code: "STORAGE_UNAVAILABLE", Message: "Storage is temporarily unavailable, please retry", Retryable: true}

	ErrInsufficientFunds = &AppError{Status: http.StatusUnprocessableEntity, Code: "INSUFFICIENT_FUNDS", Message: "Insufficient funds"}
	ErrBalanceLimit      = &AppError{Status: http.StatusUnprocessableEntity, Code: "BALANCE_LIMIT_EXCEEDED", Message: "Resulting balance exceeds the account maximum"}
	ErrInvalidAmount     = &AppError{Status: http.StatusBadRequest, Code: "INVALID_AMOUNT", Message: "Amount must be greater than zero, at most 99999999999999999.99, with at most two decimal places"}
	ErrAccountNotFound   = &AppError{Status: http.StatusNotFound, Code: "ACCOUNT_NOT_FOUND", Message: "Account not found"}
	ErrUserNotFound      = &AppError{Status: http.StatusNotFound, Code: "USER_NOT_FOUND", Message: "User not found"}
	ErrUsernameTaken     = &AppError{Status: http.StatusConflict, Code: "USERNAME_TAKEN", Message: "Username is already taken"}
	ErrInvalidRole       = &AppError{Status: http.StatusBadRequest, Code: "INVALID_ROLE", Message: "Role must be USER or ADMIN"}
	ErrVersionConflict   = &AppError{Status: http.StatusConflict, Code: "VERSION_CONFLICT", Message: "Account was modified concurrently, please retry", Retryable: true}

	ErrMissingIdempotencyKey = &AppError{Status: http.StatusBadRequest, Code: "MISSING_IDEMPOTENCY_KEY", Message: "Idempotency-Key header of at most 255 bytes is required"}
	ErrIdempotencyConflict   = &AppError{Status: http.StatusUnprocessableEntity, Code: "IDEMPOTENCY_CONFLICT", Message: "Idempotency key already used with a different request"}
	ErrIdempotencyInProgress = &AppError{Status: http.StatusConflict, Code: "IDEMPOTENCY_IN_PROGRESS", Message: "A request with this idempotency key is still being processed", Retryable: true}
)

// domainErrorTable is matched top to bottom; the first sentinel found in the
// chain decides the response.
var domainErrorTable = []struct {
	sentinel error
	appErr   *AppError
}{
	{domain.ErrInsufficientFunds, ErrInsufficientFunds},
	{domain.ErrBalanceLimit, ErrBalanceLimit},
	{domain.ErrInvalidAmount, ErrInvalidAmount},
	{domain.ErrAccountNotFound, ErrAccountNotFound},
	{domain.ErrUserNotFound, ErrUserNotFound},
	{domain.ErrNotFound, ErrResourceNotFound},
	{domain.ErrInvalidCredentials, ErrInvalidCredentials},
	{domain.ErrNotAuthenticated, ErrMissingToken},
	{domain.ErrForbidden, ErrForbidden},
	{domain.ErrUsernameTaken, ErrUsernameTaken},
	{domain.ErrInvalidRole, ErrInvalidRole},
	{domain.ErrInvalidRequest, ErrInvalidRequest},
	{domain.ErrVersionConflict, ErrVersionConflict},
	{domain.ErrStorageUnavailable, ErrStorageUnavailable},
}

func appErrorFor(err error) *AppError {
	for _, row := range domainErrorTable {
		if errors.Is(err, row.sentinel) {
			return row.appErr
		}
	}
	slog.Error("unhandled domain error", "error", err)
	return ErrInternalError
}
