package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Account struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Balance   decimal.Decimal
	Version   int64
	CreatedAt time.Time
}

const (
	// amountScale is the number of fractional digits a balance column holds.
	amountScale = 2
	// amountIntDigits is the integer part of NUMERIC(19,2).
	amountIntDigits = 17
	// minExponent bounds how far right of the point an input may reach
	// before it is rejected without rescaling.
	minExponent = -32
)

// MaxAmount is the largest value a NUMERIC(19,2) column stores. It bounds
// both single amounts and account balances.
var MaxAmount = decimal.RequireFromString("99999999999999999.99")

// ValidateAmount rejects non-positive amounts, amounts finer than a cent and
// amounts above MaxAmount. Magnitude is checked from the coefficient and
// exponent before any rescaling, so huge exponents are rejected cheaply.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	exp := amount.Exponent()
	if exp < minExponent {
		return ErrInvalidAmount
	}
	if exp > 0 && int64(amount.NumDigits())+int64(exp) > amountIntDigits {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(MaxAmount) {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(amountScale)) {
		return ErrInvalidAmount
	}
	return nil
}
