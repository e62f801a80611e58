package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
	TransactionTypeTransfer   TransactionType = "TRANSFER"
)

func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeTransfer:
		return true
	}
	return false
}

// Transaction is an immutable record of a balance-affecting event. Deposits
// and withdrawals carry the acting account on both sides.
type Transaction struct {
	ID            uuid.UUID
	FromAccountID uuid.UUID
	ToAccountID   uuid.UUID
	Amount        decimal.Decimal
	Type          TransactionType
	CreatedAt     time.Time
}

// Involves reports whether accountID is either party of the transaction.
func (t *Transaction) Involves(accountID uuid.UUID) bool {
	return t.FromAccountID == accountID || t.ToAccountID == accountID
}
