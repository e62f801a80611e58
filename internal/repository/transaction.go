package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/josh-kwaku/console-bank/internal/domain"
)

const transactionColumns = `id, from_account_id, to_account_id, amount, type, created_at`

// newestFirst breaks timestamp ties by insertion order.
const newestFirst = `ORDER BY created_at DESC, seq DESC`

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, db DBTX, t *domain.Transaction) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO transactions (id, from_account_id, to_account_id, amount, type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.FromAccountID, t.ToAccountID, t.Amount, t.Type, t.CreatedAt,
	)
	if err != nil {
		if isNumericOverflow(err) {
			return fmt.Errorf("Create: %w", domain.ErrInvalidAmount)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetByAccountID(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE from_account_id = $1 OR to_account_id = $1 `+newestFirst,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByAccountID: %w", err)
	}
	txs, err := collectTransactions(rows)
	if err != nil {
		return nil, fmt.Errorf("GetByAccountID: %w", err)
	}
	return txs, nil
}

func (r *TransactionRepository) List(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions `+newestFirst,
	)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	txs, err := collectTransactions(rows)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return txs, nil
}

func collectTransactions(rows *sql.Rows) ([]domain.Transaction, error) {
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		txs = append(txs, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return txs, nil
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var t domain.Transaction
	err := s.Scan(&t.ID, &t.FromAccountID, &t.ToAccountID, &t.Amount, &t.Type, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
