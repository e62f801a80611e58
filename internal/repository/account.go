package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/josh-kwaku/console-bank/internal/domain"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, user_id, balance, version, created_at`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`, userID,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByUserID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByUserID: %w", err)
	}
	return a, nil
}

// CreateIfAbsent inserts account unless its owner already has one. It
// reports whether a row was written.
func (r *AccountRepository) CreateIfAbsent(ctx context.Context, db DBTX, account *domain.Account) (bool, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO accounts (id, user_id, balance, version, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO NOTHING`,
		account.ID, account.UserID, account.Balance, account.Version, account.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, fmt.Errorf("CreateIfAbsent: %w", domain.ErrUserNotFound)
		}
		return false, fmt.Errorf("CreateIfAbsent: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("CreateIfAbsent: rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *AccountRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) UpdateBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance decimal.Decimal, newVersion int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = $1, version = $2 WHERE id = $3 AND version = $4`,
		newBalance, newVersion, id, newVersion-1,
	)
	if err != nil {
		if isNumericOverflow(err) {
			return fmt.Errorf("UpdateBalance: %w", domain.ErrBalanceLimit)
		}
		return fmt.Errorf("UpdateBalance: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateBalance: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateBalance: %w", domain.ErrVersionConflict)
	}
	return nil
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	err := s.Scan(&a.ID, &a.UserID, &a.Balance, &a.Version, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
