package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/console-bank/internal/domain"
	"github.com/josh-kwaku/console-bank/internal/repository"
)

type transactionStore interface {
	Create(ctx context.Context, db repository.DBTX, t *domain.Transaction) error
	GetByAccountID(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error)
	List(ctx context.Context) ([]domain.Transaction, error)
}

// TransactionLog is the append-only record of money movements.
type TransactionLog struct {
	store transactionStore
	db    *sql.DB
}

func NewTransactionLog(store transactionStore, db *sql.DB) *TransactionLog {
	return &TransactionLog{store: store, db: db}
}

// Append records t on the connection pool and returns it with its id and
// timestamp assigned.
func (l *TransactionLog) Append(ctx context.Context, t domain.Transaction) (*domain.Transaction, error) {
	return l.AppendTx(ctx, l.db, t)
}

// AppendTx records t through db, which is usually the storage transaction
// that also carries the balance update.
func (l *TransactionLog) AppendTx(ctx context.Context, db repository.DBTX, t domain.Transaction) (*domain.Transaction, error) {
	if !t.Type.IsValid() {
		return nil, fmt.Errorf("AppendTx: type %q: %w", t.Type, domain.ErrInvalidRequest)
	}
	if err := domain.ValidateAmount(t.Amount); err != nil {
		return nil, fmt.Errorf("AppendTx: %w", err)
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now()
	}

	if err := l.store.Create(ctx, db, &t); err != nil {
		return nil, domain.StorageError("AppendTx", err)
	}
	return &t, nil
}

// HistoryFor returns every transaction naming accountID on either side,
// newest first.
func (l *TransactionLog) HistoryFor(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error) {
	txs, err := l.store.GetByAccountID(ctx, accountID)
	if err != nil {
		return nil, domain.StorageError("HistoryFor", err)
	}
	return txs, nil
}

func (l *TransactionLog) All(ctx context.Context) ([]domain.Transaction, error) {
	txs, err := l.store.List(ctx)
	if err != nil {
		return nil, domain.StorageError("All", err)
	}
	return txs, nil
}

// now matches the microsecond precision Postgres stores.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
