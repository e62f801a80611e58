package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/console-bank/internal/domain"
	"github.com/josh-kwaku/console-bank/internal/logging"
	"github.com/josh-kwaku/console-bank/internal/metrics"
	"github.com/josh-kwaku/console-bank/internal/repository"
)

type accountRepo interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	CreateIfAbsent(ctx context.Context, db repository.DBTX, account *domain.Account) (bool, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
	UpdateBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance decimal.Decimal, newVersion int64) error
}

type transactionLog interface {
	AppendTx(ctx context.Context, db repository.DBTX, t domain.Transaction) (*domain.Transaction, error)
	HistoryFor(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error)
	All(ctx context.Context) ([]domain.Transaction, error)
}

type operationRecorder interface {
	RecordOperation(operation, outcome string, elapsed time.Duration)
}

// Ledger owns account balances. Every mutation locks the affected rows,
// updates the balance and appends one transaction inside a single storage
// transaction.
type Ledger struct {
	accounts accountRepo
	log      transactionLog
	db       *sql.DB
	metrics  operationRecorder
}

func NewLedger(accounts accountRepo, log transactionLog, db *sql.DB, recorder operationRecorder) *Ledger {
	if recorder == nil {
		recorder = (*metrics.Collector)(nil)
	}
	return &Ledger{accounts: accounts, log: log, db: db, metrics: recorder}
}

// EnsureAccount returns the user's account, opening one with a zero balance
// if none exists. Concurrent callers converge on the same row.
func (l *Ledger) EnsureAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	account := &domain.Account{
		ID:        uuid.New(),
		UserID:    userID,
		Balance:   decimal.Zero,
		Version:   1,
		CreatedAt: now(),
	}

	created, err := l.accounts.CreateIfAbsent(ctx, l.db, account)
	if err != nil {
		return nil, domain.StorageError("EnsureAccount", err)
	}
	if created {
		logging.FromContext(ctx).Info("account created",
			"account_id", account.ID,
			"user_id", userID,
		)
		return account, nil
	}

	existing, err := l.accounts.GetByUserID(ctx, userID)
	if err != nil {
		return nil, domain.StorageError("EnsureAccount", err)
	}
	return existing, nil
}

func (l *Ledger) GetBalance(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	account, err := l.accountFor(ctx, userID)
	if err != nil {
		return nil, domain.StorageError("GetBalance", err)
	}
	return account, nil
}

func (l *Ledger) Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*domain.Transaction, error) {
	start := time.Now()
	t, err := l.deposit(ctx, userID, amount)
	l.record("deposit", start, err)
	if err != nil {
		return nil, domain.StorageError("Deposit", err)
	}

	logging.FromContext(ctx).Info("deposit completed",
		"transaction_id", t.ID,
		"account_id", t.ToAccountID,
		"amount", t.Amount,
	)
	return t, nil
}

func (l *Ledger) deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*domain.Transaction, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	account, err := l.accountFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	return l.post(ctx, domain.TransactionTypeDeposit, account.ID, account.ID, amount)
}

func (l *Ledger) Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*domain.Transaction, error) {
	start := time.Now()
	t, err := l.withdraw(ctx, userID, amount)
	l.record("withdraw", start, err)
	if err != nil {
		return nil, domain.StorageError("Withdraw", err)
	}

	logging.FromContext(ctx).Info("withdrawal completed",
		"transaction_id", t.ID,
		"account_id", t.FromAccountID,
		"amount", t.Amount,
	)
	return t, nil
}

func (l *Ledger) withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*domain.Transaction, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	account, err := l.accountFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	return l.post(ctx, domain.TransactionTypeWithdrawal, account.ID, account.ID, amount)
}

// Transfer moves amount between the two users' accounts. A self-transfer
// leaves the balance unchanged but is still recorded.
func (l *Ledger) Transfer(ctx context.Context, fromUserID, toUserID uuid.UUID, amount decimal.Decimal) (*domain.Transaction, error) {
	start := time.Now()
	t, err := l.transfer(ctx, fromUserID, toUserID, amount)
	l.record("transfer", start, err)
	if err != nil {
		return nil, domain.StorageError("Transfer", err)
	}

	logging.FromContext(ctx).Info("transfer completed",
		"transaction_id", t.ID,
		"from_account", t.FromAccountID,
		"to_account", t.ToAccountID,
		"amount", t.Amount,
	)
	return t, nil
}

func (l *Ledger) transfer(ctx context.Context, fromUserID, toUserID uuid.UUID, amount decimal.Decimal) (*domain.Transaction, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	source, err := l.accountFor(ctx, fromUserID)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	dest, err := l.accountFor(ctx, toUserID)
	if err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}
	return l.post(ctx, domain.TransactionTypeTransfer, source.ID, dest.ID, amount)
}

// History is empty for a user that has no account yet.
func (l *Ledger) History(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	account, err := l.accountFor(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return []domain.Transaction{}, nil
		}
		return nil, domain.StorageError("History", err)
	}

	txs, err := l.log.HistoryFor(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("History: %w", err)
	}
	return txs, nil
}

func (l *Ledger) AllTransactions(ctx context.Context) ([]domain.Transaction, error) {
	txs, err := l.log.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("AllTransactions: %w", err)
	}
	return txs, nil
}

func (l *Ledger) accountFor(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	account, err := l.accounts.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("accountFor: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("accountFor: %w", err)
	}
	return account, nil
}

// post applies one balance-affecting event. Deposits credit toID, withdrawals
// debit fromID, and transfers do both; fromID and toID may be equal.
func (l *Ledger) post(ctx context.Context, kind domain.TransactionType, fromID, toID uuid.UUID, amount decimal.Decimal) (*domain.Transaction, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("post: begin tx: %w", err)
	}
	defer tx.Rollback()

	locked, err := lockAccountsInOrder(ctx, tx, l.accounts, fromID, toID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("post: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("post: %w", err)
	}

	if kind != domain.TransactionTypeDeposit && locked[fromID].Balance.LessThan(amount) {
		return nil, fmt.Errorf("post: %w", domain.ErrInsufficientFunds)
	}

	for id, delta := range balanceDeltas(kind, fromID, toID, amount) {
		if delta.IsZero() {
			continue
		}
		acct := locked[id]
		balance := acct.Balance.Add(delta)
		if balance.GreaterThan(domain.MaxAmount) {
			return nil, fmt.Errorf("post: account %s: %w", id, domain.ErrBalanceLimit)
		}
		if err := l.accounts.UpdateBalance(ctx, tx, id, balance, acct.Version+1); err != nil {
			return nil, fmt.Errorf("post: update %s: %w", id, err)
		}
	}

	t, err := l.log.AppendTx(ctx, tx, domain.Transaction{
		FromAccountID: fromID,
		ToAccountID:   toID,
		Amount:        amount,
		Type:          kind,
	})
	if err != nil {
		return nil, fmt.Errorf("post: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("post: commit: %w", err)
	}
	return t, nil
}

func balanceDeltas(kind domain.TransactionType, fromID, toID uuid.UUID, amount decimal.Decimal) map[uuid.UUID]decimal.Decimal {
	deltas := make(map[uuid.UUID]decimal.Decimal, 2)
	switch kind {
	case domain.TransactionTypeDeposit:
		deltas[toID] = amount
	case domain.TransactionTypeWithdrawal:
		deltas[fromID] = amount.Neg()
	case domain.TransactionTypeTransfer:
		deltas[fromID] = amount.Neg()
		deltas[toID] = deltas[toID].Add(amount)
	}
	return deltas
}

// lockAccountsInOrder takes row locks in ascending id order so concurrent
// transfers in opposite directions cannot deadlock. Duplicate ids are
// locked once.
func lockAccountsInOrder(ctx context.Context, tx *sql.Tx, accounts accountRepo, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	sorted := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			sorted = append(sorted, id)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})

	result := make(map[uuid.UUID]*domain.Account, len(sorted))
	for _, id := range sorted {
		acct, err := accounts.GetForUpdate(ctx, tx, id)
		if err != nil {
			return nil, fmt.Errorf("lockAccountsInOrder: %w", err)
		}
		result[id] = acct
	}
	return result, nil
}

func (l *Ledger) record(operation string, start time.Time, err error) {
	outcome := metrics.OutcomeSuccess
	switch {
	case err == nil:
	case domain.IsDomainError(err) && !errors.Is(err, domain.ErrStorageUnavailable) && !errors.Is(err, domain.ErrVersionConflict):
		outcome = metrics.OutcomeRejected
	default:
		outcome = metrics.OutcomeError
	}
	l.metrics.RecordOperation(operation, outcome, time.Since(start))
}
