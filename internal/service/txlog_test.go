package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/console-bank/internal/domain"
	"github.com/josh-kwaku/console-bank/internal/repository"
)

type fakeTransactionStore struct {
	created []domain.Transaction
	err     error
}

func (f *fakeTransactionStore) Create(_ context.Context, _ repository.DBTX, t *domain.Transaction) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, *t)
	return nil
}

func (f *fakeTransactionStore) GetByAccountID(_ context.Context, accountID uuid.UUID) ([]domain.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Transaction
	for i := len(f.created) - 1; i >= 0; i-- {
		if f.created[i].Involves(accountID) {
			out = append(out, f.created[i])
		}
	}
	return out, nil
}

func (f *fakeTransactionStore) List(_ context.Context) ([]domain.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Transaction, 0, len(f.created))
	for i := len(f.created) - 1; i >= 0; i-- {
		out = append(out, f.created[i])
	}
	return out, nil
}

func TestTransactionLog_AppendAssignsIDAndTimestamp(t *testing.T) {
	store := &fakeTransactionStore{}
	log := NewTransactionLog(store, nil)
	acct := uuid.New()

	before := time.Now().UTC().Add(-time.Second)
	got, err := log.Append(context.Background(), domain.Transaction{
		FromAccountID: acct,
		ToAccountID:   acct,
		Amount:        decimal.RequireFromString("12.50"),
		Type:          domain.TransactionTypeDeposit,
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, got.ID)
	assert.True(t, got.CreatedAt.After(before))
	require.Len(t, store.created, 1)
	assert.Equal(t, *got, store.created[0])
}

func TestTransactionLog_AppendKeepsGivenID(t *testing.T) {
	store := &fakeTransactionStore{}
	log := NewTransactionLog(store, nil)
	id := uuid.New()
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	got, err := log.Append(context.Background(), domain.Transaction{
		ID:            id,
		FromAccountID: uuid.New(),
		ToAccountID:   uuid.New(),
		Amount:        decimal.NewFromInt(1),
		Type:          domain.TransactionTypeTransfer,
		CreatedAt:     ts,
	})
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, ts, got.CreatedAt)
}

func TestTransactionLog_AppendValidation(t *testing.T) {
	acct := uuid.New()

	tests := []struct {
		name    string
		tx      domain.Transaction
		wantErr error
	}{
		{
			name:    "zero amount",
			tx:      domain.Transaction{FromAccountID: acct, ToAccountID: acct, Amount: decimal.Zero, Type: domain.TransactionTypeDeposit},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "negative amount",
			tx:      domain.Transaction{FromAccountID: acct, ToAccountID: acct, Amount: decimal.NewFromInt(-3), Type: domain.TransactionTypeWithdrawal},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "unknown type",
			tx:      domain.Transaction{FromAccountID: acct, ToAccountID: acct, Amount: decimal.NewFromInt(3), Type: "REFUND"},
			wantErr: domain.ErrInvalidRequest,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeTransactionStore{}
			_, err := NewTransactionLog(store, nil).Append(context.Background(), tc.tx)
			require.ErrorIs(t, err, tc.wantErr)
			assert.Empty(t, store.created)
		})
	}
}

func TestTransactionLog_StorageFailure(t *testing.T) {
	cause := errors.New("connection reset by peer")
	log := NewTransactionLog(&fakeTransactionStore{err: cause}, nil)
	ctx := context.Background()

	_, err := log.Append(ctx, domain.Transaction{
		FromAccountID: uuid.New(),
		ToAccountID:   uuid.New(),
		Amount:        decimal.NewFromInt(1),
		Type:          domain.TransactionTypeTransfer,
	})
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
	require.ErrorIs(t, err, cause)

	_, err = log.HistoryFor(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)

	_, err = log.All(ctx)
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestTransactionLog_HistoryNewestFirst(t *testing.T) {
	store := &fakeTransactionStore{}
	log := NewTransactionLog(store, nil)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	for _, tx := range []domain.Transaction{
		{FromAccountID: a, ToAccountID: a, Amount: decimal.NewFromInt(1), Type: domain.TransactionTypeDeposit},
		{FromAccountID: b, ToAccountID: b, Amount: decimal.NewFromInt(2), Type: domain.TransactionTypeDeposit},
		{FromAccountID: a, ToAccountID: b, Amount: decimal.NewFromInt(3), Type: domain.TransactionTypeTransfer},
	} {
		_, err := log.Append(ctx, tx)
		require.NoError(t, err)
	}

	hist, err := log.HistoryFor(ctx, a)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, domain.TransactionTypeTransfer, hist[0].Type)
	assert.Equal(t, domain.TransactionTypeDeposit, hist[1].Type)

	all, err := log.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestBalanceDeltas(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	amt := decimal.RequireFromString("10.25")

	deposit := balanceDeltas(domain.TransactionTypeDeposit, a, a, amt)
	assert.Len(t, deposit, 1)
	assert.True(t, deposit[a].Equal(amt))

	withdrawal := balanceDeltas(domain.TransactionTypeWithdrawal, a, a, amt)
	assert.Len(t, withdrawal, 1)
	assert.True(t, withdrawal[a].Equal(amt.Neg()))

	transfer := balanceDeltas(domain.TransactionTypeTransfer, a, b, amt)
	assert.True(t, transfer[a].Equal(amt.Neg()))
	assert.True(t, transfer[b].Equal(amt))

	self := balanceDeltas(domain.TransactionTypeTransfer, a, a, amt)
	assert.Len(t, self, 1)
	assert.True(t, self[a].IsZero())
}
