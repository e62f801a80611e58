package console

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/console-bank/internal/auth"
	"github.com/josh-kwaku/console-bank/internal/domain"
	"github.com/josh-kwaku/console-bank/internal/service"
)

type fakeBank struct {
	users    map[uuid.UUID]*domain.User
	accounts map[uuid.UUID]*domain.Account
	txs      []domain.Transaction
	clock    time.Time
	failWith error
}

func newFakeBank() *fakeBank {
	return &fakeBank{
		users:    map[uuid.UUID]*domain.User{},
		accounts: map[uuid.UUID]*domain.Account{},
		clock:    time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (b *fakeBank) addUser(t *testing.T, username string, role domain.Role) *domain.User {
	t.Helper()
	hash, err := auth.HashPassword("pw", bcrypt.MinCost)
	require.NoError(t, err)
	b.clock = b.clock.Add(time.Second)
	u := &domain.User{ID: uuid.New(), Username: username, PasswordHash: hash, Role: role, Status: domain.UserStatusActive, CreatedAt: b.clock}
	b.users[u.ID] = u
	return u
}

func (b *fakeBank) byName(username string) *domain.User {
	for _, u := range b.users {
		if u.Username == username && u.Status == domain.UserStatusActive {
			return u
		}
	}
	return nil
}

// credentials adapts the bank to the authenticator's store.
type credentials struct{ bank *fakeBank }

func (c credentials) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	for _, u := range c.bank.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (b *fakeBank) EnsureAccount(_ context.Context, userID uuid.UUID) (*domain.Account, error) {
	if b.failWith != nil {
		return nil, b.failWith
	}
	if a, ok := b.accounts[userID]; ok {
		return a, nil
	}
	a := &domain.Account{ID: uuid.New(), UserID: userID, Balance: decimal.Zero, Version: 1}
	b.accounts[userID] = a
	return a, nil
}

func (b *fakeBank) GetBalance(_ context.Context, userID uuid.UUID) (*domain.Account, error) {
	a, ok := b.accounts[userID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return a, nil
}

func (b *fakeBank) post(kind domain.TransactionType, from, to *domain.Account, amount decimal.Decimal) (*domain.Transaction, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	if kind != domain.TransactionTypeDeposit && from.Balance.LessThan(amount) {
		return nil, fmt.Errorf("post: %w", domain.ErrInsufficientFunds)
	}
	if kind != domain.TransactionTypeDeposit {
		from.Balance = from.Balance.Sub(amount)
	}
	if kind != domain.TransactionTypeWithdrawal {
		to.Balance = to.Balance.Add(amount)
	}
	b.clock = b.clock.Add(time.Minute)
	t := domain.Transaction{ID: uuid.New(), FromAccountID: from.ID, ToAccountID: to.ID, Amount: amount, Type: kind, CreatedAt: b.clock}
	b.txs = append([]domain.Transaction{t}, b.txs...)
	return &t, nil
}

func (b *fakeBank) Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*domain.Transaction, error) {
	a, err := b.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return b.post(domain.TransactionTypeDeposit, a, a, amount)
}

func (b *fakeBank) Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*domain.Transaction, error) {
	a, err := b.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return b.post(domain.TransactionTypeWithdrawal, a, a, amount)
}

func (b *fakeBank) Transfer(ctx context.Context, fromUserID, toUserID uuid.UUID, amount decimal.Decimal) (*domain.Transaction, error) {
	from, err := b.GetBalance(ctx, fromUserID)
	if err != nil {
		return nil, err
	}
	to, err := b.GetBalance(ctx, toUserID)
	if err != nil {
		return nil, err
	}
	return b.post(domain.TransactionTypeTransfer, from, to, amount)
}

func (b *fakeBank) History(_ context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	a, ok := b.accounts[userID]
	if !ok {
		return []domain.Transaction{}, nil
	}
	var out []domain.Transaction
	for i := range b.txs {
		if b.txs[i].Involves(a.ID) {
			out = append(out, b.txs[i])
		}
	}
	return out, nil
}

func (b *fakeBank) AllTransactions(context.Context) ([]domain.Transaction, error) {
	return b.txs, nil
}

func (b *fakeBank) CreateUser(_ context.Context, req service.CreateUserRequest) (*domain.User, error) {
	if req.Username == "" || req.Password == "" {
		return nil, domain.ErrInvalidRequest
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return nil, err
	}
	if b.byName(req.Username) != nil {
		return nil, domain.ErrUsernameTaken
	}
	b.clock = b.clock.Add(time.Second)
	u := &domain.User{ID: uuid.New(), Username: req.Username, Role: role, Status: domain.UserStatusActive, CreatedAt: b.clock}
	b.users[u.ID] = u
	return u, nil
}

func (b *fakeBank) UpdateUser(_ context.Context, req service.UpdateUserRequest) (*domain.User, error) {
	u, ok := b.users[req.ID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return nil, err
	}
	u.Username = req.Username
	u.Role = role
	return u, nil
}

func (b *fakeBank) DeleteUser(_ context.Context, id uuid.UUID) error {
	u, ok := b.users[id]
	if !ok || u.Status == domain.UserStatusClosed {
		return domain.ErrUserNotFound
	}
	u.Status = domain.UserStatusClosed
	return nil
}

func (b *fakeBank) ListUsers(context.Context) ([]domain.User, error) {
	var out []domain.User
	for _, u := range b.users {
		if u.Status == domain.UserStatusActive {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (b *fakeBank) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	u := b.byName(username)
	if u == nil {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func runConsole(t *testing.T, bank *fakeBank, lines ...string) string {
	t.Helper()
	var out bytes.Buffer
	session := auth.NewSession(auth.NewAuthenticator(credentials{bank: bank}, bcrypt.MinCost))
	c := New(strings.NewReader(strings.Join(lines, "\n")+"\n"), &out, session, bank, bank)
	require.NoError(t, c.Run(context.Background()))
	return out.String()
}

func TestConsole_UserFlow(t *testing.T) {
	bank := newFakeBank()
	alice := bank.addUser(t, "alice", domain.RoleUser)
	bob := bank.addUser(t, "bob", domain.RoleUser)
	_, err := bank.EnsureAccount(context.Background(), bob.ID)
	require.NoError(t, err)

	out := runConsole(t, bank,
		"alice", "wrong",
		"alice", "pw",
		"2", "100",
		"1",
		"3", "150",
		"4", "bob", "50",
		"5",
		"0",
	)

	assert.Contains(t, out, "Invalid credentials!")
	assert.Contains(t, out, "Login successful! Welcome, alice.")
	assert.Contains(t, out, "Deposit successful!")
	assert.Contains(t, out, "Current balance: $100.00")
	assert.Contains(t, out, "Insufficient funds!")
	assert.Contains(t, out, "Transferred $50.00 to bob.")
	assert.Contains(t, out, "TRANSFER - Amount: $50.00 - To: "+bank.accounts[bob.ID].ID.String())
	assert.Contains(t, out, "DEPOSIT - Amount: $100.00")
	assert.True(t, strings.HasSuffix(out, "Goodbye!\n"))

	assert.True(t, bank.accounts[alice.ID].Balance.Equal(decimal.NewFromInt(50)))
	assert.True(t, bank.accounts[bob.ID].Balance.Equal(decimal.NewFromInt(50)))
	assert.Len(t, bank.txs, 2)
}

func TestConsole_EnsuresAccountBeforeActions(t *testing.T) {
	bank := newFakeBank()
	alice := bank.addUser(t, "alice", domain.RoleUser)

	out := runConsole(t, bank, "alice", "pw", "5", "1", "0")

	assert.Contains(t, out, "No transactions found.")
	assert.Contains(t, out, "Current balance: $0.00")
	require.Contains(t, bank.accounts, alice.ID)
}

func TestConsole_RejectsBadInput(t *testing.T) {
	bank := newFakeBank()
	bank.addUser(t, "alice", domain.RoleUser)

	out := runConsole(t, bank,
		"alice", "pw",
		"2", "abc",
		"2", "-5",
		"2", "1.005",
		"2", "1e50000000",
		"4", "nobody",
		"9",
		"0",
	)

	assert.Equal(t, 4, strings.Count(out, "Invalid amount!"))
	assert.Contains(t, out, "User not found!")
	assert.Contains(t, out, "Invalid choice!")
	assert.Empty(t, bank.txs)
}

func TestConsole_LogoutReturnsToLogin(t *testing.T) {
	bank := newFakeBank()
	bank.addUser(t, "alice", domain.RoleUser)
	bank.addUser(t, "root", domain.RoleAdmin)

	out := runConsole(t, bank, "alice", "pw", "6", "root", "pw", "0")

	assert.Contains(t, out, "Logged out.")
	assert.Equal(t, 2, strings.Count(out, "=== Bank Login ==="))
	assert.Contains(t, out, "=== Admin Menu ===")
}

func TestConsole_AdminFlow(t *testing.T) {
	bank := newFakeBank()
	bank.addUser(t, "root", domain.RoleAdmin)

	out := runConsole(t, bank,
		"root", "pw",
		"2", "carol", "secret", "user",
		"2", "carol", "secret", "USER",
		"2", "dave", "secret", "BOSS",
		"3", "carol", "caroline", "", "ADMIN",
		"1",
		"4", "caroline",
		"4", "root",
		"5",
		"0",
	)

	assert.Contains(t, out, "User carol added successfully!")
	assert.Contains(t, out, "Username is already taken!")
	assert.Contains(t, out, "Invalid role! Use USER or ADMIN.")
	assert.Contains(t, out, "User updated successfully!")
	assert.Contains(t, out, "Username: caroline, Role: ADMIN")
	assert.Contains(t, out, "User deleted successfully!")
	assert.Contains(t, out, "You cannot delete your own user.")
	assert.Contains(t, out, "No transactions found.")

	users, err := bank.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "root", users[0].Username)
}

func TestConsole_StorageFailureDoesNotCrash(t *testing.T) {
	bank := newFakeBank()
	bank.addUser(t, "alice", domain.RoleUser)
	bank.failWith = fmt.Errorf("EnsureAccount: %w: %w", domain.ErrStorageUnavailable, errors.New("connection refused"))

	out := runConsole(t, bank, "alice", "pw", "1", "0")

	assert.Contains(t, out, "The bank is temporarily unavailable.")
	assert.True(t, strings.HasSuffix(out, "Goodbye!\n"))
}

func TestConsole_EndOfInput(t *testing.T) {
	bank := newFakeBank()
	out := runConsole(t, bank)
	assert.Contains(t, out, "Goodbye!")
}

func TestConsole_ContextCancelled(t *testing.T) {
	bank := newFakeBank()
	session := auth.NewSession(auth.NewAuthenticator(credentials{bank: bank}, bcrypt.MinCost))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(strings.NewReader(""), &bytes.Buffer{}, session, bank, bank)
	require.ErrorIs(t, c.Run(ctx), context.Canceled)
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("Withdraw: %w", domain.ErrInsufficientFunds), "Insufficient funds!"},
		{fmt.Errorf("Deposit: %w", domain.ErrAccountNotFound), "Account not found!"},
		{domain.ErrInvalidCredentials, "Invalid credentials!"},
		{domain.ErrForbidden, "Administrator access required."},
		{fmt.Errorf("Deposit: post: %w", domain.ErrBalanceLimit), "Amount rejected: the account balance would exceed its maximum."},
		{fmt.Errorf("x: %w: %w", domain.ErrStorageUnavailable, errors.New("boom")), "The bank is temporarily unavailable. Please try again later."},
		{errors.New("boom"), "Something went wrong. Please try again."},
	}

	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			assert.Equal(t, tc.want, Describe(tc.err))
		})
	}
}
