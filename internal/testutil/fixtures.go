package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/console-bank/internal/domain"
)

const TestPassword = "password123"

func SeedTestUser(t *testing.T, db *sql.DB, username string, role domain.Role) *domain.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &domain.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		Status:       domain.UserStatusActive,
		CreatedAt:    time.Now().UTC(),
	}

	_, err = db.Exec(
		`INSERT INTO users (id, username, password_hash, role, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Username, u.PasswordHash, u.Role, u.Status, u.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed test user %s: %v", username, err)
	}
	return u
}

func SeedTestAccount(t *testing.T, db *sql.DB, userID uuid.UUID, balance string) *domain.Account {
	t.Helper()

	a := &domain.Account{
		ID:        uuid.New(),
		UserID:    userID,
		Balance:   decimal.RequireFromString(balance),
		Version:   1,
		CreatedAt: time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO accounts (id, user_id, balance, version, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.UserID, a.Balance, a.Version, a.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed test account for %s: %v", userID, err)
	}
	return a
}

func GetAccountBalance(t *testing.T, db *sql.DB, accountID uuid.UUID) decimal.Decimal {
	t.Helper()

	var balance decimal.Decimal
	err := db.QueryRow(`SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		t.Fatalf("get account balance %s: %v", accountID, err)
	}
	return balance
}

func CountTransactions(t *testing.T, db *sql.DB, accountID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM transactions WHERE from_account_id = $1 OR to_account_id = $1`, accountID,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count transactions for account %s: %v", accountID, err)
	}
	return count
}

// Dec is shorthand for literal amounts in tests.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
