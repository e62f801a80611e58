// Package console implements the interactive menu loop of the bank.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/console-bank/internal/auth"
	"github.com/josh-kwaku/console-bank/internal/domain"
	"github.com/josh-kwaku/console-bank/internal/logging"
	"github.com/josh-kwaku/console-bank/internal/service"
)

type Ledger interface {
	EnsureAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*domain.Transaction, error)
	Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*domain.Transaction, error)
	Transfer(ctx context.Context, fromUserID, toUserID uuid.UUID, amount decimal.Decimal) (*domain.Transaction, error)
	History(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error)
	AllTransactions(ctx context.Context) ([]domain.Transaction, error)
}

type UserAdmin interface {
	CreateUser(ctx context.Context, req service.CreateUserRequest) (*domain.User, error)
	UpdateUser(ctx context.Context, req service.UpdateUserRequest) (*domain.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
	ListUsers(ctx context.Context) ([]domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

const timeLayout = "2006-01-02 15:04:05"

// Console reads menu choices line by line and writes prompts and results.
type Console struct {
	in      *bufio.Scanner
	out     io.Writer
	session *auth.Session
	ledger  Ledger
	users   UserAdmin
}

func New(in io.Reader, out io.Writer, session *auth.Session, ledger Ledger, users UserAdmin) *Console {
	return &Console{
		in:      bufio.NewScanner(in),
		out:     out,
		session: session,
		ledger:  ledger,
		users:   users,
	}
}

// Run drives the menus until the user exits, input ends or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var more bool
		principal, ok := c.session.Current()
		switch {
		case !ok:
			more = c.loginMenu(ctx)
		case principal.IsAdmin():
			more = c.adminMenu(ctx)
		default:
			more = c.userMenu(ctx)
		}
		if !more {
			c.println("Goodbye!")
			return nil
		}
	}
}

func (c *Console) loginMenu(ctx context.Context) bool {
	c.println("\n=== Bank Login ===")
	username, ok := c.prompt("Username: ")
	if !ok {
		return false
	}
	password, ok := c.prompt("Password: ")
	if !ok {
		return false
	}

	p, err := c.session.Authenticate(ctx, username, password)
	if err != nil {
		c.fail(ctx, "login", err)
		return true
	}
	c.printf("Login successful! Welcome, %s.\n", p.Username)
	return true
}

func (c *Console) userMenu(ctx context.Context) bool {
	for {
		c.println("\n=== User Menu ===")
		c.println("1. Check Balance")
		c.println("2. Deposit")
		c.println("3. Withdraw")
		c.println("4. Transfer")
		c.println("5. Transaction History")
		c.println("6. Logout")
		c.println("0. Exit")

		choice, ok := c.prompt("Enter your choice: ")
		if !ok {
			return false
		}

		switch choice {
		case "1":
			c.checkBalance(ctx)
		case "2":
			c.deposit(ctx)
		case "3":
			c.withdraw(ctx)
		case "4":
			c.transfer(ctx)
		case "5":
			c.history(ctx)
		case "6":
			c.session.Logout()
			c.println("Logged out.")
			return true
		case "0":
			return false
		default:
			c.println("Invalid choice!")
		}
	}
}

func (c *Console) adminMenu(ctx context.Context) bool {
	for {
		c.println("\n=== Admin Menu ===")
		c.println("1. List All Users")
		c.println("2. Add User")
		c.println("3. Update User")
		c.println("4. Delete User")
		c.println("5. List All Transactions")
		c.println("6. Logout")
		c.println("0. Exit")

		choice, ok := c.prompt("Enter your choice: ")
		if !ok {
			return false
		}

		switch choice {
		case "1":
			c.listUsers(ctx)
		case "2":
			c.addUser(ctx)
		case "3":
			c.updateUser(ctx)
		case "4":
			c.deleteUser(ctx)
		case "5":
			c.listAllTransactions(ctx)
		case "6":
			c.session.Logout()
			c.println("Logged out.")
			return true
		case "0":
			return false
		default:
			c.println("Invalid choice!")
		}
	}
}

// currentAccount resolves the logged-in user and opens their account if it
// does not exist yet.
func (c *Console) currentAccount(ctx context.Context) (auth.Principal, *domain.Account, bool) {
	p, err := c.session.RequirePrincipal()
	if err != nil {
		c.fail(ctx, "session", err)
		return auth.Principal{}, nil, false
	}
	account, err := c.ledger.EnsureAccount(ctx, p.UserID)
	if err != nil {
		c.fail(ctx, "ensure account", err)
		return auth.Principal{}, nil, false
	}
	return p, account, true
}

func (c *Console) checkBalance(ctx context.Context) {
	p, _, ok := c.currentAccount(ctx)
	if !ok {
		return
	}
	account, err := c.ledger.GetBalance(ctx, p.UserID)
	if err != nil {
		c.fail(ctx, "balance", err)
		return
	}
	c.println("\n=== Account Balance ===")
	c.printf("Account ID: %s\n", account.ID)
	c.printf("Current balance: $%s\n", money(account.Balance))
}

func (c *Console) deposit(ctx context.Context) {
	p, _, ok := c.currentAccount(ctx)
	if !ok {
		return
	}
	amount, ok := c.readAmount(ctx, "Enter amount to deposit: ")
	if !ok {
		return
	}
	if _, err := c.ledger.Deposit(ctx, p.UserID, amount); err != nil {
		c.fail(ctx, "deposit", err)
		return
	}
	c.println("Deposit successful!")
}

func (c *Console) withdraw(ctx context.Context) {
	p, _, ok := c.currentAccount(ctx)
	if !ok {
		return
	}
	amount, ok := c.readAmount(ctx, "Enter amount to withdraw: ")
	if !ok {
		return
	}
	if _, err := c.ledger.Withdraw(ctx, p.UserID, amount); err != nil {
		c.fail(ctx, "withdraw", err)
		return
	}
	c.println("Withdrawal successful!")
}

func (c *Console) transfer(ctx context.Context) {
	p, _, ok := c.currentAccount(ctx)
	if !ok {
		return
	}
	name, ok := c.prompt("Enter recipient username: ")
	if !ok {
		return
	}
	recipient, err := c.users.GetByUsername(ctx, name)
	if err != nil {
		c.fail(ctx, "transfer", err)
		return
	}
	if _, err := c.ledger.EnsureAccount(ctx, recipient.ID); err != nil {
		c.fail(ctx, "transfer", err)
		return
	}
	amount, ok := c.readAmount(ctx, "Enter amount to transfer: ")
	if !ok {
		return
	}
	if _, err := c.ledger.Transfer(ctx, p.UserID, recipient.ID, amount); err != nil {
		c.fail(ctx, "transfer", err)
		return
	}
	c.printf("Transferred $%s to %s.\n", money(amount), recipient.Username)
}

func (c *Console) history(ctx context.Context) {
	p, account, ok := c.currentAccount(ctx)
	if !ok {
		return
	}
	txs, err := c.ledger.History(ctx, p.UserID)
	if err != nil {
		c.fail(ctx, "history", err)
		return
	}

	c.println("\n=== Transaction History ===")
	if len(txs) == 0 {
		c.println("No transactions found.")
		return
	}
	for _, t := range txs {
		c.printf("%s - %s - Amount: $%s%s\n", t.CreatedAt.Format(timeLayout), t.Type, money(t.Amount), direction(&t, account.ID))
	}
}

func (c *Console) listUsers(ctx context.Context) {
	users, err := c.users.ListUsers(ctx)
	if err != nil {
		c.fail(ctx, "list users", err)
		return
	}
	c.println("\n=== All Users ===")
	if len(users) == 0 {
		c.println("No users found.")
		return
	}
	for _, u := range users {
		c.printf("ID: %s, Username: %s, Role: %s\n", u.ID, u.Username, u.Role)
	}
}

func (c *Console) addUser(ctx context.Context) {
	username, ok := c.prompt("Enter username: ")
	if !ok {
		return
	}
	password, ok := c.prompt("Enter password: ")
	if !ok {
		return
	}
	role, ok := c.prompt("Enter role (USER/ADMIN): ")
	if !ok {
		return
	}

	u, err := c.users.CreateUser(ctx, service.CreateUserRequest{Username: username, Password: password, Role: role})
	if err != nil {
		c.fail(ctx, "add user", err)
		return
	}
	c.printf("User %s added successfully!\n", u.Username)
}

func (c *Console) updateUser(ctx context.Context) {
	target, ok := c.lookupUser(ctx, "Enter username of the user to update: ")
	if !ok {
		return
	}
	username, ok := c.prompt("Enter new username: ")
	if !ok {
		return
	}
	password, ok := c.prompt("Enter new password (blank to keep): ")
	if !ok {
		return
	}
	role, ok := c.prompt("Enter new role (USER/ADMIN): ")
	if !ok {
		return
	}

	_, err := c.users.UpdateUser(ctx, service.UpdateUserRequest{
		ID:       target.ID,
		Username: username,
		Password: password,
		Role:     role,
	})
	if err != nil {
		c.fail(ctx, "update user", err)
		return
	}
	c.println("User updated successfully!")
}

func (c *Console) deleteUser(ctx context.Context) {
	target, ok := c.lookupUser(ctx, "Enter username of the user to delete: ")
	if !ok {
		return
	}
	if p, err := c.session.RequirePrincipal(); err == nil && p.UserID == target.ID {
		c.println("You cannot delete your own user.")
		return
	}
	if err := c.users.DeleteUser(ctx, target.ID); err != nil {
		c.fail(ctx, "delete user", err)
		return
	}
	c.println("User deleted successfully!")
}

func (c *Console) listAllTransactions(ctx context.Context) {
	if _, err := c.session.RequireAdmin(); err != nil {
		c.fail(ctx, "list transactions", err)
		return
	}
	txs, err := c.ledger.AllTransactions(ctx)
	if err != nil {
		c.fail(ctx, "list transactions", err)
		return
	}

	c.println("\n=== All Transactions ===")
	if len(txs) == 0 {
		c.println("No transactions found.")
		return
	}
	for _, t := range txs {
		c.printf("%s - %s - Amount: $%s - From: %s - To: %s\n",
			t.CreatedAt.Format(timeLayout), t.Type, money(t.Amount), t.FromAccountID, t.ToAccountID)
	}
}

func (c *Console) lookupUser(ctx context.Context, label string) (*domain.User, bool) {
	if _, err := c.session.RequireAdmin(); err != nil {
		c.fail(ctx, "admin", err)
		return nil, false
	}
	name, ok := c.prompt(label)
	if !ok {
		return nil, false
	}
	u, err := c.users.GetByUsername(ctx, name)
	if err != nil {
		c.fail(ctx, "lookup user", err)
		return nil, false
	}
	return u, true
}

func (c *Console) readAmount(ctx context.Context, label string) (decimal.Decimal, bool) {
	raw, ok := c.prompt(label)
	if !ok {
		return decimal.Decimal{}, false
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		c.fail(ctx, "parse amount", fmt.Errorf("%q: %w", raw, domain.ErrInvalidAmount))
		return decimal.Decimal{}, false
	}
	return amount, true
}

// prompt returns false once input is exhausted.
func (c *Console) prompt(label string) (string, bool) {
	fmt.Fprint(c.out, label)
	if !c.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(c.in.Text()), true
}

func (c *Console) fail(ctx context.Context, op string, err error) {
	if errors.Is(err, domain.ErrStorageUnavailable) || !domain.IsDomainError(err) {
		logging.FromContext(ctx).Error("console operation failed", "op", op, "error", err)
	}
	c.println(Describe(err))
}

func (c *Console) println(s string) {
	fmt.Fprintln(c.out, s)
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// Describe turns an error into the message shown to the user.
func Describe(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "Invalid credentials!"
	case errors.Is(err, domain.ErrInvalidAmount):
		return "Invalid amount! Enter a positive number with at most 2 decimal places and no more than 99999999999999999.99."
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "Insufficient funds!"
	case errors.Is(err, domain.ErrBalanceLimit):
		return "Amount rejected: the account balance would exceed its maximum."
	case errors.Is(err, domain.ErrAccountNotFound):
		return "Account not found!"
	case errors.Is(err, domain.ErrUserNotFound):
		return "User not found!"
	case errors.Is(err, domain.ErrUsernameTaken):
		return "Username is already taken!"
	case errors.Is(err, domain.ErrInvalidRole):
		return "Invalid role! Use USER or ADMIN."
	case errors.Is(err, domain.ErrInvalidRequest):
		return "Invalid input! Username and password are required, and passwords are limited to 72 bytes."
	case errors.Is(err, domain.ErrNotAuthenticated):
		return "Please log in first."
	case errors.Is(err, domain.ErrForbidden):
		return "Administrator access required."
	case errors.Is(err, domain.ErrVersionConflict):
		return "The account changed while processing. Please try again."
	case errors.Is(err, domain.ErrStorageUnavailable):
		return "The bank is temporarily unavailable. Please try again later."
	default:
		return "Something went wrong. Please try again."
	}
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func direction(t *domain.Transaction, accountID uuid.UUID) string {
	if t.Type != domain.TransactionTypeTransfer {
		return ""
	}
	switch {
	case t.FromAccountID == accountID && t.ToAccountID == accountID:
		return " (to self)"
	case t.FromAccountID == accountID:
		return fmt.Sprintf(" - To: %s", t.ToAccountID)
	default:
		return fmt.Sprintf(" - From: %s", t.FromAccountID)
	}
}
