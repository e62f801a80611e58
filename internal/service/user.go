package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/console-bank/internal/auth"
	"github.com/josh-kwaku/console-bank/internal/domain"
	"github.com/josh-kwaku/console-bank/internal/logging"
	"github.com/josh-kwaku/console-bank/internal/repository"
)

type userRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Create(ctx context.Context, db repository.DBTX, u *domain.User) error
	Update(ctx context.Context, u *domain.User) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.UserStatus) error
}

type accountOpener interface {
	CreateIfAbsent(ctx context.Context, db repository.DBTX, account *domain.Account) (bool, error)
}

// UserService is the administrator's view of user records.
type UserService struct {
	users      userRepo
	accounts   accountOpener
	db         *sql.DB
	bcryptCost int
}

func NewUserService(users userRepo, accounts accountOpener, db *sql.DB, bcryptCost int) *UserService {
	return &UserService{users: users, accounts: accounts, db: db, bcryptCost: bcryptCost}
}

type CreateUserRequest struct {
	Username string
	Password string
	Role     string
}

// UpdateUserRequest replaces a user's fields. An empty Password keeps the
// current one.
type UpdateUserRequest struct {
	ID       uuid.UUID
	Username string
	Password string
	Role     string
}

// CreateUser stores the user together with a zero-balance account.
func (s *UserService) CreateUser(ctx context.Context, req CreateUserRequest) (*domain.User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, fmt.Errorf("CreateUser: username and password required: %w", domain.ErrInvalidRequest)
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return nil, fmt.Errorf("CreateUser: %w", err)
	}

	hash, err := auth.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("CreateUser: %w", err)
	}

	ts := now()
	user := &domain.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		Status:       domain.UserStatusActive,
		CreatedAt:    ts,
	}
	account := &domain.Account{
		ID:        uuid.New(),
		UserID:    user.ID,
		Balance:   decimal.Zero,
		Version:   1,
		CreatedAt: ts,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.StorageError("CreateUser: begin tx", err)
	}
	defer tx.Rollback()

	if err := s.users.Create(ctx, tx, user); err != nil {
		return nil, domain.StorageError("CreateUser", err)
	}
	if _, err := s.accounts.CreateIfAbsent(ctx, tx, account); err != nil {
		return nil, domain.StorageError("CreateUser: account", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, domain.StorageError("CreateUser: commit", err)
	}

	logging.FromContext(ctx).Info("user created",
		"user_id", user.ID,
		"username", user.Username,
		"role", user.Role,
		"account_id", account.ID,
	)
	return user, nil
}

func (s *UserService) UpdateUser(ctx context.Context, req UpdateUserRequest) (*domain.User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, fmt.Errorf("UpdateUser: username required: %w", domain.ErrInvalidRequest)
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return nil, fmt.Errorf("UpdateUser: %w", err)
	}

	user, err := s.userByID(ctx, req.ID)
	if err != nil {
		return nil, domain.StorageError("UpdateUser", err)
	}

	user.Username = username
	user.Role = role
	if req.Password != "" {
		hash, err := auth.HashPassword(req.Password, s.bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("UpdateUser: %w", err)
		}
		user.PasswordHash = hash
	}

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("UpdateUser: %w", domain.ErrUserNotFound)
		}
		return nil, domain.StorageError("UpdateUser", err)
	}

	logging.FromContext(ctx).Info("user updated", "user_id", user.ID, "username", user.Username, "role", user.Role)
	return user, nil
}

// DeleteUser closes the user. The account and its history are kept and the
// user can no longer log in.
func (s *UserService) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if _, err := s.userByID(ctx, id); err != nil {
		return domain.StorageError("DeleteUser", err)
	}
	if err := s.users.UpdateStatus(ctx, id, domain.UserStatusClosed); err != nil {
		return domain.StorageError("DeleteUser", err)
	}

	logging.FromContext(ctx).Info("user closed", "user_id", id)
	return nil
}

func (s *UserService) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, domain.StorageError("ListUsers", err)
	}
	return users, nil
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("GetByUsername: %w", domain.ErrUserNotFound)
		}
		return nil, domain.StorageError("GetByUsername", err)
	}
	if user.Status == domain.UserStatusClosed {
		return nil, fmt.Errorf("GetByUsername: %w", domain.ErrUserNotFound)
	}
	return user, nil
}

// EnsureAdmin creates the bootstrap administrator unless the username is
// already taken.
func (s *UserService) EnsureAdmin(ctx context.Context, username, password string) error {
	_, err := s.users.GetByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.StorageError("EnsureAdmin", err)
	}

	_, err = s.CreateUser(ctx, CreateUserRequest{Username: username, Password: password, Role: string(domain.RoleAdmin)})
	if err != nil && !errors.Is(err, domain.ErrUsernameTaken) {
		return fmt.Errorf("EnsureAdmin: %w", err)
	}
	return nil
}

func (s *UserService) userByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("userByID: %w", domain.ErrUserNotFound)
		}
		return nil, fmt.Errorf("userByID: %w", err)
	}
	if user.Status == domain.UserStatusClosed {
		return nil, fmt.Errorf("userByID: %w", domain.ErrUserNotFound)
	}
	return user, nil
}
