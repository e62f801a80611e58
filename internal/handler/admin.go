package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/console-bank/internal/auth"
	"github.com/josh-kwaku/console-bank/internal/domain"
	"github.com/josh-kwaku/console-bank/internal/logging"
	"github.com/josh-kwaku/console-bank/internal/service"
)

type userAdmin interface {
	CreateUser(ctx context.Context, req service.CreateUserRequest) (*domain.User, error)
	UpdateUser(ctx context.Context, req service.UpdateUserRequest) (*domain.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
	ListUsers(ctx context.Context) ([]domain.User, error)
}

type transactionLister interface {
	AllTransactions(ctx context.Context) ([]domain.Transaction, error)
}

// AdminHandler serves user administration and the full transaction log.
// Routes are expected behind middleware.RequireAdmin.
type AdminHandler struct {
	users  userAdmin
	ledger transactionLister
}

func NewAdminHandler(users userAdmin, ledger transactionLister) *AdminHandler {
	return &AdminHandler{users: users, ledger: ledger}
}

type userRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Validate checks the body. Password is optional on update.
func (r userRequest) Validate(passwordRequired bool) []FieldError {
	var errs []FieldError
	if strings.TrimSpace(r.Username) == "" {
		errs = append(errs, FieldError{Field: "username", Message: "required"})
	}
	if passwordRequired && r.Password == "" {
		errs = append(errs, FieldError{Field: "password", Message: "required"})
	}
	if len(r.Password) > auth.MaxPasswordBytes {
		errs = append(errs, FieldError{Field: "password", Message: "must be at most 72 bytes"})
	}
	if _, err := domain.ParseRole(r.Role); err != nil {
		errs = append(errs, FieldError{Field: "role", Message: "must be USER or ADMIN"})
	}
	return errs
}

type userDTO struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserDTO(u *domain.User) userDTO {
	return userDTO{
		ID:        u.ID,
		Username:  u.Username,
		Role:      string(u.Role),
		Status:    string(u.Status),
		CreatedAt: u.CreatedAt,
	}
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list users", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]userDTO, len(users))
	for i := range users {
		dtos[i] = toUserDTO(&users[i])
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(true); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	u, err := h.users.CreateUser(r.Context(), service.CreateUserRequest{
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("failed to create user", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toUserDTO(u))
}

func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, appErr := userIDFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(false); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	u, err := h.users.UpdateUser(r.Context(), service.UpdateUserRequest{
		ID:       id,
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("failed to update user", "user_id", id, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toUserDTO(u))
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, appErr := userIDFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	if p, appErr := principalFrom(r); appErr == nil && p.UserID == id {
		RespondValidationError(w, []FieldError{{Field: "id", Message: "cannot delete the calling user"}})
		return
	}

	if err := h.users.DeleteUser(r.Context(), id); err != nil {
		logging.FromContext(r.Context()).Warn("failed to delete user", "user_id", id, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"id":     id,
		"status": string(domain.UserStatusClosed),
	})
}

func (h *AdminHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.ledger.AllTransactions(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list transactions", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toTransactionDTOs(txs))
}
