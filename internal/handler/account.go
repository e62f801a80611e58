package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/console-bank/internal/domain"
	"github.com/josh-kwaku/console-bank/internal/logging"
)

type accountLedger interface {
	EnsureAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*domain.Transaction, error)
	Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*domain.Transaction, error)
	Transfer(ctx context.Context, fromUserID, toUserID uuid.UUID, amount decimal.Decimal) (*domain.Transaction, error)
	History(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error)
}

type recipientLookup interface {
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

// AccountHandler serves the authenticated user's own account. Every route
// opens the account first if it does not exist yet.
type AccountHandler struct {
	ledger accountLedger
	users  recipientLookup
}

func NewAccountHandler(ledger accountLedger, users recipientLookup) *AccountHandler {
	return &AccountHandler{ledger: ledger, users: users}
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (r amountRequest) Validate() []FieldError {
	if err := domain.ValidateAmount(r.Amount); err != nil {
		return []FieldError{{Field: "amount", Message: "must be greater than 0 with at most 2 decimal places"}}
	}
	return nil
}

type transferRequest struct {
	RecipientUsername string          `json:"recipient_username"`
	Amount            decimal.Decimal `json:"amount"`
}

func (r transferRequest) Validate() []FieldError {
	var errs []FieldError
	if strings.TrimSpace(r.RecipientUsername) == "" {
		errs = append(errs, FieldError{Field: "recipient_username", Message: "required"})
	}
	if err := domain.ValidateAmount(r.Amount); err != nil {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0 with at most 2 decimal places"})
	}
	return errs
}

type accountDTO struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Balance   string    `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

func toAccountDTO(a *domain.Account) accountDTO {
	return accountDTO{
		ID:        a.ID,
		UserID:    a.UserID,
		Balance:   a.Balance.StringFixed(2),
		CreatedAt: a.CreatedAt,
	}
}

type transactionDTO struct {
	ID            uuid.UUID `json:"id"`
	Type          string    `json:"type"`
	FromAccountID uuid.UUID `json:"from_account_id"`
	ToAccountID   uuid.UUID `json:"to_account_id"`
	Amount        string    `json:"amount"`
	CreatedAt     time.Time `json:"created_at"`
}

func toTransactionDTO(t *domain.Transaction) transactionDTO {
	return transactionDTO{
		ID:            t.ID,
		Type:          string(t.Type),
		FromAccountID: t.FromAccountID,
		ToAccountID:   t.ToAccountID,
		Amount:        t.Amount.StringFixed(2),
		CreatedAt:     t.CreatedAt,
	}
}

func toTransactionDTOs(txs []domain.Transaction) []transactionDTO {
	dtos := make([]transactionDTO, len(txs))
	for i := range txs {
		dtos[i] = toTransactionDTO(&txs[i])
	}
	return dtos
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, appErr := principalFrom(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	account, err := h.ledger.EnsureAccount(r.Context(), p.UserID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to load account", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toAccountDTO(account))
}

func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.applyAmount(w, r, "deposit", h.ledger.Deposit)
}

func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.applyAmount(w, r, "withdraw", h.ledger.Withdraw)
}

func (h *AccountHandler) applyAmount(w http.ResponseWriter, r *http.Request, op string,
	apply func(context.Context, uuid.UUID, decimal.Decimal) (*domain.Transaction, error),
) {
	p, appErr := principalFrom(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	if _, err := h.ledger.EnsureAccount(r.Context(), p.UserID); err != nil {
		logging.FromContext(r.Context()).Error("failed to open account", "op", op, "error", err)
		RespondDomainError(w, err)
		return
	}

	t, err := apply(r.Context(), p.UserID, req.Amount)
	if err != nil {
		logging.FromContext(r.Context()).Warn(op+" failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toTransactionDTO(t))
}

func (h *AccountHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	p, appErr := principalFrom(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	log := logging.FromContext(r.Context())

	recipient, err := h.users.GetByUsername(r.Context(), req.RecipientUsername)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	for _, userID := range []uuid.UUID{p.UserID, recipient.ID} {
		if _, err := h.ledger.EnsureAccount(r.Context(), userID); err != nil {
			log.Error("failed to open account", "user_id", userID, "error", err)
			RespondDomainError(w, err)
			return
		}
	}

	t, err := h.ledger.Transfer(r.Context(), p.UserID, recipient.ID, req.Amount)
	if err != nil {
		log.Warn("transfer failed", "recipient", recipient.Username, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toTransactionDTO(t))
}

func (h *AccountHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	p, appErr := principalFrom(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	if _, err := h.ledger.EnsureAccount(r.Context(), p.UserID); err != nil {
		RespondDomainError(w, err)
		return
	}

	txs, err := h.ledger.History(r.Context(), p.UserID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to load history", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toTransactionDTOs(txs))
}
