package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/console-bank/internal/auth"
	"github.com/josh-kwaku/console-bank/internal/logging"
)

type authenticator interface {
	Authenticate(ctx context.Context, username, secret string) (auth.Principal, error)
}

type AuthHandler struct {
	auth      authenticator
	jwtSecret string
	jwtExpiry time.Duration
}

func NewAuthHandler(a authenticator, jwtSecret string, jwtExpiry time.Duration) *AuthHandler {
	return &AuthHandler{
		auth:      a,
		jwtSecret: jwtSecret,
		jwtExpiry: jwtExpiry,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() []FieldError {
	var errs []FieldError
	if strings.TrimSpace(r.Username) == "" {
		errs = append(errs, FieldError{Field: "username", Message: "required"})
	}
	if r.Password == "" {
		errs = append(errs, FieldError{Field: "password", Message: "required"})
	}
	return errs
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	Principal principalDTO `json:"principal"`
}

type principalDTO struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Role     string    `json:"role"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	p, err := h.auth.Authenticate(r.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	token, err := auth.GenerateToken(p, h.jwtSecret, h.jwtExpiry)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to sign token", "error", err)
		RespondAppError(w, ErrInternalError, nil)
		return
	}

	RespondSuccess(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.jwtExpiry).UTC(),
		Principal: principalDTO{
			UserID:   p.UserID,
			Username: p.Username,
			Role:     string(p.Role),
		},
	})
}
