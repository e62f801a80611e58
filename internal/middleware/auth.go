package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/josh-kwaku/console-bank/internal/auth"
	"github.com/josh-kwaku/console-bank/internal/domain"
	"github.com/josh-kwaku/console-bank/internal/handler"
	"github.com/josh-kwaku/console-bank/internal/logging"
)

type userLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// Auth validates the bearer token, reloads the user it names and attaches
// the principal, and a logger carrying its user id, to the request context.
// Tokens of closed or deleted users are rejected; the role comes from the
// stored user, not from the claims.
func Auth(secret string, users userLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}

			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			p, err := auth.ValidateToken(token, secret)
			if err != nil {
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			u, err := users.GetByID(r.Context(), p.UserID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					handler.RespondAppError(w, handler.ErrInvalidToken, nil)
					return
				}
				logging.FromContext(r.Context()).Error("loading token user", "user_id", p.UserID, "error", err)
				handler.RespondDomainError(w, domain.StorageError("Auth", err))
				return
			}
			if u.Status != domain.UserStatusActive {
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}
			p.Username = u.Username
			p.Role = u.Role

			ctx := auth.ContextWithPrincipal(r.Context(), p)
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With("user_id", p.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects principals without the ADMIN role. It must run
// after Auth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			handler.RespondAppError(w, handler.ErrMissingToken, nil)
			return
		}
		if !p.IsAdmin() {
			logging.FromContext(r.Context()).Warn("admin route denied", "path", r.URL.Path)
			handler.RespondAppError(w, handler.ErrForbidden, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
