package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/josh-kwaku/console-bank/internal/domain"
)

// Principal is the authenticated identity attached to a session or request.
type Principal struct {
	UserID   uuid.UUID
	Username string
	Role     domain.Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == domain.RoleAdmin
}

type credentialStore interface {
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

type Authenticator struct {
	users     credentialStore
	compare   func(hash, password string) (bool, error)
	dummyHash func() string
}

// NewAuthenticator checks credentials against users. bcryptCost should match
// the cost stored hashes are created with.
func NewAuthenticator(users credentialStore, bcryptCost int) *Authenticator {
	return &Authenticator{
		users:   users,
		compare: CheckPassword,
		dummyHash: sync.OnceValue(func() string {
			hash, err := HashPassword("no-such-user", bcryptCost)
			if err != nil {
				return ""
			}
			return hash
		}),
	}
}

// rejectSlowly spends one bcrypt comparison so that unknown and closed users
// take as long to reject as a wrong password.
func (a *Authenticator) rejectSlowly(secret string) {
	_, _ = a.compare(a.dummyHash(), secret)
}

// Authenticate verifies username and secret against the stored bcrypt hash.
// Unknown and closed users are indistinguishable from a wrong secret.
func (a *Authenticator) Authenticate(ctx context.Context, username, secret string) (Principal, error) {
	user, err := a.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.rejectSlowly(secret)
			return Principal{}, fmt.Errorf("Authenticate: %w", domain.ErrInvalidCredentials)
		}
		return Principal{}, domain.StorageError("Authenticate", err)
	}

	if user.Status == domain.UserStatusClosed {
		a.rejectSlowly(secret)
		return Principal{}, fmt.Errorf("Authenticate: %w", domain.ErrInvalidCredentials)
	}

	ok, err := a.compare(user.PasswordHash, secret)
	if err != nil {
		return Principal{}, fmt.Errorf("Authenticate: %w: %w", domain.ErrInvalidCredentials, err)
	}
	if !ok {
		return Principal{}, fmt.Errorf("Authenticate: %w", domain.ErrInvalidCredentials)
	}

	return Principal{UserID: user.ID, Username: user.Username, Role: user.Role}, nil
}

// Session holds at most one current principal. It is owned by a single
// interactive loop and is not safe for concurrent use.
type Session struct {
	auth      *Authenticator
	principal *Principal
}

func NewSession(a *Authenticator) *Session {
	return &Session{auth: a}
}

// Authenticate logs in on success. A failed attempt leaves the session as
// it was.
func (s *Session) Authenticate(ctx context.Context, username, secret string) (Principal, error) {
	p, err := s.auth.Authenticate(ctx, username, secret)
	if err != nil {
		return Principal{}, err
	}
	s.principal = &p
	return p, nil
}

func (s *Session) Current() (Principal, bool) {
	if s.principal == nil {
		return Principal{}, false
	}
	return *s.principal, true
}

func (s *Session) IsAdmin() bool {
	return s.principal != nil && s.principal.IsAdmin()
}

func (s *Session) Logout() {
	s.principal = nil
}

func (s *Session) RequirePrincipal() (Principal, error) {
	p, ok := s.Current()
	if !ok {
		return Principal{}, domain.ErrNotAuthenticated
	}
	return p, nil
}

func (s *Session) RequireAdmin() (Principal, error) {
	p, err := s.RequirePrincipal()
	if err != nil {
		return Principal{}, err
	}
	if !p.IsAdmin() {
		return Principal{}, domain.ErrForbidden
	}
	return p, nil
}
