package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ParseRole accepts role names case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", ErrInvalidRole
	}
	return r, nil
}

func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

type UserStatus string

const (
	UserStatusActive UserStatus = "active"
	UserStatusClosed UserStatus = "closed"
)

type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	Role         Role
	Status       UserStatus
	CreatedAt    time.Time
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
