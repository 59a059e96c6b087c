package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID
	Phone        string
	Email        string
	Name         string
	PasswordHash string
	IsVendor     bool
	IsCustomer   bool
	CreatedAt    time.Time
}

// AccountKind resolves which wallet variant the user owns from the role flags.
func (u *User) AccountKind() (AccountKind, error) {
	switch {
	case u.IsVendor && u.IsCustomer:
		return "", fmt.Errorf("AccountKind: user %s holds both roles: %w", u.ID, ErrInvalidRole)
	case u.IsVendor:
		return AccountKindVendor, nil
	case u.IsCustomer:
		return AccountKindCustomer, nil
	default:
		return "", fmt.Errorf("AccountKind: user %s has no role: %w", u.ID, ErrInvalidRole)
	}
}
