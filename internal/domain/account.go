package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AccountKind string

const (
	AccountKindVendor   AccountKind = "vendor"
	AccountKindCustomer AccountKind = "customer"
)

func (k AccountKind) IsValid() bool {
	return k == AccountKindVendor || k == AccountKindCustomer
}

// TagPrefix is the leading part of the human-facing account tag, e.g. VEND2412345.
func (k AccountKind) TagPrefix() string {
	if k == AccountKindVendor {
		return "VEND"
	}
	return "CUST"
}

type Account struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Kind      AccountKind
	Tag       string
	Balance   decimal.Decimal
	PINHash   *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a *Account) HasPIN() bool {
	return a.PINHash != nil && *a.PINHash != ""
}
