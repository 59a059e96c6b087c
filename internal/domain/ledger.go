package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EntryType string

const (
	EntryTypeDebit  EntryType = "debit"
	EntryTypeCredit EntryType = "credit"
)

// BalanceEntry records a single balance mutation of an account together with the
// transaction that caused it.
type BalanceEntry struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	AccountID     uuid.UUID
	EntryType     EntryType
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	CreatedAt     time.Time
}

// BalanceChange is the outcome of an atomic balance mutation.
type BalanceChange struct {
	AccountID uuid.UUID
	Before    decimal.Decimal
	After     decimal.Decimal
}
