package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeTransfer TransactionType = "transfer"
	TransactionTypeTopup    TransactionType = "topup"
	TransactionTypeWithdraw TransactionType = "withdraw"
	TransactionTypeOther    TransactionType = "other"
)

func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeTransfer, TransactionTypeTopup, TransactionTypeWithdraw, TransactionTypeOther:
		return true
	}
	return false
}

// TransactionStatus is a free-form label. Gateways report their own labels which are
// stored verbatim; the constants below are the ones the wallet itself writes.
type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "pending"
	TransactionStatusSuccess TransactionStatus = "success"
	TransactionStatusFailed  TransactionStatus = "failed"

	// TransactionStatusUnconfirmed marks a withdrawal whose payout request got no
	// answer from the gateway. It may or may not have reached it.
	TransactionStatusUnconfirmed TransactionStatus = "unconfirmed"
)

type ChargeKind string

const (
	ChargeKindUSSD         ChargeKind = "ussd"
	ChargeKindBankTransfer ChargeKind = "bank_transfer"
	ChargeKindDirectDebit  ChargeKind = "direct_debit"
)

func (k ChargeKind) IsValid() bool {
	switch k {
	case ChargeKindUSSD, ChargeKindBankTransfer, ChargeKindDirectDebit:
		return true
	}
	return false
}

type Transaction struct {
	ID            uuid.UUID
	Reference     string
	SenderID      uuid.UUID
	RecipientID   *uuid.UUID
	Amount        decimal.Decimal
	Fee           decimal.Decimal
	Type          TransactionType
	Description   string
	Status        TransactionStatus
	Completed     bool
	FailureReason *string
	ChargeKind    *ChargeKind
	PayoutBank    *string
	PayoutAccount *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

func (t *Transaction) IsFailed() bool {
	return t.Status == TransactionStatusFailed
}

// NetAmount is the amount credited on settlement of a gateway-funded transaction.
func (t *Transaction) NetAmount() decimal.Decimal {
	return t.Amount.Sub(t.Fee)
}

type TransactionFilter struct {
	UserID uuid.UUID
	Query  string
	Limit  int
	Offset int
}
