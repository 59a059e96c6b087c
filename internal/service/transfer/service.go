// Package transfer moves money between wallets in two phases: initiate reserves the
// sender's funds and authorize settles them to the recipient. Payment codes are
// transfers whose recipient is attached later by the vendor scanning the code.
package transfer

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/campus-wallet/internal/domain"
	"github.com/josh-kwaku/campus-wallet/internal/service/ledger"
)

type userRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
}

type pinVerifier interface {
	VerifyPIN(ctx context.Context, userID uuid.UUID, pin string) error
}

type ledgerService interface {
	RecordFailed(ctx context.Context, req ledger.CreateRequest, reason string) (*domain.Transaction, error)
	Reserve(ctx context.Context, req ledger.CreateRequest, hook ledger.TxHook) (*domain.Transaction, error)
	GetByReference(ctx context.Context, ref string) (*domain.Transaction, error)
	Settle(ctx context.Context, txn *domain.Transaction, beneficiary *uuid.UUID, credited decimal.Decimal, actor string) (*domain.Transaction, error)
	AssignRecipient(ctx context.Context, txn *domain.Transaction, recipientID uuid.UUID) (*domain.Transaction, error)
}

type paymentCodeRepo interface {
	Create(ctx context.Context, tx *sql.Tx, pc *domain.PaymentCode) error
	GetByReference(ctx context.Context, reference string) (*domain.PaymentCode, error)
}

// Encoder renders a payment code reference as an image.
type Encoder interface {
	Encode(data string) ([]byte, error)
}

// PayoutSubmitter sends an authorized withdrawal to the payment gateway.
type PayoutSubmitter interface {
	SubmitPayout(ctx context.Context, txn *domain.Transaction) (*domain.Transaction, error)
}

type Metrics interface {
	IncTransfer(outcome string)
}

type Service struct {
	users   userRepo
	pins    pinVerifier
	ledger  ledgerService
	codes   paymentCodeRepo
	encoder Encoder
	payouts PayoutSubmitter
	metrics Metrics
}

func NewService(
	users userRepo,
	pins pinVerifier,
	ledgerSvc ledgerService,
	codes paymentCodeRepo,
	encoder Encoder,
	payouts PayoutSubmitter,
	metrics Metrics,
) *Service {
	return &Service{
		users:   users,
		pins:    pins,
		ledger:  ledgerSvc,
		codes:   codes,
		encoder: encoder,
		payouts: payouts,
		metrics: metrics,
	}
}
