// Package funding moves money between wallets and the external payment gateway:
// top-ups charge the user through the gateway, withdrawals pay out to a bank account
// and Verify reconciles both with the gateway's view, crediting exactly once.
package funding

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/campus-wallet/internal/domain"
	"github.com/josh-kwaku/campus-wallet/internal/gateway"
	"github.com/josh-kwaku/campus-wallet/internal/lock"
	"github.com/josh-kwaku/campus-wallet/internal/service/ledger"
)

const actorGateway = "gateway"

type Gateway interface {
	Charge(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResult, error)
	Verify(ctx context.Context, reference string) (*gateway.VerifyResult, error)
}

type Locker interface {
	Acquire(ctx context.Context, name string) (*lock.Lease, error)
}

type userRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type ledgerService interface {
	Create(ctx context.Context, req ledger.CreateRequest) (*domain.Transaction, error)
	Reserve(ctx context.Context, req ledger.CreateRequest, hook ledger.TxHook) (*domain.Transaction, error)
	RecordFailed(ctx context.Context, req ledger.CreateRequest, reason string) (*domain.Transaction, error)
	GetByReference(ctx context.Context, ref string) (*domain.Transaction, error)
	Settle(ctx context.Context, txn *domain.Transaction, beneficiary *uuid.UUID, credited decimal.Decimal, actor string) (*domain.Transaction, error)
	MarkFailed(ctx context.Context, txn *domain.Transaction, reason string, refund bool, actor string) (*domain.Transaction, error)
	MarkPending(ctx context.Context, txn *domain.Transaction, status domain.TransactionStatus) (*domain.Transaction, error)
	RecordCharge(ctx context.Context, txn *domain.Transaction, status domain.TransactionStatus, fee decimal.Decimal, actor string) (*domain.Transaction, error)
	ClaimPayout(ctx context.Context, txn *domain.Transaction, kind domain.ChargeKind) (*domain.Transaction, error)
	ReleasePayout(ctx context.Context, txn *domain.Transaction) (*domain.Transaction, error)
}

type Service struct {
	gateway Gateway
	locker  Locker
	users   userRepo
	ledger  ledgerService
}

func NewService(gw Gateway, locker Locker, users userRepo, ledgerSvc ledgerService) *Service {
	return &Service{
		gateway: gw,
		locker:  locker,
		users:   users,
		ledger:  ledgerSvc,
	}
}
