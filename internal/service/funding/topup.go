package funding

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/campus-wallet/internal/domain"
	"github.com/josh-kwaku/campus-wallet/internal/gateway"
	"github.com/josh-kwaku/campus-wallet/internal/logging"
	"github.com/josh-kwaku/campus-wallet/internal/service/ledger"
)

type TopupRequest struct {
	UserID        uuid.UUID
	Kind          domain.ChargeKind
	Amount        decimal.Decimal
	BankCode      string
	AccountNumber string
}

type TopupResult struct {
	Transaction  *domain.Transaction
	PaymentCode  string
	Instructions *gateway.Instructions
}

// Topup records a pending top-up and asks the gateway to collect it. The wallet is
// credited later by Verify. When the gateway is unreachable the transaction stays
// pending and is returned with domain.ErrGatewayUnavailable.
func (s *Service) Topup(ctx context.Context, req TopupRequest) (*TopupResult, error) {
	log := logging.FromContext(ctx)

	if !req.Kind.IsValid() {
		return nil, fmt.Errorf("Topup: %w", domain.ErrInvalidChargeKind)
	}
	if err := domain.ValidateAmount(req.Amount); err != nil {
		return nil, fmt.Errorf("Topup: %w", err)
	}
	if req.Kind == domain.ChargeKindDirectDebit && (req.BankCode == "" || req.AccountNumber == "") {
		return nil, fmt.Errorf("Topup: direct debit needs bank details: %w", domain.ErrInvalidRequest)
	}

	user, err := s.users.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("Topup: %w", err)
	}

	txn, err := s.ledger.Create(ctx, ledger.CreateRequest{
		SenderID:    user.ID,
		Amount:      req.Amount,
		Type:        domain.TransactionTypeTopup,
		Description: fmt.Sprintf("wallet top-up via %s", req.Kind),
		Actor:       ledger.UserActor(user.ID),
	})
	if err != nil {
		return nil, fmt.Errorf("Topup: %w", err)
	}

	res, err := s.gateway.Charge(ctx, gateway.ChargeRequest{
		Kind:          req.Kind,
		Reference:     txn.Reference,
		Amount:        txn.Amount,
		Email:         user.Email,
		Phone:         user.Phone,
		FullName:      user.Name,
		BankCode:      req.BankCode,
		AccountNumber: req.AccountNumber,
		Narration:     txn.Description,
	})
	switch {
	case errors.Is(err, domain.ErrGatewayUnavailable):
		log.Warn("top-up charge not placed, gateway unavailable", "reference", txn.Reference, "error", err)
		if pending, perr := s.ledger.MarkPending(ctx, txn, domain.TransactionStatusPending); perr == nil {
			txn = pending
		} else {
			log.Warn("failed to mark top-up pending", "reference", txn.Reference, "error", perr)
		}
		return &TopupResult{Transaction: txn}, fmt.Errorf("Topup: %w", err)
	case err != nil:
		failed, ferr := s.ledger.MarkFailed(ctx, txn, err.Error(), false, actorGateway)
		if ferr != nil {
			return nil, fmt.Errorf("Topup: %w", errors.Join(err, ferr))
		}
		return &TopupResult{Transaction: failed}, fmt.Errorf("Topup: %w", err)
	}

	charged, err := s.ledger.RecordCharge(ctx, txn, domain.TransactionStatus(res.Status), res.Fee, actorGateway)
	if err != nil {
		return nil, fmt.Errorf("Topup: %w", err)
	}

	log.Info("top-up charge placed",
		"reference", charged.Reference,
		"kind", req.Kind,
		"amount", charged.Amount.StringFixed(domain.AmountScale),
		"fee", charged.Fee.StringFixed(domain.AmountScale),
		"status", charged.Status,
	)
	return &TopupResult{
		Transaction:  charged,
		PaymentCode:  res.PaymentCode,
		Instructions: res.Instructions,
	}, nil
}
