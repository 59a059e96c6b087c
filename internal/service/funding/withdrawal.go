package funding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/campus-wallet/internal/domain"
	"github.com/josh-kwaku/campus-wallet/internal/gateway"
	"github.com/josh-kwaku/campus-wallet/internal/logging"
	"github.com/josh-kwaku/campus-wallet/internal/service/ledger"
)

type WithdrawalRequest struct {
	UserID        uuid.UUID
	Amount        decimal.Decimal
	BankCode      string
	AccountNumber string
	Narration     string
}

// InitiateWithdrawal reserves the amount under a pending withdrawal. The payout is
// submitted when the user authorizes it. A balance that does not cover the amount is
// recorded as a failed withdrawal, returned with domain.ErrInsufficientFunds.
func (s *Service) InitiateWithdrawal(ctx context.Context, req WithdrawalRequest) (*domain.Transaction, error) {
	if err := domain.ValidateAmount(req.Amount); err != nil {
		return nil, fmt.Errorf("InitiateWithdrawal: %w", err)
	}
	bank := strings.TrimSpace(req.BankCode)
	account := strings.TrimSpace(req.AccountNumber)
	if bank == "" || account == "" {
		return nil, fmt.Errorf("InitiateWithdrawal: bank details required: %w", domain.ErrInvalidRequest)
	}

	description := req.Narration
	if description == "" {
		description = "wallet withdrawal"
	}

	create := ledger.CreateRequest{
		SenderID:      req.UserID,
		Amount:        req.Amount,
		Type:          domain.TransactionTypeWithdraw,
		Description:   description,
		PayoutBank:    &bank,
		PayoutAccount: &account,
		Actor:         ledger.UserActor(req.UserID),
	}
	txn, err := s.ledger.Reserve(ctx, create, nil)
	if errors.Is(err, domain.ErrInsufficientFunds) {
		failed, ferr := s.ledger.RecordFailed(ctx, create, domain.ErrInsufficientFunds.Error())
		if ferr != nil {
			return nil, fmt.Errorf("InitiateWithdrawal: %w", errors.Join(err, ferr))
		}
		return failed, fmt.Errorf("InitiateWithdrawal: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("InitiateWithdrawal: %w", err)
	}

	logging.FromContext(ctx).Info("withdrawal initiated",
		"reference", txn.Reference,
		"user_id", req.UserID,
		"amount", txn.Amount.StringFixed(domain.AmountScale),
	)
	return txn, nil
}

// SubmitPayout sends an authorized withdrawal to the gateway. A rejected payout fails
// the transaction and refunds the reservation. An unreachable gateway releases the
// claim and marks the withdrawal unconfirmed, so a later authorization may submit it
// again. That resubmission first asks the gateway whether the earlier request landed
// and only charges again when the gateway has no record of it.
func (s *Service) SubmitPayout(ctx context.Context, txn *domain.Transaction) (*domain.Transaction, error) {
	log := logging.FromContext(ctx)

	if txn.Type != domain.TransactionTypeWithdraw {
		return nil, fmt.Errorf("SubmitPayout: %w", domain.ErrInvalidTransactionType)
	}
	if txn.PayoutBank == nil || txn.PayoutAccount == nil {
		return nil, fmt.Errorf("SubmitPayout: missing bank details: %w", domain.ErrInvalidRequest)
	}

	user, err := s.users.GetByID(ctx, txn.SenderID)
	if err != nil {
		return nil, fmt.Errorf("SubmitPayout: %w", err)
	}

	claimed, err := s.ledger.ClaimPayout(ctx, txn, domain.ChargeKindBankTransfer)
	if err != nil {
		return nil, fmt.Errorf("SubmitPayout: %w", err)
	}

	if claimed.Status == domain.TransactionStatusUnconfirmed {
		resolved, done, err := s.reconcilePayout(ctx, claimed)
		if done || err != nil {
			return resolved, err
		}
	}

	res, err := s.gateway.Charge(ctx, gateway.ChargeRequest{
		Kind:          domain.ChargeKindBankTransfer,
		Reference:     claimed.Reference,
		Amount:        claimed.Amount,
		Email:         user.Email,
		Phone:         user.Phone,
		FullName:      user.Name,
		BankCode:      *claimed.PayoutBank,
		AccountNumber: *claimed.PayoutAccount,
		Narration:     claimed.Description,
	})
	switch {
	case errors.Is(err, domain.ErrGatewayUnavailable):
		log.Warn("payout not confirmed, gateway unavailable", "reference", claimed.Reference, "error", err)
		return s.releasePayout(ctx, claimed, err)
	case err != nil:
		failed, ferr := s.ledger.MarkFailed(ctx, claimed, err.Error(), true, actorGateway)
		if ferr != nil {
			return nil, fmt.Errorf("SubmitPayout: %w", errors.Join(err, ferr))
		}
		return failed, fmt.Errorf("SubmitPayout: %w", err)
	}

	if res.Status == gateway.StatusSuccess {
		settled, err := s.ledger.Settle(ctx, claimed, nil, decimal.Zero, actorGateway)
		if err != nil {
			return nil, fmt.Errorf("SubmitPayout: %w", err)
		}
		log.Info("payout completed", "reference", settled.Reference)
		return settled, nil
	}

	charged, err := s.ledger.RecordCharge(ctx, claimed, domain.TransactionStatus(res.Status), claimed.Fee, actorGateway)
	if err != nil {
		return nil, fmt.Errorf("SubmitPayout: %w", err)
	}
	log.Info("payout submitted", "reference", charged.Reference, "status", charged.Status)
	return charged, nil
}

// reconcilePayout asks the gateway about an unconfirmed payout before it is charged
// again. done reports whether the gateway's answer settled the outcome.
func (s *Service) reconcilePayout(ctx context.Context, claimed *domain.Transaction) (*domain.Transaction, bool, error) {
	log := logging.FromContext(ctx).With("reference", claimed.Reference)

	res, err := s.gateway.Verify(ctx, claimed.Reference)
	switch {
	case errors.Is(err, domain.ErrGatewayNotFound):
		log.Info("unconfirmed payout unknown to gateway, resubmitting")
		return nil, false, nil
	case err != nil:
		released, rerr := s.releasePayout(ctx, claimed, err)
		return released, true, rerr
	}

	switch res.Status {
	case gateway.StatusSuccess:
		if !res.Amount.Equal(claimed.Amount) {
			log.Error("gateway amount mismatch",
				"expected", claimed.Amount.StringFixed(domain.AmountScale),
				"reported", res.Amount.StringFixed(domain.AmountScale),
			)
			released, rerr := s.releasePayout(ctx, claimed, domain.ErrAmountMismatch)
			return released, true, rerr
		}
		settled, err := s.ledger.Settle(ctx, claimed, nil, decimal.Zero, actorGateway)
		if err != nil {
			return nil, true, fmt.Errorf("SubmitPayout: %w", err)
		}
		log.Info("unconfirmed payout had completed")
		return settled, true, nil

	case gateway.StatusPending:
		charged, err := s.ledger.RecordCharge(ctx, claimed, domain.TransactionStatusPending, claimed.Fee, actorGateway)
		if err != nil {
			return nil, true, fmt.Errorf("SubmitPayout: %w", err)
		}
		log.Info("unconfirmed payout is pending at gateway")
		return charged, true, nil

	case gateway.StatusFailed:
		reason := "payout failed at gateway"
		failed, err := s.ledger.MarkFailed(ctx, claimed, reason, true, actorGateway)
		if err != nil {
			return nil, true, fmt.Errorf("SubmitPayout: %w", err)
		}
		return failed, true, fmt.Errorf("SubmitPayout: %s: %w", reason, domain.ErrGatewayRejected)

	default:
		released, rerr := s.releasePayout(ctx, claimed,
			fmt.Errorf("status %q: %w", res.Status, domain.ErrGatewayRejected))
		return released, true, rerr
	}
}

// releasePayout clears the payout claim after an inconclusive gateway exchange and
// returns cause wrapped for the caller.
func (s *Service) releasePayout(ctx context.Context, claimed *domain.Transaction, cause error) (*domain.Transaction, error) {
	released, err := s.ledger.ReleasePayout(ctx, claimed)
	if err != nil {
		logging.FromContext(ctx).Error("failed to release payout claim", "reference", claimed.Reference, "error", err)
		return claimed, fmt.Errorf("SubmitPayout: %w", errors.Join(cause, err))
	}
	return released, fmt.Errorf("SubmitPayout: %w", cause)
}
