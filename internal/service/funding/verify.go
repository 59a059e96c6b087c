package funding

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/campus-wallet/internal/domain"
	"github.com/josh-kwaku/campus-wallet/internal/gateway"
	"github.com/josh-kwaku/campus-wallet/internal/lock"
	"github.com/josh-kwaku/campus-wallet/internal/logging"
)

// Verify reconciles a gateway-funded transaction with the gateway. A confirmed top-up
// credits amount minus fee to the sender; a confirmed withdrawal only completes, its
// funds having left the wallet at initiation. Only a confirmed result mutates
// balances, and it does so at most once per reference.
func (s *Service) Verify(ctx context.Context, reference string) (*domain.Transaction, error) {
	log := logging.FromContext(ctx).With("reference", reference)

	txn, err := s.ledger.GetByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("Verify: %w", err)
	}
	if err := checkVerifiable(txn); err != nil {
		return txn, fmt.Errorf("Verify: %w", err)
	}

	lease, err := s.locker.Acquire(ctx, reference)
	switch {
	case errors.Is(err, lock.ErrNotAcquired):
		return nil, fmt.Errorf("Verify: %w", domain.ErrVerificationInProgress)
	case err != nil:
		// The settle guard still holds without the lock.
		log.Warn("verification lock unavailable", "error", err)
	default:
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("failed to release verification lock", "error", err)
			}
		}()
	}

	res, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		log.Warn("gateway verification failed", "error", err)
		return nil, fmt.Errorf("Verify: %w", err)
	}

	switch res.Status {
	case gateway.StatusSuccess:
		if !res.Amount.Equal(txn.Amount) {
			log.Error("gateway amount mismatch",
				"expected", txn.Amount.StringFixed(domain.AmountScale),
				"reported", res.Amount.StringFixed(domain.AmountScale),
			)
			return nil, fmt.Errorf("Verify: %w", domain.ErrAmountMismatch)
		}
		return s.settleVerified(ctx, txn, res)

	case gateway.StatusPending:
		if txn.Status == domain.TransactionStatusUnconfirmed {
			// Left unconfirmed so the next authorization reconciles before charging.
			log.Info("gateway reports unconfirmed payout pending")
			return txn, fmt.Errorf("Verify: %w", domain.ErrGatewayPending)
		}
		updated, err := s.ledger.MarkPending(ctx, txn, domain.TransactionStatusPending)
		if err != nil {
			return nil, fmt.Errorf("Verify: %w", err)
		}
		log.Info("gateway reports transaction pending")
		return updated, fmt.Errorf("Verify: %w", domain.ErrGatewayPending)

	default:
		log.Warn("gateway did not confirm transaction", "gateway_status", res.Status)
		return nil, fmt.Errorf("Verify: status %q: %w", res.Status, domain.ErrGatewayRejected)
	}
}

func (s *Service) settleVerified(ctx context.Context, txn *domain.Transaction, res *gateway.VerifyResult) (*domain.Transaction, error) {
	var settled *domain.Transaction
	var err error

	switch txn.Type {
	case domain.TransactionTypeTopup:
		fee := txn.Fee
		if fee.IsZero() && res.Fee.IsPositive() {
			fee = res.Fee
		}
		credited := txn.Amount.Sub(fee)
		if credited.IsNegative() {
			credited = decimal.Zero
		}
		settled, err = s.ledger.Settle(ctx, txn, &txn.SenderID, credited, actorGateway)
	default:
		settled, err = s.ledger.Settle(ctx, txn, nil, decimal.Zero, actorGateway)
	}
	if err != nil {
		return nil, fmt.Errorf("settleVerified: %w", err)
	}

	logging.FromContext(ctx).Info("transaction verified",
		"reference", settled.Reference,
		"type", settled.Type,
		"amount", settled.Amount.StringFixed(domain.AmountScale),
	)
	return settled, nil
}

func checkVerifiable(txn *domain.Transaction) error {
	switch {
	case txn.Completed:
		return domain.ErrAlreadySettled
	case txn.IsFailed():
		return domain.ErrTransactionNotPending
	case txn.Type != domain.TransactionTypeTopup && txn.Type != domain.TransactionTypeWithdraw:
		return domain.ErrInvalidTransactionType
	}
	return nil
}
