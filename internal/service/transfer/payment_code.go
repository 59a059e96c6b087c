package transfer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/campus-wallet/internal/domain"
	"github.com/josh-kwaku/campus-wallet/internal/logging"
	"github.com/josh-kwaku/campus-wallet/internal/service/ledger"
)

type PaymentCodeRequest struct {
	UserID      uuid.UUID
	Amount      decimal.Decimal
	Description string
}

type PaymentCodeResult struct {
	Transaction *domain.Transaction
	Code        *domain.PaymentCode
}

// GeneratePaymentCode reserves the payer's funds under a transfer without a recipient
// and stores a QR image of its reference. Any failure, encoding included, releases
// the reservation. A balance that does not cover the amount is recorded as a failed
// transfer, returned without a code together with domain.ErrInsufficientFunds.
func (s *Service) GeneratePaymentCode(ctx context.Context, req PaymentCodeRequest) (*PaymentCodeResult, error) {
	if err := domain.ValidateAmount(req.Amount); err != nil {
		return nil, fmt.Errorf("GeneratePaymentCode: %w", err)
	}

	create := ledger.CreateRequest{
		SenderID:    req.UserID,
		Amount:      req.Amount,
		Type:        domain.TransactionTypeTransfer,
		Description: req.Description,
		Actor:       ledger.UserActor(req.UserID),
	}

	var code *domain.PaymentCode
	txn, err := s.ledger.Reserve(ctx, create, func(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error {
		img, err := s.encoder.Encode(t.Reference)
		if err != nil {
			return fmt.Errorf("encode: %w", err)
		}
		code = &domain.PaymentCode{
			ID:            uuid.New(),
			UserID:        req.UserID,
			TransactionID: t.ID,
			Reference:     t.Reference,
			Image:         img,
			CreatedAt:     time.Now().UTC(),
		}
		return s.codes.Create(ctx, tx, code)
	})
	if errors.Is(err, domain.ErrInsufficientFunds) {
		failed, ferr := s.ledger.RecordFailed(ctx, create, domain.ErrInsufficientFunds.Error())
		if ferr != nil {
			return nil, fmt.Errorf("GeneratePaymentCode: %w", errors.Join(err, ferr))
		}
		return &PaymentCodeResult{Transaction: failed}, fmt.Errorf("GeneratePaymentCode: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("GeneratePaymentCode: %w", err)
	}

	logging.FromContext(ctx).Info("payment code generated",
		"reference", txn.Reference,
		"user_id", req.UserID,
		"amount", txn.Amount.StringFixed(domain.AmountScale),
	)
	return &PaymentCodeResult{Transaction: txn, Code: code}, nil
}

// RedeemPaymentCode attaches the scanning vendor as the recipient of the code's
// transfer. The payer then authorizes it like any other transfer.
func (s *Service) RedeemPaymentCode(ctx context.Context, reference string, vendorID uuid.UUID) (*domain.Transaction, error) {
	vendor, err := s.users.GetByID(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("RedeemPaymentCode: %w", err)
	}
	if !vendor.IsVendor {
		return nil, fmt.Errorf("RedeemPaymentCode: only vendors redeem codes: %w", domain.ErrInvalidRole)
	}

	if _, err := s.codes.GetByReference(ctx, reference); err != nil {
		return nil, fmt.Errorf("RedeemPaymentCode: %w", err)
	}
	txn, err := s.ledger.GetByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("RedeemPaymentCode: %w", err)
	}
	if txn.SenderID == vendorID {
		return nil, fmt.Errorf("RedeemPaymentCode: %w", domain.ErrSelfTransfer)
	}

	updated, err := s.ledger.AssignRecipient(ctx, txn, vendorID)
	if err != nil {
		return nil, fmt.Errorf("RedeemPaymentCode: %w", err)
	}

	logging.FromContext(ctx).Info("payment code redeemed", "reference", reference, "vendor_id", vendorID)
	return updated, nil
}

func (s *Service) GetPaymentCode(ctx context.Context, reference string) (*domain.PaymentCode, error) {
	code, err := s.codes.GetByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("GetPaymentCode: %w", err)
	}
	return code, nil
}
