package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/campus-wallet/internal/domain"
	"github.com/josh-kwaku/campus-wallet/internal/logging"
	"github.com/josh-kwaku/campus-wallet/internal/service/ledger"
)

type InitiateRequest struct {
	SenderID       uuid.UUID
	RecipientPhone string
	Amount         decimal.Decimal
	Description    string
}

// Initiate reserves the sender's funds under a pending transfer. When the balance does
// not cover the amount a failed transfer is recorded for audit and returned together
// with domain.ErrInsufficientFunds.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (*domain.Transaction, error) {
	log := logging.FromContext(ctx)

	if err := domain.ValidateAmount(req.Amount); err != nil {
		s.metrics.IncTransfer("invalid")
		return nil, fmt.Errorf("Initiate: %w", err)
	}

	recipient, err := s.resolveRecipient(ctx, req.RecipientPhone)
	if err != nil {
		s.metrics.IncTransfer("invalid")
		return nil, fmt.Errorf("Initiate: %w", err)
	}
	if recipient.ID == req.SenderID {
		s.metrics.IncTransfer("invalid")
		return nil, fmt.Errorf("Initiate: %w", domain.ErrSelfTransfer)
	}

	create := ledger.CreateRequest{
		SenderID:    req.SenderID,
		RecipientID: &recipient.ID,
		Amount:      req.Amount,
		Type:        domain.TransactionTypeTransfer,
		Description: req.Description,
		Actor:       ledger.UserActor(req.SenderID),
	}

	txn, err := s.ledger.Reserve(ctx, create, nil)
	if errors.Is(err, domain.ErrInsufficientFunds) {
		s.metrics.IncTransfer("insufficient_funds")
		failed, ferr := s.ledger.RecordFailed(ctx, create, domain.ErrInsufficientFunds.Error())
		if ferr != nil {
			return nil, fmt.Errorf("Initiate: %w", errors.Join(err, ferr))
		}
		return failed, fmt.Errorf("Initiate: %w", err)
	}
	if err != nil {
		s.metrics.IncTransfer("error")
		return nil, fmt.Errorf("Initiate: %w", err)
	}

	s.metrics.IncTransfer("initiated")
	log.Info("transfer initiated",
		"reference", txn.Reference,
		"sender_id", req.SenderID,
		"recipient_id", recipient.ID,
		"amount", txn.Amount.StringFixed(domain.AmountScale),
	)
	return txn, nil
}

type AuthorizeRequest struct {
	Reference string
	CallerID  uuid.UUID
	PIN       string
}

// Authorize confirms a pending transaction on behalf of its sender. Transfers settle
// to the recipient; withdrawals are paid out through the gateway.
func (s *Service) Authorize(ctx context.Context, req AuthorizeRequest) (*domain.Transaction, error) {
	log := logging.FromContext(ctx)

	txn, err := s.ledger.GetByReference(ctx, req.Reference)
	if err != nil {
		return nil, fmt.Errorf("Authorize: %w", err)
	}
	if txn.SenderID != req.CallerID {
		return nil, fmt.Errorf("Authorize: %w", domain.ErrNotTransactionSender)
	}
	if err := s.pins.VerifyPIN(ctx, req.CallerID, req.PIN); err != nil {
		return nil, fmt.Errorf("Authorize: %w", err)
	}
	if txn.Completed {
		return nil, fmt.Errorf("Authorize: %w", domain.ErrAlreadyAuthorized)
	}
	if txn.IsFailed() {
		return nil, fmt.Errorf("Authorize: %w", domain.ErrTransactionNotPending)
	}

	switch txn.Type {
	case domain.TransactionTypeTransfer:
		if txn.RecipientID == nil {
			return nil, fmt.Errorf("Authorize: payment code not redeemed: %w", domain.ErrRecipientNotFound)
		}
		settled, err := s.ledger.Settle(ctx, txn, txn.RecipientID, txn.Amount, ledger.UserActor(req.CallerID))
		if errors.Is(err, domain.ErrAlreadySettled) {
			return nil, fmt.Errorf("Authorize: %w", domain.ErrAlreadyAuthorized)
		}
		if err != nil {
			return nil, fmt.Errorf("Authorize: %w", err)
		}
		log.Info("transfer authorized",
			"reference", settled.Reference,
			"recipient_id", *settled.RecipientID,
			"amount", settled.Amount.StringFixed(domain.AmountScale),
		)
		return settled, nil

	case domain.TransactionTypeWithdraw:
		submitted, err := s.payouts.SubmitPayout(ctx, txn)
		if err != nil {
			return submitted, fmt.Errorf("Authorize: %w", err)
		}
		log.Info("withdrawal authorized", "reference", submitted.Reference, "status", submitted.Status)
		return submitted, nil

	default:
		return nil, fmt.Errorf("Authorize: %s: %w", txn.Type, domain.ErrInvalidTransactionType)
	}
}

func (s *Service) resolveRecipient(ctx context.Context, phone string) (*domain.User, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, fmt.Errorf("resolveRecipient: %w", domain.ErrRecipientNotFound)
	}
	u, err := s.users.GetByPhone(ctx, phone)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("resolveRecipient: %w", domain.ErrRecipientNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("resolveRecipient: %w", err)
	}
	return u, nil
}
