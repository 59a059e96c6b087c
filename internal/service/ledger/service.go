// Package ledger records transactions and drives their lifecycle: creation under a
// unique reference, exactly-once settlement, failure with optional refund and status
// updates reported by the payment gateway.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/campus-wallet/internal/domain"
	"github.com/josh-kwaku/campus-wallet/internal/events"
	"github.com/josh-kwaku/campus-wallet/internal/logging"
	"github.com/josh-kwaku/campus-wallet/internal/reference"
)

const PageSize = 10

type transactionRepo interface {
	Create(ctx context.Context, tx *sql.Tx, t *domain.Transaction) (bool, error)
	GetByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	MarkCompleted(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Transaction, error)
	MarkFailed(ctx context.Context, tx *sql.Tx, id uuid.UUID, reason string) (*domain.Transaction, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.TransactionStatus) (*domain.Transaction, error)
	RecordCharge(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.TransactionStatus, fee decimal.Decimal) (*domain.Transaction, error)
	ClaimPayout(ctx context.Context, id uuid.UUID, kind domain.ChargeKind) (*domain.Transaction, error)
	ReleasePayout(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	SetRecipient(ctx context.Context, id, recipientID uuid.UUID) (*domain.Transaction, error)
	ListForUser(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, int, error)
}

type eventRepo interface {
	Create(ctx context.Context, tx *sql.Tx, e *domain.TransactionEvent) error
}

type balances interface {
	Deposit(ctx context.Context, tx *sql.Tx, userID, transactionID uuid.UUID, amount decimal.Decimal) (*domain.BalanceChange, error)
	Withdraw(ctx context.Context, tx *sql.Tx, userID, transactionID uuid.UUID, amount decimal.Decimal) (*domain.BalanceChange, error)
}

// TxHook runs inside the database transaction of a reservation, before commit.
type TxHook func(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error

type Publisher interface {
	Publish(ctx context.Context, e events.Event) error
}

type Metrics interface {
	IncSettlement(txType, outcome string)
}

type Service struct {
	txns       transactionRepo
	events     eventRepo
	balances   balances
	references *reference.Allocator
	publisher  Publisher
	metrics    Metrics
	db         *sql.DB
}

func NewService(
	txns transactionRepo,
	evts eventRepo,
	bal balances,
	refs *reference.Allocator,
	publisher Publisher,
	metrics Metrics,
	db *sql.DB,
) *Service {
	return &Service{
		txns:       txns,
		events:     evts,
		balances:   bal,
		references: refs,
		publisher:  publisher,
		metrics:    metrics,
		db:         db,
	}
}

type CreateRequest struct {
	SenderID      uuid.UUID
	RecipientID   *uuid.UUID
	Amount        decimal.Decimal
	Fee           decimal.Decimal
	Type          domain.TransactionType
	Description   string
	Status        domain.TransactionStatus
	FailureReason *string
	PayoutBank    *string
	PayoutAccount *string
	Actor         string
}

// Create records a transaction in its own database transaction.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Create: begin tx: %w", err)
	}
	defer tx.Rollback()

	t, err := s.CreateTx(ctx, tx, req)
	if err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Create: commit: %w", err)
	}

	s.publish(ctx, domain.TransactionEventTypeCreated, t)
	return t, nil
}

// CreateTx records a transaction inside the caller's database transaction. No event
// is published.
func (s *Service) CreateTx(ctx context.Context, tx *sql.Tx, req CreateRequest) (*domain.Transaction, error) {
	if err := domain.ValidateAmount(req.Amount); err != nil {
		return nil, fmt.Errorf("CreateTx: %w", err)
	}
	if err := domain.ValidateFee(req.Fee); err != nil {
		return nil, fmt.Errorf("CreateTx: %w", err)
	}
	if !req.Type.IsValid() {
		return nil, fmt.Errorf("CreateTx: %w", domain.ErrInvalidTransactionType)
	}
	if req.Status == "" {
		req.Status = domain.TransactionStatusPending
	}

	now := time.Now().UTC()
	t := &domain.Transaction{
		ID:            uuid.New(),
		SenderID:      req.SenderID,
		RecipientID:   req.RecipientID,
		Amount:        req.Amount,
		Fee:           req.Fee,
		Type:          req.Type,
		Description:   req.Description,
		Status:        req.Status,
		FailureReason: req.FailureReason,
		PayoutBank:    req.PayoutBank,
		PayoutAccount: req.PayoutAccount,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	ref, err := s.references.Allocate(ctx, func(ctx context.Context, candidate string) (bool, error) {
		t.Reference = candidate
		return s.txns.Create(ctx, tx, t)
	})
	if err != nil {
		return nil, fmt.Errorf("CreateTx: %w", err)
	}
	t.Reference = ref

	if err := s.writeEvent(ctx, tx, t, domain.TransactionEventTypeCreated, req.Actor, nil); err != nil {
		return nil, fmt.Errorf("CreateTx: %w", err)
	}

	logging.FromContext(ctx).Info("transaction created",
		"reference", t.Reference,
		"transaction_id", t.ID,
		"type", t.Type,
		"status", t.Status,
		"amount", t.Amount.StringFixed(domain.AmountScale),
	)
	return t, nil
}

// Reserve records a pending transaction and debits its amount from the sender in one
// database transaction. A non-nil hook runs before commit and rolls everything back
// when it fails. domain.ErrInsufficientFunds leaves no trace.
func (s *Service) Reserve(ctx context.Context, req CreateRequest, hook TxHook) (*domain.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Reserve: begin tx: %w", err)
	}
	defer tx.Rollback()

	t, err := s.CreateTx(ctx, tx, req)
	if err != nil {
		return nil, fmt.Errorf("Reserve: %w", err)
	}

	change, err := s.balances.Withdraw(ctx, tx, t.SenderID, t.ID, t.Amount)
	if err != nil {
		return nil, fmt.Errorf("Reserve: %w", err)
	}

	if hook != nil {
		if err := hook(ctx, tx, t); err != nil {
			return nil, fmt.Errorf("Reserve: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Reserve: commit: %w", err)
	}

	s.publish(ctx, domain.TransactionEventTypeCreated, t)

	logging.FromContext(ctx).Info("funds reserved",
		"reference", t.Reference,
		"transaction_id", t.ID,
		"amount", t.Amount.StringFixed(domain.AmountScale),
		"balance_after", change.After.StringFixed(domain.AmountScale),
	)
	return t, nil
}

func (s *Service) GetByReference(ctx context.Context, ref string) (*domain.Transaction, error) {
	t, err := s.txns.GetByReference(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("GetByReference: %w", err)
	}
	return t, nil
}

// GetForUser returns the transaction only if userID is its sender or recipient.
func (s *Service) GetForUser(ctx context.Context, ref string, userID uuid.UUID) (*domain.Transaction, error) {
	t, err := s.txns.GetByReference(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("GetForUser: %w", err)
	}
	if t.SenderID != userID && (t.RecipientID == nil || *t.RecipientID != userID) {
		return nil, fmt.Errorf("GetForUser: %w", domain.ErrNotFound)
	}
	return t, nil
}

type Page struct {
	Transactions []domain.Transaction
	Page         int
	PageSize     int
	Total        int
}

// History lists a user's transactions newest first, PageSize per page. Pages start at 1.
func (s *Service) History(ctx context.Context, userID uuid.UUID, page int, query string) (*Page, error) {
	if page < 1 {
		page = 1
	}

	txns, total, err := s.txns.ListForUser(ctx, domain.TransactionFilter{
		UserID: userID,
		Query:  query,
		Limit:  PageSize,
		Offset: (page - 1) * PageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("History: %w", err)
	}
	return &Page{Transactions: txns, Page: page, PageSize: PageSize, Total: total}, nil
}

// Settle completes the transaction and credits credited to beneficiary, all in one
// database transaction. A transaction settles at most once; later calls return
// domain.ErrAlreadySettled and credit nothing. A nil beneficiary or zero credit
// only flips the completed flag.
func (s *Service) Settle(ctx context.Context, txn *domain.Transaction, beneficiary *uuid.UUID, credited decimal.Decimal, actor string) (*domain.Transaction, error) {
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Settle: begin tx: %w", err)
	}
	defer tx.Rollback()

	settled, err := s.txns.MarkCompleted(ctx, tx, txn.ID)
	if err != nil {
		outcome := "error"
		if errors.Is(err, domain.ErrAlreadySettled) {
			outcome = "already_settled"
		}
		s.metrics.IncSettlement(string(txn.Type), outcome)
		return nil, fmt.Errorf("Settle: %w", err)
	}

	if beneficiary != nil && credited.IsPositive() {
		if _, err := s.balances.Deposit(ctx, tx, *beneficiary, settled.ID, credited); err != nil {
			return nil, fmt.Errorf("Settle: credit: %w", err)
		}
	}

	payload := map[string]string{"credited": credited.StringFixed(domain.AmountScale)}
	if beneficiary != nil {
		payload["beneficiary"] = beneficiary.String()
	}
	if err := s.writeEvent(ctx, tx, settled, domain.TransactionEventTypeSettled, actor, payload); err != nil {
		return nil, fmt.Errorf("Settle: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Settle: commit: %w", err)
	}

	s.metrics.IncSettlement(string(settled.Type), "settled")
	s.publish(ctx, domain.TransactionEventTypeSettled, settled)

	log.Info("transaction settled",
		"reference", settled.Reference,
		"transaction_id", settled.ID,
		"type", settled.Type,
		"credited", credited.StringFixed(domain.AmountScale),
	)
	return settled, nil
}

// MarkFailed fails an unsettled transaction. With refund set, the amount reserved at
// initiation goes back to the sender in the same database transaction.
func (s *Service) MarkFailed(ctx context.Context, txn *domain.Transaction, reason string, refund bool, actor string) (*domain.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("MarkFailed: begin tx: %w", err)
	}
	defer tx.Rollback()

	failed, err := s.txns.MarkFailed(ctx, tx, txn.ID, reason)
	if err != nil {
		return nil, fmt.Errorf("MarkFailed: %w", err)
	}

	if err := s.writeEvent(ctx, tx, failed, domain.TransactionEventTypeFailed, actor, map[string]string{"reason": reason}); err != nil {
		return nil, fmt.Errorf("MarkFailed: %w", err)
	}

	if refund {
		if _, err := s.balances.Deposit(ctx, tx, failed.SenderID, failed.ID, failed.Amount); err != nil {
			return nil, fmt.Errorf("MarkFailed: refund: %w", err)
		}
		if err := s.writeEvent(ctx, tx, failed, domain.TransactionEventTypeRefunded, actor, nil); err != nil {
			return nil, fmt.Errorf("MarkFailed: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("MarkFailed: commit: %w", err)
	}

	s.metrics.IncSettlement(string(failed.Type), "failed")
	s.publish(ctx, domain.TransactionEventTypeFailed, failed)
	if refund {
		s.publish(ctx, domain.TransactionEventTypeRefunded, failed)
	}

	logging.FromContext(ctx).Warn("transaction failed",
		"reference", failed.Reference,
		"transaction_id", failed.ID,
		"reason", reason,
		"refunded", refund,
	)
	return failed, nil
}

// MarkPending stores a non-final status label reported for an unsettled transaction.
func (s *Service) MarkPending(ctx context.Context, txn *domain.Transaction, status domain.TransactionStatus) (*domain.Transaction, error) {
	if status == "" {
		status = domain.TransactionStatusPending
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("MarkPending: begin tx: %w", err)
	}
	defer tx.Rollback()

	updated, err := s.txns.UpdateStatus(ctx, tx, txn.ID, status)
	if err != nil {
		return nil, fmt.Errorf("MarkPending: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("MarkPending: commit: %w", err)
	}
	return updated, nil
}

// RecordCharge stores the status and fee the gateway reported when the charge was
// placed.
func (s *Service) RecordCharge(ctx context.Context, txn *domain.Transaction, status domain.TransactionStatus, fee decimal.Decimal, actor string) (*domain.Transaction, error) {
	if err := domain.ValidateFee(fee); err != nil {
		return nil, fmt.Errorf("RecordCharge: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("RecordCharge: begin tx: %w", err)
	}
	defer tx.Rollback()

	updated, err := s.txns.RecordCharge(ctx, tx, txn.ID, status, fee)
	if err != nil {
		return nil, fmt.Errorf("RecordCharge: %w", err)
	}

	payload := map[string]string{"status": string(status), "fee": fee.StringFixed(domain.AmountScale)}
	if err := s.writeEvent(ctx, tx, updated, domain.TransactionEventTypeCharged, actor, payload); err != nil {
		return nil, fmt.Errorf("RecordCharge: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("RecordCharge: commit: %w", err)
	}

	s.publish(ctx, domain.TransactionEventTypeCharged, updated)
	return updated, nil
}

func (s *Service) ClaimPayout(ctx context.Context, txn *domain.Transaction, kind domain.ChargeKind) (*domain.Transaction, error) {
	claimed, err := s.txns.ClaimPayout(ctx, txn.ID, kind)
	if err != nil {
		return nil, fmt.Errorf("ClaimPayout: %w", err)
	}
	return claimed, nil
}

// ReleasePayout reopens a claimed withdrawal whose payout request got no answer.
func (s *Service) ReleasePayout(ctx context.Context, txn *domain.Transaction) (*domain.Transaction, error) {
	released, err := s.txns.ReleasePayout(ctx, txn.ID)
	if err != nil {
		return nil, fmt.Errorf("ReleasePayout: %w", err)
	}
	return released, nil
}

// RecordFailed stores an attempt that failed before any funds moved, such as one
// the sender's balance did not cover.
func (s *Service) RecordFailed(ctx context.Context, req CreateRequest, reason string) (*domain.Transaction, error) {
	req.Status = domain.TransactionStatusFailed
	req.FailureReason = &reason

	t, err := s.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("RecordFailed: %w", err)
	}

	logging.FromContext(ctx).Warn("failed attempt recorded",
		"reference", t.Reference,
		"sender_id", t.SenderID,
		"type", t.Type,
		"reason", reason,
	)
	return t, nil
}

func (s *Service) AssignRecipient(ctx context.Context, txn *domain.Transaction, recipientID uuid.UUID) (*domain.Transaction, error) {
	updated, err := s.txns.SetRecipient(ctx, txn.ID, recipientID)
	if err != nil {
		return nil, fmt.Errorf("AssignRecipient: %w", err)
	}
	return updated, nil
}

func (s *Service) writeEvent(ctx context.Context, tx *sql.Tx, t *domain.Transaction, eventType domain.TransactionEventType, actor string, payload map[string]string) error {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("writeEvent: marshal: %w", err)
		}
		raw = b
	}
	if actor == "" {
		actor = "system"
	}

	event := &domain.TransactionEvent{
		ID:            uuid.New(),
		TransactionID: t.ID,
		Reference:     t.Reference,
		EventType:     eventType,
		Actor:         actor,
		Payload:       raw,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.events.Create(ctx, tx, event); err != nil {
		return fmt.Errorf("writeEvent: %w", err)
	}
	return nil
}

// Publishing is best effort: the transaction_events table is the source of truth.
func (s *Service) publish(ctx context.Context, eventType domain.TransactionEventType, t *domain.Transaction) {
	if err := s.publisher.Publish(ctx, events.NewEvent(eventType, t)); err != nil {
		logging.FromContext(ctx).Error("failed to publish transaction event",
			"reference", t.Reference,
			"event_type", eventType,
			"error", err,
		)
	}
}

// UserActor formats the actor recorded on events caused by a user.
func UserActor(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s", userID)
}
