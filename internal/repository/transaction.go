package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/campus-wallet/internal/domain"
)

const transactionColumns = `id, reference, sender_id, recipient_id, amount, fee, type,
	description, status, completed, failure_reason, charge_kind,
	payout_bank, payout_account, created_at, updated_at, completed_at`

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts the transaction unless its reference is already taken. A taken
// reference returns false without aborting the surrounding database transaction.
func (r *TransactionRepository) Create(ctx context.Context, tx *sql.Tx, t *domain.Transaction) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (
			id, reference, sender_id, recipient_id, amount, fee, type,
			description, status, completed, failure_reason, charge_kind,
			payout_bank, payout_account, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT ON CONSTRAINT transactions_reference_key DO NOTHING`,
		t.ID, t.Reference, t.SenderID, t.RecipientID, t.Amount, t.Fee, t.Type,
		t.Description, t.Status, t.Completed, t.FailureReason, t.ChargeKind,
		t.PayoutBank, t.PayoutAccount, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("Create: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("Create: rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *TransactionRepository) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE reference = $1`, reference,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByReference: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByReference: %w", err)
	}
	return t, nil
}

// MarkCompleted flips completed from false to true. It is the single guard that
// makes settlement happen at most once per transaction. Failed transactions never
// complete.
func (r *TransactionRepository) MarkCompleted(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Transaction, error) {
	t, err := scanTransaction(tx.QueryRowContext(ctx,
		`UPDATE transactions
		SET completed = true, status = $2, completed_at = now(), updated_at = now()
		WHERE id = $1 AND completed = false AND status <> $3
		RETURNING `+transactionColumns,
		id, domain.TransactionStatusSuccess, domain.TransactionStatusFailed,
	))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("MarkCompleted: %w", err)
	}

	var completed bool
	err = tx.QueryRowContext(ctx, `SELECT completed FROM transactions WHERE id = $1`, id).Scan(&completed)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("MarkCompleted: %w", domain.ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("MarkCompleted: %w", err)
	case completed:
		return nil, fmt.Errorf("MarkCompleted: %w", domain.ErrAlreadySettled)
	default:
		return nil, fmt.Errorf("MarkCompleted: %w", domain.ErrTransactionNotPending)
	}
}

func (r *TransactionRepository) MarkFailed(ctx context.Context, tx *sql.Tx, id uuid.UUID, reason string) (*domain.Transaction, error) {
	t, err := scanTransaction(tx.QueryRowContext(ctx,
		`UPDATE transactions
		SET status = $2, failure_reason = $3, updated_at = now()
		WHERE id = $1 AND completed = false AND status <> $2
		RETURNING `+transactionColumns,
		id, domain.TransactionStatusFailed, reason,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("MarkFailed: %w", domain.ErrTransactionNotPending)
		}
		return nil, fmt.Errorf("MarkFailed: %w", err)
	}
	return t, nil
}

// UpdateStatus sets the status label of an unsettled transaction.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.TransactionStatus) (*domain.Transaction, error) {
	t, err := scanTransaction(tx.QueryRowContext(ctx,
		`UPDATE transactions SET status = $2, updated_at = now()
		WHERE id = $1 AND completed = false
		RETURNING `+transactionColumns,
		id, status,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("UpdateStatus: %w", domain.ErrAlreadySettled)
		}
		return nil, fmt.Errorf("UpdateStatus: %w", err)
	}
	return t, nil
}

// RecordCharge stores the status and fee a gateway reported for a charge.
func (r *TransactionRepository) RecordCharge(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.TransactionStatus, fee decimal.Decimal) (*domain.Transaction, error) {
	t, err := scanTransaction(tx.QueryRowContext(ctx,
		`UPDATE transactions SET status = $2, fee = $3, updated_at = now()
		WHERE id = $1 AND completed = false
		RETURNING `+transactionColumns,
		id, status, fee,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("RecordCharge: %w", domain.ErrAlreadySettled)
		}
		return nil, fmt.Errorf("RecordCharge: %w", err)
	}
	return t, nil
}

// ClaimPayout marks a pending withdrawal as submitted to the gateway. Only one
// caller can claim a given transaction.
func (r *TransactionRepository) ClaimPayout(ctx context.Context, id uuid.UUID, kind domain.ChargeKind) (*domain.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRowContext(ctx,
		`UPDATE transactions SET charge_kind = $2, updated_at = now()
		WHERE id = $1 AND charge_kind IS NULL AND completed = false AND status <> $3
		RETURNING `+transactionColumns,
		id, kind, domain.TransactionStatusFailed,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("ClaimPayout: %w", domain.ErrAlreadyAuthorized)
		}
		return nil, fmt.Errorf("ClaimPayout: %w", err)
	}
	return t, nil
}

// ReleasePayout undoes a claim whose gateway call got no answer, so the withdrawal
// can be submitted again. The status records that the earlier request may have
// reached the gateway.
func (r *TransactionRepository) ReleasePayout(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRowContext(ctx,
		`UPDATE transactions SET charge_kind = NULL, status = $2, updated_at = now()
		WHERE id = $1 AND charge_kind IS NOT NULL AND completed = false AND status <> $3
		RETURNING `+transactionColumns,
		id, domain.TransactionStatusUnconfirmed, domain.TransactionStatusFailed,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("ReleasePayout: %w", domain.ErrTransactionNotPending)
		}
		return nil, fmt.Errorf("ReleasePayout: %w", err)
	}
	return t, nil
}

// SetRecipient assigns the recipient of an open payment code transaction.
func (r *TransactionRepository) SetRecipient(ctx context.Context, id, recipientID uuid.UUID) (*domain.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRowContext(ctx,
		`UPDATE transactions SET recipient_id = $2, updated_at = now()
		WHERE id = $1 AND recipient_id IS NULL AND completed = false AND status = $3
		RETURNING `+transactionColumns,
		id, recipientID, domain.TransactionStatusPending,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("SetRecipient: %w", domain.ErrPaymentCodeRedeemed)
		}
		return nil, fmt.Errorf("SetRecipient: %w", err)
	}
	return t, nil
}

// ListForUser returns the transactions a user sent or received, newest first,
// optionally filtered by a case-insensitive match on reference, type or status.
func (r *TransactionRepository) ListForUser(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, int, error) {
	const where = `WHERE (sender_id = $1 OR recipient_id = $1)
		AND ($2::text = '' OR reference ILIKE '%' || $2::text || '%'
			OR type ILIKE '%' || $2::text || '%'
			OR status ILIKE '%' || $2::text || '%')`

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions `+where, f.UserID, f.Query,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListForUser: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions `+where+`
		ORDER BY created_at DESC, id LIMIT $3 OFFSET $4`,
		f.UserID, f.Query, f.Limit, f.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListForUser: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListForUser: scan: %w", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ListForUser: rows: %w", err)
	}
	return txns, total, nil
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var t domain.Transaction
	err := s.Scan(
		&t.ID, &t.Reference, &t.SenderID, &t.RecipientID, &t.Amount, &t.Fee, &t.Type,
		&t.Description, &t.Status, &t.Completed, &t.FailureReason, &t.ChargeKind,
		&t.PayoutBank, &t.PayoutAccount, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
