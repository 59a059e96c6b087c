package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/campus-wallet/internal/domain"
)

const balanceEntryColumns = `id, transaction_id, account_id, entry_type, amount,
	balance_before, balance_after, created_at`

type BalanceEntryRepository struct {
	db *sql.DB
}

func NewBalanceEntryRepository(db *sql.DB) *BalanceEntryRepository {
	return &BalanceEntryRepository{db: db}
}

func (r *BalanceEntryRepository) Create(ctx context.Context, tx *sql.Tx, e *domain.BalanceEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO balance_entries (
			id, transaction_id, account_id, entry_type, amount,
			balance_before, balance_after, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.TransactionID, e.AccountID, e.EntryType, e.Amount,
		e.BalanceBefore, e.BalanceAfter, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *BalanceEntryRepository) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]domain.BalanceEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+balanceEntryColumns+` FROM balance_entries
		WHERE transaction_id = $1 ORDER BY created_at`, transactionID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByTransactionID: %w", err)
	}
	defer rows.Close()

	var entries []domain.BalanceEntry
	for rows.Next() {
		e, err := scanBalanceEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("GetByTransactionID: scan: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByTransactionID: rows: %w", err)
	}
	return entries, nil
}

func scanBalanceEntry(s scanner) (*domain.BalanceEntry, error) {
	var e domain.BalanceEntry
	err := s.Scan(
		&e.ID, &e.TransactionID, &e.AccountID, &e.EntryType, &e.Amount,
		&e.BalanceBefore, &e.BalanceAfter, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
