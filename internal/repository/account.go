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

const accountColumns = `id, user_id, kind, tag, balance, pin_hash, created_at, updated_at`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts the account unless its tag is already taken, in which case it
// returns false so the caller can retry with a fresh tag.
func (r *AccountRepository) Create(ctx context.Context, tx *sql.Tx, a *domain.Account) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (id, user_id, kind, tag, balance, pin_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tag) DO NOTHING`,
		a.ID, a.UserID, a.Kind, a.Tag, a.Balance, a.PINHash, a.CreatedAt, a.UpdatedAt,
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

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`, userID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByUserID: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetByUserID: %w", err)
	}
	return a, nil
}

// Credit adds amount to the user's balance in a single statement.
func (r *AccountRepository) Credit(ctx context.Context, tx *sql.Tx, userID uuid.UUID, amount decimal.Decimal) (*domain.BalanceChange, error) {
	var c domain.BalanceChange
	err := tx.QueryRowContext(ctx,
		`UPDATE accounts SET balance = balance + $1, updated_at = now()
		WHERE user_id = $2
		RETURNING id, balance`,
		amount, userID,
	).Scan(&c.AccountID, &c.After)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("Credit: %w", domain.ErrAccountNotFound)
		}
		if IsNumericOverflow(err) {
			return nil, fmt.Errorf("Credit: %w", domain.ErrBalanceLimitExceeded)
		}
		return nil, fmt.Errorf("Credit: %w", err)
	}
	c.Before = c.After.Sub(amount)
	return &c, nil
}

// Debit subtracts amount only when the balance covers it. The check and the write
// happen in one statement so concurrent debits cannot overdraw the account.
func (r *AccountRepository) Debit(ctx context.Context, tx *sql.Tx, userID uuid.UUID, amount decimal.Decimal) (*domain.BalanceChange, error) {
	var c domain.BalanceChange
	err := tx.QueryRowContext(ctx,
		`UPDATE accounts SET balance = balance - $1, updated_at = now()
		WHERE user_id = $2 AND balance >= $1
		RETURNING id, balance`,
		amount, userID,
	).Scan(&c.AccountID, &c.After)
	if err == nil {
		c.Before = c.After.Add(amount)
		return &c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("Debit: %w", err)
	}

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE user_id = $1)`, userID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("Debit: check account: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("Debit: %w", domain.ErrAccountNotFound)
	}
	return nil, fmt.Errorf("Debit: %w", domain.ErrInsufficientFunds)
}

func (r *AccountRepository) SetPINHash(ctx context.Context, userID uuid.UUID, hash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET pin_hash = $1, updated_at = now() WHERE user_id = $2`,
		hash, userID,
	)
	if err != nil {
		return fmt.Errorf("SetPINHash: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("SetPINHash: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("SetPINHash: %w", domain.ErrAccountNotFound)
	}
	return nil
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	err := s.Scan(
		&a.ID, &a.UserID, &a.Kind, &a.Tag, &a.Balance,
		&a.PINHash, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
