package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/josh-kwaku/campus-wallet/internal/domain"
)

type PaymentCodeRepository struct {
	db *sql.DB
}

func NewPaymentCodeRepository(db *sql.DB) *PaymentCodeRepository {
	return &PaymentCodeRepository{db: db}
}

func (r *PaymentCodeRepository) Create(ctx context.Context, tx *sql.Tx, pc *domain.PaymentCode) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payment_codes (id, user_id, transaction_id, image, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		pc.ID, pc.UserID, pc.TransactionID, pc.Image, pc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *PaymentCodeRepository) GetByReference(ctx context.Context, reference string) (*domain.PaymentCode, error) {
	var pc domain.PaymentCode
	err := r.db.QueryRowContext(ctx,
		`SELECT p.id, p.user_id, p.transaction_id, t.reference, p.image, p.created_at
		FROM payment_codes p JOIN transactions t ON t.id = p.transaction_id
		WHERE t.reference = $1`, reference,
	).Scan(&pc.ID, &pc.UserID, &pc.TransactionID, &pc.Reference, &pc.Image, &pc.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByReference: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByReference: %w", err)
	}
	return &pc, nil
}
