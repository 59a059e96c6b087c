package domain

import (
	"time"

	"github.com/google/uuid"
)

type PaymentCode struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	TransactionID uuid.UUID
	Reference     string
	Image         []byte
	CreatedAt     time.Time
}
