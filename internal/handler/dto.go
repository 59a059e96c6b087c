package handler

import (
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/campus-wallet/internal/domain"
)

type userDTO struct {
	ID    uuid.UUID `json:"id"`
	Phone string    `json:"phone"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
}

func toUserDTO(u *domain.User) userDTO {
	return userDTO{ID: u.ID, Phone: u.Phone, Email: u.Email, Name: u.Name}
}

type accountDTO struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Kind      string    `json:"kind"`
	Tag       string    `json:"tag"`
	Balance   string    `json:"balance"`
	HasPIN    bool      `json:"has_pin"`
	CreatedAt time.Time `json:"created_at"`
}

func toAccountDTO(a *domain.Account) accountDTO {
	return accountDTO{
		ID:        a.ID,
		UserID:    a.UserID,
		Kind:      string(a.Kind),
		Tag:       a.Tag,
		Balance:   a.Balance.StringFixed(domain.AmountScale),
		HasPIN:    a.HasPIN(),
		CreatedAt: a.CreatedAt,
	}
}

type transactionDTO struct {
	ID            uuid.UUID  `json:"id"`
	Reference     string     `json:"reference"`
	SenderID      uuid.UUID  `json:"sender_id"`
	RecipientID   *uuid.UUID `json:"recipient_id"`
	Amount        string     `json:"amount"`
	Fee           string     `json:"fee"`
	Type          string     `json:"type"`
	Description   string     `json:"description"`
	Status        string     `json:"status"`
	Completed     bool       `json:"completed"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	ChargeKind    *string    `json:"charge_kind,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func toTransactionDTO(t *domain.Transaction) transactionDTO {
	dto := transactionDTO{
		ID:            t.ID,
		Reference:     t.Reference,
		SenderID:      t.SenderID,
		RecipientID:   t.RecipientID,
		Amount:        t.Amount.StringFixed(domain.AmountScale),
		Fee:           t.Fee.StringFixed(domain.AmountScale),
		Type:          string(t.Type),
		Description:   t.Description,
		Status:        string(t.Status),
		Completed:     t.Completed,
		FailureReason: t.FailureReason,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
		CompletedAt:   t.CompletedAt,
	}
	if t.ChargeKind != nil {
		k := string(*t.ChargeKind)
		dto.ChargeKind = &k
	}
	return dto
}
