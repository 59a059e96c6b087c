package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type TransactionEventType string

const (
	TransactionEventTypeCreated  TransactionEventType = "created"
	TransactionEventTypeCharged  TransactionEventType = "charged"
	TransactionEventTypeSettled  TransactionEventType = "settled"
	TransactionEventTypeFailed   TransactionEventType = "failed"
	TransactionEventTypeRefunded TransactionEventType = "refunded"
)

type TransactionEvent struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	Reference     string
	EventType     TransactionEventType
	Actor         string
	Payload       json.RawMessage
	CreatedAt     time.Time
}
