package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type WebhookEventStatus string

const (
	WebhookEventStatusPending   WebhookEventStatus = "pending"
	WebhookEventStatusProcessed WebhookEventStatus = "processed"
	WebhookEventStatusFailed    WebhookEventStatus = "failed"
)

type WebhookEventType string

const (
	WebhookEventTypeChargeCompleted   WebhookEventType = "charge.completed"
	WebhookEventTypeTransferCompleted WebhookEventType = "transfer.completed"
)

func (t WebhookEventType) IsValid() bool {
	return t == WebhookEventTypeChargeCompleted || t == WebhookEventTypeTransferCompleted
}

// WebhookEvent is a gateway notification stored for asynchronous reconciliation.
type WebhookEvent struct {
	ID             uuid.UUID
	IdempotencyKey string
	EventType      WebhookEventType
	Reference      string
	Payload        json.RawMessage
	Status         WebhookEventStatus
	Attempts       int
	LastAttempt    *time.Time
	CreatedAt      time.Time
}
