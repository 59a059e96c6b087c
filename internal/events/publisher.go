// Package events publishes transaction lifecycle events to kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/campus-wallet/internal/domain"
)

type Event struct {
	EventType     domain.TransactionEventType `json:"event_type"`
	TransactionID uuid.UUID                   `json:"transaction_id"`
	Reference     string                      `json:"reference"`
	Type          domain.TransactionType      `json:"type"`
	Status        domain.TransactionStatus    `json:"status"`
	Amount        decimal.Decimal             `json:"amount"`
	Fee           decimal.Decimal             `json:"fee"`
	SenderID      uuid.UUID                   `json:"sender_id"`
	RecipientID   *uuid.UUID                  `json:"recipient_id,omitempty"`
	Timestamp     time.Time                   `json:"timestamp"`
}

func NewEvent(eventType domain.TransactionEventType, t *domain.Transaction) Event {
	return Event{
		EventType:     eventType,
		TransactionID: t.ID,
		Reference:     t.Reference,
		Type:          t.Type,
		Status:        t.Status,
		Amount:        t.Amount,
		Fee:           t.Fee,
		SenderID:      t.SenderID,
		RecipientID:   t.RecipientID,
		Timestamp:     time.Now().UTC(),
	}
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			MaxAttempts:  3,
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
				logger.Error(fmt.Sprintf(msg, args...), "component", "kafka")
			}),
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	msg, err := toMessage(e)
	if err != nil {
		return fmt.Errorf("Publish: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("Publish: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops events; used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Messages are keyed by reference so every event of a transaction lands on the
// same partition in order.
func toMessage(e Event) (kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("toMessage: %w", err)
	}
	return kafka.Message{
		Key:   []byte(e.Reference),
		Value: value,
		Time:  e.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.EventType)},
		},
	}, nil
}
