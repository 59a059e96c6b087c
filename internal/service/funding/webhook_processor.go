package funding

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/campus-wallet/internal/domain"
	"github.com/josh-kwaku/campus-wallet/internal/logging"
)

const webhookBatchSize = 10

type webhookRepo interface {
	ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]domain.WebhookEvent, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.WebhookEventStatus) error
}

type verifier interface {
	Verify(ctx context.Context, reference string) (*domain.Transaction, error)
}

type WebhookMetrics interface {
	IncWebhookEvent(status string)
}

type WebhookProcessorConfig struct {
	Interval    time.Duration
	Lease       time.Duration
	MaxAttempts int
}

// WebhookProcessor reconciles stored gateway notifications by verifying the
// referenced transaction. The notification body is never trusted for amounts or
// status; Verify asks the gateway directly.
type WebhookProcessor struct {
	webhooks webhookRepo
	verifier verifier
	metrics  WebhookMetrics
	logger   *slog.Logger
	cfg      WebhookProcessorConfig
}

func NewWebhookProcessor(webhooks webhookRepo, v verifier, metrics WebhookMetrics, logger *slog.Logger, cfg WebhookProcessorConfig) *WebhookProcessor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &WebhookProcessor{
		webhooks: webhooks,
		verifier: v,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
	}
}

func (p *WebhookProcessor) Start(ctx context.Context) {
	p.logger.Info("webhook processor started", "interval", p.cfg.Interval)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("webhook processor stopped")
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll processes one batch of pending events and returns how many it claimed.
func (p *WebhookProcessor) Poll(ctx context.Context) int {
	events, err := p.webhooks.ClaimPending(ctx, webhookBatchSize, p.cfg.Lease)
	if err != nil {
		p.logger.Error("failed to claim pending webhook events", "error", err)
		return 0
	}

	for _, event := range events {
		if err := p.processEvent(ctx, event); err != nil {
			p.logger.Error("failed to process webhook event",
				"webhook_event_id", event.ID,
				"reference", event.Reference,
				"error", err,
			)
		}
	}
	return len(events)
}

func (p *WebhookProcessor) processEvent(ctx context.Context, event domain.WebhookEvent) error {
	log := p.logger.With("webhook_event_id", event.ID, "reference", event.Reference, "attempt", event.Attempts)
	ctx = logging.WithLogger(ctx, log)

	_, err := p.verifier.Verify(ctx, event.Reference)
	status := p.outcome(event, err)
	if status == domain.WebhookEventStatusPending {
		log.Info("webhook event will be retried", "error", err)
		p.metrics.IncWebhookEvent("retry")
		return nil
	}

	if status == domain.WebhookEventStatusFailed {
		log.Warn("webhook event could not be reconciled", "error", err)
	} else {
		log.Info("webhook event reconciled")
	}
	p.metrics.IncWebhookEvent(string(status))
	return p.webhooks.UpdateStatus(ctx, event.ID, status)
}

func (p *WebhookProcessor) outcome(event domain.WebhookEvent, err error) domain.WebhookEventStatus {
	switch {
	case err == nil, errors.Is(err, domain.ErrAlreadySettled):
		return domain.WebhookEventStatusProcessed
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrGatewayRejected),
		errors.Is(err, domain.ErrAmountMismatch),
		errors.Is(err, domain.ErrTransactionNotPending),
		errors.Is(err, domain.ErrInvalidTransactionType):
		return domain.WebhookEventStatusFailed
	case event.Attempts >= p.cfg.MaxAttempts:
		return domain.WebhookEventStatusFailed
	default:
		return domain.WebhookEventStatusPending
	}
}
