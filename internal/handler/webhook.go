package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/campus-wallet/internal/domain"
	"github.com/josh-kwaku/campus-wallet/internal/logging"
	"github.com/josh-kwaku/campus-wallet/internal/repository"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw body keyed by the webhook secret.
const SignatureHeader = "verif-hash"

type webhookEventRepository interface {
	Create(ctx context.Context, event *domain.WebhookEvent) error
}

type WebhookHandler struct {
	webhooks webhookEventRepository
	secret   string
}

func NewWebhookHandler(webhooks webhookEventRepository, secret string) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, secret: secret}
}

type webhookPayload struct {
	Event string      `json:"event"`
	Data  webhookData `json:"data"`
}

type webhookData struct {
	ID     json.RawMessage `json:"id"`
	TxRef  string          `json:"tx_ref"`
	Status string          `json:"status"`
}

func (p webhookPayload) validate() []FieldError {
	var errs []FieldError
	if p.Event == "" {
		errs = append(errs, FieldError{Field: "event", Message: "required"})
	} else if !domain.WebhookEventType(p.Event).IsValid() {
		errs = append(errs, FieldError{Field: "event", Message: "must be charge.completed or transfer.completed"})
	}
	if p.Data.TxRef == "" {
		errs = append(errs, FieldError{Field: "data.tx_ref", Message: "required"})
	}
	if p.Data.Status == "" {
		errs = append(errs, FieldError{Field: "data.status", Message: "required"})
	}
	return errs
}

// idempotencyKey identifies a delivery. Gateways retry the same notification, and a
// transaction may legitimately produce one notification per status change.
func (p webhookPayload) idempotencyKey() string {
	id := strings.Trim(string(bytes.TrimSpace(p.Data.ID)), `"`)
	if id == "" || id == "null" {
		id = "-"
	}
	return strings.Join([]string{p.Event, p.Data.TxRef, id, strings.ToLower(p.Data.Status)}, ":")
}

// ReceiveGatewayWebhook stores an authenticated notification for the webhook processor.
// The payload is never trusted for settlement: the processor re-verifies the
// reference with the gateway.
func (h *WebhookHandler) ReceiveGatewayWebhook(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		log.Error("failed to read webhook body", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if !verifyHMAC(body, r.Header.Get(SignatureHeader), h.secret) {
		log.Warn("webhook signature verification failed")
		RespondAppError(w, ErrInvalidSignature, nil)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Warn("failed to parse webhook payload", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := payload.validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	event := &domain.WebhookEvent{
		ID:             uuid.New(),
		IdempotencyKey: payload.idempotencyKey(),
		EventType:      domain.WebhookEventType(payload.Event),
		Reference:      payload.Data.TxRef,
		Payload:        body,
		Status:         domain.WebhookEventStatusPending,
		CreatedAt:      time.Now().UTC(),
	}

	if err := h.webhooks.Create(r.Context(), event); err != nil {
		if repository.IsDuplicateKey(err) {
			log.Info("duplicate webhook received", "idempotency_key", event.IdempotencyKey, "reference", event.Reference)
			RespondSuccess(w, http.StatusOK, map[string]string{"status": "already_received"})
			return
		}
		log.Error("failed to store webhook event", "error", err)
		RespondAppError(w, ErrInternalError, nil)
		return
	}

	log.Info("webhook event stored",
		"webhook_event_id", event.ID,
		"reference", event.Reference,
		"event_type", event.EventType,
		"gateway_status", payload.Data.Status,
	)

	RespondSuccess(w, http.StatusOK, map[string]string{"status": "received"})
}

// SignPayload returns the signature a sender attaches under SignatureHeader.
func SignPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func verifyHMAC(body []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}
	return hmac.Equal([]byte(SignPayload(body, secret)), []byte(signature))
}
