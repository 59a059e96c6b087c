package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/campus-wallet/internal/handler"
)

// charge is the gateway's record of one tx_ref. It turns successful once
// settleAfter has elapsed since creation.
type charge struct {
	TxRef     string
	Type      string
	Amount    decimal.Decimal
	Fee       decimal.Decimal
	CreatedAt time.Time
}

type server struct {
	cfg       config
	feeRate   decimal.Decimal
	maxAmount decimal.Decimal
	client    *http.Client
	now       func() time.Time

	mu      sync.Mutex
	charges map[string]*charge
	nextID  int
}

func newServer(cfg config) (*server, error) {
	feeRate, err := decimal.NewFromString(cfg.FeeRate)
	if err != nil {
		return nil, fmt.Errorf("FEE_RATE: %w", err)
	}
	maxAmount, err := decimal.NewFromString(cfg.MaxAmount)
	if err != nil {
		return nil, fmt.Errorf("MAX_AMOUNT: %w", err)
	}
	return &server{
		cfg:       cfg,
		feeRate:   feeRate,
		maxAmount: maxAmount,
		client:    &http.Client{Timeout: cfg.Timeout},
		now:       time.Now,
		charges:   make(map[string]*charge),
	}, nil
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /v3/charges", s.authorized(s.handleCharge))
	mux.HandleFunc("GET /v3/transactions/verify_by_reference", s.authorized(s.handleVerify))
	return mux
}

func (s *server) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.SecretKey != "" && r.Header.Get("Authorization") != "Bearer "+s.cfg.SecretKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"status": "error", "message": "invalid secret key"})
			return
		}
		next(w, r)
	}
}

type chargeRequest struct {
	TxRef  string          `json:"tx_ref"`
	Amount decimal.Decimal `json:"amount"`
}

func (s *server) handleCharge(w http.ResponseWriter, r *http.Request) {
	chargeType := r.URL.Query().Get("type")
	switch chargeType {
	case "ussd", "bank_transfer", "account":
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "unsupported charge type"})
		return
	}

	var req chargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TxRef == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "invalid charge payload"})
		return
	}
	if !req.Amount.IsPositive() || req.Amount.GreaterThan(s.maxAmount) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "amount out of range"})
		return
	}

	s.mu.Lock()
	c, exists := s.charges[req.TxRef]
	if !exists {
		s.nextID++
		c = &charge{
			TxRef:     req.TxRef,
			Type:      chargeType,
			Amount:    req.Amount,
			Fee:       req.Amount.Mul(s.feeRate).Round(2),
			CreatedAt: s.now(),
		}
		s.charges[req.TxRef] = c
	}
	id := s.nextID
	s.mu.Unlock()

	if exists {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "duplicate tx_ref"})
		return
	}

	slog.Info("charge accepted", "tx_ref", c.TxRef, "type", chargeType, "amount", c.Amount.String())
	if s.cfg.WebhookURL != "" && s.cfg.WebhookSecret != "" {
		go s.notifyLater(c, id)
	}

	data := map[string]any{
		"id":             id,
		"tx_ref":         c.TxRef,
		"status":         "pending",
		"app_fee":        c.Fee,
		"charged_amount": c.Amount,
	}
	if chargeType == "ussd" {
		data["payment_code"] = fmt.Sprintf("*889*%d#", 1000+id)
	}
	resp := map[string]any{"status": "success", "message": "Charge initiated", "data": data}
	if chargeType == "bank_transfer" {
		resp["meta"] = map[string]any{"authorization": map[string]string{
			"mode":               "banktransfer",
			"transfer_reference": c.TxRef,
			"transfer_account":   "0067100155",
			"transfer_bank":      "Mock Bank",
			"transfer_amount":    c.Amount.StringFixed(2),
		}}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleVerify(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("tx_ref")

	s.mu.Lock()
	c, ok := s.charges[ref]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "message": "No transaction was found for this id"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Transaction fetched successfully",
		"data": map[string]any{
			"tx_ref":  c.TxRef,
			"status":  s.statusOf(c),
			"amount":  c.Amount,
			"app_fee": c.Fee,
		},
	})
}

func (s *server) statusOf(c *charge) string {
	if s.now().Sub(c.CreatedAt) >= s.cfg.SettleAfter {
		return "successful"
	}
	return "pending"
}

func (s *server) notifyLater(c *charge, id int) {
	time.Sleep(s.cfg.SettleAfter)
	if err := s.notify(context.Background(), c, id); err != nil {
		slog.Warn("webhook delivery failed", "tx_ref", c.TxRef, "error", err)
	}
}

func (s *server) notify(ctx context.Context, c *charge, id int) error {
	event := "charge.completed"
	if c.Type == "account" {
		event = "transfer.completed"
	}
	body, err := json.Marshal(map[string]any{
		"event": event,
		"data": map[string]any{
			"id":     id,
			"tx_ref": c.TxRef,
			"status": s.statusOf(c),
			"amount": c.Amount,
		},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(handler.SignatureHeader, handler.SignPayload(body, s.cfg.WebhookSecret))

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}
	slog.Info("webhook delivered", "tx_ref", c.TxRef, "event", event)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
