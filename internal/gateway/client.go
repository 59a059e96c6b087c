// Package gateway is the HTTP client for the external payment gateway used to fund
// wallets and pay out withdrawals.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/josh-kwaku/campus-wallet/internal/domain"
	"github.com/josh-kwaku/campus-wallet/internal/logging"
)

const (
	StatusSuccess = "success"
	StatusPending = "pending"
	StatusFailed  = "failed"
)

const (
	opCharge = "charge"
	opVerify = "verify"
)

type Observer interface {
	ObserveGatewayCall(op, outcome string, d time.Duration)
}

type Config struct {
	BaseURL   string
	SecretKey string
	Currency  string
	Timeout   time.Duration
}

type Client struct {
	baseURL    string
	secretKey  string
	currency   string
	httpClient *http.Client
	observer   Observer
}

func NewClient(cfg Config, observer Observer) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
		currency:  cfg.Currency,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		observer: observer,
	}
}

type ChargeRequest struct {
	Kind          domain.ChargeKind
	Reference     string
	Amount        decimal.Decimal
	Email         string
	Phone         string
	FullName      string
	BankCode      string
	AccountNumber string
	Narration     string
}

type Instructions struct {
	Mode              string `json:"mode,omitempty"`
	Note              string `json:"note,omitempty"`
	TransferReference string `json:"transfer_reference,omitempty"`
	TransferAccount   string `json:"transfer_account,omitempty"`
	TransferBank      string `json:"transfer_bank,omitempty"`
	TransferAmount    string `json:"transfer_amount,omitempty"`
	AccountExpiration string `json:"account_expiration,omitempty"`
}

type ChargeResult struct {
	Status        string
	Fee           decimal.Decimal
	ChargedAmount decimal.Decimal
	PaymentCode   string
	Instructions  *Instructions
}

type VerifyResult struct {
	Status string
	Amount decimal.Decimal
	Fee    decimal.Decimal
}

type chargePayload struct {
	TxRef         string          `json:"tx_ref"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Email         string          `json:"email"`
	PhoneNumber   string          `json:"phone_number,omitempty"`
	FullName      string          `json:"fullname,omitempty"`
	AccountBank   string          `json:"account_bank,omitempty"`
	AccountNumber string          `json:"account_number,omitempty"`
	Narration     string          `json:"narration,omitempty"`
}

type envelope[T any] struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
	Meta    struct {
		Authorization *Instructions `json:"authorization"`
	} `json:"meta"`
}

type chargeData struct {
	Status        string          `json:"status"`
	AppFee        decimal.Decimal `json:"app_fee"`
	ChargedAmount decimal.Decimal `json:"charged_amount"`
	PaymentCode   string          `json:"payment_code"`
}

type verifyData struct {
	TxRef  string          `json:"tx_ref"`
	Status string          `json:"status"`
	Amount decimal.Decimal `json:"amount"`
	AppFee decimal.Decimal `json:"app_fee"`
}

// Charge asks the gateway to collect or pay out funds for a pending transaction.
func (c *Client) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	chargeType, err := chargeTypeFor(req.Kind)
	if err != nil {
		return nil, fmt.Errorf("Charge: %w", err)
	}

	body, err := json.Marshal(chargePayload{
		TxRef:         req.Reference,
		Amount:        req.Amount,
		Currency:      c.currency,
		Email:         req.Email,
		PhoneNumber:   req.Phone,
		FullName:      req.FullName,
		AccountBank:   req.BankCode,
		AccountNumber: req.AccountNumber,
		Narration:     req.Narration,
	})
	if err != nil {
		return nil, fmt.Errorf("Charge: marshal: %w", err)
	}

	endpoint := c.baseURL + "/v3/charges?type=" + url.QueryEscape(chargeType)
	var resp envelope[chargeData]
	if err := c.do(ctx, opCharge, http.MethodPost, endpoint, body, &resp); err != nil {
		return nil, fmt.Errorf("Charge: %w", err)
	}
	if resp.Status != StatusSuccess {
		return nil, fmt.Errorf("Charge: %q: %w", resp.Message, domain.ErrGatewayRejected)
	}

	status := normalizeStatus(resp.Data.Status)
	if status == "" {
		status = StatusPending
	}
	return &ChargeResult{
		Status:        status,
		Fee:           resp.Data.AppFee,
		ChargedAmount: resp.Data.ChargedAmount,
		PaymentCode:   resp.Data.PaymentCode,
		Instructions:  resp.Meta.Authorization,
	}, nil
}

// Verify fetches the gateway's view of the transaction with the given reference.
func (c *Client) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	endpoint := c.baseURL + "/v3/transactions/verify_by_reference?tx_ref=" + url.QueryEscape(reference)

	var resp envelope[verifyData]
	if err := c.do(ctx, opVerify, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("Verify: %w", err)
	}

	status := normalizeStatus(resp.Data.Status)
	if status == "" {
		status = normalizeStatus(resp.Status)
	}
	return &VerifyResult{
		Status: status,
		Amount: resp.Data.Amount,
		Fee:    resp.Data.AppFee,
	}, nil
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte, out any) error {
	log := logging.FromContext(ctx)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	log.Info("gateway request sent", "op", op)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(op, "unavailable", start)
		log.Warn("gateway unreachable", "op", op, "error", err, "duration_ms", time.Since(start).Milliseconds())
		return errors.Join(domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	log.Info("gateway response received",
		"op", op,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		c.observe(op, "unavailable", start)
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s: %w", resp.StatusCode, string(respBody), domain.ErrGatewayUnavailable)
	case resp.StatusCode == http.StatusNotFound:
		c.observe(op, "not_found", start)
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s: %w: %w", resp.StatusCode, string(respBody), domain.ErrGatewayNotFound, domain.ErrGatewayRejected)
	case resp.StatusCode >= http.StatusBadRequest:
		c.observe(op, "rejected", start)
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s: %w", resp.StatusCode, string(respBody), domain.ErrGatewayRejected)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		c.observe(op, "rejected", start)
		return fmt.Errorf("decode response: %w: %w", err, domain.ErrGatewayRejected)
	}
	c.observe(op, "ok", start)
	return nil
}

func (c *Client) observe(op, outcome string, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveGatewayCall(op, outcome, time.Since(start))
	}
}

func chargeTypeFor(kind domain.ChargeKind) (string, error) {
	switch kind {
	case domain.ChargeKindUSSD:
		return "ussd", nil
	case domain.ChargeKindBankTransfer:
		return "bank_transfer", nil
	case domain.ChargeKindDirectDebit:
		return "account", nil
	default:
		return "", fmt.Errorf("charge kind %q: %w", kind, domain.ErrInvalidChargeKind)
	}
}

func normalizeStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "successful", "success", "completed":
		return StatusSuccess
	case "pending", "processing", "new":
		return StatusPending
	default:
		return strings.ToLower(strings.TrimSpace(s))
	}
}
