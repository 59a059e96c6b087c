package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/campus-wallet/internal/domain"
	"github.com/josh-kwaku/campus-wallet/internal/gateway"
	"github.com/josh-kwaku/campus-wallet/internal/logging"
	"github.com/josh-kwaku/campus-wallet/internal/service/funding"
)

type fundingService interface {
	Topup(ctx context.Context, req funding.TopupRequest) (*funding.TopupResult, error)
	InitiateWithdrawal(ctx context.Context, req funding.WithdrawalRequest) (*domain.Transaction, error)
}

type FundingHandler struct {
	funding fundingService
}

func NewFundingHandler(funding fundingService) *FundingHandler {
	return &FundingHandler{funding: funding}
}

type topupRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	BankCode      string          `json:"bank_code"`
	AccountNumber string          `json:"account_number"`
}

func (r topupRequest) Validate(kind domain.ChargeKind) []FieldError {
	var errs []FieldError
	if !r.Amount.IsPositive() {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}
	if kind == domain.ChargeKindDirectDebit {
		if strings.TrimSpace(r.BankCode) == "" {
			errs = append(errs, FieldError{Field: "bank_code", Message: "required for direct_debit"})
		}
		if strings.TrimSpace(r.AccountNumber) == "" {
			errs = append(errs, FieldError{Field: "account_number", Message: "required for direct_debit"})
		}
	}
	return errs
}

type topupResponse struct {
	Transaction  transactionDTO        `json:"transaction"`
	PaymentCode  string                `json:"payment_code,omitempty"`
	Instructions *gateway.Instructions `json:"instructions,omitempty"`
}

type withdrawalRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	BankCode      string          `json:"bank_code"`
	AccountNumber string          `json:"account_number"`
	Narration     string          `json:"narration"`
}

func (r withdrawalRequest) Validate() []FieldError {
	var errs []FieldError
	if !r.Amount.IsPositive() {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}
	if strings.TrimSpace(r.BankCode) == "" {
		errs = append(errs, FieldError{Field: "bank_code", Message: "required"})
	}
	if strings.TrimSpace(r.AccountNumber) == "" {
		errs = append(errs, FieldError{Field: "account_number", Message: "required"})
	}
	return errs
}

// Topup starts a gateway charge. An unreachable gateway still leaves a pending
// transaction the client can verify later, so that case answers 202.
func (h *FundingHandler) Topup(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	userID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	kind := domain.ChargeKind(r.PathValue("kind"))
	if !kind.IsValid() {
		RespondAppError(w, ErrInvalidChargeKind, nil)
		return
	}

	var req topupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(kind); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	res, err := h.funding.Topup(r.Context(), funding.TopupRequest{
		UserID:        userID,
		Kind:          kind,
		Amount:        req.Amount,
		BankCode:      strings.TrimSpace(req.BankCode),
		AccountNumber: strings.TrimSpace(req.AccountNumber),
	})
	switch {
	case err == nil:
	case res != nil && res.Transaction != nil && errors.Is(err, domain.ErrGatewayUnavailable):
		log.Warn("topup charge deferred", "reference", res.Transaction.Reference, "error", err)
		RespondSuccess(w, http.StatusAccepted, topupResponse{Transaction: toTransactionDTO(res.Transaction)})
		return
	default:
		log.Warn("topup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/transactions/%s", res.Transaction.Reference))
	RespondSuccess(w, http.StatusCreated, topupResponse{
		Transaction:  toTransactionDTO(res.Transaction),
		PaymentCode:  res.PaymentCode,
		Instructions: res.Instructions,
	})
}

func (h *FundingHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req withdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	txn, err := h.funding.InitiateWithdrawal(r.Context(), funding.WithdrawalRequest{
		UserID:        userID,
		Amount:        req.Amount,
		BankCode:      strings.TrimSpace(req.BankCode),
		AccountNumber: strings.TrimSpace(req.AccountNumber),
		Narration:     req.Narration,
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("withdrawal initiation failed", "error", err)
		if txn != nil && errors.Is(err, domain.ErrInsufficientFunds) {
			RespondAppError(w, ErrInsufficientFunds, map[string]string{"reference": txn.Reference})
			return
		}
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/transactions/%s", txn.Reference))
	RespondSuccess(w, http.StatusCreated, toTransactionDTO(txn))
}
