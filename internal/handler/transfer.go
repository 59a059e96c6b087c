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
	"github.com/josh-kwaku/campus-wallet/internal/logging"
	"github.com/josh-kwaku/campus-wallet/internal/service/transfer"
)

type transferService interface {
	Initiate(ctx context.Context, req transfer.InitiateRequest) (*domain.Transaction, error)
	Authorize(ctx context.Context, req transfer.AuthorizeRequest) (*domain.Transaction, error)
}

type TransferHandler struct {
	transfers transferService
}

func NewTransferHandler(transfers transferService) *TransferHandler {
	return &TransferHandler{transfers: transfers}
}

type initiateTransferRequest struct {
	RecipientPhone string          `json:"recipient_phone"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
}

func (r initiateTransferRequest) Validate() []FieldError {
	var errs []FieldError
	if strings.TrimSpace(r.RecipientPhone) == "" {
		errs = append(errs, FieldError{Field: "recipient_phone", Message: "required"})
	}
	if !r.Amount.IsPositive() {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}
	return errs
}

type authorizeRequest struct {
	PIN string `json:"pin"`
}

func (h *TransferHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	userID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req initiateTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	txn, err := h.transfers.Initiate(r.Context(), transfer.InitiateRequest{
		SenderID:       userID,
		RecipientPhone: strings.TrimSpace(req.RecipientPhone),
		Amount:         req.Amount,
		Description:    req.Description,
	})
	if err != nil {
		log.Warn("transfer initiation failed", "error", err)
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

// Authorize settles a pending transfer, or submits the payout of a pending withdrawal.
func (h *TransferHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	userID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req authorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if req.PIN == "" {
		RespondValidationError(w, []FieldError{{Field: "pin", Message: "required"}})
		return
	}

	txn, err := h.transfers.Authorize(r.Context(), transfer.AuthorizeRequest{
		Reference: r.PathValue("reference"),
		CallerID:  userID,
		PIN:       req.PIN,
	})
	if err != nil {
		log.Warn("authorization failed", "reference", r.PathValue("reference"), "error", err)
		RespondDomainError(w, err)
		return
	}

	status := http.StatusOK
	if !txn.Completed {
		status = http.StatusAccepted
	}
	RespondSuccess(w, status, toTransactionDTO(txn))
}
