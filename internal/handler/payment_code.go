package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/campus-wallet/internal/auth"
	"github.com/josh-kwaku/campus-wallet/internal/domain"
	"github.com/josh-kwaku/campus-wallet/internal/logging"
	"github.com/josh-kwaku/campus-wallet/internal/service/transfer"
)

type paymentCodeService interface {
	GeneratePaymentCode(ctx context.Context, req transfer.PaymentCodeRequest) (*transfer.PaymentCodeResult, error)
	GetPaymentCode(ctx context.Context, reference string) (*domain.PaymentCode, error)
	RedeemPaymentCode(ctx context.Context, reference string, vendorID uuid.UUID) (*domain.Transaction, error)
}

type PaymentCodeHandler struct {
	codes paymentCodeService
}

func NewPaymentCodeHandler(codes paymentCodeService) *PaymentCodeHandler {
	return &PaymentCodeHandler{codes: codes}
}

type generatePaymentCodeRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type paymentCodeDTO struct {
	Reference string `json:"reference"`
	ImageURL  string `json:"image_url"`
}

func (h *PaymentCodeHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req generatePaymentCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if !req.Amount.IsPositive() {
		RespondValidationError(w, []FieldError{{Field: "amount", Message: "must be greater than 0"}})
		return
	}

	res, err := h.codes.GeneratePaymentCode(r.Context(), transfer.PaymentCodeRequest{
		UserID:      userID,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("payment code generation failed", "error", err)
		if res != nil && res.Transaction != nil && errors.Is(err, domain.ErrInsufficientFunds) {
			RespondAppError(w, ErrInsufficientFunds, map[string]string{"reference": res.Transaction.Reference})
			return
		}
		RespondDomainError(w, err)
		return
	}

	code := res.Code
	imageURL := fmt.Sprintf("/api/v1/payment-codes/%s", code.Reference)
	w.Header().Set("Location", imageURL)
	RespondSuccess(w, http.StatusCreated, paymentCodeDTO{Reference: code.Reference, ImageURL: imageURL})
}

// Image serves the QR PNG to the payer who generated it.
func (h *PaymentCodeHandler) Image(w http.ResponseWriter, r *http.Request) {
	userID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	code, err := h.codes.GetPaymentCode(r.Context(), r.PathValue("reference"))
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	if code.UserID != userID {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(code.Image)))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(code.Image)
}

// Redeem lets the scanning vendor claim a payment code as its recipient.
func (h *PaymentCodeHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	userID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}
	if kind, _ := auth.KindFromContext(r.Context()); kind != domain.AccountKindVendor {
		RespondAppError(w, ErrInvalidRole, nil)
		return
	}

	txn, err := h.codes.RedeemPaymentCode(r.Context(), r.PathValue("reference"), userID)
	if err != nil {
		log := logging.FromContext(r.Context())
		if errors.Is(err, domain.ErrPaymentCodeRedeemed) {
			log.Info("payment code already redeemed", "reference", r.PathValue("reference"))
		} else {
			log.Warn("payment code redemption failed", "error", err)
		}
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toTransactionDTO(txn))
}
