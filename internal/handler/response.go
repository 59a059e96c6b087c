package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/josh-kwaku/campus-wallet/internal/domain"
)

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data"`
	Error   *APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func RespondSuccess(w http.ResponseWriter, status int, data any) {
	RespondJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Error:   nil,
	})
}

func RespondAppError(w http.ResponseWriter, appErr *AppError, details any) {
	RespondJSON(w, appErr.Status, APIResponse{
		Success: false,
		Data:    nil,
		Error: &APIError{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: details,
		},
	})
}

func RespondValidationError(w http.ResponseWriter, fields []FieldError) {
	RespondAppError(w, ErrValidationFailed, fields)
}

// RespondDomainError maps a service error to its HTTP representation. Order matters:
// gateway errors are often joined with transport errors, and the most specific
// sentinel is checked first.
func RespondDomainError(w http.ResponseWriter, err error) {
	appErr := appErrorFor(err)
	if appErr == ErrInternalError {
		slog.Error("unhandled domain error", "error", err)
	}
	RespondAppError(w, appErr, nil)
}

func appErrorFor(err error) *AppError {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		return ErrInsufficientFunds
	case errors.Is(err, domain.ErrBalanceLimitExceeded):
		return ErrBalanceLimitExceeded
	case errors.Is(err, domain.ErrAlreadySettled):
		return ErrAlreadyVerified
	case errors.Is(err, domain.ErrAlreadyAuthorized):
		return ErrAlreadyAuthorized
	case errors.Is(err, domain.ErrPaymentCodeRedeemed):
		return ErrPaymentCodeRedeemed
	case errors.Is(err, domain.ErrVerificationInProgress):
		return ErrVerificationInProgress
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return ErrGatewayUnavailable
	case errors.Is(err, domain.ErrAmountMismatch):
		return ErrAmountMismatch
	case errors.Is(err, domain.ErrGatewayRejected):
		return ErrGatewayRejected
	case errors.Is(err, domain.ErrRecipientNotFound):
		return ErrRecipientNotFound
	case errors.Is(err, domain.ErrAccountNotFound):
		return ErrAccountNotFound
	case errors.Is(err, domain.ErrNotFound):
		return ErrResourceNotFound
	case errors.Is(err, domain.ErrSelfTransfer):
		return ErrSelfTransfer
	case errors.Is(err, domain.ErrNotTransactionSender):
		return ErrNotTransactionSender
	case errors.Is(err, domain.ErrPINNotSet):
		return ErrPINNotSet
	case errors.Is(err, domain.ErrIncorrectPIN):
		return ErrIncorrectPIN
	case errors.Is(err, domain.ErrTransactionNotPending):
		return ErrTransactionNotPending
	case errors.Is(err, domain.ErrInvalidTransactionType):
		return ErrInvalidTxnType
	case errors.Is(err, domain.ErrDuplicateUser):
		return ErrDuplicateUser
	case errors.Is(err, domain.ErrInvalidAmount):
		return ErrInvalidAmount
	case errors.Is(err, domain.ErrInvalidRole):
		return ErrInvalidRole
	case errors.Is(err, domain.ErrInvalidChargeKind):
		return ErrInvalidChargeKind
	case errors.Is(err, domain.ErrInvalidPINFormat):
		return ErrInvalidPINFormat
	case errors.Is(err, domain.ErrInvalidRequest):
		return ErrInvalidRequest
	case errors.Is(err, domain.ErrReferenceExhausted):
		return ErrReferenceExhausted
	default:
		return ErrInternalError
	}
}
