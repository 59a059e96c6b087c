package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/josh-kwaku/campus-wallet/internal/domain"
	"github.com/josh-kwaku/campus-wallet/internal/logging"
	"github.com/josh-kwaku/campus-wallet/internal/service/ledger"
)

type transactionReader interface {
	GetForUser(ctx context.Context, ref string, userID uuid.UUID) (*domain.Transaction, error)
	History(ctx context.Context, userID uuid.UUID, page int, query string) (*ledger.Page, error)
}

type verifier interface {
	Verify(ctx context.Context, reference string) (*domain.Transaction, error)
}

type TransactionHandler struct {
	txns     transactionReader
	verifier verifier
}

func NewTransactionHandler(txns transactionReader, v verifier) *TransactionHandler {
	return &TransactionHandler{txns: txns, verifier: v}
}

type historyDTO struct {
	Transactions []transactionDTO `json:"transactions"`
	Page         int              `json:"page"`
	PageSize     int              `json:"page_size"`
	Total        int              `json:"total"`
}

func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			RespondValidationError(w, []FieldError{{Field: "page", Message: "must be a positive integer"}})
			return
		}
		page = n
	}

	res, err := h.txns.History(r.Context(), userID, page, strings.TrimSpace(r.URL.Query().Get("q")))
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list transactions", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]transactionDTO, len(res.Transactions))
	for i := range res.Transactions {
		dtos[i] = toTransactionDTO(&res.Transactions[i])
	}
	RespondSuccess(w, http.StatusOK, historyDTO{
		Transactions: dtos,
		Page:         res.Page,
		PageSize:     res.PageSize,
		Total:        res.Total,
	})
}

func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	txn, err := h.txns.GetForUser(r.Context(), r.PathValue("reference"), userID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("transaction lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toTransactionDTO(txn))
}

// Verify reconciles a gateway-backed transaction. A gateway that has not confirmed
// yet is not an error for the client: the current state is returned with 202.
func (h *TransactionHandler) Verify(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	userID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	reference := r.PathValue("reference")
	if _, err := h.txns.GetForUser(r.Context(), reference, userID); err != nil {
		RespondDomainError(w, err)
		return
	}

	txn, err := h.verifier.Verify(r.Context(), reference)
	switch {
	case err == nil:
		RespondSuccess(w, http.StatusOK, toTransactionDTO(txn))
	case errors.Is(err, domain.ErrGatewayPending) && txn != nil:
		RespondSuccess(w, http.StatusAccepted, toTransactionDTO(txn))
	default:
		log.Warn("verification failed", "reference", reference, "error", err)
		RespondDomainError(w, err)
	}
}
