package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/josh-kwaku/campus-wallet/internal/domain"
	"github.com/josh-kwaku/campus-wallet/internal/logging"
)

type accountService interface {
	GetAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	SetPIN(ctx context.Context, userID uuid.UUID, pin string) error
}

type AccountHandler struct {
	accounts accountService
}

func NewAccountHandler(accounts accountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

type setPINRequest struct {
	PIN string `json:"pin"`
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, appErr := ownerFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	account, err := h.accounts.GetAccount(r.Context(), userID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to get account", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toAccountDTO(account))
}

func (h *AccountHandler) SetPIN(w http.ResponseWriter, r *http.Request) {
	userID, appErr := ownerFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req setPINRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if req.PIN == "" {
		RespondValidationError(w, []FieldError{{Field: "pin", Message: "required"}})
		return
	}

	if err := h.accounts.SetPIN(r.Context(), userID, req.PIN); err != nil {
		logging.FromContext(r.Context()).Warn("failed to set pin", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]bool{"pin_set": true})
}
