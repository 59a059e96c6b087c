package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/josh-kwaku/campus-wallet/internal/domain"
	"github.com/josh-kwaku/campus-wallet/internal/logging"
	"github.com/josh-kwaku/campus-wallet/internal/service/wallet"
)

type registrar interface {
	Register(ctx context.Context, req wallet.RegisterRequest) (*domain.User, *domain.Account, error)
}

type UserHandler struct {
	wallets registrar
}

func NewUserHandler(wallets registrar) *UserHandler {
	return &UserHandler{wallets: wallets}
}

type registerRequest struct {
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Kind     string `json:"kind"`
}

func (r registerRequest) Validate() []FieldError {
	var errs []FieldError
	if strings.TrimSpace(r.Phone) == "" {
		errs = append(errs, FieldError{Field: "phone", Message: "required"})
	}
	if !strings.Contains(r.Email, "@") {
		errs = append(errs, FieldError{Field: "email", Message: "must be a valid email"})
	}
	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, FieldError{Field: "name", Message: "required"})
	}
	if len(r.Password) < 8 {
		errs = append(errs, FieldError{Field: "password", Message: "must be at least 8 characters"})
	}
	if !domain.AccountKind(r.Kind).IsValid() {
		errs = append(errs, FieldError{Field: "kind", Message: "must be vendor or customer"})
	}
	return errs
}

type registerResponse struct {
	User    userDTO    `json:"user"`
	Account accountDTO `json:"account"`
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	user, account, err := h.wallets.Register(r.Context(), wallet.RegisterRequest{
		Phone:    strings.TrimSpace(req.Phone),
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Name:     strings.TrimSpace(req.Name),
		Password: req.Password,
		Kind:     domain.AccountKind(req.Kind),
	})
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to register user", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, registerResponse{
		User:    toUserDTO(user),
		Account: toAccountDTO(account),
	})
}
