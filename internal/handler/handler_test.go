package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/campus-wallet/internal/auth"
	"github.com/josh-kwaku/campus-wallet/internal/domain"
	"github.com/josh-kwaku/campus-wallet/internal/service/funding"
	"github.com/josh-kwaku/campus-wallet/internal/service/ledger"
	"github.com/josh-kwaku/campus-wallet/internal/service/transfer"
)

func authed(r *http.Request, userID uuid.UUID, kind domain.AccountKind) *http.Request {
	return r.WithContext(auth.ContextWithClaims(r.Context(), &auth.Claims{UserID: userID, Kind: kind}))
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func sampleTxn(sender uuid.UUID) *domain.Transaction {
	now := time.Now().UTC()
	return &domain.Transaction{
		ID:        uuid.New(),
		Reference: "ref-" + uuid.NewString()[:8],
		SenderID:  sender,
		Amount:    decimal.RequireFromString("40"),
		Type:      domain.TransactionTypeTransfer,
		Status:    domain.TransactionStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

type fakeTransfers struct {
	txn       *domain.Transaction
	err       error
	initiated transfer.InitiateRequest
	authorize transfer.AuthorizeRequest
}

func (f *fakeTransfers) Initiate(_ context.Context, req transfer.InitiateRequest) (*domain.Transaction, error) {
	f.initiated = req
	return f.txn, f.err
}

func (f *fakeTransfers) Authorize(_ context.Context, req transfer.AuthorizeRequest) (*domain.Transaction, error) {
	f.authorize = req
	return f.txn, f.err
}

func TestTransferHandler_Initiate(t *testing.T) {
	userID := uuid.New()
	pending := sampleTxn(userID)
	failed := sampleTxn(userID)
	failed.Status = domain.TransactionStatusFailed

	tests := []struct {
		name       string
		body       string
		txn        *domain.Transaction
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "created",
			body:       `{"recipient_phone":"08011111111","amount":"40.00"}`,
			txn:        pending,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "numeric amount",
			body:       `{"recipient_phone":"08011111111","amount":40}`,
			txn:        pending,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "missing amount",
			body:       `{"recipient_phone":"08011111111"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "missing recipient",
			body:       `{"amount":"5"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "malformed body",
			body:       `{`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "insufficient funds records failed transaction",
			body:       `{"recipient_phone":"08011111111","amount":"40"}`,
			txn:        failed,
			err:        fmt.Errorf("Initiate: %w", domain.ErrInsufficientFunds),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "INSUFFICIENT_FUNDS",
		},
		{
			name:       "self transfer",
			body:       `{"recipient_phone":"08011111111","amount":"40"}`,
			err:        domain.ErrSelfTransfer,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "SELF_TRANSFER_NOT_ALLOWED",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeTransfers{txn: tc.txn, err: tc.err}
			h := NewTransferHandler(svc)

			req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/transfers", strings.NewReader(tc.body)), userID, domain.AccountKindCustomer)
			rr := httptest.NewRecorder()
			h.Initiate(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			resp := decode(t, rr)
			if tc.wantCode == "" {
				assert.True(t, resp.Success)
				assert.Equal(t, userID, svc.initiated.SenderID)
				assert.True(t, svc.initiated.Amount.Equal(decimal.RequireFromString("40")))
				assert.Equal(t, "/api/v1/transactions/"+pending.Reference, rr.Header().Get("Location"))
				return
			}
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.wantCode, resp.Error.Code)
		})
	}
}

func TestTransferHandler_InsufficientFundsExposesReference(t *testing.T) {
	userID := uuid.New()
	failed := sampleTxn(userID)
	h := NewTransferHandler(&fakeTransfers{txn: failed, err: domain.ErrInsufficientFunds})

	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/transfers",
		strings.NewReader(`{"recipient_phone":"0801","amount":"40"}`)), userID, domain.AccountKindCustomer)
	rr := httptest.NewRecorder()
	h.Initiate(rr, req)

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	resp := decode(t, rr)
	details, ok := resp.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, failed.Reference, details["reference"])
}

func TestTransferHandler_Authorize(t *testing.T) {
	userID := uuid.New()
	completed := sampleTxn(userID)
	completed.Completed = true
	submitted := sampleTxn(userID)
	submitted.Type = domain.TransactionTypeWithdraw

	tests := []struct {
		name       string
		body       string
		txn        *domain.Transaction
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "settled", body: `{"pin":"1234"}`, txn: completed, wantStatus: http.StatusOK},
		{name: "payout submitted", body: `{"pin":"1234"}`, txn: submitted, wantStatus: http.StatusAccepted},
		{name: "missing pin", body: `{}`, wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_FAILED"},
		{name: "already authorized", body: `{"pin":"1234"}`, err: domain.ErrAlreadyAuthorized, wantStatus: http.StatusConflict, wantCode: "ALREADY_AUTHORIZED"},
		{name: "wrong pin", body: `{"pin":"9999"}`, err: domain.ErrIncorrectPIN, wantStatus: http.StatusUnauthorized, wantCode: "INCORRECT_PIN"},
		{name: "gateway down", body: `{"pin":"1234"}`, err: domain.ErrGatewayUnavailable, wantStatus: http.StatusServiceUnavailable, wantCode: "GATEWAY_UNAVAILABLE"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeTransfers{txn: tc.txn, err: tc.err}
			h := NewTransferHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers/ref-1/authorize", strings.NewReader(tc.body))
			req.SetPathValue("reference", "ref-1")
			rr := httptest.NewRecorder()
			h.Authorize(rr, authed(req, userID, domain.AccountKindCustomer))

			assert.Equal(t, tc.wantStatus, rr.Code)
			resp := decode(t, rr)
			if tc.wantCode != "" {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tc.wantCode, resp.Error.Code)
				return
			}
			assert.Equal(t, "ref-1", svc.authorize.Reference)
			assert.Equal(t, userID, svc.authorize.CallerID)
		})
	}
}

func TestTransferHandler_RequiresAuth(t *testing.T) {
	h := NewTransferHandler(&fakeTransfers{})
	rr := httptest.NewRecorder()
	h.Initiate(rr, httptest.NewRequest(http.MethodPost, "/api/v1/transfers", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "MISSING_TOKEN", decode(t, rr).Error.Code)
}

type fakeTransactions struct {
	txn     *domain.Transaction
	getErr  error
	page    *ledger.Page
	gotPage int
	gotQ    string
}

func (f *fakeTransactions) GetForUser(_ context.Context, _ string, _ uuid.UUID) (*domain.Transaction, error) {
	return f.txn, f.getErr
}

func (f *fakeTransactions) History(_ context.Context, _ uuid.UUID, page int, q string) (*ledger.Page, error) {
	f.gotPage, f.gotQ = page, q
	return f.page, nil
}

type fakeVerifier struct {
	txn *domain.Transaction
	err error
}

func (f *fakeVerifier) Verify(_ context.Context, _ string) (*domain.Transaction, error) {
	return f.txn, f.err
}

func TestTransactionHandler_Verify(t *testing.T) {
	userID := uuid.New()
	txn := sampleTxn(userID)
	txn.Type = domain.TransactionTypeTopup

	tests := []struct {
		name       string
		getErr     error
		verified   *domain.Transaction
		verifyErr  error
		wantStatus int
		wantCode   string
	}{
		{name: "settled", verified: txn, wantStatus: http.StatusOK},
		{name: "pending at gateway", verified: txn, verifyErr: fmt.Errorf("Verify: %w", domain.ErrGatewayPending), wantStatus: http.StatusAccepted},
		{name: "already verified", verifyErr: domain.ErrAlreadySettled, wantStatus: http.StatusConflict, wantCode: "ALREADY_VERIFIED"},
		{name: "lock held", verifyErr: domain.ErrVerificationInProgress, wantStatus: http.StatusServiceUnavailable, wantCode: "VERIFICATION_IN_PROGRESS"},
		{name: "rejected", verifyErr: domain.ErrGatewayRejected, wantStatus: http.StatusBadGateway, wantCode: "GATEWAY_REJECTED"},
		{name: "not a party", getErr: domain.ErrNotFound, wantStatus: http.StatusNotFound, wantCode: "RESOURCE_NOT_FOUND"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewTransactionHandler(
				&fakeTransactions{txn: txn, getErr: tc.getErr},
				&fakeVerifier{txn: tc.verified, err: tc.verifyErr},
			)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions/"+txn.Reference+"/verify", nil)
			req.SetPathValue("reference", txn.Reference)
			rr := httptest.NewRecorder()
			h.Verify(rr, authed(req, userID, domain.AccountKindCustomer))

			assert.Equal(t, tc.wantStatus, rr.Code)
			resp := decode(t, rr)
			if tc.wantCode != "" {
				assert.Equal(t, tc.wantCode, resp.Error.Code)
			} else {
				assert.True(t, resp.Success)
			}
		})
	}
}

func TestTransactionHandler_List(t *testing.T) {
	userID := uuid.New()
	txns := &fakeTransactions{page: &ledger.Page{
		Transactions: []domain.Transaction{*sampleTxn(userID)},
		Page:         2,
		PageSize:     ledger.PageSize,
		Total:        11,
	}}
	h := NewTransactionHandler(txns, &fakeVerifier{})

	rr := httptest.NewRecorder()
	h.List(rr, authed(httptest.NewRequest(http.MethodGet, "/api/v1/transactions?page=2&q=%20lunch%20", nil), userID, domain.AccountKindCustomer))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, txns.gotPage)
	assert.Equal(t, "lunch", txns.gotQ)

	var body struct {
		Data historyDTO `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Len(t, body.Data.Transactions, 1)
	assert.Equal(t, 11, body.Data.Total)
	assert.Equal(t, "40.00", body.Data.Transactions[0].Amount)

	rr = httptest.NewRecorder()
	h.List(rr, authed(httptest.NewRequest(http.MethodGet, "/api/v1/transactions?page=0", nil), userID, domain.AccountKindCustomer))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

type fakeFunding struct {
	res *funding.TopupResult
	err error
	got funding.TopupRequest
}

func (f *fakeFunding) Topup(_ context.Context, req funding.TopupRequest) (*funding.TopupResult, error) {
	f.got = req
	return f.res, f.err
}

func (f *fakeFunding) InitiateWithdrawal(_ context.Context, _ funding.WithdrawalRequest) (*domain.Transaction, error) {
	if f.res != nil {
		return f.res.Transaction, f.err
	}
	return nil, f.err
}

func TestFundingHandler_Topup(t *testing.T) {
	userID := uuid.New()
	txn := sampleTxn(userID)
	txn.Type = domain.TransactionTypeTopup

	tests := []struct {
		name       string
		kind       string
		body       string
		res        *funding.TopupResult
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "ussd charge", kind: "ussd", body: `{"amount":"500"}`, res: &funding.TopupResult{Transaction: txn, PaymentCode: "*737*000*1234#"}, wantStatus: http.StatusCreated},
		{name: "gateway down leaves pending", kind: "bank_transfer", body: `{"amount":"500"}`, res: &funding.TopupResult{Transaction: txn}, err: domain.ErrGatewayUnavailable, wantStatus: http.StatusAccepted},
		{name: "unknown kind", kind: "card", body: `{"amount":"500"}`, wantStatus: http.StatusBadRequest, wantCode: "INVALID_CHARGE_KIND"},
		{name: "direct debit requires bank", kind: "direct_debit", body: `{"amount":"500"}`, wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_FAILED"},
		{name: "gateway rejected", kind: "ussd", body: `{"amount":"500"}`, res: &funding.TopupResult{Transaction: txn}, err: domain.ErrGatewayRejected, wantStatus: http.StatusBadGateway, wantCode: "GATEWAY_REJECTED"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeFunding{res: tc.res, err: tc.err}
			h := NewFundingHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/topups/"+tc.kind, strings.NewReader(tc.body))
			req.SetPathValue("kind", tc.kind)
			rr := httptest.NewRecorder()
			h.Topup(rr, authed(req, userID, domain.AccountKindCustomer))

			assert.Equal(t, tc.wantStatus, rr.Code)
			resp := decode(t, rr)
			if tc.wantCode != "" {
				assert.Equal(t, tc.wantCode, resp.Error.Code)
				return
			}
			assert.Equal(t, domain.ChargeKind(tc.kind), svc.got.Kind)
		})
	}
}

func TestFundingHandler_WithdrawInsufficientFundsExposesReference(t *testing.T) {
	userID := uuid.New()
	failed := sampleTxn(userID)
	failed.Type = domain.TransactionTypeWithdraw
	failed.Status = domain.TransactionStatusFailed
	h := NewFundingHandler(&fakeFunding{res: &funding.TopupResult{Transaction: failed}, err: domain.ErrInsufficientFunds})

	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/withdrawals",
		strings.NewReader(`{"amount":"500","bank_code":"058","account_number":"0123456789"}`)), userID, domain.AccountKindCustomer)
	rr := httptest.NewRecorder()
	h.Withdraw(rr, req)

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	resp := decode(t, rr)
	assert.Equal(t, "INSUFFICIENT_FUNDS", resp.Error.Code)
	details, ok := resp.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, failed.Reference, details["reference"])
}

type fakeCodes struct {
	code     *domain.PaymentCode
	failed   *domain.Transaction
	redeemed *domain.Transaction
	err      error
}

func (f *fakeCodes) GeneratePaymentCode(_ context.Context, _ transfer.PaymentCodeRequest) (*transfer.PaymentCodeResult, error) {
	if f.failed != nil {
		return &transfer.PaymentCodeResult{Transaction: f.failed}, f.err
	}
	if f.err != nil {
		return nil, f.err
	}
	return &transfer.PaymentCodeResult{Code: f.code}, nil
}

func (f *fakeCodes) GetPaymentCode(_ context.Context, _ string) (*domain.PaymentCode, error) {
	return f.code, f.err
}

func (f *fakeCodes) RedeemPaymentCode(_ context.Context, _ string, _ uuid.UUID) (*domain.Transaction, error) {
	return f.redeemed, f.err
}

func TestPaymentCodeHandler_Generate(t *testing.T) {
	owner := uuid.New()
	failed := sampleTxn(owner)
	failed.Status = domain.TransactionStatusFailed

	tests := []struct {
		name       string
		codes      *fakeCodes
		wantStatus int
		wantCode   string
		wantRef    string
	}{
		{name: "created", codes: &fakeCodes{code: &domain.PaymentCode{UserID: owner, Reference: "ref-1"}}, wantStatus: http.StatusCreated, wantRef: "ref-1"},
		{name: "insufficient funds exposes failed reference", codes: &fakeCodes{failed: failed, err: domain.ErrInsufficientFunds}, wantStatus: http.StatusUnprocessableEntity, wantCode: "INSUFFICIENT_FUNDS", wantRef: failed.Reference},
		{name: "amount too large", codes: &fakeCodes{err: domain.ErrInvalidAmount}, wantStatus: http.StatusBadRequest, wantCode: "INVALID_AMOUNT"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewPaymentCodeHandler(tc.codes)
			req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/payment-codes",
				strings.NewReader(`{"amount":"40"}`)), owner, domain.AccountKindCustomer)
			rr := httptest.NewRecorder()
			h.Generate(rr, req)

			require.Equal(t, tc.wantStatus, rr.Code)
			resp := decode(t, rr)
			if tc.wantCode == "" {
				assert.Equal(t, "/api/v1/payment-codes/"+tc.wantRef, rr.Header().Get("Location"))
				return
			}
			assert.Equal(t, tc.wantCode, resp.Error.Code)
			if tc.wantRef != "" {
				details, ok := resp.Error.Details.(map[string]any)
				require.True(t, ok)
				assert.Equal(t, tc.wantRef, details["reference"])
			}
		})
	}
}

func TestPaymentCodeHandler_Image(t *testing.T) {
	owner := uuid.New()
	png := []byte("\x89PNG\r\n\x1a\nrest")
	h := NewPaymentCodeHandler(&fakeCodes{code: &domain.PaymentCode{UserID: owner, Reference: "ref-1", Image: png}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payment-codes/ref-1", nil)
	req.SetPathValue("reference", "ref-1")
	rr := httptest.NewRecorder()
	h.Image(rr, authed(req, owner, domain.AccountKindCustomer))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.Equal(t, png, rr.Body.Bytes())

	rr = httptest.NewRecorder()
	h.Image(rr, authed(req, uuid.New(), domain.AccountKindCustomer))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPaymentCodeHandler_Redeem(t *testing.T) {
	vendor := uuid.New()
	txn := sampleTxn(uuid.New())
	txn.RecipientID = &vendor

	tests := []struct {
		name       string
		kind       domain.AccountKind
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "vendor redeems", kind: domain.AccountKindVendor, wantStatus: http.StatusOK},
		{name: "customer cannot redeem", kind: domain.AccountKindCustomer, wantStatus: http.StatusBadRequest, wantCode: "INVALID_ROLE"},
		{name: "already redeemed", kind: domain.AccountKindVendor, err: domain.ErrPaymentCodeRedeemed, wantStatus: http.StatusConflict, wantCode: "PAYMENT_CODE_REDEEMED"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewPaymentCodeHandler(&fakeCodes{redeemed: txn, err: tc.err})

			req := httptest.NewRequest(http.MethodPost, "/api/v1/payment-codes/ref-1/redeem", nil)
			req.SetPathValue("reference", "ref-1")
			rr := httptest.NewRecorder()
			h.Redeem(rr, authed(req, vendor, tc.kind))

			assert.Equal(t, tc.wantStatus, rr.Code)
			if tc.wantCode != "" {
				assert.Equal(t, tc.wantCode, decode(t, rr).Error.Code)
			}
		})
	}
}

type fakeAccounts struct {
	account *domain.Account
	pinErr  error
	pin     string
}

func (f *fakeAccounts) GetAccount(_ context.Context, _ uuid.UUID) (*domain.Account, error) {
	return f.account, nil
}

func (f *fakeAccounts) SetPIN(_ context.Context, _ uuid.UUID, pin string) error {
	f.pin = pin
	return f.pinErr
}

func TestAccountHandler(t *testing.T) {
	userID := uuid.New()
	accounts := &fakeAccounts{account: &domain.Account{
		ID:      uuid.New(),
		UserID:  userID,
		Kind:    domain.AccountKindVendor,
		Tag:     "VEND2612345",
		Balance: decimal.RequireFromString("60"),
	}}
	h := NewAccountHandler(accounts)

	t.Run("owner reads account", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/"+userID.String()+"/account", nil)
		req.SetPathValue("id", userID.String())
		rr := httptest.NewRecorder()
		h.Get(rr, authed(req, userID, domain.AccountKindVendor))

		require.Equal(t, http.StatusOK, rr.Code)
		var body struct {
			Data accountDTO `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "60.00", body.Data.Balance)
		assert.Equal(t, "VEND2612345", body.Data.Tag)
		assert.False(t, body.Data.HasPIN)
	})

	t.Run("other user gets not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/"+userID.String()+"/account", nil)
		req.SetPathValue("id", userID.String())
		rr := httptest.NewRecorder()
		h.Get(rr, authed(req, uuid.New(), domain.AccountKindVendor))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("set pin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/users/"+userID.String()+"/account/pin", strings.NewReader(`{"pin":"4321"}`))
		req.SetPathValue("id", userID.String())
		rr := httptest.NewRecorder()
		h.SetPIN(rr, authed(req, userID, domain.AccountKindVendor))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "4321", accounts.pin)
	})

	t.Run("bad pin format", func(t *testing.T) {
		accounts.pinErr = domain.ErrInvalidPINFormat
		req := httptest.NewRequest(http.MethodPut, "/api/v1/users/"+userID.String()+"/account/pin", strings.NewReader(`{"pin":"12"}`))
		req.SetPathValue("id", userID.String())
		rr := httptest.NewRecorder()
		h.SetPIN(rr, authed(req, userID, domain.AccountKindVendor))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "INVALID_PIN_FORMAT", decode(t, rr).Error.Code)
	})
}
