package ledger_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/campus-wallet/internal/domain"
	"github.com/josh-kwaku/campus-wallet/internal/events"
	"github.com/josh-kwaku/campus-wallet/internal/metrics"
	"github.com/josh-kwaku/campus-wallet/internal/reference"
	"github.com/josh-kwaku/campus-wallet/internal/repository"
	"github.com/josh-kwaku/campus-wallet/internal/service/ledger"
	"github.com/josh-kwaku/campus-wallet/internal/service/wallet"
	"github.com/josh-kwaku/campus-wallet/internal/testutil"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []domain.TransactionEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.TransactionEventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType
	}
	return out
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, events.Event) error {
	return errors.New("broker down")
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (m *recordingMetrics) IncSettlement(txType, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, txType+":"+outcome)
}

func setupLedger(t *testing.T, db *sql.DB, pub ledger.Publisher) *ledger.Service {
	t.Helper()
	return setupLedgerWithMetrics(t, db, pub, metrics.New())
}

func setupLedgerWithMetrics(t *testing.T, db *sql.DB, pub ledger.Publisher, m ledger.Metrics) *ledger.Service {
	t.Helper()
	walletSvc := wallet.NewService(
		repository.NewUserRepository(db),
		repository.NewAccountRepository(db),
		repository.NewBalanceEntryRepository(db),
		db,
	)
	return ledger.NewService(
		repository.NewTransactionRepository(db),
		repository.NewTransactionEventRepository(db),
		walletSvc,
		reference.NewTokenAllocator(),
		pub,
		m,
		db,
	)
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCreate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	pub := &recordingPublisher{}
	svc := setupLedger(t, db, pub)
	ctx := context.Background()

	user, _ := testutil.SeedUser(t, db, domain.AccountKindCustomer, "0")

	txn, err := svc.Create(ctx, ledger.CreateRequest{
		SenderID:    user.ID,
		Amount:      amount("500.00"),
		Type:        domain.TransactionTypeTopup,
		Description: "wallet funding",
	})
	require.NoError(t, err)
	assert.Len(t, txn.Reference, 22)
	assert.Equal(t, domain.TransactionStatusPending, txn.Status)
	assert.False(t, txn.Completed)

	stored, err := svc.GetByReference(ctx, txn.Reference)
	require.NoError(t, err)
	assert.Equal(t, txn.ID, stored.ID)
	assert.True(t, amount("500").Equal(stored.Amount))

	assert.Equal(t, 1, testutil.CountTransactionEvents(t, db, txn.ID, domain.TransactionEventTypeCreated))
	assert.Equal(t, []domain.TransactionEventType{domain.TransactionEventTypeCreated}, pub.types())
}

func TestCreate_Validation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db, events.NopPublisher{})
	user, _ := testutil.SeedUser(t, db, domain.AccountKindCustomer, "0")

	tests := []struct {
		name    string
		req     ledger.CreateRequest
		wantErr error
	}{
		{"zero amount", ledger.CreateRequest{SenderID: user.ID, Amount: amount("0"), Type: domain.TransactionTypeTopup}, domain.ErrInvalidAmount},
		{"three decimals", ledger.CreateRequest{SenderID: user.ID, Amount: amount("1.005"), Type: domain.TransactionTypeTopup}, domain.ErrInvalidAmount},
		{"negative fee", ledger.CreateRequest{SenderID: user.ID, Amount: amount("1"), Fee: amount("-1"), Type: domain.TransactionTypeTopup}, domain.ErrInvalidAmount},
		{"bad type", ledger.CreateRequest{SenderID: user.ID, Amount: amount("1"), Type: "refund"}, domain.ErrInvalidTransactionType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreate_RetriesOnReferenceCollision(t *testing.T) {
	db := testutil.SetupTestDB(t)
	user, _ := testutil.SeedUser(t, db, domain.AccountKindCustomer, "0")
	existing := testutil.SeedTransaction(t, db, user.ID, domain.TransactionTypeOther, "1.00", "0")

	var calls atomic.Int32
	gen := func() (string, error) {
		if calls.Add(1) == 1 {
			return existing.Reference, nil
		}
		return reference.Token()
	}

	svc := ledger.NewService(
		repository.NewTransactionRepository(db),
		repository.NewTransactionEventRepository(db),
		nil,
		reference.NewAllocator(gen, 3),
		events.NopPublisher{},
		metrics.New(),
		db,
	)

	txn, err := svc.Create(context.Background(), ledger.CreateRequest{
		SenderID: user.ID, Amount: amount("2.00"), Type: domain.TransactionTypeOther,
	})
	require.NoError(t, err)
	assert.NotEqual(t, existing.Reference, txn.Reference)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSettle_ExactlyOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	pub := &recordingPublisher{}
	svc := setupLedger(t, db, pub)
	ctx := context.Background()

	user, _ := testutil.SeedUser(t, db, domain.AccountKindCustomer, "0")
	txn := testutil.SeedTransaction(t, db, user.ID, domain.TransactionTypeTopup, "500.00", "10.00")

	settled, err := svc.Settle(ctx, txn, &user.ID, txn.NetAmount(), "system")
	require.NoError(t, err)
	assert.True(t, settled.Completed)
	assert.Equal(t, domain.TransactionStatusSuccess, settled.Status)
	require.NotNil(t, settled.CompletedAt)
	assert.True(t, amount("490.00").Equal(testutil.GetBalance(t, db, user.ID)))

	_, err = svc.Settle(ctx, txn, &user.ID, txn.NetAmount(), "system")
	require.ErrorIs(t, err, domain.ErrAlreadySettled)
	assert.True(t, amount("490.00").Equal(testutil.GetBalance(t, db, user.ID)))
	assert.Equal(t, 1, testutil.CountBalanceEntries(t, db, txn.ID))
	assert.Equal(t, 1, testutil.CountTransactionEvents(t, db, txn.ID, domain.TransactionEventTypeSettled))
	assert.Equal(t, []domain.TransactionEventType{domain.TransactionEventTypeSettled}, pub.types())
}

func TestSettle_OutcomeMetrics(t *testing.T) {
	db := testutil.SetupTestDB(t)
	m := &recordingMetrics{}
	svc := setupLedgerWithMetrics(t, db, events.NopPublisher{}, m)
	ctx := context.Background()

	user, _ := testutil.SeedUser(t, db, domain.AccountKindCustomer, "0")
	settledTxn := testutil.SeedTransaction(t, db, user.ID, domain.TransactionTypeTopup, "50.00", "0")
	failedTxn := testutil.SeedTransaction(t, db, user.ID, domain.TransactionTypeTopup, "20.00", "0")

	_, err := svc.Settle(ctx, settledTxn, &user.ID, settledTxn.Amount, "system")
	require.NoError(t, err)
	_, err = svc.Settle(ctx, settledTxn, &user.ID, settledTxn.Amount, "system")
	require.ErrorIs(t, err, domain.ErrAlreadySettled)

	_, err = svc.MarkFailed(ctx, failedTxn, "declined", false, "system")
	require.NoError(t, err)
	_, err = svc.Settle(ctx, failedTxn, &user.ID, failedTxn.Amount, "system")
	require.ErrorIs(t, err, domain.ErrTransactionNotPending)

	assert.Equal(t, []string{
		"topup:settled",
		"topup:already_settled",
		"topup:failed",
		"topup:error",
	}, m.outcomes)
}

func TestSettle_CreditAboveBalanceLimitRollsBack(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db, events.NopPublisher{})
	ctx := context.Background()

	user, _ := testutil.SeedUser(t, db, domain.AccountKindVendor, "9999999990.00")
	txn := testutil.SeedTransaction(t, db, user.ID, domain.TransactionTypeTopup, "500.00", "0")

	_, err := svc.Settle(ctx, txn, &user.ID, txn.Amount, "system")
	require.ErrorIs(t, err, domain.ErrBalanceLimitExceeded)
	assert.True(t, amount("9999999990.00").Equal(testutil.GetBalance(t, db, user.ID)))
	assert.Equal(t, 0, testutil.CountBalanceEntries(t, db, txn.ID))

	stored, err := svc.GetByReference(ctx, txn.Reference)
	require.NoError(t, err)
	assert.False(t, stored.Completed)
}

func TestRecordFailed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	pub := &recordingPublisher{}
	svc := setupLedger(t, db, pub)
	ctx := context.Background()

	user, _ := testutil.SeedUser(t, db, domain.AccountKindCustomer, "5.00")
	failed, err := svc.RecordFailed(ctx, ledger.CreateRequest{
		SenderID: user.ID, Amount: amount("40.00"), Type: domain.TransactionTypeWithdraw,
	}, domain.ErrInsufficientFunds.Error())
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusFailed, failed.Status)
	require.NotNil(t, failed.FailureReason)
	assert.Equal(t, domain.ErrInsufficientFunds.Error(), *failed.FailureReason)
	assert.False(t, failed.Completed)
	assert.Equal(t, 0, testutil.CountBalanceEntries(t, db, failed.ID))
	assert.True(t, amount("5.00").Equal(testutil.GetBalance(t, db, user.ID)))
}

func TestSettle_Concurrent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db, events.NopPublisher{})
	ctx := context.Background()

	user, _ := testutil.SeedUser(t, db, domain.AccountKindVendor, "0")
	txn := testutil.SeedTransaction(t, db, user.ID, domain.TransactionTypeTopup, "100.00", "0")

	const workers = 8
	var (
		wg      sync.WaitGroup
		settled atomic.Int32
		already atomic.Int32
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Settle(ctx, txn, &user.ID, txn.Amount, "system")
			switch {
			case err == nil:
				settled.Add(1)
			case errors.Is(err, domain.ErrAlreadySettled):
				already.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), settled.Load())
	assert.Equal(t, int32(workers-1), already.Load())
	assert.True(t, amount("100.00").Equal(testutil.GetBalance(t, db, user.ID)))
}

func TestSettle_NoBeneficiary(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db, events.NopPublisher{})

	user, _ := testutil.SeedUser(t, db, domain.AccountKindCustomer, "25.00")
	txn := testutil.SeedTransaction(t, db, user.ID, domain.TransactionTypeWithdraw, "25.00", "0")

	settled, err := svc.Settle(context.Background(), txn, nil, decimal.Zero, "gateway")
	require.NoError(t, err)
	assert.True(t, settled.Completed)
	assert.Equal(t, 0, testutil.CountBalanceEntries(t, db, txn.ID))
	assert.True(t, amount("25.00").Equal(testutil.GetBalance(t, db, user.ID)))
}

func TestMarkFailed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db, failingPublisher{})
	ctx := context.Background()

	user, _ := testutil.SeedUser(t, db, domain.AccountKindCustomer, "60.00")
	txn := testutil.SeedTransaction(t, db, user.ID, domain.TransactionTypeWithdraw, "40.00", "0")

	failed, err := svc.MarkFailed(ctx, txn, "bank rejected payout", true, "gateway")
	require.NoError(t, err)
	assert.True(t, failed.IsFailed())
	require.NotNil(t, failed.FailureReason)
	assert.Equal(t, "bank rejected payout", *failed.FailureReason)
	assert.True(t, amount("100.00").Equal(testutil.GetBalance(t, db, user.ID)))
	assert.Equal(t, 1, testutil.CountTransactionEvents(t, db, txn.ID, domain.TransactionEventTypeRefunded))

	_, err = svc.MarkFailed(ctx, txn, "again", true, "gateway")
	require.ErrorIs(t, err, domain.ErrTransactionNotPending)
	assert.True(t, amount("100.00").Equal(testutil.GetBalance(t, db, user.ID)))

	_, err = svc.Settle(ctx, txn, nil, decimal.Zero, "gateway")
	require.ErrorIs(t, err, domain.ErrTransactionNotPending)
}

func TestMarkPendingAndRecordCharge(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db, events.NopPublisher{})
	ctx := context.Background()

	user, _ := testutil.SeedUser(t, db, domain.AccountKindCustomer, "0")
	txn := testutil.SeedTransaction(t, db, user.ID, domain.TransactionTypeTopup, "500.00", "0")

	updated, err := svc.RecordCharge(ctx, txn, "pending", amount("10.00"), "gateway")
	require.NoError(t, err)
	assert.True(t, amount("10.00").Equal(updated.Fee))

	updated, err = svc.MarkPending(ctx, txn, "processing")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatus("processing"), updated.Status)
	assert.False(t, updated.Completed)

	_, err = svc.Settle(ctx, txn, &user.ID, updated.NetAmount(), "system")
	require.NoError(t, err)

	_, err = svc.MarkPending(ctx, txn, "pending")
	require.ErrorIs(t, err, domain.ErrAlreadySettled)
}

func TestHistory(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db, events.NopPublisher{})
	ctx := context.Background()

	user, _ := testutil.SeedUser(t, db, domain.AccountKindCustomer, "0")
	other, _ := testutil.SeedUser(t, db, domain.AccountKindCustomer, "0")

	for range 12 {
		testutil.SeedTransaction(t, db, user.ID, domain.TransactionTypeTopup, "1.00", "0")
	}
	withdrawal := testutil.SeedTransaction(t, db, user.ID, domain.TransactionTypeWithdraw, "1.00", "0")
	testutil.SeedTransaction(t, db, other.ID, domain.TransactionTypeTopup, "1.00", "0")

	page, err := svc.History(ctx, user.ID, 1, "")
	require.NoError(t, err)
	assert.Len(t, page.Transactions, ledger.PageSize)
	assert.Equal(t, 13, page.Total)

	page, err = svc.History(ctx, user.ID, 2, "")
	require.NoError(t, err)
	assert.Len(t, page.Transactions, 3)

	page, err = svc.History(ctx, user.ID, 0, "withdraw")
	require.NoError(t, err)
	require.Len(t, page.Transactions, 1)
	assert.Equal(t, withdrawal.ID, page.Transactions[0].ID)
	assert.Equal(t, 1, page.Page)
}

func TestGetForUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db, events.NopPublisher{})
	ctx := context.Background()

	user, _ := testutil.SeedUser(t, db, domain.AccountKindCustomer, "0")
	txn := testutil.SeedTransaction(t, db, user.ID, domain.TransactionTypeTopup, "1.00", "0")

	_, err := svc.GetForUser(ctx, txn.Reference, user.ID)
	require.NoError(t, err)

	_, err = svc.GetForUser(ctx, txn.Reference, uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetForUser(ctx, "missing", user.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReserve(t *testing.T) {
	db := testutil.SetupTestDB(t)
	pub := &recordingPublisher{}
	svc := setupLedger(t, db, pub)
	ctx := context.Background()

	user, _ := testutil.SeedUser(t, db, domain.AccountKindCustomer, "100.00")

	txn, err := svc.Reserve(ctx, ledger.CreateRequest{
		SenderID: user.ID, Amount: amount("40.00"), Type: domain.TransactionTypeWithdraw,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusPending, txn.Status)
	assert.True(t, amount("60.00").Equal(testutil.GetBalance(t, db, user.ID)))
	assert.Equal(t, 1, testutil.CountBalanceEntries(t, db, txn.ID))
	assert.Equal(t, []domain.TransactionEventType{domain.TransactionEventTypeCreated}, pub.types())

	_, err = svc.Reserve(ctx, ledger.CreateRequest{
		SenderID: user.ID, Amount: amount("60.01"), Type: domain.TransactionTypeWithdraw,
	}, nil)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.True(t, amount("60.00").Equal(testutil.GetBalance(t, db, user.ID)))

	hookErr := errors.New("encode failed")
	var hooked *domain.Transaction
	_, err = svc.Reserve(ctx, ledger.CreateRequest{
		SenderID: user.ID, Amount: amount("10.00"), Type: domain.TransactionTypeTransfer,
	}, func(_ context.Context, _ *sql.Tx, t *domain.Transaction) error {
		hooked = t
		return hookErr
	})
	require.ErrorIs(t, err, hookErr)
	require.NotNil(t, hooked)
	assert.True(t, amount("60.00").Equal(testutil.GetBalance(t, db, user.ID)))

	_, err = svc.GetByReference(ctx, hooked.Reference)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
