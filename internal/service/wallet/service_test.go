package wallet_test

import (
	"context"
	"database/sql"
	"math/rand/v2"
	"regexp"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/campus-wallet/internal/domain"
	"github.com/josh-kwaku/campus-wallet/internal/repository"
	"github.com/josh-kwaku/campus-wallet/internal/service/wallet"
	"github.com/josh-kwaku/campus-wallet/internal/testutil"
)

func setupWalletService(t *testing.T, db *sql.DB) *wallet.Service {
	t.Helper()
	return wallet.NewService(
		repository.NewUserRepository(db),
		repository.NewAccountRepository(db),
		repository.NewBalanceEntryRepository(db),
		db,
	)
}

func TestRegister_CreatesMatchingAccount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupWalletService(t, db)
	ctx := context.Background()

	tests := []struct {
		name   string
		kind   domain.AccountKind
		phone  string
		email  string
		prefix string
	}{
		{"vendor", domain.AccountKindVendor, "08010000001", "vendor@campus.test", "VEND"},
		{"customer", domain.AccountKindCustomer, "08010000002", "customer@campus.test", "CUST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, account, err := svc.Register(ctx, wallet.RegisterRequest{
				Phone:    tt.phone,
				Email:    tt.email,
				Name:     "Ada",
				Password: "password123",
				Kind:     tt.kind,
			})
			require.NoError(t, err)
			assert.Equal(t, user.ID, account.UserID)
			assert.Equal(t, tt.kind, account.Kind)
			assert.True(t, account.Balance.IsZero())
			assert.Regexp(t, regexp.MustCompile(`^`+tt.prefix+`[0-9]{7}$`), account.Tag)

			stored, err := svc.GetAccount(ctx, user.ID)
			require.NoError(t, err)
			assert.Equal(t, account.Tag, stored.Tag)
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupWalletService(t, db)
	ctx := context.Background()

	req := wallet.RegisterRequest{
		Phone: "08010000003", Email: "dup@campus.test", Password: "password123", Kind: domain.AccountKindCustomer,
	}
	_, _, err := svc.Register(ctx, req)
	require.NoError(t, err)

	req.Phone = "08010000004"
	_, _, err = svc.Register(ctx, req)
	require.ErrorIs(t, err, domain.ErrDuplicateUser)
}

func TestRegister_InvalidKind(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupWalletService(t, db)

	_, _, err := svc.Register(context.Background(), wallet.RegisterRequest{
		Phone: "08010000005", Email: "x@campus.test", Password: "password123", Kind: "admin",
	})
	require.ErrorIs(t, err, domain.ErrInvalidRole)
}

func TestDepositWithdraw(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupWalletService(t, db)
	ctx := context.Background()

	user, _ := testutil.SeedUser(t, db, domain.AccountKindCustomer, "10.00")
	txn := testutil.SeedTransaction(t, db, user.ID, domain.TransactionTypeOther, "40.00", "0")

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = svc.Withdraw(ctx, tx, user.ID, txn.ID, decimal.RequireFromString("40.00"))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	require.NoError(t, tx.Rollback())
	assert.True(t, decimal.RequireFromString("10.00").Equal(testutil.GetBalance(t, db, user.ID)))

	tx, err = db.BeginTx(ctx, nil)
	require.NoError(t, err)
	change, err := svc.Deposit(ctx, tx, user.ID, txn.ID, decimal.RequireFromString("90.00"))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("100.00").Equal(change.After))

	change, err = svc.Withdraw(ctx, tx, user.ID, txn.ID, decimal.RequireFromString("40.00"))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("100.00").Equal(change.Before))
	require.NoError(t, tx.Commit())

	assert.True(t, decimal.RequireFromString("60.00").Equal(testutil.GetBalance(t, db, user.ID)))
	assert.Equal(t, 2, testutil.CountBalanceEntries(t, db, txn.ID))
}

func TestBalanceNeverNegative_RandomSequence(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupWalletService(t, db)
	ctx := context.Background()

	user, _ := testutil.SeedUser(t, db, domain.AccountKindVendor, "0")
	txn := testutil.SeedTransaction(t, db, user.ID, domain.TransactionTypeOther, "1.00", "0")
	rng := rand.New(rand.NewPCG(7, 42))

	expected := decimal.Zero
	for i := 0; i < 200; i++ {
		amount := decimal.New(int64(rng.IntN(5000)+1), -domain.AmountScale)
		deposit := rng.IntN(3) == 0

		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)

		if deposit {
			_, err = svc.Deposit(ctx, tx, user.ID, txn.ID, amount)
			require.NoError(t, err)
			expected = expected.Add(amount)
		} else {
			_, err = svc.Withdraw(ctx, tx, user.ID, txn.ID, amount)
			if amount.GreaterThan(expected) {
				require.ErrorIs(t, err, domain.ErrInsufficientFunds, "step %d", i)
			} else {
				require.NoError(t, err, "step %d", i)
				expected = expected.Sub(amount)
			}
		}
		require.NoError(t, tx.Commit())

		balance := testutil.GetBalance(t, db, user.ID)
		require.False(t, balance.IsNegative(), "step %d", i)
		require.True(t, expected.Equal(balance), "step %d: want %s got %s", i, expected, balance)
	}
}

func TestWithdraw_UnknownAccount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupWalletService(t, db)
	ctx := context.Background()

	user, _ := testutil.SeedUser(t, db, domain.AccountKindCustomer, "10.00")
	txn := testutil.SeedTransaction(t, db, user.ID, domain.TransactionTypeOther, "1.00", "0")

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = svc.Withdraw(ctx, tx, uuid.New(), txn.ID, decimal.RequireFromString("1.00"))
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestWithdraw_ConcurrentOverdraft(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupWalletService(t, db)
	ctx := context.Background()

	user, _ := testutil.SeedUser(t, db, domain.AccountKindCustomer, "150.00")
	amount := decimal.RequireFromString("100.00")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	txns := []*domain.Transaction{
		testutil.SeedTransaction(t, db, user.ID, domain.TransactionTypeOther, "100.00", "0"),
		testutil.SeedTransaction(t, db, user.ID, domain.TransactionTypeOther, "100.00", "0"),
	}
	for _, txn := range txns {
		wg.Add(1)
		go func() {
			defer wg.Done()

			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				t.Errorf("begin: %v", err)
				return
			}
			defer tx.Rollback()

			_, err = svc.Withdraw(ctx, tx, user.ID, txn.ID, amount)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				if err := tx.Commit(); err != nil {
					t.Errorf("commit: %v", err)
					return
				}
				succeeded++
			case assert.ErrorIs(t, err, domain.ErrInsufficientFunds):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)
	assert.True(t, decimal.RequireFromString("50.00").Equal(testutil.GetBalance(t, db, user.ID)))
}

func TestPIN(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupWalletService(t, db)
	ctx := context.Background()

	user, account, err := svc.Register(ctx, wallet.RegisterRequest{
		Phone: "08010000006", Email: "pin@campus.test", Password: "password123", Kind: domain.AccountKindVendor,
	})
	require.NoError(t, err)
	require.False(t, account.HasPIN())

	require.ErrorIs(t, svc.VerifyPIN(ctx, user.ID, "1234"), domain.ErrPINNotSet)

	tests := []struct {
		name    string
		pin     string
		wantErr error
	}{
		{"too short", "123", domain.ErrInvalidPINFormat},
		{"too long", "1234567", domain.ErrInvalidPINFormat},
		{"not digits", "12a4", domain.ErrInvalidPINFormat},
		{"four digits", "4321", nil},
		{"six digits", "654321", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.SetPIN(ctx, user.ID, tt.pin)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NoError(t, svc.VerifyPIN(ctx, user.ID, tt.pin))
			require.ErrorIs(t, svc.VerifyPIN(ctx, user.ID, "000000"), domain.ErrIncorrectPIN)
		})
	}
}
