package testutil

import (
	"database/sql"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/campus-wallet/internal/domain"
)

const TestPIN = "1234"

// SeedUser inserts a user with the given role and a wallet account holding balance.
// The account PIN is set to TestPIN.
func SeedUser(t *testing.T, db *sql.DB, kind domain.AccountKind, balance string) (*domain.User, *domain.Account) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	pinHash, err := bcrypt.GenerateFromPassword([]byte(TestPIN), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash pin: %v", err)
	}

	now := time.Now().UTC()
	suffix := rand.IntN(100000000)
	u := &domain.User{
		ID:           uuid.New(),
		Phone:        fmt.Sprintf("080%08d", suffix),
		Email:        fmt.Sprintf("user%d@campus.test", suffix),
		Name:         "Test User",
		PasswordHash: string(hash),
		IsVendor:     kind == domain.AccountKindVendor,
		IsCustomer:   kind == domain.AccountKindCustomer,
		CreatedAt:    now,
	}
	_, err = db.Exec(
		`INSERT INTO users (id, phone, email, name, password_hash, is_vendor, is_customer, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Phone, u.Email, u.Name, u.PasswordHash, u.IsVendor, u.IsCustomer, u.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed user %s: %v", u.Email, err)
	}

	pin := string(pinHash)
	a := &domain.Account{
		ID:        uuid.New(),
		UserID:    u.ID,
		Kind:      kind,
		Tag:       fmt.Sprintf("%s%08d", kind.TagPrefix(), suffix),
		Balance:   decimal.RequireFromString(balance),
		PINHash:   &pin,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = db.Exec(
		`INSERT INTO accounts (id, user_id, kind, tag, balance, pin_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.UserID, a.Kind, a.Tag, a.Balance, a.PINHash, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed account for %s: %v", u.ID, err)
	}
	return u, a
}

// SeedTransaction inserts a pending transaction owned by senderID.
func SeedTransaction(t *testing.T, db *sql.DB, senderID uuid.UUID, txnType domain.TransactionType, amount, fee string) *domain.Transaction {
	t.Helper()

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:        uuid.New(),
		Reference: uuid.NewString(),
		SenderID:  senderID,
		Amount:    decimal.RequireFromString(amount),
		Fee:       decimal.RequireFromString(fee),
		Type:      txnType,
		Status:    domain.TransactionStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := db.Exec(
		`INSERT INTO transactions (id, reference, sender_id, amount, fee, type, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		txn.ID, txn.Reference, txn.SenderID, txn.Amount, txn.Fee, txn.Type, txn.Status, txn.CreatedAt, txn.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	return txn
}

func GetBalance(t *testing.T, db *sql.DB, userID uuid.UUID) decimal.Decimal {
	t.Helper()

	var balance decimal.Decimal
	err := db.QueryRow(`SELECT balance FROM accounts WHERE user_id = $1`, userID).Scan(&balance)
	if err != nil {
		t.Fatalf("get balance for %s: %v", userID, err)
	}
	return balance
}

func CountBalanceEntries(t *testing.T, db *sql.DB, transactionID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM balance_entries WHERE transaction_id = $1`, transactionID).Scan(&count)
	if err != nil {
		t.Fatalf("count balance entries for %s: %v", transactionID, err)
	}
	return count
}

func CountTransactionEvents(t *testing.T, db *sql.DB, transactionID uuid.UUID, eventType domain.TransactionEventType) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM transaction_events WHERE transaction_id = $1 AND event_type = $2`,
		transactionID, eventType,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count events for %s: %v", transactionID, err)
	}
	return count
}
