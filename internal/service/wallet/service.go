// Package wallet is the account store: it owns wallet accounts, their balances and
// transaction PINs.
package wallet

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/campus-wallet/internal/domain"
	"github.com/josh-kwaku/campus-wallet/internal/logging"
	"github.com/josh-kwaku/campus-wallet/internal/reference"
)

const tagAttempts = 10

var pinPattern = regexp.MustCompile(`^[0-9]{4,6}$`)

type userRepo interface {
	Create(ctx context.Context, tx *sql.Tx, u *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type accountRepo interface {
	Create(ctx context.Context, tx *sql.Tx, a *domain.Account) (bool, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	Credit(ctx context.Context, tx *sql.Tx, userID uuid.UUID, amount decimal.Decimal) (*domain.BalanceChange, error)
	Debit(ctx context.Context, tx *sql.Tx, userID uuid.UUID, amount decimal.Decimal) (*domain.BalanceChange, error)
	SetPINHash(ctx context.Context, userID uuid.UUID, hash string) error
}

type entryRepo interface {
	Create(ctx context.Context, tx *sql.Tx, e *domain.BalanceEntry) error
}

type Service struct {
	users    userRepo
	accounts accountRepo
	entries  entryRepo
	db       *sql.DB
	now      func() time.Time
}

func NewService(users userRepo, accounts accountRepo, entries entryRepo, db *sql.DB) *Service {
	return &Service{
		users:    users,
		accounts: accounts,
		entries:  entries,
		db:       db,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type RegisterRequest struct {
	Phone    string
	Email    string
	Name     string
	Password string
	Kind     domain.AccountKind
}

// Register creates a user and its wallet account in one database transaction.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*domain.User, *domain.Account, error) {
	log := logging.FromContext(ctx)

	if !req.Kind.IsValid() {
		return nil, nil, fmt.Errorf("Register: %w", domain.ErrInvalidRole)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("Register: hash password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.New(),
		Phone:        strings.TrimSpace(req.Phone),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: string(hash),
		IsVendor:     req.Kind == domain.AccountKindVendor,
		IsCustomer:   req.Kind == domain.AccountKindCustomer,
		CreatedAt:    s.now(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("Register: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.users.Create(ctx, tx, user); err != nil {
		return nil, nil, fmt.Errorf("Register: %w", err)
	}

	account, err := s.CreateAccount(ctx, tx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("Register: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("Register: commit: %w", err)
	}

	log.Info("user registered",
		"user_id", user.ID,
		"account_id", account.ID,
		"account_tag", account.Tag,
		"kind", account.Kind,
	)
	return user, account, nil
}

// CreateAccount is the account factory: it builds the wallet variant that matches
// the user's role and allocates a unique tag for it.
func (s *Service) CreateAccount(ctx context.Context, tx *sql.Tx, user *domain.User) (*domain.Account, error) {
	kind, err := user.AccountKind()
	if err != nil {
		return nil, fmt.Errorf("CreateAccount: %w", err)
	}

	now := s.now()
	account := &domain.Account{
		ID:        uuid.New(),
		UserID:    user.ID,
		Kind:      kind,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tags := reference.NewAllocator(tagGenerator(kind, now), tagAttempts)
	tag, err := tags.Allocate(ctx, func(ctx context.Context, candidate string) (bool, error) {
		account.Tag = candidate
		return s.accounts.Create(ctx, tx, account)
	})
	if err != nil {
		return nil, fmt.Errorf("CreateAccount: %w", err)
	}
	account.Tag = tag

	return account, nil
}

func (s *Service) GetAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	account, err := s.accounts.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return account, nil
}

// Deposit credits the user's balance and records the entry against transactionID.
func (s *Service) Deposit(ctx context.Context, tx *sql.Tx, userID, transactionID uuid.UUID, amount decimal.Decimal) (*domain.BalanceChange, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, fmt.Errorf("Deposit: %w", err)
	}

	change, err := s.accounts.Credit(ctx, tx, userID, amount)
	if err != nil {
		return nil, fmt.Errorf("Deposit: %w", err)
	}
	if err := s.writeEntry(ctx, tx, transactionID, domain.EntryTypeCredit, amount, change); err != nil {
		return nil, fmt.Errorf("Deposit: %w", err)
	}
	return change, nil
}

// Withdraw debits the user's balance if it covers amount, otherwise it returns
// domain.ErrInsufficientFunds and leaves the balance untouched.
func (s *Service) Withdraw(ctx context.Context, tx *sql.Tx, userID, transactionID uuid.UUID, amount decimal.Decimal) (*domain.BalanceChange, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, fmt.Errorf("Withdraw: %w", err)
	}

	change, err := s.accounts.Debit(ctx, tx, userID, amount)
	if err != nil {
		return nil, fmt.Errorf("Withdraw: %w", err)
	}
	if err := s.writeEntry(ctx, tx, transactionID, domain.EntryTypeDebit, amount, change); err != nil {
		return nil, fmt.Errorf("Withdraw: %w", err)
	}
	return change, nil
}

func (s *Service) SetPIN(ctx context.Context, userID uuid.UUID, pin string) error {
	if !pinPattern.MatchString(pin) {
		return fmt.Errorf("SetPIN: %w", domain.ErrInvalidPINFormat)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("SetPIN: hash: %w", err)
	}
	if err := s.accounts.SetPINHash(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("SetPIN: %w", err)
	}

	logging.FromContext(ctx).Info("transaction pin updated", "user_id", userID)
	return nil
}

func (s *Service) VerifyPIN(ctx context.Context, userID uuid.UUID, pin string) error {
	account, err := s.accounts.GetByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("VerifyPIN: %w", err)
	}
	if !account.HasPIN() {
		return fmt.Errorf("VerifyPIN: %w", domain.ErrPINNotSet)
	}

	err = bcrypt.CompareHashAndPassword([]byte(*account.PINHash), []byte(pin))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return fmt.Errorf("VerifyPIN: %w", domain.ErrIncorrectPIN)
	}
	if err != nil {
		return fmt.Errorf("VerifyPIN: %w", err)
	}
	return nil
}

func (s *Service) writeEntry(ctx context.Context, tx *sql.Tx, transactionID uuid.UUID, entryType domain.EntryType, amount decimal.Decimal, change *domain.BalanceChange) error {
	entry := &domain.BalanceEntry{
		ID:            uuid.New(),
		TransactionID: transactionID,
		AccountID:     change.AccountID,
		EntryType:     entryType,
		Amount:        amount,
		BalanceBefore: change.Before,
		BalanceAfter:  change.After,
		CreatedAt:     s.now(),
	}
	if err := s.entries.Create(ctx, tx, entry); err != nil {
		return fmt.Errorf("writeEntry: %w", err)
	}
	return nil
}

// tagGenerator yields tags like CUST2404217: prefix, two-digit year, five digits.
func tagGenerator(kind domain.AccountKind, now time.Time) reference.Generator {
	return func() (string, error) {
		n, err := rand.Int(rand.Reader, big.NewInt(100000))
		if err != nil {
			return "", fmt.Errorf("tagGenerator: %w", err)
		}
		return fmt.Sprintf("%s%02d%05d", kind.TagPrefix(), now.Year()%100, n.Int64()), nil
	}
}
