package domain

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidAmount          = errors.New("amount must be a positive value within the account limit")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrInvalidRole            = errors.New("user must be exactly one of vendor or customer")
	ErrInvalidChargeKind      = errors.New("invalid charge kind")
	ErrInvalidPINFormat       = errors.New("pin must be 4 to 6 digits")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrBalanceLimitExceeded   = errors.New("balance would exceed the account limit")
	ErrSelfTransfer           = errors.New("cannot transfer to same account")
	ErrRecipientNotFound      = errors.New("recipient not found")
	ErrAccountNotFound        = errors.New("account not found")
	ErrDuplicateUser          = errors.New("user already exists")
	ErrAlreadySettled         = errors.New("transaction already settled")
	ErrAlreadyAuthorized      = errors.New("transaction already authorized")
	ErrTransactionNotPending  = errors.New("transaction is not pending")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrNotTransactionSender   = errors.New("caller is not the transaction sender")
	ErrPINNotSet              = errors.New("transaction pin not set")
	ErrIncorrectPIN           = errors.New("incorrect transaction pin")
	ErrPaymentCodeRedeemed    = errors.New("payment code already redeemed")
	ErrReferenceExhausted     = errors.New("could not allocate a unique reference")
	ErrGatewayUnavailable     = errors.New("payment gateway unavailable")
	ErrGatewayRejected        = errors.New("payment gateway rejected the transaction")
	ErrGatewayNotFound        = errors.New("payment gateway has no record of the transaction")
	ErrGatewayPending         = errors.New("payment gateway has not confirmed the transaction")
	ErrAmountMismatch         = errors.New("gateway amount does not match transaction")
	ErrVerificationInProgress = errors.New("verification already in progress")
)
