package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken       = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken       = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidCredentials = &AppError{http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid phone or password"}
	ErrInvalidRequest     = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed   = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound   = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError      = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInvalidAmount          = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero and at most 9999999999.99"}
	ErrInvalidRole            = &AppError{http.StatusBadRequest, "INVALID_ROLE", "User must be exactly one of vendor or customer"}
	ErrInvalidChargeKind      = &AppError{http.StatusBadRequest, "INVALID_CHARGE_KIND", "Charge kind must be ussd, bank_transfer or direct_debit"}
	ErrInvalidPINFormat       = &AppError{http.StatusBadRequest, "INVALID_PIN_FORMAT", "PIN must be 4 to 6 digits"}
	ErrInsufficientFunds      = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Insufficient funds"}
	ErrBalanceLimitExceeded   = &AppError{http.StatusUnprocessableEntity, "BALANCE_LIMIT_EXCEEDED", "Balance would exceed the account limit"}
	ErrSelfTransfer           = &AppError{http.StatusUnprocessableEntity, "SELF_TRANSFER_NOT_ALLOWED", "Cannot transfer to the same account"}
	ErrRecipientNotFound      = &AppError{http.StatusNotFound, "RECIPIENT_NOT_FOUND", "Recipient not found"}
	ErrAccountNotFound        = &AppError{http.StatusNotFound, "ACCOUNT_NOT_FOUND", "Account not found"}
	ErrDuplicateUser          = &AppError{http.StatusConflict, "USER_ALREADY_EXISTS", "A user with this phone or email already exists"}
	ErrAlreadyVerified        = &AppError{http.StatusConflict, "ALREADY_VERIFIED", "Transaction already verified"}
	ErrAlreadyAuthorized      = &AppError{http.StatusConflict, "ALREADY_AUTHORIZED", "Transaction already authorized"}
	ErrPaymentCodeRedeemed    = &AppError{http.StatusConflict, "PAYMENT_CODE_REDEEMED", "Payment code already redeemed"}
	ErrTransactionNotPending  = &AppError{http.StatusConflict, "TRANSACTION_NOT_PENDING", "Transaction is not pending"}
	ErrInvalidTxnType         = &AppError{http.StatusUnprocessableEntity, "INVALID_TRANSACTION_TYPE", "Operation not supported for this transaction type"}
	ErrNotTransactionSender   = &AppError{http.StatusForbidden, "NOT_TRANSACTION_SENDER", "Only the sender can authorize this transaction"}
	ErrPINNotSet              = &AppError{http.StatusUnprocessableEntity, "PIN_NOT_SET", "Set a transaction PIN first"}
	ErrIncorrectPIN           = &AppError{http.StatusUnauthorized, "INCORRECT_PIN", "Incorrect transaction PIN"}
	ErrGatewayUnavailable     = &AppError{http.StatusServiceUnavailable, "GATEWAY_UNAVAILABLE", "Payment gateway unavailable, retry later"}
	ErrVerificationInProgress = &AppError{http.StatusServiceUnavailable, "VERIFICATION_IN_PROGRESS", "Verification already in progress, retry later"}
	ErrGatewayRejected        = &AppError{http.StatusBadGateway, "GATEWAY_REJECTED", "Payment gateway rejected the transaction"}
	ErrAmountMismatch         = &AppError{http.StatusBadGateway, "AMOUNT_MISMATCH", "Gateway amount does not match the transaction"}
	ErrReferenceExhausted     = &AppError{http.StatusServiceUnavailable, "REFERENCE_EXHAUSTED", "Could not allocate a reference, retry"}

	ErrMissingIdempotencyKey = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
	ErrRequestInProgress     = &AppError{http.StatusConflict, "REQUEST_IN_PROGRESS", "A request with this idempotency key is still being processed"}
	ErrInvalidSignature      = &AppError{http.StatusUnauthorized, "INVALID_SIGNATURE", "Invalid webhook signature"}
)
