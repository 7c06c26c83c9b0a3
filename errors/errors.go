package errors

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorCode string

const (
	CodeUnauthorized            ErrorCode = "AUTH_001"
	CodeTokenExpired            ErrorCode = "AUTH_002"
	CodeTokenInvalid            ErrorCode = "AUTH_003"
	CodeInsufficientPermissions ErrorCode = "AUTH_004"

	CodeInvalidRequest       ErrorCode = "VALIDATION_001"
	CodeMissingRequiredField ErrorCode = "VALIDATION_002"
	CodeInvalidFieldFormat   ErrorCode = "VALIDATION_003"
	CodeInvalidAmount        ErrorCode = "VALIDATION_004"
	CodeAmountMismatch       ErrorCode = "VALIDATION_005"
	CodeInvalidEmail         ErrorCode = "VALIDATION_006"
	CodeInvalidUUID          ErrorCode = "VALIDATION_007"
	CodeInvalidRange         ErrorCode = "VALIDATION_008"
	CodeSelfTransfer         ErrorCode = "VALIDATION_009"

	CodeNotFound        ErrorCode = "NOT_FOUND_001"
	CodeUserNotFound    ErrorCode = "NOT_FOUND_002"
	CodeExpenseNotFound ErrorCode = "NOT_FOUND_004"
	CodePayoutNotFound  ErrorCode = "NOT_FOUND_006"
	CodePaymentNotFound ErrorCode = "NOT_FOUND_007"

	CodeConflict       ErrorCode = "CONFLICT_001"
	CodeDuplicateEntry ErrorCode = "CONFLICT_002"

	CodeBusinessError        ErrorCode = "BUSINESS_001"
	CodeExpenseNotOpen       ErrorCode = "BUSINESS_005"
	CodeInsufficientFunds    ErrorCode = "BUSINESS_006"
	CodeInvalidTransition    ErrorCode = "BUSINESS_007"
	CodeTransitionOutOfOrder ErrorCode = "BUSINESS_008"

	CodeDatabaseError       ErrorCode = "DATABASE_001"
	CodeDatabaseConnection  ErrorCode = "DATABASE_002"
	CodeDatabaseQuery       ErrorCode = "DATABASE_003"
	CodeDatabaseTransaction ErrorCode = "DATABASE_004"

	CodeExternalServiceError ErrorCode = "EXTERNAL_001"
	CodeAIServiceError       ErrorCode = "EXTERNAL_003"
	CodeProviderError        ErrorCode = "EXTERNAL_004"

	CodeInternalError        ErrorCode = "INTERNAL_001"
	CodeConsistencyViolation ErrorCode = "INTERNAL_002"
)

type ErrorType int

const (
	ErrorTypeUnauthorized ErrorType = iota
	ErrorTypeForbidden
	ErrorTypeBadRequest
	ErrorTypeNotFound
	ErrorTypeConflict
	ErrorTypeUnprocessable
	ErrorTypeInternal
	ErrorTypeServiceUnavailable
)

type AppError struct {
	Type      ErrorType `json:"-"`
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Retryable bool      `json:"retryable,omitempty"`
	Err       error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) UserMessage() string {
	return e.Message
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeUnauthorized,
		Code:    CodeUnauthorized,
		Message: message,
	}
}

func TokenExpired() *AppError {
	return &AppError{
		Type:    ErrorTypeUnauthorized,
		Code:    CodeTokenExpired,
		Message: "Your session has expired. Please log in again.",
	}
}

func TokenInvalid() *AppError {
	return &AppError{
		Type:    ErrorTypeUnauthorized,
		Code:    CodeTokenInvalid,
		Message: "Invalid authentication token.",
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeForbidden,
		Code:    CodeInsufficientPermissions,
		Message: message,
	}
}

func InvalidRequest(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeBadRequest,
		Code:    CodeInvalidRequest,
		Message: message,
	}
}

func InvalidRequestWithDetails(message, details string) *AppError {
	return &AppError{
		Type:    ErrorTypeBadRequest,
		Code:    CodeInvalidRequest,
		Message: message,
		Details: details,
	}
}

func MissingRequiredField(fieldName string) *AppError {
	return &AppError{
		Type:    ErrorTypeBadRequest,
		Code:    CodeMissingRequiredField,
		Message: fmt.Sprintf("%s is required.", fieldName),
	}
}

func InvalidFieldFormat(fieldName, expectedFormat string) *AppError {
	return &AppError{
		Type:    ErrorTypeBadRequest,
		Code:    CodeInvalidFieldFormat,
		Message: fmt.Sprintf("Invalid format for %s.", fieldName),
		Details: fmt.Sprintf("Expected format: %s", expectedFormat),
	}
}

func InvalidUUID(fieldName string) *AppError {
	return &AppError{
		Type:    ErrorTypeBadRequest,
		Code:    CodeInvalidUUID,
		Message: fmt.Sprintf("%s must be a valid UUID.", fieldName),
	}
}

func InvalidAmount(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeBadRequest,
		Code:    CodeInvalidAmount,
		Message: message,
	}
}

// SharesExceedAmount is returned when explicit shares add up to more than the
// expense total. Amounts are in cents.
func SharesExceedAmount(sharesTotal, amount int64) *AppError {
	return &AppError{
		Type:    ErrorTypeBadRequest,
		Code:    CodeAmountMismatch,
		Message: fmt.Sprintf("Sum of shares (%d) exceeds the expense amount (%d).", sharesTotal, amount),
	}
}

// InvalidRange is the validation error for a date range whose end precedes its start.
func InvalidRange(from, to string) *AppError {
	return &AppError{
		Type:    ErrorTypeBadRequest,
		Code:    CodeInvalidRange,
		Message: "The end of the date range must not be before its start.",
		Details: fmt.Sprintf("from=%s to=%s", from, to),
	}
}

func SelfTransfer() *AppError {
	return &AppError{
		Type:    ErrorTypeBadRequest,
		Code:    CodeSelfTransfer,
		Message: "Cannot transfer money to yourself.",
	}
}

func NotFound(resourceType string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found.", resourceType),
	}
}

func UserNotFound() *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Code:    CodeUserNotFound,
		Message: "User not found.",
	}
}

func ExpenseNotFound() *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Code:    CodeExpenseNotFound,
		Message: "Expense not found.",
	}
}

func PayoutNotFound() *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Code:    CodePayoutNotFound,
		Message: "Payout not found.",
	}
}

func PaymentNotFound(orderID string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Code:    CodePaymentNotFound,
		Message: "Payment not found.",
		Details: fmt.Sprintf("order_id=%s", orderID),
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeConflict,
		Code:    CodeConflict,
		Message: message,
	}
}

func DuplicateEntry(resourceType string) *AppError {
	return &AppError{
		Type:    ErrorTypeConflict,
		Code:    CodeDuplicateEntry,
		Message: fmt.Sprintf("%s already exists.", resourceType),
	}
}

func ExpenseNotOpen(status string) *AppError {
	return &AppError{
		Type:    ErrorTypeConflict,
		Code:    CodeExpenseNotOpen,
		Message: "Only open expenses can be changed.",
		Details: fmt.Sprintf("current status: %s", status),
	}
}

func InsufficientFunds(balanceCents, requestedCents int64) *AppError {
	return &AppError{
		Type:    ErrorTypeUnprocessable,
		Code:    CodeInsufficientFunds,
		Message: "Wallet balance is not enough for this transfer.",
		Details: fmt.Sprintf("balance=%d requested=%d", balanceCents, requestedCents),
	}
}

func InvalidTransition(from, to string) *AppError {
	return &AppError{
		Type:    ErrorTypeConflict,
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("Cannot move from %s to %s.", from, to),
	}
}

// TransitionOutOfOrder is a status that can only follow a step not yet seen.
// It is retryable: redelivery after the missing step succeeds.
func TransitionOutOfOrder(from, to string) *AppError {
	return &AppError{
		Type:      ErrorTypeConflict,
		Code:      CodeTransitionOutOfOrder,
		Message:   fmt.Sprintf("Cannot move from %s to %s yet.", from, to),
		Retryable: true,
	}
}

func DatabaseError(operation string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Code:    CodeDatabaseError,
		Message: "A database error occurred. Please try again.",
		Details: operation,
		Err:     err,
	}
}

// ProviderError wraps a failed call to the payment provider. The caller may retry.
func ProviderError(operation string, err error) *AppError {
	return &AppError{
		Type:      ErrorTypeServiceUnavailable,
		Code:      CodeProviderError,
		Message:   "The payment provider is unavailable. Please try again.",
		Details:   operation,
		Retryable: true,
		Err:       err,
	}
}

// ConsistencyViolation reports a wallet whose stored balance disagrees with its
// transaction log. It is never corrected automatically.
func ConsistencyViolation(userID string, balanceCents, ledgerCents int64) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Code:    CodeConsistencyViolation,
		Message: "Wallet ledger is inconsistent. The operation was halted.",
		Details: fmt.Sprintf("user_id=%s balance=%d ledger=%d", userID, balanceCents, ledgerCents),
	}
}

func AIServiceError(err error) *AppError {
	return &AppError{
		Type:    ErrorTypeServiceUnavailable,
		Code:    CodeAIServiceError,
		Message: "AI service is temporarily unavailable. Please try again later.",
		Err:     err,
	}
}

func InternalError(err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Code:    CodeInternalError,
		Message: "An unexpected error occurred. Please try again.",
		Err:     err,
	}
}

func Wrap(err error, appErr *AppError) *AppError {
	appErr.Err = err
	return appErr
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

func GetHTTPStatus(errType ErrorType) int {
	switch errType {
	case ErrorTypeUnauthorized:
		return 401
	case ErrorTypeForbidden:
		return 403
	case ErrorTypeBadRequest:
		return 400
	case ErrorTypeNotFound:
		return 404
	case ErrorTypeConflict:
		return 409
	case ErrorTypeUnprocessable:
		return 422
	case ErrorTypeServiceUnavailable:
		return 503
	default:
		return 500
	}
}

func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "no rows") || strings.Contains(errStr, "not found")
}

func IsDuplicateError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "unique constraint")
}
