package wallet

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the wallet service.
var (
	ErrCustomerNotFound     = errors.New("customer not found")
	ErrCreditLineNotFound   = errors.New("credit line not found")
	ErrCreditLineExists     = errors.New("credit line already exists")
	ErrEmailTaken           = errors.New("email already registered")
	ErrDebtExceedsBalance   = errors.New("requested debt exceeds balance")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrTokenInvalid         = errors.New("token or session id invalid")
	ErrTokenExpired         = errors.New("token expired")
	ErrTokenConsumed        = errors.New("token already applied")
	ErrNotificationFailed   = errors.New("notification dispatch failed")
	ErrInvalidDocument      = errors.New("invalid document")
	ErrInvalidName          = errors.New("invalid name")
	ErrInvalidEmail         = errors.New("invalid email")
	ErrInvalidPhone         = errors.New("invalid phone")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidCustomerID    = errors.New("invalid customer id")
	ErrInvalidSessionID     = errors.New("invalid session id")
	ErrInvalidTokenCode     = errors.New("invalid token code")
	ErrInvalidListQuery     = errors.New("invalid list query")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// IsDomainError reports whether err maps to one of the wallet sentinels,
// meaning its message is safe to show to API callers.
func IsDomainError(err error) bool {
	for _, sentinel := range []error{
		ErrCustomerNotFound,
		ErrCreditLineNotFound,
		ErrCreditLineExists,
		ErrEmailTaken,
		ErrDebtExceedsBalance,
		ErrInsufficientBalance,
		ErrTokenInvalid,
		ErrTokenExpired,
		ErrTokenConsumed,
		ErrNotificationFailed,
		ErrInvalidDocument,
		ErrInvalidName,
		ErrInvalidEmail,
		ErrInvalidPhone,
		ErrInvalidAmount,
		ErrInvalidCustomerID,
		ErrInvalidSessionID,
		ErrInvalidTokenCode,
		ErrInvalidListQuery,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
