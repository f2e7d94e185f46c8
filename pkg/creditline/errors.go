package creditline

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the credit line engine.
var (
	ErrNotAuthorized      = errors.New("caller not authorized")
	ErrNotApprover        = errors.New("caller is not an approver")
	ErrProtocolPaused     = errors.New("protocol paused")
	ErrPoolDisabled       = errors.New("pool disabled")
	ErrCreditNotFound     = errors.New("credit line not found")
	ErrCreditDefaulted    = errors.New("credit line defaulted")
	ErrCreditClosed       = errors.New("credit line closed")
	ErrOutstandingBalance = errors.New("outstanding balance")

	ErrZeroAmount                   = errors.New("zero amount")
	ErrZeroReceivableID             = errors.New("zero receivable id")
	ErrInvalidBorrowerID            = errors.New("invalid borrower id")
	ErrInvalidActor                 = errors.New("invalid actor")
	ErrInvalidParameters            = errors.New("invalid credit parameters")
	ErrInvalidPeriodDuration        = errors.New("invalid period duration")
	ErrInvalidCreditState           = errors.New("invalid credit state")
	ErrReceivableNotFound           = errors.New("receivable not found")
	ErrReceivableAlreadyRegistered  = errors.New("receivable already registered")
	ErrOwnershipMismatch            = errors.New("receivable ownership mismatch")
	ErrNotReceivableOwner           = errors.New("receivable not pledged to credit line")
	ErrInsufficientReceivableAmount = errors.New("draw exceeds receivable amount")
	ErrReceivableMatured            = errors.New("receivable already matured")

	ErrCreditLimitExceeded = errors.New("credit limit exceeded")

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
