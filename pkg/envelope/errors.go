package envelope

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the envelope service.
var (
	ErrInvalidEnvelopeID     = errors.New("invalid envelope id")
	ErrInvalidIncomeSourceID = errors.New("invalid income source id")
	ErrInvalidUserID         = errors.New("invalid user id")
	ErrInvalidSubtype        = errors.New("invalid envelope subtype")
	ErrInvalidPriority       = errors.New("invalid priority")
	ErrInvalidFrequency      = errors.New("invalid frequency")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidServiceConfig  = errors.New("invalid service config")
	ErrUnknownEnvelope       = errors.New("unknown envelope")
	ErrUnknownIncomeSource   = errors.New("unknown income source")
	ErrEnvelopeExists        = errors.New("envelope already exists")
	ErrDraftNotFound         = errors.New("draft not found")
	ErrInvalidField          = errors.New("invalid field")
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
