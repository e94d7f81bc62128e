package domain

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrEmptyBatch signals a batch with no operations.
	ErrEmptyBatch = errors.New("batch contains no operations")
	// ErrTooManyOperations signals a batch above the operation ceiling.
	ErrTooManyOperations = errors.New("too many operations in batch")
	// ErrPayloadTooLarge signals a batch above the payload ceiling.
	ErrPayloadTooLarge = errors.New("batch payload too large")
	// ErrPartitionKeyMismatch signals an operation bound to a foreign partition key.
	ErrPartitionKeyMismatch = errors.New("partition key mismatch")
	// ErrMissingPartitionKey signals a batch whose partition key was never resolved.
	ErrMissingPartitionKey = errors.New("partition key missing")
	// ErrRequestReused signals a batch request submitted more than once.
	ErrRequestReused = errors.New("batch request already executed")

	// ErrTransportFailure signals that the exchange produced no batch verdict.
	ErrTransportFailure = errors.New("transport failure")
	// ErrExecutionTimedOut signals that the execution window elapsed before completion.
	ErrExecutionTimedOut = errors.New("batch execution timed out")

	// ErrBatchAborted signals that the store rejected the batch and applied nothing.
	ErrBatchAborted = errors.New("batch aborted")
	// ErrNotFound signals a missing item.
	ErrNotFound = errors.New("item not found")
	// ErrConflict signals a duplicate item identifier.
	ErrConflict = errors.New("item already exists")
	// ErrPreconditionFailed signals an etag precondition miss.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrThrottled signals a rate limit hit.
	ErrThrottled = errors.New("request rate too large")
)

// OperationCountError wraps ErrTooManyOperations with the offending count.
type OperationCountError struct {
	Count int
	Limit int
}

func (e *OperationCountError) Error() string {
	return fmt.Sprintf("%s: %d operations (limit %d)", ErrTooManyOperations.Error(), e.Count, e.Limit)
}

func (e *OperationCountError) Unwrap() error { return ErrTooManyOperations }

// NewOperationCountError creates an operation ceiling violation.
func NewOperationCountError(count, limit int) error {
	return &OperationCountError{Count: count, Limit: limit}
}

// PayloadSizeError wraps ErrPayloadTooLarge with the estimated size.
type PayloadSizeError struct {
	Size  int
	Limit int
}

func (e *PayloadSizeError) Error() string {
	return fmt.Sprintf("%s: %d bytes estimated (limit %d)", ErrPayloadTooLarge.Error(), e.Size, e.Limit)
}

func (e *PayloadSizeError) Unwrap() error { return ErrPayloadTooLarge }

// NewPayloadSizeError creates a payload ceiling violation.
func NewPayloadSizeError(size, limit int) error {
	return &PayloadSizeError{Size: size, Limit: limit}
}

// TransportError wraps an exchange failure that yielded no batch
// verdict. It unwraps to both ErrTransportFailure and the cause.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", ErrTransportFailure.Error(), e.Cause)
}

func (e *TransportError) Unwrap() []error { return []error{ErrTransportFailure, e.Cause} }

// NewTransportError creates a transport failure error.
func NewTransportError(cause error) error {
	return &TransportError{Cause: cause}
}
