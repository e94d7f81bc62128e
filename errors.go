package cosmosbatch

import (
	"github.com/johschmidt42/azure-cosmosdb-batch-api/internal/domain"
)

// Sentinel errors surfaced by Execute. They alias the internal domain
// values so callers can match with errors.Is without importing internal
// packages.
var (
	// ErrEmptyBatch is returned when Execute is called on a batch with
	// no operations.
	ErrEmptyBatch = domain.ErrEmptyBatch
	// ErrTooManyOperations is returned when a batch exceeds the
	// operation ceiling of 100.
	ErrTooManyOperations = domain.ErrTooManyOperations
	// ErrPayloadTooLarge is returned when a batch payload exceeds the
	// 2 MiB ceiling.
	ErrPayloadTooLarge = domain.ErrPayloadTooLarge
	// ErrPartitionKeyMismatch is returned when an operation targets a
	// partition key other than the batch's.
	ErrPartitionKeyMismatch = domain.ErrPartitionKeyMismatch
	// ErrMissingPartitionKey is returned when no partition key could be
	// resolved for the batch.
	ErrMissingPartitionKey = domain.ErrMissingPartitionKey
	// ErrBatchReused is returned when a batch is executed twice.
	ErrBatchReused = domain.ErrRequestReused

	// ErrTransportFailure is returned when the exchange produced no
	// batch verdict; whether the batch committed is unknown.
	ErrTransportFailure = domain.ErrTransportFailure
	// ErrTimeout is returned when the execution window elapsed before a
	// verdict arrived.
	ErrTimeout = domain.ErrExecutionTimedOut

	// ErrBatchAborted is carried by every *BatchError.
	ErrBatchAborted = domain.ErrBatchAborted
	// ErrNotFound marks a batch aborted by a read or update of a
	// missing item.
	ErrNotFound = domain.ErrNotFound
	// ErrConflict marks a batch aborted by a create of an existing id.
	ErrConflict = domain.ErrConflict
	// ErrPreconditionFailed marks a batch aborted by an etag mismatch.
	ErrPreconditionFailed = domain.ErrPreconditionFailed
	// ErrThrottled marks a batch rejected by the store's rate limiter.
	ErrThrottled = domain.ErrThrottled
)
