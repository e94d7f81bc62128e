package batch

import (
	"github.com/cockroachdb/errors"

	"github.com/johschmidt42/azure-cosmosdb-batch-api/internal/domain"
	"github.com/johschmidt42/azure-cosmosdb-batch-api/internal/domain/partition"
)

// Batch ceilings enforced before any network traffic.
const (
	// MaxOperations is the maximum number of operations per batch.
	MaxOperations = 100
	// MaxPayloadBytes is the maximum estimated request payload size.
	MaxPayloadBytes = 2 * 1024 * 1024
	// operationOverhead approximates the per-operation JSON envelope bytes.
	operationOverhead = 64
)

// Request accumulates operations against a single partition key.
// A Request is single-use: once executed it cannot be submitted again.
type Request struct {
	keyPath  string
	key      partition.Key
	keyFixed bool
	ops      []Operation
	executed bool
}

// NewRequest creates an empty batch for the container's partition key path.
// The batch key is established by the first operation that resolves one.
func NewRequest(keyPath string) *Request {
	return &Request{keyPath: keyPath}
}

// NewRequestWithKey creates an empty batch pinned to the given partition key.
func NewRequestWithKey(keyPath string, key partition.Key) *Request {
	return &Request{keyPath: keyPath, key: key, keyFixed: true}
}

// Append adds an operation to the batch. It rejects malformed operations and
// operations bound to a partition key other than the batch key.
func (r *Request) Append(op Operation) error {
	if r.executed {
		return domain.ErrRequestReused
	}
	if err := checkShape(op); err != nil {
		return errors.Wrapf(err, "operation %d (%s)", len(r.ops), op.Kind())
	}
	key, resolved := op.ResolveKey(r.keyPath)
	if resolved {
		if r.key.IsZero() && !r.keyFixed {
			r.key = key
		} else if !key.Equal(r.key) {
			return errors.Wrapf(domain.ErrPartitionKeyMismatch,
				"operation %d (%s id=%s): key %s does not match batch key %s",
				len(r.ops), op.Kind(), op.ID(), key, r.key)
		}
	}
	r.ops = append(r.ops, op)
	return nil
}

func checkShape(op Operation) error {
	switch op.Kind() {
	case KindCreate, KindUpsert:
		if len(op.Body()) == 0 {
			return errors.New("item body required")
		}
		if op.ID() == "" {
			return errors.New("item body must carry an id field")
		}
	case KindRead, KindDelete:
		if op.ID() == "" {
			return errors.New("item id required")
		}
	case KindReplace:
		if op.ID() == "" {
			return errors.New("item id required")
		}
		if len(op.Body()) == 0 {
			return errors.New("item body required")
		}
	case KindPatch:
		if op.ID() == "" {
			return errors.New("item id required")
		}
		if len(op.Body()) == 0 {
			return errors.New("patch document required")
		}
	default:
		return errors.Newf("unknown operation kind %q", op.Kind())
	}
	return nil
}

// Operations returns the accumulated operations in append order.
func (r *Request) Operations() []Operation { return r.ops }

// Len returns the number of accumulated operations.
func (r *Request) Len() int { return len(r.ops) }

// Key returns the batch partition key, zero when not yet established.
func (r *Request) Key() partition.Key { return r.key }

// KeyPath returns the container's partition key path.
func (r *Request) KeyPath() string { return r.keyPath }

// PayloadEstimate returns the estimated request payload size in bytes.
func (r *Request) PayloadEstimate() int {
	total := 0
	for _, op := range r.ops {
		total += op.sizeEstimate()
	}
	return total
}

// Validate checks the batch against the client-side ceilings. It returns
// the first violation found and performs no network traffic.
func (r *Request) Validate() error {
	if len(r.ops) == 0 {
		return domain.ErrEmptyBatch
	}
	if len(r.ops) > MaxOperations {
		return domain.NewOperationCountError(len(r.ops), MaxOperations)
	}
	if r.key.IsZero() {
		return domain.ErrMissingPartitionKey
	}
	if size := r.PayloadEstimate(); size > MaxPayloadBytes {
		return domain.NewPayloadSizeError(size, MaxPayloadBytes)
	}
	return nil
}

// VerifyPartition re-checks that every operation resolves to the batch key.
// The executor calls this before submitting so a foreign key can never
// reach the wire.
func (r *Request) VerifyPartition() error {
	if r.key.IsZero() {
		return domain.ErrMissingPartitionKey
	}
	for i, op := range r.ops {
		key, resolved := op.ResolveKey(r.keyPath)
		if resolved && !key.Equal(r.key) {
			return errors.Wrapf(domain.ErrPartitionKeyMismatch,
				"operation %d (%s id=%s): key %s does not match batch key %s",
				i, op.Kind(), op.ID(), key, r.key)
		}
	}
	return nil
}

// MarkExecuted consumes the request. The second call fails.
func (r *Request) MarkExecuted() error {
	if r.executed {
		return domain.ErrRequestReused
	}
	r.executed = true
	return nil
}

// Executed reports whether the request has been submitted.
func (r *Request) Executed() bool { return r.executed }
