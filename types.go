package cosmosbatch

import (
	"encoding/json"
	"fmt"
	"time"

	dombatch "github.com/johschmidt42/azure-cosmosdb-batch-api/internal/domain/batch"
	"github.com/johschmidt42/azure-cosmosdb-batch-api/internal/domain/partition"
)

// OperationKind names the point operation a batch entry performs.
type OperationKind string

// Operation kinds.
const (
	OperationCreate  OperationKind = OperationKind(dombatch.KindCreate)
	OperationRead    OperationKind = OperationKind(dombatch.KindRead)
	OperationReplace OperationKind = OperationKind(dombatch.KindReplace)
	OperationUpsert  OperationKind = OperationKind(dombatch.KindUpsert)
	OperationDelete  OperationKind = OperationKind(dombatch.KindDelete)
	OperationPatch   OperationKind = OperationKind(dombatch.KindPatch)
)

// PartitionKey identifies the logical partition a batch operates on.
// The zero value is no key; construct one with NewPartitionKeyString
// and friends.
type PartitionKey struct {
	inner partition.Key
}

// NewPartitionKeyString builds a partition key from a string value.
func NewPartitionKeyString(v string) PartitionKey {
	return PartitionKey{inner: partition.NewString(v)}
}

// NewPartitionKeyNumber builds a partition key from a numeric value.
func NewPartitionKeyNumber(v float64) PartitionKey {
	return PartitionKey{inner: partition.NewNumber(v)}
}

// NewPartitionKeyBool builds a partition key from a boolean value.
func NewPartitionKeyBool(v bool) PartitionKey {
	return PartitionKey{inner: partition.NewBool(v)}
}

// NullPartitionKey builds the explicit null partition key, distinct
// from the zero value.
func NullPartitionKey() PartitionKey {
	return PartitionKey{inner: partition.Null()}
}

// NewPartitionKey builds a hierarchical partition key from up to three
// string, float64, bool or nil components.
func NewPartitionKey(values ...any) (PartitionKey, error) {
	key, err := partition.NewMulti(values...)
	if err != nil {
		return PartitionKey{}, err
	}
	return PartitionKey{inner: key}, nil
}

// IsZero reports whether the key was never set.
func (k PartitionKey) IsZero() bool { return k.inner.IsZero() }

// String renders the key in its wire form, e.g. ["partition1"].
func (k PartitionKey) String() string { return k.inner.String() }

// ItemOption adjusts a single batch operation.
type ItemOption interface {
	toDomain() dombatch.OperationOption
}

type itemOptionFunc func() dombatch.OperationOption

func (f itemOptionFunc) toDomain() dombatch.OperationOption { return f() }

// WithETag makes the operation conditional: the store rejects it with
// 412 Precondition Failed when the stored etag no longer matches.
func WithETag(etag string) ItemOption {
	return itemOptionFunc(func() dombatch.OperationOption {
		return dombatch.WithIfMatch(etag)
	})
}

func domainOptions(opts []ItemOption) []dombatch.OperationOption {
	if len(opts) == 0 {
		return nil
	}
	out := make([]dombatch.OperationOption, len(opts))
	for i, opt := range opts {
		out[i] = opt.toDomain()
	}
	return out
}

// Patch accumulates partial updates for a single item. Methods chain:
//
//	cosmosbatch.NewPatch().Set("/color", "red").Increment("/views", 1)
type Patch struct {
	spec dombatch.PatchSpec
}

// NewPatch creates an empty patch document.
func NewPatch() *Patch { return &Patch{} }

// Add appends a member, creating it when absent.
func (p *Patch) Add(path string, value any) *Patch {
	p.spec.AppendAdd(path, value)
	return p
}

// Set writes a member, creating it when absent.
func (p *Patch) Set(path string, value any) *Patch {
	p.spec.AppendSet(path, value)
	return p
}

// Replace overwrites a member that must already exist.
func (p *Patch) Replace(path string, value any) *Patch {
	p.spec.AppendReplace(path, value)
	return p
}

// Remove deletes a member that must already exist.
func (p *Patch) Remove(path string) *Patch {
	p.spec.AppendRemove(path)
	return p
}

// Increment adds delta to a numeric member.
func (p *Patch) Increment(path string, delta float64) *Patch {
	p.spec.AppendIncrement(path, delta)
	return p
}

// Len reports the number of accumulated patch operations.
func (p *Patch) Len() int { return p.spec.Len() }

// OperationResult is the per-operation slice of a batch response.
type OperationResult struct {
	// Kind and ItemID echo the submitted operation.
	Kind   OperationKind
	ItemID string
	// StatusCode is the operation's own status on commit. On abort it
	// is 424 for every operation except the one that caused the abort,
	// which keeps its real status.
	StatusCode    int
	SubStatusCode int
	// ETag is the item's version after a committed write.
	ETag string
	// Body carries the item for reads and replaced content for writes,
	// when the store returned one.
	Body json.RawMessage
}

// BatchResponse is the interpreted verdict of an executed batch.
type BatchResponse struct {
	// Committed reports whether every operation was applied.
	Committed bool
	// StatusCode is the overall exchange status. On abort it equals the
	// failing operation's status.
	StatusCode int
	// ActivityID correlates the exchange with store-side diagnostics.
	ActivityID string
	// RequestCharge is the request units the exchange consumed.
	RequestCharge float64
	// Elapsed is the observed exchange duration.
	Elapsed time.Duration
	// Results holds one entry per operation, in submission order.
	Results []OperationResult
}

func fromOutcome(o *dombatch.Outcome) BatchResponse {
	domResults := o.Results()
	results := make([]OperationResult, len(domResults))
	for i, r := range domResults {
		results[i] = OperationResult{
			Kind:          OperationKind(r.Kind()),
			ItemID:        r.ItemID(),
			StatusCode:    r.StatusCode(),
			SubStatusCode: r.SubStatusCode(),
			ETag:          r.ETag(),
			Body:          r.Body(),
		}
	}
	return BatchResponse{
		Committed:     o.Committed(),
		StatusCode:    o.StatusCode(),
		ActivityID:    o.ActivityID(),
		RequestCharge: o.RequestCharge(),
		Elapsed:       o.Elapsed(),
		Results:       results,
	}
}

// BatchError reports a batch the store aborted. Exactly one operation
// caused the abort; its position and status are recorded here, and the
// error chain carries the matching sentinel for errors.Is checks.
type BatchError struct {
	// FailedIndex is the position of the failing operation, or -1 when
	// the store rejected the batch without per-operation results.
	FailedIndex int
	// ItemID and Kind echo the failing operation when known.
	ItemID string
	Kind   OperationKind
	// StatusCode is the failing operation's real status, for example
	// 404, 409 or 412.
	StatusCode    int
	SubStatusCode int

	cause error
}

func (e *BatchError) Error() string { return e.cause.Error() }

func (e *BatchError) Unwrap() error { return e.cause }

func newBatchError(failure *dombatch.Failure, cause error) *BatchError {
	return &BatchError{
		FailedIndex:   failure.Index,
		ItemID:        failure.ItemID,
		Kind:          OperationKind(failure.Kind),
		StatusCode:    failure.StatusCode,
		SubStatusCode: failure.SubStatusCode,
		cause:         cause,
	}
}

// ContainerProperties describes a container created through the client.
type ContainerProperties struct {
	// ID is the container name.
	ID string
	// PartitionKeyPath locates the partition key member in item bodies,
	// e.g. /partitionKey.
	PartitionKeyPath string
}

func (p ContainerProperties) validate() error {
	if p.ID == "" {
		return fmt.Errorf("cosmosbatch: container id required")
	}
	if p.PartitionKeyPath == "" || p.PartitionKeyPath[0] != '/' {
		return fmt.Errorf("cosmosbatch: partition key path must start with /, got %q", p.PartitionKeyPath)
	}
	return nil
}
