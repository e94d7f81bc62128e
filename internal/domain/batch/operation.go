// Package batch models transactional batch requests against a single
// partition and the interpretation of their outcomes.
package batch

import (
	"encoding/json"

	"github.com/johschmidt42/azure-cosmosdb-batch-api/internal/domain/partition"
)

// Kind is the operation type inside a transactional batch.
type Kind string

// Batch operation kinds, matching the wire operationType values.
const (
	KindCreate  Kind = "Create"
	KindRead    Kind = "Read"
	KindReplace Kind = "Replace"
	KindUpsert  Kind = "Upsert"
	KindDelete  Kind = "Delete"
	KindPatch   Kind = "Patch"
)

// Operation is one item operation inside a batch (immutable value object).
type Operation struct {
	kind    Kind
	id      string
	body    json.RawMessage
	ifMatch string
	key     partition.Key
}

// OperationOption configures an Operation at construction time.
type OperationOption interface {
	apply(*Operation)
}

type operationOptionFunc func(*Operation)

func (f operationOptionFunc) apply(o *Operation) { f(o) }

// WithIfMatch attaches an etag precondition to the operation.
func WithIfMatch(etag string) OperationOption {
	return operationOptionFunc(func(o *Operation) { o.ifMatch = etag })
}

// WithPartitionKey binds the operation to an explicit partition key,
// overriding the value extracted from the item body.
func WithPartitionKey(key partition.Key) OperationOption {
	return operationOptionFunc(func(o *Operation) { o.key = key })
}

// NewCreate creates an insert operation. The item identifier is taken from
// the body's "id" field.
func NewCreate(body []byte, opts ...OperationOption) Operation {
	return newOperation(KindCreate, idFromBody(body), body, opts)
}

// NewRead creates a point read operation.
func NewRead(id string, opts ...OperationOption) Operation {
	return newOperation(KindRead, id, nil, opts)
}

// NewReplace creates a full replace operation for an existing item.
func NewReplace(id string, body []byte, opts ...OperationOption) Operation {
	return newOperation(KindReplace, id, body, opts)
}

// NewUpsert creates an insert-or-replace operation. The item identifier is
// taken from the body's "id" field.
func NewUpsert(body []byte, opts ...OperationOption) Operation {
	return newOperation(KindUpsert, idFromBody(body), body, opts)
}

// NewDelete creates a delete operation.
func NewDelete(id string, opts ...OperationOption) Operation {
	return newOperation(KindDelete, id, nil, opts)
}

// NewPatch creates a partial update operation carrying a patch document.
// A spec with no operations yields an operation that fails the shape check.
func NewPatch(id string, spec PatchSpec, opts ...OperationOption) Operation {
	var body []byte
	if spec.Len() > 0 {
		body, _ = json.Marshal(spec)
	}
	return newOperation(KindPatch, id, body, opts)
}

func newOperation(kind Kind, id string, body []byte, opts []OperationOption) Operation {
	op := Operation{kind: kind, id: id, body: cloneBytes(body)}
	for _, o := range opts {
		o.apply(&op)
	}
	return op
}

// Kind returns the operation type.
func (o Operation) Kind() Kind { return o.kind }

// ID returns the target item identifier.
func (o Operation) ID() string { return o.id }

// Body returns the raw item or patch body, nil for reads and deletes.
func (o Operation) Body() json.RawMessage { return o.body }

// IfMatch returns the etag precondition, empty when unset.
func (o Operation) IfMatch() string { return o.ifMatch }

// ResolveKey reports the partition key this operation is bound to: the
// explicit key when set, otherwise the value at keyPath inside the body.
// The second return is false when the operation inherits the batch key.
func (o Operation) ResolveKey(keyPath string) (partition.Key, bool) {
	if !o.key.IsZero() {
		return o.key, true
	}
	if len(o.body) == 0 || o.kind == KindPatch {
		return partition.Key{}, false
	}
	return partition.Extract(o.body, keyPath)
}

// sizeEstimate is the operation's contribution to the payload ceiling:
// body, identifier and etag bytes plus a fixed envelope overhead.
func (o Operation) sizeEstimate() int {
	return len(o.body) + len(o.id) + len(o.ifMatch) + operationOverhead
}

func idFromBody(body []byte) string {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	return probe.ID
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
