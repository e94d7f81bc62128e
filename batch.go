package cosmosbatch

import (
	"context"
	"time"

	dombatch "github.com/johschmidt42/azure-cosmosdb-batch-api/internal/domain/batch"
)

// Batch accumulates point operations against one partition key and
// executes them as a single transaction. Append methods record the
// first construction error; Execute reports it, so calls need no
// per-call error checks.
type Batch struct {
	container *Container
	req       *dombatch.Request
	err       error
}

// NewBatch starts a transactional batch pinned to the given partition
// key. Every operation must target this key.
func (c *Container) NewBatch(key PartitionKey) *Batch {
	return &Batch{
		container: c,
		req:       dombatch.NewRequestWithKey(c.keyPath, key.inner),
	}
}

// NewBatchFromItems starts a batch whose partition key is taken from
// the first operation that carries one, read from item bodies via the
// container's partition key path. Requires WithPartitionKeyPath.
func (c *Container) NewBatchFromItems() *Batch {
	return &Batch{
		container: c,
		req:       dombatch.NewRequest(c.keyPath),
	}
}

// CreateItem appends a create. The store rejects the batch with 409
// when the id already exists.
func (b *Batch) CreateItem(body []byte, opts ...ItemOption) {
	b.add(dombatch.NewCreate(body, domainOptions(opts)...))
}

// ReadItem appends a point read. Reads observe writes placed earlier
// in the same batch.
func (b *Batch) ReadItem(id string, opts ...ItemOption) {
	b.add(dombatch.NewRead(id, domainOptions(opts)...))
}

// ReplaceItem appends a full replace of an existing item.
func (b *Batch) ReplaceItem(id string, body []byte, opts ...ItemOption) {
	b.add(dombatch.NewReplace(id, body, domainOptions(opts)...))
}

// UpsertItem appends a write that creates the item or replaces it.
func (b *Batch) UpsertItem(body []byte, opts ...ItemOption) {
	b.add(dombatch.NewUpsert(body, domainOptions(opts)...))
}

// DeleteItem appends a delete of an existing item.
func (b *Batch) DeleteItem(id string, opts ...ItemOption) {
	b.add(dombatch.NewDelete(id, domainOptions(opts)...))
}

// PatchItem appends a partial update of an existing item.
func (b *Batch) PatchItem(id string, patch *Patch, opts ...ItemOption) {
	if patch == nil {
		patch = NewPatch()
	}
	b.add(dombatch.NewPatch(id, patch.spec, domainOptions(opts)...))
}

func (b *Batch) add(op dombatch.Operation) {
	if b.err != nil {
		return
	}
	if err := b.req.Append(op); err != nil {
		b.err = err
	}
}

// Len reports the number of appended operations.
func (b *Batch) Len() int { return b.req.Len() }

// Execute submits the batch in one exchange and interprets the verdict
// within the client's execution window.
//
// A committed batch returns a nil error and per-operation results. An
// aborted batch returns a *BatchError naming the failing operation,
// together with a response in which every other operation reports 424
// Failed Dependency. Construction errors and transport failures return
// a zero response. The batch is consumed either way; build a new one
// to retry.
func (b *Batch) Execute(ctx context.Context) (resp BatchResponse, err error) {
	start := time.Now()
	defer func() { b.container.obs.observe("execute_batch", start, err) }()

	if b.err != nil {
		return BatchResponse{}, b.err
	}

	out, execErr := b.container.executor.Execute(ctx, b.req)
	if out != nil {
		resp = fromOutcome(out)
		b.container.obs.recordCharge("execute_batch", out.RequestCharge())
	}
	if execErr != nil {
		if out != nil && out.Failure() != nil {
			return resp, newBatchError(out.Failure(), execErr)
		}
		return resp, execErr
	}
	return resp, nil
}
