package emulator

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/johschmidt42/azure-cosmosdb-batch-api/internal/domain"
	dombatch "github.com/johschmidt42/azure-cosmosdb-batch-api/internal/domain/batch"
	"github.com/johschmidt42/azure-cosmosdb-batch-api/internal/domain/partition"
	"github.com/johschmidt42/azure-cosmosdb-batch-api/internal/transport/cosmoshttp"
)

// Flat per-operation charges, close to what the real store bills for
// point operations on small documents.
const (
	readCharge  = 1.0
	writeCharge = 5.0
)

type item struct {
	body json.RawMessage
	etag string
}

type container struct {
	keyPath string
	// partition key wire form -> item id -> item
	partitions map[string]map[string]item
}

// Store is the in-memory document store behind the emulator. A batch is
// applied against a staged copy of its partition, so either every write
// becomes visible or none of them do.
type Store struct {
	mu        sync.Mutex
	databases map[string]map[string]*container
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{databases: make(map[string]map[string]*container)}
}

// CreateContainer registers a container, creating the database on first
// use. Returns false when the container already exists.
func (s *Store) CreateContainer(db, coll, keyPath string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	colls, ok := s.databases[db]
	if !ok {
		colls = make(map[string]*container)
		s.databases[db] = colls
	}
	if _, ok := colls[coll]; ok {
		return false
	}
	colls[coll] = &container{
		keyPath:    keyPath,
		partitions: make(map[string]map[string]item),
	}
	return true
}

// KeyPath reports the partition key path a container was created with.
func (s *Store) KeyPath(db, coll string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.lookup(db, coll)
	if c == nil {
		return "", false
	}
	return c.keyPath, true
}

// Get returns a copy of the stored body and the current etag of an item.
func (s *Store) Get(db, coll string, key partition.Key, id string) (json.RawMessage, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.lookup(db, coll)
	if c == nil {
		return nil, "", false
	}
	it, ok := c.partitions[key.String()][id]
	if !ok {
		return nil, "", false
	}
	return append(json.RawMessage(nil), it.body...), it.etag, true
}

// Put inserts or replaces an item directly, outside any batch. Returns
// the new etag.
func (s *Store) Put(db, coll string, key partition.Key, id string, body []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.lookup(db, coll)
	if c == nil {
		return "", errors.Wrapf(domain.ErrNotFound, "container %s/%s", db, coll)
	}
	pk := key.String()
	part, ok := c.partitions[pk]
	if !ok {
		part = make(map[string]item)
		c.partitions[pk] = part
	}
	it := newItem(body)
	part[id] = it
	return it.etag, nil
}

// Len counts the items of a container across all partitions.
func (s *Store) Len(db, coll string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.lookup(db, coll)
	if c == nil {
		return 0
	}
	n := 0
	for _, part := range c.partitions {
		n += len(part)
	}
	return n
}

// ApplyBatch runs the operations as a single unit against one partition.
// Operations are applied in order: later operations see the staged
// writes of earlier ones, and application stops at the first failure.
// The returned slice always has one result per operation; on abort the
// operation that caused it keeps its own status and every other slot
// reports http.StatusFailedDependency. The second return value is the
// verdict status for the whole exchange.
func (s *Store) ApplyBatch(db, coll string, key partition.Key, ops []cosmoshttp.BatchOperation) ([]cosmoshttp.BatchResult, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.lookup(db, coll)
	if c == nil {
		return nil, 0, errors.Wrapf(domain.ErrNotFound, "container %s/%s", db, coll)
	}

	pk := key.String()
	stage := make(map[string]item, len(c.partitions[pk]))
	for id, it := range c.partitions[pk] {
		stage[id] = it
	}

	results := make([]cosmoshttp.BatchResult, len(ops))
	for i, op := range ops {
		res, ok := applyOperation(stage, op)
		results[i] = res
		if !ok {
			return abortResults(results, i), res.StatusCode, nil
		}
	}

	c.partitions[pk] = stage
	return results, http.StatusOK, nil
}

func (s *Store) lookup(db, coll string) *container {
	colls, ok := s.databases[db]
	if !ok {
		return nil
	}
	return colls[coll]
}

func applyOperation(stage map[string]item, op cosmoshttp.BatchOperation) (cosmoshttp.BatchResult, bool) {
	switch dombatch.Kind(op.OperationType) {
	case dombatch.KindCreate:
		if _, exists := stage[op.ID]; exists {
			return failure(http.StatusConflict), false
		}
		it := newItem(op.ResourceBody)
		stage[op.ID] = it
		return success(http.StatusCreated, it, writeCharge), true

	case dombatch.KindRead:
		it, exists := stage[op.ID]
		if !exists {
			return failure(http.StatusNotFound), false
		}
		return success(http.StatusOK, it, readCharge), true

	case dombatch.KindUpsert:
		status := http.StatusOK
		if _, exists := stage[op.ID]; !exists {
			status = http.StatusCreated
		}
		it := newItem(op.ResourceBody)
		stage[op.ID] = it
		return success(status, it, writeCharge), true

	case dombatch.KindReplace:
		cur, exists := stage[op.ID]
		if !exists {
			return failure(http.StatusNotFound), false
		}
		if !etagMatches(cur, op.IfMatch) {
			return failure(http.StatusPreconditionFailed), false
		}
		it := newItem(op.ResourceBody)
		stage[op.ID] = it
		return success(http.StatusOK, it, writeCharge), true

	case dombatch.KindDelete:
		cur, exists := stage[op.ID]
		if !exists {
			return failure(http.StatusNotFound), false
		}
		if !etagMatches(cur, op.IfMatch) {
			return failure(http.StatusPreconditionFailed), false
		}
		delete(stage, op.ID)
		return cosmoshttp.BatchResult{
			StatusCode:    http.StatusNoContent,
			RequestCharge: writeCharge,
		}, true

	case dombatch.KindPatch:
		cur, exists := stage[op.ID]
		if !exists {
			return failure(http.StatusNotFound), false
		}
		if !etagMatches(cur, op.IfMatch) {
			return failure(http.StatusPreconditionFailed), false
		}
		patched, err := applyPatch(cur.body, op.ResourceBody)
		if err != nil {
			return failure(http.StatusBadRequest), false
		}
		it := item{body: patched, etag: newETag()}
		stage[op.ID] = it
		return success(http.StatusOK, it, writeCharge), true

	default:
		return failure(http.StatusBadRequest), false
	}
}

// abortResults rewrites every slot except the failing one to the
// dependent-failure status. Writes staged before the failure are
// discarded by the caller together with their results.
func abortResults(results []cosmoshttp.BatchResult, failed int) []cosmoshttp.BatchResult {
	for i := range results {
		if i == failed {
			continue
		}
		results[i] = cosmoshttp.BatchResult{StatusCode: http.StatusFailedDependency}
	}
	return results
}

func etagMatches(cur item, ifMatch string) bool {
	return ifMatch == "" || ifMatch == cur.etag
}

func newItem(body json.RawMessage) item {
	return item{
		body: append(json.RawMessage(nil), body...),
		etag: newETag(),
	}
}

// Etags are quoted GUID strings, same shape as the real store.
func newETag() string {
	return strconv.Quote(uuid.NewString())
}

func success(status int, it item, charge float64) cosmoshttp.BatchResult {
	return cosmoshttp.BatchResult{
		StatusCode:    status,
		ETag:          it.etag,
		RequestCharge: charge,
		ResourceBody:  it.body,
	}
}

func failure(status int) cosmoshttp.BatchResult {
	return cosmoshttp.BatchResult{StatusCode: status}
}
