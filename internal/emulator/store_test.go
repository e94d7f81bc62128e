package emulator

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/johschmidt42/azure-cosmosdb-batch-api/internal/domain"
	dombatch "github.com/johschmidt42/azure-cosmosdb-batch-api/internal/domain/batch"
	"github.com/johschmidt42/azure-cosmosdb-batch-api/internal/domain/partition"
	"github.com/johschmidt42/azure-cosmosdb-batch-api/internal/transport/cosmoshttp"
)

const (
	testDatabase  = "demodb"
	testContainer = "democoll"
)

func makeStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	if !s.CreateContainer(testDatabase, testContainer, "/pk") {
		t.Fatal("CreateContainer returned false on a fresh store")
	}
	return s
}

func itemBody(t *testing.T, id, pk string) []byte {
	t.Helper()
	return fmt.Appendf(nil, `{"id":%q,"pk":%q,"description":"demo item"}`, id, pk)
}

func wireOp(kind dombatch.Kind, id string, body []byte, ifMatch string) cosmoshttp.BatchOperation {
	return cosmoshttp.BatchOperation{
		OperationType: string(kind),
		ID:            id,
		ResourceBody:  body,
		IfMatch:       ifMatch,
	}
}

func mustApply(t *testing.T, s *Store, key partition.Key, ops ...cosmoshttp.BatchOperation) ([]cosmoshttp.BatchResult, int) {
	t.Helper()
	results, status, err := s.ApplyBatch(testDatabase, testContainer, key, ops)
	if err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
	return results, status
}

func TestStore_CreateContainer(t *testing.T) {
	s := makeStore(t)

	if s.CreateContainer(testDatabase, testContainer, "/pk") {
		t.Error("duplicate CreateContainer returned true")
	}
	if !s.CreateContainer(testDatabase, "other", "/tenant") {
		t.Error("CreateContainer in existing database returned false")
	}

	path, ok := s.KeyPath(testDatabase, "other")
	if !ok || path != "/tenant" {
		t.Errorf("KeyPath = %q, %v, want /tenant, true", path, ok)
	}
	if _, ok := s.KeyPath(testDatabase, "missing"); ok {
		t.Error("KeyPath returned true for a missing container")
	}
}

func TestApplyBatch_CommitsAllWrites(t *testing.T) {
	s := makeStore(t)
	key := partition.NewString("partition1")

	results, status := mustApply(t, s, key,
		wireOp(dombatch.KindCreate, "123", itemBody(t, "123", "partition1"), ""),
		wireOp(dombatch.KindCreate, "456", itemBody(t, "456", "partition1"), ""),
		wireOp(dombatch.KindRead, "123", nil, ""),
	)

	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	wantStatuses := []int{http.StatusCreated, http.StatusCreated, http.StatusOK}
	for i, want := range wantStatuses {
		if results[i].StatusCode != want {
			t.Errorf("results[%d].StatusCode = %d, want %d", i, results[i].StatusCode, want)
		}
		if results[i].ETag == "" {
			t.Errorf("results[%d] has no etag", i)
		}
		if !strings.HasPrefix(results[i].ETag, `"`) {
			t.Errorf("results[%d].ETag = %s, want a quoted string", i, results[i].ETag)
		}
	}
	if string(results[2].ResourceBody) != string(itemBody(t, "123", "partition1")) {
		t.Errorf("read body = %s", results[2].ResourceBody)
	}
	if results[2].ETag != results[0].ETag {
		t.Error("read etag does not match the etag of the created item")
	}

	if n := s.Len(testDatabase, testContainer); n != 2 {
		t.Errorf("Len = %d, want 2", n)
	}
	if _, _, ok := s.Get(testDatabase, testContainer, key, "456"); !ok {
		t.Error("committed item 456 not found")
	}
}

func TestApplyBatch_ReadsSeeEarlierWrites(t *testing.T) {
	s := makeStore(t)
	key := partition.NewString("partition1")

	results, status := mustApply(t, s, key,
		wireOp(dombatch.KindCreate, "123", itemBody(t, "123", "partition1"), ""),
		wireOp(dombatch.KindRead, "123", nil, ""),
	)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	if results[1].StatusCode != http.StatusOK {
		t.Errorf("read of an item created earlier in the batch = %d, want 200", results[1].StatusCode)
	}
}

func TestApplyBatch_AbortRollsBackStagedWrites(t *testing.T) {
	s := makeStore(t)
	key := partition.NewString("partition1")

	seededETag, err := s.Put(testDatabase, testContainer, key, "123", itemBody(t, "123", "partition1"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	results, status := mustApply(t, s, key,
		wireOp(dombatch.KindUpsert, "123", itemBody(t, "123", "partition1"), ""),
		wireOp(dombatch.KindRead, "789", nil, ""),
	)

	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", status, http.StatusNotFound)
	}
	if results[0].StatusCode != http.StatusFailedDependency {
		t.Errorf("results[0].StatusCode = %d, want 424", results[0].StatusCode)
	}
	if results[1].StatusCode != http.StatusNotFound {
		t.Errorf("results[1].StatusCode = %d, want 404", results[1].StatusCode)
	}

	// The staged upsert must not have leaked into the store.
	_, etag, ok := s.Get(testDatabase, testContainer, key, "123")
	if !ok {
		t.Fatal("seeded item vanished")
	}
	if etag != seededETag {
		t.Error("aborted batch rotated the etag of a stored item")
	}
	if n := s.Len(testDatabase, testContainer); n != 1 {
		t.Errorf("Len = %d, want 1", n)
	}
}

func TestApplyBatch_FirstFailureCarriesTheStatus(t *testing.T) {
	s := makeStore(t)
	key := partition.NewString("partition1")

	results, status := mustApply(t, s, key,
		wireOp(dombatch.KindRead, "missing-1", nil, ""),
		wireOp(dombatch.KindRead, "missing-2", nil, ""),
	)

	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", status, http.StatusNotFound)
	}
	if results[0].StatusCode != http.StatusNotFound {
		t.Errorf("results[0].StatusCode = %d, want 404", results[0].StatusCode)
	}
	// The second miss was never attempted and reports the dependent
	// failure, not its own.
	if results[1].StatusCode != http.StatusFailedDependency {
		t.Errorf("results[1].StatusCode = %d, want 424", results[1].StatusCode)
	}
}

func TestApplyBatch_ReadHitBeforeMissExposesNoBody(t *testing.T) {
	s := makeStore(t)
	key := partition.NewString("partition1")

	if _, err := s.Put(testDatabase, testContainer, key, "123", itemBody(t, "123", "partition1")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	results, status := mustApply(t, s, key,
		wireOp(dombatch.KindRead, "123", nil, ""),
		wireOp(dombatch.KindRead, "missing", nil, ""),
	)

	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", status, http.StatusNotFound)
	}
	if results[0].StatusCode != http.StatusFailedDependency {
		t.Errorf("results[0].StatusCode = %d, want 424", results[0].StatusCode)
	}
	// The hit read was rolled back with the batch; its payload must not
	// leak through the rewritten slot.
	if len(results[0].ResourceBody) != 0 || results[0].ETag != "" {
		t.Errorf("results[0] leaked data: body=%s etag=%q", results[0].ResourceBody, results[0].ETag)
	}
	if results[1].StatusCode != http.StatusNotFound {
		t.Errorf("results[1].StatusCode = %d, want 404", results[1].StatusCode)
	}
}

func TestApplyBatch_CreateConflict(t *testing.T) {
	s := makeStore(t)
	key := partition.NewString("partition1")

	if _, err := s.Put(testDatabase, testContainer, key, "123", itemBody(t, "123", "partition1")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	results, status := mustApply(t, s, key,
		wireOp(dombatch.KindCreate, "123", itemBody(t, "123", "partition1"), ""),
		wireOp(dombatch.KindRead, "123", nil, ""),
	)

	if status != http.StatusConflict {
		t.Fatalf("status = %d, want %d", status, http.StatusConflict)
	}
	if results[0].StatusCode != http.StatusConflict {
		t.Errorf("results[0].StatusCode = %d, want 409", results[0].StatusCode)
	}
	if results[1].StatusCode != http.StatusFailedDependency {
		t.Errorf("results[1].StatusCode = %d, want 424", results[1].StatusCode)
	}
}

func TestApplyBatch_ReplaceHonorsIfMatch(t *testing.T) {
	s := makeStore(t)
	key := partition.NewString("partition1")

	etag, err := s.Put(testDatabase, testContainer, key, "123", itemBody(t, "123", "partition1"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	_, status := mustApply(t, s, key,
		wireOp(dombatch.KindReplace, "123", itemBody(t, "123", "partition1"), `"stale-etag"`),
	)
	if status != http.StatusPreconditionFailed {
		t.Fatalf("stale etag: status = %d, want 412", status)
	}

	results, status := mustApply(t, s, key,
		wireOp(dombatch.KindReplace, "123", itemBody(t, "123", "partition1"), etag),
	)
	if status != http.StatusOK {
		t.Fatalf("current etag: status = %d, want 200", status)
	}
	if results[0].ETag == etag {
		t.Error("replace did not rotate the etag")
	}
}

func TestApplyBatch_DeleteRemovesTheItem(t *testing.T) {
	s := makeStore(t)
	key := partition.NewString("partition1")

	if _, err := s.Put(testDatabase, testContainer, key, "123", itemBody(t, "123", "partition1")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	results, status := mustApply(t, s, key,
		wireOp(dombatch.KindDelete, "123", nil, ""),
	)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if results[0].StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", results[0].StatusCode)
	}
	if len(results[0].ResourceBody) != 0 {
		t.Error("delete result carries a resource body")
	}
	if n := s.Len(testDatabase, testContainer); n != 0 {
		t.Errorf("Len = %d after delete, want 0", n)
	}
}

func TestApplyBatch_UpsertCreatesThenReplaces(t *testing.T) {
	s := makeStore(t)
	key := partition.NewString("partition1")

	first, status := mustApply(t, s, key,
		wireOp(dombatch.KindUpsert, "123", itemBody(t, "123", "partition1"), ""),
	)
	if status != http.StatusOK || first[0].StatusCode != http.StatusCreated {
		t.Fatalf("first upsert = %d/%d, want 200/201", status, first[0].StatusCode)
	}

	second, status := mustApply(t, s, key,
		wireOp(dombatch.KindUpsert, "123", itemBody(t, "123", "partition1"), ""),
	)
	if status != http.StatusOK || second[0].StatusCode != http.StatusOK {
		t.Fatalf("second upsert = %d/%d, want 200/200", status, second[0].StatusCode)
	}
	if second[0].ETag == first[0].ETag {
		t.Error("upsert did not rotate the etag")
	}
}

func TestApplyBatch_PatchRewritesTheItem(t *testing.T) {
	s := makeStore(t)
	key := partition.NewString("partition1")

	body := []byte(`{"id":"123","pk":"partition1","count":1,"nested":{"keep":true}}`)
	if _, err := s.Put(testDatabase, testContainer, key, "123", body); err != nil {
		t.Fatalf("Put: %v", err)
	}

	doc := []byte(`{"operations":[` +
		`{"op":"set","path":"/description","value":"patched"},` +
		`{"op":"incr","path":"/count","value":2},` +
		`{"op":"remove","path":"/nested"}]}`)
	results, status := mustApply(t, s, key,
		wireOp(dombatch.KindPatch, "123", doc, ""),
	)
	if status != http.StatusOK || results[0].StatusCode != http.StatusOK {
		t.Fatalf("patch = %d/%d, want 200/200", status, results[0].StatusCode)
	}

	stored, _, ok := s.Get(testDatabase, testContainer, key, "123")
	if !ok {
		t.Fatal("patched item not found")
	}
	got := string(stored)
	if !strings.Contains(got, `"description":"patched"`) || !strings.Contains(got, `"count":3`) {
		t.Errorf("patched body = %s", got)
	}
	if strings.Contains(got, "nested") {
		t.Errorf("removed member still present: %s", got)
	}
}

func TestApplyBatch_PatchErrorAborts(t *testing.T) {
	s := makeStore(t)
	key := partition.NewString("partition1")

	if _, err := s.Put(testDatabase, testContainer, key, "123", itemBody(t, "123", "partition1")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	doc := []byte(`{"operations":[{"op":"replace","path":"/missing","value":1}]}`)
	results, status := mustApply(t, s, key,
		wireOp(dombatch.KindPatch, "123", doc, ""),
	)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	if results[0].StatusCode != http.StatusBadRequest {
		t.Errorf("results[0].StatusCode = %d, want 400", results[0].StatusCode)
	}
}

func TestApplyBatch_UnknownOperationType(t *testing.T) {
	s := makeStore(t)
	key := partition.NewString("partition1")

	_, status := mustApply(t, s, key,
		wireOp(dombatch.Kind("Merge"), "123", nil, ""),
	)
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
}

func TestApplyBatch_UnknownContainer(t *testing.T) {
	s := NewStore()

	_, _, err := s.ApplyBatch("nope", "nope", partition.NewString("partition1"), []cosmoshttp.BatchOperation{
		wireOp(dombatch.KindRead, "123", nil, ""),
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want domain.ErrNotFound", err)
	}
}

func TestApplyBatch_PartitionsAreIsolated(t *testing.T) {
	s := makeStore(t)

	_, status := mustApply(t, s, partition.NewString("partition1"),
		wireOp(dombatch.KindCreate, "123", itemBody(t, "123", "partition1"), ""),
	)
	if status != http.StatusOK {
		t.Fatalf("first partition: status = %d", status)
	}

	// Same id under a different key must not conflict.
	results, status := mustApply(t, s, partition.NewString("partition2"),
		wireOp(dombatch.KindCreate, "123", itemBody(t, "123", "partition2"), ""),
	)
	if status != http.StatusOK || results[0].StatusCode != http.StatusCreated {
		t.Fatalf("second partition: status = %d/%d, want 200/201", status, results[0].StatusCode)
	}
	if n := s.Len(testDatabase, testContainer); n != 2 {
		t.Errorf("Len = %d, want 2", n)
	}
}
