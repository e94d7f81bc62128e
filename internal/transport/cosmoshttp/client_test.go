package cosmoshttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	dombatch "github.com/johschmidt42/azure-cosmosdb-batch-api/internal/domain/batch"
	"github.com/johschmidt42/azure-cosmosdb-batch-api/internal/domain/partition"
)

func testClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	auth, err := NewKeyAuthorizer(testMasterKey(t))
	if err != nil {
		t.Fatalf("NewKeyAuthorizer: %v", err)
	}
	c, err := NewClient(&Config{Endpoint: serverURL, Authorizer: auth})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func demoOperations() []dombatch.Operation {
	return []dombatch.Operation{
		dombatch.NewUpsert([]byte(`{"id":"123","partitionKey":"partition1"}`)),
		dombatch.NewRead("123"),
	}
}

func TestNewClient_Validation(t *testing.T) {
	auth, err := NewKeyAuthorizer(testMasterKey(t))
	if err != nil {
		t.Fatalf("NewKeyAuthorizer: %v", err)
	}
	if _, err := NewClient(&Config{Authorizer: auth}); err == nil {
		t.Error("expected error for missing endpoint")
	}
	if _, err := NewClient(&Config{Endpoint: "https://x.documents.azure.com"}); err == nil {
		t.Error("expected error for missing authorizer")
	}
	if _, err := NewClient(&Config{Endpoint: "ftp://x", Authorizer: auth}); err == nil {
		t.Error("expected error for non-http scheme")
	}
}

func TestSubmitBatch_RequestFraming(t *testing.T) {
	var got struct {
		path    string
		headers http.Header
		ops     []BatchOperation
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.headers = r.Header.Clone()
		if err := json.NewDecoder(r.Body).Decode(&got.ops); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set(HeaderActivityID, "srv-act")
		w.Header().Set(HeaderRequestCharge, "9.87")
		w.Header().Set(HeaderContentType, ContentTypeJSON)
		results := []BatchResult{
			{StatusCode: http.StatusCreated, ETag: `"e1"`},
			{StatusCode: http.StatusOK, ETag: `"e1"`, ResourceBody: []byte(`{"id":"123"}`)},
		}
		json.NewEncoder(w).Encode(results)
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	resp, err := c.SubmitBatch(context.Background(), "demodb", "democoll",
		partition.NewString("partition1"), demoOperations())
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}

	if got.path != "/dbs/demodb/colls/democoll/docs" {
		t.Errorf("path = %q", got.path)
	}
	for header, want := range map[string]string{
		HeaderIsBatch:      "True",
		HeaderBatchAtomic:  "True",
		HeaderBatchOrdered: "True",
		HeaderPartitionKey: `["partition1"]`,
		HeaderVersion:      APIVersion,
	} {
		if v := got.headers.Get(header); v != want {
			t.Errorf("%s = %q, want %q", header, v, want)
		}
	}
	if got.headers.Get(HeaderDate) == "" {
		t.Error("x-ms-date not set")
	}
	if got.headers.Get(HeaderAuthorization) == "" {
		t.Error("Authorization not set")
	}
	if len(got.ops) != 2 {
		t.Fatalf("wire ops = %d, want 2", len(got.ops))
	}
	if got.ops[0].OperationType != "Upsert" || got.ops[0].ID != "123" {
		t.Errorf("first wire op = %+v", got.ops[0])
	}
	if got.ops[1].OperationType != "Read" || got.ops[1].ResourceBody != nil {
		t.Errorf("second wire op = %+v", got.ops[1])
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d", resp.StatusCode)
	}
	if resp.ActivityID != "srv-act" {
		t.Errorf("ActivityID = %q", resp.ActivityID)
	}
	if resp.RequestCharge != 9.87 {
		t.Errorf("RequestCharge = %v", resp.RequestCharge)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("Results = %d", len(resp.Results))
	}
	if resp.Results[0].ETag != `"e1"` {
		t.Errorf("Results[0].ETag = %q", resp.Results[0].ETag)
	}
	if string(resp.Results[1].ResourceBody) != `{"id":"123"}` {
		t.Errorf("Results[1].ResourceBody = %s", resp.Results[1].ResourceBody)
	}
	if resp.Elapsed <= 0 {
		t.Error("Elapsed not measured")
	}
}

func TestSubmitBatch_AbortedVerdictIsAResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode([]BatchResult{
			{StatusCode: http.StatusConflict},
			{StatusCode: http.StatusFailedDependency},
		})
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	resp, err := c.SubmitBatch(context.Background(), "demodb", "democoll",
		partition.NewString("partition1"), demoOperations())
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("StatusCode = %d", resp.StatusCode)
	}
	if len(resp.Results) != 2 {
		t.Errorf("Results = %d, want both verdict entries", len(resp.Results))
	}
}

func TestSubmitBatch_ErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(ErrorBody{Code: "429", Message: "request rate is large"})
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	resp, err := c.SubmitBatch(context.Background(), "demodb", "democoll",
		partition.NewString("partition1"), demoOperations())
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d", resp.StatusCode)
	}
	if resp.ErrorMessage != "request rate is large" {
		t.Errorf("ErrorMessage = %q", resp.ErrorMessage)
	}
	if resp.Results != nil {
		t.Errorf("Results = %v, want nil", resp.Results)
	}
}

func TestSubmitBatch_CredentialsRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(ErrorBody{Code: "Unauthorized", Message: "signature mismatch"})
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	_, err := c.SubmitBatch(context.Background(), "demodb", "democoll",
		partition.NewString("partition1"), demoOperations())
	if err == nil {
		t.Fatal("expected error for rejected credentials")
	}
}

func TestSubmitBatch_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	c := testClient(t, server.URL)
	_, err := c.SubmitBatch(context.Background(), "demodb", "democoll",
		partition.NewString("partition1"), demoOperations())
	if err == nil {
		t.Fatal("expected error for closed server")
	}
}

func TestCreateContainerIfNotExists(t *testing.T) {
	var got struct {
		path  string
		props ContainerProperties
	}
	status := http.StatusCreated
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got.props); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(status)
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	created, err := c.CreateContainerIfNotExists(context.Background(), "demodb", "democoll", "/partitionKey")
	if err != nil {
		t.Fatalf("CreateContainerIfNotExists: %v", err)
	}
	if !created {
		t.Error("created = false for 201")
	}
	if got.path != "/dbs/demodb/colls" {
		t.Errorf("path = %q", got.path)
	}
	if got.props.ID != "democoll" {
		t.Errorf("props.ID = %q", got.props.ID)
	}
	if len(got.props.PartitionKey.Paths) != 1 || got.props.PartitionKey.Paths[0] != "/partitionKey" {
		t.Errorf("props.PartitionKey.Paths = %v", got.props.PartitionKey.Paths)
	}
	if got.props.PartitionKey.Kind != "Hash" || got.props.PartitionKey.Version != 2 {
		t.Errorf("props.PartitionKey = %+v", got.props.PartitionKey)
	}

	status = http.StatusConflict
	created, err = c.CreateContainerIfNotExists(context.Background(), "demodb", "democoll", "/partitionKey")
	if err != nil {
		t.Fatalf("CreateContainerIfNotExists on conflict: %v", err)
	}
	if created {
		t.Error("created = true for 409")
	}

	status = http.StatusBadRequest
	if _, err := c.CreateContainerIfNotExists(context.Background(), "demodb", "democoll", "/partitionKey"); err == nil {
		t.Error("expected error for 400")
	}
}
