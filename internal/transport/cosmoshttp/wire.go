// Package cosmoshttp speaks the Cosmos DB REST dialect: request framing,
// master key and AAD signing, and transactional batch submission. The
// emulator package serves the same dialect, so the wire shapes and header
// names live here.
package cosmoshttp

import (
	"encoding/json"

	"github.com/cockroachdb/errors"

	dombatch "github.com/johschmidt42/azure-cosmosdb-batch-api/internal/domain/batch"
)

// APIVersion is the service version pinned for every request.
const APIVersion = "2020-07-15"

// Headers of the dialect.
const (
	HeaderAuthorization = "Authorization"
	HeaderContentType   = "Content-Type"
	HeaderVersion       = "x-ms-version"
	HeaderDate          = "x-ms-date"
	HeaderActivityID    = "x-ms-activity-id"
	HeaderPartitionKey  = "x-ms-documentdb-partitionkey"
	HeaderIsBatch       = "x-ms-cosmos-is-batch-request"
	HeaderBatchAtomic   = "x-ms-cosmos-batch-atomic"
	HeaderBatchOrdered  = "x-ms-cosmos-batch-ordered"
	HeaderRequestCharge = "x-ms-request-charge"
)

// Resource types entering the signature.
const (
	ResourceDatabases   = "dbs"
	ResourceCollections = "colls"
	ResourceDocuments   = "docs"
)

// ContentTypeJSON is the body content type for every exchange.
const ContentTypeJSON = "application/json"

// BatchOperation is one entry of the batch request body.
type BatchOperation struct {
	OperationType string          `json:"operationType"`
	ID            string          `json:"id,omitempty"`
	ResourceBody  json.RawMessage `json:"resourceBody,omitempty"`
	IfMatch       string          `json:"ifMatch,omitempty"`
}

// BatchResult is one entry of the batch response body, positionally
// aligned with the request.
type BatchResult struct {
	StatusCode    int             `json:"statusCode"`
	SubStatusCode int             `json:"subStatusCode,omitempty"`
	ETag          string          `json:"eTag,omitempty"`
	RequestCharge float64         `json:"requestCharge,omitempty"`
	ResourceBody  json.RawMessage `json:"resourceBody,omitempty"`
}

// ErrorBody is the store's non-batch error envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PartitionKeyDefinition mirrors the container partition key schema.
type PartitionKeyDefinition struct {
	Paths   []string `json:"paths"`
	Kind    string   `json:"kind"`
	Version int      `json:"version"`
}

// ContainerProperties is the container create payload.
type ContainerProperties struct {
	ID           string                 `json:"id"`
	PartitionKey PartitionKeyDefinition `json:"partitionKey"`
}

// EncodeOperations renders domain operations into the wire body.
func EncodeOperations(ops []dombatch.Operation) ([]byte, error) {
	wire := make([]BatchOperation, 0, len(ops))
	for _, op := range ops {
		wire = append(wire, BatchOperation{
			OperationType: string(op.Kind()),
			ID:            op.ID(),
			ResourceBody:  op.Body(),
			IfMatch:       op.IfMatch(),
		})
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, errors.Wrap(err, "encode batch operations")
	}
	return body, nil
}

// DecodeResults parses the positional result array of a batch response.
func DecodeResults(body []byte) ([]BatchResult, error) {
	var wire []BatchResult
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, errors.Wrap(err, "decode batch results")
	}
	return wire, nil
}

// toDomainResults converts wire results into the domain view.
func toDomainResults(wire []BatchResult) []dombatch.OperationResult {
	results := make([]dombatch.OperationResult, 0, len(wire))
	for _, r := range wire {
		results = append(results, dombatch.OperationResult{
			StatusCode:    r.StatusCode,
			SubStatusCode: r.SubStatusCode,
			ETag:          r.ETag,
			RequestCharge: r.RequestCharge,
			ResourceBody:  r.ResourceBody,
		})
	}
	return results
}
