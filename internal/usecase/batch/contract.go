package batch

import (
	"context"

	dombatch "github.com/johschmidt42/azure-cosmosdb-batch-api/internal/domain/batch"
	"github.com/johschmidt42/azure-cosmosdb-batch-api/internal/domain/partition"
)

// Transport carries a validated batch to the store in a single exchange.
// Implementations return a Response for every exchange the store answered,
// whatever the status, and an error only when no response was produced.
type Transport interface {
	Submit(ctx context.Context, key partition.Key, ops []dombatch.Operation) (*dombatch.Response, error)
}
