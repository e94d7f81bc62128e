// Package cosmosbatch provides a Go client for Azure Cosmos DB
// transactional batches: groups of point operations on a single
// partition key that commit or fail as one unit.
//
// # Building and executing a batch
//
//	client, _ := cosmosbatch.New("https://myaccount.documents.azure.com:443/",
//	    cosmosbatch.WithMasterKey(os.Getenv("COSMOSDB_ACCESS_KEY")),
//	)
//	container := client.Database("demodb").Container("democontainer")
//
//	batch := container.NewBatch(cosmosbatch.NewPartitionKeyString("partition1"))
//	batch.UpsertItem([]byte(`{"id":"123","partitionKey":"partition1"}`))
//	batch.UpsertItem([]byte(`{"id":"456","partitionKey":"partition1"}`))
//	batch.ReadItem("123")
//	batch.ReadItem("456")
//
//	resp, err := batch.Execute(ctx)
//
// A batch holds at most 100 operations and roughly 2 MiB of payload,
// and every operation must target the batch's partition key. Violations
// are reported by Execute before anything is sent.
//
// # Interpreting failures
//
// When the store aborts a batch, exactly one operation carries the real
// failure status; every other operation reports 424 Failed Dependency
// and nothing is written. Execute surfaces the failing operation as a
// *BatchError:
//
//	var batchErr *cosmosbatch.BatchError
//	if errors.As(err, &batchErr) {
//	    log.Printf("operation %d (id %s) failed with status %d",
//	        batchErr.FailedIndex, batchErr.ItemID, batchErr.StatusCode)
//	}
//
// The error chain also carries a sentinel for the failure class, so
// errors.Is(err, cosmosbatch.ErrNotFound) and friends work as usual.
package cosmosbatch
