package batch

import (
	"encoding/json"
	"net/http"
)

// Result is the interpreted outcome of one operation in a batch.
type Result struct {
	index         int
	itemID        string
	kind          Kind
	statusCode    int
	subStatusCode int
	etag          string
	body          json.RawMessage
}

// Index returns the operation's position in the batch.
func (r Result) Index() int { return r.index }

// ItemID returns the target item identifier.
func (r Result) ItemID() string { return r.itemID }

// Kind returns the operation type.
func (r Result) Kind() Kind { return r.kind }

// StatusCode returns the per-operation HTTP status.
func (r Result) StatusCode() int { return r.statusCode }

// SubStatusCode returns the store's sub-status, zero when unset.
func (r Result) SubStatusCode() int { return r.subStatusCode }

// ETag returns the item's etag after the operation, empty for failures.
func (r Result) ETag() string { return r.etag }

// Body returns the resource body carried by the result, nil when absent.
func (r Result) Body() json.RawMessage { return r.body }

// Succeeded reports whether the operation completed with a 2xx status.
func (r Result) Succeeded() bool {
	return r.statusCode >= http.StatusOK && r.statusCode < http.StatusMultipleChoices
}

// DependentFailure reports whether the operation failed only because
// another operation in the batch failed.
func (r Result) DependentFailure() bool {
	return r.statusCode == http.StatusFailedDependency
}
