package batch

import (
	"encoding/json"
	"net/http"
	"time"
)

// OperationResult is the store's verdict on one operation, positionally
// aligned with the submitted batch.
type OperationResult struct {
	StatusCode    int
	SubStatusCode int
	ETag          string
	RequestCharge float64
	ResourceBody  json.RawMessage
}

// Succeeded reports whether the operation completed with a 2xx status.
func (r OperationResult) Succeeded() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

// Response is the raw store response to a batch exchange, before
// interpretation.
type Response struct {
	StatusCode    int
	ActivityID    string
	RequestCharge float64
	ErrorMessage  string
	Elapsed       time.Duration
	Results       []OperationResult
}

// Succeeded reports whether the whole batch committed.
func (r *Response) Succeeded() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}
