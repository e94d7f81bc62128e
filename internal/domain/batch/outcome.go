package batch

import (
	"fmt"
	"net/http"
	"time"

	"github.com/johschmidt42/azure-cosmosdb-batch-api/internal/domain"
)

// State is the overall verdict of a batch exchange.
type State string

// Batch outcome states.
const (
	StateCommitted State = "committed"
	StateAborted   State = "aborted"
)

// Failure identifies the operation that caused a batch to abort.
// Index is -1 when the store rejected the batch without per-operation
// results (throttling, malformed request).
type Failure struct {
	Index         int
	ItemID        string
	Kind          Kind
	StatusCode    int
	SubStatusCode int
	Message       string
}

func (f *Failure) Error() string {
	if f.Index < 0 {
		if f.Message != "" {
			return fmt.Sprintf("%s: status %d: %s", domain.ErrBatchAborted.Error(), f.StatusCode, f.Message)
		}
		return fmt.Sprintf("%s: status %d", domain.ErrBatchAborted.Error(), f.StatusCode)
	}
	msg := fmt.Sprintf("%s: operation %d (%s id=%s): status %d",
		domain.ErrBatchAborted.Error(), f.Index, f.Kind, f.ItemID, f.StatusCode)
	if f.SubStatusCode != 0 {
		msg += fmt.Sprintf(", substatus %d", f.SubStatusCode)
	}
	return msg
}

// Unwrap exposes ErrBatchAborted plus the sentinel matching the failing
// status so callers can use errors.Is against domain errors.
func (f *Failure) Unwrap() []error {
	return []error{domain.ErrBatchAborted, sentinelForStatus(f.StatusCode)}
}

func sentinelForStatus(status int) error {
	switch status {
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrConflict
	case http.StatusPreconditionFailed:
		return domain.ErrPreconditionFailed
	case http.StatusRequestEntityTooLarge:
		return domain.ErrPayloadTooLarge
	case http.StatusTooManyRequests:
		return domain.ErrThrottled
	case http.StatusRequestTimeout:
		return domain.ErrExecutionTimedOut
	default:
		return domain.ErrBatchAborted
	}
}

// Outcome is the interpreted result of a batch exchange.
type Outcome struct {
	state         State
	statusCode    int
	activityID    string
	requestCharge float64
	elapsed       time.Duration
	results       []Result
	failure       *Failure
}

// Interpret builds an Outcome from the raw store response. For aborted
// batches it scans the per-operation results for the first status other
// than 424 FailedDependency; that operation is the representative failure
// and every other operation is reported as a dependent casualty.
func Interpret(ops []Operation, resp *Response) *Outcome {
	committed := resp.Succeeded()
	out := &Outcome{
		statusCode:    resp.StatusCode,
		activityID:    resp.ActivityID,
		requestCharge: resp.RequestCharge,
		elapsed:       resp.Elapsed,
		results:       pairResults(ops, resp.Results, committed),
	}
	if committed {
		out.state = StateCommitted
		return out
	}
	out.state = StateAborted
	out.failure = findFailure(ops, resp)
	return out
}

// pairResults aligns results with operations by position. Nothing was
// applied when the batch aborted, so payloads and etags are dropped and
// only statuses survive.
func pairResults(ops []Operation, raw []OperationResult, committed bool) []Result {
	results := make([]Result, 0, len(raw))
	for i, r := range raw {
		res := Result{
			index:         i,
			statusCode:    r.StatusCode,
			subStatusCode: r.SubStatusCode,
		}
		if committed {
			res.etag = r.ETag
			res.body = r.ResourceBody
		}
		if i < len(ops) {
			res.itemID = ops[i].ID()
			res.kind = ops[i].Kind()
		}
		results = append(results, res)
	}
	return results
}

func findFailure(ops []Operation, resp *Response) *Failure {
	for i, r := range resp.Results {
		if r.StatusCode == http.StatusFailedDependency {
			continue
		}
		f := &Failure{
			Index:         i,
			StatusCode:    r.StatusCode,
			SubStatusCode: r.SubStatusCode,
		}
		if i < len(ops) {
			f.ItemID = ops[i].ID()
			f.Kind = ops[i].Kind()
		}
		return f
	}
	return &Failure{Index: -1, StatusCode: resp.StatusCode, Message: resp.ErrorMessage}
}

// State returns the overall verdict.
func (o *Outcome) State() State { return o.state }

// Committed reports whether every operation was applied.
func (o *Outcome) Committed() bool { return o.state == StateCommitted }

// StatusCode returns the overall HTTP status of the exchange.
func (o *Outcome) StatusCode() int { return o.statusCode }

// ActivityID returns the store's correlation identifier for the exchange.
func (o *Outcome) ActivityID() string { return o.activityID }

// RequestCharge returns the request units consumed by the exchange.
func (o *Outcome) RequestCharge() float64 { return o.requestCharge }

// Elapsed returns the wall time spent on the exchange.
func (o *Outcome) Elapsed() time.Duration { return o.elapsed }

// Results returns the per-operation results in submission order.
func (o *Outcome) Results() []Result { return o.results }

// Failure returns the representative failure, nil for committed batches.
func (o *Outcome) Failure() *Failure { return o.failure }

// Err returns the representative failure as an error, nil for committed
// batches.
func (o *Outcome) Err() error {
	if o.failure == nil {
		return nil
	}
	return o.failure
}
