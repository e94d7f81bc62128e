package batch

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/johschmidt42/azure-cosmosdb-batch-api/internal/domain"
	dombatch "github.com/johschmidt42/azure-cosmosdb-batch-api/internal/domain/batch"
)

// DefaultExecutionWindow bounds one batch exchange. The store enforces
// the same window server-side.
const DefaultExecutionWindow = 5 * time.Second

// Service executes transactional batches: validate, submit once, interpret.
type Service struct {
	transport Transport
	window    time.Duration
	logger    *zap.Logger
	tracer    trace.Tracer
}

// New creates a batch executor.
func New(transport Transport) *Service {
	return &Service{
		transport: transport,
		window:    DefaultExecutionWindow,
		logger:    zap.NewNop(),
		tracer:    noop.NewTracerProvider().Tracer(""),
	}
}

// WithLogger configures the executor logger.
func (s *Service) WithLogger(logger *zap.Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithTracer configures the tracer used for execute spans.
func (s *Service) WithTracer(tracer trace.Tracer) *Service {
	if tracer != nil {
		s.tracer = tracer
	}
	return s
}

// WithExecutionWindow configures how long Execute waits for a verdict.
func (s *Service) WithExecutionWindow(window time.Duration) *Service {
	if window > 0 {
		s.window = window
	}
	return s
}

// Execute submits the batch in a single exchange and interprets the verdict.
//
// Validation failures return before any network traffic. A committed batch
// returns a nil error. An aborted batch returns the interpreted Outcome
// together with its representative *dombatch.Failure as the error, so
// callers can pick either view. Cancellation, the execution window and
// transport failures surface as plain errors with no Outcome.
func (s *Service) Execute(ctx context.Context, req *dombatch.Request) (*dombatch.Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "batch.execute",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int("batch.operation_count", req.Len()),
			attribute.String("batch.partition_key", req.Key().String()),
		),
	)
	defer span.End()

	if err := s.admit(req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rejected before submission")
		return nil, err
	}

	start := time.Now()
	resp, err := s.submit(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "exchange failed")
		s.logger.Warn("batch exchange failed",
			zap.String("partition_key", req.Key().String()),
			zap.Int("operations", req.Len()),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, err
	}
	if resp.Elapsed == 0 {
		resp.Elapsed = elapsed
	}

	span.SetAttributes(
		attribute.Int("batch.status_code", resp.StatusCode),
		attribute.String("batch.activity_id", resp.ActivityID),
	)

	if resp.StatusCode == http.StatusRequestTimeout {
		err := errors.Wrapf(domain.ErrExecutionTimedOut,
			"store gave up after %s (activity %s)", s.window, resp.ActivityID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "execution window elapsed")
		s.logger.Warn("batch execution timed out",
			zap.String("activity_id", resp.ActivityID),
			zap.Duration("elapsed", resp.Elapsed),
		)
		return nil, err
	}

	out := dombatch.Interpret(req.Operations(), resp)
	if !out.Committed() {
		span.RecordError(out.Err())
		span.SetStatus(codes.Error, "batch aborted")
		s.logger.Warn("batch aborted",
			zap.String("activity_id", out.ActivityID()),
			zap.Int("status_code", out.StatusCode()),
			zap.Duration("elapsed", out.Elapsed()),
			zap.Error(out.Err()),
		)
		return out, out.Err()
	}

	span.SetStatus(codes.Ok, "")
	s.logger.Debug("batch committed",
		zap.String("activity_id", out.ActivityID()),
		zap.Int("operations", req.Len()),
		zap.Float64("request_charge", out.RequestCharge()),
		zap.Duration("elapsed", out.Elapsed()),
	)
	return out, nil
}

// admit runs every client-side check. No transport traffic happens until
// all of them pass; the request is consumed as the last step.
func (s *Service) admit(req *dombatch.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if err := req.VerifyPartition(); err != nil {
		return err
	}
	return req.MarkExecuted()
}

// submit performs the single exchange under the execution window and
// separates caller cancellation from window expiry.
func (s *Service) submit(ctx context.Context, req *dombatch.Request) (*dombatch.Response, error) {
	execCtx, cancel := context.WithTimeout(ctx, s.window)
	defer cancel()

	resp, err := s.transport.Submit(execCtx, req.Key(), req.Operations())
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, errors.Wrap(ctx.Err(), "batch execute")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, errors.Wrapf(domain.ErrExecutionTimedOut, "no verdict within %s", s.window)
	}
	if errors.Is(err, domain.ErrTransportFailure) {
		return nil, err
	}
	return nil, domain.NewTransportError(err)
}
