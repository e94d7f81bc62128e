// Package emulator is an in-process stand-in for the transactional
// document store. It speaks the same wire protocol as the real
// endpoint (container creation plus single-exchange atomic batches),
// so the client can be pointed at it unchanged.
package emulator

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	dombatch "github.com/johschmidt42/azure-cosmosdb-batch-api/internal/domain/batch"
	"github.com/johschmidt42/azure-cosmosdb-batch-api/internal/domain/partition"
	"github.com/johschmidt42/azure-cosmosdb-batch-api/internal/metrics"
	"github.com/johschmidt42/azure-cosmosdb-batch-api/internal/transport/cosmoshttp"
)

// defaultWindow bounds server-side batch execution when the config does
// not say otherwise.
const defaultWindow = 5 * time.Second

// Config holds the emulator settings. The zero value is usable: no
// signature verification, default execution window, no logging.
type Config struct {
	// MasterKey, when set, makes the emulator verify inbound request
	// signatures against this base64 key and reject everything else.
	MasterKey string
	// ExecutionWindow bounds how long a batch may take server side.
	// Injected latency at or beyond the window produces a timeout
	// verdict without applying anything.
	ExecutionWindow time.Duration
	Logger          *zap.Logger
}

// Server routes store requests to an in-memory Store.
type Server struct {
	store     *Store
	router    *chi.Mux
	masterKey []byte
	window    time.Duration
	logger    *zap.Logger

	mu    sync.Mutex
	delay time.Duration
}

// New creates an emulator server.
func New(cfg *Config) (*Server, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	s := &Server{
		store:  NewStore(),
		window: cfg.ExecutionWindow,
		logger: cfg.Logger,
	}
	if s.window <= 0 {
		s.window = defaultWindow
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if cfg.MasterKey != "" {
		key, err := cosmoshttp.DecodeMasterKey(cfg.MasterKey)
		if err != nil {
			return nil, err
		}
		s.masterKey = key
	}

	r := chi.NewRouter()
	r.Use(metrics.Middleware())
	r.Post("/dbs/{db}/colls", s.handleCreateContainer)
	r.Post("/dbs/{db}/colls/{coll}/docs", s.handleBatch)
	r.Handle("/metrics", promhttp.Handler())
	s.router = r
	return s, nil
}

// Handler exposes the emulator as an http.Handler, e.g. for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Store exposes the backing store for direct seeding and inspection.
func (s *Server) Store() *Store { return s.store }

// SetDelay injects server-side latency before batch work starts. A
// delay at or beyond the execution window makes the store give up with
// a timeout verdict instead of applying the batch.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

func (s *Server) currentDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delay
}

func (s *Server) handleCreateContainer(w http.ResponseWriter, r *http.Request) {
	db := chi.URLParam(r, "db")
	if !s.authorize(w, r, cosmoshttp.ResourceCollections, "dbs/"+db) {
		return
	}

	var props cosmoshttp.ContainerProperties
	if err := json.NewDecoder(r.Body).Decode(&props); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "Invalid container definition: "+err.Error())
		return
	}
	if props.ID == "" || len(props.PartitionKey.Paths) == 0 {
		writeError(w, http.StatusBadRequest, "BadRequest", "Container id and partition key path are required")
		return
	}

	// Databases spring into existence with their first container.
	if !s.store.CreateContainer(db, props.ID, props.PartitionKey.Paths[0]) {
		writeError(w, http.StatusConflict, "Conflict", "Container already exists")
		return
	}
	s.logger.Info("Container created",
		zap.String("database", db),
		zap.String("container", props.ID),
		zap.String("partition_key_path", props.PartitionKey.Paths[0]))
	writeJSON(w, http.StatusCreated, props)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	db := chi.URLParam(r, "db")
	coll := chi.URLParam(r, "coll")
	if !s.authorize(w, r, cosmoshttp.ResourceDocuments, "dbs/"+db+"/colls/"+coll) {
		return
	}

	if r.Header.Get(cosmoshttp.HeaderIsBatch) != "True" {
		rejectBatch(w, http.StatusBadRequest, "BadRequest", "Only batch requests are supported")
		return
	}
	if r.Header.Get(cosmoshttp.HeaderBatchAtomic) != "True" {
		rejectBatch(w, http.StatusBadRequest, "BadRequest", "Non-atomic batches are not supported")
		return
	}

	keyPath, ok := s.store.KeyPath(db, coll)
	if !ok {
		rejectBatch(w, http.StatusNotFound, "NotFound", fmt.Sprintf("Container %s/%s does not exist", db, coll))
		return
	}

	key, err := partition.ParseWire(r.Header.Get(cosmoshttp.HeaderPartitionKey))
	if err != nil {
		rejectBatch(w, http.StatusBadRequest, "BadRequest", "Invalid partition key header: "+err.Error())
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		rejectBatch(w, http.StatusBadRequest, "BadRequest", "Failed to read request body")
		return
	}
	if len(body) > dombatch.MaxPayloadBytes {
		rejectBatch(w, http.StatusRequestEntityTooLarge, "RequestEntityTooLarge",
			fmt.Sprintf("Batch payload is %d bytes, limit is %d", len(body), dombatch.MaxPayloadBytes))
		return
	}

	var ops []cosmoshttp.BatchOperation
	if err := json.Unmarshal(body, &ops); err != nil {
		rejectBatch(w, http.StatusBadRequest, "BadRequest", "Invalid batch body: "+err.Error())
		return
	}
	if len(ops) == 0 {
		rejectBatch(w, http.StatusBadRequest, "BadRequest", "Batch has no operations")
		return
	}
	if len(ops) > dombatch.MaxOperations {
		rejectBatch(w, http.StatusBadRequest, "BadRequest",
			fmt.Sprintf("Batch has %d operations, limit is %d", len(ops), dombatch.MaxOperations))
		return
	}
	if msg, ok := checkHomogeneity(ops, keyPath, key); !ok {
		rejectBatch(w, http.StatusBadRequest, "BadRequest", msg)
		return
	}
	metrics.BatchSizeOperations.Observe(float64(len(ops)))

	if delay := s.currentDelay(); delay > 0 {
		if !s.simulateLatency(w, r, delay) {
			return
		}
	}

	results, status, err := s.store.ApplyBatch(db, coll, key, ops)
	if err != nil {
		rejectBatch(w, http.StatusNotFound, "NotFound", err.Error())
		return
	}

	verdict := "committed"
	if status >= http.StatusBadRequest {
		verdict = "aborted"
	}
	metrics.BatchExchangesTotal.WithLabelValues(verdict).Inc()
	for i, res := range results {
		metrics.BatchOperationsTotal.WithLabelValues(ops[i].OperationType, strconv.Itoa(res.StatusCode)).Inc()
	}
	metrics.BatchRequestUnits.Add(totalCharge(results))

	s.logger.Debug("Batch applied",
		zap.String("database", db),
		zap.String("container", coll),
		zap.Int("operations", len(ops)),
		zap.Int("status", status))

	if id := r.Header.Get(cosmoshttp.HeaderActivityID); id != "" {
		w.Header().Set(cosmoshttp.HeaderActivityID, id)
	}
	w.Header().Set(cosmoshttp.HeaderRequestCharge,
		strconv.FormatFloat(totalCharge(results), 'f', 2, 64))
	writeJSON(w, status, results)
}

// checkHomogeneity rejects batches where a document body names a
// partition key that disagrees with the batch header. Bodies without
// the key member are stored under the header key.
func checkHomogeneity(ops []cosmoshttp.BatchOperation, keyPath string, key partition.Key) (string, bool) {
	for i, op := range ops {
		if len(op.ResourceBody) == 0 || dombatch.Kind(op.OperationType) == dombatch.KindPatch {
			continue
		}
		bodyKey, ok := partition.Extract(op.ResourceBody, keyPath)
		if ok && !bodyKey.Equal(key) {
			return fmt.Sprintf("Operation %d partition key %s does not match the batch key %s",
				i, bodyKey, key), false
		}
	}
	return "", true
}

// simulateLatency sleeps the injected delay, giving up at the execution
// window the way the real store does. Reports whether the batch should
// still run.
func (s *Server) simulateLatency(w http.ResponseWriter, r *http.Request, delay time.Duration) bool {
	wait := delay
	expired := wait >= s.window
	if expired {
		wait = s.window
	}
	select {
	case <-time.After(wait):
	case <-r.Context().Done():
		// Caller hung up, nothing left to answer.
		return false
	}
	if expired {
		metrics.BatchExchangesTotal.WithLabelValues("timeout").Inc()
		writeError(w, http.StatusRequestTimeout, "RequestTimeout",
			fmt.Sprintf("Batch did not complete within the %s execution window", s.window))
		return false
	}
	return true
}

// authorize verifies the master key signature when a key is configured.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, resourceType, resourceLink string) bool {
	if s.masterKey == nil {
		return true
	}
	date := r.Header.Get(cosmoshttp.HeaderDate)
	auth, err := url.QueryUnescape(r.Header.Get(cosmoshttp.HeaderAuthorization))
	if err != nil || date == "" || auth == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Missing or malformed authorization header")
		return false
	}
	want := "type=master&ver=1.0&sig=" +
		cosmoshttp.MasterKeySignature(s.masterKey, r.Method, resourceType, resourceLink, date)
	if auth != want {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Signature mismatch")
		return false
	}
	return true
}

func totalCharge(results []cosmoshttp.BatchResult) float64 {
	var total float64
	for _, res := range results {
		total += res.RequestCharge
	}
	return total
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, cosmoshttp.ErrorBody{Code: code, Message: message})
}

// rejectBatch answers a batch that failed validation before any
// operation ran.
func rejectBatch(w http.ResponseWriter, status int, code, message string) {
	metrics.BatchExchangesTotal.WithLabelValues("rejected").Inc()
	writeError(w, status, code, message)
}
