package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/go-openapi/strfmt"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	cosmosbatch "github.com/johschmidt42/azure-cosmosdb-batch-api"
	"github.com/johschmidt42/azure-cosmosdb-batch-api/internal/config"
	"github.com/johschmidt42/azure-cosmosdb-batch-api/internal/emulator"
	logpkg "github.com/johschmidt42/azure-cosmosdb-batch-api/internal/logger"
	"github.com/johschmidt42/azure-cosmosdb-batch-api/internal/metrics"
	"github.com/johschmidt42/azure-cosmosdb-batch-api/internal/telemetry"
	"github.com/johschmidt42/azure-cosmosdb-batch-api/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting cosmosbatch demo",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.String("database", cfg.Account.Database),
		zap.String("container", cfg.Account.Container),
		zap.Bool("emulator", cfg.Account.UseEmulator()),
	)

	ctx := logpkg.WithContext(context.Background(), logger)

	var tracerProvider trace.TracerProvider
	if cfg.Telemetry.Enabled {
		tp, err := telemetry.Setup(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			InstanceName: cfg.Telemetry.InstanceName,
			Endpoint:     cfg.Telemetry.Endpoint,
			Insecure:     cfg.Telemetry.Insecure,
			Console:      cfg.Telemetry.Console,
			SampleRatio:  cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			logger.Fatal("Failed to set up telemetry", zap.Error(err))
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
		tracerProvider = tp
	}

	endpoint := cfg.Account.Host()
	if cfg.Account.UseEmulator() {
		// Register batch metrics explicitly (no init())
		metrics.RegisterBatchMetrics()

		var stop func()
		endpoint, stop, err = startEmulator(&cfg, logger)
		if err != nil {
			logger.Fatal("Failed to start emulator", zap.Error(err))
		}
		defer stop()
		logger.Info("In-process emulator listening", zap.String("endpoint", endpoint))
	}

	opts, err := clientOptions(&cfg, tracerProvider)
	if err != nil {
		logger.Fatal("Failed to build client options", zap.Error(err))
	}
	client, err := cosmosbatch.New(endpoint, opts...)
	if err != nil {
		logger.Fatal("Failed to create client", zap.Error(err))
	}

	if err := runDemo(ctx, client, &cfg); err != nil {
		logger.Fatal("Demo failed", zap.Error(err))
	}
	logger.Info("Demo finished")
}

// startEmulator serves the in-process store on a loopback port and
// returns its endpoint together with a shutdown func.
func startEmulator(cfg *config.Config, logger *zap.Logger) (string, func(), error) {
	srv, err := emulator.New(&emulator.Config{
		MasterKey:       cfg.Emulator.MasterKey,
		ExecutionWindow: cfg.Emulator.Window(),
		Logger:          logger,
	})
	if err != nil {
		return "", nil, fmt.Errorf("create emulator: %w", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("listen: %w", err)
	}

	httpSrv := &http.Server{Handler: srv.Handler()}
	go func() {
		if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("Emulator server error", zap.Error(err))
		}
	}()

	stop := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}
	return "http://" + ln.Addr().String(), stop, nil
}

// clientOptions picks the credential source: emulator key, account
// access key, or AAD via DefaultAzureCredential.
func clientOptions(cfg *config.Config, tp trace.TracerProvider) ([]cosmosbatch.Option, error) {
	opts := []cosmosbatch.Option{
		cosmosbatch.WithExecutionWindow(cfg.Batch.Window()),
	}
	if tp != nil {
		opts = append(opts, cosmosbatch.WithTracerProvider(tp))
	}

	switch {
	case cfg.Account.UseEmulator():
		opts = append(opts, cosmosbatch.WithMasterKey(cfg.Emulator.MasterKey))
	case cfg.Account.AccessKey != "":
		opts = append(opts, cosmosbatch.WithMasterKey(cfg.Account.AccessKey))
	default:
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("default azure credential: %w", err)
		}
		opts = append(opts, cosmosbatch.WithTokenCredential(cred))
	}
	return opts, nil
}

// demoItem is the payload shape the demo writes.
type demoItem struct {
	ID           string          `json:"id"`
	PartitionKey string          `json:"partitionKey"`
	UpdatedAt    strfmt.DateTime `json:"updatedAt"`
}

// runDemo provisions the container, then writes and reads back two
// items in one transactional batch.
func runDemo(ctx context.Context, client *cosmosbatch.Client, cfg *config.Config) error {
	logger := logpkg.FromContext(ctx)

	db := client.Database(cfg.Account.Database)
	created, err := db.CreateContainerIfNotExists(ctx, cosmosbatch.ContainerProperties{
		ID:               cfg.Account.Container,
		PartitionKeyPath: cfg.Account.PartitionKeyPath,
	})
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	logger.Info("Container ready",
		zap.String("container", cfg.Account.Container),
		zap.Bool("created", created),
	)

	container := db.Container(cfg.Account.Container).
		WithPartitionKeyPath(cfg.Account.PartitionKeyPath)

	batch := container.NewBatch(cosmosbatch.NewPartitionKeyString("partition1"))
	for _, id := range []string{"123", "456"} {
		body, err := json.Marshal(demoItem{
			ID:           id,
			PartitionKey: "partition1",
			UpdatedAt:    strfmt.DateTime(time.Now().UTC()),
		})
		if err != nil {
			return fmt.Errorf("encode item %s: %w", id, err)
		}
		batch.UpsertItem(body)
	}
	batch.ReadItem("123")
	batch.ReadItem("456")

	resp, err := batch.Execute(ctx)
	if err != nil {
		reportFailure(logger, err)
		return err
	}

	logger.Info("Batch committed",
		zap.String("activity_id", resp.ActivityID),
		zap.Float64("request_charge", resp.RequestCharge),
		zap.Duration("elapsed", resp.Elapsed),
	)
	for _, r := range resp.Results {
		logger.Info("Operation result",
			zap.String("operation", string(r.Kind)),
			zap.String("item_id", r.ItemID),
			zap.Int("status", r.StatusCode),
			zap.String("etag", r.ETag),
		)
		if r.Kind == cosmosbatch.OperationRead {
			fmt.Printf("%s\n", r.Body)
		}
	}
	return nil
}

// reportFailure logs the abort pattern: the failing operation keeps its
// real status while every other operation reports 424.
func reportFailure(logger *zap.Logger, err error) {
	var batchErr *cosmosbatch.BatchError
	if !errors.As(err, &batchErr) {
		logger.Error("Batch execution failed", zap.Error(err))
		return
	}
	logger.Error("Batch aborted",
		zap.Int("failed_index", batchErr.FailedIndex),
		zap.String("operation", string(batchErr.Kind)),
		zap.String("item_id", batchErr.ItemID),
		zap.Int("status", batchErr.StatusCode),
		zap.Int("substatus", batchErr.SubStatusCode),
		zap.Error(err),
	)
}
