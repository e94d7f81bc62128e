package cosmosbatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	dombatch "github.com/johschmidt42/azure-cosmosdb-batch-api/internal/domain/batch"
	"github.com/johschmidt42/azure-cosmosdb-batch-api/internal/domain/partition"
	"github.com/johschmidt42/azure-cosmosdb-batch-api/internal/transport/cosmoshttp"
	batchuc "github.com/johschmidt42/azure-cosmosdb-batch-api/internal/usecase/batch"
)

// tracerName identifies client spans when a tracer provider is set.
const tracerName = "github.com/johschmidt42/azure-cosmosdb-batch-api"

// Client is the account-level entry point.
type Client struct {
	endpoint string
	rest     *cosmoshttp.Client
	window   time.Duration
	tracer   trace.Tracer
	obs      *observer
}

// New creates a Client for the account at endpoint, for example
// https://myaccount.documents.azure.com:443/. One credential source is
// required; when both are set the master key wins, matching how the
// account connection string is usually preferred over AAD locally.
func New(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("cosmosbatch: endpoint required")
	}
	cfg := defaultClientConfig()
	for _, o := range opts {
		o.apply(cfg)
	}

	authorizer, err := createAuthorizer(cfg, endpoint)
	if err != nil {
		return nil, err
	}

	rest, err := cosmoshttp.NewClient(&cosmoshttp.Config{
		Endpoint:   endpoint,
		Authorizer: authorizer,
		HTTPClient: cfg.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("cosmosbatch: create client: %w", err)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	c := &Client{
		endpoint: endpoint,
		rest:     rest,
		window:   cfg.window,
		obs:      obs,
	}
	if cfg.tracerProvider != nil {
		c.tracer = cfg.tracerProvider.Tracer(tracerName)
	}
	return c, nil
}

func createAuthorizer(cfg *clientConfig, endpoint string) (cosmoshttp.Authorizer, error) {
	switch {
	case cfg.masterKey != "":
		a, err := cosmoshttp.NewKeyAuthorizer(cfg.masterKey)
		if err != nil {
			return nil, fmt.Errorf("cosmosbatch: master key: %w", err)
		}
		return a, nil
	case cfg.credential != nil:
		return cosmoshttp.NewTokenAuthorizer(cfg.credential, endpoint), nil
	default:
		return nil, errors.New("cosmosbatch: credentials required (use WithMasterKey or WithTokenCredential)")
	}
}

// Endpoint returns the account endpoint the client talks to.
func (c *Client) Endpoint() string { return c.endpoint }

// Database scopes the client to one database. No network call is made.
func (c *Client) Database(name string) *Database {
	return &Database{client: c, name: name}
}

// Database addresses one database of the account.
type Database struct {
	client *Client
	name   string
}

// Name returns the database name.
func (d *Database) Name() string { return d.name }

// CreateContainerIfNotExists provisions the container described by
// props. It reports true when the container was created and false when
// it already existed.
func (d *Database) CreateContainerIfNotExists(ctx context.Context, props ContainerProperties) (created bool, err error) {
	start := time.Now()
	defer func() { d.client.obs.observe("create_container", start, err) }()

	if err := props.validate(); err != nil {
		return false, err
	}
	return d.client.rest.CreateContainerIfNotExists(ctx, d.name, props.ID, props.PartitionKeyPath)
}

// Container scopes the database to one container. No network call is
// made; a missing container surfaces as 404 on the first batch.
func (d *Database) Container(name string) *Container {
	transport := &containerTransport{
		rest:      d.client.rest,
		database:  d.name,
		container: name,
	}
	svc := batchuc.New(transport).WithExecutionWindow(d.client.window)
	if d.client.tracer != nil {
		svc = svc.WithTracer(d.client.tracer)
	}
	return &Container{
		database: d,
		name:     name,
		executor: svc,
		obs:      d.client.obs,
	}
}

// batchExecutor is the slice of the batch service the container needs.
type batchExecutor interface {
	Execute(ctx context.Context, req *dombatch.Request) (*dombatch.Outcome, error)
}

// Container addresses one container and builds batches against it.
type Container struct {
	database *Database
	name     string
	keyPath  string
	executor batchExecutor
	obs      *observer
}

// Name returns the container name.
func (c *Container) Name() string { return c.name }

// WithPartitionKeyPath tells the container where item bodies carry
// their partition key, using the /member form, e.g. /partitionKey.
// Setting it enables client-side checks that every operation body
// targets the batch key, and key inference for NewBatchFromItems.
func (c *Container) WithPartitionKeyPath(path string) *Container {
	c.keyPath = path
	return c
}

// containerTransport binds the account client to one container so it
// satisfies the batch service's transport contract.
type containerTransport struct {
	rest      *cosmoshttp.Client
	database  string
	container string
}

func (t *containerTransport) Submit(
	ctx context.Context, key partition.Key, ops []dombatch.Operation,
) (*dombatch.Response, error) {
	return t.rest.SubmitBatch(ctx, t.database, t.container, key, ops)
}
