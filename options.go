package cosmosbatch

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	batchuc "github.com/johschmidt42/azure-cosmosdb-batch-api/internal/usecase/batch"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	masterKey  string
	credential azcore.TokenCredential
	httpClient *http.Client

	window time.Duration

	logger         *slog.Logger
	metricsReg     prometheus.Registerer
	tracerProvider trace.TracerProvider
}

func defaultClientConfig() *clientConfig {
	return &clientConfig{
		httpClient: http.DefaultClient,
		window:     batchuc.DefaultExecutionWindow,
	}
}

// WithMasterKey authenticates requests with the account master key,
// base64 encoded as shown in the portal.
func WithMasterKey(key string) Option {
	return optionFunc(func(c *clientConfig) {
		c.masterKey = key
	})
}

// WithTokenCredential authenticates requests with an AAD credential,
// for example azidentity.NewDefaultAzureCredential.
func WithTokenCredential(cred azcore.TokenCredential) Option {
	return optionFunc(func(c *clientConfig) {
		c.credential = cred
	})
}

// WithHTTPClient overrides the HTTP client used to reach the store.
func WithHTTPClient(hc *http.Client) Option {
	return optionFunc(func(c *clientConfig) {
		if hc != nil {
			c.httpClient = hc
		}
	})
}

// WithExecutionWindow bounds how long Execute waits for a verdict
// before giving up with ErrTimeout. The default is five seconds.
func WithExecutionWindow(window time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		if window > 0 {
			c.window = window
		}
	})
}

// WithLogger enables structured logging of executed operations.
// Logging is off by default.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers operation counters and latency histograms
// on the given registerer. Metrics are off by default.
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}

// WithTracerProvider emits one client span per executed batch.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return optionFunc(func(c *clientConfig) {
		if tp != nil {
			c.tracerProvider = tp
		}
	})
}
