package cosmoshttp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	dombatch "github.com/johschmidt42/azure-cosmosdb-batch-api/internal/domain/batch"
	"github.com/johschmidt42/azure-cosmosdb-batch-api/internal/domain/partition"
)

// Config holds the store connection settings.
type Config struct {
	Endpoint   string
	Authorizer Authorizer
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client is an account-scoped Cosmos REST client.
type Client struct {
	endpoint   string
	authorizer Authorizer
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient validates the config and creates a client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "parse endpoint")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Newf("endpoint %q must be http or https", cfg.Endpoint)
	}
	if cfg.Authorizer == nil {
		return nil, errors.New("authorizer is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		authorizer: cfg.Authorizer,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// SubmitBatch posts the operations as one atomic, ordered batch against the
// container and maps the store's answer onto a domain response. An error is
// returned only when no usable response came back.
func (c *Client) SubmitBatch(
	ctx context.Context, db, coll string, key partition.Key, ops []dombatch.Operation,
) (*dombatch.Response, error) {
	body, err := EncodeOperations(ops)
	if err != nil {
		return nil, err
	}
	keyJSON, err := json.Marshal(key)
	if err != nil {
		return nil, errors.Wrap(err, "encode partition key")
	}

	link := "dbs/" + db + "/colls/" + coll
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/"+link+"/docs", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build batch request")
	}

	activityID := uuid.NewString()
	req.Header.Set(HeaderContentType, ContentTypeJSON)
	req.Header.Set(HeaderVersion, APIVersion)
	req.Header.Set(HeaderDate, time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set(HeaderActivityID, activityID)
	req.Header.Set(HeaderPartitionKey, string(keyJSON))
	req.Header.Set(HeaderIsBatch, "True")
	req.Header.Set(HeaderBatchAtomic, "True")
	req.Header.Set(HeaderBatchOrdered, "True")

	if err := c.authorizer.Authorize(req, http.MethodPost, ResourceDocuments, link); err != nil {
		return nil, err
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "submit batch")
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read batch response")
	}
	elapsed := time.Since(start)

	if echoed := httpResp.Header.Get(HeaderActivityID); echoed != "" {
		activityID = echoed
	}
	resp := &dombatch.Response{
		StatusCode:    httpResp.StatusCode,
		ActivityID:    activityID,
		RequestCharge: parseCharge(httpResp.Header.Get(HeaderRequestCharge)),
		Elapsed:       elapsed,
	}

	trimmed := bytes.TrimSpace(data)
	switch {
	case httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden:
		return nil, errors.Newf("store rejected credentials (%d): %s",
			httpResp.StatusCode, errorMessage(trimmed))
	case len(trimmed) > 0 && trimmed[0] == '[':
		wire, err := DecodeResults(trimmed)
		if err != nil {
			return nil, err
		}
		resp.Results = toDomainResults(wire)
	default:
		resp.ErrorMessage = errorMessage(trimmed)
	}

	c.logger.Debug("batch exchange finished",
		zap.String("database", db),
		zap.String("container", coll),
		zap.Int("operations", len(ops)),
		zap.Int("status_code", resp.StatusCode),
		zap.String("activity_id", resp.ActivityID),
		zap.Duration("elapsed", elapsed),
	)
	return resp, nil
}

// CreateContainerIfNotExists provisions the container with the given
// partition key path. It reports whether the container was created.
func (c *Client) CreateContainerIfNotExists(ctx context.Context, db, coll, keyPath string) (bool, error) {
	props := ContainerProperties{
		ID: coll,
		PartitionKey: PartitionKeyDefinition{
			Paths:   []string{keyPath},
			Kind:    "Hash",
			Version: 2,
		},
	}
	body, err := json.Marshal(props)
	if err != nil {
		return false, errors.Wrap(err, "encode container properties")
	}

	link := "dbs/" + db
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/"+link+"/colls", bytes.NewReader(body))
	if err != nil {
		return false, errors.Wrap(err, "build container request")
	}
	req.Header.Set(HeaderContentType, ContentTypeJSON)
	req.Header.Set(HeaderVersion, APIVersion)
	req.Header.Set(HeaderDate, time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set(HeaderActivityID, uuid.NewString())

	if err := c.authorizer.Authorize(req, http.MethodPost, ResourceCollections, link); err != nil {
		return false, err
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return false, errors.Wrap(err, "create container")
	}
	defer httpResp.Body.Close()
	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return false, errors.Wrap(err, "read container response")
	}

	switch httpResp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		c.logger.Info("container created",
			zap.String("database", db),
			zap.String("container", coll),
			zap.String("key_path", keyPath),
		)
		return true, nil
	case http.StatusConflict:
		return false, nil
	default:
		return false, errors.Newf("create container %s/%s: status %d: %s",
			db, coll, httpResp.StatusCode, errorMessage(bytes.TrimSpace(data)))
	}
}

func parseCharge(s string) float64 {
	if s == "" {
		return 0
	}
	charge, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return charge
}

func errorMessage(body []byte) string {
	var parsed ErrorBody
	if json.Unmarshal(body, &parsed) == nil && parsed.Message != "" {
		return parsed.Message
	}
	const limit = 256
	if len(body) > limit {
		body = body[:limit]
	}
	return string(body)
}
