package client

import (
	"context"
	"fmt"
	"time"

	"github.com/fivetwenty-io/sapcommissions/internal/constants"
	"github.com/fivetwenty-io/sapcommissions/internal/http"
	"github.com/fivetwenty-io/sapcommissions/pkg/commissions"
)

// Client implements commissions.Client.
type Client struct {
	httpClient *http.Client
	registry   *commissions.Registry
	codec      *commissions.Codec
	logger     commissions.Logger
	baseURL    string

	resources *ResourcesClient
	pipelines *PipelinesClient
}

// settings are the resolved tunables shared by the resource clients.
type settings struct {
	pageSize     int
	pollInterval time.Duration
	concurrency  int
	cache        commissions.Cache
	cacheTTL     time.Duration
}

// New creates a new platform client.
func New(ctx context.Context, config *commissions.Config) (*Client, error) {
	if config == nil {
		return nil, commissions.ErrConfigRequired
	}

	if config.BaseURL == "" {
		return nil, commissions.ErrBaseURLRequired
	}

	logger := config.Logger
	if logger == nil {
		logger = commissions.NopLogger{}
	}

	registry := config.Registry
	if registry == nil {
		var err error

		registry, err = commissions.DefaultRegistry()
		if err != nil {
			return nil, fmt.Errorf("loading resource catalogue: %w", err)
		}
	}

	httpOpts, err := createHTTPClientOptions(config, logger)
	if err != nil {
		return nil, err
	}

	httpClient, err := http.NewClient(config.BaseURL, httpOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP client: %w", err)
	}

	return newClient(httpClient, registry, logger, resolveSettings(config)), nil
}

func newClient(httpClient *http.Client, registry *commissions.Registry, logger commissions.Logger, s settings) *Client {
	codec := commissions.NewCodec(registry, logger)

	client := &Client{
		httpClient: httpClient,
		registry:   registry,
		codec:      codec,
		logger:     logger,
		baseURL:    httpClient.BaseURL(),
	}

	client.resources = NewResourcesClient(httpClient, codec, logger, s)
	client.pipelines = NewPipelinesClient(client.resources, s.pollInterval)

	return client
}

// createHTTPClientOptions builds HTTP client options from config.
func createHTTPClientOptions(config *commissions.Config, logger commissions.Logger) ([]http.Option, error) {
	httpOpts := []http.Option{
		http.WithLogger(logger),
		http.WithBasicAuth(config.Username, config.Password),
	}

	if config.Debug {
		httpOpts = append(httpOpts, http.WithDebug(true))
	}

	if config.UserAgent != "" {
		httpOpts = append(httpOpts, http.WithUserAgent(config.UserAgent))
	}

	if config.Timeout > 0 {
		httpOpts = append(httpOpts, http.WithTimeout(config.Timeout))
	}

	if config.RetryMax != 0 || config.RetryWait > 0 {
		retryMax := config.RetryMax
		if retryMax == 0 {
			retryMax = constants.DefaultRetryMax
		}

		httpOpts = append(httpOpts, http.WithRetryConfig(retryMax, config.RetryWait))
	}

	if config.RateLimit > 0 {
		httpOpts = append(httpOpts, http.WithRateLimit(config.RateLimit, config.RateBurst))
	}

	if config.MetricsRegisterer != nil {
		metrics, err := http.NewMetrics(config.MetricsRegisterer)
		if err != nil {
			return nil, err
		}

		httpOpts = append(httpOpts, http.WithMetrics(metrics))
	}

	return httpOpts, nil
}

func resolveSettings(config *commissions.Config) settings {
	s := settings{
		pageSize:     constants.DefaultPageSize,
		pollInterval: constants.DefaultPollInterval,
		concurrency:  constants.DefaultConcurrencyLimit,
		cache:        config.Cache,
		cacheTTL:     constants.DefaultCacheTTL,
	}

	if config.PageSize >= constants.MinPageSize && config.PageSize <= constants.MaxPageSize {
		s.pageSize = config.PageSize
	}

	if config.PollInterval > 0 {
		s.pollInterval = config.PollInterval
	}

	if config.Concurrency > 0 {
		s.concurrency = config.Concurrency
	}

	if config.CacheTTL > 0 {
		s.cacheTTL = config.CacheTTL
	}

	return s
}

// Resources implements commissions.Client.Resources.
func (c *Client) Resources() commissions.ResourcesClient {
	return c.resources
}

// Pipelines implements commissions.Client.Pipelines.
func (c *Client) Pipelines() commissions.PipelinesClient {
	return c.pipelines
}

// Registry implements commissions.Client.Registry.
func (c *Client) Registry() *commissions.Registry {
	return c.registry
}

// Codec implements commissions.Client.Codec.
func (c *Client) Codec() *commissions.Codec {
	return c.codec
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}
