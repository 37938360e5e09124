package commissions

import (
	"context"
	"iter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Client is the entry point to the platform API.
type Client interface {
	Resources() ResourcesClient
	Pipelines() PipelinesClient
	// Registry returns the resource types the client knows.
	Registry() *Registry
	// Codec returns the codec used for every request.
	Codec() *Codec
}

// ResourcesClient performs generic resource access for any registered type.
type ResourcesClient interface {
	// Create posts a new resource and returns the server's copy.
	Create(ctx context.Context, resource *Resource) (*Resource, error)
	// Update replaces an existing resource. A not-modified response returns
	// the given resource unchanged.
	Update(ctx context.Context, resource *Resource) (*Resource, error)
	// Delete removes a resource by identifier.
	Delete(ctx context.Context, resource *Resource) error
	// Get reads one resource by identifier.
	Get(ctx context.Context, schema *Schema, seq string) (*Resource, error)
	// First returns the first match of opts, or a not-found error.
	First(ctx context.Context, schema *Schema, opts *ListOptions) (*Resource, error)
	// List returns a lazy iterator over every match of opts.
	List(ctx context.Context, schema *Schema, opts *ListOptions) (Iterator, error)

	// Resolve reads the resource a reference points at.
	Resolve(ctx context.Context, ref Reference) (*Resource, error)
	// ResolveAll reads many resources of one type with bounded concurrency.
	// Results follow the order of seqs; duplicates share one request.
	ResolveAll(ctx context.Context, schema *Schema, seqs []string) ([]*Resource, error)
	// CreateOrUpdate creates the resource, or updates the existing instance
	// with the same logical keys.
	CreateOrUpdate(ctx context.Context, resource *Resource) (*Resource, error)
	// Apply runs CreateOrUpdate over many resources with bounded concurrency.
	Apply(ctx context.Context, resources []*Resource) []ApplyResult
}

// Iterator is a forward-only, non-restartable sequence of list results.
// Pages are fetched on demand, one at a time.
type Iterator interface {
	// Next returns the next resource, or ErrNoMoreItems once exhausted.
	Next(ctx context.Context) (*Resource, error)
	// Total returns the server-reported match count when inline counting was
	// requested and at least one page has been read.
	Total() (int, bool)
	// All ranges over the remaining resources, stopping at the first error.
	All(ctx context.Context) iter.Seq2[*Resource, error]
}

// PipelinesClient drives asynchronous pipeline runs.
type PipelinesClient interface {
	// Submit validates and posts a job, then reads the created run. A
	// CancelJob returns a nil run.
	Submit(ctx context.Context, job Job) (*Run, error)
	// Get reads a run by identifier.
	Get(ctx context.Context, seq string) (*Run, error)
	// AwaitCompletion polls until the run is Done or ctx ends.
	AwaitCompletion(ctx context.Context, run *Run, interval time.Duration) (*Run, error)
	// Cancel cancels a run. Runs already removed count as canceled.
	Cancel(ctx context.Context, run *Run) error
}

// ListOptions narrows a list request.
type ListOptions struct {
	// Filter is rendered into the $filter query parameter.
	Filter Expression
	// OrderBy lists wire field names, optionally suffixed " desc".
	OrderBy []string
	// PageSize is the number of items per page, in [1, 100]. Zero uses the
	// client default.
	PageSize int
	// InlineCount asks the server to report the total match count.
	InlineCount bool
}

// ApplyResult is the outcome of one CreateOrUpdate within Apply.
type ApplyResult struct {
	Index    int
	Resource *Resource
	Err      error
}

// Logger interface for logging.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, map[string]interface{}) {}
func (NopLogger) Info(string, map[string]interface{})  {}
func (NopLogger) Warn(string, map[string]interface{})  {}
func (NopLogger) Error(string, map[string]interface{}) {}

// Config represents client configuration for building a Client.
//
// # Retries
//
// Only connection failures are retried, RetryMax additional times with a
// fixed RetryWait between attempts, and only for reads. Application errors
// are never retried.
//
// # Timeouts
//
// Timeout bounds each HTTP exchange. Long operations such as list iteration
// and pipeline polling are bounded by the context passed to each call.
type Config struct {
	// BaseURL of the tenant API, e.g. "https://tenant.example.com".
	// sapclient.New trims a trailing slash and adds "https://" when no
	// scheme is present.
	BaseURL string
	// Username and Password are sent with Basic authentication.
	Username string
	Password string

	// Timeout of a single HTTP exchange. Defaults to 30s.
	Timeout time.Duration
	// RetryMax is the number of additional attempts after a connection
	// failure. Zero uses the default of 3; negative disables retries.
	RetryMax int
	// RetryWait is the fixed delay between attempts. Defaults to 2s.
	RetryWait time.Duration
	// PageSize is the default list page size. Defaults to 100.
	PageSize int
	// PollInterval is the default pipeline polling interval. Defaults to 2s.
	PollInterval time.Duration
	// Concurrency caps in-flight requests of ResolveAll and Apply.
	Concurrency int
	// RateLimit, when positive, caps requests per second client-side.
	RateLimit float64
	RateBurst int

	// UserAgent overrides the default User-Agent header.
	UserAgent string
	// Debug enables HTTP request and response logging.
	Debug bool
	// Logger receives structured logs. Nil discards them.
	Logger Logger
	// MetricsRegisterer, when set, receives request counters and latency
	// histograms.
	MetricsRegisterer prometheus.Registerer
	// Cache, when set, holds resources read by Resolve and ResolveAll.
	Cache    Cache
	CacheTTL time.Duration
	// Registry overrides the built-in resource catalogue.
	Registry *Registry
}
