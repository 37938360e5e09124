package constants

import "time"

// Version is reported in the default User-Agent header.
const Version = "0.1.0"

// File and directory permissions.
const (
	// ConfigDirPerm is the permission for configuration directories.
	ConfigDirPerm = 0750

	// ConfigFilePerm is the permission for configuration files.
	ConfigFilePerm = 0600
)

// DefaultHTTPTimeout bounds a single request/response exchange.
const DefaultHTTPTimeout = 30 * time.Second

// Retry policy. Only connection errors are retried, with a fixed delay.
const (
	// DefaultRetryMax is the number of additional attempts after the first one.
	DefaultRetryMax = 3

	// DefaultRetryWait is the fixed delay between attempts.
	DefaultRetryWait = 2 * time.Second
)

// Concurrency limits.
const (
	// DefaultConcurrencyLimit caps simultaneous in-flight requests during fan-out.
	DefaultConcurrencyLimit = 10

	// DefaultRateBurst is the burst used when a rate limit is set without one.
	DefaultRateBurst = 1
)

// Pagination limits.
const (
	// MinPageSize is the smallest accepted page size.
	MinPageSize = 1

	// MaxPageSize is the largest page size the server accepts.
	MaxPageSize = 100

	// DefaultPageSize is used when no page size is given.
	DefaultPageSize = MaxPageSize
)

// DefaultPollInterval is used while waiting for pipeline runs.
const DefaultPollInterval = 2 * time.Second

// Cache defaults.
const (
	// DefaultCacheSize is the default number of entries held by the memory cache.
	DefaultCacheSize = 1000

	// DefaultCacheTTL is the default lifetime of a cached resource.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultNATSBucket is the default JetStream key-value bucket.
	DefaultNATSBucket = "sapcommissions"
)

// Wire format.
const (
	// DateFormat renders date-only values.
	DateFormat = "2006-01-02"

	// FilterPeriodDateFormat renders dates for the startDate/endDate list filters.
	FilterPeriodDateFormat = "2006/01/02"

	// ErrorKey holds vendor error messages inside write responses.
	ErrorKey = "_ERROR_"

	// NextKey holds the pagination cursor in list responses.
	NextKey = "next"

	// TotalKey holds the inline count in list responses.
	TotalKey = "total"

	// JSONContentType is the media type of every API payload.
	JSONContentType = "application/json"
)

// Query parameters.
const (
	QueryTop         = "top"
	QueryFilter      = "$filter"
	QueryOrderBy     = "orderBy"
	QueryExpand      = "expand"
	QueryInlineCount = "inlineCount"
)

// Vendor error codes.
const (
	// VendorCodeAlreadyExists is returned when creating a resource that exists.
	VendorCodeAlreadyExists = "TCMP_35004"

	// VendorCodeMissingField is returned when a required field is absent.
	VendorCodeMissingField = "TCMP_1002"

	// VendorCodeRunRemoved is returned when cancelling a run that already finished.
	VendorCodeRunRemoved = "TCMP_60255"
)

// Pipeline endpoint.
const (
	// PipelinesEndpoint is where jobs are submitted and runs are read.
	PipelinesEndpoint = "api/v2/pipelines"

	// PipelinesCollection is the collection key of pipeline responses.
	PipelinesCollection = "pipelines"

	// PipelineOrdinalKey keys submission results and errors.
	PipelineOrdinalKey = "0"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// UI and display constants.
const (
	// NotAvailable is used when information is not available.
	NotAvailable = "N/A"

	// TimestampDisplayFormat renders timestamps in tables.
	TimestampDisplayFormat = "2006-01-02 15:04:05"
)
