// Package http is the transport of the platform client. It issues JSON
// requests and translates every outcome into the commissions error taxonomy.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/fivetwenty-io/sapcommissions/internal/constants"
	"github.com/fivetwenty-io/sapcommissions/pkg/commissions"
)

const tracerName = "github.com/fivetwenty-io/sapcommissions/internal/http"

// Client is a JSON HTTP client safe for concurrent use. Reads are retried
// on connection failures; writes are sent once.
type Client struct {
	baseURL   *url.URL
	username  string
	password  string
	userAgent string
	logger    commissions.Logger
	debug     bool

	timeout   time.Duration
	retryMax  int
	retryWait time.Duration
	limiter   *rate.Limiter
	metrics   *Metrics
	tracer    trace.Tracer

	httpClient *http.Client
	reads      *retryablehttp.Client
	writes     *retryablehttp.Client
}

// Request describes one exchange. Path is either relative to the base URL
// or an absolute URL, which is used verbatim.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    any
	Headers map[string]string
}

// Response is a successful exchange. Object is nil for empty bodies.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Object     map[string]any
}

// Option configures the client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger commissions.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDebug enables request and response logging.
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// WithBasicAuth sets the credentials sent with every request.
func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithTimeout bounds each exchange.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRetryConfig sets the number of additional read attempts after a
// connection failure and the fixed wait between them. A negative retryMax
// disables retries.
func WithRetryConfig(retryMax int, wait time.Duration) Option {
	return func(c *Client) {
		c.retryMax = max(retryMax, 0)
		if wait > 0 {
			c.retryWait = wait
		}
	}
}

// WithRateLimit caps outgoing requests, retries included.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, constants.DefaultRateBurst))
		}
	}
}

// WithMetrics records request metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(c *Client) {
		c.metrics = metrics
	}
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(c *Client) {
		if provider != nil {
			c.tracer = provider.Tracer(tracerName)
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewClient creates a new HTTP client.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", commissions.ErrBaseURLRequired, baseURL)
	}

	client := &Client{
		baseURL:   parsed,
		userAgent: "sapcommissions-go/" + constants.Version,
		logger:    commissions.NopLogger{},
		timeout:   constants.DefaultHTTPTimeout,
		retryMax:  constants.DefaultRetryMax,
		retryWait: constants.DefaultRetryWait,
		tracer:    otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}

	client.httpClient.Timeout = client.timeout

	if client.limiter != nil {
		client.httpClient.Transport = &limitedTransport{base: transportOf(client.httpClient), limiter: client.limiter}
	}

	client.reads = client.newRetryClient(client.retryMax)
	client.writes = client.newRetryClient(0)

	return client, nil
}

func (c *Client) newRetryClient(retryMax int) *retryablehttp.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = c.httpClient
	retryClient.RetryMax = retryMax
	retryClient.RetryWaitMin = c.retryWait
	retryClient.RetryWaitMax = c.retryWait
	retryClient.Backoff = fixedBackoff
	retryClient.CheckRetry = retryOnConnectionError
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = leveledLogger{logger: c.logger}
	retryClient.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt == 0 {
			return
		}

		c.metrics.observeRetry(req.Method)
		c.logger.Warn("Retrying after connection error", map[string]interface{}{
			"method":  req.Method,
			"url":     req.URL.Redacted(),
			"attempt": attempt,
		})
	}

	return retryClient
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Do performs a request and classifies the outcome:
//
//	network or timeout failure          KindConnection
//	304                                 KindNotModified
//	2xx with JSON or no body            success
//	4xx/5xx with a JSON body            KindBadRequest carrying the payload
//	anything else                       KindResponse carrying the raw body
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	op := req.Method + " " + req.Path

	target, err := c.resolve(req.Path, req.Query)
	if err != nil {
		return nil, &commissions.Error{Kind: commissions.KindResponse, Op: op, Err: err}
	}

	ctx, span := c.tracer.Start(ctx, "sapcommissions.http.request", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.url", target.Redacted()),
	)

	httpReq, err := c.newRequest(ctx, req, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, &commissions.Error{Kind: commissions.KindValidation, Op: op, Err: err}
	}

	if c.debug {
		c.logger.Debug("HTTP Request", map[string]interface{}{
			"method": req.Method,
			"url":    target.Redacted(),
		})
	}

	client := c.writes
	if req.Method == http.MethodGet {
		client = c.reads
	}

	start := time.Now()
	resp, err := client.Do(httpReq)

	if err != nil {
		c.metrics.observe(req.Method, "error", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, &commissions.Error{Kind: commissions.KindConnection, Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.observe(req.Method, "error", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, &commissions.Error{Kind: commissions.KindConnection, Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	c.metrics.observe(req.Method, statusClass(resp.StatusCode), time.Since(start))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if c.debug {
		c.logger.Debug("HTTP Response", map[string]interface{}{
			"status": resp.StatusCode,
			"url":    target.Redacted(),
			"bytes":  len(body),
		})
	}

	result, classifyErr := classify(op, resp, body)
	if classifyErr != nil {
		span.SetStatus(codes.Error, classifyErr.Error())

		return nil, classifyErr
	}

	span.SetStatus(codes.Ok, "")

	return result, nil
}

func classify(op string, resp *http.Response, body []byte) (*Response, error) {
	status := resp.StatusCode
	isJSON := isJSONContent(resp.Header.Get("Content-Type"))

	switch {
	case status == http.StatusNotModified:
		return nil, &commissions.Error{Kind: commissions.KindNotModified, Op: op, StatusCode: status}

	case status >= 200 && status < 300:
		result := &Response{StatusCode: status, Header: resp.Header, Body: body}
		if len(bytes.TrimSpace(body)) == 0 {
			return result, nil
		}

		if !isJSON {
			return nil, &commissions.Error{Kind: commissions.KindResponse, Op: op, StatusCode: status, Body: string(body)}
		}

		object, err := commissions.DecodeJSONObject(body)
		if err != nil {
			return nil, &commissions.Error{
				Kind: commissions.KindResponse, Op: op, StatusCode: status, Body: string(body), Err: err,
			}
		}

		result.Object = object

		return result, nil

	case status >= 400 && status < 600 && isJSON:
		payload, err := commissions.DecodeJSONObject(body)
		if err != nil {
			return nil, &commissions.Error{
				Kind: commissions.KindResponse, Op: op, StatusCode: status, Body: string(body), Err: err,
			}
		}

		return nil, &commissions.Error{
			Kind:       commissions.KindBadRequest,
			Op:         op,
			StatusCode: status,
			Payload:    payload,
			Messages:   VendorMessages(payload),
		}

	default:
		return nil, &commissions.Error{Kind: commissions.KindResponse, Op: op, StatusCode: status, Body: string(body)}
	}
}

// VendorMessages collects the messages stored under "_ERROR_" keys anywhere
// in an error payload, in key order.
func VendorMessages(payload any) []string {
	var messages []string

	var walk func(v any)

	walk = func(v any) {
		switch typed := v.(type) {
		case map[string]any:
			keys := make([]string, 0, len(typed))
			for key := range typed {
				keys = append(keys, key)
			}

			sort.Strings(keys)

			for _, key := range keys {
				if key == constants.ErrorKey {
					messages = append(messages, leafStrings(typed[key])...)

					continue
				}

				walk(typed[key])
			}
		case []any:
			for _, elem := range typed {
				walk(elem)
			}
		}
	}

	walk(payload)

	return messages
}

func leafStrings(v any) []string {
	switch typed := v.(type) {
	case string:
		return []string{typed}
	case []any:
		var out []string
		for _, elem := range typed {
			out = append(out, leafStrings(elem)...)
		}

		return out
	case map[string]any:
		return VendorMessages(typed)
	case nil:
		return nil
	default:
		return []string{fmt.Sprint(typed)}
	}
}

func (c *Client) newRequest(ctx context.Context, req *Request, target *url.URL) (*retryablehttp.Request, error) {
	var body []byte

	if req.Body != nil {
		var err error

		body, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
	}

	var rawBody interface{}
	if body != nil {
		rawBody = body
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, target.String(), rawBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Accept", constants.JSONContentType)
	httpReq.Header.Set("User-Agent", c.userAgent)

	if body != nil {
		httpReq.Header.Set("Content-Type", constants.JSONContentType)
	}

	if c.username != "" {
		httpReq.SetBasicAuth(c.username, c.password)
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	return httpReq, nil
}

// resolve joins a relative path onto the base URL. Absolute URLs, such as
// list cursors, are kept verbatim and query is ignored for them.
func (c *Client) resolve(path string, query url.Values) (*url.URL, error) {
	parsed, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parsing path %q: %w", path, err)
	}

	if parsed.IsAbs() {
		return parsed, nil
	}

	target := *c.baseURL
	target.Path = strings.TrimRight(c.baseURL.Path, "/") + "/" + strings.TrimLeft(parsed.Path, "/")
	target.RawPath = ""

	merged := parsed.Query()
	for key, values := range query {
		for _, value := range values {
			merged.Add(key, value)
		}
	}

	target.RawQuery = encodeQuery(merged)

	return &target, nil
}

// encodeQuery escapes spaces as %20, which the filter syntax relies on.
func encodeQuery(values url.Values) string {
	return strings.ReplaceAll(values.Encode(), "+", "%20")
}

func isJSONContent(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	return mediaType == constants.JSONContentType || strings.HasSuffix(mediaType, "+json")
}

func statusClass(status int) string {
	return fmt.Sprintf("%dxx", status/100)
}

func fixedBackoff(minWait, _ time.Duration, _ int, _ *http.Response) time.Duration {
	return minWait
}

// retryOnConnectionError retries transport failures only. Responses of any
// status are final.
func retryOnConnectionError(ctx context.Context, _ *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	return err != nil, nil
}

type limitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	err := t.limiter.Wait(req.Context())
	if err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	return t.base.RoundTrip(req)
}

func transportOf(httpClient *http.Client) http.RoundTripper {
	if httpClient.Transport != nil {
		return httpClient.Transport
	}

	return http.DefaultTransport
}

// leveledLogger adapts commissions.Logger to retryablehttp.LeveledLogger.
type leveledLogger struct {
	logger commissions.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, keyValueFields(keysAndValues))
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, keyValueFields(keysAndValues))
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keyValueFields(keysAndValues))
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn(msg, keyValueFields(keysAndValues))
}

func keyValueFields(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)

	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}

		fields[key] = keysAndValues[i+1]
	}

	return fields
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post performs a POST request.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put performs a PUT request.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPut, Path: path, Body: body})
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path})
}
