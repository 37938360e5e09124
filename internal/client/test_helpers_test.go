package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	internalhttp "github.com/fivetwenty-io/sapcommissions/internal/http"
	"github.com/fivetwenty-io/sapcommissions/pkg/commissions"
)

const testRetryWait = 20 * time.Millisecond

// MockLogger records log calls. It is safe for concurrent use.
type MockLogger struct {
	mu   sync.Mutex
	logs []map[string]interface{}
}

func (l *MockLogger) record(level, msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logs = append(l.logs, map[string]interface{}{"level": level, "msg": msg, "fields": fields})
}

func (l *MockLogger) Debug(msg string, fields map[string]interface{}) { l.record("debug", msg, fields) }
func (l *MockLogger) Info(msg string, fields map[string]interface{})  { l.record("info", msg, fields) }
func (l *MockLogger) Warn(msg string, fields map[string]interface{})  { l.record("warn", msg, fields) }
func (l *MockLogger) Error(msg string, fields map[string]interface{}) { l.record("error", msg, fields) }

// Messages returns the logged messages of one level.
func (l *MockLogger) Messages(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []string

	for _, entry := range l.logs {
		if entry["level"] == level {
			out = append(out, entry["msg"].(string))
		}
	}

	return out
}

// NewTestClient creates a client for server with a short retry wait and no
// connection reuse, so that dropped connections are never retried by the
// HTTP transport itself.
func NewTestClient(t *testing.T, serverURL string, configure ...func(*commissions.Config)) (*Client, *MockLogger) {
	t.Helper()

	logger := &MockLogger{}
	config := &commissions.Config{
		BaseURL:   serverURL,
		Username:  "user",
		Password:  "secret",
		RetryWait: testRetryWait,
		Logger:    logger,
	}

	for _, fn := range configure {
		fn(config)
	}

	httpOpts, err := createHTTPClientOptions(config, logger)
	require.NoError(t, err)

	httpOpts = append(httpOpts, internalhttp.WithHTTPClient(&http.Client{
		Transport: &http.Transport{DisableKeepAlives: true},
	}))

	httpClient, err := internalhttp.NewClient(serverURL, httpOpts...)
	require.NoError(t, err)

	registry, err := commissions.DefaultRegistry()
	require.NoError(t, err)

	return newClient(httpClient, registry, logger, resolveSettings(config)), logger
}

// writeJSON writes v with the JSON content type.
func writeJSON(t *testing.T, writer http.ResponseWriter, status int, v any) {
	t.Helper()

	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)

	if v != nil {
		require.NoError(t, json.NewEncoder(writer).Encode(v))
	}
}

// dropConnection closes the connection without writing a response.
func dropConnection(t *testing.T, writer http.ResponseWriter) {
	t.Helper()

	hijacker, ok := writer.(http.Hijacker)
	require.True(t, ok)

	conn, _, err := hijacker.Hijack()
	require.NoError(t, err)

	_ = conn.Close()
}

// decodeBody decodes a JSON request body.
func decodeBody(t *testing.T, request *http.Request) any {
	t.Helper()

	var body any
	require.NoError(t, json.NewDecoder(request.Body).Decode(&body))

	return body
}

func unitTypeSchema() *commissions.Schema {
	return commissions.MustSchema(commissions.TypeUnitType)
}

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return server
}
