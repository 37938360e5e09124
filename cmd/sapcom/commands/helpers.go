package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/fivetwenty-io/sapcommissions/internal/constants"
	"github.com/fivetwenty-io/sapcommissions/pkg/commissions"
	"github.com/fivetwenty-io/sapcommissions/pkg/sapclient"
	"github.com/itchyny/gojq"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

const defaultJSONIndent = "  "

// session bundles a client with the resources that must be released after
// a command finishes.
type session struct {
	client commissions.Client
	logger commissions.Logger
	cache  commissions.Cache
}

func (s *session) Close() {
	if closer, ok := s.cache.(interface{ Close() }); ok {
		closer.Close()
	}
}

// newSession builds a client from the merged flag, environment and file
// configuration.
func newSession(cmd *cobra.Command) (*session, error) {
	logger := NewLogger(cmd.ErrOrStderr(), viper.GetBool("verbose"))

	config, err := buildClientConfig(cmd, logger)
	if err != nil {
		return nil, err
	}

	cache, err := buildCache(cmd.Context())
	if err != nil {
		return nil, err
	}

	config.Cache = cache

	client, err := sapclient.New(cmd.Context(), config)
	if err != nil {
		if cache != nil {
			(&session{cache: cache}).Close()
		}

		return nil, err
	}

	return &session{client: client, logger: logger, cache: cache}, nil
}

func buildClientConfig(cmd *cobra.Command, logger commissions.Logger) (*commissions.Config, error) {
	baseURL := viper.GetString("url")
	if baseURL == "" {
		return nil, constants.ErrNoBaseURLConfigured
	}

	username := viper.GetString("username")
	if username == "" {
		return nil, constants.ErrNoUsernameConfigured
	}

	password := viper.GetString("password")
	if password == "" {
		var err error

		password, err = promptPassword(cmd, username)
		if err != nil {
			return nil, err
		}
	}

	return &commissions.Config{
		BaseURL:      baseURL,
		Username:     username,
		Password:     password,
		Timeout:      viper.GetDuration("timeout"),
		RetryMax:     viper.GetInt("retry_max"),
		RetryWait:    viper.GetDuration("retry_wait"),
		PageSize:     viper.GetInt("page_size"),
		Concurrency:  viper.GetInt("concurrency"),
		RateLimit:    viper.GetFloat64("rate_limit"),
		CacheTTL:     viper.GetDuration("cache_ttl"),
		UserAgent:    "sapcom/" + constants.Version,
		Debug:        viper.GetBool("verbose"),
		Logger:       logger,
		PollInterval: viper.GetDuration("poll_interval"),
	}, nil
}

// promptPassword reads the password from the terminal without echo.
func promptPassword(cmd *cobra.Command, username string) (string, error) {
	fd := int(os.Stdin.Fd()) // #nosec G115
	if !term.IsTerminal(fd) {
		return "", constants.ErrNoPasswordConfigured
	}

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Password for %s: ", username)

	secret, err := term.ReadPassword(fd)

	_, _ = fmt.Fprintln(cmd.ErrOrStderr())

	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	return string(secret), nil
}

func buildCache(ctx context.Context) (commissions.Cache, error) {
	cacheType := commissions.CacheType(viper.GetString("cache"))
	if cacheType == "" {
		return nil, nil //nolint:nilnil
	}

	config := &commissions.CacheConfig{Type: cacheType}
	if cacheType == commissions.CacheTypeNATS || cacheType == commissions.CacheTypeTiered {
		config.NATS = &commissions.NATSKVConfig{
			URL:    viper.GetString("nats_url"),
			Bucket: viper.GetString("nats_bucket"),
			TTL:    viper.GetDuration("cache_ttl"),
		}
	}

	cache, err := commissions.NewCacheFromConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	return cache, nil
}

// lookupSchema resolves a resource type by name. Dashes are accepted in
// place of underscores.
func lookupSchema(client commissions.Client, name string) (*commissions.Schema, error) {
	schema, err := client.Registry().Lookup(strings.ReplaceAll(name, "-", "_"))
	if err != nil {
		return nil, fmt.Errorf("%w (see 'sapcom types')", err)
	}

	return schema, nil
}

func outputFormat() (string, error) {
	output := viper.GetString("output")
	switch output {
	case "", constants.FormatTable:
		return constants.FormatTable, nil
	case constants.FormatJSON, constants.FormatYAML:
		return output, nil
	default:
		return "", fmt.Errorf("%w: %s", constants.ErrUnknownOutput, output)
	}
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", defaultJSONIndent)

	err := encoder.Encode(value)
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}

func writeYAML(w io.Writer, value any) error {
	encoder := yaml.NewEncoder(w)
	defer func() { _ = encoder.Close() }()

	err := encoder.Encode(value)
	if err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}

// plainJSON converts value to the generic shape produced by encoding/json,
// which is what jq and YAML output expect.
func plainJSON(value any) (any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}

	var out any

	err = json.Unmarshal(data, &out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}

	return out, nil
}

// runJQ evaluates expression against input and collects every result.
func runJQ(expression string, input any) ([]any, error) {
	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression: %w", err)
	}

	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression: %w", err)
	}

	var results []any

	iter := code.Run(input)
	for {
		value, ok := iter.Next()
		if !ok {
			break
		}

		if err, ok := value.(error); ok {
			return nil, fmt.Errorf("jq evaluation failed: %w", err)
		}

		results = append(results, value)
	}

	return results, nil
}

func writeJQResults(w io.Writer, results []any) error {
	for _, result := range results {
		if text, ok := result.(string); ok {
			_, _ = fmt.Fprintln(w, text)

			continue
		}

		err := writeJSON(w, result)
		if err != nil {
			return err
		}
	}

	return nil
}

// renderOptions controls how resources are printed.
type renderOptions struct {
	jq      string
	columns []string
}

// renderResources prints a list of resources in the configured format.
func renderResources(w io.Writer, client commissions.Client, schema *commissions.Schema, resources []*commissions.Resource, opts renderOptions) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}

	snapshots := make([]map[string]any, 0, len(resources))
	for _, resource := range resources {
		snapshots = append(snapshots, client.Codec().Snapshot(resource))
	}

	if opts.jq != "" || format != constants.FormatTable {
		data, err := plainJSON(snapshots)
		if err != nil {
			return err
		}

		return writeStructured(w, format, opts.jq, data)
	}

	columns := opts.columns
	if len(columns) == 0 {
		columns = defaultColumns(schema)
	}

	table := tablewriter.NewWriter(w)
	table.Header(toAny(columns)...)

	for _, resource := range resources {
		flat := resource.Flatten()

		row := make([]string, 0, len(columns))
		for _, column := range columns {
			row = append(row, displayValue(flat[column]))
		}

		err := table.Append(row)
		if err != nil {
			return fmt.Errorf("failed to append row to table: %w", err)
		}
	}

	err = table.Render()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	return nil
}

// renderResource prints one resource as a property table or a document.
func renderResource(w io.Writer, client commissions.Client, resource *commissions.Resource, jq string) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}

	if jq != "" || format != constants.FormatTable {
		data, err := plainJSON(client.Codec().Snapshot(resource))
		if err != nil {
			return err
		}

		return writeStructured(w, format, jq, data)
	}

	flat := resource.Flatten()

	keys := make([]string, 0, len(flat))
	for key := range flat {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	table := tablewriter.NewWriter(w)
	table.Header("Property", "Value")

	for _, key := range keys {
		err := table.Append(key, displayValue(flat[key]))
		if err != nil {
			return fmt.Errorf("failed to append row to table: %w", err)
		}
	}

	err = table.Render()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	return nil
}

func writeStructured(w io.Writer, format, jq string, data any) error {
	if jq != "" {
		results, err := runJQ(jq, data)
		if err != nil {
			return err
		}

		return writeJQResults(w, results)
	}

	if format == constants.FormatYAML {
		return writeYAML(w, data)
	}

	return writeJSON(w, data)
}

// defaultColumns picks the identifier, the logical keys and a few
// descriptive fields of a type.
func defaultColumns(schema *commissions.Schema) []string {
	var columns []string
	if schema.Seq != "" {
		columns = append(columns, schema.Seq)
	}

	for _, key := range schema.Keys {
		if !slices.Contains(columns, key) {
			columns = append(columns, key)
		}
	}

	for _, name := range []string{"name", "description", "effective_start_date", "effective_end_date"} {
		if _, ok := schema.Field(name); ok && !slices.Contains(columns, name) {
			columns = append(columns, name)
		}
	}

	return columns
}

func displayValue(value any) string {
	if value == nil {
		return ""
	}

	return fmt.Sprint(value)
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, value := range values {
		out[i] = value
	}

	return out
}

// splitList splits a comma separated flag value, dropping empty items.
func splitList(value string) []string {
	var out []string

	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}

	return out
}
