package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fivetwenty-io/sapcommissions/internal/constants"
	"github.com/fivetwenty-io/sapcommissions/pkg/commissions"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// document is one resource to apply. Attributes use wire names, as printed
// by "get -o yaml".
type document struct {
	Type       string         `json:"type"       yaml:"type"`
	Attributes map[string]any `json:"attributes" yaml:"attributes"`
}

// applyOutcome is the printable result of one document.
type applyOutcome struct {
	Index int    `json:"index"           yaml:"index"`
	Type  string `json:"type"            yaml:"type"`
	Seq   string `json:"seq,omitempty"   yaml:"seq,omitempty"`
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand() *cobra.Command {
	var (
		file         string
		resourceType string
	)

	cmd := &cobra.Command{
		Use:   "apply -f FILE",
		Short: "Create or update resources from a file",
		Long: `Create or update resources described in a YAML or JSON file.

Each document is {type, attributes}, or a list of them. With --type, each
document is the attribute object itself. A resource that already exists
is located by its logical keys and updated.`,
		Example: `  sapcom apply -f unit-types.yaml
  sapcom list unit_type -o json | sapcom apply --type unit_type -f -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := openInput(cmd, file)
			if err != nil {
				return err
			}
			defer func() { _ = input.Close() }()

			documents, err := readDocuments(input, resourceType)
			if err != nil {
				return err
			}

			sess, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			resources, err := decodeDocuments(sess.client, documents)
			if err != nil {
				return err
			}

			results := sess.client.Resources().Apply(cmd.Context(), resources)

			return renderApplyResults(cmd.OutOrStdout(), resources, results)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "file to apply, - for stdin")
	cmd.Flags().StringVar(&resourceType, "type", "", "resource type of every document")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func openInput(cmd *cobra.Command, file string) (io.ReadCloser, error) {
	if file == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}

	// #nosec G304 -- the file is named by the user.
	input, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", file, err)
	}

	return input, nil
}

// readDocuments reads every YAML document of r. JSON input is accepted as
// YAML.
func readDocuments(r io.Reader, resourceType string) ([]document, error) {
	decoder := yaml.NewDecoder(r)

	var documents []document

	for {
		var node any

		err := decoder.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("%w: %w", constants.ErrInvalidDocument, err)
		}

		items, ok := node.([]any)
		if !ok {
			items = []any{node}
		}

		for _, item := range items {
			doc, err := toDocument(item, resourceType)
			if err != nil {
				return nil, fmt.Errorf("document %d: %w", len(documents)+1, err)
			}

			documents = append(documents, doc)
		}
	}

	if len(documents) == 0 {
		return nil, constants.ErrNoDocuments
	}

	return documents, nil
}

func toDocument(item any, resourceType string) (document, error) {
	object, ok := item.(map[string]any)
	if !ok {
		return document{}, fmt.Errorf("%w: expected an object", constants.ErrInvalidDocument)
	}

	if resourceType != "" {
		return document{Type: resourceType, Attributes: object}, nil
	}

	name, _ := object["type"].(string)
	attributes, _ := object["attributes"].(map[string]any)

	if name == "" || attributes == nil {
		return document{}, fmt.Errorf("%w: type and attributes are required", constants.ErrInvalidDocument)
	}

	return document{Type: name, Attributes: attributes}, nil
}

func decodeDocuments(client commissions.Client, documents []document) ([]*commissions.Resource, error) {
	resources := make([]*commissions.Resource, 0, len(documents))

	for i, doc := range documents {
		schema, err := lookupSchema(client, doc.Type)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i+1, err)
		}

		data, err := json.Marshal(doc.Attributes)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w: %w", i+1, constants.ErrInvalidDocument, err)
		}

		resource, err := client.Codec().Unmarshal(schema, data)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i+1, err)
		}

		resources = append(resources, resource)
	}

	return resources, nil
}

func renderApplyResults(w io.Writer, resources []*commissions.Resource, results []commissions.ApplyResult) error {
	outcomes := make([]applyOutcome, 0, len(results))
	failed := 0

	for _, result := range results {
		outcome := applyOutcome{Index: result.Index + 1, Type: resources[result.Index].Type()}
		if result.Resource != nil {
			outcome.Seq = result.Resource.Seq()
		}

		if result.Err != nil {
			outcome.Error = result.Err.Error()
			failed++
		}

		outcomes = append(outcomes, outcome)
	}

	format, err := outputFormat()
	if err != nil {
		return err
	}

	switch format {
	case constants.FormatJSON:
		err = writeJSON(w, outcomes)
	case constants.FormatYAML:
		err = writeYAML(w, outcomes)
	default:
		err = renderApplyTable(w, outcomes)
	}

	if err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", constants.ErrApplyFailed, failed, len(outcomes))
	}

	return nil
}

func renderApplyTable(w io.Writer, outcomes []applyOutcome) error {
	table := tablewriter.NewWriter(w)
	table.Header("#", "Type", "Seq", "Result")

	for _, outcome := range outcomes {
		result := "applied"
		if outcome.Error != "" {
			result = outcome.Error
		}

		err := table.Append(strconv.Itoa(outcome.Index), outcome.Type, outcome.Seq, result)
		if err != nil {
			return fmt.Errorf("failed to append row to table: %w", err)
		}
	}

	err := table.Render()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	return nil
}
