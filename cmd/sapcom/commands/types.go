package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fivetwenty-io/sapcommissions/internal/constants"
	"github.com/fivetwenty-io/sapcommissions/pkg/commissions"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// typeInfo is the printable description of a resource type.
type typeInfo struct {
	Name     string   `json:"name"               yaml:"name"`
	Endpoint string   `json:"endpoint"           yaml:"endpoint"`
	Seq      string   `json:"seq,omitempty"      yaml:"seq,omitempty"`
	Keys     []string `json:"keys,omitempty"     yaml:"keys,omitempty"`
	Expand   []string `json:"expand,omitempty"   yaml:"expand,omitempty"`
	Fields   []string `json:"fields,omitempty"   yaml:"fields,omitempty"`
}

// NewTypesCommand creates the types command.
func NewTypesCommand() *cobra.Command {
	var catalogue string

	cmd := &cobra.Command{
		Use:   "types [TYPE]",
		Short: "List resource types",
		Long:  "List the resource types known to the client, or the fields of one type",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := loadRegistry(catalogue)
			if err != nil {
				return err
			}

			if len(args) == 1 {
				schema, err := registry.Lookup(strings.ReplaceAll(args[0], "-", "_"))
				if err != nil {
					return err
				}

				return renderFields(cmd, schema)
			}

			infos := make([]typeInfo, 0, len(registry.Names()))
			for _, name := range registry.Names() {
				schema, _ := registry.Lookup(name)
				infos = append(infos, describeType(schema))
			}

			format, err := outputFormat()
			if err != nil {
				return err
			}

			switch format {
			case constants.FormatJSON:
				return writeJSON(cmd.OutOrStdout(), infos)
			case constants.FormatYAML:
				return writeYAML(cmd.OutOrStdout(), infos)
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("Type", "Endpoint", "Identifier", "Keys", "Fields")

			for _, info := range infos {
				err := table.Append(info.Name, info.Endpoint, info.Seq, strings.Join(info.Keys, ", "), strconv.Itoa(len(info.Fields)))
				if err != nil {
					return fmt.Errorf("failed to append row to table: %w", err)
				}
			}

			err = table.Render()
			if err != nil {
				return fmt.Errorf("failed to render table: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&catalogue, "catalogue", "", "YAML resource catalogue replacing the built-in one")

	return cmd
}

func loadRegistry(catalogue string) (*commissions.Registry, error) {
	if catalogue == "" {
		return commissions.DefaultRegistry()
	}

	// #nosec G304 -- the catalogue path is supplied by the user.
	data, err := os.ReadFile(catalogue)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalogue: %w", err)
	}

	return commissions.LoadRegistry(data)
}

func describeType(schema *commissions.Schema) typeInfo {
	fields := make([]string, 0, len(schema.Fields))
	for _, field := range schema.Fields {
		fields = append(fields, field.Name)
	}

	return typeInfo{
		Name:     schema.Name,
		Endpoint: schema.Endpoint,
		Seq:      schema.Seq,
		Keys:     schema.Keys,
		Expand:   schema.Expand(),
		Fields:   fields,
	}
}

// fieldInfo is the printable description of one field.
type fieldInfo struct {
	Name   string `json:"name"             yaml:"name"`
	Wire   string `json:"wire"             yaml:"wire"`
	Kind   string `json:"kind"             yaml:"kind"`
	Target string `json:"target,omitempty" yaml:"target,omitempty"`
	Flags  string `json:"flags,omitempty"  yaml:"flags,omitempty"`
}

func renderFields(cmd *cobra.Command, schema *commissions.Schema) error {
	fields := make([]fieldInfo, 0, len(schema.Fields))

	for _, field := range schema.Fields {
		info := fieldInfo{
			Name:   field.Name,
			Wire:   field.Wire,
			Kind:   field.Kind.String(),
			Target: field.Target,
			Flags:  fieldFlags(schema, &field),
		}

		if field.Elem != nil {
			info.Kind += " of " + field.Elem.Kind.String()
			info.Target = field.Elem.Target
		}

		fields = append(fields, info)
	}

	format, err := outputFormat()
	if err != nil {
		return err
	}

	switch format {
	case constants.FormatJSON:
		return writeJSON(cmd.OutOrStdout(), fields)
	case constants.FormatYAML:
		return writeYAML(cmd.OutOrStdout(), fields)
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Field", "Wire", "Kind", "Target", "Flags")

	for _, info := range fields {
		err := table.Append(info.Name, info.Wire, info.Kind, info.Target, info.Flags)
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

func fieldFlags(schema *commissions.Schema, field *commissions.Field) string {
	var flags []string

	if field.Name == schema.Seq {
		flags = append(flags, "identifier")
	}

	for _, key := range schema.Keys {
		if key == field.Name {
			flags = append(flags, "key")
		}
	}

	if field.ReadOnly {
		flags = append(flags, "readonly")
	}

	if field.Expandable {
		flags = append(flags, "expand")
	}

	if field.Embedded || (field.Elem != nil && field.Elem.Embedded) {
		flags = append(flags, "embedded")
	}

	return strings.Join(flags, ", ")
}
