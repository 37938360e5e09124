package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fivetwenty-io/sapcommissions/internal/constants"
	"github.com/fivetwenty-io/sapcommissions/pkg/commissions"
	"github.com/spf13/cobra"
)

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	var (
		equals    []string
		notEquals []string
		orderBy   []string
		pageSize  int
		limit     int
		count     bool
		columns   string
		jq        string
	)

	cmd := &cobra.Command{
		Use:   "list TYPE",
		Short: "List resources of a type",
		Long: `List resources of a type, following pagination lazily.

Filters are combined with "and". Field names may be given in local
(snake_case) or wire (camelCase) form; "null" tests for absence.`,
		Example: `  sapcom list participant --filter-eq last_name=Smith --order-by payee_id
  sapcom list period --filter-eq calendar=2001 --limit 12 -o json
  sapcom list credit --filter-eq period=3001 --jq '.[].value.amount'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			schema, err := lookupSchema(sess.client, args[0])
			if err != nil {
				return err
			}

			filter, err := buildFilter(schema, equals, notEquals)
			if err != nil {
				return err
			}

			order, err := wireOrder(schema, orderBy)
			if err != nil {
				return err
			}

			iter, err := sess.client.Resources().List(cmd.Context(), schema, &commissions.ListOptions{
				Filter:      filter,
				OrderBy:     order,
				PageSize:    pageSize,
				InlineCount: count,
			})
			if err != nil {
				return err
			}

			var resources []*commissions.Resource

			for resource, err := range iter.All(cmd.Context()) {
				if err != nil {
					return err
				}

				resources = append(resources, resource)
				if limit > 0 && len(resources) >= limit {
					break
				}
			}

			if total, ok := iter.Total(); ok {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Total: %d\n", total)
			}

			return renderResources(cmd.OutOrStdout(), sess.client, schema, resources, renderOptions{
				jq:      jq,
				columns: splitList(columns),
			})
		},
	}

	cmd.Flags().StringArrayVar(&equals, "filter-eq", nil, "field=value equality filter (repeatable)")
	cmd.Flags().StringArrayVar(&notEquals, "filter-ne", nil, "field=value inequality filter (repeatable)")
	cmd.Flags().StringSliceVar(&orderBy, "order-by", nil, "sort fields, suffix with ' desc' for descending")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "items per page (1-100)")
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many resources")
	cmd.Flags().BoolVar(&count, "count", false, "report the total number of matches")
	cmd.Flags().StringVar(&columns, "columns", "", "comma separated table columns")
	cmd.Flags().StringVar(&jq, "jq", "", "jq expression applied to the JSON output")

	return cmd
}

// NewGetCommand creates the get command.
func NewGetCommand() *cobra.Command {
	var jq string

	cmd := &cobra.Command{
		Use:   "get TYPE SEQ [SEQ...]",
		Short: "Get resources by identifier",
		Long: `Get one resource by identifier, or several at once.

Several identifiers are read concurrently, bounded by the "concurrency"
setting, and served from the configured cache when possible.`,
		Args: cobra.MinimumNArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			schema, err := lookupSchema(sess.client, args[0])
			if err != nil {
				return err
			}

			if len(args) == 2 { //nolint:mnd
				resource, err := sess.client.Resources().Get(cmd.Context(), schema, args[1])
				if err != nil {
					return err
				}

				return renderResource(cmd.OutOrStdout(), sess.client, resource, jq)
			}

			resources, err := sess.client.Resources().ResolveAll(cmd.Context(), schema, args[1:])
			if err != nil {
				return err
			}

			return renderResources(cmd.OutOrStdout(), sess.client, schema, resources, renderOptions{jq: jq})
		},
	}

	cmd.Flags().StringVar(&jq, "jq", "", "jq expression applied to the JSON output")

	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete TYPE SEQ [SEQ...]",
		Short: "Delete resources by identifier",
		Args:  cobra.MinimumNArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			schema, err := lookupSchema(sess.client, args[0])
			if err != nil {
				return err
			}

			var errs []error

			for _, seq := range args[1:] {
				resource, err := sess.client.Codec().Decode(schema, map[string]any{schema.SeqWire(): seq})
				if err != nil {
					return err
				}

				err = sess.client.Resources().Delete(cmd.Context(), resource)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s %s: %w", schema.Name, seq, err))

					continue
				}

				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s %s\n", schema.Name, seq)
			}

			return errors.Join(errs...)
		},
	}
}

// buildFilter combines equality and inequality flags into one expression.
func buildFilter(schema *commissions.Schema, equals, notEquals []string) (commissions.Expression, error) {
	var comparisons []commissions.Expression

	for _, pairs := range []struct {
		values []string
		build  func(string, any) commissions.Comparison
	}{
		{values: equals, build: commissions.Equals},
		{values: notEquals, build: commissions.NotEquals},
	} {
		for _, pair := range pairs.values {
			name, raw, ok := strings.Cut(pair, "=")
			if !ok || name == "" {
				return nil, fmt.Errorf("%w: %q", constants.ErrInvalidFilterFlag, pair)
			}

			field, err := filterField(schema, name)
			if err != nil {
				return nil, err
			}

			value, err := filterValue(field, raw)
			if err != nil {
				return nil, err
			}

			comparisons = append(comparisons, pairs.build(field.Wire, value))
		}
	}

	switch len(comparisons) {
	case 0:
		return nil, nil //nolint:nilnil
	case 1:
		return comparisons[0], nil
	default:
		return commissions.And(comparisons[0], comparisons[1:]...), nil
	}
}

func filterField(schema *commissions.Schema, name string) (*commissions.Field, error) {
	if field, ok := schema.Field(name); ok {
		return field, nil
	}

	if field, ok := schema.WireField(name); ok {
		return field, nil
	}

	return nil, fmt.Errorf("%w: %s.%s", constants.ErrUnknownFilterField, schema.Name, name)
}

// filterValue converts a flag value to the literal type of the field.
func filterValue(field *commissions.Field, raw string) (any, error) {
	if raw == "null" {
		return commissions.Null, nil
	}

	switch field.Kind {
	case commissions.KindInteger, commissions.KindDecimal, commissions.KindValue:
		_, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s expects a number", constants.ErrInvalidFilterFlag, field.Name)
		}

		return json.Number(raw), nil
	case commissions.KindBoolean:
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s expects true or false", constants.ErrInvalidFilterFlag, field.Name)
		}

		return value, nil
	case commissions.KindDate:
		value, err := time.Parse(constants.DateFormat, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s expects a YYYY-MM-DD date", constants.ErrInvalidFilterFlag, field.Name)
		}

		return value, nil
	default:
		return raw, nil
	}
}

// wireOrder maps sort fields to wire names, keeping direction suffixes.
func wireOrder(schema *commissions.Schema, orderBy []string) ([]string, error) {
	out := make([]string, 0, len(orderBy))

	for _, item := range orderBy {
		name, direction, _ := strings.Cut(strings.TrimSpace(item), " ")

		field, err := filterField(schema, name)
		if err != nil {
			return nil, err
		}

		if direction != "" {
			out = append(out, field.Wire+" "+strings.TrimSpace(direction))
		} else {
			out = append(out, field.Wire)
		}
	}

	return out, nil
}
