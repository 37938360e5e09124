package commissions

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/fivetwenty-io/sapcommissions/internal/constants"
)

// Resource is a typed record of one resource type. Values are keyed by local
// field name and always hold the Go type of the field kind:
//
//	string     string
//	integer    int64
//	decimal    json.Number
//	boolean    bool
//	date       time.Time (midnight UTC)
//	timestamp  time.Time (UTC)
//	value      Value
//	reference  Reference
//	resource   *Resource
//	list       []any of the element kind
type Resource struct {
	schema *Schema
	values map[string]any
}

// Schema returns the resource type declaration.
func (r *Resource) Schema() *Schema {
	return r.schema
}

// Type returns the resource type name.
func (r *Resource) Type() string {
	return r.schema.Name
}

// Seq returns the server-assigned identifier, or "" when unassigned.
func (r *Resource) Seq() string {
	if r.schema.Seq == "" {
		return ""
	}

	seq, _ := r.values[r.schema.Seq].(string)

	return seq
}

// Get returns the value of a local field.
func (r *Resource) Get(name string) (any, bool) {
	value, ok := r.values[name]

	return value, ok
}

// Set assigns a local field after converting value to the field kind. A nil
// value clears the field. The identifier cannot be set by the client.
func (r *Resource) Set(name string, value any) error {
	op := "set " + r.schema.Name

	field, ok := r.schema.Field(name)
	if !ok {
		return NewValidationError(op, name, ErrUnknownField)
	}

	if name == r.schema.Seq {
		return NewValidationError(op, name, ErrIdentifierReadOnly)
	}

	if value == nil {
		delete(r.values, name)

		return nil
	}

	normalized, err := normalize(field, value)
	if err != nil {
		return NewValidationError(op, name, err)
	}

	r.values[name] = normalized

	return nil
}

// String returns a string field, or "".
func (r *Resource) String(name string) string {
	s, _ := r.values[name].(string)

	return s
}

// Int returns an integer field.
func (r *Resource) Int(name string) (int64, bool) {
	i, ok := r.values[name].(int64)

	return i, ok
}

// Bool returns a boolean field.
func (r *Resource) Bool(name string) (bool, bool) {
	b, ok := r.values[name].(bool)

	return b, ok
}

// Time returns a date or timestamp field.
func (r *Resource) Time(name string) (time.Time, bool) {
	t, ok := r.values[name].(time.Time)

	return t, ok
}

// Value returns a value field.
func (r *Resource) Value(name string) (Value, bool) {
	v, ok := r.values[name].(Value)

	return v, ok
}

// Reference returns a reference field.
func (r *Resource) Reference(name string) (Reference, bool) {
	ref, ok := r.values[name].(Reference)

	return ref, ok
}

// Nested returns a nested resource field.
func (r *Resource) Nested(name string) (*Resource, bool) {
	nested, ok := r.values[name].(*Resource)

	return nested, ok
}

// List returns a list field.
func (r *Resource) List(name string) ([]any, bool) {
	list, ok := r.values[name].([]any)

	return list, ok
}

// Fields returns a shallow copy of all populated values.
func (r *Resource) Fields() map[string]any {
	out := make(map[string]any, len(r.values))
	for name, value := range r.values {
		out[name] = value
	}

	return out
}

// Clone returns a deep copy of the resource.
func (r *Resource) Clone() *Resource {
	clone := &Resource{schema: r.schema, values: make(map[string]any, len(r.values))}
	for name, value := range r.values {
		clone.values[name] = cloneValue(value)
	}

	return clone
}

// Flatten projects the resource onto scalar columns for tabular export.
// References become "<name>" (identifier) and "<name>_display_name"; values
// become "<name>" (amount) and "<name>_unit_type"; dates become strings.
func (r *Resource) Flatten() map[string]any {
	out := make(map[string]any, len(r.values))

	for _, field := range r.schema.Fields {
		value, ok := r.values[field.Name]
		if !ok {
			continue
		}

		flattenInto(out, &field, field.Name, value)
	}

	return out
}

func flattenInto(out map[string]any, field *Field, column string, value any) {
	switch typed := value.(type) {
	case Reference:
		out[column] = typed.Seq
		if typed.DisplayName != "" {
			out[column+"_display_name"] = typed.DisplayName
		}
	case Value:
		out[column] = typed.Amount.String()
		if typed.UnitType.Name != "" {
			out[column+"_unit_type"] = typed.UnitType.Name
		}
	case time.Time:
		if field.Kind == KindDate {
			out[column] = typed.Format(constants.DateFormat)
		} else {
			out[column] = typed.Format(time.RFC3339)
		}
	case *Resource:
		out[column] = typed.Seq()
	case []any:
		for i, elem := range typed {
			elemField := field
			if field.Elem != nil {
				elemField = field.Elem
			}

			flattenInto(out, elemField, column+"_"+strconv.Itoa(i+1), elem)
		}
	case json.Number:
		out[column] = typed.String()
	default:
		out[column] = typed
	}
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case *Resource:
		return typed.Clone()
	case []any:
		out := make([]any, len(typed))
		for i, elem := range typed {
			out[i] = cloneValue(elem)
		}

		return out
	case Reference:
		if typed.LogicalKeys != nil {
			keys := make(map[string]any, len(typed.LogicalKeys))
			for k, v := range typed.LogicalKeys {
				keys[k] = v
			}

			typed.LogicalKeys = keys
		}

		return typed
	default:
		return value
	}
}

// normalize converts a caller-supplied value to the Go type of the field kind.
func normalize(field *Field, value any) (any, error) {
	switch field.Kind {
	case KindString:
		if s, ok := value.(string); ok {
			return s, nil
		}
	case KindInteger:
		switch typed := value.(type) {
		case int:
			return int64(typed), nil
		case int32:
			return int64(typed), nil
		case int64:
			return typed, nil
		case json.Number:
			return typed.Int64()
		}
	case KindDecimal:
		switch typed := value.(type) {
		case json.Number:
			return parseDecimal(typed.String())
		case float64:
			return json.Number(strconv.FormatFloat(typed, 'f', -1, 64)), nil
		case int:
			return json.Number(strconv.Itoa(typed)), nil
		case int64:
			return json.Number(strconv.FormatInt(typed, 10)), nil
		}
	case KindBoolean:
		if b, ok := value.(bool); ok {
			return b, nil
		}
	case KindDate:
		if t, ok := value.(time.Time); ok {
			return calendarDate(t), nil
		}
	case KindTimestamp:
		if t, ok := value.(time.Time); ok {
			return t.UTC(), nil
		}
	case KindValue:
		if v, ok := value.(Value); ok {
			return v, nil
		}
	case KindReference:
		switch typed := value.(type) {
		case Reference:
			typed.Target = field.Target

			return typed, nil
		case string:
			return Reference{Seq: typed, Target: field.Target}, nil
		}
	case KindResource:
		if nested, ok := value.(*Resource); ok && nested.schema.Name == field.Target {
			return nested, nil
		}
	case KindList:
		return normalizeList(field, value)
	case KindInvalid:
	}

	return nil, fmt.Errorf("%w: %T is not a %s", ErrInvalidKind, value, field.Kind)
}

func normalizeList(field *Field, value any) (any, error) {
	if field.Elem == nil {
		return nil, ErrAmbiguousElement
	}

	var elems []any

	switch typed := value.(type) {
	case []any:
		elems = typed
	case []string:
		for _, s := range typed {
			elems = append(elems, s)
		}
	case []Reference:
		for _, ref := range typed {
			elems = append(elems, ref)
		}
	case []*Resource:
		for _, nested := range typed {
			elems = append(elems, nested)
		}
	default:
		return nil, fmt.Errorf("%w: %T is not a list", ErrInvalidKind, value)
	}

	out := make([]any, 0, len(elems))

	for _, elem := range elems {
		normalized, err := normalize(field.Elem, elem)
		if err != nil {
			return nil, err
		}

		out = append(out, normalized)
	}

	return out, nil
}

// calendarDate keeps the calendar date of t, as written in its own offset,
// at midnight UTC.
func calendarDate(t time.Time) time.Time {
	year, month, day := t.Date()

	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
