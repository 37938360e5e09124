package commissions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fivetwenty-io/sapcommissions/internal/constants"
)

// Accepted wire layouts for date and timestamp fields.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	constants.DateFormat,
	constants.FilterPeriodDateFormat,
}

// Codec converts between wire JSON and resources. It is safe for concurrent use.
type Codec struct {
	registry *Registry
	logger   Logger
}

// NewCodec creates a codec resolving nested types through registry.
func NewCodec(registry *Registry, logger Logger) *Codec {
	if logger == nil {
		logger = NopLogger{}
	}

	return &Codec{registry: registry, logger: logger}
}

// Registry returns the registry used for nested types.
func (c *Codec) Registry() *Registry {
	return c.registry
}

// Unmarshal parses data and decodes it as a resource of schema.
func (c *Codec) Unmarshal(schema *Schema, data []byte) (*Resource, error) {
	object, err := DecodeJSONObject(data)
	if err != nil {
		return nil, &Error{Kind: KindDecode, Op: "decode " + schema.Name, Err: err}
	}

	return c.Decode(schema, object)
}

// Decode builds a resource from a wire object. Unknown wire fields are logged
// and dropped; null values are treated as absent.
func (c *Codec) Decode(schema *Schema, object map[string]any) (*Resource, error) {
	resource := schema.New()

	for wire, raw := range object {
		field, ok := schema.WireField(wire)
		if !ok {
			c.logger.Warn("Dropping unknown field", map[string]interface{}{
				"resource": schema.Name,
				"field":    wire,
			})

			continue
		}

		if raw == nil {
			continue
		}

		value, err := c.decodeField(field, raw)
		if err != nil {
			return nil, &Error{
				Kind:  KindDecode,
				Op:    "decode " + schema.Name,
				Field: field.Name,
				Value: raw,
				Err:   err,
			}
		}

		resource.values[field.Name] = value
	}

	return resource, nil
}

func (c *Codec) decodeField(field *Field, raw any) (any, error) {
	switch field.Kind {
	case KindString:
		switch typed := raw.(type) {
		case string:
			return typed, nil
		case json.Number:
			return typed.String(), nil
		}
	case KindInteger:
		switch typed := raw.(type) {
		case json.Number:
			return typed.Int64()
		case string:
			return strconv.ParseInt(typed, 10, 64)
		}
	case KindDecimal:
		switch typed := raw.(type) {
		case json.Number:
			return typed, nil
		case string:
			return parseDecimal(typed)
		}
	case KindBoolean:
		switch typed := raw.(type) {
		case bool:
			return typed, nil
		case string:
			return strconv.ParseBool(typed)
		}
	case KindDate:
		if s, ok := raw.(string); ok {
			t, err := parseTime(s)
			if err != nil {
				return nil, err
			}

			return calendarDate(t), nil
		}
	case KindTimestamp:
		if s, ok := raw.(string); ok {
			t, err := parseTime(s)
			if err != nil {
				return nil, err
			}

			return t.UTC(), nil
		}
	case KindValue:
		if object, ok := raw.(map[string]any); ok {
			return decodeValue(object)
		}
	case KindReference:
		return decodeReference(field, raw)
	case KindResource:
		return c.decodeNested(field, raw)
	case KindList:
		return c.decodeList(field, raw)
	case KindInvalid:
	}

	return nil, fmt.Errorf("%w: %T is not a %s", ErrInvalidKind, raw, field.Kind)
}

func (c *Codec) decodeNested(field *Field, raw any) (*Resource, error) {
	target, err := c.registry.Lookup(field.Target)
	if err != nil {
		return nil, err
	}

	switch typed := raw.(type) {
	case map[string]any:
		return c.Decode(target, typed)
	case string, json.Number:
		nested := target.New()
		if target.Seq != "" {
			nested.values[target.Seq] = fmt.Sprint(typed)
		}

		return nested, nil
	}

	return nil, fmt.Errorf("%w: %T is not a %s", ErrInvalidKind, raw, field.Kind)
}

func (c *Codec) decodeList(field *Field, raw any) ([]any, error) {
	if field.Elem == nil {
		return nil, ErrAmbiguousElement
	}

	elems, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a list", ErrInvalidKind, raw)
	}

	out := make([]any, 0, len(elems))

	for i, elem := range elems {
		value, err := c.decodeField(field.Elem, elem)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}

		out = append(out, value)
	}

	return out, nil
}

// parseDecimal accepts amounts the server sends as strings. The result must
// be a JSON number literal so it encodes back unchanged.
func parseDecimal(s string) (json.Number, error) {
	s = strings.TrimSpace(s)
	if s == "" || (s[0] != '-' && (s[0] < '0' || s[0] > '9')) || !json.Valid([]byte(s)) {
		return "", fmt.Errorf("%w: amount %q", ErrInvalidKind, s)
	}

	return json.Number(s), nil
}

func decodeValue(object map[string]any) (Value, error) {
	var value Value

	switch amount := object["value"].(type) {
	case json.Number:
		value.Amount = amount
	case string:
		number, err := parseDecimal(amount)
		if err != nil {
			return Value{}, err
		}

		value.Amount = number
	case nil:
	default:
		return Value{}, fmt.Errorf("%w: amount %T", ErrInvalidKind, amount)
	}

	if unitType, ok := object["unitType"].(map[string]any); ok {
		value.UnitType.Name, _ = unitType["name"].(string)
		value.UnitType.Seq = scalarString(unitType["unitTypeSeq"])
	}

	return value, nil
}

func decodeReference(field *Field, raw any) (Reference, error) {
	switch typed := raw.(type) {
	case string:
		return Reference{Seq: typed, Target: field.Target}, nil
	case json.Number:
		return Reference{Seq: typed.String(), Target: field.Target}, nil
	case map[string]any:
		ref := Reference{
			Seq:        scalarString(typed["key"]),
			Target:     field.Target,
			ObjectType: scalarString(typed["objectType"]),
		}
		ref.DisplayName, _ = typed["displayName"].(string)

		if keys, ok := typed["logicalKeys"].(map[string]any); ok {
			ref.LogicalKeys = keys
		}

		return ref, nil
	}

	return Reference{}, fmt.Errorf("%w: %T is not a reference", ErrInvalidKind, raw)
}

// Encode renders a resource as a wire object. Only populated values are
// emitted, read-only fields never are, and the identifier is left out when
// omitSeq is set. References and nested resources are written as their
// identifier, except fields declared embedded, which are written as objects.
func (c *Codec) Encode(resource *Resource, omitSeq bool) map[string]any {
	return encodeResource(resource, omitSeq, false)
}

// Snapshot renders every populated value, read-only fields included, with
// references and nested resources inlined. Decode accepts the result, which
// makes it suitable for caching.
func (c *Codec) Snapshot(resource *Resource) map[string]any {
	return encodeResource(resource, false, true)
}

// Marshal encodes a resource to JSON.
func (c *Codec) Marshal(resource *Resource, omitSeq bool) ([]byte, error) {
	data, err := json.Marshal(c.Encode(resource, omitSeq))
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", resource.Type(), err)
	}

	return data, nil
}

func encodeResource(resource *Resource, omitSeq, full bool) map[string]any {
	out := make(map[string]any, len(resource.values))

	for i := range resource.schema.Fields {
		field := &resource.schema.Fields[i]

		value, ok := resource.values[field.Name]
		if !ok || (field.ReadOnly && !full) {
			continue
		}

		if omitSeq && field.Name == resource.schema.Seq {
			continue
		}

		encoded, ok := encodeField(field, value, full)
		if ok {
			out[field.Wire] = encoded
		}
	}

	return out
}

func encodeField(field *Field, value any, full bool) (any, bool) {
	switch typed := value.(type) {
	case time.Time:
		if field.Kind == KindDate {
			return typed.Format(constants.DateFormat), true
		}

		return typed.UTC().Format(time.RFC3339Nano), true
	case Value:
		return typed.wire(), true
	case Reference:
		if full && typed.Expanded() {
			return typed.wire(), true
		}

		return typed.Seq, typed.Seq != ""
	case *Resource:
		if full {
			return encodeResource(typed, false, true), true
		}

		if field.Embedded {
			nested := encodeResource(typed, false, false)

			return nested, len(nested) > 0
		}

		seq := typed.Seq()

		return seq, seq != ""
	case []any:
		elemField := field
		if field.Elem != nil {
			elemField = field.Elem
		}

		out := make([]any, 0, len(typed))

		for _, elem := range typed {
			encoded, ok := encodeField(elemField, elem, full)
			if ok {
				out = append(out, encoded)
			}
		}

		return out, true
	default:
		return typed, true
	}
}

// DecodeJSONObject parses a JSON object keeping numbers as json.Number.
func DecodeJSONObject(data []byte) (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var object map[string]any

	err := decoder.Decode(&object)
	if err != nil {
		return nil, fmt.Errorf("parsing JSON object: %w", err)
	}

	return object, nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: unrecognized time %q", ErrInvalidKind, s)
}

func scalarString(v any) string {
	switch typed := v.(type) {
	case string:
		return typed
	case json.Number:
		return typed.String()
	default:
		return ""
	}
}
