package commissions

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"
)

// FieldKind is the closed set of field kinds the codec understands.
type FieldKind int

const (
	KindInvalid FieldKind = iota
	KindString
	KindInteger
	KindDecimal
	KindBoolean
	KindDate
	KindTimestamp
	KindValue
	KindReference
	KindResource
	KindList
)

var fieldKindNames = map[FieldKind]string{
	KindString:    "string",
	KindInteger:   "integer",
	KindDecimal:   "decimal",
	KindBoolean:   "boolean",
	KindDate:      "date",
	KindTimestamp: "timestamp",
	KindValue:     "value",
	KindReference: "reference",
	KindResource:  "resource",
	KindList:      "list",
}

// Static errors for err113 compliance.
var (
	ErrInvalidSchema    = errors.New("invalid schema")
	ErrUnknownFieldKind = errors.New("unknown field kind")
)

// String implements fmt.Stringer.
func (k FieldKind) String() string {
	if name, ok := fieldKindNames[k]; ok {
		return name
	}

	return "invalid"
}

// ParseFieldKind parses the textual form of a field kind.
func ParseFieldKind(s string) (FieldKind, error) {
	for kind, name := range fieldKindNames {
		if name == s {
			return kind, nil
		}
	}

	return KindInvalid, fmt.Errorf("%w: %q", ErrUnknownFieldKind, s)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (k *FieldKind) UnmarshalYAML(node *yaml.Node) error {
	kind, err := ParseFieldKind(node.Value)
	if err != nil {
		return err
	}

	*k = kind

	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (k FieldKind) MarshalYAML() (interface{}, error) {
	return k.String(), nil
}

// Field declares one attribute of a resource type.
type Field struct {
	// Name is the local attribute name.
	Name string `yaml:"name"`
	// Wire is the attribute name on the wire. Defaults to camelCase of Name.
	Wire string    `yaml:"wire,omitempty"`
	Kind FieldKind `yaml:"kind"`
	// Target is the resource type of reference and resource fields.
	Target string `yaml:"target,omitempty"`
	// Elem is the element declaration of list fields.
	Elem *Field `yaml:"elem,omitempty"`
	// Expandable references are requested inline on reads.
	Expandable bool `yaml:"expand,omitempty"`
	// ReadOnly fields are computed by the server and never sent.
	ReadOnly bool `yaml:"readonly,omitempty"`
	// Embedded resource fields are written inline as objects. Other
	// resource fields are written as the nested identifier.
	Embedded bool `yaml:"embedded,omitempty"`
}

// Schema declares a resource type.
type Schema struct {
	Name       string   `yaml:"name"`
	Endpoint   string   `yaml:"endpoint"`
	Collection string   `yaml:"collection"`
	Seq        string   `yaml:"seq,omitempty"`
	Keys       []string `yaml:"keys,omitempty"`
	Fields     []Field  `yaml:"fields"`

	byName map[string]*Field
	byWire map[string]*Field
}

// NewSchema builds and indexes a schema.
func NewSchema(name, endpoint, collection, seq string, fields ...Field) (*Schema, error) {
	schema := &Schema{
		Name:       name,
		Endpoint:   endpoint,
		Collection: collection,
		Seq:        seq,
		Fields:     fields,
	}

	err := schema.index()
	if err != nil {
		return nil, err
	}

	return schema, nil
}

func (s *Schema) index() error {
	if s.Name == "" || s.Endpoint == "" || s.Collection == "" {
		return fmt.Errorf("%w: name, endpoint and collection are required", ErrInvalidSchema)
	}

	s.Endpoint = strings.Trim(s.Endpoint, "/")
	s.byName = make(map[string]*Field, len(s.Fields))
	s.byWire = make(map[string]*Field, len(s.Fields))

	for i := range s.Fields {
		field := &s.Fields[i]
		if field.Wire == "" {
			field.Wire = camelCase(field.Name)
		}

		if field.Elem != nil && field.Elem.Wire == "" {
			field.Elem.Wire = field.Wire
		}

		if field.Kind == KindInvalid {
			return fmt.Errorf("%w: %s.%s has no kind", ErrInvalidSchema, s.Name, field.Name)
		}

		if field.Embedded && field.Kind != KindResource {
			return fmt.Errorf("%w: %s.%s is embedded but not a resource", ErrInvalidSchema, s.Name, field.Name)
		}

		if field.Elem != nil && field.Elem.Embedded && field.Elem.Kind != KindResource {
			return fmt.Errorf("%w: %s.%s elements are embedded but not resources", ErrInvalidSchema, s.Name, field.Name)
		}

		if _, dup := s.byName[field.Name]; dup {
			return fmt.Errorf("%w: duplicate field %s.%s", ErrInvalidSchema, s.Name, field.Name)
		}

		if _, dup := s.byWire[field.Wire]; dup {
			return fmt.Errorf("%w: duplicate wire name %s.%s", ErrInvalidSchema, s.Name, field.Wire)
		}

		s.byName[field.Name] = field
		s.byWire[field.Wire] = field
	}

	if s.Seq != "" {
		if _, ok := s.byName[s.Seq]; !ok {
			return fmt.Errorf("%w: identifier %s.%s is not a declared field", ErrInvalidSchema, s.Name, s.Seq)
		}
	}

	for _, key := range s.Keys {
		if _, ok := s.byName[key]; !ok {
			return fmt.Errorf("%w: logical key %s.%s is not a declared field", ErrInvalidSchema, s.Name, key)
		}
	}

	return nil
}

// Field returns the declaration of a local attribute.
func (s *Schema) Field(name string) (*Field, bool) {
	field, ok := s.byName[name]

	return field, ok
}

// WireField returns the declaration of a wire attribute.
func (s *Schema) WireField(wire string) (*Field, bool) {
	field, ok := s.byWire[wire]

	return field, ok
}

// SeqWire returns the wire name of the identifier, or "".
func (s *Schema) SeqWire() string {
	if s.Seq == "" {
		return ""
	}

	return s.byName[s.Seq].Wire
}

// Expand lists the wire names of every expandable field.
func (s *Schema) Expand() []string {
	var out []string

	for _, field := range s.Fields {
		if field.Expandable {
			out = append(out, field.Wire)
		}
	}

	return out
}

// New returns an empty resource of this type.
func (s *Schema) New() *Resource {
	return &Resource{schema: s, values: map[string]any{}}
}

// Registry maps resource type names to schemas. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: map[string]*Schema{}}
}

// Register indexes and adds a schema, replacing one with the same name.
func (r *Registry) Register(schema *Schema) error {
	err := schema.index()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.schemas[schema.Name] = schema

	return nil
}

// Lookup returns the schema registered under name.
func (r *Registry) Lookup(name string) (*Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schema, ok := r.schemas[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResourceType, name)
	}

	return schema, nil
}

// Names returns the registered type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Validate checks that every reference and resource target is registered.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error

	for _, schema := range r.schemas {
		for _, field := range schema.Fields {
			declared := &field
			if field.Kind == KindList && field.Elem != nil {
				declared = field.Elem
			}

			if declared.Kind != KindReference && declared.Kind != KindResource {
				continue
			}

			if _, ok := r.schemas[declared.Target]; !ok {
				errs = append(errs, fmt.Errorf("%w: %s.%s targets unknown type %q",
					ErrInvalidSchema, schema.Name, field.Name, declared.Target))
			}
		}
	}

	return errors.Join(errs...)
}

// LoadRegistry parses a YAML document holding a list of schemas.
func LoadRegistry(data []byte) (*Registry, error) {
	var document struct {
		Resources []*Schema `yaml:"resources"`
	}

	err := yaml.Unmarshal(data, &document)
	if err != nil {
		return nil, fmt.Errorf("parsing schema catalogue: %w", err)
	}

	registry := NewRegistry()

	for _, schema := range document.Resources {
		err = registry.Register(schema)
		if err != nil {
			return nil, err
		}
	}

	err = registry.Validate()
	if err != nil {
		return nil, err
	}

	return registry, nil
}

// camelCase converts a snake_case local name to its wire form.
func camelCase(name string) string {
	parts := strings.Split(name, "_")

	var builder strings.Builder

	for i, part := range parts {
		if part == "" {
			continue
		}

		if i == 0 {
			builder.WriteString(part)

			continue
		}

		runes := []rune(part)
		runes[0] = unicode.ToUpper(runes[0])
		builder.WriteString(string(runes))
	}

	return builder.String()
}
