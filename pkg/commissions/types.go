package commissions

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// UnitType identifies the unit of a Value, e.g. a currency.
type UnitType struct {
	Name string `json:"name,omitempty"        yaml:"name,omitempty"`
	Seq  string `json:"unitTypeSeq,omitempty" yaml:"unit_type_seq,omitempty"`
}

// Value is a tagged numeric quantity. Amount is kept as the literal the
// server sent so that it round-trips without loss.
type Value struct {
	Amount   json.Number `json:"value"              yaml:"value"`
	UnitType UnitType    `json:"unitType,omitempty" yaml:"unit_type,omitempty"`
}

// NewValue builds a Value from a float amount and a unit type name.
func NewValue(amount float64, unitType string) Value {
	return Value{
		Amount:   json.Number(strconv.FormatFloat(amount, 'f', -1, 64)),
		UnitType: UnitType{Name: unitType},
	}
}

// Float64 returns the amount as a float.
func (v Value) Float64() (float64, error) {
	f, err := v.Amount.Float64()
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", v.Amount, err)
	}

	return f, nil
}

// String renders the value as "<amount> <unit>".
func (v Value) String() string {
	if v.UnitType.Name == "" {
		return v.Amount.String()
	}

	return v.Amount.String() + " " + v.UnitType.Name
}

func (v Value) wire() map[string]any {
	out := map[string]any{"value": v.Amount}

	unitType := map[string]any{}
	if v.UnitType.Name != "" {
		unitType["name"] = v.UnitType.Name
	}

	if v.UnitType.Seq != "" {
		unitType["unitTypeSeq"] = v.UnitType.Seq
	}

	if len(unitType) > 0 {
		out["unitType"] = unitType
	}

	return out
}

// Reference is the inlined form of a cross-resource link. The server sends
// it when the field is expanded; otherwise only Seq is populated.
type Reference struct {
	// Seq is the identifier of the referenced resource.
	Seq string `json:"key"                   yaml:"seq"`
	// Target is the resource type the reference points at.
	Target      string         `json:"-"                     yaml:"target,omitempty"`
	DisplayName string         `json:"displayName,omitempty" yaml:"display_name,omitempty"`
	ObjectType  string         `json:"objectType,omitempty"  yaml:"object_type,omitempty"`
	LogicalKeys map[string]any `json:"logicalKeys,omitempty" yaml:"logical_keys,omitempty"`
}

// Expanded reports whether the server inlined details for the reference.
func (r Reference) Expanded() bool {
	return r.DisplayName != "" || r.ObjectType != "" || len(r.LogicalKeys) > 0
}

func (r Reference) wire() map[string]any {
	out := map[string]any{"key": r.Seq}
	if r.DisplayName != "" {
		out["displayName"] = r.DisplayName
	}

	if r.ObjectType != "" {
		out["objectType"] = r.ObjectType
	}

	if len(r.LogicalKeys) > 0 {
		out["logicalKeys"] = r.LogicalKeys
	}

	return out
}

// String returns the display name when known, the identifier otherwise.
func (r Reference) String() string {
	if r.DisplayName != "" {
		return r.DisplayName
	}

	return r.Seq
}
