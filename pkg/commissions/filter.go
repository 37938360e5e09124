package commissions

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fivetwenty-io/sapcommissions/internal/constants"
)

// Null is the literal that tests a field for absence, e.g. Equals("name", Null).
const Null = nullLiteral("null")

type nullLiteral string

// Operator is a filter comparison operator.
type Operator string

const (
	OpEquals         Operator = "eq"
	OpNotEquals      Operator = "ne"
	OpGreaterThan    Operator = "gt"
	OpGreaterOrEqual Operator = "ge"
	OpLessThan       Operator = "lt"
	OpLessOrEqual    Operator = "le"
)

// Expression is a filter expression. Rendering is pure: two expressions built
// from the same inputs always render identically.
type Expression interface {
	fmt.Stringer
	expression()
}

// Comparison compares one wire field against a literal.
type Comparison struct {
	field string
	op    Operator
	value any
}

func (Comparison) expression() {}

// String renders "<field> <op> <literal>".
func (c Comparison) String() string {
	return c.field + " " + string(c.op) + " " + renderLiteral(c.field, c.value)
}

// Equals matches field == value. String values may contain the '*' wildcard.
func Equals(field string, value any) Comparison {
	return Comparison{field: field, op: OpEquals, value: value}
}

// NotEquals matches field != value.
func NotEquals(field string, value any) Comparison {
	return Comparison{field: field, op: OpNotEquals, value: value}
}

// GreaterThan matches field > value.
func GreaterThan(field string, value any) Comparison {
	return Comparison{field: field, op: OpGreaterThan, value: value}
}

// GreaterOrEqual matches field >= value.
func GreaterOrEqual(field string, value any) Comparison {
	return Comparison{field: field, op: OpGreaterOrEqual, value: value}
}

// LessThan matches field < value.
func LessThan(field string, value any) Comparison {
	return Comparison{field: field, op: OpLessThan, value: value}
}

// LessOrEqual matches field <= value.
func LessOrEqual(field string, value any) Comparison {
	return Comparison{field: field, op: OpLessOrEqual, value: value}
}

// Logical joins operands with "and" or "or".
type Logical struct {
	op       string
	operands []Expression
}

func (Logical) expression() {}

// String renders the operands joined by the operator. More than one operand
// is parenthesized; a single operand renders bare.
func (l Logical) String() string {
	if len(l.operands) == 1 {
		return l.operands[0].String()
	}

	parts := make([]string, len(l.operands))
	for i, operand := range l.operands {
		parts[i] = operand.String()
	}

	return "(" + strings.Join(parts, " "+l.op+" ") + ")"
}

// And requires every operand to match. At least one operand is required by
// the signature; a nil operand panics.
func And(first Expression, rest ...Expression) Logical {
	return newLogical("and", first, rest)
}

// Or requires any operand to match.
func Or(first Expression, rest ...Expression) Logical {
	return newLogical("or", first, rest)
}

func newLogical(op string, first Expression, rest []Expression) Logical {
	operands := make([]Expression, 0, len(rest)+1)
	operands = append(operands, first)
	operands = append(operands, rest...)

	for i, operand := range operands {
		if operand == nil {
			panic(fmt.Sprintf("commissions: nil operand %d in %q expression", i, op))
		}
	}

	return Logical{op: op, operands: operands}
}

// Period list filters use slashes instead of dashes for these fields.
var slashDateFields = map[string]bool{
	"startDate": true,
	"endDate":   true,
}

func renderLiteral(field string, value any) string {
	switch typed := value.(type) {
	case nullLiteral:
		return string(typed)
	case string:
		return quote(typed)
	case bool:
		return strconv.FormatBool(typed)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case json.Number:
		return typed.String()
	case Value:
		return typed.Amount.String()
	case time.Time:
		if slashDateFields[field] {
			return typed.Format(constants.FilterPeriodDateFormat)
		}

		return typed.Format(constants.DateFormat)
	case Reference:
		return quote(typed.Seq)
	case *Resource:
		return quote(typed.Seq())
	case fmt.Stringer:
		return quote(typed.String())
	default:
		return quote(fmt.Sprint(typed))
	}
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
