package queryir

import "strings"

// FilterNode is one node of a filter tree.
//
// This is a sealed interface - only Comparison and Boolean implement it.
type FilterNode interface {
	filterNode() // Marker method - seals interface to this package
}

// Operator is a canonical comparison operator.
type Operator string

const (
	OpEq        Operator = "eq"
	OpNe        Operator = "ne"
	OpGt        Operator = "gt"
	OpGte       Operator = "gte"
	OpLt        Operator = "lt"
	OpLte       Operator = "lte"
	OpLike      Operator = "like"
	OpILike     Operator = "ilike"
	OpIn        Operator = "in"
	OpNotIn     Operator = "not_in"
	OpIsNull    Operator = "is_null"
	OpIsNotNull Operator = "is_not_null"
	OpBetween   Operator = "between"
)

// operatorAliases maps every accepted wire spelling to its canonical operator.
var operatorAliases = map[string]Operator{
	"eq":          OpEq,
	"ne":          OpNe,
	"neq":         OpNe,
	"!=":          OpNe,
	"gt":          OpGt,
	"gte":         OpGte,
	"ge":          OpGte,
	"lt":          OpLt,
	"lte":         OpLte,
	"le":          OpLte,
	"like":        OpLike,
	"ilike":       OpILike,
	"in":          OpIn,
	"not_in":      OpNotIn,
	"nin":         OpNotIn,
	"is_null":     OpIsNull,
	"null":        OpIsNull,
	"is_not_null": OpIsNotNull,
	"not_null":    OpIsNotNull,
	"between":     OpBetween,
}

// ParseOperator resolves a wire operator spelling.
// Unknown spellings resolve to OpEq with ok=false.
func ParseOperator(raw string) (op Operator, ok bool) {
	op, ok = operatorAliases[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return OpEq, false
	}
	return op, true
}

// TakesList reports whether the operator expects a list value.
func (op Operator) TakesList() bool {
	switch op {
	case OpIn, OpNotIn, OpBetween:
		return true
	}
	return false
}

// IsListOperatorSpelling reports whether a raw wire spelling names a list operator.
func IsListOperatorSpelling(raw string) bool {
	op, ok := ParseOperator(raw)
	return ok && op.TakesList()
}

// Comparison is a leaf predicate: Field Op Value.
//
// Field is a dotted path resolved against the root resource type.
// RawOp keeps the client's spelling so degraded operators can be reported.
type Comparison struct {
	Field string
	Op    Operator
	RawOp string
	Value any
}

func (*Comparison) filterNode() {}

// BoolOp is the connective of a Boolean node.
type BoolOp string

const (
	And BoolOp = "and"
	Or  BoolOp = "or"
)

// Boolean combines child nodes with AND or OR.
// A Boolean with no children imposes no constraint.
type Boolean struct {
	Op       BoolOp
	Children []FilterNode
}

func (*Boolean) filterNode() {}

// Eq is a shorthand for an equality comparison.
func Eq(field string, value any) *Comparison {
	return &Comparison{Field: field, Op: OpEq, RawOp: string(OpEq), Value: value}
}

// Compare builds a comparison from a wire operator spelling.
func Compare(field, rawOp string, value any) *Comparison {
	op, _ := ParseOperator(rawOp)
	return &Comparison{Field: field, Op: op, RawOp: rawOp, Value: value}
}

// AllOf combines nodes with AND.
func AllOf(children ...FilterNode) *Boolean {
	return &Boolean{Op: And, Children: children}
}

// AnyOf combines nodes with OR.
func AnyOf(children ...FilterNode) *Boolean {
	return &Boolean{Op: Or, Children: children}
}
