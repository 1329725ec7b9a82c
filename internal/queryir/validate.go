package queryir

import "fmt"

// ValidationResult lists the parts of a filter tree that will be degraded
// during compilation.
type ValidationResult struct {
	// Clean is true when nothing is degraded.
	Clean bool

	// Warnings describes each degraded node.
	Warnings []string
}

// Validate walks a filter tree and reports degraded nodes:
//  1. Unknown operator spellings (compiled as equality)
//  2. between without a two-element list (compiled as equality)
//  3. Empty boolean groups (omitted)
//  4. Comparisons with an empty field (omitted)
//
// Path resolution is not checked here; it needs the model and happens in
// the compiler. Validate is a pure function with no side effects.
func Validate(node FilterNode) ValidationResult {
	v := &validator{warnings: []string{}}
	v.validateNode(node, "filter")
	return ValidationResult{
		Clean:    len(v.warnings) == 0,
		Warnings: v.warnings,
	}
}

type validator struct {
	warnings []string
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) validateNode(node FilterNode, at string) {
	switch n := node.(type) {
	case nil:
		return
	case *Comparison:
		v.validateComparison(n, at)
	case *Boolean:
		if len(n.Children) == 0 {
			v.addWarning("%s: empty %s group is ignored", at, n.Op)
			return
		}
		for i, child := range n.Children {
			v.validateNode(child, fmt.Sprintf("%s.%s[%d]", at, n.Op, i))
		}
	}
}

func (v *validator) validateComparison(c *Comparison, at string) {
	if c.Field == "" {
		v.addWarning("%s: comparison without a field is ignored", at)
		return
	}
	if c.RawOp != "" {
		if _, ok := ParseOperator(c.RawOp); !ok {
			v.addWarning("%s: unknown operator %q on %s treated as eq", at, c.RawOp, c.Field)
		}
	}
	if c.Op == OpBetween {
		if list, ok := c.Value.([]any); !ok || len(list) != 2 {
			v.addWarning("%s: between on %s needs exactly two values, treated as eq", at, c.Field)
		}
	}
}
