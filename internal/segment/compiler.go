package segment

import (
	"fmt"
	"strings"
)

// Compiler translates a segment Query into a parameterized SQL predicate.
// User input only ever reaches the args slice; the predicate text is built
// exclusively from allow-listed column names and fixed operator fragments.
//
// Invalid fields and unrecognized operators are dropped silently: a query
// with one bad condition still runs with the remaining valid ones. This
// best-effort policy is deliberate, not an oversight.
type Compiler struct {
	args       []interface{}
	argCounter int
}

// NewCompiler creates a Compiler. A Compiler is single-use per Compile call;
// Compile resets its state.
func NewCompiler() *Compiler {
	return &Compiler{argCounter: 1}
}

// nextArg records a bind value and returns its placeholder. Placeholder
// numbering follows emission order so positional binding lines up.
func (c *Compiler) nextArg(value interface{}) string {
	c.args = append(c.args, value)
	placeholder := fmt.Sprintf("$%d", c.argCounter)
	c.argCounter++
	return placeholder
}

// Compile returns the WHERE-clause fragment for q plus its bind values.
// An empty query (no groups, or all groups empty) compiles to an empty
// fragment, which matches everything; callers scope that with their own
// LIMIT.
func (c *Compiler) Compile(q Query) (string, []interface{}) {
	c.args = nil
	c.argCounter = 1

	var groupParts []string
	for _, g := range q.Groups {
		if frag := c.compileGroup(g); frag != "" {
			groupParts = append(groupParts, "("+frag+")")
		}
	}
	if len(groupParts) == 0 {
		return "", nil
	}
	return "(" + strings.Join(groupParts, q.Logic.joiner()) + ")", c.args
}

func (c *Compiler) compileGroup(g Group) string {
	var parts []string
	for _, cond := range g.Conditions {
		if frag := c.compileCondition(cond); frag != "" {
			parts = append(parts, frag)
		}
	}
	return strings.Join(parts, g.Logic.joiner())
}

// compileCondition returns the SQL fragment for one condition, or "" when
// the condition must be dropped (bad field, unknown operator, empty in_list).
func (c *Compiler) compileCondition(cond Condition) string {
	field, ok := canonicalField(cond.Field)
	if !ok {
		return ""
	}

	switch cond.Operator {
	case OpEquals:
		return fmt.Sprintf("%s = %s", field, c.nextArg(cond.Value))
	case OpNotEquals:
		return fmt.Sprintf("%s != %s", field, c.nextArg(cond.Value))
	case OpContains:
		return fmt.Sprintf("%s ILIKE %s", field, c.nextArg("%"+cond.Value+"%"))
	case OpNotContains:
		return fmt.Sprintf("%s NOT ILIKE %s", field, c.nextArg("%"+cond.Value+"%"))
	case OpGreaterThan:
		return fmt.Sprintf("%s > %s", field, c.nextArg(cond.Value))
	case OpLessThan:
		return fmt.Sprintf("%s < %s", field, c.nextArg(cond.Value))
	case OpInList:
		if len(cond.Values) == 0 {
			return ""
		}
		placeholders := make([]string, len(cond.Values))
		for i, v := range cond.Values {
			placeholders[i] = c.nextArg(v)
		}
		return fmt.Sprintf("%s IN (%s)", field, strings.Join(placeholders, ", "))
	case OpIsEmpty:
		return fmt.Sprintf("(%s IS NULL OR %s = '')", field, field)
	case OpIsNotEmpty:
		return fmt.Sprintf("(%s IS NOT NULL AND %s != '')", field, field)
	default:
		return ""
	}
}
