package segment

import (
	"strings"
	"testing"
)

func TestCompileEmptyQuery(t *testing.T) {
	c := NewCompiler()

	pred, args := c.Compile(Query{})
	if pred != "" {
		t.Errorf("empty query should compile to empty predicate, got %q", pred)
	}
	if len(args) != 0 {
		t.Errorf("empty query should produce no args, got %v", args)
	}

	// All-empty groups behave the same.
	pred, args = c.Compile(Query{Groups: []Group{{}, {}}})
	if pred != "" || len(args) != 0 {
		t.Errorf("all-empty groups should compile to nothing, got %q / %v", pred, args)
	}
}

func TestCompileSingleCondition(t *testing.T) {
	c := NewCompiler()

	pred, args := c.Compile(Query{Groups: []Group{{
		Conditions: []Condition{{Field: "status", Operator: OpEquals, Value: "active"}},
	}}})

	if pred != "((status = $1))" {
		t.Errorf("predicate = %q", pred)
	}
	if len(args) != 1 || args[0] != "active" {
		t.Errorf("args = %v", args)
	}
}

func TestCompileDisallowedFieldDroppedSilently(t *testing.T) {
	c := NewCompiler()

	pred, args := c.Compile(Query{Groups: []Group{{
		Conditions: []Condition{
			{Field: "status", Operator: OpEquals, Value: "active"},
			{Field: "secret_column", Operator: OpEquals, Value: "x"},
		},
	}}})

	if strings.Contains(pred, "secret_column") {
		t.Errorf("disallowed field leaked into predicate: %q", pred)
	}
	for _, a := range args {
		if a == "x" {
			t.Errorf("disallowed condition's value leaked into args: %v", args)
		}
	}
	if pred != "((status = $1))" {
		t.Errorf("valid condition should survive alone, got %q", pred)
	}
	if len(args) != 1 || args[0] != "active" {
		t.Errorf("args = %v", args)
	}
}

func TestCompileUnknownOperatorDropped(t *testing.T) {
	c := NewCompiler()

	pred, args := c.Compile(Query{Groups: []Group{{
		Conditions: []Condition{
			{Field: "status", Operator: "regex_match", Value: ".*"},
			{Field: "city", Operator: OpEquals, Value: "Austin"},
		},
	}}})

	if pred != "((city = $1))" {
		t.Errorf("unknown operator should drop silently, got %q", pred)
	}
	if len(args) != 1 || args[0] != "Austin" {
		t.Errorf("args = %v", args)
	}
}

func TestCompileOperators(t *testing.T) {
	tests := []struct {
		name     string
		cond     Condition
		wantPred string
		wantArgs []interface{}
	}{
		{"not_equals", Condition{Field: "status", Operator: OpNotEquals, Value: "churned"},
			"((status != $1))", []interface{}{"churned"}},
		{"contains", Condition{Field: "company", Operator: OpContains, Value: "pizza"},
			"((company ILIKE $1))", []interface{}{"%pizza%"}},
		{"not_contains", Condition{Field: "company", Operator: OpNotContains, Value: "test"},
			"((company NOT ILIKE $1))", []interface{}{"%test%"}},
		{"greater_than", Condition{Field: "geographic_tier", Operator: OpGreaterThan, Value: "1"},
			"((geographic_tier > $1))", []interface{}{"1"}},
		{"less_than", Condition{Field: "geographic_tier", Operator: OpLessThan, Value: "3"},
			"((geographic_tier < $1))", []interface{}{"3"}},
		{"is_empty", Condition{Field: "company", Operator: OpIsEmpty},
			"(((company IS NULL OR company = '')))", nil},
		{"is_not_empty", Condition{Field: "company", Operator: OpIsNotEmpty},
			"(((company IS NOT NULL AND company != '')))", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCompiler()
			pred, args := c.Compile(Query{Groups: []Group{{Conditions: []Condition{tt.cond}}}})
			if pred != tt.wantPred {
				t.Errorf("predicate = %q, want %q", pred, tt.wantPred)
			}
			if len(args) != len(tt.wantArgs) {
				t.Fatalf("args = %v, want %v", args, tt.wantArgs)
			}
			for i := range args {
				if args[i] != tt.wantArgs[i] {
					t.Errorf("args[%d] = %v, want %v", i, args[i], tt.wantArgs[i])
				}
			}
		})
	}
}

func TestCompileInList(t *testing.T) {
	c := NewCompiler()

	pred, args := c.Compile(Query{Groups: []Group{{
		Conditions: []Condition{{Field: "state", Operator: OpInList, Values: []string{"TX", "OK"}}},
	}}})
	if pred != "((state IN ($1, $2)))" {
		t.Errorf("predicate = %q", pred)
	}
	if len(args) != 2 || args[0] != "TX" || args[1] != "OK" {
		t.Errorf("args = %v", args)
	}

	// Empty list produces no fragment at all.
	c = NewCompiler()
	pred, args = c.Compile(Query{Groups: []Group{{
		Conditions: []Condition{{Field: "state", Operator: OpInList}},
	}}})
	if pred != "" || len(args) != 0 {
		t.Errorf("empty in_list should drop, got %q / %v", pred, args)
	}
}

func TestCompileGroupAndTopLevelLogic(t *testing.T) {
	c := NewCompiler()

	q := Query{
		Logic: LogicOr,
		Groups: []Group{
			{Conditions: []Condition{
				{Field: "status", Operator: OpEquals, Value: "active"},
				{Field: "state", Operator: OpEquals, Value: "TX"},
			}},
			{Logic: LogicOr, Conditions: []Condition{
				{Field: "pos_system", Operator: OpEquals, Value: "toast"},
				{Field: "pos_system", Operator: OpEquals, Value: "square"},
			}},
		},
	}

	pred, args := c.Compile(q)
	want := "((status = $1 AND state = $2) OR (pos_system = $3 OR pos_system = $4))"
	if pred != want {
		t.Errorf("predicate = %q, want %q", pred, want)
	}
	wantArgs := []interface{}{"active", "TX", "toast", "square"}
	if len(args) != len(wantArgs) {
		t.Fatalf("args = %v", args)
	}
	for i := range args {
		if args[i] != wantArgs[i] {
			t.Errorf("args[%d] = %v, want %v (parameter order must match fragment order)", i, args[i], wantArgs[i])
		}
	}
}

func TestCompileFieldNormalization(t *testing.T) {
	c := NewCompiler()

	pred, _ := c.Compile(Query{Groups: []Group{{
		Conditions: []Condition{{Field: "  Status ", Operator: OpEquals, Value: "active"}},
	}}})
	if pred != "((status = $1))" {
		t.Errorf("field names should be trimmed and lowercased, got %q", pred)
	}
}

func TestCompilerReusable(t *testing.T) {
	c := NewCompiler()
	q := Query{Groups: []Group{{
		Conditions: []Condition{{Field: "status", Operator: OpEquals, Value: "active"}},
	}}}

	first, _ := c.Compile(q)
	second, args := c.Compile(q)
	if first != second {
		t.Errorf("compiler state must reset between calls: %q then %q", first, second)
	}
	if len(args) != 1 {
		t.Errorf("args accumulated across calls: %v", args)
	}
}
