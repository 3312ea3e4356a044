package trigger

import (
	"strings"
	"testing"
)

// fakeResolver backs leaf resolution with plain maps.
type fakeResolver struct {
	states map[string]string
	events map[string]bool // "path:event" → set
	limits map[string][2]int
}

func (f *fakeResolver) StateOf(path string) (string, bool) {
	s, ok := f.states[path]
	return s, ok
}

func (f *fakeResolver) EventSet(path, event string) (bool, bool) {
	set, ok := f.events[path+":"+event]
	return set, ok
}

func (f *fakeResolver) LimitConsumed(name string) (int, int, bool) {
	l, ok := f.limits[name]
	return l[0], l[1], ok
}

// TestParsePrecedence verifies NOT binds tighter than AND, which binds
// tighter than OR.
func TestParsePrecedence(t *testing.T) {
	e, err := Parse("a or b and not c")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	or, ok := e.(*Or)
	if !ok {
		t.Fatalf("top level = %T, want *Or", e)
	}
	if len(or.Xs) != 2 {
		t.Fatalf("or arity = %d", len(or.Xs))
	}
	and, ok := or.Xs[1].(*And)
	if !ok {
		t.Fatalf("right of or = %T, want *And", or.Xs[1])
	}
	if _, ok := and.Xs[1].(*Not); !ok {
		t.Fatalf("right of and = %T, want *Not", and.Xs[1])
	}
}

// TestParseParentheses verifies explicit grouping overrides precedence.
func TestParseParentheses(t *testing.T) {
	e, err := Parse("(a or b) and c")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	and, ok := e.(*And)
	if !ok {
		t.Fatalf("top level = %T, want *And", e)
	}
	if _, ok := and.Xs[0].(*Or); !ok {
		t.Fatalf("left of and = %T, want *Or", and.Xs[0])
	}
}

// TestParseLeafForms verifies the three leaf shapes and the bare-path
// default of "== complete".
func TestParseLeafForms(t *testing.T) {
	e, err := Parse("/s/f/task1")
	if err != nil {
		t.Fatalf("bare path: %v", err)
	}
	leaf := e.(*Leaf)
	if leaf.Kind != LeafState || leaf.State != "complete" || leaf.Op != OpEq {
		t.Errorf("bare path leaf = %+v, want == complete", leaf)
	}

	e, err = Parse("../t == aborted")
	if err != nil {
		t.Fatalf("state comparison: %v", err)
	}
	leaf = e.(*Leaf)
	if leaf.State != "aborted" || leaf.Ref != "../t" {
		t.Errorf("state leaf = %+v", leaf)
	}

	e, err = Parse("/s/prep:ready")
	if err != nil {
		t.Fatalf("event reference: %v", err)
	}
	leaf = e.(*Leaf)
	if leaf.Kind != LeafEvent || leaf.Event != "ready" {
		t.Errorf("event leaf = %+v", leaf)
	}

	e, err = Parse("limit.cpu <= 4")
	if err != nil {
		t.Fatalf("limit comparison: %v", err)
	}
	leaf = e.(*Leaf)
	if leaf.Kind != LeafLimit || leaf.Ref != "cpu" || leaf.Op != OpLe || leaf.Value != 4 {
		t.Errorf("limit leaf = %+v", leaf)
	}
}

// TestParseErrors verifies malformed expressions yield positioned parse
// errors instead of panics.
func TestParseErrors(t *testing.T) {
	cases := []string{
		"",
		"a and",
		"(a or b",
		"a = b",
		"limit. < 3",
		"limit.cpu 4",
		"limit.cpu < x",
		"a < queued", // relational operators are limit-only
		"a ## b",
	}
	for _, src := range cases {
		if _, err := Parse(src); err == nil {
			t.Errorf("Parse(%q) should fail", src)
		}
	}

	_, err := Parse("a and (b or")
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Pos == 0 {
		t.Errorf("error position not recorded: %v", err)
	}
}

// TestEvaluateScenario verifies the mixed state/limit scenario: task1 is
// active (wanted complete) and limit cpu is 2/8 with threshold 4 — the
// conjunction is unmet, the first leaf unmet, the second satisfied.
func TestEvaluateScenario(t *testing.T) {
	src := "task1 == complete and limit.cpu < 4"
	e, perr := Parse(src)
	if perr != nil {
		t.Fatalf("Parse: %v", perr)
	}
	r := &fakeResolver{
		states: map[string]string{"s/f/task1": "active"},
		limits: map[string][2]int{"cpu": {2, 8}},
	}
	res := Evaluate(e, src, r, "s/f/task2")

	if res.Status != Unmet {
		t.Errorf("overall = %s, want unmet", res.Status)
	}
	if len(res.Children) != 2 {
		t.Fatalf("children = %d, want 2", len(res.Children))
	}
	if res.Children[0].Status != Unmet {
		t.Errorf("state leaf = %s, want unmet", res.Children[0].Status)
	}
	if res.Children[1].Status != Satisfied {
		t.Errorf("limit leaf = %s, want satisfied", res.Children[1].Status)
	}
	if res.Children[0].Target != "s/f/task1" {
		t.Errorf("relative path resolved to %q", res.Children[0].Target)
	}
	if got := src[res.Children[1].Span.Start:res.Children[1].Span.End]; got != "limit.cpu < 4" {
		t.Errorf("limit leaf span covers %q", got)
	}
}

// TestEvaluateMonotonic verifies flipping the referenced node's cached
// state flips the leaf without re-parsing the expression.
func TestEvaluateMonotonic(t *testing.T) {
	src := "/s/dep == complete"
	e, perr := Parse(src)
	if perr != nil {
		t.Fatalf("Parse: %v", perr)
	}
	r := &fakeResolver{states: map[string]string{"s/dep": "complete"}}

	if res := Evaluate(e, src, r, "s/t"); res.Status != Satisfied {
		t.Errorf("complete dependency = %s, want satisfied", res.Status)
	}
	r.states["s/dep"] = "queued"
	if res := Evaluate(e, src, r, "s/t"); res.Status != Unmet {
		t.Errorf("queued dependency = %s, want unmet", res.Status)
	}
}

// TestEvaluateUnknown verifies missing nodes and limits surface as
// unknown, flagged distinctly from definitively-false leaves, and that
// unknown propagates through the connectives without masking unmet.
func TestEvaluateUnknown(t *testing.T) {
	r := &fakeResolver{states: map[string]string{"s/here": "aborted"}}

	src := "/s/missing == complete"
	e, _ := Parse(src)
	if res := Evaluate(e, src, r, "s/t"); res.Status != Unknown {
		t.Errorf("missing node = %s, want unknown", res.Status)
	}

	src = "limit.gone < 1"
	e, _ = Parse(src)
	if res := Evaluate(e, src, r, "s/t"); res.Status != Unknown {
		t.Errorf("missing limit = %s, want unknown (never satisfied)", res.Status)
	}

	// unknown AND unmet → unmet (the definite blocker wins)
	src = "/s/missing and /s/here"
	e, _ = Parse(src)
	res := Evaluate(e, src, r, "s/t")
	if res.Status != Unmet {
		t.Errorf("unknown and unmet = %s, want unmet", res.Status)
	}

	// unknown OR unmet → unknown (might be satisfied once fetched)
	src = "/s/missing or /s/here"
	e, _ = Parse(src)
	if res := Evaluate(e, src, r, "s/t"); res.Status != Unknown {
		t.Errorf("unknown or unmet = %s, want unknown", res.Status)
	}

	// NOT leaves unknown alone
	src = "not /s/missing"
	e, _ = Parse(src)
	if res := Evaluate(e, src, r, "s/t"); res.Status != Unknown {
		t.Errorf("not unknown = %s, want unknown", res.Status)
	}
}

// TestEvaluateEventAndNot verifies event references and negation.
func TestEvaluateEventAndNot(t *testing.T) {
	r := &fakeResolver{
		states: map[string]string{"s/prep": "active"},
		events: map[string]bool{"s/prep:ready": true, "s/prep:late": false},
	}

	src := "/s/prep:ready"
	e, _ := Parse(src)
	if res := Evaluate(e, src, r, "s/t"); res.Status != Satisfied {
		t.Errorf("set event = %s, want satisfied", res.Status)
	}

	src = "not /s/prep:late"
	e, _ = Parse(src)
	if res := Evaluate(e, src, r, "s/t"); res.Status != Satisfied {
		t.Errorf("not clear-event = %s, want satisfied", res.Status)
	}
}

// TestResultTextSlices verifies each result carries the source slice of
// its subexpression so the inspector can quote it verbatim.
func TestResultTextSlices(t *testing.T) {
	src := "(a or b) and limit.cpu < 2"
	e, perr := Parse(src)
	if perr != nil {
		t.Fatalf("Parse: %v", perr)
	}
	r := &fakeResolver{limits: map[string][2]int{"cpu": {0, 4}}}
	res := Evaluate(e, src, r, "s/t")
	if !strings.Contains(res.Children[1].Text, "limit.cpu") {
		t.Errorf("limit child text = %q", res.Children[1].Text)
	}
}
