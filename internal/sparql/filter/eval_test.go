package filter

import "testing"

type fakeEnv struct {
	vars map[string]Value
}

func (f *fakeEnv) Lookup(name string) (Value, bool) {
	v, ok := f.vars[name]
	return v, ok
}
func (f *fakeEnv) Exists(string) (bool, error)            { return false, nil }
func (f *fakeEnv) TextMatch(text, query string) (bool, error) { return false, nil }

func TestEvalArithmeticAndComparison(t *testing.T) {
	env := &fakeEnv{vars: map[string]Value{"age": numValue(30, true)}}
	ev := NewEvaluator(env)

	ok, err := ev.Eval("(?age + 1) > 30")
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if !ok {
		t.Fatalf("expected true")
	}
}

func TestEvalLogicalOperators(t *testing.T) {
	env := &fakeEnv{vars: map[string]Value{}}
	ev := NewEvaluator(env)

	ok, err := ev.Eval("true && (1 = 1)")
	if err != nil || !ok {
		t.Fatalf("expected true, got %v, err %v", ok, err)
	}

	ok, err = ev.Eval("false || !false")
	if err != nil || !ok {
		t.Fatalf("expected true, got %v, err %v", ok, err)
	}
}

func TestEvalStringFunctions(t *testing.T) {
	env := &fakeEnv{vars: map[string]Value{"name": stringValue("Alice")}}
	ev := NewEvaluator(env)

	ok, err := ev.Eval(`CONTAINS(?name, "lic")`)
	if err != nil || !ok {
		t.Fatalf("expected CONTAINS to match, got %v err %v", ok, err)
	}

	v, err := ev.EvalValue(`UCASE(?name)`)
	if err != nil {
		t.Fatalf("EvalValue: %v", err)
	}
	if v.Lexical != "ALICE" {
		t.Fatalf("expected ALICE, got %q", v.Lexical)
	}
}

func TestEvalUnboundVariableIsNotAnError(t *testing.T) {
	env := &fakeEnv{vars: map[string]Value{}}
	ev := NewEvaluator(env)

	ok, err := ev.Eval(`BOUND(?missing)`)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if ok {
		t.Fatalf("expected BOUND(?missing) to be false")
	}
}

func TestEvalIn(t *testing.T) {
	env := &fakeEnv{vars: map[string]Value{"x": numValue(2, true)}}
	ev := NewEvaluator(env)

	ok, err := ev.Eval(`?x IN (1, 2, 3)`)
	if err != nil || !ok {
		t.Fatalf("expected IN match, got %v err %v", ok, err)
	}

	ok, err = ev.Eval(`?x NOT IN (1, 3)`)
	if err != nil || !ok {
		t.Fatalf("expected NOT IN match, got %v err %v", ok, err)
	}
}

func TestEvalRegex(t *testing.T) {
	env := &fakeEnv{vars: map[string]Value{"s": stringValue("Hello World")}}
	ev := NewEvaluator(env)

	ok, err := ev.Eval(`REGEX(?s, "^hello", "i")`)
	if err != nil || !ok {
		t.Fatalf("expected regex match, got %v err %v", ok, err)
	}
}
