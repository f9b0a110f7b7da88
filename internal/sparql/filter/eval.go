package filter

import (
	"strings"
)

// Environment resolves the variables and EXISTS sub-patterns a filter
// expression references. internal/sparql/scan supplies the concrete
// implementation backed by a pattern.BindingTable and a live scan cursor.
type Environment interface {
	// Lookup resolves a SPARQL variable (without leading '?'/'$') against
	// the current binding row.
	Lookup(name string) (Value, bool)
	// Exists parses groupSource as a graph pattern and reports whether it
	// has at least one solution under the current binding row.
	Exists(groupSource string) (bool, error)
	// TextMatch implements the text:match / match extension function:
	// the trigram index narrows varName's bound literal to a candidate
	// set, then a substring check confirms the match.
	TextMatch(varName, query string) (bool, error)
}

// Evaluator evaluates a parsed Expr against an Environment.
type Evaluator struct{ Env Environment }

// NewEvaluator returns an Evaluator bound to env.
func NewEvaluator(env Environment) *Evaluator { return &Evaluator{Env: env} }

// Eval parses src and evaluates it, returning its effective boolean value
// (the FILTER semantics: a filter passes iff EBV(expr) is true).
func (ev *Evaluator) Eval(src string) (bool, error) {
	e, err := Parse(src)
	if err != nil {
		return false, err
	}
	v := ev.eval(e)
	return v.EffectiveBoolean()
}

// EvalValue parses src and returns the computed Value (used by BIND, which
// needs the actual term, not just a boolean).
func (ev *Evaluator) EvalValue(src string) (Value, error) {
	e, err := Parse(src)
	if err != nil {
		return Value{}, err
	}
	return ev.eval(e), nil
}

func (ev *Evaluator) eval(e Expr) Value {
	switch n := e.(type) {
	case *OrExpr:
		l, lerr := ev.eval(n.Left).EffectiveBoolean()
		if lerr == nil && l {
			return boolValue(true)
		}
		r, rerr := ev.eval(n.Right).EffectiveBoolean()
		if rerr == nil && r {
			return boolValue(true)
		}
		if lerr != nil && rerr != nil {
			return errValue("filter: OR of two errors: %v / %v", lerr, rerr)
		}
		return boolValue(false)
	case *AndExpr:
		l, lerr := ev.eval(n.Left).EffectiveBoolean()
		if lerr == nil && !l {
			return boolValue(false)
		}
		r, rerr := ev.eval(n.Right).EffectiveBoolean()
		if rerr == nil && !r {
			return boolValue(false)
		}
		if lerr != nil || rerr != nil {
			return errValue("filter: AND operand error")
		}
		return boolValue(true)
	case *NotExpr:
		b, err := ev.eval(n.Operand).EffectiveBoolean()
		if err != nil {
			return errValue("%w", err)
		}
		return boolValue(!b)
	case *NegExpr:
		v := ev.eval(n.Operand)
		f, ok := asFloat(v)
		if !ok {
			return errValue("filter: '-' requires a numeric operand")
		}
		return numValue(-f, v.IsInt)
	case *PlusExpr:
		return ev.eval(n.Operand)
	case *CompareExpr:
		return ev.evalCompare(n)
	case *ArithExpr:
		return ev.evalArith(n)
	case *InExpr:
		return ev.evalIn(n)
	case *VarExpr:
		v, ok := ev.Env.Lookup(n.Name)
		if !ok {
			return Value{Kind: KindUnbound}
		}
		return v
	case *LiteralExpr:
		return n.Value
	case *CallExpr:
		return ev.evalCall(n)
	case *ExistsExpr:
		ok, err := ev.Env.Exists(n.GroupSource)
		if err != nil {
			return errValue("%w", err)
		}
		if n.Negate {
			ok = !ok
		}
		return boolValue(ok)
	default:
		return errValue("filter: unhandled expression node %T", e)
	}
}

func (ev *Evaluator) evalCompare(n *CompareExpr) Value {
	l, r := ev.eval(n.Left), ev.eval(n.Right)
	if l.Err != nil || r.Err != nil {
		return errValue("filter: comparison operand error")
	}
	switch n.Op {
	case "=":
		return boolValue(valuesEqual(l, r))
	case "!=":
		return boolValue(!valuesEqual(l, r))
	}
	lf, lok := asFloat(l)
	rf, rok := asFloat(r)
	if lok && rok {
		switch n.Op {
		case "<":
			return boolValue(lf < rf)
		case "<=":
			return boolValue(lf <= rf)
		case ">":
			return boolValue(lf > rf)
		case ">=":
			return boolValue(lf >= rf)
		}
	}
	switch n.Op {
	case "<":
		return boolValue(l.Lexical < r.Lexical)
	case "<=":
		return boolValue(l.Lexical <= r.Lexical)
	case ">":
		return boolValue(l.Lexical > r.Lexical)
	case ">=":
		return boolValue(l.Lexical >= r.Lexical)
	}
	return errValue("filter: unsupported comparison operator %q", n.Op)
}

func valuesEqual(l, r Value) bool {
	if l.isNumeric() || r.isNumeric() {
		lf, lok := asFloat(l)
		rf, rok := asFloat(r)
		if lok && rok {
			return lf == rf
		}
	}
	return l.Lexical == r.Lexical && l.Lang == r.Lang && l.Datatype == r.Datatype
}

func (ev *Evaluator) evalArith(n *ArithExpr) Value {
	l, r := ev.eval(n.Left), ev.eval(n.Right)
	lf, lok := asFloat(l)
	rf, rok := asFloat(r)
	if !lok || !rok {
		return errValue("filter: arithmetic requires numeric operands")
	}
	isInt := l.IsInt && r.IsInt && n.Op != '/'
	switch n.Op {
	case '+':
		return numValue(lf+rf, isInt)
	case '-':
		return numValue(lf-rf, isInt)
	case '*':
		return numValue(lf*rf, isInt)
	case '/':
		if rf == 0 {
			return errValue("filter: division by zero")
		}
		return numValue(lf/rf, false)
	}
	return errValue("filter: unknown arithmetic operator")
}

func (ev *Evaluator) evalIn(n *InExpr) Value {
	needle := ev.eval(n.Needle)
	found := false
	sawErr := false
	for _, e := range n.Set {
		v := ev.eval(e)
		if v.Err != nil {
			sawErr = true
			continue
		}
		if valuesEqual(needle, v) {
			found = true
			break
		}
	}
	if !found && sawErr {
		return errValue("filter: IN comparison error against at least one member")
	}
	if n.Negate {
		found = !found
	}
	return boolValue(found)
}

func (ev *Evaluator) evalCall(n *CallExpr) Value {
	name := strings.ToUpper(n.Name)
	arg := func(i int) Value {
		if i >= len(n.Args) {
			return Value{Kind: KindUnbound}
		}
		return ev.eval(n.Args[i])
	}
	switch name {
	case "BOUND":
		if len(n.Args) == 1 {
			if v, ok := n.Args[0].(*VarExpr); ok {
				_, bound := ev.Env.Lookup(v.Name)
				return boolValue(bound)
			}
		}
		return errValue("filter: BOUND() requires a single variable argument")
	case "STR":
		return stringValue(arg(0).Lexical)
	case "LANG":
		return stringValue(arg(0).Lang)
	case "DATATYPE":
		return stringValue(arg(0).Datatype)
	case "ISIRI", "ISURI":
		return boolValue(arg(0).Kind == KindIRI)
	case "ISBLANK":
		return boolValue(arg(0).Kind == KindBlank)
	case "ISLITERAL":
		k := arg(0).Kind
		return boolValue(k == KindLiteral || k == KindString || k == KindNumeric || k == KindBoolean)
	case "ISNUMERIC":
		return boolValue(arg(0).isNumeric())
	case "STRLEN":
		return numValue(float64(len(arg(0).Lexical)), true)
	case "UCASE":
		return stringValue(strings.ToUpper(arg(0).Lexical))
	case "LCASE":
		return stringValue(strings.ToLower(arg(0).Lexical))
	case "CONTAINS":
		return boolValue(strings.Contains(arg(0).Lexical, arg(1).Lexical))
	case "STRSTARTS":
		return boolValue(strings.HasPrefix(arg(0).Lexical, arg(1).Lexical))
	case "STRENDS":
		return boolValue(strings.HasSuffix(arg(0).Lexical, arg(1).Lexical))
	case "CONCAT":
		var b strings.Builder
		for i := range n.Args {
			b.WriteString(arg(i).Lexical)
		}
		return stringValue(b.String())
	case "SUBSTR":
		s := arg(0).Lexical
		start := int(arg(1).Num) - 1
		if start < 0 {
			start = 0
		}
		if start > len(s) {
			start = len(s)
		}
		end := len(s)
		if len(n.Args) > 2 {
			end = start + int(arg(2).Num)
			if end > len(s) {
				end = len(s)
			}
		}
		if end < start {
			end = start
		}
		return stringValue(s[start:end])
	case "REPLACE":
		return stringValue(strings.ReplaceAll(arg(0).Lexical, arg(1).Lexical, arg(2).Lexical))
	case "ABS":
		f, _ := asFloat(arg(0))
		if f < 0 {
			f = -f
		}
		return numValue(f, arg(0).IsInt)
	case "CEIL":
		f, _ := asFloat(arg(0))
		return numValue(float64(int64(f)+boolToInt(f > float64(int64(f)))), true)
	case "FLOOR":
		f, _ := asFloat(arg(0))
		i := int64(f)
		if f < 0 && float64(i) != f {
			i--
		}
		return numValue(float64(i), true)
	case "ROUND":
		f, _ := asFloat(arg(0))
		return numValue(float64(int64(f + 0.5)), true)
	case "SAMETERM":
		l, r := arg(0), arg(1)
		return boolValue(l.Kind == r.Kind && l.Lexical == r.Lexical && l.Lang == r.Lang && l.Datatype == r.Datatype)
	case "LANGMATCHES":
		lang, rng := strings.ToLower(arg(0).Lexical), strings.ToLower(arg(1).Lexical)
		if rng == "*" {
			return boolValue(lang != "")
		}
		return boolValue(lang == rng || strings.HasPrefix(lang, rng+"-"))
	case "REGEX":
		// Patterns compile through this package's shared cache (regex.go),
		// so a FILTER re-evaluated per row compiles its pattern once.
		return boolValue(regexMatch(arg(0).Lexical, arg(1).Lexical, optionalArg(n, 2, arg)))
	case "TEXT:MATCH", "MATCH":
		if len(n.Args) != 2 {
			return errValue("filter: %s requires (variable, string literal)", n.Name)
		}
		v, isVar := n.Args[0].(*VarExpr)
		if !isVar {
			return errValue("filter: %s requires a variable first argument", n.Name)
		}
		ok, err := ev.Env.TextMatch(v.Name, arg(1).Lexical)
		if err != nil {
			return errValue("%w", err)
		}
		return boolValue(ok)
	case "COALESCE":
		for i := range n.Args {
			v := arg(i)
			if v.Err == nil && v.Kind != KindUnbound {
				return v
			}
		}
		return Value{Kind: KindUnbound}
	case "IF":
		b, err := arg(0).EffectiveBoolean()
		if err != nil {
			return errValue("%w", err)
		}
		if b {
			return arg(1)
		}
		return arg(2)
	default:
		return errValue("filter: unknown function %q", n.Name)
	}
}

func optionalArg(n *CallExpr, i int, arg func(int) Value) string {
	if i >= len(n.Args) {
		return ""
	}
	return arg(i).Lexical
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func regexMatch(text, pat, flags string) bool {
	re, err := compileRegex(pat, flags)
	if err != nil {
		return false
	}
	return re.MatchString(text)
}
