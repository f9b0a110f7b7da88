package filter

// Vars returns the distinct variable names an expression references, in
// first-appearance order. Used by the scan planner to decide how early a
// filter can run.
func Vars(e Expr) []string {
	var out []string
	seen := map[string]bool{}
	walkExpr(e, func(n Expr) {
		if v, ok := n.(*VarExpr); ok && !seen[v.Name] {
			seen[v.Name] = true
			out = append(out, v.Name)
		}
	})
	return out
}

// ContainsExists reports whether the expression contains an EXISTS or NOT
// EXISTS sub-pattern anywhere. Such filters depend on the whole solution,
// not just the variables their text mentions, so they must run after the
// full join.
func ContainsExists(e Expr) bool {
	found := false
	walkExpr(e, func(n Expr) {
		if _, ok := n.(*ExistsExpr); ok {
			found = true
		}
	})
	return found
}

func walkExpr(e Expr, fn func(Expr)) {
	if e == nil {
		return
	}
	fn(e)
	switch n := e.(type) {
	case *OrExpr:
		walkExpr(n.Left, fn)
		walkExpr(n.Right, fn)
	case *AndExpr:
		walkExpr(n.Left, fn)
		walkExpr(n.Right, fn)
	case *NotExpr:
		walkExpr(n.Operand, fn)
	case *NegExpr:
		walkExpr(n.Operand, fn)
	case *PlusExpr:
		walkExpr(n.Operand, fn)
	case *CompareExpr:
		walkExpr(n.Left, fn)
		walkExpr(n.Right, fn)
	case *ArithExpr:
		walkExpr(n.Left, fn)
		walkExpr(n.Right, fn)
	case *InExpr:
		walkExpr(n.Needle, fn)
		for _, s := range n.Set {
			walkExpr(s, fn)
		}
	case *CallExpr:
		for _, a := range n.Args {
			walkExpr(a, fn)
		}
	}
}
