package filter

import (
	"fmt"
	"strconv"
	"strings"
)

type exprParser struct {
	s   string
	pos int
	n   int
}

// Parse parses one FILTER/HAVING expression's verbatim source, stripping a
// single pair of enclosing parens if the whole expression is wrapped
// (the common "FILTER(...)" case; bare "FILTER EXISTS {...}" is not).
func Parse(src string) (Expr, error) {
	p := &exprParser{s: src, n: len(src)}
	p.skipWS()
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipWS()
	if p.pos != p.n {
		return nil, fmt.Errorf("filter: unexpected trailing input at %d: %q", p.pos, p.s[p.pos:])
	}
	return e, nil
}

func (p *exprParser) peek() byte {
	if p.pos >= p.n {
		return 0
	}
	return p.s[p.pos]
}

func (p *exprParser) skipWS() {
	for p.pos < p.n && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t' || p.s[p.pos] == '\n' || p.s[p.pos] == '\r') {
		p.pos++
	}
}

func (p *exprParser) consumeIf(tok string) bool {
	p.skipWS()
	if strings.HasPrefix(p.s[p.pos:], tok) {
		// avoid e.g. "=" matching inside "<="; caller picks unambiguous tokens
		p.pos += len(tok)
		return true
	}
	return false
}

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c == ':'
}
func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9') || c == '-' || c == '.'
}

func (p *exprParser) matchKeyword(kw string) bool {
	p.skipWS()
	rest := p.s[p.pos:]
	if len(rest) < len(kw) || !strings.EqualFold(rest[:len(kw)], kw) {
		return false
	}
	if len(rest) > len(kw) && isIdentChar(rest[len(kw)]) {
		return false
	}
	p.pos += len(kw)
	return true
}

func (p *exprParser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWS()
		if p.consumeIf("||") {
			right, err := p.parseAnd()
			if err != nil {
				return nil, err
			}
			left = &OrExpr{Left: left, Right: right}
			continue
		}
		return left, nil
	}
}

func (p *exprParser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if left, err = p.parseRelationalTail(left); err != nil {
		return nil, err
	}
	for {
		p.skipWS()
		if p.consumeIf("&&") {
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			if right, err = p.parseRelationalTail(right); err != nil {
				return nil, err
			}
			left = &AndExpr{Left: left, Right: right}
			continue
		}
		return left, nil
	}
}

func (p *exprParser) parseRelationalTail(left Expr) (Expr, error) {
	p.skipWS()
	ops := []string{"!=", "<=", ">=", "=", "<", ">"}
	for _, op := range ops {
		if strings.HasPrefix(p.s[p.pos:], op) {
			p.pos += len(op)
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			return &CompareExpr{Op: op, Left: left, Right: right}, nil
		}
	}
	if p.matchKeyword("IN") {
		set, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		return &InExpr{Needle: left, Set: set}, nil
	}
	save := p.pos
	if p.matchKeyword("NOT") {
		if p.matchKeyword("IN") {
			set, err := p.parseExprList()
			if err != nil {
				return nil, err
			}
			return &InExpr{Needle: left, Set: set, Negate: true}, nil
		}
		p.pos = save
	}
	return left, nil
}

func (p *exprParser) parseExprList() ([]Expr, error) {
	p.skipWS()
	if p.peek() != '(' {
		return nil, fmt.Errorf("filter: expected '(' to start expression list")
	}
	p.pos++
	var out []Expr
	for {
		p.skipWS()
		if p.peek() == ')' {
			p.pos++
			break
		}
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		p.skipWS()
		if p.peek() == ',' {
			p.pos++
			continue
		}
	}
	return out, nil
}

func (p *exprParser) parseUnary() (Expr, error) {
	p.skipWS()
	if p.matchKeyword("NOT") {
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Operand: e}, nil
	}
	if p.peek() == '!' {
		p.pos++
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Operand: e}, nil
	}
	if p.peek() == '-' {
		p.pos++
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &NegExpr{Operand: e}, nil
	}
	if p.peek() == '+' {
		p.pos++
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &PlusExpr{Operand: e}, nil
	}
	return p.parseAdditive()
}

func (p *exprParser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWS()
		if p.peek() == '+' || p.peek() == '-' {
			op := p.peek()
			p.pos++
			right, err := p.parseMultiplicative()
			if err != nil {
				return nil, err
			}
			left = &ArithExpr{Op: op, Left: left, Right: right}
			continue
		}
		return left, nil
	}
}

func (p *exprParser) parseMultiplicative() (Expr, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWS()
		if p.peek() == '*' || p.peek() == '/' {
			op := p.peek()
			p.pos++
			right, err := p.parsePrimary()
			if err != nil {
				return nil, err
			}
			left = &ArithExpr{Op: op, Left: left, Right: right}
			continue
		}
		return left, nil
	}
}

func (p *exprParser) parsePrimary() (Expr, error) {
	p.skipWS()
	switch {
	case p.peek() == '(':
		p.pos++
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		p.skipWS()
		if p.peek() != ')' {
			return nil, fmt.Errorf("filter: expected ')' at %d", p.pos)
		}
		p.pos++
		return e, nil
	case p.peek() == '?' || p.peek() == '$':
		p.pos++
		start := p.pos
		for p.pos < p.n && isIdentChar(p.s[p.pos]) {
			p.pos++
		}
		return &VarExpr{Name: p.s[start:p.pos]}, nil
	case p.peek() == '"' || p.peek() == '\'':
		return p.parseStringLiteral()
	case p.peek() >= '0' && p.peek() <= '9':
		return p.parseNumericLiteral()
	case p.matchKeyword("true"):
		return &LiteralExpr{Value: boolValue(true)}, nil
	case p.matchKeyword("false"):
		return &LiteralExpr{Value: boolValue(false)}, nil
	case p.matchKeyword("EXISTS"):
		g, err := p.parseBalancedGroup()
		if err != nil {
			return nil, err
		}
		return &ExistsExpr{GroupSource: g}, nil
	case p.matchKeyword("NOT"):
		if !p.matchKeyword("EXISTS") {
			return nil, fmt.Errorf("filter: expected EXISTS after NOT")
		}
		g, err := p.parseBalancedGroup()
		if err != nil {
			return nil, err
		}
		return &ExistsExpr{GroupSource: g, Negate: true}, nil
	default:
		return p.parseCallOrIRI()
	}
}

func (p *exprParser) parseBalancedGroup() (string, error) {
	p.skipWS()
	if p.peek() != '{' {
		return "", fmt.Errorf("filter: expected '{' after EXISTS")
	}
	start := p.pos
	depth := 0
	for p.pos < p.n {
		switch p.s[p.pos] {
		case '{':
			depth++
		case '}':
			depth--
			p.pos++
			if depth == 0 {
				return p.s[start:p.pos], nil
			}
			continue
		}
		p.pos++
	}
	return "", fmt.Errorf("filter: unterminated EXISTS group")
}

func (p *exprParser) parseStringLiteral() (Expr, error) {
	quote := p.peek()
	p.pos++
	start := p.pos
	for p.pos < p.n && p.s[p.pos] != quote {
		if p.s[p.pos] == '\\' {
			p.pos++
		}
		p.pos++
	}
	if p.pos >= p.n {
		return nil, fmt.Errorf("filter: unterminated string literal")
	}
	lit := p.s[start:p.pos]
	p.pos++
	var lang, dt string
	if p.peek() == '@' {
		p.pos++
		langStart := p.pos
		for p.pos < p.n && isIdentChar(p.s[p.pos]) {
			p.pos++
		}
		lang = p.s[langStart:p.pos]
	} else if p.peek() == '^' && p.pos+1 < p.n && p.s[p.pos+1] == '^' {
		p.pos += 2
		dtStart := p.pos
		for p.pos < p.n && p.s[p.pos] != ' ' && p.s[p.pos] != ')' && p.s[p.pos] != ',' {
			p.pos++
		}
		dt = p.s[dtStart:p.pos]
	}
	return &LiteralExpr{Value: Value{Kind: KindLiteral, Lexical: lit, Lang: lang, Datatype: dt}}, nil
}

func (p *exprParser) parseNumericLiteral() (Expr, error) {
	start := p.pos
	for p.pos < p.n && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
		p.pos++
	}
	isInt := true
	if p.peek() == '.' {
		isInt = false
		p.pos++
		for p.pos < p.n && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
			p.pos++
		}
	}
	if p.peek() == 'e' || p.peek() == 'E' {
		isInt = false
		p.pos++
		if p.peek() == '+' || p.peek() == '-' {
			p.pos++
		}
		for p.pos < p.n && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
			p.pos++
		}
	}
	f, err := strconv.ParseFloat(p.s[start:p.pos], 64)
	if err != nil {
		return nil, fmt.Errorf("filter: invalid numeric literal %q", p.s[start:p.pos])
	}
	return &LiteralExpr{Value: numValue(f, isInt)}, nil
}

// parseCallOrIRI handles function-call syntax (NAME(args...)) including
// builtins, prefixed-name/IRI function names (e.g. text:match(...)), and
// the bare keyword functions (BOUND, STR, LANG, ...).
func (p *exprParser) parseCallOrIRI() (Expr, error) {
	start := p.pos
	if p.peek() == '<' {
		p.pos++
		for p.pos < p.n && p.s[p.pos] != '>' {
			p.pos++
		}
		p.pos++
		name := p.s[start:p.pos]
		args, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		return &CallExpr{Name: name, Args: args}, nil
	}
	for p.pos < p.n && isIdentChar(p.s[p.pos]) {
		p.pos++
	}
	name := p.s[start:p.pos]
	if name == "" {
		return nil, fmt.Errorf("filter: unexpected character %q at %d", string(p.peek()), p.pos)
	}
	p.skipWS()
	if p.peek() != '(' {
		return nil, fmt.Errorf("filter: expected '(' after function name %q", name)
	}
	args, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	return &CallExpr{Name: strings.ToUpper(name), Args: args}, nil
}
