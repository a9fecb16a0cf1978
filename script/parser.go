package script

import (
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Parser: recursive descent over a complete token stream
// ---------------------------------------------------------------------------

// Parser builds a Program from tokens. Colon suites are delimited by the
// column of their first statement; block bodies run to a terminating
// keyword and ignore columns. Errors abort the parse with a *SyntaxFault.
type Parser struct {
	toks    []Token
	pos     int
	dialect Dialect
	loops   int // enclosing loops in the current function
	funcs   int // enclosing function definitions

	// vars holds names assigned so far. In the block dialect a known
	// variable is never the head of a parenthesis-free call.
	vars map[string]bool
}

// Parse parses src in dialect d.
func Parse(src string, d Dialect) (*Program, error) {
	toks, err := Lex(src, d)
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: toks, dialect: d, vars: make(map[string]bool)}
	return p.parseProgram()
}

func (p *Parser) parseProgram() (prog *Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			f, ok := r.(*SyntaxFault)
			if !ok {
				panic(r)
			}
			prog, err = nil, f
		}
	}()
	prog = &Program{Dialect: p.dialect}
	for {
		p.skipNewlines()
		if p.cur().Type == TokenEOF {
			return prog, nil
		}
		prog.Body = append(prog.Body, p.parseLine()...)
	}
}

// ---------------------------------------------------------------------------
// Token helpers
// ---------------------------------------------------------------------------

func (p *Parser) cur() Token { return p.toks[p.pos] }

func (p *Parser) peek() Token {
	if p.pos+1 < len(p.toks) {
		return p.toks[p.pos+1]
	}
	return p.toks[len(p.toks)-1]
}

func (p *Parser) next() Token {
	t := p.toks[p.pos]
	if t.Type != TokenEOF {
		p.pos++
	}
	return t
}

func (p *Parser) isOp(op string) bool {
	t := p.cur()
	return t.Type == TokenOp && t.Literal == op
}

func (p *Parser) isKw(kws ...string) bool {
	t := p.cur()
	if t.Type != TokenName {
		return false
	}
	for _, kw := range kws {
		if t.Literal == kw {
			return true
		}
	}
	return false
}

func (p *Parser) peekKw(kw string) bool {
	t := p.peek()
	return t.Type == TokenName && t.Literal == kw
}

func (p *Parser) acceptOp(op string) bool {
	if p.isOp(op) {
		p.next()
		return true
	}
	return false
}

func (p *Parser) acceptKw(kw string) bool {
	if p.isKw(kw) {
		p.next()
		return true
	}
	return false
}

func (p *Parser) expectOp(op string) Token {
	if !p.isOp(op) {
		p.failf("expected '%s', got %s", op, describe(p.cur()))
	}
	return p.next()
}

func (p *Parser) expectKw(kw string) Token {
	if !p.isKw(kw) {
		p.failf("expected '%s', got %s", kw, describe(p.cur()))
	}
	return p.next()
}

func (p *Parser) expectName() Token {
	t := p.cur()
	if t.Type != TokenName || keywords[t.Literal] {
		p.failf("expected a name, got %s", describe(t))
	}
	return p.next()
}

func (p *Parser) failf(format string, args ...any) {
	panic(syntaxf(p.cur().Pos.Line, format, args...))
}

func (p *Parser) skipNewlines() {
	for p.cur().Type == TokenNewline || p.isOp(";") {
		p.next()
	}
}

func (p *Parser) atLineEnd() bool {
	t := p.cur()
	return t.Type == TokenNewline || t.Type == TokenEOF
}

// atSimpleEnd reports whether the current token ends a simple statement.
func (p *Parser) atSimpleEnd() bool {
	return p.atLineEnd() || p.isOp(";") || p.isKw("if", "unless", "while", "until", "end", "else", "elsif")
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// parseLine parses the statements of one logical line.
func (p *Parser) parseLine() []Stmt {
	var out []Stmt
	for {
		out = append(out, p.parseStatement())
		if !p.isOp(";") {
			break
		}
		p.next()
		if p.atLineEnd() {
			break
		}
	}
	p.endStatement()
	return out
}

func (p *Parser) endStatement() {
	t := p.cur()
	switch {
	case t.Type == TokenEOF:
	case t.Type == TokenNewline:
		p.next()
	case t.AtLineStart:
		// a colon suite already consumed the line end
	case p.isKw("end", "else", "elsif"):
	default:
		p.failf("unexpected %s", describe(t))
	}
}

func (p *Parser) parseStatement() Stmt {
	t := p.cur()
	if t.Type == TokenName {
		if msg, ok := unsupported[t.Literal]; ok {
			p.failf("%s", msg)
		}
		switch t.Literal {
		case "if":
			return p.parseIf(false, t.Pos.Column)
		case "unless":
			return p.parseIf(true, t.Pos.Column)
		case "while", "until":
			return p.parseWhile()
		case "for":
			return p.parseFor()
		case "def":
			return p.parseDef()
		case "elif", "elsif", "else", "end", "then", "do", "in":
			p.failf("unexpected '%s'", t.Literal)
		}
	}
	return p.parseModifiers(p.parseSimple())
}

// parseModifiers wraps s in trailing "if c", "unless c", "while c" and
// "until c" modifiers of the block dialect.
func (p *Parser) parseModifiers(s Stmt) Stmt {
	for p.dialect == Ruby && p.isKw("if", "unless", "while", "until") {
		kw := p.next()
		test := p.parseExpr()
		switch kw.Literal {
		case "if", "unless":
			s = &If{base: at(kw), Test: test, Negate: kw.Literal == "unless", Then: []Stmt{s}}
		default:
			s = &While{base: at(kw), Test: test, Negate: kw.Literal == "until", Body: []Stmt{s}}
		}
	}
	return s
}

func isAugOp(op string) bool {
	switch op {
	case "+=", "-=", "*=", "/=", "//=", "%=", "**=":
		return true
	}
	return false
}

func (p *Parser) parseSimple() Stmt {
	t := p.cur()
	if t.Type == TokenName {
		switch t.Literal {
		case "pass":
			p.next()
			return &Pass{base: at(t)}
		case "break":
			p.next()
			if p.loops == 0 {
				panic(syntaxf(t.Pos.Line, "'break' outside loop"))
			}
			return &Break{base: at(t)}
		case "continue", "next":
			p.next()
			if p.loops == 0 {
				panic(syntaxf(t.Pos.Line, "'%s' not properly in loop", t.Literal))
			}
			return &Continue{base: at(t)}
		case "return":
			p.next()
			if p.funcs == 0 && p.dialect == Python {
				panic(syntaxf(t.Pos.Line, "'return' outside function"))
			}
			r := &Return{base: at(t)}
			if !p.atSimpleEnd() {
				r.Value = p.parseExpr()
			}
			return r
		case "global":
			p.next()
			g := &Global{base: at(t)}
			for {
				g.Names = append(g.Names, p.expectName().Literal)
				if !p.acceptOp(",") {
					break
				}
			}
			return g
		}
		if op := p.peek(); !keywords[t.Literal] && op.Type == TokenOp && isAugOp(op.Literal) {
			p.next()
			p.next()
			p.vars[t.Literal] = true
			return &AugAssign{
				base:   at(t),
				Target: t.Literal,
				Op:     strings.TrimSuffix(op.Literal, "="),
				Value:  p.parseExpr(),
			}
		}
	}

	first := p.parseExpr()
	if !p.isOp(",") && !p.isOp("=") {
		return &ExprStmt{base: base{At: first.Pos()}, X: first}
	}
	targets := []Expr{first}
	for p.acceptOp(",") {
		targets = append(targets, p.parseExpr())
	}
	if !p.isOp("=") {
		p.failf("tuples are not supported")
	}
	p.next()
	names := make([]string, len(targets))
	for i, x := range targets {
		n, ok := x.(*Name)
		if !ok {
			panic(syntaxf(x.Pos().Line, "cannot assign to expression"))
		}
		names[i] = n.Name
		p.vars[n.Name] = true
	}
	var values []Expr
	for {
		values = append(values, p.parseExpr())
		if !p.acceptOp(",") {
			break
		}
	}
	if p.isOp("=") {
		p.failf("chained assignment is not supported")
	}
	if len(values) != len(names) {
		panic(syntaxf(t.Pos.Line, "cannot unpack %d values into %d names", len(values), len(names)))
	}
	return &Assign{base: at(t), Targets: names, Values: values}
}

// parseIf parses if/elif/else (colon form), if/elsif/else/end and
// unless. indent is the column of the statement that owns the chain.
func (p *Parser) parseIf(negate bool, indent int) Stmt {
	kw := p.next()
	node := &If{base: at(kw), Test: p.parseExpr(), Negate: negate}

	if p.isOp(":") && !negate {
		node.Then = p.parseSuite(indent)
		if t := p.cur(); t.AtLineStart && t.Pos.Column == indent {
			switch {
			case p.isKw("elif"):
				node.Else = []Stmt{p.parseIf(false, indent)}
			case p.isKw("else"):
				p.next()
				node.Else = p.parseSuite(indent)
			}
		}
		return node
	}

	p.acceptKw("then")
	node.Then = p.parseUntil("elsif", "else", "end")
	switch {
	case p.isKw("elsif") && !negate:
		node.Else = []Stmt{p.parseIf(false, indent)}
	case p.isKw("else"):
		p.next()
		node.Else = p.parseUntil("end")
		p.expectKw("end")
	default:
		p.expectKw("end")
	}
	return node
}

func (p *Parser) parseWhile() Stmt {
	kw := p.next()
	node := &While{base: at(kw), Test: p.parseExpr(), Negate: kw.Literal == "until"}
	p.loops++
	defer func() { p.loops-- }()

	if p.isOp(":") && !node.Negate {
		node.Body = p.parseSuite(kw.Pos.Column)
		return node
	}
	p.acceptKw("do")
	node.Body = p.parseUntil("end")
	p.expectKw("end")
	return node
}

func (p *Parser) parseFor() Stmt {
	kw := p.next()
	v := p.expectName()
	p.vars[v.Literal] = true
	p.expectKw("in")
	node := &For{base: at(kw), Var: v.Literal, Iter: p.parseExpr()}
	p.loops++
	defer func() { p.loops-- }()

	if p.isOp(":") {
		node.Body = p.parseSuite(kw.Pos.Column)
		return node
	}
	p.acceptKw("do")
	node.Body = p.parseUntil("end")
	p.expectKw("end")
	return node
}

func (p *Parser) parseDef() Stmt {
	kw := p.next()
	node := &FuncDef{base: at(kw), Name: p.expectName().Literal}

	if p.acceptOp("(") {
		seen := make(map[string]bool)
		for !p.isOp(")") {
			name := p.expectName()
			if seen[name.Literal] {
				panic(syntaxf(name.Pos.Line, "duplicate argument '%s' in function definition", name.Literal))
			}
			seen[name.Literal] = true
			p.vars[name.Literal] = true
			param := Param{Name: name.Literal}
			if p.acceptOp("=") {
				param.Default = p.parseExpr()
			} else if n := len(node.Params); n > 0 && node.Params[n-1].Default != nil {
				panic(syntaxf(name.Pos.Line, "non-default argument follows default argument"))
			}
			node.Params = append(node.Params, param)
			if !p.acceptOp(",") {
				break
			}
		}
		p.expectOp(")")
	}

	loops := p.loops
	p.loops = 0
	p.funcs++
	defer func() {
		p.loops = loops
		p.funcs--
	}()

	if p.isOp(":") {
		node.Body = p.parseSuite(kw.Pos.Column)
		return node
	}
	node.Body = p.parseUntil("end")
	p.expectKw("end")
	return node
}

// parseSuite parses the body after a ':'. An inline suite runs to the
// end of the line; otherwise the body is every following line indented
// like its first statement, which must be deeper than indent.
func (p *Parser) parseSuite(indent int) []Stmt {
	p.expectOp(":")
	if !p.atLineEnd() {
		return p.parseLine()
	}
	p.skipNewlines()
	first := p.cur()
	if first.Type == TokenEOF || first.Pos.Column <= indent {
		p.failf("expected an indented block")
	}
	var body []Stmt
	for {
		body = append(body, p.parseLine()...)
		p.skipNewlines()
		t := p.cur()
		if t.Type == TokenEOF || t.Pos.Column < first.Pos.Column {
			return body
		}
		if t.Pos.Column > first.Pos.Column {
			p.failf("unexpected indent")
		}
	}
}

// parseUntil parses statements until one of the stop keywords. The last
// stop keyword names what is missing at end of input.
func (p *Parser) parseUntil(stops ...string) []Stmt {
	var body []Stmt
	for {
		p.skipNewlines()
		if p.cur().Type == TokenEOF {
			p.failf("expected '%s' before end of input", stops[len(stops)-1])
		}
		if p.isKw(stops...) {
			return body
		}
		body = append(body, p.parseLine()...)
	}
}

// ---------------------------------------------------------------------------
// Expressions, lowest precedence first
// ---------------------------------------------------------------------------

// parseExpr parses a full expression including "a if c else b". In the
// block dialect an "if" without "else" is left for the statement
// modifier.
func (p *Parser) parseExpr() Expr {
	x := p.parseRange()
	if p.isKw("if") && !p.cur().AtLineStart {
		save := p.pos
		kw := p.next()
		test := p.parseRange()
		if p.acceptKw("else") {
			return &Cond{base: at(kw), Test: test, Then: x, Else: p.parseExpr()}
		}
		if p.dialect == Python {
			p.failf("expected 'else' after 'if' expression")
		}
		p.pos = save
	}
	return x
}

func (p *Parser) parseRange() Expr {
	x := p.parseOr()
	if p.isOp("..") || p.isOp("...") {
		op := p.next()
		return &RangeLit{base: at(op), Start: x, Stop: p.parseOr(), Inclusive: op.Literal == ".."}
	}
	return x
}

func (p *Parser) parseOr() Expr {
	x := p.parseAnd()
	for p.isKw("or") || p.isOp("||") {
		op := p.next()
		x = &Logical{base: at(op), Op: "or", X: x, Y: p.parseAnd()}
	}
	return x
}

func (p *Parser) parseAnd() Expr {
	x := p.parseNot()
	for p.isKw("and") || p.isOp("&&") {
		op := p.next()
		x = &Logical{base: at(op), Op: "and", X: x, Y: p.parseNot()}
	}
	return x
}

func (p *Parser) parseNot() Expr {
	if p.isKw("not") {
		op := p.next()
		return &Unary{base: at(op), Op: "not", X: p.parseNot()}
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() Expr {
	x := p.parseAdditive()
	var ops []string
	operands := []Expr{x}
	for {
		op, ok := p.compareOp()
		if !ok {
			break
		}
		ops = append(ops, op)
		operands = append(operands, p.parseAdditive())
	}
	if len(ops) == 0 {
		return x
	}
	return &Compare{base: base{At: x.Pos()}, Ops: ops, Operands: operands}
}

func (p *Parser) compareOp() (string, bool) {
	t := p.cur()
	if t.Type == TokenOp {
		switch t.Literal {
		case "<", ">", "==", "!=", "<=", ">=":
			p.next()
			return t.Literal, true
		}
		return "", false
	}
	switch {
	case p.isKw("in"):
		p.next()
		return "in", true
	case p.isKw("not") && p.peekKw("in"):
		p.next()
		p.next()
		return "not in", true
	case p.isKw("is"):
		p.next()
		if p.acceptKw("not") {
			return "is not", true
		}
		return "is", true
	}
	return "", false
}

func (p *Parser) parseAdditive() Expr {
	x := p.parseMultiplicative()
	for p.isOp("+") || p.isOp("-") {
		op := p.next()
		x = &Binary{base: at(op), Op: op.Literal, X: x, Y: p.parseMultiplicative()}
	}
	return x
}

func (p *Parser) parseMultiplicative() Expr {
	x := p.parseUnary()
	for p.isOp("*") || p.isOp("/") || p.isOp("//") || p.isOp("%") {
		op := p.next()
		x = &Binary{base: at(op), Op: op.Literal, X: x, Y: p.parseUnary()}
	}
	return x
}

func (p *Parser) parseUnary() Expr {
	if p.isOp("-") || p.isOp("+") || p.isOp("!") {
		op := p.next()
		return &Unary{base: at(op), Op: op.Literal, X: p.parseUnary()}
	}
	return p.parsePower()
}

// parsePower handles right-associative **, which binds tighter than a
// unary minus on its left.
func (p *Parser) parsePower() Expr {
	x := p.parsePostfix()
	if p.isOp("**") {
		op := p.next()
		return &Binary{base: at(op), Op: "**", X: x, Y: p.parseUnary()}
	}
	return x
}

func (p *Parser) parsePostfix() Expr {
	x := p.parsePrimary()
	for {
		switch {
		case p.isOp("("):
			x = p.parseCall(x)
		case p.isOp("."):
			p.failf("attribute access is not supported")
		case p.isOp("["):
			p.failf("indexing is not supported")
		default:
			return x
		}
	}
}

func (p *Parser) parseCall(fn Expr) Expr {
	p.expectOp("(")
	call := &Call{base: base{At: fn.Pos()}, Fn: fn}
	for !p.isOp(")") {
		t := p.cur()
		if t.Type == TokenName && p.peek().Type == TokenOp && p.peek().Literal == "=" {
			p.next()
			p.next()
			call.Kwargs = append(call.Kwargs, Kwarg{Name: t.Literal, Value: p.parseExpr()})
		} else {
			if len(call.Kwargs) > 0 {
				p.failf("positional argument follows keyword argument")
			}
			call.Args = append(call.Args, p.parseExpr())
		}
		if !p.acceptOp(",") {
			break
		}
	}
	p.expectOp(")")
	return call
}

// commandArgStart reports whether the current token begins the argument
// list of a parenthesis-free call such as `puts "hi"` or `puts -x`.
func (p *Parser) commandArgStart() bool {
	t := p.cur()
	if !t.SpaceBefore || t.AtLineStart {
		return false
	}
	switch t.Type {
	case TokenOp:
		if t.Literal == "-" || t.Literal == "!" {
			n := p.peek()
			return !n.SpaceBefore && !n.AtLineStart && n.Type != TokenNewline && n.Type != TokenEOF
		}
	case TokenInt, TokenFloat, TokenString, TokenInterp:
		return true
	case TokenName:
		switch t.Literal {
		case "true", "false", "nil":
			return true
		}
		return !keywords[t.Literal]
	}
	return false
}

func (p *Parser) parseCommand(fn *Name) Expr {
	call := &Call{base: fn.base, Fn: fn}
	for {
		call.Args = append(call.Args, p.parseExpr())
		if !p.acceptOp(",") {
			return call
		}
	}
}

func (p *Parser) parsePrimary() Expr {
	t := p.cur()
	switch t.Type {
	case TokenInt:
		p.next()
		v, err := strconv.ParseInt(t.Literal, 10, 64)
		if err != nil {
			panic(syntaxf(t.Pos.Line, "integer literal %s is too large", t.Literal))
		}
		return &IntLit{base: at(t), Value: v}

	case TokenFloat:
		p.next()
		v, _ := strconv.ParseFloat(t.Literal, 64) // out of range gives ±Inf
		return &FloatLit{base: at(t), Value: v}

	case TokenString:
		p.next()
		s := t.Literal
		for p.cur().Type == TokenString {
			s += p.next().Literal
		}
		return &StrLit{base: at(t), Value: s}

	case TokenInterp:
		p.next()
		return p.parseInterp(t)

	case TokenName:
		switch t.Literal {
		case "True", "true":
			p.next()
			return &BoolLit{base: at(t), Value: true}
		case "False", "false":
			p.next()
			return &BoolLit{base: at(t), Value: false}
		case "None", "nil":
			p.next()
			return &NoneLit{base: at(t)}
		}
		if keywords[t.Literal] {
			if msg, ok := unsupported[t.Literal]; ok {
				p.failf("%s", msg)
			}
			p.failf("unexpected %s", describe(t))
		}
		p.next()
		name := &Name{base: at(t), Name: t.Literal}
		if p.dialect == Ruby && !p.vars[t.Literal] && p.commandArgStart() {
			return p.parseCommand(name)
		}
		return name

	case TokenOp:
		switch t.Literal {
		case "(":
			p.next()
			x := p.parseExpr()
			if p.isOp(",") {
				p.failf("tuples are not supported")
			}
			p.expectOp(")")
			return x
		case "[":
			p.failf("lists are not supported")
		case "{":
			p.failf("dictionaries are not supported")
		}
	}
	p.failf("unexpected %s", describe(t))
	return nil
}

func (p *Parser) parseInterp(t Token) Expr {
	node := &Interp{base: at(t)}
	for _, part := range t.Parts {
		if !part.IsCode {
			node.Parts = append(node.Parts, InterpPart{Lit: part.Lit})
			continue
		}
		node.Parts = append(node.Parts, InterpPart{
			Expr: p.parseEmbedded(part.Code, t.Pos.Line),
			Conv: part.Conv,
			Spec: part.Spec,
		})
	}
	return node
}

// parseEmbedded parses the code of an interpolation as one expression.
func (p *Parser) parseEmbedded(code string, line int) Expr {
	toks, err := lexFrom(code, p.dialect, line)
	if err != nil {
		panic(err)
	}
	sub := &Parser{toks: toks, dialect: p.dialect, loops: p.loops, funcs: p.funcs, vars: p.vars}
	x := sub.parseExpr()
	sub.skipNewlines()
	if sub.cur().Type != TokenEOF {
		sub.failf("unexpected %s in interpolation", describe(sub.cur()))
	}
	return x
}
