package script

// ---------------------------------------------------------------------------
// AST: one tree for both surface syntaxes
// ---------------------------------------------------------------------------

// Node is the interface implemented by all AST nodes.
type Node interface {
	Pos() Position
}

type base struct {
	At Position
}

func (b base) Pos() Position { return b.At }

func at(t Token) base { return base{At: t.Pos} }

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr()
}

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt()
}

// Program is a parsed script.
type Program struct {
	Dialect Dialect
	Body    []Stmt
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// IntLit is an integer literal.
type IntLit struct {
	base
	Value int64
}

// FloatLit is a floating-point literal.
type FloatLit struct {
	base
	Value float64
}

// StrLit is a string literal without interpolation.
type StrLit struct {
	base
	Value string
}

// BoolLit is True/False or true/false.
type BoolLit struct {
	base
	Value bool
}

// NoneLit is None or nil.
type NoneLit struct {
	base
}

// InterpPart is literal text or an embedded expression.
type InterpPart struct {
	Lit  string
	Expr Expr // nil for literal text
	Conv byte
	Spec string
}

// Interp is an f-string or a "#{}" string.
type Interp struct {
	base
	Parts []InterpPart
}

// Name is a variable reference.
type Name struct {
	base
	Name string
}

// Unary is -x, +x, not x or !x.
type Unary struct {
	base
	Op string
	X  Expr
}

// Binary is an arithmetic operation.
type Binary struct {
	base
	Op   string
	X, Y Expr
}

// Logical is a short-circuit and/or.
type Logical struct {
	base
	Op   string // "and" or "or"
	X, Y Expr
}

// Compare is a chain of comparisons: a < b <= c.
type Compare struct {
	base
	Ops      []string
	Operands []Expr
}

// Cond is the conditional expression a if c else b.
type Cond struct {
	base
	Test, Then, Else Expr
}

// Kwarg is a keyword argument.
type Kwarg struct {
	Name  string
	Value Expr
}

// Call is a function call.
type Call struct {
	base
	Fn     Expr
	Args   []Expr
	Kwargs []Kwarg
}

// RangeLit is a..b or a...b.
type RangeLit struct {
	base
	Start, Stop Expr
	Inclusive   bool
}

func (*IntLit) expr()   {}
func (*FloatLit) expr() {}
func (*StrLit) expr()   {}
func (*BoolLit) expr()  {}
func (*NoneLit) expr()  {}
func (*Interp) expr()   {}
func (*Name) expr()     {}
func (*Unary) expr()    {}
func (*Binary) expr()   {}
func (*Logical) expr()  {}
func (*Compare) expr()  {}
func (*Cond) expr()     {}
func (*Call) expr()     {}
func (*RangeLit) expr() {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// ExprStmt evaluates an expression for its effect.
type ExprStmt struct {
	base
	X Expr
}

// Assign binds one or more names: a = 1 or a, b = b, a.
type Assign struct {
	base
	Targets []string
	Values  []Expr
}

// AugAssign is x op= value.
type AugAssign struct {
	base
	Target string
	Op     string // the binary operator, without '='
	Value  Expr
}

// If covers if/elif/else and unless. Else holds a nested If for elif.
type If struct {
	base
	Test   Expr
	Negate bool
	Then   []Stmt
	Else   []Stmt
}

// While covers while and until.
type While struct {
	base
	Test   Expr
	Negate bool
	Body   []Stmt
}

// For iterates a variable over a range or string.
type For struct {
	base
	Var  string
	Iter Expr
	Body []Stmt
}

// Param is a function parameter with an optional default.
type Param struct {
	Name    string
	Default Expr
}

// FuncDef defines a function.
type FuncDef struct {
	base
	Name   string
	Params []Param
	Body   []Stmt
}

// Return leaves the current function.
type Return struct {
	base
	Value Expr // may be nil
}

// Break leaves the innermost loop.
type Break struct {
	base
}

// Continue starts the next iteration (continue, next).
type Continue struct {
	base
}

// Pass does nothing.
type Pass struct {
	base
}

// Global declares names that assignments in a function bind globally.
type Global struct {
	base
	Names []string
}

func (*ExprStmt) stmt()  {}
func (*Assign) stmt()    {}
func (*AugAssign) stmt() {}
func (*If) stmt()        {}
func (*While) stmt()     {}
func (*For) stmt()       {}
func (*FuncDef) stmt()   {}
func (*Return) stmt()    {}
func (*Break) stmt()     {}
func (*Continue) stmt()  {}
func (*Pass) stmt()      {}
func (*Global) stmt()    {}
