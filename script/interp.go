// Package script is a small interpreter for the scripting subset used in
// hybrid programs: assignment, arithmetic, conditionals, loops, function
// definitions and printing. One parser accepts both the colon/indentation
// syntax and the block/end syntax; a Dialect decides how values print and
// behave.
package script

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("apophis.script")

const (
	// DefaultMaxSteps bounds the statements and loop iterations of one
	// evaluation.
	DefaultMaxSteps = 1_000_000

	// DefaultMaxDepth bounds nested function calls.
	DefaultMaxDepth = 200
)

// Interpreter evaluates scripts in one dialect. It holds no state between
// evaluations and is safe for concurrent use.
type Interpreter struct {
	dialect  Dialect
	maxSteps int
	maxDepth int
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithMaxSteps sets the step budget. Zero disables it.
func WithMaxSteps(n int) Option {
	return func(in *Interpreter) {
		if n >= 0 {
			in.maxSteps = n
		}
	}
}

// WithMaxDepth sets the call depth limit.
func WithMaxDepth(n int) Option {
	return func(in *Interpreter) {
		if n > 0 {
			in.maxDepth = n
		}
	}
}

// New creates an interpreter for dialect d.
func New(d Dialect, opts ...Option) *Interpreter {
	in := &Interpreter{dialect: d, maxSteps: DefaultMaxSteps, maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Dialect returns the interpreter's dialect.
func (in *Interpreter) Dialect() Dialect { return in.dialect }

// Eval parses and runs text against a copy of env. It returns what the
// script printed and the updated environment. On failure the output
// printed before the fault is returned with a nil Env, and env is left
// untouched.
func (in *Interpreter) Eval(ctx context.Context, text string, env Env) (string, Env, error) {
	prog, err := Parse(text, in.dialect)
	if err != nil {
		return "", nil, err
	}
	return in.Exec(ctx, prog, env)
}

// Exec runs a parsed program. See Eval.
func (in *Interpreter) Exec(ctx context.Context, prog *Program, env Env) (string, Env, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, &EvalFault{Msg: err.Error(), Err: err}
	}
	e := &evaluator{
		ctx:      ctx,
		d:        prog.Dialect,
		maxSteps: in.maxSteps,
		maxDepth: in.maxDepth,
	}
	globals := env.Clone()
	if _, err := e.execBlock(&frame{globals: globals}, prog.Body); err != nil {
		log.Debugf("%s script failed after %d steps: %s", prog.Dialect, e.steps, err)
		return e.out.String(), nil, err
	}
	return e.out.String(), globals, nil
}

// EvalScript runs text in the colon dialect with default limits.
func EvalScript(text string, env Env) (string, Env, error) {
	return New(Python).Eval(context.Background(), text, env)
}

// ---------------------------------------------------------------------------
// Evaluation state
// ---------------------------------------------------------------------------

type evaluator struct {
	ctx      context.Context
	d        Dialect
	out      strings.Builder
	steps    int
	maxSteps int
	depth    int
	maxDepth int
}

// frame is one activation. Top-level code has no locals and assigns
// straight into globals.
type frame struct {
	locals  Env
	globals Env
	global  map[string]bool // names declared global in this function
	last    Value           // value of the last statement, for implicit returns
	ret     Value
}

func (f *frame) set(name string, v Value) {
	if f.locals != nil && !f.global[name] {
		f.locals[name] = v
		return
	}
	f.globals[name] = v
}

func (f *frame) get(name string) (Value, bool) {
	if f.locals != nil && !f.global[name] {
		if v, ok := f.locals[name]; ok {
			return v, true
		}
	}
	if v, ok := f.globals[name]; ok {
		return v, true
	}
	if b, ok := builtins[name]; ok {
		return b, true
	}
	return nil, false
}

type control int

const (
	ctrlNone control = iota
	ctrlBreak
	ctrlContinue
	ctrlReturn
)

func faultf(n Node, format string, args ...any) error {
	return &EvalFault{Line: n.Pos().Line, Msg: fmt.Sprintf(format, args...)}
}

// tick charges one step and polls the context every 256 steps.
func (e *evaluator) tick(n Node) error {
	e.steps++
	if e.maxSteps > 0 && e.steps > e.maxSteps {
		return &EvalFault{
			Line: n.Pos().Line,
			Msg:  fmt.Sprintf("step budget of %d exhausted", e.maxSteps),
			Err:  ErrStepBudget,
		}
	}
	if e.steps%256 == 0 {
		if err := e.ctx.Err(); err != nil {
			return &EvalFault{Line: n.Pos().Line, Msg: err.Error(), Err: err}
		}
	}
	return nil
}

func (e *evaluator) lookup(f *frame, n Node, name string) (Value, error) {
	if v, ok := f.get(name); ok {
		return v, nil
	}
	if e.d == Ruby {
		return nil, faultf(n, "NameError: undefined local variable or method '%s'", name)
	}
	return nil, faultf(n, "NameError: name '%s' is not defined", name)
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (e *evaluator) execBlock(f *frame, body []Stmt) (control, error) {
	for _, s := range body {
		c, err := e.exec(f, s)
		if err != nil || c != ctrlNone {
			return c, err
		}
	}
	return ctrlNone, nil
}

func (e *evaluator) exec(f *frame, s Stmt) (control, error) {
	if err := e.tick(s); err != nil {
		return ctrlNone, err
	}
	switch s := s.(type) {
	case *ExprStmt:
		v, err := e.eval(f, s.X)
		if err != nil {
			return ctrlNone, err
		}
		f.last = v

	case *Assign:
		vals := make([]Value, len(s.Values))
		for i, x := range s.Values {
			v, err := e.eval(f, x)
			if err != nil {
				return ctrlNone, err
			}
			vals[i] = v
		}
		for i, name := range s.Targets {
			f.set(name, vals[i])
		}
		f.last = vals[len(vals)-1]

	case *AugAssign:
		cur, err := e.lookup(f, s, s.Target)
		if err != nil {
			return ctrlNone, err
		}
		rhs, err := e.eval(f, s.Value)
		if err != nil {
			return ctrlNone, err
		}
		v, err := e.binary(s, s.Op, cur, rhs)
		if err != nil {
			return ctrlNone, err
		}
		f.set(s.Target, v)
		f.last = v

	case *If:
		f.last = None
		v, err := e.eval(f, s.Test)
		if err != nil {
			return ctrlNone, err
		}
		if e.d.Truthy(v) != s.Negate {
			return e.execBlock(f, s.Then)
		}
		return e.execBlock(f, s.Else)

	case *While:
		for {
			v, err := e.eval(f, s.Test)
			if err != nil {
				return ctrlNone, err
			}
			if e.d.Truthy(v) == s.Negate {
				break
			}
			c, err := e.execBlock(f, s.Body)
			if err != nil || c == ctrlReturn {
				return c, err
			}
			if c == ctrlBreak {
				break
			}
			if err := e.tick(s); err != nil {
				return ctrlNone, err
			}
		}
		f.last = None

	case *For:
		return e.execFor(f, s)

	case *FuncDef:
		fn := &Function{
			Name:     s.Name,
			Params:   make([]string, len(s.Params)),
			Defaults: make([]Value, len(s.Params)),
			Body:     s.Body,
			Dialect:  e.d,
		}
		for i, p := range s.Params {
			fn.Params[i] = p.Name
			if p.Default != nil {
				v, err := e.eval(f, p.Default)
				if err != nil {
					return ctrlNone, err
				}
				fn.Defaults[i] = v
			}
		}
		f.set(s.Name, fn)
		f.last = None

	case *Return:
		f.ret = None
		if s.Value != nil {
			v, err := e.eval(f, s.Value)
			if err != nil {
				return ctrlNone, err
			}
			f.ret = v
		}
		return ctrlReturn, nil

	case *Break:
		return ctrlBreak, nil

	case *Continue:
		return ctrlContinue, nil

	case *Pass:

	case *Global:
		if f.locals != nil {
			if f.global == nil {
				f.global = make(map[string]bool)
			}
			for _, name := range s.Names {
				f.global[name] = true
			}
		}

	default:
		return ctrlNone, faultf(s, "unsupported statement %T", s)
	}
	return ctrlNone, nil
}

func (e *evaluator) execFor(f *frame, s *For) (control, error) {
	it, err := e.eval(f, s.Iter)
	if err != nil {
		return ctrlNone, err
	}
	switch it := it.(type) {
	case Range:
		for i := it.Start; (it.Step > 0 && i < it.Stop) || (it.Step < 0 && i > it.Stop); i += it.Step {
			if done, c, err := e.iterate(f, s, Int(i)); done {
				return c, err
			}
		}
	case Str:
		for _, r := range string(it) {
			if done, c, err := e.iterate(f, s, Str(string(r))); done {
				return c, err
			}
		}
	default:
		return ctrlNone, faultf(s.Iter, "TypeError: '%s' object is not iterable", e.d.TypeName(it))
	}
	f.last = None
	return ctrlNone, nil
}

// iterate runs one loop iteration; done reports that the loop is over.
func (e *evaluator) iterate(f *frame, s *For, v Value) (bool, control, error) {
	if err := e.tick(s); err != nil {
		return true, ctrlNone, err
	}
	f.set(s.Var, v)
	c, err := e.execBlock(f, s.Body)
	switch {
	case err != nil:
		return true, ctrlNone, err
	case c == ctrlReturn:
		return true, c, nil
	case c == ctrlBreak:
		f.last = None
		return true, ctrlNone, nil
	}
	return false, ctrlNone, nil
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (e *evaluator) eval(f *frame, x Expr) (Value, error) {
	switch x := x.(type) {
	case *IntLit:
		return Int(x.Value), nil
	case *FloatLit:
		return Float(x.Value), nil
	case *StrLit:
		return Str(x.Value), nil
	case *BoolLit:
		return Bool(x.Value), nil
	case *NoneLit:
		return None, nil
	case *Interp:
		return e.evalInterp(f, x)

	case *Name:
		v, err := e.lookup(f, x, x.Name)
		if err != nil {
			return nil, err
		}
		// In the block dialect a bare method name is a call.
		if e.d == Ruby && isCallable(v) {
			return e.call(f, x, v, nil, nil)
		}
		return v, nil

	case *Unary:
		v, err := e.eval(f, x.X)
		if err != nil {
			return nil, err
		}
		return e.unary(x, x.Op, v)

	case *Binary:
		a, err := e.eval(f, x.X)
		if err != nil {
			return nil, err
		}
		b, err := e.eval(f, x.Y)
		if err != nil {
			return nil, err
		}
		return e.binary(x, x.Op, a, b)

	case *Logical:
		a, err := e.eval(f, x.X)
		if err != nil {
			return nil, err
		}
		if e.d.Truthy(a) == (x.Op == "or") {
			return a, nil
		}
		return e.eval(f, x.Y)

	case *Compare:
		left, err := e.eval(f, x.Operands[0])
		if err != nil {
			return nil, err
		}
		for i, op := range x.Ops {
			right, err := e.eval(f, x.Operands[i+1])
			if err != nil {
				return nil, err
			}
			ok, err := e.compare(x, op, left, right)
			if err != nil {
				return nil, err
			}
			if !ok {
				return Bool(false), nil
			}
			left = right
		}
		return Bool(true), nil

	case *Cond:
		t, err := e.eval(f, x.Test)
		if err != nil {
			return nil, err
		}
		if e.d.Truthy(t) {
			return e.eval(f, x.Then)
		}
		return e.eval(f, x.Else)

	case *Call:
		return e.evalCall(f, x)

	case *RangeLit:
		a, err := e.eval(f, x.Start)
		if err != nil {
			return nil, err
		}
		b, err := e.eval(f, x.Stop)
		if err != nil {
			return nil, err
		}
		lo, ok1 := e.numeric(a).(Int)
		hi, ok2 := e.numeric(b).(Int)
		if !ok1 || !ok2 {
			return nil, faultf(x, "ArgumentError: bad value for range")
		}
		stop := int64(hi)
		if x.Inclusive {
			stop++
		}
		return Range{Start: int64(lo), Stop: stop, Step: 1, Inclusive: x.Inclusive}, nil
	}
	return nil, faultf(x, "unsupported expression %T", x)
}

func (e *evaluator) evalInterp(f *frame, x *Interp) (Value, error) {
	var b strings.Builder
	for _, part := range x.Parts {
		if part.Expr == nil {
			b.WriteString(part.Lit)
			continue
		}
		v, err := e.eval(f, part.Expr)
		if err != nil {
			return nil, err
		}
		if part.Conv == 'r' {
			v = Str(e.d.Inspect(v))
		}
		s := e.d.Format(v)
		if part.Spec != "" {
			if s, err = e.formatSpec(x, v, part.Spec); err != nil {
				return nil, err
			}
		}
		b.WriteString(s)
	}
	return Str(b.String()), nil
}

func isCallable(v Value) bool {
	switch v.(type) {
	case *Function, *Builtin:
		return true
	}
	return false
}

func (e *evaluator) evalCall(f *frame, c *Call) (Value, error) {
	var fn Value
	var err error
	if n, ok := c.Fn.(*Name); ok {
		fn, err = e.lookup(f, n, n.Name)
	} else {
		fn, err = e.eval(f, c.Fn)
	}
	if err != nil {
		return nil, err
	}

	args := make([]Value, 0, len(c.Args))
	for _, a := range c.Args {
		v, err := e.eval(f, a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	var kwargs map[string]Value
	if len(c.Kwargs) > 0 {
		kwargs = make(map[string]Value, len(c.Kwargs))
		for _, kw := range c.Kwargs {
			if _, dup := kwargs[kw.Name]; dup {
				return nil, faultf(c, "SyntaxError: keyword argument repeated: %s", kw.Name)
			}
			v, err := e.eval(f, kw.Value)
			if err != nil {
				return nil, err
			}
			kwargs[kw.Name] = v
		}
	}
	return e.call(f, c, fn, args, kwargs)
}

func (e *evaluator) call(f *frame, site Node, fn Value, args []Value, kwargs map[string]Value) (Value, error) {
	switch fn := fn.(type) {
	case *Builtin:
		return fn.fn(e, site, args, kwargs)
	case *Function:
		return e.callFunction(f, site, fn, args, kwargs)
	}
	return nil, faultf(site, "TypeError: '%s' object is not callable", e.d.TypeName(fn))
}

func (e *evaluator) callFunction(f *frame, site Node, fn *Function, args []Value, kwargs map[string]Value) (Value, error) {
	if len(args) > len(fn.Params) {
		return nil, faultf(site, "TypeError: %s() takes %d positional arguments but %d were given",
			fn.Name, len(fn.Params), len(args))
	}
	locals := make(Env, len(fn.Params))
	for i, v := range args {
		locals[fn.Params[i]] = v
	}
	for name, v := range kwargs {
		if !slices.Contains(fn.Params, name) {
			return nil, faultf(site, "TypeError: %s() got an unexpected keyword argument '%s'", fn.Name, name)
		}
		if _, dup := locals[name]; dup {
			return nil, faultf(site, "TypeError: %s() got multiple values for argument '%s'", fn.Name, name)
		}
		locals[name] = v
	}
	for i, name := range fn.Params {
		if _, ok := locals[name]; ok {
			continue
		}
		if fn.Defaults[i] == nil {
			return nil, faultf(site, "TypeError: %s() missing required argument '%s'", fn.Name, name)
		}
		locals[name] = fn.Defaults[i]
	}

	if e.maxDepth > 0 && e.depth >= e.maxDepth {
		return nil, &EvalFault{Line: site.Pos().Line, Msg: "RecursionError: " + ErrRecursion.Error(), Err: ErrRecursion}
	}
	caller := e.d
	e.depth++
	e.d = fn.Dialect
	defer func() {
		e.depth--
		e.d = caller
	}()

	callee := &frame{locals: locals, globals: f.globals}
	c, err := e.execBlock(callee, fn.Body)
	if err != nil {
		return nil, err
	}
	switch {
	case c == ctrlReturn:
		return callee.ret, nil
	case fn.Dialect == Ruby && callee.last != nil:
		return callee.last, nil
	}
	return None, nil
}
