package script

import (
	"sort"
)

// ---------------------------------------------------------------------------
// Values
// ---------------------------------------------------------------------------

// Kind identifies the dynamic type of a Value.
type Kind int

const (
	KindNone Kind = iota
	KindBool
	KindInt
	KindFloat
	KindStr
	KindRange
	KindFunction
	KindBuiltin
)

var kindNames = map[Kind]string{
	KindNone:     "none",
	KindBool:     "bool",
	KindInt:      "int",
	KindFloat:    "float",
	KindStr:      "str",
	KindRange:    "range",
	KindFunction: "function",
	KindBuiltin:  "builtin",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Value is a script value. The concrete types are Int, Float, Str, Bool,
// NoneType, Range, *Function and *Builtin.
type Value interface {
	Kind() Kind
}

// Int is a 64-bit signed integer.
type Int int64

// Float is a double precision float.
type Float float64

// Str is an immutable string.
type Str string

// Bool is true or false.
type Bool bool

// NoneType is the type of None (nil in the block syntax).
type NoneType struct{}

// None is the single NoneType value.
var None = NoneType{}

// Range is an integer progression produced by range() or a..b. Stop is
// exclusive; Inclusive only records how the range was written.
type Range struct {
	Start, Stop, Step int64
	Inclusive         bool
}

func (Int) Kind() Kind      { return KindInt }
func (Float) Kind() Kind    { return KindFloat }
func (Str) Kind() Kind      { return KindStr }
func (Bool) Kind() Kind     { return KindBool }
func (NoneType) Kind() Kind { return KindNone }
func (Range) Kind() Kind    { return KindRange }

// Len returns the number of elements in r.
func (r Range) Len() int64 {
	switch {
	case r.Step > 0 && r.Start < r.Stop:
		return (r.Stop - r.Start + r.Step - 1) / r.Step
	case r.Step < 0 && r.Start > r.Stop:
		return (r.Start - r.Stop - r.Step - 1) / -r.Step
	}
	return 0
}

// Function is a user-defined function. It runs with the semantics of the
// dialect it was defined in, wherever it is called from.
type Function struct {
	Name     string
	Params   []string
	Defaults []Value // parallel to Params; nil entries have no default
	Body     []Stmt
	Dialect  Dialect
}

func (*Function) Kind() Kind { return KindFunction }

type builtinFunc func(e *evaluator, site Node, args []Value, kwargs map[string]Value) (Value, error)

// Builtin is a function implemented by the interpreter.
type Builtin struct {
	Name string
	fn   builtinFunc
}

func (*Builtin) Kind() Kind { return KindBuiltin }

// IsPrimitive reports whether v is a number, string, boolean or None.
// Only primitives cross process boundaries.
func IsPrimitive(v Value) bool {
	switch v.(type) {
	case Int, Float, Str, Bool, NoneType:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Environment
// ---------------------------------------------------------------------------

// Env maps variable names to values. A hybrid program threads one Env
// through all of its script segments.
type Env map[string]Value

// Clone returns a shallow copy of e. Values are immutable, except that
// functions are shared by pointer and never modified after definition.
func (e Env) Clone() Env {
	out := make(Env, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Names returns the bound names in sorted order.
func (e Env) Names() []string {
	names := make([]string, 0, len(e))
	for k := range e {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
