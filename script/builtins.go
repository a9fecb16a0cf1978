package script

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

var builtins map[string]*Builtin

func init() {
	table := map[string]builtinFunc{
		"print": builtinPrint,
		"puts":  builtinPuts,
		"p":     builtinP,
		"str":   builtinStr,
		"int":   builtinInt,
		"float": builtinFloat,
		"bool":  builtinBool,
		"len":   builtinLen,
		"abs":   builtinAbs,
		"min":   minMax("min", -1),
		"max":   minMax("max", 1),
		"round": builtinRound,
		"range": builtinRange,
	}
	builtins = make(map[string]*Builtin, len(table))
	for name, fn := range table {
		builtins[name] = &Builtin{Name: name, fn: fn}
	}
}

// BuiltinNames lists the functions every script can call.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Keywords lists the reserved words the parser accepts.
func Keywords() []string {
	var out []string
	for kw := range keywords {
		if _, rejected := unsupported[kw]; !rejected {
			out = append(out, kw)
		}
	}
	sort.Strings(out)
	return out
}

func arity(site Node, name string, args []Value, kwargs map[string]Value, lo, hi int) error {
	if len(kwargs) > 0 {
		return faultf(site, "TypeError: %s() takes no keyword arguments", name)
	}
	if len(args) < lo || len(args) > hi {
		if lo == hi {
			return faultf(site, "TypeError: %s() takes exactly %d argument(s) (%d given)", name, lo, len(args))
		}
		return faultf(site, "TypeError: %s() takes from %d to %d arguments (%d given)", name, lo, hi, len(args))
	}
	return nil
}

func builtinPrint(e *evaluator, site Node, args []Value, kwargs map[string]Value) (Value, error) {
	sep, end := " ", "\n"
	if e.d == Ruby {
		sep, end = "", ""
	}
	for name, v := range kwargs {
		if name != "sep" && name != "end" {
			return nil, faultf(site, "TypeError: '%s' is an invalid keyword argument for print()", name)
		}
		var s string
		switch v := v.(type) {
		case NoneType:
			continue
		case Str:
			s = string(v)
		default:
			return nil, faultf(site, "TypeError: %s must be None or a string, not %s", name, e.d.TypeName(v))
		}
		if name == "sep" {
			sep = s
		} else {
			end = s
		}
	}
	for i, a := range args {
		if i > 0 {
			e.out.WriteString(sep)
		}
		e.out.WriteString(e.d.Format(a))
	}
	e.out.WriteString(end)
	return None, nil
}

func builtinPuts(e *evaluator, site Node, args []Value, kwargs map[string]Value) (Value, error) {
	if err := arity(site, "puts", args, kwargs, 0, len(args)); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		e.out.WriteByte('\n')
	}
	for _, a := range args {
		s := e.d.Format(a)
		e.out.WriteString(s)
		if !strings.HasSuffix(s, "\n") {
			e.out.WriteByte('\n')
		}
	}
	return None, nil
}

func builtinP(e *evaluator, site Node, args []Value, kwargs map[string]Value) (Value, error) {
	if err := arity(site, "p", args, kwargs, 0, len(args)); err != nil {
		return nil, err
	}
	for _, a := range args {
		e.out.WriteString(e.d.Inspect(a))
		e.out.WriteByte('\n')
	}
	if len(args) == 0 {
		return None, nil
	}
	return args[len(args)-1], nil
}

func builtinStr(e *evaluator, site Node, args []Value, kwargs map[string]Value) (Value, error) {
	if err := arity(site, "str", args, kwargs, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return Str(""), nil
	}
	return Str(e.d.Format(args[0])), nil
}

func builtinInt(e *evaluator, site Node, args []Value, kwargs map[string]Value) (Value, error) {
	if err := arity(site, "int", args, kwargs, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return Int(0), nil
	}
	switch v := e.numeric(args[0]).(type) {
	case Int:
		return v, nil
	case Bool:
		if v {
			return Int(1), nil
		}
		return Int(0), nil
	case Float:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, faultf(site, "ValueError: cannot convert float %s to integer", e.d.Format(v))
		}
		return e.floatToInt(site, math.Trunc(f))
	case Str:
		s := strings.ReplaceAll(strings.TrimSpace(string(v)), "_", "")
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, faultf(site, "ValueError: invalid literal for int() with base 10: %s", e.d.Inspect(v))
		}
		return Int(i), nil
	}
	return nil, faultf(site, "TypeError: int() argument must be a string or a number, not '%s'", e.d.TypeName(args[0]))
}

func builtinFloat(e *evaluator, site Node, args []Value, kwargs map[string]Value) (Value, error) {
	if err := arity(site, "float", args, kwargs, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return Float(0), nil
	}
	switch v := e.numeric(args[0]).(type) {
	case Int:
		return Float(v), nil
	case Float:
		return v, nil
	case Str:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
		if err != nil {
			return nil, faultf(site, "ValueError: could not convert string to float: %s", e.d.Inspect(v))
		}
		return Float(f), nil
	}
	return nil, faultf(site, "TypeError: float() argument must be a string or a number, not '%s'", e.d.TypeName(args[0]))
}

func builtinBool(e *evaluator, site Node, args []Value, kwargs map[string]Value) (Value, error) {
	if err := arity(site, "bool", args, kwargs, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return Bool(false), nil
	}
	return Bool(e.d.Truthy(args[0])), nil
}

func builtinLen(e *evaluator, site Node, args []Value, kwargs map[string]Value) (Value, error) {
	if err := arity(site, "len", args, kwargs, 1, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case Str:
		return Int(utf8.RuneCountInString(string(v))), nil
	case Range:
		return Int(v.Len()), nil
	}
	return nil, faultf(site, "TypeError: object of type '%s' has no len()", e.d.TypeName(args[0]))
}

func builtinAbs(e *evaluator, site Node, args []Value, kwargs map[string]Value) (Value, error) {
	if err := arity(site, "abs", args, kwargs, 1, 1); err != nil {
		return nil, err
	}
	switch v := e.numeric(args[0]).(type) {
	case Int:
		if v == math.MinInt64 {
			return nil, e.overflow(site)
		}
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case Float:
		return Float(math.Abs(float64(v))), nil
	}
	return nil, faultf(site, "TypeError: bad operand type for abs(): '%s'", e.d.TypeName(args[0]))
}

// minMax builds min (want < 0) or max (want > 0).
func minMax(name string, want int) builtinFunc {
	return func(e *evaluator, site Node, args []Value, kwargs map[string]Value) (Value, error) {
		if len(kwargs) > 0 {
			return nil, faultf(site, "TypeError: %s() takes no keyword arguments", name)
		}
		items := args
		if len(args) == 1 {
			var err error
			if items, err = e.iterValues(site, args[0]); err != nil {
				return nil, err
			}
		}
		if len(items) == 0 {
			return nil, faultf(site, "ValueError: %s() arg is an empty sequence", name)
		}
		best := items[0]
		for _, v := range items[1:] {
			c, ok := e.order(v, best)
			if !ok {
				return nil, faultf(site, "TypeError: '<' not supported between instances of '%s' and '%s'",
					e.d.TypeName(v), e.d.TypeName(best))
			}
			if c*want > 0 {
				best = v
			}
		}
		return best, nil
	}
}

// iterValues expands a range or string, refusing very large ranges.
func (e *evaluator) iterValues(site Node, v Value) ([]Value, error) {
	switch v := v.(type) {
	case Range:
		n := v.Len()
		if n > 1<<20 {
			return nil, faultf(site, "MemoryError: range too large")
		}
		out := make([]Value, 0, n)
		for i := int64(0); i < n; i++ {
			out = append(out, Int(v.Start+i*v.Step))
		}
		return out, nil
	case Str:
		var out []Value
		for _, r := range string(v) {
			out = append(out, Str(string(r)))
		}
		return out, nil
	}
	return nil, faultf(site, "TypeError: '%s' object is not iterable", e.d.TypeName(v))
}

// roundHalf rounds half to even in the colon dialect and half away from
// zero in the block dialect.
func (e *evaluator) roundHalf(f float64) float64 {
	if e.d == Ruby {
		return math.Round(f)
	}
	return math.RoundToEven(f)
}

func builtinRound(e *evaluator, site Node, args []Value, kwargs map[string]Value) (Value, error) {
	if err := arity(site, "round", args, kwargs, 1, 2); err != nil {
		return nil, err
	}
	x := e.numeric(args[0])
	if len(args) == 1 || args[1] == Value(None) {
		switch x := x.(type) {
		case Int:
			return x, nil
		case Float:
			f := float64(x)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, faultf(site, "ValueError: cannot convert float %s to integer", e.d.Format(x))
			}
			return e.floatToInt(site, e.roundHalf(f))
		}
		return nil, faultf(site, "TypeError: type %s doesn't define __round__ method", e.d.TypeName(args[0]))
	}
	nd, ok := e.numeric(args[1]).(Int)
	if !ok {
		return nil, faultf(site, "TypeError: '%s' object cannot be interpreted as an integer", e.d.TypeName(args[1]))
	}
	scale := math.Pow(10, float64(nd))
	switch x := x.(type) {
	case Int:
		if nd >= 0 {
			return x, nil
		}
		return e.floatToInt(site, e.roundHalf(float64(x)*scale)/scale)
	case Float:
		return Float(e.roundHalf(float64(x)*scale) / scale), nil
	}
	return nil, faultf(site, "TypeError: type %s doesn't define __round__ method", e.d.TypeName(args[0]))
}

func builtinRange(e *evaluator, site Node, args []Value, kwargs map[string]Value) (Value, error) {
	if err := arity(site, "range", args, kwargs, 1, 3); err != nil {
		return nil, err
	}
	ints := make([]int64, len(args))
	for i, a := range args {
		v, ok := e.numeric(a).(Int)
		if !ok {
			return nil, faultf(site, "TypeError: '%s' object cannot be interpreted as an integer", e.d.TypeName(a))
		}
		ints[i] = int64(v)
	}
	r := Range{Step: 1}
	switch len(ints) {
	case 1:
		r.Stop = ints[0]
	case 2:
		r.Start, r.Stop = ints[0], ints[1]
	default:
		r.Start, r.Stop, r.Step = ints[0], ints[1], ints[2]
	}
	if r.Step == 0 {
		return nil, faultf(site, "ValueError: range() arg 3 must not be zero")
	}
	return r, nil
}
