package script

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// maxStringLen caps the result of string repetition.
const maxStringLen = 1 << 24

// numeric treats booleans as integers in the colon dialect.
func (e *evaluator) numeric(v Value) Value {
	if b, ok := v.(Bool); ok && e.d == Python {
		if b {
			return Int(1)
		}
		return Int(0)
	}
	return v
}

func (e *evaluator) unary(n Node, op string, v Value) (Value, error) {
	switch op {
	case "not", "!":
		return Bool(!e.d.Truthy(v)), nil
	case "-":
		switch x := e.numeric(v).(type) {
		case Int:
			if x == math.MinInt64 {
				return nil, e.overflow(n)
			}
			return -x, nil
		case Float:
			return -x, nil
		}
	case "+":
		switch x := e.numeric(v).(type) {
		case Int, Float:
			return x, nil
		}
	}
	return nil, faultf(n, "TypeError: bad operand type for unary %s: '%s'", op, e.d.TypeName(v))
}

func (e *evaluator) binary(n Node, op string, a, b Value) (Value, error) {
	if s, ok := a.(Str); ok {
		switch op {
		case "+":
			if t, ok := b.(Str); ok {
				return s + t, nil
			}
		case "*":
			if k, ok := e.numeric(b).(Int); ok {
				return e.repeat(n, s, k)
			}
		}
		return nil, e.operandError(n, op, a, b)
	}
	if t, ok := b.(Str); ok && op == "*" && e.d == Python {
		if k, ok := e.numeric(a).(Int); ok {
			return e.repeat(n, t, k)
		}
	}

	switch x := e.numeric(a).(type) {
	case Int:
		switch y := e.numeric(b).(type) {
		case Int:
			return e.intOp(n, op, x, y)
		case Float:
			return e.floatOp(n, op, Float(x), y)
		}
	case Float:
		switch y := e.numeric(b).(type) {
		case Int:
			return e.floatOp(n, op, x, Float(y))
		case Float:
			return e.floatOp(n, op, x, y)
		}
	}
	return nil, e.operandError(n, op, a, b)
}

func (e *evaluator) operandError(n Node, op string, a, b Value) error {
	return faultf(n, "TypeError: unsupported operand type(s) for %s: '%s' and '%s'",
		op, e.d.TypeName(a), e.d.TypeName(b))
}

func (e *evaluator) zeroDivision(n Node) error {
	if e.d == Ruby {
		return faultf(n, "ZeroDivisionError: divided by 0")
	}
	return faultf(n, "ZeroDivisionError: division by zero")
}

func (e *evaluator) repeat(n Node, s Str, k Int) (Value, error) {
	if k <= 0 || s == "" {
		return Str(""), nil
	}
	if int64(k) > int64(maxStringLen/len(s)) {
		return nil, faultf(n, "MemoryError: string repetition too large")
	}
	return Str(strings.Repeat(string(s), int(k))), nil
}

// overflow reports an Int result outside 64 bits.
func (e *evaluator) overflow(n Node) error {
	return faultf(n, "OverflowError: integer overflow")
}

// checked wraps a result that may not fit in 64 bits.
func (e *evaluator) checked(n Node, v Int, ok bool) (Value, error) {
	if !ok {
		return nil, e.overflow(n)
	}
	return v, nil
}

func (e *evaluator) intOp(n Node, op string, x, y Int) (Value, error) {
	switch op {
	case "+":
		v, ok := addInt(x, y)
		return e.checked(n, v, ok)
	case "-":
		v, ok := subInt(x, y)
		return e.checked(n, v, ok)
	case "*":
		v, ok := mulInt(x, y)
		return e.checked(n, v, ok)
	case "/":
		if y == 0 {
			return nil, e.zeroDivision(n)
		}
		if e.d == Ruby {
			v, ok := floorDiv(x, y)
			return e.checked(n, v, ok)
		}
		return Float(x) / Float(y), nil
	case "//":
		if y == 0 {
			return nil, e.zeroDivision(n)
		}
		v, ok := floorDiv(x, y)
		return e.checked(n, v, ok)
	case "%":
		if y == 0 {
			return nil, e.zeroDivision(n)
		}
		return floorMod(x, y), nil
	case "**":
		if y < 0 {
			if x == 0 {
				return nil, e.zeroDivision(n)
			}
			return Float(math.Pow(float64(x), float64(y))), nil
		}
		v, ok := ipow(x, y)
		return e.checked(n, v, ok)
	}
	return nil, faultf(n, "unsupported operator %s", op)
}

func (e *evaluator) floatOp(n Node, op string, x, y Float) (Value, error) {
	switch op {
	case "+":
		return x + y, nil
	case "-":
		return x - y, nil
	case "*":
		return x * y, nil
	case "/":
		if y == 0 && e.d == Python {
			return nil, e.zeroDivision(n)
		}
		return x / y, nil
	case "//":
		if y == 0 {
			return nil, e.zeroDivision(n)
		}
		return Float(math.Floor(float64(x / y))), nil
	case "%":
		if y == 0 {
			if e.d == Ruby {
				return Float(math.NaN()), nil
			}
			return nil, e.zeroDivision(n)
		}
		m := math.Mod(float64(x), float64(y))
		if m != 0 && (m < 0) != (y < 0) {
			m += float64(y)
		}
		return Float(m), nil
	case "**":
		if x == 0 && y < 0 && e.d == Python {
			return nil, e.zeroDivision(n)
		}
		return Float(math.Pow(float64(x), float64(y))), nil
	}
	return nil, faultf(n, "unsupported operator %s", op)
}

// floatToInt converts an integral float, failing outside the Int range.
func (e *evaluator) floatToInt(n Node, f float64) (Value, error) {
	if f < -(1<<63) || f >= 1<<63 {
		return nil, e.overflow(n)
	}
	return Int(f), nil
}

func addInt(x, y Int) (Int, bool) {
	s := x + y
	return s, (s > x) == (y > 0)
}

func subInt(x, y Int) (Int, bool) {
	d := x - y
	return d, (d < x) == (y > 0)
}

func mulInt(x, y Int) (Int, bool) {
	if x == 0 || y == 0 {
		return 0, true
	}
	if (x == -1 && y == math.MinInt64) || (y == -1 && x == math.MinInt64) {
		return 0, false
	}
	p := x * y
	return p, p/y == x
}

// floorDiv fails only for MinInt64 / -1.
func floorDiv(x, y Int) (Int, bool) {
	if x == math.MinInt64 && y == -1 {
		return 0, false
	}
	q := x / y
	if x%y != 0 && (x < 0) != (y < 0) {
		q--
	}
	return q, true
}

func floorMod(x, y Int) Int {
	m := x % y
	if m != 0 && (m < 0) != (y < 0) {
		m += y
	}
	return m
}

func ipow(x, y Int) (Int, bool) {
	result := Int(1)
	for y > 0 {
		var ok bool
		if y&1 == 1 {
			if result, ok = mulInt(result, x); !ok {
				return 0, false
			}
		}
		y >>= 1
		if y > 0 {
			if x, ok = mulInt(x, x); !ok {
				return 0, false
			}
		}
	}
	return result, true
}

// ---------------------------------------------------------------------------
// Comparison
// ---------------------------------------------------------------------------

func (e *evaluator) compare(n Node, op string, a, b Value) (bool, error) {
	switch op {
	case "==":
		return e.equal(a, b), nil
	case "!=":
		return !e.equal(a, b), nil
	case "is":
		return a == b, nil
	case "is not":
		return a != b, nil
	case "in", "not in":
		found, err := e.contains(n, b, a)
		return found == (op == "in"), err
	}
	c, ok := e.order(a, b)
	if !ok {
		return false, faultf(n, "TypeError: '%s' not supported between instances of '%s' and '%s'",
			op, e.d.TypeName(a), e.d.TypeName(b))
	}
	switch op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	}
	return false, faultf(n, "unsupported comparison %s", op)
}

func (e *evaluator) equal(a, b Value) bool {
	switch x := e.numeric(a).(type) {
	case Int:
		switch y := e.numeric(b).(type) {
		case Int:
			return x == y
		case Float:
			return Float(x) == y
		}
	case Float:
		switch y := e.numeric(b).(type) {
		case Int:
			return x == Float(y)
		case Float:
			return x == y
		}
	}
	return a == b
}

// order compares numbers with numbers and strings with strings.
func (e *evaluator) order(a, b Value) (int, bool) {
	if s, ok := a.(Str); ok {
		t, ok := b.(Str)
		if !ok {
			return 0, false
		}
		return strings.Compare(string(s), string(t)), true
	}
	var x, y float64
	switch v := e.numeric(a).(type) {
	case Int:
		if w, ok := e.numeric(b).(Int); ok {
			switch {
			case v < w:
				return -1, true
			case v > w:
				return 1, true
			}
			return 0, true
		}
		x = float64(v)
	case Float:
		x = float64(v)
	default:
		return 0, false
	}
	switch w := e.numeric(b).(type) {
	case Int:
		y = float64(w)
	case Float:
		y = float64(w)
	default:
		return 0, false
	}
	switch {
	case x < y:
		return -1, true
	case x > y:
		return 1, true
	}
	return 0, true
}

func (e *evaluator) contains(n Node, container, item Value) (bool, error) {
	switch c := container.(type) {
	case Str:
		s, ok := item.(Str)
		if !ok {
			return false, faultf(n, "TypeError: 'in <string>' requires string as left operand, not %s", e.d.TypeName(item))
		}
		return strings.Contains(string(c), string(s)), nil
	case Range:
		i, ok := e.numeric(item).(Int)
		if !ok {
			return false, nil
		}
		v := int64(i)
		switch {
		case c.Step > 0:
			return v >= c.Start && v < c.Stop && (v-c.Start)%c.Step == 0, nil
		case c.Step < 0:
			return v <= c.Start && v > c.Stop && (c.Start-v)%(-c.Step) == 0, nil
		}
		return false, nil
	}
	return false, faultf(n, "TypeError: argument of type '%s' is not iterable", e.d.TypeName(container))
}

// ---------------------------------------------------------------------------
// Format specs: [[fill]align][sign][0][width][,][.precision][type]
// ---------------------------------------------------------------------------

type fmtSpec struct {
	fill  rune
	align rune
	sign  rune
	zero  bool
	width int
	comma bool
	prec  int
	verb  rune
}

func parseSpec(spec string) (fmtSpec, bool) {
	fs := fmtSpec{fill: ' ', prec: -1}
	r := []rune(spec)
	isAlign := func(c rune) bool { return c == '<' || c == '>' || c == '^' || c == '=' }
	i := 0
	switch {
	case len(r) >= 2 && isAlign(r[1]):
		fs.fill, fs.align = r[0], r[1]
		i = 2
	case len(r) >= 1 && isAlign(r[0]):
		fs.align = r[0]
		i = 1
	}
	if i < len(r) && (r[i] == '+' || r[i] == '-' || r[i] == ' ') {
		fs.sign = r[i]
		i++
	}
	if i < len(r) && r[i] == '0' {
		fs.zero = true
		i++
	}
	start := i
	for i < len(r) && r[i] >= '0' && r[i] <= '9' {
		i++
	}
	if i > start {
		fs.width, _ = strconv.Atoi(string(r[start:i]))
	}
	if i < len(r) && r[i] == ',' {
		fs.comma = true
		i++
	}
	if i < len(r) && r[i] == '.' {
		i++
		start = i
		for i < len(r) && r[i] >= '0' && r[i] <= '9' {
			i++
		}
		if i == start {
			return fs, false
		}
		fs.prec, _ = strconv.Atoi(string(r[start:i]))
	}
	if i < len(r) {
		if !strings.ContainsRune("dfFeEgGs%", r[i]) {
			return fs, false
		}
		fs.verb = r[i]
		i++
	}
	return fs, i == len(r)
}

func (e *evaluator) formatSpec(n Node, v Value, spec string) (string, error) {
	fs, ok := parseSpec(spec)
	if !ok {
		return "", faultf(n, "ValueError: invalid format specifier '%s'", spec)
	}
	num := e.numeric(v)
	var s string
	isNum := false
	switch fs.verb {
	case 'd':
		i, ok := num.(Int)
		if !ok {
			return "", faultf(n, "ValueError: unknown format code 'd' for object of type '%s'", e.d.TypeName(v))
		}
		s, isNum = strconv.FormatInt(int64(i), 10), true
	case 'f', 'F', 'e', 'E', 'g', 'G', '%':
		var f float64
		switch x := num.(type) {
		case Int:
			f = float64(x)
		case Float:
			f = float64(x)
		default:
			return "", faultf(n, "ValueError: unknown format code '%c' for object of type '%s'", fs.verb, e.d.TypeName(v))
		}
		prec := fs.prec
		if prec < 0 {
			prec = 6
		}
		switch fs.verb {
		case '%':
			s = strconv.FormatFloat(f*100, 'f', prec, 64) + "%"
		case 'F':
			s = strconv.FormatFloat(f, 'f', prec, 64)
		default:
			s = strconv.FormatFloat(f, byte(fs.verb), prec, 64)
		}
		isNum = true
	default:
		switch x := num.(type) {
		case Int:
			s, isNum = strconv.FormatInt(int64(x), 10), true
		case Float:
			s, isNum = e.d.Format(x), true
			if fs.prec >= 0 {
				s = strconv.FormatFloat(float64(x), 'g', fs.prec, 64)
			}
		default:
			s = e.d.Format(v)
			if fs.prec >= 0 && utf8.RuneCountInString(s) > fs.prec {
				s = string([]rune(s)[:fs.prec])
			}
		}
	}

	if isNum {
		if fs.comma {
			s = groupThousands(s)
		}
		if fs.sign == '+' && !strings.HasPrefix(s, "-") {
			s = "+" + s
		} else if fs.sign == ' ' && !strings.HasPrefix(s, "-") {
			s = " " + s
		}
		if fs.zero && fs.align == 0 {
			fs.fill, fs.align = '0', '='
		}
		if fs.align == 0 {
			fs.align = '>'
		}
	} else if fs.align == 0 {
		fs.align = '<'
	}
	return pad(s, fs), nil
}

func pad(s string, fs fmtSpec) string {
	gap := fs.width - utf8.RuneCountInString(s)
	if gap <= 0 {
		return s
	}
	fill := strings.Repeat(string(fs.fill), gap)
	switch fs.align {
	case '<':
		return s + fill
	case '^':
		left := strings.Repeat(string(fs.fill), gap/2)
		return left + s + strings.Repeat(string(fs.fill), gap-gap/2)
	case '=':
		if s != "" && (s[0] == '-' || s[0] == '+' || s[0] == ' ') {
			return s[:1] + fill + s[1:]
		}
	}
	return fill + s
}

// groupThousands inserts commas into the integer part of a number.
func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexAny(s, ".e%"); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}
	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return sign + b.String() + frac
}
