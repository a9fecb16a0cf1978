package script

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Dialect selects the surface conventions of a script: how values print,
// what counts as false, what / means on integers and how print behaves.
// Both dialects parse to the same tree.
type Dialect int

const (
	// Python is the colon/indentation dialect used by primary lines.
	Python Dialect = iota
	// Ruby is the block/end dialect used by secondary lines.
	Ruby
)

func (d Dialect) String() string {
	if d == Ruby {
		return "ruby"
	}
	return "python"
}

// ParseDialect maps a name ("python", "ruby", or the marker kinds
// "primary" and "secondary") to a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "python", "py", "primary":
		return Python, nil
	case "ruby", "rb", "secondary":
		return Ruby, nil
	}
	return Python, fmt.Errorf("unknown dialect %q", name)
}

// Truthy reports whether v counts as true in a condition.
func (d Dialect) Truthy(v Value) bool {
	if d == Ruby {
		switch v := v.(type) {
		case NoneType:
			return false
		case Bool:
			return bool(v)
		}
		return true
	}
	switch v := v.(type) {
	case NoneType:
		return false
	case Bool:
		return bool(v)
	case Int:
		return v != 0
	case Float:
		return v != 0
	case Str:
		return v != ""
	case Range:
		return v.Len() > 0
	}
	return true
}

// TypeName is the name the dialect uses for the type of v in messages.
func (d Dialect) TypeName(v Value) string {
	if d == Ruby {
		switch v := v.(type) {
		case NoneType:
			return "NilClass"
		case Bool:
			if v {
				return "TrueClass"
			}
			return "FalseClass"
		case Int:
			return "Integer"
		case Float:
			return "Float"
		case Str:
			return "String"
		case Range:
			return "Range"
		}
		return "Method"
	}
	switch v.(type) {
	case NoneType:
		return "NoneType"
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Float:
		return "float"
	case Str:
		return "str"
	case Range:
		return "range"
	case *Builtin:
		return "builtin_function_or_method"
	}
	return "function"
}

// Format renders v the way print and string conversion do.
func (d Dialect) Format(v Value) string {
	switch v := v.(type) {
	case NoneType:
		if d == Ruby {
			return ""
		}
		return "None"
	case Bool:
		switch {
		case d == Ruby && bool(v):
			return "true"
		case d == Ruby:
			return "false"
		case bool(v):
			return "True"
		}
		return "False"
	case Int:
		return strconv.FormatInt(int64(v), 10)
	case Float:
		return d.formatFloat(float64(v))
	case Str:
		return string(v)
	case Range:
		if d == Ruby {
			if v.Inclusive {
				return fmt.Sprintf("%d..%d", v.Start, v.Stop-1)
			}
			return fmt.Sprintf("%d...%d", v.Start, v.Stop)
		}
		if v.Step != 1 {
			return fmt.Sprintf("range(%d, %d, %d)", v.Start, v.Stop, v.Step)
		}
		return fmt.Sprintf("range(%d, %d)", v.Start, v.Stop)
	case *Function:
		if d == Ruby {
			return "#<Method: " + v.Name + ">"
		}
		return "<function " + v.Name + ">"
	case *Builtin:
		if d == Ruby {
			return "#<Method: Kernel#" + v.Name + ">"
		}
		return "<built-in function " + v.Name + ">"
	}
	return fmt.Sprint(v)
}

// Inspect renders v the way repr() and p do.
func (d Dialect) Inspect(v Value) string {
	switch v := v.(type) {
	case Str:
		if d == Ruby {
			return strconv.Quote(string(v))
		}
		return pyQuote(string(v))
	case NoneType:
		if d == Ruby {
			return "nil"
		}
	}
	return d.Format(v)
}

func (d Dialect) formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		if d == Ruby {
			return "Infinity"
		}
		return "inf"
	case math.IsInf(f, -1):
		if d == Ruby {
			return "-Infinity"
		}
		return "-inf"
	case math.IsNaN(f):
		if d == Ruby {
			return "NaN"
		}
		return "nan"
	}
	abs := math.Abs(f)
	if abs == 0 || (abs >= 1e-4 && abs < 1e16) {
		s := strconv.FormatFloat(f, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	if d == Ruby {
		mant, exp, _ := strings.Cut(s, "e")
		if !strings.Contains(mant, ".") {
			mant += ".0"
		}
		s = mant + "e" + exp
	}
	return s
}

// pyQuote quotes s with single quotes unless s contains one and no
// double quote.
func pyQuote(s string) string {
	q := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		q = '"'
	}
	var b strings.Builder
	b.WriteByte(q)
	for _, r := range s {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == rune(q):
			b.WriteByte('\\')
			b.WriteByte(q)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\t':
			b.WriteString(`\t`)
		case r == '\r':
			b.WriteString(`\r`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, `\x%02x`, r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte(q)
	return b.String()
}
