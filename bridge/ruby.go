package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/djlacavera21/Apophis/script"
)

// localName matches names Ruby treats as local variables.
var localName = regexp.MustCompile(`^[a-z_][A-Za-z0-9_]*$`)

// Prelude renders env as Ruby assignments, one per line, preceded by the
// JSON require the epilogue needs. Names are sorted so the output is
// deterministic.
func Prelude(env script.Env) (string, error) {
	var b strings.Builder
	b.WriteString("require 'json'\n")
	for _, name := range env.Names() {
		v := env[name]
		if !localName.MatchString(name) {
			return "", &script.EvalFault{Msg: fmt.Sprintf("cannot pass %q to the secondary runtime: not a local variable name", name)}
		}
		lit, err := Literal(v)
		if err != nil {
			return "", &script.EvalFault{Msg: fmt.Sprintf("cannot pass %q to the secondary runtime: %v", name, err)}
		}
		fmt.Fprintf(&b, "%s = %s\n", name, lit)
	}
	return b.String(), nil
}

// Literal renders a primitive value as a Ruby literal.
func Literal(v script.Value) (string, error) {
	switch v := v.(type) {
	case script.NoneType:
		return "nil", nil
	case script.Bool:
		return strconv.FormatBool(bool(v)), nil
	case script.Int:
		return strconv.FormatInt(int64(v), 10), nil
	case script.Float:
		f := float64(v)
		switch {
		case math.IsNaN(f):
			return "Float::NAN", nil
		case math.IsInf(f, 1):
			return "Float::INFINITY", nil
		case math.IsInf(f, -1):
			return "-Float::INFINITY", nil
		}
		s := strconv.FormatFloat(f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".e") {
			s += ".0"
		} else if mant, exp, ok := strings.Cut(s, "e"); ok && !strings.Contains(mant, ".") {
			s = mant + ".0e" + exp
		}
		return s, nil
	case script.Str:
		return quote(string(v)), nil
	}
	return "", fmt.Errorf("%s values cannot cross the bridge", v.Kind())
}

// quote renders s as a double-quoted Ruby string with interpolation
// disabled.
func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\', '#':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\x%02X`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}

// epilogue prints marker followed by a JSON object of the primitive
// top-level bindings. Non-finite floats have no JSON form and are left
// out.
func epilogue(marker string) string {
	return `__apophis_env = {}
local_variables.each do |__apophis_name|
  next if __apophis_name.to_s.start_with?("__apophis")
  __apophis_value = binding.local_variable_get(__apophis_name)
  case __apophis_value
  when Integer, String, true, false, nil
    __apophis_env[__apophis_name.to_s] = __apophis_value
  when Float
    __apophis_env[__apophis_name.to_s] = __apophis_value if __apophis_value.finite?
  end
end
$stdout.write(` + strconv.Quote(marker) + `)
$stdout.write(JSON.generate(__apophis_env))
$stdout.flush
`
}

// DecodeBindings parses the JSON object written by the epilogue. Numbers
// with a fraction or exponent become floats; others must fit in an int.
func DecodeBindings(data []byte) (script.Env, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("bridge: decoding exported bindings: %w", err)
	}
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	env := make(script.Env, len(raw))
	for _, name := range names {
		switch v := raw[name].(type) {
		case nil:
			env[name] = script.None
		case bool:
			env[name] = script.Bool(v)
		case string:
			env[name] = script.Str(v)
		case json.Number:
			if strings.ContainsAny(v.String(), ".eE") {
				f, err := v.Float64()
				if err != nil {
					return nil, fmt.Errorf("bridge: binding %s: %w", name, err)
				}
				env[name] = script.Float(f)
				continue
			}
			i, err := v.Int64()
			if err != nil {
				return nil, fmt.Errorf("bridge: binding %s: integer %s does not fit in 64 bits", name, v)
			}
			env[name] = script.Int(i)
		default:
			return nil, fmt.Errorf("bridge: binding %s has unsupported type %T", name, v)
		}
	}
	return env, nil
}
