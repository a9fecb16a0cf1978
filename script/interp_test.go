package script

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func run(t *testing.T, d Dialect, src string) string {
	t.Helper()
	out, _, err := New(d).Eval(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Eval(%q) error: %v", src, err)
	}
	return out
}

func TestInterpreterColonDialect(t *testing.T) {
	tests := []struct {
		desc string
		src  string
		want string
	}{
		{"while loop", "i = 1\nwhile i < 8:\n    print(i, end=' ')\n    i += 2\n", "1 3 5 7 "},
		{"recursion", "def fib(n):\n    if n < 2:\n        return n\n    return fib(n - 1) + fib(n - 2)\nprint(fib(15))\n", "610\n"},
		{"f-string", "x = 3\nprint(f\"x={x} sq={x*x:>4} {{ok}} {'s'!r}\")\n", "x=3 sq=   9 {ok} 's'\n"},
		{"format specs", "print(f\"{3.14159:.2f}|{42:05d}|{1234567:,}|{'ab':^6}|\")\n", "3.14|00042|1,234,567|  ab  |\n"},
		{"builtins", "print(int(\"42\") + 1, float(3) / 2, str(10) + \"x\", bool(0), len(\"abc\"), min(3, 1, 2), max(range(5)), abs(-2), round(3.14159, 2))\n",
			"43 1.5 10x False 3 1 4 2 3.14\n"},
		{"division", "print(7 / 2, 7 // 2, -7 // 2, -7 % 3, 2 ** 10, 2 ** -1)\n", "3.5 3 -4 2 1024 0.5\n"},
		{"strings", "print(\"ab\" * 3, 3 * \"x\", \"b\" in \"abc\", 3 in range(5))\n", "ababab xxx True True\n"},
		{"global", "count = 0\ndef bump():\n    global count\n    count += 1\nbump()\nbump()\nprint(count)\n", "2\n"},
		{"break and continue", "for i in range(10):\n    if i % 2 == 0:\n        continue\n    if i > 7:\n        break\n    print(i, end='')\n", "1357"},
		{"defaults and keywords", "def greet(name, greeting='Hello'):\n    return f'{greeting}, {name}!'\nprint(greet('Ada'))\nprint(greet('Bob', greeting='Hi'))\n",
			"Hello, Ada!\nHi, Bob!\n"},
		{"ternary and logic", "x = 5\nprint('mid' if 1 < x < 10 else 'out', None, True and 0)\n", "mid None 0\n"},
		{"floats", "print(0.1 + 0.2, 1e20, 10 / 4, 2.0)\n", "0.30000000000000004 1e+20 2.5 2.0\n"},
		{"parallel assignment", "a, b = 1, 2\na, b = b, a\nprint(a, b, sep='-')\n", "2-1\n"},
		{"round half even", "print(round(2.5), round(3.5), round(-0.5))\n", "2 4 0\n"},
		{"semicolons", "x = 1; y = 2; print(x + y)\n", "3\n"},
		{"string iteration", "for c in 'abc':\n    print(c * 2, end='')\nprint()\n", "aabbcc\n"},
	}
	for _, tc := range tests {
		if got := run(t, Python, tc.src); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.desc, got, tc.want)
		}
	}
}

func TestInterpreterBlockDialect(t *testing.T) {
	tests := []struct {
		desc string
		src  string
		want string
	}{
		{"until and print", "i = 0\nuntil i == 3\n  print i\n  i += 1\nend\nputs\n", "012\n"},
		{"inclusive range", "for i in 1..3 do\n  print i\nend\nputs\n", "123\n"},
		{"implicit return", "def sq(x)\n  x * x\nend\nputs sq(4)\n", "16\n"},
		{"next modifier", "for i in 1..5 do\n  next if i % 2 == 1\n  print i\nend\n", "24"},
		{"if and unless modifiers", "x = 5\nputs \"big\" if x > 3\nputs \"small\" unless x > 3\n", "big\n"},
		{"formatting", "puts 7 / 2, 7.0 / 2, nil, true\np \"hi\"\n", "3\n3.5\n\ntrue\n\"hi\"\n"},
		{"interpolation", "name = \"Ruby\"\nputs \"hi #{name}, #{1 + 2}\"\n", "hi Ruby, 3\n"},
		{"while modifier", "i = 0\ni += 1 while i < 5\nputs i\n", "5\n"},
		{"bare method call", "def hello\n  puts \"hello\"\nend\nhello\n", "hello\n"},
		{"zero is truthy", "puts \"yes\" if 0\n", "yes\n"},
		{"elsif", "x = 2\nif x == 1\n  puts \"one\"\nelsif x == 2\n  puts \"two\"\nelse\n  puts \"many\"\nend\n", "two\n"},
		{"floor division", "puts -7 / 2\n", "-4\n"},
		{"large float", "puts 1e20\n", "1.0e+20\n"},
	}
	for _, tc := range tests {
		if got := run(t, Ruby, tc.src); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.desc, got, tc.want)
		}
	}
}

func TestEvalEnvironment(t *testing.T) {
	in := New(Python)
	env := Env{"x": Int(2)}
	out, next, err := in.Eval(context.Background(), "y = x * 21\n", env)
	if err != nil {
		t.Fatalf("Eval error: %v", err)
	}
	if out != "" {
		t.Errorf("out = %q, want empty", out)
	}
	if next["y"] != Int(42) || next["x"] != Int(2) {
		t.Errorf("env = %v", next)
	}
	if _, ok := env["y"]; ok {
		t.Error("Eval mutated the caller's environment")
	}

	// State carries across evaluations through the returned env.
	out, _, err = in.Eval(context.Background(), "print(x + y)\n", next)
	if err != nil || out != "44\n" {
		t.Errorf("second Eval = %q, %v", out, err)
	}
}

func TestFunctionsKeepTheirDialect(t *testing.T) {
	_, env, err := New(Python).Eval(context.Background(), "def half(n):\n    return n / 2\n", nil)
	if err != nil {
		t.Fatalf("Eval error: %v", err)
	}
	out, _, err := New(Ruby).Eval(context.Background(), "puts half(7)\n", env)
	if err != nil {
		t.Fatalf("Eval error: %v", err)
	}
	if out != "3.5\n" {
		t.Errorf("got %q, want %q", out, "3.5\n")
	}
}

func TestEvalFaults(t *testing.T) {
	tests := []struct {
		dialect Dialect
		src     string
		line    int
		msg     string
	}{
		{Python, "print(y)", 1, "NameError: name 'y' is not defined"},
		{Ruby, "puts y", 1, "undefined local variable or method 'y'"},
		{Python, "x = 1\nx = 'a' + x", 2, "unsupported operand type(s) for +: 'str' and 'int'"},
		{Python, "def f(a):\n    return a\nf()", 3, "missing required argument 'a'"},
		{Python, "def f(a):\n    return a\nf(1, 2)", 3, "takes 1 positional arguments but 2 were given"},
		{Python, "f = 1\nf()", 2, "'int' object is not callable"},
		{Python, "for c in 5:\n    pass", 1, "'int' object is not iterable"},
		{Python, "print(1 // 0)", 1, "ZeroDivisionError: division by zero"},
		{Ruby, "puts 1 / 0", 1, "ZeroDivisionError: divided by 0"},
		{Python, "print(int('x'))", 1, "invalid literal for int()"},
		{Python, "x = 1 < 'a'", 1, "'<' not supported"},
		{Python, "print(f'{1.5:d}')", 1, "unknown format code 'd'"},
		{Python, "print(1, bogus=2)", 1, "invalid keyword argument"},
	}
	for _, tc := range tests {
		_, env, err := New(tc.dialect).Eval(context.Background(), tc.src, Env{})
		var ef *EvalFault
		if !errors.As(err, &ef) {
			t.Errorf("Eval(%q) error = %v, want *EvalFault", tc.src, err)
			continue
		}
		if env != nil {
			t.Errorf("Eval(%q) returned an env on failure", tc.src)
		}
		if ef.Line != tc.line {
			t.Errorf("Eval(%q) line = %d, want %d", tc.src, ef.Line, tc.line)
		}
		if !strings.Contains(ef.Msg, tc.msg) {
			t.Errorf("Eval(%q) message = %q, want it to contain %q", tc.src, ef.Msg, tc.msg)
		}
	}
}

func TestIntegerOverflow(t *testing.T) {
	tests := []struct {
		dialect Dialect
		src     string
	}{
		{Python, "print(2 ** 100)"},
		{Python, "print(9223372036854775807 + 1)"},
		{Python, "print((-9223372036854775807 - 1) // -1)"},
		{Python, "print(-9223372036854775807 - 2)"},
		{Python, "print(3037000500 * 3037000500)"},
		{Python, "x = -9223372036854775807 - 1\nprint(-x)"},
		{Python, "print(abs(-9223372036854775807 - 1))"},
		{Python, "print(int(1e300))"},
		{Python, "print(round(1e19))"},
		{Ruby, "puts 2 ** 64"},
		{Ruby, "puts((-9223372036854775807 - 1) / -1)"},
	}
	for _, tc := range tests {
		out, _, err := New(tc.dialect).Eval(context.Background(), tc.src, Env{})
		var ef *EvalFault
		if !errors.As(err, &ef) {
			t.Errorf("Eval(%q) = %q, %v, want *EvalFault", tc.src, out, err)
			continue
		}
		if !strings.Contains(ef.Msg, "OverflowError") {
			t.Errorf("Eval(%q) message = %q, want OverflowError", tc.src, ef.Msg)
		}
	}
}

func TestIntegerBounds(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"print(2 ** 62)", "4611686018427387904\n"},
		{"print(9223372036854775806 + 1)", "9223372036854775807\n"},
		{"print(-9223372036854775807 - 1)", "-9223372036854775808\n"},
		{"print((-2) ** 63)", "-9223372036854775808\n"},
		{"print(1 ** 1000000)", "1\n"},
		{"print((-1) ** 1000001)", "-1\n"},
		{"print(-7 // 2)", "-4\n"},
	}
	for _, tc := range tests {
		if got := run(t, Python, tc.src); got != tc.want {
			t.Errorf("Eval(%q) = %q, want %q", tc.src, got, tc.want)
		}
	}
}

func TestEvalSyntaxFault(t *testing.T) {
	_, _, err := EvalScript("if x\n", nil)
	var sf *SyntaxFault
	if !errors.As(err, &sf) {
		t.Fatalf("error = %v, want *SyntaxFault", err)
	}
}

func TestPartialOutputOnFault(t *testing.T) {
	out, env, err := EvalScript("print('a')\nprint(1 / 0)\nprint('b')\n", nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if out != "a\n" {
		t.Errorf("out = %q, want %q", out, "a\n")
	}
	if env != nil {
		t.Errorf("env = %v, want nil", env)
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error %q does not name line 2", err)
	}
}

func TestRecursionLimit(t *testing.T) {
	in := New(Python, WithMaxDepth(50))
	_, _, err := in.Eval(context.Background(), "def f(n):\n    return f(n + 1)\nf(0)\n", nil)
	if !errors.Is(err, ErrRecursion) {
		t.Fatalf("error = %v, want ErrRecursion", err)
	}
}

func TestStepBudget(t *testing.T) {
	in := New(Python, WithMaxSteps(100))
	out, _, err := in.Eval(context.Background(), "print('start')\nwhile True:\n    pass\n", nil)
	if !errors.Is(err, ErrStepBudget) {
		t.Fatalf("error = %v, want ErrStepBudget", err)
	}
	if out != "start\n" {
		t.Errorf("out = %q", out)
	}
}

func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := New(Python).Eval(ctx, "x = 1\n", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err = New(Ruby, WithMaxSteps(0)).Eval(ctx, "while true\nend\n", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want context.DeadlineExceeded", err)
	}
}

func TestDialectFormat(t *testing.T) {
	tests := []struct {
		v      Value
		python string
		ruby   string
	}{
		{None, "None", ""},
		{Bool(true), "True", "true"},
		{Int(-3), "-3", "-3"},
		{Float(2), "2.0", "2.0"},
		{Float(1e-5), "1e-05", "1.0e-05"},
		{Str("hi"), "hi", "hi"},
		{Range{Start: 0, Stop: 3, Step: 1}, "range(0, 3)", "0...3"},
	}
	for _, tc := range tests {
		if got := Python.Format(tc.v); got != tc.python {
			t.Errorf("Python.Format(%#v) = %q, want %q", tc.v, got, tc.python)
		}
		if got := Ruby.Format(tc.v); got != tc.ruby {
			t.Errorf("Ruby.Format(%#v) = %q, want %q", tc.v, got, tc.ruby)
		}
	}
	if got := Python.Inspect(Str("it's")); got != `"it's"` {
		t.Errorf("Python.Inspect = %s", got)
	}
	if got := Ruby.Inspect(None); got != "nil" {
		t.Errorf("Ruby.Inspect(nil) = %s", got)
	}
}

func TestDialectTruthy(t *testing.T) {
	for _, v := range []Value{Int(0), Float(0), Str("")} {
		if Python.Truthy(v) {
			t.Errorf("Python.Truthy(%#v) = true", v)
		}
		if !Ruby.Truthy(v) {
			t.Errorf("Ruby.Truthy(%#v) = false", v)
		}
	}
	if Ruby.Truthy(None) || Ruby.Truthy(Bool(false)) {
		t.Error("nil and false must be falsy")
	}
}

func TestParseDialect(t *testing.T) {
	for name, want := range map[string]Dialect{"python": Python, "PY": Python, "primary": Python, "ruby": Ruby, "rb": Ruby, "secondary": Ruby} {
		d, err := ParseDialect(name)
		if err != nil || d != want {
			t.Errorf("ParseDialect(%q) = %v, %v", name, d, err)
		}
	}
	if _, err := ParseDialect("perl"); err == nil {
		t.Error("ParseDialect(perl) succeeded")
	}
}

func TestConcurrentEval(t *testing.T) {
	in := New(Python)
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			out, _, err := in.Eval(context.Background(), "total = 0\nfor i in range(n):\n    total += i\nprint(total)\n", Env{"n": Int(n)})
			if err != nil {
				errs <- err
				return
			}
			want := Python.Format(Int(n*(n-1)/2)) + "\n"
			if out != want {
				errs <- errors.New("got " + out + " want " + want)
			}
		}(i * 10)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
