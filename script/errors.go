package script

import (
	"errors"
	"fmt"
)

var (
	// ErrStepBudget is wrapped by the EvalFault raised when a script runs
	// more statements than its budget allows.
	ErrStepBudget = errors.New("step budget exhausted")

	// ErrRecursion is wrapped when calls nest deeper than the limit.
	ErrRecursion = errors.New("maximum recursion depth exceeded")
)

// SyntaxFault reports source the parser does not accept, including
// constructs outside the supported subset. Line is 1-based within the
// evaluated text.
type SyntaxFault struct {
	Line int
	Msg  string
}

func (f *SyntaxFault) Error() string {
	return fmt.Sprintf("line %d: syntax error: %s", f.Line, f.Msg)
}

// EvalFault reports a runtime error. Err carries a sentinel or context
// error when there is one.
type EvalFault struct {
	Line int
	Msg  string
	Err  error
}

func (f *EvalFault) Error() string {
	if f.Line > 0 {
		return fmt.Sprintf("line %d: %s", f.Line, f.Msg)
	}
	return f.Msg
}

func (f *EvalFault) Unwrap() error { return f.Err }

func syntaxf(line int, format string, args ...any) *SyntaxFault {
	return &SyntaxFault{Line: line, Msg: fmt.Sprintf(format, args...)}
}
