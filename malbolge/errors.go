package malbolge

import (
	"errors"
	"fmt"
)

// ErrStepBudget is wrapped by a RuntimeFault when a machine runs out of
// its configured step budget.
var ErrStepBudget = errors.New("step budget exhausted")

// MalformedProgram reports source text that cannot be loaded.
type MalformedProgram struct {
	Addr   int    // memory address the character would occupy
	Offset int    // byte offset in the source text, -1 when not applicable
	Char   byte   // offending character
	Reason string // human readable cause
}

func (e *MalformedProgram) Error() string {
	if e.Offset < 0 {
		return "malbolge: malformed program: " + e.Reason
	}
	return fmt.Sprintf("malbolge: malformed program at address %d (offset %d, %q): %s",
		e.Addr, e.Offset, e.Char, e.Reason)
}

// RuntimeFault reports an invariant violation during execution.
type RuntimeFault struct {
	Step    uint64 // instructions executed before the fault
	A, C, D Word   // registers at the fault
	Err     error  // underlying cause
}

func (e *RuntimeFault) Error() string {
	return fmt.Sprintf("malbolge: runtime fault after %d steps (a=%d c=%d d=%d): %v",
		e.Step, e.A, e.C, e.D, e.Err)
}

func (e *RuntimeFault) Unwrap() error { return e.Err }
