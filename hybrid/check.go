package hybrid

import (
	"errors"
	"fmt"
	"strings"

	"github.com/djlacavera21/Apophis/malbolge"
	"github.com/djlacavera21/Apophis/script"
)

// Severity grades a diagnostic.
type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityWarning
)

// Diagnostic is a problem found without running the program. Line and
// Column are 1-based; Column is 0 when the whole line is meant.
type Diagnostic struct {
	Line     int
	Column   int
	Severity Severity
	Kind     Kind
	Message  string
}

func (d Diagnostic) String() string {
	if d.Column > 0 {
		return fmt.Sprintf("%d:%d: %s: %s", d.Line, d.Column, d.Kind, d.Message)
	}
	return fmt.Sprintf("%d: %s: %s", d.Line, d.Kind, d.Message)
}

// Check reports malformed exotic characters and script syntax faults in
// src. Secondary segments are checked against the built-in block
// dialect; the subprocess runtime may accept more.
func Check(src string) []Diagnostic {
	var out []Diagnostic
	lines := strings.Split(src, "\n")
	for _, seg := range Segments(src) {
		switch seg.Kind {
		case Primary, Secondary:
			d := script.Python
			if seg.Kind == Secondary {
				d = script.Ruby
			}
			_, err := script.Parse(seg.Text, d)
			var sf *script.SyntaxFault
			if errors.As(err, &sf) {
				line := seg.SourceLine(sf.Line)
				if line == 0 {
					line = seg.Lines[len(seg.Lines)-1]
				}
				out = append(out, Diagnostic{Line: line, Severity: SeverityError, Kind: seg.Kind, Message: sf.Msg})
			}
		case Exotic:
			out = append(out, checkExotic(seg, lines)...)
		}
	}
	return out
}

// checkExotic reports every character of seg that would not load.
func checkExotic(seg Segment, lines []string) []Diagnostic {
	var out []Diagnostic
	addr := 0
	for _, n := range seg.Lines {
		line := strings.TrimSuffix(lines[n-1], "\r")
		for col := 0; col < len(line); col++ {
			ch := line[col]
			if isSpace(ch) {
				continue
			}
			if msg := cellProblem(ch, addr); msg != "" {
				out = append(out, Diagnostic{Line: n, Column: col + 1, Severity: SeverityError, Kind: Exotic, Message: msg})
			}
			addr++
		}
	}
	if addr > malbolge.MemSize {
		out = append(out, Diagnostic{Line: seg.FirstLine(), Severity: SeverityError, Kind: Exotic,
			Message: "program does not fit in memory"})
	}
	return out
}

func cellProblem(ch byte, addr int) string {
	if ch < 33 || ch > 126 {
		return fmt.Sprintf("character %q is outside 33..126", ch)
	}
	if !malbolge.Decode(malbolge.Word(ch), malbolge.Word(addr%malbolge.MemSize)).Valid() {
		return fmt.Sprintf("%q does not decode to an instruction at address %d", ch, addr)
	}
	return ""
}

func isSpace(ch byte) bool {
	switch ch {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// Cell describes the exotic instruction at a source position.
type Cell struct {
	Addr int
	Char byte
	Op   malbolge.Opcode
}

// CellAt returns the exotic cell at 1-based line and 0-based byte column
// of src. ok is false when the position is not on exotic code.
func CellAt(src string, line, col int) (cell Cell, ok bool) {
	lines := strings.Split(src, "\n")
	for _, seg := range Segments(src) {
		if seg.Kind != Exotic || line < seg.FirstLine() || line > seg.Lines[len(seg.Lines)-1] {
			continue
		}
		addr := 0
		for _, n := range seg.Lines {
			text := lines[n-1]
			for c := 0; c < len(text); c++ {
				ch := text[c]
				if isSpace(ch) {
					continue
				}
				if n == line && c == col {
					op := malbolge.Decode(malbolge.Word(ch), malbolge.Word(addr%malbolge.MemSize))
					return Cell{Addr: addr, Char: ch, Op: op}, true
				}
				addr++
			}
		}
	}
	return Cell{}, false
}
