package hybrid

import (
	"strings"
)

// Kind classifies one line of a hybrid program.
type Kind int

const (
	Blank Kind = iota
	Comment
	Primary
	Secondary
	Exotic
)

// Line markers. A marker must be the first byte of the line.
const (
	PrimaryMarker   = ':'
	SecondaryMarker = ';'
	CommentMarker   = '#'
)

var kindNames = [...]string{
	Blank:     "blank",
	Comment:   "comment",
	Primary:   "primary",
	Secondary: "secondary",
	Exotic:    "exotic",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsScript reports whether k is evaluated by a script interpreter.
func (k Kind) IsScript() bool { return k == Primary || k == Secondary }

// Classify returns the kind of line and its body with the marker
// stripped. The first matching rule wins.
func Classify(line string) (Kind, string) {
	line = strings.TrimSuffix(line, "\r")
	switch {
	case strings.HasPrefix(line, string(PrimaryMarker)):
		return Primary, line[1:]
	case strings.HasPrefix(line, string(SecondaryMarker)):
		return Secondary, line[1:]
	case strings.HasPrefix(line, string(CommentMarker)):
		return Comment, line[1:]
	case strings.TrimSpace(line) == "":
		return Blank, ""
	}
	return Exotic, line
}

// Segment is a maximal run of consecutive lines of one kind, after
// comments and blank lines are dropped.
type Segment struct {
	Index int   // 0-based position in the program
	Kind  Kind
	Lines []int // 1-based source line of each line of Text
	Text  string
}

// FirstLine is the source line the segment starts on.
func (s *Segment) FirstLine() int { return s.Lines[0] }

// SourceLine maps a 1-based line within Text to the source line. It
// returns 0 when rel is out of range.
func (s *Segment) SourceLine(rel int) int {
	if rel < 1 || rel > len(s.Lines) {
		return 0
	}
	return s.Lines[rel-1]
}

// Segments splits src into segments. Script bodies have trailing
// whitespace trimmed and the run's common indentation removed, so both
// dialects see identically normalized text.
func Segments(src string) []Segment {
	var out []Segment
	var cur *Segment
	var bodies []string

	flush := func() {
		if cur == nil {
			return
		}
		if cur.Kind.IsScript() {
			bodies = dedent(bodies)
		}
		cur.Text = strings.Join(bodies, "\n")
		out = append(out, *cur)
		cur, bodies = nil, nil
	}

	for i, line := range strings.Split(src, "\n") {
		kind, body := Classify(line)
		if kind == Blank || kind == Comment {
			continue
		}
		if cur == nil || cur.Kind != kind {
			flush()
			cur = &Segment{Index: len(out), Kind: kind}
		}
		if kind.IsScript() {
			body = strings.TrimRight(body, " \t\r")
		}
		cur.Lines = append(cur.Lines, i+1)
		bodies = append(bodies, body)
	}
	flush()
	return out
}

// dedent removes the longest whitespace prefix shared by every non-empty
// line.
func dedent(lines []string) []string {
	prefix := ""
	first := true
	for _, l := range lines {
		if l == "" {
			continue
		}
		ws := l[:len(l)-len(strings.TrimLeft(l, " \t"))]
		if first {
			prefix, first = ws, false
			continue
		}
		for !strings.HasPrefix(ws, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	if prefix == "" {
		return lines
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = strings.TrimPrefix(l, prefix)
	}
	return out
}
