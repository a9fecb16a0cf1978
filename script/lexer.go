package script

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer
// ---------------------------------------------------------------------------

// operators in longest-match order.
var operators = []string{
	"**=", "//=", "...",
	"**", "//", "==", "!=", "<=", ">=", "+=", "-=", "*=", "/=", "%=",
	"&&", "||", "..", "->",
	"+", "-", "*", "/", "%", "<", ">", "=", "!",
	"(", ")", "[", "]", "{", "}", ",", ":", ";", ".",
	"&", "|", "^", "~", "@", "?",
}

// Lexer tokenizes script source. Newlines inside parentheses are
// insignificant; blank and comment-only lines produce no tokens.
type Lexer struct {
	src     string
	dialect Dialect
	pos     int
	line    int
	col     int
	depth   int  // open brackets
	space   bool // whitespace since the last token
	toks    []Token
}

// Lex returns the complete token stream for src, ending with TokenEOF.
func Lex(src string, d Dialect) ([]Token, error) {
	return lexFrom(src, d, 1)
}

func lexFrom(src string, d Dialect, line int) (toks []Token, err error) {
	l := &Lexer{src: src, dialect: d, line: line, col: 1}
	defer func() {
		if r := recover(); r != nil {
			f, ok := r.(*SyntaxFault)
			if !ok {
				panic(r)
			}
			toks, err = nil, f
		}
	}()
	l.run()
	return l.toks, nil
}

func (l *Lexer) fail(format string, args ...any) {
	panic(syntaxf(l.line, format, args...))
}

func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

func (l *Lexer) at(off int) byte {
	if l.pos+off < len(l.src) {
		return l.src[l.pos+off]
	}
	return 0
}

// advance consumes one byte.
func (l *Lexer) advance() {
	if l.src[l.pos] == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	l.pos++
}

func (l *Lexer) emit(t Token, pos Position) {
	t.Pos = pos
	t.SpaceBefore = l.space
	n := len(l.toks)
	t.AtLineStart = n == 0 || l.toks[n-1].Type == TokenNewline
	l.toks = append(l.toks, t)
	l.space = false
}

// endLine terminates the current logical line, if any.
func (l *Lexer) endLine() {
	if n := len(l.toks); n > 0 && l.toks[n-1].Type != TokenNewline {
		l.emit(Token{Type: TokenNewline}, l.position())
	}
}

func (l *Lexer) run() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			l.advance()
			l.space = true
		case c == '\n':
			if l.depth == 0 {
				l.endLine()
			}
			l.advance()
			l.space = true
		case c == '#':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.advance()
			}
		case c == '\\' && l.at(1) == '\n':
			l.advance()
			l.advance()
			l.space = true
		case isDigit(c):
			l.number()
		case isNameStart(c):
			l.name()
		case c == '"' || c == '\'':
			l.str(l.position(), false)
		default:
			l.operator()
		}
	}
	l.endLine()
	l.emit(Token{Type: TokenEOF}, l.position())
}

func (l *Lexer) number() {
	start := l.position()
	begin := l.pos
	l.digits()
	typ := TokenInt
	if l.at(0) == '.' && isDigit(l.at(1)) {
		typ = TokenFloat
		l.advance()
		l.digits()
	}
	if c := l.at(0); c == 'e' || c == 'E' {
		if isDigit(l.at(1)) || ((l.at(1) == '+' || l.at(1) == '-') && isDigit(l.at(2))) {
			typ = TokenFloat
			l.advance()
			if !isDigit(l.at(0)) {
				l.advance()
			}
			l.digits()
		}
	}
	text := strings.ReplaceAll(l.src[begin:l.pos], "_", "")
	l.emit(Token{Type: typ, Literal: text}, start)
}

func (l *Lexer) digits() {
	for isDigit(l.at(0)) || (l.at(0) == '_' && isDigit(l.at(1))) {
		l.advance()
	}
}

func (l *Lexer) name() {
	start := l.position()
	begin := l.pos
	for l.pos < len(l.src) && isNameChar(l.src[l.pos]) {
		l.advance()
	}
	word := l.src[begin:l.pos]
	if q := l.at(0); q == '"' || q == '\'' {
		switch strings.ToLower(word) {
		case "f":
			if l.dialect == Python {
				l.str(start, true)
				return
			}
		case "u":
			l.str(start, false)
			return
		case "r", "b", "rb", "br", "fr", "rf":
			l.fail("string prefix %q is not supported", word)
		}
	}
	l.emit(Token{Type: TokenName, Literal: word}, start)
}

func (l *Lexer) operator() {
	start := l.position()
	rest := l.src[l.pos:]
	for _, op := range operators {
		if strings.HasPrefix(rest, op) {
			for range op {
				l.advance()
			}
			switch op {
			case "(", "[", "{":
				l.depth++
			case ")", "]", "}":
				if l.depth > 0 {
					l.depth--
				}
			}
			l.emit(Token{Type: TokenOp, Literal: op}, start)
			return
		}
	}
	r, _ := utf8.DecodeRuneInString(rest)
	l.fail("unexpected character %q", r)
}

// str lexes a string literal starting at the opening quote. Python
// f-strings and double-quoted strings of the block dialect become
// TokenInterp.
func (l *Lexer) str(start Position, fstring bool) {
	q := l.src[l.pos]
	delim := string(q)
	if strings.HasPrefix(l.src[l.pos:], strings.Repeat(delim, 3)) {
		delim = strings.Repeat(delim, 3)
	}
	for range delim {
		l.advance()
	}
	rubyInterp := l.dialect == Ruby && q == '"'
	interp := fstring || rubyInterp

	begin := l.pos
	depth := 0
	for {
		if l.pos >= len(l.src) {
			panic(syntaxf(start.Line, "unterminated string literal"))
		}
		c := l.src[l.pos]
		switch {
		case c == '\n' && len(delim) == 1:
			panic(syntaxf(start.Line, "unterminated string literal"))
		case depth == 0 && strings.HasPrefix(l.src[l.pos:], delim):
			raw := l.src[begin:l.pos]
			for range delim {
				l.advance()
			}
			if interp {
				l.emit(Token{Type: TokenInterp, Parts: l.splitInterp(raw, start.Line, rubyInterp)}, start)
				return
			}
			l.emit(Token{Type: TokenString, Literal: unescape(raw, l.dialect == Ruby && q == '\'')}, start)
			return
		case c == '\\':
			l.advance()
			if l.pos < len(l.src) {
				l.advance()
			}
			continue
		case interp && depth > 0 && (c == '"' || c == '\''):
			l.skipQuoted(c, start.Line)
			continue
		case rubyInterp && depth == 0 && c == '#' && l.at(1) == '{':
			depth = 1
			l.advance()
		case fstring && depth == 0 && c == '{' && l.at(1) == '{':
			l.advance()
		case interp && depth > 0 && c == '{', fstring && c == '{':
			depth++
		case interp && depth > 0 && c == '}':
			depth--
		}
		l.advance()
	}
}

// skipQuoted skips a quoted string nested in interpolation code.
func (l *Lexer) skipQuoted(q byte, line int) {
	l.advance()
	for l.pos < len(l.src) && l.src[l.pos] != q {
		if l.src[l.pos] == '\n' {
			break
		}
		if l.src[l.pos] == '\\' {
			l.advance()
			if l.pos >= len(l.src) {
				break
			}
		}
		l.advance()
	}
	if l.pos >= len(l.src) || l.src[l.pos] != q {
		panic(syntaxf(line, "unterminated string literal"))
	}
	l.advance()
}

// splitInterp cuts the raw body of an interpolated string into literal
// and code parts.
func (l *Lexer) splitInterp(raw string, line int, ruby bool) []Part {
	var parts []Part
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, Part{Lit: unescape(lit.String(), false)})
			lit.Reset()
		}
	}
	for i := 0; i < len(raw); {
		c := raw[i]
		switch {
		case c == '\\' && i+1 < len(raw):
			lit.WriteString(raw[i : i+2])
			i += 2
		case ruby && c == '#' && i+1 < len(raw) && raw[i+1] == '{':
			flush()
			j := matchBrace(raw, i+2, line)
			code := strings.TrimSpace(raw[i+2 : j])
			if code == "" {
				panic(syntaxf(line, "empty interpolation"))
			}
			parts = append(parts, Part{Code: code, IsCode: true})
			i = j + 1
		case !ruby && c == '{' && i+1 < len(raw) && raw[i+1] == '{':
			lit.WriteByte('{')
			i += 2
		case !ruby && c == '}' && i+1 < len(raw) && raw[i+1] == '}':
			lit.WriteByte('}')
			i += 2
		case !ruby && c == '{':
			flush()
			j := matchBrace(raw, i+1, line)
			part := splitField(raw[i+1:j], line)
			parts = append(parts, part)
			i = j + 1
		case !ruby && c == '}':
			panic(syntaxf(line, "f-string: single '}' is not allowed"))
		default:
			lit.WriteByte(c)
			i++
		}
	}
	flush()
	return parts
}

// matchBrace returns the index of the '}' closing a brace opened just
// before from.
func matchBrace(raw string, from, line int) int {
	depth := 1
	for i := from; i < len(raw); i++ {
		switch c := raw[i]; c {
		case '"', '\'':
			j := strings.IndexByte(raw[i+1:], c)
			if j < 0 {
				panic(syntaxf(line, "unterminated string in interpolation"))
			}
			i += j + 1
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	panic(syntaxf(line, "unterminated interpolation"))
}

// splitField separates an f-string field into its expression, !conversion
// and :spec.
func splitField(field string, line int) Part {
	part := Part{IsCode: true}
	depth := 0
	end := len(field)
scan:
	for i := 0; i < len(field); i++ {
		switch c := field[i]; c {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case '"', '\'':
			if j := strings.IndexByte(field[i+1:], c); j >= 0 {
				i += j + 1
			}
		case '!':
			if depth == 0 && i+1 < len(field) && field[i+1] != '=' {
				end = i
				part.Conv = field[i+1]
				if i+2 < len(field) {
					if field[i+2] != ':' {
						panic(syntaxf(line, "f-string: invalid conversion"))
					}
					part.Spec = field[i+3:]
				}
				break scan
			}
		case ':':
			if depth == 0 {
				end = i
				part.Spec = field[i+1:]
				break scan
			}
		}
	}
	part.Code = strings.TrimSpace(field[:end])
	if part.Code == "" {
		panic(syntaxf(line, "f-string: empty expression not allowed"))
	}
	if part.Conv != 0 && part.Conv != 'r' && part.Conv != 's' {
		panic(syntaxf(line, "f-string: invalid conversion character %q", part.Conv))
	}
	return part
}

// unescape decodes backslash escapes. In single-quoted strings of the
// block dialect only \\ and \' are escapes.
func unescape(raw string, plain bool) string {
	if !strings.Contains(raw, `\`) {
		return raw
	}
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' || i+1 >= len(raw) {
			b.WriteByte(c)
			continue
		}
		i++
		e := raw[i]
		if plain {
			if e != '\\' && e != '\'' {
				b.WriteByte('\\')
			}
			b.WriteByte(e)
			continue
		}
		switch e {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '0':
			b.WriteByte(0)
		case 'a':
			b.WriteByte('\a')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'v':
			b.WriteByte('\v')
		case 'e':
			b.WriteByte(0x1b)
		case '\\', '\'', '"', '#':
			b.WriteByte(e)
		case '\n':
			// line continuation inside a string
		case 'x', 'u':
			n := 2
			if e == 'u' {
				n = 4
			}
			if i+n < len(raw) {
				if v, err := strconv.ParseUint(raw[i+1:i+1+n], 16, 32); err == nil {
					b.WriteRune(rune(v))
					i += n
					continue
				}
			}
			b.WriteByte('\\')
			b.WriteByte(e)
		default:
			b.WriteByte('\\')
			b.WriteByte(e)
		}
	}
	return b.String()
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool { return isNameStart(c) || isDigit(c) }
