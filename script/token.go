package script

import "fmt"

// ---------------------------------------------------------------------------
// Tokens
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenNewline

	TokenInt    // 42, 1_000
	TokenFloat  // 3.14, 1e9
	TokenString // 'a', "b", """c"""
	TokenInterp // f"x={x}", "x=#{x}"
	TokenName   // identifiers and keywords
	TokenOp     // operators and punctuation
)

var tokenNames = map[TokenType]string{
	TokenEOF:     "EOF",
	TokenNewline: "NEWLINE",
	TokenInt:     "INT",
	TokenFloat:   "FLOAT",
	TokenString:  "STRING",
	TokenInterp:  "INTERP",
	TokenName:    "NAME",
	TokenOp:      "OP",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", t)
}

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Part is one piece of an interpolated string: literal text, or the
// source of an embedded expression with its optional conversion (!r, !s)
// and format spec.
type Part struct {
	Lit    string
	Code   string
	IsCode bool
	Conv   byte
	Spec   string
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string // name, operator, number text or decoded string
	Parts   []Part // TokenInterp only
	Pos     Position

	// AtLineStart is set on the first token of a logical line. Colon
	// suites compare the columns of such tokens.
	AtLineStart bool
	// SpaceBefore is set when whitespace separates the token from the
	// previous one.
	SpaceBefore bool
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q) at %d:%d", t.Type, t.Literal, t.Pos.Line, t.Pos.Column)
}

// describe names a token in error messages.
func describe(t Token) string {
	switch t.Type {
	case TokenEOF:
		return "end of input"
	case TokenNewline:
		return "end of line"
	case TokenInt, TokenFloat:
		return "number " + t.Literal
	case TokenString, TokenInterp:
		return "string literal"
	case TokenName:
		if keywords[t.Literal] {
			return fmt.Sprintf("'%s'", t.Literal)
		}
		return fmt.Sprintf("name '%s'", t.Literal)
	}
	return fmt.Sprintf("'%s'", t.Literal)
}

// keywords may not be used as variable names.
var keywords = map[string]bool{
	"if": true, "elif": true, "elsif": true, "else": true, "unless": true,
	"then": true, "do": true, "end": true,
	"while": true, "until": true, "for": true, "in": true,
	"def": true, "return": true, "break": true, "continue": true,
	"next": true, "pass": true, "global": true,
	"and": true, "or": true, "not": true, "is": true,
	"True": true, "False": true, "None": true,
	"true": true, "false": true, "nil": true,

	// Recognized only to be rejected.
	"import": true, "from": true, "require": true, "class": true,
	"module": true, "lambda": true, "try": true, "except": true,
	"finally": true, "begin": true, "rescue": true, "ensure": true,
	"with": true, "yield": true, "raise": true, "del": true,
	"case": true, "when": true, "assert": true, "nonlocal": true,
	"async": true, "await": true,
}

// unsupported keywords produce a dedicated message.
var unsupported = map[string]string{
	"import":   "imports are not supported",
	"from":     "imports are not supported",
	"require":  "require is not supported",
	"class":    "classes are not supported",
	"module":   "modules are not supported",
	"lambda":   "lambdas are not supported",
	"try":      "exception handling is not supported",
	"except":   "exception handling is not supported",
	"finally":  "exception handling is not supported",
	"begin":    "exception handling is not supported",
	"rescue":   "exception handling is not supported",
	"ensure":   "exception handling is not supported",
	"with":     "context managers are not supported",
	"yield":    "generators are not supported",
	"raise":    "raising exceptions is not supported",
	"del":      "del is not supported",
	"case":     "case expressions are not supported",
	"when":     "case expressions are not supported",
	"assert":   "assert is not supported",
	"nonlocal": "nonlocal is not supported",
	"async":    "async is not supported",
	"await":    "async is not supported",
}
