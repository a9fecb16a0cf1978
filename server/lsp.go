package server

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/djlacavera21/Apophis/hybrid"
	"github.com/djlacavera21/Apophis/malbolge"
	"github.com/djlacavera21/Apophis/script"
)

const lspName = "apophis-lsp"

// LanguageServer provides editor features for hybrid program files.
type LanguageServer struct {
	mu   sync.Mutex
	docs map[string]string // by URI

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a language server.
func NewLSP(version string) *LanguageServer {
	if version == "" {
		version = "0.1.0"
	}
	s := &LanguageServer{
		docs:    make(map[string]string),
		version: version,
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run serves on stdin/stdout until the client exits.
func (s *LanguageServer) Run() error {
	return s.server.RunStdio()
}

func (s *LanguageServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	commonlog.NewInfoMessage(0, "Apophis LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{}
	capabilities.HoverProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LanguageServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LanguageServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LanguageServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

func (s *LanguageServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LanguageServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LanguageServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LanguageServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

func (s *LanguageServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	return completionItems(text, params.Position), nil
}

func (s *LanguageServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	return hover(text, params.Position), nil
}

// completionItems offers keywords, builtins and the names assigned in the
// document, on script lines only.
func completionItems(text string, pos protocol.Position) []protocol.CompletionItem {
	line, ok := lineAt(text, pos)
	if !ok {
		return nil
	}
	if kind, _ := hybrid.Classify(line); !kind.IsScript() {
		return nil
	}
	prefix := extractPrefix(text, pos)
	if prefix == "" {
		return nil
	}

	var items []protocol.CompletionItem
	for _, c := range complete(prefix, documentNames(text)) {
		kind := protocol.CompletionItemKindVariable
		switch c.Kind {
		case "keyword":
			kind = protocol.CompletionItemKindKeyword
		case "builtin":
			kind = protocol.CompletionItemKindFunction
		}
		label, detail := c.Label, c.Kind
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &label,
		})
	}
	return items
}

// documentNames collects names assigned anywhere in the document's
// script segments that parse.
func documentNames(text string) script.Env {
	env := script.Env{}
	for _, seg := range hybrid.Segments(text) {
		if !seg.Kind.IsScript() {
			continue
		}
		d := script.Python
		if seg.Kind == hybrid.Secondary {
			d = script.Ruby
		}
		prog, err := script.Parse(seg.Text, d)
		if err != nil {
			continue
		}
		collectAssigned(prog.Body, env)
	}
	return env
}

func collectAssigned(body []script.Stmt, env script.Env) {
	for _, st := range body {
		switch st := st.(type) {
		case *script.Assign:
			for _, t := range st.Targets {
				env[t] = script.None
			}
		case *script.AugAssign:
			env[st.Target] = script.None
		case *script.For:
			env[st.Var] = script.None
			collectAssigned(st.Body, env)
		case *script.FuncDef:
			env[st.Name] = script.None
		case *script.If:
			collectAssigned(st.Then, env)
			collectAssigned(st.Else, env)
		case *script.While:
			collectAssigned(st.Body, env)
		}
	}
}

// hover describes the line under the cursor. On exotic lines it shows
// the instruction the character decodes to.
func hover(text string, pos protocol.Position) *protocol.Hover {
	line, ok := lineAt(text, pos)
	if !ok {
		return nil
	}
	kind, _ := hybrid.Classify(line)
	var b strings.Builder

	switch kind {
	case hybrid.Blank:
		return nil
	case hybrid.Exotic:
		cell, ok := hybrid.CellAt(text, int(pos.Line)+1, int(pos.Character))
		if !ok {
			fmt.Fprintf(&b, "**%s** line", kind)
			break
		}
		fmt.Fprintf(&b, "**%s** `%c` at address %d\n\n", kind, cell.Char, cell.Addr)
		if cell.Op.Valid() {
			fmt.Fprintf(&b, "decodes to `%s`", cell.Op)
		} else {
			b.WriteString("does not decode to an instruction")
		}
		if cell.Char >= 33 && cell.Char <= 126 {
			enc := malbolge.EncryptWord(malbolge.Word(cell.Char))
			fmt.Fprintf(&b, "; becomes `%c` after it runs", rune(enc))
		}
	case hybrid.Primary, hybrid.Secondary:
		dialect := script.Python
		if kind == hybrid.Secondary {
			dialect = script.Ruby
		}
		fmt.Fprintf(&b, "**%s** line (%s dialect)", kind, dialect)
		if word := extractWord(text, pos); word != "" {
			if isBuiltin(word) {
				fmt.Fprintf(&b, "\n\n`%s` is a builtin function", word)
			} else if isKeyword(word) {
				fmt.Fprintf(&b, "\n\n`%s` is a keyword", word)
			}
		}
	default:
		fmt.Fprintf(&b, "**%s** line", kind)
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

func isBuiltin(word string) bool {
	for _, name := range script.BuiltinNames() {
		if name == word {
			return true
		}
	}
	return false
}

func isKeyword(word string) bool {
	for _, kw := range script.Keywords() {
		if kw == word {
			return true
		}
	}
	return false
}

func (s *LanguageServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	diagnostics := diagnose(text)
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// diagnose converts hybrid.Check results to LSP diagnostics.
func diagnose(text string) []protocol.Diagnostic {
	lines := strings.Split(text, "\n")
	diagnostics := []protocol.Diagnostic{}
	for _, d := range hybrid.Check(text) {
		severity := protocol.DiagnosticSeverityError
		if d.Severity == hybrid.SeverityWarning {
			severity = protocol.DiagnosticSeverityWarning
		}
		source := lspName
		line := protocol.UInteger(d.Line - 1)
		rng := protocol.Range{
			Start: protocol.Position{Line: line, Character: protocol.UInteger(d.Column - 1)},
			End:   protocol.Position{Line: line, Character: protocol.UInteger(d.Column)},
		}
		if d.Column == 0 {
			width := 0
			if d.Line-1 < len(lines) {
				width = len(strings.TrimSuffix(lines[d.Line-1], "\r"))
			}
			rng.Start.Character = 0
			rng.End.Character = protocol.UInteger(width)
		}
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    rng,
			Severity: &severity,
			Source:   &source,
			Message:  d.Message,
		})
	}
	return diagnostics
}

func lineAt(text string, pos protocol.Position) (string, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return "", false
	}
	return strings.TrimSuffix(lines[pos.Line], "\r"), true
}

// extractPrefix returns the part of the identifier left of the cursor.
func extractPrefix(text string, pos protocol.Position) string {
	line, ok := lineAt(text, pos)
	if !ok {
		return ""
	}
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 && isIdentChar(line[start-1]) {
		start--
	}
	return line[start:col]
}

// extractWord returns the identifier spanning the cursor.
func extractWord(text string, pos protocol.Position) string {
	line, ok := lineAt(text, pos)
	if !ok {
		return ""
	}
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 && isIdentChar(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && isIdentChar(line[end]) {
		end++
	}
	return line[start:end]
}

func isIdentChar(c byte) bool {
	r := rune(c)
	return unicode.IsLetter(r) || unicode.IsDigit(r) || c == '_'
}

func boolPtr(b bool) *bool {
	return &b
}
