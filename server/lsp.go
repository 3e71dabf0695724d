package server

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/basil/compiler"
	"github.com/chazu/basil/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "basil-lsp"

var log = commonlog.GetLogger("basil.lsp")

// LspServer provides diagnostics, completion, hover and go-to-definition
// for basil source files.
type LspServer struct {
	worker *Worker

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server resolving commands against cmds.
func NewLSP(cmds *vm.CommandCollection) *LspServer {
	s := &LspServer{
		worker:  NewWorker(cmds),
		version: "0.1.0",
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
		TextDocumentDefinition: s.textDocumentDefinition,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Info("initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{}
	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	s.publishDiagnostics(ctx, params.TextDocument.URI, params.TextDocument.Text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.publishDiagnostics(ctx, params.TextDocument.URI, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI
	if _, err := s.worker.Do(func(ws *Workspace) any {
		ws.close(string(uri))
		return nil
	}); err != nil {
		return err
	}

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	uri := string(params.TextDocument.URI)
	pos := params.Position

	res, err := s.worker.Do(func(ws *Workspace) any {
		doc, ok := ws.document(uri)
		if !ok {
			return nil
		}
		prefix := extractPrefix(doc.text, pos)
		if prefix == "" {
			return nil
		}
		return complete(ws.Commands, doc, prefix)
	})
	if err != nil || res == nil {
		return nil, err
	}
	return res.([]protocol.CompletionItem), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	uri := string(params.TextDocument.URI)
	pos := params.Position

	res, err := s.worker.Do(func(ws *Workspace) any {
		doc, ok := ws.document(uri)
		if !ok {
			return nil
		}
		return hover(ws.Commands, doc, pos)
	})
	if err != nil || res == nil {
		return nil, nil
	}
	h, _ := res.(*protocol.Hover)
	return h, nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	pos := params.Position

	res, err := s.worker.Do(func(ws *Workspace) any {
		doc, ok := ws.document(string(uri))
		if !ok {
			return nil
		}
		return definition(doc, uri, extractWord(doc.text, pos))
	})
	if err != nil || res == nil {
		return nil, nil
	}
	loc, ok := res.(*protocol.Location)
	if !ok || loc == nil {
		return nil, nil
	}
	return *loc, nil
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	res, err := s.worker.Do(func(ws *Workspace) any {
		doc := ws.update(string(uri), text)
		return toProtocolDiagnostics(doc.text, doc.diags)
	})
	if err != nil {
		return
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: res.([]protocol.Diagnostic),
	})
}

// toProtocolDiagnostics converts compiler diagnostics, whose columns count
// runes, to LSP diagnostics, whose columns count UTF-16 code units.
func toProtocolDiagnostics(text string, diags []compiler.Diagnostic) []protocol.Diagnostic {
	lines := strings.Split(text, "\n")
	out := make([]protocol.Diagnostic, 0, len(diags))
	severity := protocol.DiagnosticSeverityError
	source := lspName
	for _, d := range diags {
		end := d.End
		if !d.Start.Before(end) {
			end = d.Start
		}
		out = append(out, protocol.Diagnostic{
			Range: protocol.Range{
				Start: toProtocolPosition(lines, d.Start),
				End:   toProtocolPosition(lines, end),
			},
			Severity: &severity,
			Code:     &protocol.IntegerOrString{Value: d.Kind.String()},
			Source:   &source,
			Message:  d.Message,
		})
	}
	return out
}

func toProtocolPosition(lines []string, p compiler.Position) protocol.Position {
	pos := protocol.Position{Line: protocol.UInteger(p.Line)}
	if p.Line >= len(lines) {
		pos.Character = protocol.UInteger(p.Char)
		return pos
	}
	units, runes := 0, 0
	for _, r := range lines[p.Line] {
		if runes == p.Char {
			break
		}
		units += utf16.RuneLen(r)
		runes++
	}
	pos.Character = protocol.UInteger(units + (p.Char - runes))
	return pos
}

// --- Completion, hover, definition ---

type candidate struct {
	label  string
	kind   protocol.CompletionItemKind
	detail string
}

const maxItems = 100

// complete offers keywords, commands and the document's functions, types
// and main program variables. Prefix matches come first, then fuzzy ones.
func complete(cmds *vm.CommandCollection, doc *document, prefix string) []protocol.CompletionItem {
	var cands []candidate
	for _, kw := range compiler.Keywords() {
		cands = append(cands, candidate{kw, protocol.CompletionItemKindKeyword, "keyword"})
	}
	for _, name := range cmds.Names() {
		overloads := cmds.Lookup(name)
		detail := overloads[0].Signature
		if len(overloads) > 1 {
			detail = fmt.Sprintf("%s (+%d overloads)", detail, len(overloads)-1)
		}
		cands = append(cands, candidate{name, protocol.CompletionItemKindFunction, detail})
	}
	if doc.prog != nil {
		for _, f := range doc.prog.Functions {
			cands = append(cands, candidate{f.Name, protocol.CompletionItemKindFunction, functionSignature(f)})
		}
		for _, t := range doc.prog.Types {
			cands = append(cands, candidate{t.Name, protocol.CompletionItemKindStruct, "type"})
		}
		if doc.prog.Root != nil {
			for _, sym := range doc.prog.Root.Symbols() {
				cands = append(cands, candidate{sym.Name, protocol.CompletionItemKindVariable, sym.Type.String()})
			}
		}
	}

	lower := strings.ToLower(prefix)
	seen := make(map[string]bool)
	var prefixed, fuzzed []candidate
	for _, c := range cands {
		if seen[c.label] {
			continue
		}
		switch {
		case strings.HasPrefix(c.label, lower):
			prefixed = append(prefixed, c)
		case fuzzy.MatchFold(lower, c.label):
			fuzzed = append(fuzzed, c)
		default:
			continue
		}
		seen[c.label] = true
	}
	sort.Slice(prefixed, func(i, j int) bool { return prefixed[i].label < prefixed[j].label })
	sort.Slice(fuzzed, func(i, j int) bool { return fuzzed[i].label < fuzzed[j].label })

	var items []protocol.CompletionItem
	for _, c := range append(prefixed, fuzzed...) {
		kind, detail, label := c.kind, c.detail, c.label
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &label,
		})
		if len(items) == maxItems {
			break
		}
	}
	return items
}

func functionSignature(f *compiler.FuncDecl) string {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Name.Name
		if t := p.Name.Type(); t != nil {
			params[i] += " as " + t.String()
		}
	}
	sig := fmt.Sprintf("function %s(%s)", f.Name, strings.Join(params, ", "))
	if f.Return != nil && f.Return.Code != vm.TypeVoid {
		sig += " as " + f.Return.String()
	}
	return sig
}

// hover describes the command, function or type under the cursor.
// Multi-word command names are matched against the surrounding words.
func hover(cmds *vm.CommandCollection, doc *document, pos protocol.Position) *protocol.Hover {
	word := strings.ToLower(extractWord(doc.text, pos))
	if word == "" {
		return nil
	}

	var b strings.Builder
	if name := commandAt(cmds, doc.text, pos); name != "" {
		fmt.Fprintf(&b, "**%s**\n\n", name)
		for _, info := range cmds.Lookup(name) {
			fmt.Fprintf(&b, "- `%s`\n", info.Signature)
		}
	} else if doc.prog != nil {
		for _, f := range doc.prog.Functions {
			if f.Name == word {
				fmt.Fprintf(&b, "```\n%s\n```\n", functionSignature(f))
			}
		}
		for _, t := range doc.prog.Types {
			if t.Name == word && t.Def != nil {
				fmt.Fprintf(&b, "**type %s** (%d bytes)\n\n", t.Name, t.Def.Size)
				for _, f := range t.Def.Fields {
					fmt.Fprintf(&b, "- %s as %s\n", f.Name, f.Type)
				}
			}
		}
	}
	if b.Len() == 0 {
		return nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

// commandAt returns the longest command name covering the cursor, or "".
func commandAt(cmds *vm.CommandCollection, text string, pos protocol.Position) string {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return ""
	}
	type span struct{ start, end int }
	var words []span
	for i := 0; i < len(line); {
		r, size := utf8.DecodeRuneInString(line[i:])
		if !isWordRune(r) {
			i += size
			continue
		}
		start := i
		for i < len(line) {
			r, size := utf8.DecodeRuneInString(line[i:])
			if !isWordRune(r) {
				break
			}
			i += size
		}
		words = append(words, span{start, i})
	}

	best := ""
	for i := range words {
		for n := 1; n <= cmds.MaxWords() && i+n <= len(words); n++ {
			first, last := words[i], words[i+n-1]
			if col < first.start || col > last.end {
				continue
			}
			parts := make([]string, n)
			for k := 0; k < n; k++ {
				parts[k] = line[words[i+k].start:words[i+k].end]
			}
			name := vm.NormalizeCommandName(strings.Join(parts, " "))
			if len(cmds.Lookup(name)) > 0 && len(name) > len(best) {
				best = name
			}
		}
	}
	return best
}

// definition locates the declaration of the function, type or label named
// word in the same document.
func definition(doc *document, uri protocol.DocumentUri, word string) *protocol.Location {
	word = strings.ToLower(word)
	if word == "" || doc.prog == nil {
		return nil
	}
	lines := strings.Split(doc.text, "\n")
	locate := func(n compiler.Node) *protocol.Location {
		span := n.Span()
		return &protocol.Location{
			URI: uri,
			Range: protocol.Range{
				Start: toProtocolPosition(lines, span.Start),
				End:   toProtocolPosition(lines, span.Start),
			},
		}
	}
	for _, f := range doc.prog.Functions {
		if f.Name == word {
			return locate(f)
		}
	}
	for _, t := range doc.prog.Types {
		if t.Name == word {
			return locate(t)
		}
	}
	if l, ok := doc.prog.Labels[word]; ok {
		return locate(l)
	}
	return nil
}

// --- Text extraction helpers ---

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '$' || r == '#'
}

// lineAt returns the cursor's line and its byte column. pos.Character
// counts UTF-16 code units.
func lineAt(text string, pos protocol.Position) (string, int, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return "", 0, false
	}
	line := strings.TrimSuffix(lines[pos.Line], "\r")
	units, col := 0, 0
	for col < len(line) && units < int(pos.Character) {
		r, size := utf8.DecodeRuneInString(line[col:])
		units += utf16.RuneLen(r)
		col += size
	}
	return line, col, true
}

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return ""
	}
	start := col
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(line[:start])
		if !isWordRune(r) {
			break
		}
		start -= size
	}
	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return ""
	}
	start := col
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(line[:start])
		if !isWordRune(r) {
			break
		}
		start -= size
	}
	end := col
	for end < len(line) {
		r, size := utf8.DecodeRuneInString(line[end:])
		if !isWordRune(r) {
			break
		}
		end += size
	}
	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
