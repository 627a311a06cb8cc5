// Package importparse extracts the external packages a script file imports.
//
// Files are parsed with tree-sitter; every static import, re-export,
// require call and dynamic import with a string literal specifier yields one
// Record. Type-only forms are tagged TypeImport so that callers can tell
// runtime dependencies from declaration-only ones.
package importparse

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/alexaandru/go-tree-sitter-bare"
	"github.com/alexaandru/go-sitter-forest/javascript"
	"github.com/alexaandru/go-sitter-forest/tsx"
	"github.com/alexaandru/go-sitter-forest/typescript"
)

// Kind tags an import as runtime or type-only.
type Kind int

const (
	// TypeImport is erased before runtime.
	TypeImport Kind = iota
	// ValueImport is loaded at runtime.
	ValueImport
)

// String returns the kind name.
func (k Kind) String() string {
	if k == ValueImport {
		return "value"
	}

	return "type"
}

// MarshalText renders the kind for JSON and YAML output.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Record is a single import occurrence.
type Record struct {
	Package string
	File    string
	Kind    Kind
}

// Sentinel errors.
var (
	ErrSyntax              = errors.New("syntax error")
	ErrUnsupportedLanguage = errors.New("unsupported file extension")
	errPoolType            = errors.New("parser pool returned unexpected type")
)

// Tree-sitter node and field names used by the extractor.
const (
	nodeImportStatement   = "import_statement"
	nodeExportStatement   = "export_statement"
	nodeImportRequire     = "import_require_clause"
	nodeImportClause      = "import_clause"
	nodeNamedImports      = "named_imports"
	nodeImportSpecifier   = "import_specifier"
	nodeExportClause      = "export_clause"
	nodeExportSpecifier   = "export_specifier"
	nodeCallExpression    = "call_expression"
	nodeArguments         = "arguments"
	nodeString            = "string"
	nodeIdentifier        = "identifier"
	nodeImport            = "import"
	nodeError             = "ERROR"
	tokenType             = "type"
	tokenTypeof           = "typeof"
	fieldSource           = "source"
	fieldFunction         = "function"
	fieldArguments        = "arguments"
	identRequire          = "require"
	grammarTypeScript     = "typescript"
	grammarTSX            = "tsx"
	grammarJavaScript     = "javascript"
	maxErrorSnippetLength = 40
)

// extGrammar maps file extensions to grammar names.
var extGrammar = map[string]string{
	".ts":  grammarTypeScript,
	".mts": grammarTypeScript,
	".cts": grammarTypeScript,
	".tsx": grammarTSX,
	".js":  grammarJavaScript,
	".jsx": grammarJavaScript,
	".mjs": grammarJavaScript,
	".cjs": grammarJavaScript,
}

// Extractor parses script files. It is safe for concurrent use; parsers
// are pooled per grammar.
type Extractor struct {
	pools map[string]*sync.Pool
}

// NewExtractor creates an extractor for TypeScript, TSX and JavaScript.
func NewExtractor() *Extractor {
	langs := map[string]*sitter.Language{
		grammarTypeScript: sitter.NewLanguage(typescript.GetLanguage()),
		grammarTSX:        sitter.NewLanguage(tsx.GetLanguage()),
		grammarJavaScript: sitter.NewLanguage(javascript.GetLanguage()),
	}

	pools := make(map[string]*sync.Pool, len(langs))

	for name, lang := range langs {
		pools[name] = &sync.Pool{
			New: func() any {
				p := sitter.NewParser()
				p.SetLanguage(lang)

				return p
			},
		}
	}

	return &Extractor{pools: pools}
}

// Supports reports whether path has an extension the extractor can parse.
func Supports(path string) bool {
	_, ok := extGrammar[strings.ToLower(filepath.Ext(path))]

	return ok
}

// Extract returns the imports found in content. Records are in source
// order; the same package may appear more than once.
func (e *Extractor) Extract(path string, content []byte) ([]Record, error) {
	grammar, ok := extGrammar[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, path)
	}

	pool := e.pools[grammar]

	parser, ok := pool.Get().(*sitter.Parser)
	if !ok {
		return nil, errPoolType
	}

	defer pool.Put(parser)

	tree, err := parser.ParseString(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.IsNull() {
		return nil, fmt.Errorf("%w: %s: empty tree", ErrSyntax, path)
	}

	if root.HasError() {
		return nil, syntaxError(path, root, content)
	}

	w := walker{src: content, file: path}
	w.visit(root)

	return w.records, nil
}

type walker struct {
	src     []byte
	file    string
	records []Record
}

func (w *walker) emit(specifier string, kind Kind) {
	name, ok := PackageName(specifier)
	if !ok {
		return
	}

	w.records = append(w.records, Record{Package: name, File: w.file, Kind: kind})
}

func (w *walker) visit(n sitter.Node) {
	switch n.Type() {
	case nodeImportStatement:
		w.importStatement(n)

		return
	case nodeExportStatement:
		w.exportStatement(n)
	case nodeCallExpression:
		w.callExpression(n)
	}

	for i := range n.NamedChildCount() {
		w.visit(n.NamedChild(i))
	}
}

func (w *walker) importStatement(n sitter.Node) {
	source := n.ChildByFieldName(fieldSource)

	if source.IsNull() {
		for i := range n.NamedChildCount() {
			child := n.NamedChild(i)
			if child.Type() == nodeImportRequire {
				source = child.ChildByFieldName(fieldSource)
			}
		}
	}

	if source.IsNull() {
		return
	}

	kind := ValueImport
	if hasTypeKeyword(n) || onlyTypeSpecifiers(n, nodeImportClause, nodeNamedImports, nodeImportSpecifier) {
		kind = TypeImport
	}

	w.emit(w.literal(source), kind)
}

func (w *walker) exportStatement(n sitter.Node) {
	source := n.ChildByFieldName(fieldSource)
	if source.IsNull() {
		return
	}

	kind := ValueImport
	if hasTypeKeyword(n) || onlyTypeSpecifiers(n, "", nodeExportClause, nodeExportSpecifier) {
		kind = TypeImport
	}

	w.emit(w.literal(source), kind)
}

func (w *walker) callExpression(n sitter.Node) {
	fn := n.ChildByFieldName(fieldFunction)
	if fn.IsNull() {
		return
	}

	switch fn.Type() {
	case nodeImport:
	case nodeIdentifier:
		if fn.Content(w.src) != identRequire {
			return
		}
	default:
		return
	}

	args := n.ChildByFieldName(fieldArguments)
	if args.IsNull() || args.Type() != nodeArguments || args.NamedChildCount() == 0 {
		return
	}

	first := args.NamedChild(0)
	if first.Type() != nodeString {
		return
	}

	w.emit(w.literal(first), ValueImport)
}

func (w *walker) literal(n sitter.Node) string {
	return strings.Trim(n.Content(w.src), "'\"`")
}

// hasTypeKeyword reports whether the statement carries a bare `type` or
// `typeof` modifier (import type / export type).
func hasTypeKeyword(n sitter.Node) bool {
	for i := range n.ChildCount() {
		child := n.Child(i)
		if child.IsNamed() {
			continue
		}

		if t := child.Type(); t == tokenType || t == tokenTypeof {
			return true
		}
	}

	return false
}

// onlyTypeSpecifiers reports whether the statement's specifier list is non
// empty and every specifier is marked `type`. Default or namespace bindings
// next to the list make the import a value import.
func onlyTypeSpecifiers(n sitter.Node, clauseType, listType, specType string) bool {
	container := n

	if clauseType != "" {
		container = namedChildOfType(n, clauseType)
		if container.IsNull() {
			return false
		}
	}

	if clauseType != "" && container.NamedChildCount() != 1 {
		return false
	}

	list := namedChildOfType(container, listType)
	if list.IsNull() {
		return false
	}

	specs := 0

	for i := range list.NamedChildCount() {
		spec := list.NamedChild(i)
		if spec.Type() != specType {
			continue
		}

		specs++

		if !hasTypeKeyword(spec) {
			return false
		}
	}

	return specs > 0
}

func namedChildOfType(n sitter.Node, typ string) sitter.Node {
	for i := range n.NamedChildCount() {
		if child := n.NamedChild(i); child.Type() == typ {
			return child
		}
	}

	return sitter.Node{}
}

// syntaxError describes the first ERROR or MISSING node under root. The
// parser recovers from some inputs by inserting zero-width MISSING tokens,
// so both kinds must be located.
func syntaxError(path string, root sitter.Node, content []byte) error {
	bad, found := findError(root)
	if !found {
		return fmt.Errorf("%w: %s", ErrSyntax, path)
	}

	pos := bad.StartPoint()

	if bad.IsMissing() {
		return fmt.Errorf("%w: %s:%d:%d missing %q", ErrSyntax, path, pos.Row+1, pos.Column+1, bad.Type())
	}

	return fmt.Errorf("%w: %s:%d:%d near %q", ErrSyntax, path, pos.Row+1, pos.Column+1, snippet(bad.Content(content)))
}

func findError(n sitter.Node) (sitter.Node, bool) {
	if n.Type() == nodeError || n.IsMissing() {
		return n, true
	}

	for i := range n.ChildCount() {
		child := n.Child(i)
		if !child.HasError() {
			continue
		}

		if bad, found := findError(child); found {
			return bad, true
		}
	}

	return sitter.Node{}, false
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorSnippetLength {
		return s[:maxErrorSnippetLength] + "..."
	}

	return s
}
