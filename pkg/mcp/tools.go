package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/afero"

	"github.com/Sumatoshi-tech/monokit/pkg/importparse"
	"github.com/Sumatoshi-tech/monokit/pkg/workspace"
)

// Tool name constants.
const (
	ToolNameLint    = "monokit_lint_dependencies"
	ToolNameBuild   = "monokit_build_exports"
	ToolNameExtract = "monokit_extract_imports"
)

// Input size limits.
const (
	// MaxCodeInputBytes is the maximum allowed size for inline code input (1 MB).
	MaxCodeInputBytes = 1 << 20
)

// Sentinel errors for tool input validation.
var (
	// ErrEmptyRoot indicates the root parameter is empty.
	ErrEmptyRoot = errors.New("root parameter is required and must not be empty")
	// ErrRootNotAbsolute indicates the root is not an absolute path.
	ErrRootNotAbsolute = errors.New("root must be an absolute path")
	// ErrRootNotFound indicates the root directory does not exist.
	ErrRootNotFound = errors.New("workspace root does not exist")
	// ErrUnknownPackage indicates the package filter matched nothing.
	ErrUnknownPackage = errors.New("package not found in workspace")
	// ErrEmptyCode indicates the code parameter is empty.
	ErrEmptyCode = errors.New("code parameter is required and must not be empty")
	// ErrEmptyFilename indicates the filename parameter is empty.
	ErrEmptyFilename = errors.New("filename parameter is required and must not be empty")
	// ErrCodeTooLarge indicates the code input exceeds the size limit.
	ErrCodeTooLarge = errors.New("code input exceeds maximum size")
)

// Input types (auto-generate JSON schemas via struct tags).

// LintInput is the input schema for the monokit_lint_dependencies tool.
type LintInput struct {
	Root       string   `json:"root"                  jsonschema:"absolute path to the monorepo root holding package.json"`
	Globs      []string `json:"globs,omitempty"       jsonschema:"optional package globs overriding the root workspaces field"`
	Package    string   `json:"package,omitempty"     jsonschema:"optional package path relative to root (e.g. packages/core)"`
	WarnUnused bool     `json:"warn_unused,omitempty" jsonschema:"also warn about declared dependencies nothing imports"`
}

// BuildInput is the input schema for the monokit_build_exports tool.
type BuildInput struct {
	Root    string   `json:"root"              jsonschema:"absolute path to the monorepo root holding package.json"`
	Globs   []string `json:"globs,omitempty"   jsonschema:"optional package globs overriding the root workspaces field"`
	Package string   `json:"package,omitempty" jsonschema:"optional package path relative to root (e.g. packages/core)"`
}

// ExtractInput is the input schema for the monokit_extract_imports tool.
type ExtractInput struct {
	Code     string `json:"code"     jsonschema:"JavaScript or TypeScript source"`
	Filename string `json:"filename" jsonschema:"file name whose extension selects the grammar (e.g. index.tsx)"`
}

// ImportOutput is one extracted import.
type ImportOutput struct {
	Package string `json:"package"`
	Kind    string `json:"kind"`
}

// Output type (used as structured output for generic AddTool).

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

func (s *Server) handleLint(
	ctx context.Context, _ *mcpsdk.CallToolRequest, input LintInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	opts := s.opts
	opts.WarnUnused = opts.WarnUnused || input.WarnUnused

	runner, err := s.runner(input.Root, input.Globs, input.Package, opts)
	if err != nil {
		return errorResult(err)
	}

	summary, err := runner.LintDependencies(ctx, false)
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(summary)
}

func (s *Server) handleBuild(
	ctx context.Context, _ *mcpsdk.CallToolRequest, input BuildInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	runner, err := s.runner(input.Root, input.Globs, input.Package, s.opts)
	if err != nil {
		return errorResult(err)
	}

	summary, err := runner.BuildExports(ctx, true)
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(summary)
}

func (s *Server) handleExtract(
	_ context.Context, _ *mcpsdk.CallToolRequest, input ExtractInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if err := validateCodeInput(input.Code, input.Filename); err != nil {
		return errorResult(err)
	}

	records, err := s.extractor.Extract(input.Filename, []byte(input.Code))
	if err != nil {
		return errorResult(err)
	}

	imports := make([]ImportOutput, 0, len(records))
	for _, rec := range records {
		imports = append(imports, ImportOutput{Package: rec.Package, Kind: rec.Kind.String()})
	}

	return jsonResult(imports)
}

// runner discovers the requested workspace and narrows it to one package
// when asked.
func (s *Server) runner(root string, globs []string, only string, opts workspace.Options) (*workspace.Runner, error) {
	if err := validateRoot(s.fs, root); err != nil {
		return nil, err
	}

	pkgs, err := workspace.Discover(s.fs, root, globs...)
	if err != nil {
		return nil, err
	}

	if only != "" {
		want := filepath.ToSlash(filepath.Clean(only))

		var selected []workspace.Package

		for _, pkg := range pkgs {
			if pkg.Rel == want || pkg.Name == only {
				selected = append(selected, pkg)
			}
		}

		if len(selected) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPackage, only)
		}

		pkgs = selected
	}

	return workspace.NewRunner(s.fs, pkgs, opts)
}

// Result helpers.

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}

func validateRoot(fsys afero.Fs, root string) error {
	if root == "" {
		return ErrEmptyRoot
	}

	if !filepath.IsAbs(root) {
		return fmt.Errorf("%w: %s", ErrRootNotAbsolute, root)
	}

	isDir, err := afero.IsDir(fsys, root)
	if err != nil || !isDir {
		return fmt.Errorf("%w: %s", ErrRootNotFound, root)
	}

	return nil
}

// validateCodeInput checks common code input constraints.
func validateCodeInput(code, filename string) error {
	if code == "" {
		return ErrEmptyCode
	}

	if filename == "" {
		return ErrEmptyFilename
	}

	if len(code) > MaxCodeInputBytes {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrCodeTooLarge, len(code), MaxCodeInputBytes)
	}

	if !importparse.Supports(filename) {
		return fmt.Errorf("%w: %s", importparse.ErrUnsupportedLanguage, filename)
	}

	return nil
}
