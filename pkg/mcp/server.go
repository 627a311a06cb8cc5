// Package mcp implements a Model Context Protocol server exposing the
// monokit pipelines as MCP tools over stdio transport.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/monokit/pkg/importparse"
	"github.com/Sumatoshi-tech/monokit/pkg/version"
	"github.com/Sumatoshi-tech/monokit/pkg/workspace"
)

const (
	// serverName is the MCP server implementation name.
	serverName = "monokit"

	// toolCount is the expected number of registered tools.
	toolCount = 3
)

// ServerDeps holds injectable dependencies for the MCP server.
// Zero-value fields use production defaults.
type ServerDeps struct {
	// Fs is the filesystem workspaces are read from. Nil uses the OS.
	Fs afero.Fs

	// Options configure every pipeline run. Fixer is ignored: tools never
	// modify a workspace.
	Options workspace.Options

	// Logger is an optional structured logger. Nil uses slog default.
	Logger *slog.Logger

	// Tracer is an optional OTel tracer for per-tool-call spans. Nil disables tracing.
	Tracer trace.Tracer
}

// Server wraps the MCP SDK server with monokit tool registrations.
type Server struct {
	inner     *mcpsdk.Server
	fs        afero.Fs
	opts      workspace.Options
	extractor *importparse.Extractor
	tracer    trace.Tracer

	mu    sync.RWMutex
	tools []string
}

// NewServer creates a new MCP server with all monokit tools registered.
func NewServer(deps ServerDeps) *Server {
	opts := &mcpsdk.ServerOptions{}
	if deps.Logger != nil {
		opts.Logger = deps.Logger
	}

	inner := mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    serverName,
			Version: version.Version,
		},
		opts,
	)

	fsys := deps.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	pipelineOpts := deps.Options
	pipelineOpts.Fixer = nil

	if pipelineOpts.Logger == nil {
		pipelineOpts.Logger = deps.Logger
	}

	if pipelineOpts.Tracer == nil {
		pipelineOpts.Tracer = deps.Tracer
	}

	srv := &Server{
		inner:     inner,
		fs:        fsys,
		opts:      pipelineOpts,
		extractor: importparse.NewExtractor(),
		tracer:    deps.Tracer,
		tools:     make([]string, 0, toolCount),
	}

	srv.registerTools()

	return srv
}

// ListToolNames returns the sorted names of all registered tools.
func (s *Server) ListToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.tools))
	copy(names, s.tools)
	sort.Strings(names)

	return names
}

// Run starts the MCP server on stdio transport. It blocks until the context
// is canceled or the connection closes.
func (s *Server) Run(ctx context.Context) error {
	return s.RunWithTransport(ctx, &mcpsdk.StdioTransport{})
}

// RunWithTransport starts the MCP server on the given transport. It blocks
// until the context is canceled or the connection closes.
func (s *Server) RunWithTransport(ctx context.Context, transport mcpsdk.Transport) error {
	err := s.inner.Run(ctx, transport)
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameLint,
		Description: lintToolDescription,
	}, withTracing(s.tracer, ToolNameLint, s.handleLint))
	s.trackTool(ToolNameLint)

	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameBuild,
		Description: buildToolDescription,
	}, withTracing(s.tracer, ToolNameBuild, s.handleBuild))
	s.trackTool(ToolNameBuild)

	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameExtract,
		Description: extractToolDescription,
	}, withTracing(s.tracer, ToolNameExtract, s.handleExtract))
	s.trackTool(ToolNameExtract)
}

func (s *Server) trackTool(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tools = append(s.tools, name)
}

// mcpSpanPrefix is the prefix for MCP tool span names.
const mcpSpanPrefix = "mcp."

// traceIDMetaKey is the metadata key for trace_id in MCP tool responses.
const traceIDMetaKey = "trace_id"

// withTracing wraps an MCP tool handler to create an OTel span per invocation
// and include trace_id in the response content when sampled.
func withTracing[Input any](
	tracer trace.Tracer,
	toolName string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if tracer == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		ctx, span := tracer.Start(ctx, mcpSpanPrefix+toolName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("mcp.tool", toolName)),
		)
		defer span.End()

		result, output, err := handler(ctx, req, input)

		if result != nil {
			span.SetAttributes(attribute.Bool("mcp.is_error", result.IsError))
		}

		sc := span.SpanContext()
		if sc.IsSampled() && result != nil {
			traceContent := &mcpsdk.TextContent{Text: fmt.Sprintf("%s=%s", traceIDMetaKey, sc.TraceID().String())}
			result.Content = append(result.Content, traceContent)
		}

		return result, output, err
	}
}

// Tool description constants.
const (
	lintToolDescription = "Audit every package of a JS/TS monorepo for dependency drift: " +
		"runtime imports missing from package.json dependencies or peerDependencies. " +
		"Accepts an absolute workspace root. Never modifies files."

	buildToolDescription = "Preview the package.json exports map monokit would write for each " +
		"package's build output. Runs in dry-run mode and returns a unified diff per package."

	extractToolDescription = "Extract the external packages imported by a JavaScript or TypeScript " +
		"source snippet, tagged as runtime (value) or type-only imports."
)
