package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/avelez/codetour/internal/store"
	"github.com/avelez/codetour/pkg/schema"
)

// TutorialRunner executes tutorial generation runs. Satisfied by
// *tutorial.Runner.
type TutorialRunner interface {
	Run(ctx context.Context, req *schema.TutorialRequest) (*schema.Tutorial, string, error)
}

// CodetourServerDeps holds the dependencies for creating a CodetourServer.
type CodetourServerDeps struct {
	Runner TutorialRunner
	Store  store.Store
	Logger *slog.Logger
}

// CodetourServer wraps an MCP server with codetour-specific tool handlers.
type CodetourServer struct {
	runner    TutorialRunner
	store     store.Store
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewCodetourServer creates a new CodetourServer with all 3 tools registered.
func NewCodetourServer(deps CodetourServerDeps) *CodetourServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &CodetourServer{
		runner: deps.Runner,
		store:  deps.Store,
		logger: logger,
	}

	mcpSrv := server.NewMCPServer(
		"codetour",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Codetour turns GitHub repositories into beginner-friendly Markdown tutorials. Use tutorial.generate to build a tutorial for a repository, tutorial.status to inspect a run and its progress events, and tutorial.query to list past runs."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *CodetourServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *CodetourServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the 3 registered MCP tools as ServerTool entries.
func (s *CodetourServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: generateTool(), Handler: s.handleGenerate},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: queryTool(), Handler: s.handleQuery},
	}
}

// --- Tool definitions ---

func generateTool() mcp.Tool {
	return mcp.NewTool("tutorial.generate",
		mcp.WithDescription("Generate a Markdown tutorial for a GitHub repository"),
		mcp.WithString("repo_url", mcp.Required(), mcp.Description("GitHub repository URL, optionally with /tree/<ref>/<subdir>")),
		mcp.WithString("language", mcp.Description("Tutorial language (default: english)")),
		mcp.WithArray("include_patterns", mcp.Description("Glob patterns for files to include")),
		mcp.WithArray("exclude_patterns", mcp.Description("Glob patterns for files to exclude")),
		mcp.WithNumber("max_file_size", mcp.Description("Per-file size limit in bytes")),
		mcp.WithString("output_dir", mcp.Description("Directory to write the tutorial into")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("tutorial.status",
		mcp.WithDescription("Get a tutorial run's record and progress events"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("ID of the run to inspect")),
		mcp.WithNumber("since", mcp.Description("Only return events after this sequence number")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("tutorial.query",
		mcp.WithDescription("List past tutorial runs"),
		mcp.WithString("status", mcp.Description("Filter by run status"),
			mcp.Enum("pending", "running", "completed", "failed"),
		),
		mcp.WithString("repo_url", mcp.Description("Filter by repository URL")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs to return (default: 20)")),
	)
}
