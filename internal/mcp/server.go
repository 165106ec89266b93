package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bjornefisk/StudyTutor/internal/search"
	"github.com/bjornefisk/StudyTutor/internal/telemetry"
	"github.com/bjornefisk/StudyTutor/pkg/version"
)

// ServerName is the implementation name announced to clients.
const ServerName = "StudyTutor"

// MaxTopK caps top_k on tool calls.
const MaxTopK = 50

// Engine is the retrieval surface the server needs. *search.Engine
// satisfies it.
type Engine interface {
	Retrieve(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
	Status() search.Status
}

// Server bridges MCP clients with the retrieval engine.
type Server struct {
	mcp      *mcp.Server
	engine   Engine
	defaults search.Options
	logger   *slog.Logger

	// Query statistics (optional, set via SetQueryStats)
	stats *telemetry.QueryStats

	mu sync.RWMutex
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

const (
	retrieveDescription = "Retrieve study material from the indexed course documents. " +
		"Combines semantic and keyword ranking, so exact identifiers and paraphrased questions both work. " +
		"Returns ranked chunks with their source document and page."
	indexStatusDescription = "Check whether the document index is loaded, how many chunks it holds and " +
		"whether keyword ranking is active (hybrid) or only semantic ranking (vector-only)."
)

// NewServer creates a new MCP server. defaults are the retrieval options
// used when a tool call does not override them.
func NewServer(engine Engine, defaults search.Options, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, errors.New("retrieval engine is required")
	}
	if err := defaults.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		engine:   engine,
		defaults: defaults,
		logger:   logger,
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    ServerName,
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	s.registerStatusResource()

	return s, nil
}

// SetQueryStats enables the query_stats resource.
func (s *Server) SetQueryStats(stats *telemetry.QueryStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = stats
	if stats != nil {
		s.registerQueryStatsResource()
	}
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return ServerName, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{Name: "retrieve", Description: retrieveDescription},
		{Name: "index_status", Description: indexStatusDescription},
	}
}

// CallTool invokes a tool by name with loosely typed arguments and returns
// its markdown rendering.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "retrieve":
		return s.handleRetrieveTool(ctx, args)
	case "index_status":
		return FormatStatus(s.engine.Status()), nil
	default:
		return "", NewMethodNotFoundError(name)
	}
}

func (s *Server) handleRetrieveTool(ctx context.Context, args map[string]any) (string, error) {
	query, ok := args["query"].(string)
	if !ok {
		return "", NewInvalidParamsError("query parameter is required and must be a string")
	}
	input := RetrieveInput{Query: query}
	if l, ok := args["top_k"].(float64); ok {
		input.TopK = int(l)
	}
	if b, ok := args["multi_query"].(bool); ok {
		input.MultiQuery = &b
	}
	if b, ok := args["hybrid"].(bool); ok {
		input.Hybrid = &b
	}

	results, err := s.retrieve(ctx, input)
	if err != nil {
		return "", err
	}
	return FormatResults(query, results), nil
}

// retrieve validates input, applies it over the defaults and runs the
// engine.
func (s *Server) retrieve(ctx context.Context, input RetrieveInput) ([]search.Result, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, NewInvalidParamsError("query cannot be empty or whitespace only")
	}
	if input.TopK < 0 {
		return nil, NewInvalidParamsError("top_k must be >= 0")
	}

	opts := s.defaults
	opts.TopK = clampLimit(input.TopK, s.defaults.TopK, 1, MaxTopK)
	if input.MultiQuery != nil {
		opts.UseMultiQuery = *input.MultiQuery
	}
	if input.Hybrid != nil {
		opts.UseHybrid = *input.Hybrid
	}

	start := time.Now()
	requestID := uuid.NewString()
	s.logger.Info("retrieve tool started",
		slog.String("request_id", requestID),
		slog.Int("top_k", opts.TopK),
		slog.Bool("multi_query", opts.UseMultiQuery))

	results, err := s.engine.Retrieve(ctx, input.Query, opts)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("retrieve tool failed",
			slog.String("request_id", requestID),
			slog.Int64("duration_ms", duration.Milliseconds()),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	s.logger.Info("retrieve tool completed",
		slog.String("request_id", requestID),
		slog.Int64("duration_ms", duration.Milliseconds()),
		slog.Int("result_count", len(results)))
	return results, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "retrieve",
		Description: retrieveDescription,
	}, s.mcpRetrieveHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: indexStatusDescription,
	}, s.mcpIndexStatusHandler)

	s.logger.Debug("MCP tools registered", slog.Int("count", 2))
}

// mcpRetrieveHandler is the MCP SDK handler for the retrieve tool.
func (s *Server) mcpRetrieveHandler(ctx context.Context, _ *mcp.CallToolRequest, input RetrieveInput) (
	*mcp.CallToolResult,
	RetrieveOutput,
	error,
) {
	results, err := s.retrieve(ctx, input)
	if err != nil {
		return nil, RetrieveOutput{}, err
	}
	return nil, ToRetrieveOutput(input.Query, s.engine.Status().Mode, results), nil
}

// mcpIndexStatusHandler is the MCP SDK handler for the index_status tool.
func (s *Server) mcpIndexStatusHandler(_ context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	return nil, ToIndexStatusOutput(s.engine.Status()), nil
}

// Serve runs the server on the given transport until ctx is canceled.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP server stopped gracefully")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}
