package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/internal/presentation/graph"
	"github.com/aretw0/weft/internal/sanitize"
	"github.com/aretw0/weft/pkg/domain"
	core "github.com/aretw0/weft/pkg/graph"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"
)

// GraphURI is the resource exposing the graph description.
const GraphURI = "weft://graph"

// Engine is the graph runtime exposed to MCP clients.
type Engine interface {
	Graph() *core.Graph
	Invoke(ctx context.Context, threadID string, input domain.Values) (*domain.Result, error)
	State(ctx context.Context, threadID string) (*domain.Snapshot, error)
	History(ctx context.Context, threadID string) ([]*domain.Snapshot, error)
	Threads(ctx context.Context) ([]string, error)
	Fork(ctx context.Context, src string, step int, dst string) (*domain.Snapshot, error)
}

// InvokeResponse is the structured result of invoke_graph.
type InvokeResponse struct {
	Result *domain.Result `json:"result" jsonschema_description:"Final values of the run"`
}

// ThreadsResponse is the structured result of list_threads.
type ThreadsResponse struct {
	Threads []string `json:"threads" jsonschema_description:"Known thread ids"`
}

// HistoryResponse is the structured result of get_history.
type HistoryResponse struct {
	Checkpoints []*domain.Snapshot      `json:"checkpoints,omitempty" jsonschema_description:"Checkpoints, oldest first"`
	Diffs       []*domain.SnapshotDiff `json:"diffs,omitempty" jsonschema_description:"Changes between consecutive checkpoints"`
}

type invokeArgs struct {
	ThreadID string `json:"thread_id"`
	Input    string `json:"input"`
}

type threadArgs struct {
	ThreadID string `json:"thread_id"`
	Diff     bool   `json:"diff"`
}

type forkArgs struct {
	ThreadID    string  `json:"thread_id"`
	Step        float64 `json:"step"`
	NewThreadID string  `json:"new_thread_id"`
}

// Server exposes an Engine as an MCP server.
type Server struct {
	engine    Engine
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP server for engine.
func NewServer(engine Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("weft-mcp", strings.TrimSpace(weft.Version)),
		logger:    logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves on stdin and stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	baseURL := "http://localhost" + addr
	if !strings.HasPrefix(addr, ":") {
		baseURL = "http://" + addr
	}
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))
	httpServer := &http.Server{Addr: addr, Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("invoke_graph",
		mcp.WithDescription("Run the graph on a thread until it completes. Reuse a thread_id to continue a conversation."),
		mcp.WithString("thread_id", mcp.Description("Thread to run (optional, a new one is created when empty)")),
		mcp.WithString("input", mcp.Description("JSON object merged into the thread state before running")),
		mcp.WithOutputSchema[InvokeResponse](),
	), mcp.NewStructuredToolHandler(s.handleInvoke))

	s.mcpServer.AddTool(mcp.NewTool("get_state",
		mcp.WithDescription("Get the latest checkpoint of a thread."),
		mcp.WithString("thread_id", mcp.Required(), mcp.Description("Thread id")),
		mcp.WithOutputSchema[domain.Snapshot](),
	), mcp.NewStructuredToolHandler(s.handleGetState))

	s.mcpServer.AddTool(mcp.NewTool("get_history",
		mcp.WithDescription("Get every checkpoint of a thread, or the diffs between them."),
		mcp.WithString("thread_id", mcp.Required(), mcp.Description("Thread id")),
		mcp.WithBoolean("diff", mcp.Description("Return diffs instead of full checkpoints")),
		mcp.WithOutputSchema[HistoryResponse](),
	), mcp.NewStructuredToolHandler(s.handleGetHistory))

	s.mcpServer.AddTool(mcp.NewTool("list_threads",
		mcp.WithDescription("List the known threads."),
		mcp.WithOutputSchema[ThreadsResponse](),
	), mcp.NewStructuredToolHandler(s.handleListThreads))

	s.mcpServer.AddTool(mcp.NewTool("fork_thread",
		mcp.WithDescription("Copy a thread's history up to a step into a new thread."),
		mcp.WithString("thread_id", mcp.Required(), mcp.Description("Source thread id")),
		mcp.WithNumber("step", mcp.Required(), mcp.Description("Last step to copy")),
		mcp.WithString("new_thread_id", mcp.Description("Destination thread id (optional)")),
		mcp.WithOutputSchema[domain.Snapshot](),
	), mcp.NewStructuredToolHandler(s.handleFork))

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the graph as a Mermaid diagram, optionally with a thread's progress."),
		mcp.WithString("thread_id", mcp.Description("Thread whose progress is overlaid (optional)")),
	), s.handleGetGraph)
}

func (s *Server) handleInvoke(ctx context.Context, _ mcp.CallToolRequest, args invokeArgs) (InvokeResponse, error) {
	if err := sanitize.ThreadID(args.ThreadID); err != nil {
		return InvokeResponse{}, err
	}
	var input domain.Values
	if args.Input != "" {
		clean, err := sanitize.Input(args.Input)
		if err != nil {
			s.logger.Warn("MCP invoke: input rejected", "err", err, "size", len(args.Input))
			return InvokeResponse{}, fmt.Errorf("input rejected: %w", err)
		}
		if err := json.Unmarshal([]byte(clean), &input); err != nil {
			return InvokeResponse{}, fmt.Errorf("input must be a JSON object: %w", err)
		}
	}

	res, err := s.engine.Invoke(ctx, args.ThreadID, input)
	if err != nil {
		return InvokeResponse{}, fmt.Errorf("invoke failed: %w", err)
	}
	return InvokeResponse{Result: res}, nil
}

func (s *Server) handleGetState(ctx context.Context, _ mcp.CallToolRequest, args threadArgs) (domain.Snapshot, error) {
	snap, err := s.engine.State(ctx, args.ThreadID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return *snap, nil
}

func (s *Server) handleGetHistory(ctx context.Context, _ mcp.CallToolRequest, args threadArgs) (HistoryResponse, error) {
	history, err := s.engine.History(ctx, args.ThreadID)
	if err != nil {
		return HistoryResponse{}, err
	}
	if !args.Diff {
		return HistoryResponse{Checkpoints: history}, nil
	}
	var (
		diffs []*domain.SnapshotDiff
		prev  *domain.Snapshot
	)
	for _, snap := range history {
		if d := domain.Diff(prev, snap); d != nil {
			diffs = append(diffs, d)
		}
		prev = snap
	}
	return HistoryResponse{Diffs: diffs}, nil
}

func (s *Server) handleListThreads(ctx context.Context, _ mcp.CallToolRequest, _ map[string]any) (ThreadsResponse, error) {
	threads, err := s.engine.Threads(ctx)
	if err != nil {
		return ThreadsResponse{}, err
	}
	if threads == nil {
		threads = []string{}
	}
	return ThreadsResponse{Threads: threads}, nil
}

func (s *Server) handleFork(ctx context.Context, _ mcp.CallToolRequest, args forkArgs) (domain.Snapshot, error) {
	if err := sanitize.ThreadID(args.NewThreadID); err != nil {
		return domain.Snapshot{}, err
	}
	snap, err := s.engine.Fork(ctx, args.ThreadID, int(args.Step), args.NewThreadID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return *snap, nil
}

func (s *Server) handleGetGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var overlay *graph.Overlay
	if id := request.GetString("thread_id", ""); id != "" {
		history, err := s.engine.History(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("history failed: %v", err)), nil
		}
		overlay = graph.OverlayFrom(history)
	}
	return mcp.NewToolResultText(graph.GenerateMermaid(s.engine.Graph(), overlay)), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(GraphURI, "Graph Definition",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.engine.Graph().Describe())
		if err != nil {
			return nil, fmt.Errorf("failed to describe graph: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      GraphURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
