package mcp

import (
	"context"
	"io"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/docsearch/internal/indexer"
	"github.com/dshills/docsearch/internal/logging"
	"github.com/dshills/docsearch/internal/searcher"
	"github.com/dshills/docsearch/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "docsearch"
)

// ServerVersion is reported to clients; the binary overrides it at link time
var ServerVersion = "dev"

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	storage  storage.Storage
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	logger   *zap.Logger
}

// NewServer creates an MCP server over an open index. The caller owns store
// and closes it after Serve returns.
func NewServer(store storage.Storage, idx *indexer.Indexer, srch *searcher.Searcher, logger *zap.Logger) *Server {
	s := &Server{
		mcp: server.NewMCPServer(
			ServerName,
			ServerVersion,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		storage:  store,
		indexer:  idx,
		searcher: srch,
		logger:   logging.OrNop(logger).With(zap.String("component", "mcp")),
	}
	s.registerTools()
	return s
}

// Serve speaks MCP over in and out until ctx is done or in is closed
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	s.logger.Info("MCP server ready, listening on stdio")
	err := stdio.Listen(ctx, in, out)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(searchTool(searcher.SearchModeLexical), s.searchHandler(searcher.SearchModeLexical))
	s.mcp.AddTool(searchTool(searcher.SearchModeVector), s.searchHandler(searcher.SearchModeVector))
	s.mcp.AddTool(searchTool(searcher.SearchModeHybrid), s.searchHandler(searcher.SearchModeHybrid))
	s.mcp.AddTool(getTool(), s.handleGet)
	s.mcp.AddTool(statusTool(), s.handleStatus)
	s.mcp.AddTool(updateTool(), s.handleUpdate)
}
