package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/dshills/docsearch/internal/indexer"
	"github.com/dshills/docsearch/internal/llm"
	"github.com/dshills/docsearch/internal/searcher"
	"github.com/dshills/docsearch/internal/storage"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound           = -32001 // Unknown collection or document
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeModelUnavailable   = -32003 // Model endpoint unreachable or failing
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
)

// maxReportedErrors caps the per-file errors echoed by update
const maxReportedErrors = 5

// searchHandler returns the handler for one search mode
func (s *Server) searchHandler(mode searcher.SearchMode) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, ok := request.Params.Arguments.(map[string]any)
		if !ok {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
		}

		query, _ := args["query"].(string)
		if strings.TrimSpace(query) == "" {
			return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]any{
				"param":  "query",
				"reason": "missing or empty",
			})
		}

		// An omitted limit is left to the searcher's configured default
		limit := getIntDefault(args, "limit", 0)
		if _, set := args["limit"]; set && (limit < 1 || limit > searcher.MaxLimit) {
			return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]any{
				"param": "limit",
				"value": limit,
			})
		}

		minScore := getFloatDefault(args, "min_score", 0)
		if minScore < 0 || minScore > 1 {
			return nil, newMCPError(ErrorCodeInvalidParams, "min_score must be between 0 and 1", map[string]any{
				"param": "min_score",
				"value": minScore,
			})
		}

		resp, err := s.searcher.Search(ctx, searcher.SearchRequest{
			Query:      query,
			Limit:      limit,
			Mode:       mode,
			Collection: getStringDefault(args, "collection", ""),
			MinScore:   minScore,
		})
		if err != nil {
			return nil, searchError(err)
		}

		results := make([]map[string]any, 0, len(resp.Results))
		for _, r := range resp.Results {
			result := map[string]any{
				"rank":       r.Rank,
				"path":       r.DisplayPath,
				"title":      r.Title,
				"score":      r.Score,
				"collection": r.Collection,
			}
			if r.Snippet != "" {
				result["snippet"] = r.Snippet
			}
			if r.Context != "" {
				result["context"] = r.Context
			}
			results = append(results, result)
		}

		response := map[string]any{
			"results": results,
			"metadata": map[string]any{
				"total_results":  resp.TotalResults,
				"search_mode":    string(resp.SearchMode),
				"duration_ms":    resp.Duration.Milliseconds(),
				"text_results":   resp.TextResults,
				"vector_results": resp.VectorResults,
				"reranked":       resp.Reranked,
			},
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}
}

// handleGet handles the get tool invocation
func (s *Server) handleGet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]any{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	doc, err := s.storage.GetDocumentByDisplayPath(ctx, path)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeNotFound, "document not found", map[string]any{
			"param": "path",
			"value": path,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get document", map[string]any{
			"error": err.Error(),
		})
	}
	// Listings omit the body
	if doc, err = s.storage.GetDocument(ctx, doc.ID); err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get document", map[string]any{
			"error": err.Error(),
		})
	}

	response := map[string]any{
		"path":        doc.DisplayPath,
		"title":       doc.Title,
		"hash":        doc.Hash,
		"modified_at": doc.ModifiedAt.Format(time.RFC3339),
		"body":        doc.Body,
	}
	if pc, err := s.storage.FindPathContext(ctx, doc.DisplayPath); err == nil {
		response["context"] = pc.Context
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleStatus handles the status tool invocation
func (s *Server) handleStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]any{
			"error": err.Error(),
		})
	}

	collections := make([]map[string]any, 0, len(status.Collections))
	for _, cs := range status.Collections {
		collections = append(collections, map[string]any{
			"name":               cs.Collection.Name,
			"root":               cs.Collection.Root,
			"glob":               cs.Collection.Glob,
			"active_documents":   cs.ActiveDocuments,
			"inactive_documents": cs.InactiveDocuments,
			"updated_at":         cs.Collection.UpdatedAt.Format(time.RFC3339),
		})
	}

	response := map[string]any{
		"collections": collections,
		"statistics": map[string]any{
			"documents":        status.ActiveDocuments,
			"total_documents":  status.TotalDocuments,
			"vectors":          status.Vectors,
			"embedded_hashes":  status.EmbeddedHashes,
			"needs_embedding":  status.NeedsEmbedding,
			"cache_entries":    status.CacheEntries,
			"path_contexts":    status.PathContexts,
			"vector_dimension": status.VectorDimension,
			"vector_model":     status.VectorModel,
			"index_size_mb":    fmt.Sprintf("%.2f", status.IndexSizeMB),
		},
		"health": map[string]any{
			"database_accessible":  status.Health.DatabaseAccessible,
			"embeddings_available": status.Health.EmbeddingsAvailable,
			"fts_index_built":      status.Health.FTSIndexBuilt,
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleUpdate handles the update tool invocation
func (s *Server) handleUpdate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		args = map[string]any{}
	}
	embed := getBoolDefault(args, "embed", true)
	name := getStringDefault(args, "collection", "")

	var coll *storage.Collection
	if name != "" {
		var err error
		coll, err = s.storage.GetCollection(ctx, name)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newMCPError(ErrorCodeNotFound, "collection not found", map[string]any{
				"param": "collection",
				"value": name,
			})
		}
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to get collection", map[string]any{
				"error": err.Error(),
			})
		}
	}

	// Scan and embed run under one hold of the index lock
	var (
		stats      *indexer.Statistics
		embedStats *indexer.EmbedStatistics
		err        error
	)
	switch {
	case embed && coll == nil:
		stats, embedStats, err = s.indexer.Refresh(ctx)
	case embed:
		stats, embedStats, err = s.indexer.RefreshCollection(ctx, coll)
	case coll == nil:
		stats, err = s.indexer.UpdateAll(ctx)
	default:
		stats, err = s.indexer.Update(ctx, coll)
	}
	if err != nil {
		return nil, indexError("update failed", err)
	}

	response := map[string]any{
		"indexed":         stats.Indexed,
		"updated":         stats.Updated,
		"unchanged":       stats.Unchanged,
		"removed":         stats.Removed,
		"failed":          stats.Failed,
		"needs_embedding": stats.NeedsEmbedding,
		"duration_ms":     stats.Duration.Milliseconds(),
	}
	if len(stats.ErrorMessages) > 0 {
		errorCount := len(stats.ErrorMessages)
		if errorCount > maxReportedErrors {
			response["errors"] = stats.ErrorMessages[:maxReportedErrors]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	if embedStats != nil {
		response["embedded"] = embedStats.Embedded
		response["chunks_embedded"] = embedStats.Chunks
		response["needs_embedding"] = 0
	}

	s.logger.Info("update via MCP",
		zap.String("collection", name),
		zap.Int("indexed", stats.Indexed),
		zap.Int("updated", stats.Updated),
		zap.Int("removed", stats.Removed))
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// searchError maps a search failure to an MCP error
func searchError(err error) error {
	data := map[string]any{"error": err.Error()}
	switch {
	case errors.Is(err, searcher.ErrEmptyQuery):
		return newMCPError(ErrorCodeEmptyQuery, "query has no searchable terms", data)
	case errors.Is(err, storage.ErrNotFound):
		return newMCPError(ErrorCodeNotFound, "collection not found", data)
	case errors.Is(err, llm.ErrModelUnavailable), errors.Is(err, llm.ErrModelNotFound):
		return newMCPError(ErrorCodeModelUnavailable, "model unavailable", data)
	default:
		return newMCPError(ErrorCodeInternalError, "search failed", data)
	}
}

// indexError maps an update or embedding failure to an MCP error
func indexError(message string, err error) error {
	data := map[string]any{"error": err.Error()}
	switch {
	case errors.Is(err, indexer.ErrIndexInProgress):
		return newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	case errors.Is(err, llm.ErrModelUnavailable), errors.Is(err, llm.ErrModelNotFound):
		return newMCPError(ErrorCodeModelUnavailable, message, data)
	default:
		return newMCPError(ErrorCodeInternalError, message, data)
	}
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data any) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    any
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]any) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]any, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]any, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a number parameter with a default value
func getFloatDefault(args map[string]any, key string, defaultValue float64) float64 {
	switch val := args[key].(type) {
	case float64:
		return val
	case int:
		return float64(val)
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]any, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
