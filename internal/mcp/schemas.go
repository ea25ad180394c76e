package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/docsearch/internal/searcher"
)

var searchDescriptions = map[searcher.SearchMode]string{
	searcher.SearchModeLexical: "Keyword search over indexed documents (BM25). Fast; best for exact terms and names.",
	searcher.SearchModeVector:  "Semantic search over document embeddings. Finds related wording without shared keywords.",
	searcher.SearchModeHybrid:  "Best-quality search: keyword and semantic results fused, then reranked by a language model.",
}

// searchTool returns the tool definition for one search mode. The tool is
// named after the mode.
func searchTool(mode searcher.SearchMode) mcp.Tool {
	return mcp.Tool{
		Name:        string(mode),
		Description: searchDescriptions[mode],
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     searcher.DefaultLimit,
					"minimum":     1,
					"maximum":     searcher.MaxLimit,
				},
				"collection": map[string]any{
					"type":        "string",
					"description": "Restrict results to one collection",
				},
				"min_score": map[string]any{
					"type":        "number",
					"description": "Minimum score threshold (0.0-1.0)",
					"minimum":     0.0,
					"maximum":     1.0,
				},
			},
			Required: []string{"query"},
		},
	}
}

// getTool returns the tool definition for get
func getTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get",
		Description: "Retrieve the full text of a document by the display path shown in search results",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Display path, e.g. notes/guides/docker.md",
				},
			},
			Required: []string{"path"},
		},
	}
}

// statusTool returns the tool definition for status
func statusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "status",
		Description: "Index statistics: collections, documents, vectors and documents awaiting embedding",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}
}

// updateTool returns the tool definition for update
func updateTool() mcp.Tool {
	return mcp.Tool{
		Name:        "update",
		Description: "Re-scan collections for new, changed and removed files, then embed what changed",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"collection": map[string]any{
					"type":        "string",
					"description": "Update only this collection (default: all)",
				},
				"embed": map[string]any{
					"type":        "boolean",
					"description": "If true, embed documents without vectors after the scan",
					"default":     true,
				},
			},
		},
	}
}
