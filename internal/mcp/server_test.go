package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dshills/docsearch/internal/chunker"
	"github.com/dshills/docsearch/internal/indexer"
	"github.com/dshills/docsearch/internal/llm"
	"github.com/dshills/docsearch/internal/llm/llmtest"
	"github.com/dshills/docsearch/internal/searcher"
	"github.com/dshills/docsearch/internal/storage"
)

const (
	embedModel  = "embed-test"
	rerankModel = "rerank-test"
)

type fixture struct {
	server *Server
	store  *storage.SQLiteStorage
	srv    *llmtest.Server
	root   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	srv := llmtest.New(t, 64, embedModel, rerankModel)
	client := llm.New(llm.Config{BaseURL: srv.URL}, nil, zaptest.NewLogger(t))
	ch, err := chunker.New(200, 40)
	require.NoError(t, err)

	idx := indexer.New(store, ch, client, indexer.Config{EmbedModel: embedModel}, zaptest.NewLogger(t))
	srch := searcher.NewSearcher(store, client, ch, nil, searcher.Config{
		EmbedModel:  embedModel,
		RerankModel: rerankModel,
	}, zaptest.NewLogger(t))

	root := t.TempDir()
	writeFile(t, root, "docker.md", "# Docker containers\n\nRun docker containers locally with compose.")
	writeFile(t, root, "garden.md", "# Garden\n\nTomatoes need sun and water.")
	_, err = idx.AddCollection(ctx, "notes", root, "")
	require.NoError(t, err)

	return &fixture{
		server: NewServer(store, idx, srch, zaptest.NewLogger(t)),
		store:  store,
		srv:    srv,
		root:   root,
	}
}

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
}

func call(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// decode returns the JSON object in a tool result's text content
func decode(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)

	var text string
	switch c := result.Content[0].(type) {
	case mcp.TextContent:
		text = c.Text
	case *mcp.TextContent:
		text = c.Text
	default:
		t.Fatalf("unexpected content type %T", result.Content[0])
	}

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	return out
}

func requireMCPError(t *testing.T, err error, code int) *MCPError {
	t.Helper()
	var mcpErr *MCPError
	require.True(t, errors.As(err, &mcpErr), "expected *MCPError, got %v", err)
	assert.Equal(t, code, mcpErr.Code)
	return mcpErr
}

func TestUpdateThenSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.server.handleUpdate(ctx, call(map[string]any{}))
	require.NoError(t, err)
	out := decode(t, result)
	assert.EqualValues(t, 2, out["indexed"])
	assert.EqualValues(t, 2, out["embedded"])
	assert.EqualValues(t, 0, out["needs_embedding"])

	for _, mode := range []searcher.SearchMode{searcher.SearchModeLexical, searcher.SearchModeVector, searcher.SearchModeHybrid} {
		t.Run(string(mode), func(t *testing.T) {
			result, err := f.server.searchHandler(mode)(ctx, call(map[string]any{"query": "docker containers", "limit": float64(5)}))
			require.NoError(t, err)
			out := decode(t, result)

			results, ok := out["results"].([]any)
			require.True(t, ok)
			require.NotEmpty(t, results)
			first := results[0].(map[string]any)
			assert.Equal(t, "notes/docker.md", first["path"])
			assert.EqualValues(t, 1, first["rank"])

			meta := out["metadata"].(map[string]any)
			assert.Equal(t, string(mode), meta["search_mode"])
		})
	}
}

func TestSearch_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	handler := f.server.searchHandler(searcher.SearchModeLexical)

	tests := []struct {
		name string
		args map[string]any
		code int
	}{
		{"missing query", map[string]any{}, ErrorCodeEmptyQuery},
		{"blank query", map[string]any{"query": "   "}, ErrorCodeEmptyQuery},
		{"limit too large", map[string]any{"query": "docker", "limit": float64(500)}, ErrorCodeInvalidParams},
		{"limit zero", map[string]any{"query": "docker", "limit": float64(0)}, ErrorCodeInvalidParams},
		{"min score out of range", map[string]any{"query": "docker", "min_score": 1.5}, ErrorCodeInvalidParams},
		{"unknown collection", map[string]any{"query": "docker", "collection": "nope"}, ErrorCodeNotFound},
		{"punctuation only", map[string]any{"query": "?!"}, ErrorCodeEmptyQuery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := handler(ctx, call(tt.args))
			requireMCPError(t, err, tt.code)
		})
	}

	_, err := handler(ctx, mcp.CallToolRequest{})
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestSearch_ConfiguredDefaultLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.server.handleUpdate(ctx, call(map[string]any{}))
	require.NoError(t, err)

	client := llm.New(llm.Config{BaseURL: f.srv.URL}, nil, zaptest.NewLogger(t))
	ch, err := chunker.New(200, 40)
	require.NoError(t, err)
	f.server.searcher = searcher.NewSearcher(f.store, client, ch, nil, searcher.Config{
		EmbedModel:   embedModel,
		RerankModel:  rerankModel,
		DefaultLimit: 1,
	}, zaptest.NewLogger(t))
	handler := f.server.searchHandler(searcher.SearchModeVector)

	result, err := handler(ctx, call(map[string]any{"query": "docker"}))
	require.NoError(t, err)
	assert.Len(t, decode(t, result)["results"], 1)

	result, err = handler(ctx, call(map[string]any{"query": "docker", "limit": float64(5)}))
	require.NoError(t, err)
	assert.Len(t, decode(t, result)["results"], 2)
}

func TestSearch_ModelUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.server.handleUpdate(ctx, call(map[string]any{}))
	require.NoError(t, err)

	f.srv.FailWith(llm.EndpointEmbed, http.StatusServiceUnavailable)
	_, err = f.server.searchHandler(searcher.SearchModeVector)(ctx, call(map[string]any{"query": "garden"}))
	requireMCPError(t, err, ErrorCodeModelUnavailable)
}

func TestGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.server.handleUpdate(ctx, call(map[string]any{"embed": false}))
	require.NoError(t, err)
	require.NoError(t, f.store.SetPathContext(ctx, "notes", "Personal notes"))

	result, err := f.server.handleGet(ctx, call(map[string]any{"path": "notes/garden.md"}))
	require.NoError(t, err)
	out := decode(t, result)
	assert.Equal(t, "Garden", out["title"])
	assert.True(t, strings.Contains(out["body"].(string), "Tomatoes"))
	assert.Equal(t, "Personal notes", out["context"])
	assert.Equal(t, chunker.Fingerprint("# Garden\n\nTomatoes need sun and water."), out["hash"])

	_, err = f.server.handleGet(ctx, call(map[string]any{"path": "notes/missing.md"}))
	requireMCPError(t, err, ErrorCodeNotFound)

	_, err = f.server.handleGet(ctx, call(map[string]any{}))
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.server.handleUpdate(ctx, call(map[string]any{"embed": false}))
	require.NoError(t, err)

	result, err := f.server.handleStatus(ctx, call(map[string]any{}))
	require.NoError(t, err)
	out := decode(t, result)

	stats := out["statistics"].(map[string]any)
	assert.EqualValues(t, 2, stats["documents"])
	assert.EqualValues(t, 2, stats["needs_embedding"])
	assert.EqualValues(t, 0, stats["vectors"])

	collections := out["collections"].([]any)
	require.Len(t, collections, 1)
	assert.Equal(t, "notes", collections[0].(map[string]any)["name"])
}

func TestUpdate_CollectionAndLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.server.handleUpdate(ctx, call(map[string]any{"collection": "nope"}))
	requireMCPError(t, err, ErrorCodeNotFound)

	result, err := f.server.handleUpdate(ctx, call(map[string]any{"collection": "notes", "embed": false}))
	require.NoError(t, err)
	out := decode(t, result)
	assert.EqualValues(t, 2, out["indexed"])
	assert.EqualValues(t, 2, out["needs_embedding"])
	assert.NotContains(t, out, "embedded")

	writeFile(t, f.root, "compose.md", "# Compose\n\nDefine services in compose files.")
	result, err = f.server.handleUpdate(ctx, call(map[string]any{"collection": "notes"}))
	require.NoError(t, err)
	out = decode(t, result)
	assert.EqualValues(t, 1, out["indexed"])
	assert.EqualValues(t, 3, out["embedded"])
	assert.EqualValues(t, 0, out["needs_embedding"])

	require.True(t, f.server.indexer.Lock().TryAcquire())
	defer f.server.indexer.Lock().Release()
	_, err = f.server.handleUpdate(ctx, call(map[string]any{}))
	requireMCPError(t, err, ErrorCodeIndexingInProgress)
	_, err = f.server.handleUpdate(ctx, call(map[string]any{"collection": "notes"}))
	requireMCPError(t, err, ErrorCodeIndexingInProgress)
}

func TestToolDefinitions(t *testing.T) {
	for _, mode := range []searcher.SearchMode{searcher.SearchModeLexical, searcher.SearchModeVector, searcher.SearchModeHybrid} {
		tool := searchTool(mode)
		assert.Equal(t, string(mode), tool.Name)
		assert.NotEmpty(t, tool.Description)
		assert.Equal(t, []string{"query"}, tool.InputSchema.Required)
	}
	assert.Equal(t, []string{"path"}, getTool().InputSchema.Required)
	assert.Equal(t, "status", statusTool().Name)
	assert.Equal(t, "update", updateTool().Name)
}

func TestArgumentHelpers(t *testing.T) {
	args := map[string]any{"f": float64(3), "i": 4, "s": "x", "b": false}
	assert.Equal(t, 3, getIntDefault(args, "f", 1))
	assert.Equal(t, 4, getIntDefault(args, "i", 1))
	assert.Equal(t, 1, getIntDefault(args, "missing", 1))
	assert.Equal(t, 3.0, getFloatDefault(args, "f", 0))
	assert.Equal(t, 4.0, getFloatDefault(args, "i", 0))
	assert.Equal(t, "x", getStringDefault(args, "s", "y"))
	assert.Equal(t, "y", getStringDefault(args, "f", "y"))
	assert.False(t, getBoolDefault(args, "b", true))
	assert.True(t, getBoolDefault(args, "missing", true))
}
