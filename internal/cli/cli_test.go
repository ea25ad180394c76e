package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docsearch/internal/config"
	"github.com/dshills/docsearch/internal/llm/llmtest"
)

type cliEnv struct {
	dbPath string
	root   string
	srv    *llmtest.Server
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	srv := llmtest.New(t, 32, "embed-test", "rerank-test")

	t.Setenv(config.EnvConfigPath, filepath.Join(dir, "missing.toml"))
	t.Setenv(config.EnvOllamaHost, srv.URL)
	t.Setenv(config.EnvEmbedModel, "embed-test")
	t.Setenv(config.EnvRerankModel, "rerank-test")
	t.Setenv(config.EnvLogLevel, "error")

	root := filepath.Join(dir, "notes")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "guides"), 0o755))
	files := map[string]string{
		"guides/docker.md": "# Docker containers\n\nRun docker containers with compose.",
		"garden.md":        "# Garden\n\nTomatoes need sun.",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}
	return &cliEnv{dbPath: filepath.Join(dir, "index", "index.sqlite"), root: root, srv: srv}
}

// run executes one command against a fresh command tree
func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(BuildInfo{Version: "test", BuildTime: "now"})
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append([]string{"--db", e.dbPath}, args...))
	err := root.Execute()
	return buf.String(), err
}

func (e *cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	require.NoError(t, err, out)
	return out
}

func TestCollectionLifecycle(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun(t, "collection", "add", env.root)
	assert.Contains(t, out, "Collection notes:")
	assert.Contains(t, out, "2 new")
	assert.Contains(t, out, "2 documents need embedding")

	out = env.mustRun(t, "collection", "list")
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "notes")

	out = env.mustRun(t, "update")
	assert.Contains(t, out, "0 new, 0 updated, 2 unchanged, 0 removed")

	out = env.mustRun(t, "update", "--embed", "--collection", "notes")
	assert.Contains(t, out, "Updated notes")
	assert.Contains(t, out, "Embedded 2 documents")
	assert.NotContains(t, out, "need embedding")

	out = env.mustRun(t, "collection", "remove", "notes")
	assert.Contains(t, out, "2 documents deactivated")

	_, err := env.run(t, "collection", "remove", "notes")
	assert.Error(t, err)
}

func TestEmbedAndSearch(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "collection", "add", env.root)

	out := env.mustRun(t, "embed")
	assert.Contains(t, out, "Embedded 2 documents")
	out = env.mustRun(t, "embed")
	assert.Contains(t, out, "All documents are embedded.")

	for _, mode := range []string{"search", "vsearch", "query"} {
		t.Run(mode, func(t *testing.T) {
			out := env.mustRun(t, mode, "docker", "containers")
			assert.Contains(t, out, "[1] notes/guides/docker.md")

			out = env.mustRun(t, mode, "--json", "-n", "1", "docker containers")
			var results []jsonResult
			require.NoError(t, json.Unmarshal([]byte(out), &results))
			require.Len(t, results, 1)
			assert.Equal(t, "notes/guides/docker.md", results[0].Path)
			assert.Equal(t, "Docker containers", results[0].Title)
		})
	}

	out = env.mustRun(t, "search", "--collection", "notes", "zucchini")
	assert.Contains(t, out, "No results found.")

	_, err := env.run(t, "search", "--collection", "missing", "docker")
	assert.Error(t, err)
}

func TestEmbedForce(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "collection", "add", env.root)
	env.mustRun(t, "embed")

	out := env.mustRun(t, "embed", "--force")
	assert.Contains(t, out, "Cleared 2 vectors")
	assert.Contains(t, out, "Embedded 2 documents")
}

func TestGetAndContext(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "collection", "add", env.root)

	out := env.mustRun(t, "get", "notes/garden.md")
	assert.Equal(t, "# Garden\n\nTomatoes need sun.", out)

	env.mustRun(t, "context", "add", "notes/guides", "How-to", "guides")
	out = env.mustRun(t, "context", "list")
	assert.Contains(t, out, "notes/guides")
	assert.Contains(t, out, "How-to guides")

	out = env.mustRun(t, "get", "--header", "notes/guides/docker.md")
	assert.Contains(t, out, "Context: How-to guides")
	assert.Contains(t, out, "Title: Docker containers")

	out = env.mustRun(t, "search", "docker")
	assert.Contains(t, out, "Context: How-to guides")

	env.mustRun(t, "context", "rm", "notes/guides")
	_, err := env.run(t, "context", "rm", "notes/guides")
	assert.Error(t, err)

	_, err = env.run(t, "get", "notes/nope.md")
	assert.Error(t, err)
}

func TestStatusAndCleanup(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "collection", "add", env.root)
	env.mustRun(t, "embed")

	out := env.mustRun(t, "status")
	assert.Contains(t, out, "Documents: 2 active, 2 total")
	assert.Contains(t, out, "Embedding: embed-test, dimension 32")
	assert.Contains(t, out, "Needs embedding: 0")

	require.NoError(t, os.Remove(filepath.Join(env.root, "garden.md")))
	env.mustRun(t, "update")

	out = env.mustRun(t, "cleanup", "--cache")
	assert.Contains(t, out, "Deleted 1 orphaned vectors")
	assert.Contains(t, out, "Cleared")
}

func TestVersion(t *testing.T) {
	env := newCLIEnv(t)
	out := env.mustRun(t, "version")
	assert.Contains(t, out, "docsearch test")
	assert.Contains(t, out, "Build Mode:")
	assert.NoFileExists(t, env.dbPath, "version does not open the index")
}

func TestCommandTree(t *testing.T) {
	root := NewRootCommand(BuildInfo{})
	for _, name := range []string{"collection", "update", "embed", "search", "vsearch", "query", "get", "context", "status", "cleanup", "watch", "mcp", "version"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}

	search, _, err := root.Find([]string{"query"})
	require.NoError(t, err)
	flag := search.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "n", flag.Shorthand)
	assert.NotNil(t, search.Flags().Lookup("min-score"))
	assert.NotNil(t, search.Flags().Lookup("json"))
}

func TestSearch_RequiresQuery(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg(s)")
}
