package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/docsearch/internal/searcher"
	"github.com/dshills/docsearch/pkg/types"
)

type searchMode struct {
	mode  searcher.SearchMode
	short string
	long  string
}

var (
	searchModeLexical = searchMode{
		mode:  searcher.SearchModeLexical,
		short: "Keyword search (BM25)",
		long: `Full-text search over titles and bodies, ranked by BM25. Scores are
normalised to (0,1]. Fast and needs no model.`,
	}
	searchModeVector = searchMode{
		mode:  searcher.SearchModeVector,
		short: "Semantic search over embeddings",
		long: `Embeds the query and returns the documents whose chunks are nearest by
cosine distance. Run 'docsearch embed' first.`,
	}
	searchModeHybrid = searchMode{
		mode:  searcher.SearchModeHybrid,
		short: "Hybrid search with reranking",
		long: `Runs keyword and semantic search, fuses both rankings with Reciprocal Rank
Fusion, and asks the rerank model whether each candidate answers the query.
Slowest and most accurate.`,
	}
)

// jsonResult is the --json form of a result
type jsonResult struct {
	Rank       int          `json:"rank"`
	Path       string       `json:"path"`
	Title      string       `json:"title"`
	Score      float64      `json:"score"`
	Scores     types.Scores `json:"scores"`
	Collection string       `json:"collection"`
	Hash       string       `json:"hash"`
	Snippet    string       `json:"snippet,omitempty"`
	ChunkPos   int          `json:"chunk_pos"`
	Context    string       `json:"context,omitempty"`
}

func newSearchCommand(opts *options, m searchMode) *cobra.Command {
	var (
		limit      int
		collection string
		minScore   float64
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   string(m.mode) + " <query>",
		Short: m.short,
		Long:  m.long,
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			resp, err := a.searcher.Search(cmd.Context(), searcher.SearchRequest{
				Query:      strings.Join(args, " "),
				Limit:      limit,
				Mode:       m.mode,
				Collection: collection,
				MinScore:   minScore,
			})
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			if asJSON {
				return outputSearchJSON(cmd, resp.Results)
			}
			outputSearchText(cmd, resp)
			return nil
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of results (default from config)")
	cmd.Flags().StringVarP(&collection, "collection", "c", "", "search only this collection")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "drop results scoring below this (0-1)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")
	return cmd
}

func outputSearchJSON(cmd *cobra.Command, results []types.SearchResult) error {
	out := make([]jsonResult, 0, len(results))
	for _, r := range results {
		out = append(out, jsonResult{
			Rank:       r.Rank,
			Path:       r.DisplayPath,
			Title:      r.Title,
			Score:      r.Score,
			Scores:     r.Scores,
			Collection: r.Collection,
			Hash:       r.Hash,
			Snippet:    r.Snippet,
			ChunkPos:   r.ChunkPos,
			Context:    r.Context,
		})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchText(cmd *cobra.Command, resp *searcher.SearchResponse) {
	if len(resp.Results) == 0 {
		cmd.Println("No results found.")
		return
	}
	for _, r := range resp.Results {
		cmd.Printf("[%d] %s (%.3f)\n", r.Rank, r.DisplayPath, r.Score)
		if r.Title != "" {
			cmd.Printf("    %s\n", r.Title)
		}
		if r.Context != "" {
			cmd.Printf("    Context: %s\n", r.Context)
		}
		if r.Snippet != "" {
			cmd.Printf("    %s\n", oneLine(r.Snippet))
		}
	}
	cmd.Printf("\n%d results in %s\n", resp.TotalResults, resp.Duration.Round(time.Millisecond))
}

// oneLine collapses whitespace so snippets print on a single line
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
