// Package types provides the result types shared by the searcher, the CLI and
// the MCP server.
//
// A SearchResult is one document. Its Score is the value the result list is
// ordered by: the normalised BM25 score for lexical search, cosine similarity
// for vector search and the reranker's judgment for hybrid queries. Scores
// keeps the intermediate values for display and debugging.
//
//	result := &types.SearchResult{
//	    DocumentID:  12,
//	    DisplayPath: "notes/docker.md",
//	    Rank:        1,
//	    Score:       0.91,
//	}
//	if err := result.Validate(); err != nil {
//	    return err
//	}
package types
