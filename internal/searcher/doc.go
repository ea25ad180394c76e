// Package searcher implements document search over the index: lexical BM25
// search, vector similarity search, and a hybrid mode that fuses both and
// reranks the result with a relevance-judging model.
//
// The searcher provides three search modes:
//   - Lexical ("search"): BM25 full-text search only, no model required
//   - Vector ("vsearch"): nearest chunks to the query embedding
//   - Hybrid ("query"): lexical + vector with RRF, then reranking
//
// # Basic Usage
//
//	s := searcher.NewSearcher(store, client, chunker, cacheStore, searcher.Config{
//	    EmbedModel:  "embeddinggemma",
//	    RerankModel: "qwen3:0.6b",
//	}, logger)
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Query: "docker containers",
//	    Limit: 10,
//	    Mode:  searcher.SearchModeHybrid,
//	})
//
//	for _, r := range resp.Results {
//	    fmt.Printf("[%d] %.3f %s\n", r.Rank, r.Score, r.DisplayPath)
//	}
//
// # Scores
//
// Lexical scores are raw BM25 values normalised into (0, 1]:
//
//	normalized = round3(1 / (1 + |raw| / K))    K = 50 by default
//
// Vector scores are 1 - cosine distance of the document's best chunk. A
// document appears once however many of its chunks match.
//
// # Reciprocal Rank Fusion (RRF)
//
// Hybrid mode runs the lexical and vector legs one after the other and merges
// them by rank:
//
//	For each list L and each candidate d at 1-based rank r in L:
//	    rrf_score[d] += 1 / (k + r)
//
// Where k = 60 by default. Ties go to the candidate with the better rank in
// any list, then to the smaller ID.
//
// # Reranking
//
// The head of the fused list is judged by the rerank model with a one-token
// yes/no completion. The probability of that token is the confidence:
//
//	yes: score = confidence
//	no:  score = confidence * 0.3
//
// Judgments are cached by query, candidate and model. The candidate text is
// the document title and its best chunk, re-derived from the body.
package searcher
