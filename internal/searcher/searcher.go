package searcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/docsearch/internal/cache"
	"github.com/dshills/docsearch/internal/chunker"
	"github.com/dshills/docsearch/internal/llm"
	"github.com/dshills/docsearch/internal/logging"
	"github.com/dshills/docsearch/internal/storage"
	"github.com/dshills/docsearch/pkg/types"
)

// SearchMode defines how search is performed
type SearchMode string

const (
	SearchModeLexical SearchMode = "search"  // BM25 text search only
	SearchModeVector  SearchMode = "vsearch" // Vector similarity only
	SearchModeHybrid  SearchMode = "query"   // BM25 + vector with RRF, then rerank
)

const (
	// DefaultLimit is the result count when a request sets none
	DefaultLimit = 10

	// MaxLimit caps the result count of a request
	MaxLimit = 100

	// DefaultRerankCandidates is how many fused candidates are judged
	DefaultRerankCandidates = 30

	// chunkFanout over-fetches vector hits so that several chunks of one
	// document still leave enough distinct documents
	chunkFanout = 4
)

// ErrEmptyQuery is returned for queries without searchable terms
var ErrEmptyQuery = storage.ErrEmptyQuery

// Model is the part of the model client search needs
type Model interface {
	Generator
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// Config tunes retrieval and ranking
type Config struct {
	EmbedModel       string
	RerankModel      string
	LexicalK         float64 // BM25 normalisation constant
	RRFK             float64 // Reciprocal Rank Fusion damping constant
	NegativeFactor   float64 // Score multiplier for negative judgments
	RerankCandidates int     // Fused candidates sent to the reranker
	DefaultLimit     int
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query      string
	Limit      int
	Mode       SearchMode
	Collection string  // Restrict to one collection by name
	MinScore   float64 // Drop results scoring below this
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results       []types.SearchResult
	TotalResults  int
	SearchMode    SearchMode
	Duration      time.Duration
	TextResults   int // Documents from the lexical leg
	VectorResults int // Documents from the vector leg
	Reranked      int // Candidates judged by the reranker
}

// Searcher coordinates lexical search, vector search, fusion and reranking
type Searcher struct {
	storage  storage.Storage
	model    Model
	chunker  *chunker.Chunker
	reranker *Reranker
	cfg      Config
	logger   *zap.Logger
}

// NewSearcher creates a new Searcher. Reranking judgments are cached in store
// when it is non-nil.
func NewSearcher(store storage.Storage, model Model, ch *chunker.Chunker, rerankCache cache.Store, cfg Config, logger *zap.Logger) *Searcher {
	if cfg.LexicalK <= 0 {
		cfg.LexicalK = DefaultLexicalK
	}
	if cfg.RRFK <= 0 {
		cfg.RRFK = DefaultRRFK
	}
	if cfg.RerankCandidates <= 0 {
		cfg.RerankCandidates = DefaultRerankCandidates
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	logger = logging.OrNop(logger)
	return &Searcher{
		storage:  store,
		model:    model,
		chunker:  ch,
		reranker: NewReranker(model, cfg.RerankModel, cfg.NegativeFactor, rerankCache, logger),
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "searcher")),
	}
}

// match is one document gathered from the search legs, keyed by display path
type match struct {
	doc        storage.Document
	collection string
	snippet    string
	pos        int // Best chunk offset, -1 when only the lexical leg saw it
	lexical    float64
	vector     float64
}

// Search performs a search based on the request parameters
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	filter, err := s.resolveFilter(ctx, req.Collection)
	if err != nil {
		return nil, err
	}

	var response *SearchResponse
	switch req.Mode {
	case SearchModeLexical:
		response, err = s.lexicalSearch(ctx, req, filter)
	case SearchModeVector:
		response, err = s.vectorSearch(ctx, req, filter)
	case SearchModeHybrid:
		response, err = s.hybridSearch(ctx, req, filter)
	default:
		return nil, fmt.Errorf("unsupported search mode: %s", req.Mode)
	}
	if err != nil {
		return nil, err
	}

	response.Results = s.finish(ctx, response.Results, req)
	response.TotalResults = len(response.Results)
	response.SearchMode = req.Mode
	response.Duration = time.Since(startTime)

	s.logger.Debug("search completed",
		zap.String("mode", string(req.Mode)),
		zap.Int("results", response.TotalResults),
		zap.Duration("duration", response.Duration))
	return response, nil
}

// lexicalSearch ranks by normalised BM25 score
func (s *Searcher) lexicalSearch(ctx context.Context, req SearchRequest, filter *storage.SearchFilter) (*SearchResponse, error) {
	matches, err := s.lexical(ctx, req.Query, req.Limit, filter)
	if err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, len(matches))
	for _, m := range matches {
		r := m.result()
		r.Score = m.lexical
		results = append(results, r)
	}
	return &SearchResponse{Results: results, TextResults: len(matches)}, nil
}

// vectorSearch ranks by cosine similarity of each document's best chunk
func (s *Searcher) vectorSearch(ctx context.Context, req SearchRequest, filter *storage.SearchFilter) (*SearchResponse, error) {
	matches, err := s.vector(ctx, req.Query, req.Limit, filter)
	if err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, len(matches))
	for _, m := range matches {
		r := m.result()
		r.Score = m.vector
		results = append(results, r)
	}
	return &SearchResponse{Results: results, VectorResults: len(matches)}, nil
}

// hybridSearch runs both legs in turn, fuses them with RRF and reranks the
// head of the fused list
func (s *Searcher) hybridSearch(ctx context.Context, req SearchRequest, filter *storage.SearchFilter) (*SearchResponse, error) {
	depth := s.cfg.RerankCandidates
	if req.Limit > depth {
		depth = req.Limit
	}

	// A query without text terms is still answered by the vector leg
	lexical, err := s.lexical(ctx, req.Query, depth, filter)
	if errors.Is(err, ErrEmptyQuery) {
		s.logger.Debug("no text terms in query, using vector search only", zap.String("query", req.Query))
		lexical, err = []*match{}, nil
	}
	if err != nil {
		return nil, err
	}
	vector, err := s.vector(ctx, req.Query, depth, filter)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*match, len(lexical)+len(vector))
	for _, m := range lexical {
		byID[m.id()] = m
	}
	for _, m := range vector {
		if prev, ok := byID[m.id()]; ok {
			prev.vector = m.vector
			prev.pos = m.pos
			continue
		}
		byID[m.id()] = m
	}

	fused := FuseRRF(s.cfg.RRFK, candidates(lexical), candidates(vector))
	if len(fused) > s.cfg.RerankCandidates {
		fused = fused[:s.cfg.RerankCandidates]
	}

	rerankInput := make([]RerankCandidate, 0, len(fused))
	for _, f := range fused {
		c, err := s.rerankCandidate(ctx, byID[f.ID])
		if err != nil {
			return nil, err
		}
		rerankInput = append(rerankInput, c)
	}

	judged, err := s.reranker.Rerank(ctx, req.Query, rerankInput)
	if err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, len(judged))
	for _, j := range judged {
		f := fused[j.Index]
		m := byID[f.ID]
		r := m.result()
		r.Score = j.Score
		r.Scores.Fused = f.Score
		r.Scores.Rerank = j.Score
		results = append(results, r)
	}

	return &SearchResponse{
		Results:       results,
		TextResults:   len(lexical),
		VectorResults: len(vector),
		Reranked:      len(judged),
	}, nil
}

// lexical returns up to limit documents from the full-text index, best first
func (s *Searcher) lexical(ctx context.Context, query string, limit int, filter *storage.SearchFilter) ([]*match, error) {
	hits, err := s.storage.SearchText(ctx, query, limit, filter)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	matches := make([]*match, 0, len(hits))
	for _, h := range hits {
		matches = append(matches, &match{
			doc:        h.Document,
			collection: h.Collection,
			snippet:    h.Snippet,
			pos:        -1,
			lexical:    NormalizeLexical(h.Score, s.cfg.LexicalK),
		})
	}
	return matches, nil
}

// vector returns up to limit documents nearest to the query, one entry per
// document at its best chunk
func (s *Searcher) vector(ctx context.Context, query string, limit int, filter *storage.SearchFilter) ([]*match, error) {
	info, err := s.storage.GetVectorInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("read vector info: %w", err)
	}
	if info.Count == 0 {
		s.logger.Warn("no embeddings stored, skipping vector search; run embed first")
		return []*match{}, nil
	}

	embedding, err := s.model.Embed(ctx, s.cfg.EmbedModel, llm.FormatQuery(query))
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}
	if len(embedding) != info.Dimension {
		s.logger.Warn("query embedding dimension differs from stored vectors; run embed --force",
			zap.Int("query", len(embedding)), zap.Int("stored", info.Dimension))
	}

	hits, err := s.storage.SearchVector(ctx, embedding, limit*chunkFanout, filter)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	seen := make(map[int64]bool, len(hits))
	matches := make([]*match, 0, limit)
	for _, h := range hits {
		if seen[h.Document.ID] {
			continue
		}
		seen[h.Document.ID] = true
		matches = append(matches, &match{
			doc:        h.Document,
			collection: h.Collection,
			pos:        h.Pos,
			vector:     similarity(h.Distance),
		})
		if len(matches) == limit {
			break
		}
	}
	return matches, nil
}

// rerankCandidate builds the text judged for a match: its title and the best
// chunk, or the first chunk when only the lexical leg found it. The ID names
// the exact text so cached judgments follow content, not paths.
func (s *Searcher) rerankCandidate(ctx context.Context, m *match) (RerankCandidate, error) {
	doc, err := s.storage.GetDocument(ctx, m.doc.ID)
	if err != nil {
		return RerankCandidate{}, fmt.Errorf("load document %s: %w", m.id(), err)
	}
	pos := m.pos
	if pos < 0 {
		pos = 0
	}
	text := s.chunker.Slice(doc.Body, pos)
	if doc.Title != "" {
		text = doc.Title + "\n\n" + text
	}
	return RerankCandidate{
		ID:   fmt.Sprintf("%s:%d", doc.Hash, pos),
		Text: text,
	}, nil
}

// finish applies the score floor and limit, assigns ranks and attaches path
// contexts
func (s *Searcher) finish(ctx context.Context, results []types.SearchResult, req SearchRequest) []types.SearchResult {
	kept := make([]types.SearchResult, 0, len(results))
	for _, r := range results {
		if r.Score < req.MinScore {
			continue
		}
		kept = append(kept, r)
		if len(kept) == req.Limit {
			break
		}
	}

	for i := range kept {
		kept[i].Rank = i + 1
		pc, err := s.storage.FindPathContext(ctx, kept[i].DisplayPath)
		switch {
		case err == nil:
			kept[i].Context = pc.Context
		case !errors.Is(err, storage.ErrNotFound):
			s.logger.Warn("path context lookup failed", zap.String("path", kept[i].DisplayPath), zap.Error(err))
		}
	}
	return kept
}

// resolveFilter maps a collection name to a storage filter
func (s *Searcher) resolveFilter(ctx context.Context, collection string) (*storage.SearchFilter, error) {
	if collection == "" {
		return nil, nil
	}
	c, err := s.storage.GetCollection(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("collection %q: %w", collection, err)
	}
	return &storage.SearchFilter{CollectionID: c.ID}, nil
}

// validateRequest ensures search request is valid
func (s *Searcher) validateRequest(req *SearchRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return ErrEmptyQuery
	}

	if req.Limit <= 0 {
		req.Limit = s.cfg.DefaultLimit
	}

	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}

	if req.Mode == "" {
		req.Mode = SearchModeHybrid
	}

	if req.MinScore < 0 || req.MinScore > 1 {
		return fmt.Errorf("min score must be between 0 and 1, got %v", req.MinScore)
	}

	return nil
}

func (m *match) id() string {
	if m.doc.DisplayPath != "" {
		return m.doc.DisplayPath
	}
	return fmt.Sprintf("#%d", m.doc.ID)
}

func (m *match) result() types.SearchResult {
	return types.SearchResult{
		DocumentID:  m.doc.ID,
		DisplayPath: m.id(),
		Title:       m.doc.Title,
		Collection:  m.collection,
		Hash:        m.doc.Hash,
		Snippet:     m.snippet,
		ChunkPos:    m.pos,
		Scores: types.Scores{
			Lexical: m.lexical,
			Vector:  m.vector,
		},
	}
}

func candidates(matches []*match) []Candidate {
	out := make([]Candidate, len(matches))
	for i, m := range matches {
		out[i] = Candidate{ID: m.id(), Score: m.lexical + m.vector}
	}
	return out
}

// similarity converts cosine distance into a score in [0, 1]
func similarity(distance float64) float64 {
	sim := 1 - distance
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
