package toolstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/harun/toolshed/pkg/catalog"
)

// SearchResult is a tool with its relevance score
type SearchResult struct {
	Tool         catalog.Tool `json:"tool"`
	Score        float64      `json:"score"`
	VectorScore  *float64     `json:"vector_score,omitempty"`
	KeywordScore *float64     `json:"keyword_score,omitempty"`
}

// SearchOptions configures search behavior
type SearchOptions struct {
	Limit         int     `json:"limit"`
	VectorWeight  float64 `json:"vector_weight"`
	KeywordWeight float64 `json:"keyword_weight"`
	MinScore      float64 `json:"min_score"`
}

// DefaultSearchOptions returns the hybrid weights used when none are given
func DefaultSearchOptions() *SearchOptions {
	return &SearchOptions{
		Limit:         10,
		VectorWeight:  0.7,
		KeywordWeight: 0.3,
	}
}

// Search ranks tools against query. Without an embedding provider only the
// keyword index is consulted; a failing vector lookup falls back to keywords.
func (s *Store) Search(ctx context.Context, query string, opts *SearchOptions) ([]SearchResult, error) {
	if opts == nil {
		opts = DefaultSearchOptions()
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return []SearchResult{}, nil
	}

	var vectorResults []vectorSearchResult
	if s.embeddingProvider != nil {
		var err error
		vectorResults, err = s.vectorSearch(ctx, query, opts.Limit*2)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Vector search failed, using keyword search only")
			vectorResults = nil
		}
	}

	keywordResults, err := s.keywordSearch(ctx, query, opts.Limit*2)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	results := s.mergeResults(ctx, vectorResults, keywordResults, opts)
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	s.logger.Debug().
		Str("query", query).
		Int("vector", len(vectorResults)).
		Int("keyword", len(keywordResults)).
		Int("results", len(results)).
		Msg("Tool search")
	return results, nil
}

type vectorSearchResult struct {
	toolID     string
	similarity float64
}

type keywordSearchResult struct {
	toolID    string
	bm25Score float64
}

func (s *Store) vectorSearch(ctx context.Context, query string, limit int) ([]vectorSearchResult, error) {
	embedding, err := s.embeddingProvider.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tool_id, vec_distance_cosine(embedding, ?) AS distance
		FROM tool_embeddings
		ORDER BY distance ASC
		LIMIT ?
	`, string(embeddingJSON), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []vectorSearchResult
	for rows.Next() {
		var r vectorSearchResult
		var distance float64
		if err := rows.Scan(&r.toolID, &distance); err != nil {
			return nil, err
		}
		r.similarity = 1.0 - distance
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *Store) keywordSearch(ctx context.Context, query string, limit int) ([]keywordSearchResult, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tool_id, bm25(tools_fts) AS score
		FROM tools_fts
		WHERE tools_fts MATCH ?
		ORDER BY score
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []keywordSearchResult
	for rows.Next() {
		var r keywordSearchResult
		var score float64
		if err := rows.Scan(&r.toolID, &score); err != nil {
			return nil, err
		}
		// bm25 is lower-is-better and negative
		r.bm25Score = -score
		results = append(results, r)
	}
	return results, rows.Err()
}

// ftsQuery turns free text into an FTS5 expression: each word becomes a
// quoted prefix term, OR-ed together.
func ftsQuery(query string) string {
	words := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(words))
	for _, w := range words {
		terms = append(terms, `"`+strings.ToLower(w)+`"*`)
	}
	return strings.Join(terms, " OR ")
}

func (s *Store) mergeResults(ctx context.Context, vectorResults []vectorSearchResult, keywordResults []keywordSearchResult, opts *SearchOptions) []SearchResult {
	vectorMap := make(map[string]float64)
	keywordMap := make(map[string]float64)

	var maxKeyword float64
	for _, r := range vectorResults {
		vectorMap[r.toolID] = r.similarity
	}
	for _, r := range keywordResults {
		keywordMap[r.toolID] = r.bm25Score
		if r.bm25Score > maxKeyword {
			maxKeyword = r.bm25Score
		}
	}

	ids := make(map[string]bool)
	for id := range vectorMap {
		ids[id] = true
	}
	for id := range keywordMap {
		ids[id] = true
	}

	type scoredResult struct {
		toolID       string
		score        float64
		vectorScore  *float64
		keywordScore *float64
	}

	scored := make([]scoredResult, 0, len(ids))
	for id := range ids {
		var normalizedVector, normalizedKeyword float64
		var vecPtr, keyPtr *float64

		// similarity [-1, 1] -> [0, 1]
		if v, ok := vectorMap[id]; ok {
			normalizedVector = (v + 1) / 2
			vecPtr = &normalizedVector
		}
		if k, ok := keywordMap[id]; ok {
			if maxKeyword > 0 {
				normalizedKeyword = k / maxKeyword
			} else {
				normalizedKeyword = 1
			}
			keyPtr = &normalizedKeyword
		}

		combined := normalizedVector*opts.VectorWeight + normalizedKeyword*opts.KeywordWeight
		if opts.MinScore > 0 && combined < opts.MinScore {
			continue
		}

		scored = append(scored, scoredResult{
			toolID:       id,
			score:        combined,
			vectorScore:  vecPtr,
			keywordScore: keyPtr,
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score == scored[j].score {
			return scored[i].toolID < scored[j].toolID
		}
		return scored[i].score > scored[j].score
	})

	results := make([]SearchResult, 0, len(scored))
	for _, sr := range scored {
		tool, err := s.Get(ctx, catalog.ID(sr.toolID))
		if err != nil {
			s.logger.Warn().Err(err).Str("tool_id", sr.toolID).Msg("Failed to fetch tool details")
			continue
		}
		results = append(results, SearchResult{
			Tool:         tool,
			Score:        sr.score,
			VectorScore:  sr.vectorScore,
			KeywordScore: sr.keywordScore,
		})
	}
	return results
}
