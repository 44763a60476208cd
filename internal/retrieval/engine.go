// Package retrieval turns free-text questions into ranked historical-case
// candidates by querying the embedding index and joining case metadata.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/supportmind/supportmind/internal/chunk"
	"github.com/supportmind/supportmind/internal/index"
	"github.com/supportmind/supportmind/internal/kb"
)

// DefaultTopK is the number of candidates returned when the caller does not
// specify one.
const DefaultTopK = 5

// ErrIndexEmpty indicates the embedding index holds no chunks for the
// requested kind. Distinct from a query that matched nothing against a
// populated index, which returns an empty slice and nil error.
var ErrIndexEmpty = errors.New("embedding index is empty")

// CandidateCase is one retrieval result: the matched chunk plus the
// denormalized case metadata the comparator needs. Built per query, never
// persisted.
type CandidateCase struct {
	CaseID      string
	Chunk       chunk.Chunk
	Similarity  float32
	Status      string
	Tier        string
	Module      string
	Category    string
	Description string
	Resolution  string
	ArticleID   string
	ScriptID    string
}

// HasArticle reports whether the case links to a knowledge article.
func (c CandidateCase) HasArticle() bool { return c.ArticleID != "" }

// HasScript reports whether the case links to a remediation script.
func (c CandidateCase) HasScript() bool { return c.ScriptID != "" }

// Searcher is the slice of the embedding index the engine consumes.
type Searcher interface {
	Search(ctx context.Context, query string, opts ...index.SearchOption) ([]index.Result, error)
	Count(ctx context.Context, kind chunk.Kind) (int64, error)
}

// CaseSource resolves case metadata for retrieved chunk references.
type CaseSource interface {
	GetCases(ctx context.Context, caseIDs []string) ([]kb.Case, error)
}

// ArticleSource resolves active articles for nearest-article lookups.
type ArticleSource interface {
	ActiveArticle(ctx context.Context, articleID string) (kb.Article, error)
}

// Engine retrieves semantically similar source records.
//
// Engine is safe for concurrent use; retrieval is read-only.
type Engine struct {
	searcher Searcher
	cases    CaseSource
	articles ArticleSource
	logger   *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(searcher Searcher, cases CaseSource, articles ArticleSource, logger *slog.Logger) (*Engine, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if cases == nil {
		return nil, fmt.Errorf("case source is required")
	}
	if articles == nil {
		return nil, fmt.Errorf("article source is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{searcher: searcher, cases: cases, articles: articles, logger: logger}, nil
}

// Retrieve returns up to topK candidate cases for a question, nearest first.
// Results are deduplicated by case: only the closest chunk per case is kept,
// preserving distance order. topK <= 0 uses DefaultTopK.
func (e *Engine) Retrieve(ctx context.Context, question string, topK int) ([]CandidateCase, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	results, err := e.searcher.Search(ctx, question,
		index.WithKind(chunk.KindCase), index.WithTopK(topK))
	if err != nil {
		return nil, fmt.Errorf("retrieving cases: %w", err)
	}

	if len(results) == 0 {
		count, countErr := e.searcher.Count(ctx, chunk.KindCase)
		if countErr != nil {
			return nil, fmt.Errorf("retrieving cases: %w", countErr)
		}
		if count == 0 {
			return nil, fmt.Errorf("no case chunks indexed: %w", ErrIndexEmpty)
		}
		return []CandidateCase{}, nil
	}

	// Closest chunk per case wins; Search returns nearest first.
	seen := make(map[string]index.Result, len(results))
	order := make([]string, 0, len(results))
	for _, r := range results {
		if _, ok := seen[r.Chunk.SourceID]; ok {
			continue
		}
		seen[r.Chunk.SourceID] = r
		order = append(order, r.Chunk.SourceID)
	}

	cases, err := e.cases.GetCases(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("resolving case metadata: %w", err)
	}

	candidates := make([]CandidateCase, 0, len(cases))
	for _, c := range cases {
		r := seen[c.ID]
		candidates = append(candidates, CandidateCase{
			CaseID:      c.ID,
			Chunk:       r.Chunk,
			Similarity:  r.Similarity,
			Status:      c.Status,
			Tier:        c.Tier,
			Module:      c.Module,
			Category:    c.Category,
			Description: c.Description,
			Resolution:  c.Resolution,
			ArticleID:   c.ArticleID,
			ScriptID:    c.ScriptID,
		})
	}

	e.logger.Debug("cases retrieved", "chunks", len(results), "candidates", len(candidates))
	return candidates, nil
}

// NearestArticle returns the active article closest to text, or found=false
// when no article chunks are indexed or none matched.
func (e *Engine) NearestArticle(ctx context.Context, text string) (kb.Article, float32, bool, error) {
	results, err := e.searcher.Search(ctx, text,
		index.WithKind(chunk.KindArticle), index.WithTopK(1))
	if err != nil {
		return kb.Article{}, 0, false, fmt.Errorf("retrieving nearest article: %w", err)
	}
	if len(results) == 0 {
		return kb.Article{}, 0, false, nil
	}

	r := results[0]
	article, err := e.articles.ActiveArticle(ctx, r.Chunk.SourceID)
	if err != nil {
		if errors.Is(err, kb.ErrNotFound) {
			// Chunk refers to a version retired since the query started.
			e.logger.Warn("nearest article chunk has no active version", "article_id", r.Chunk.SourceID)
			return kb.Article{}, 0, false, nil
		}
		return kb.Article{}, 0, false, fmt.Errorf("resolving nearest article: %w", err)
	}
	return article, r.Similarity, true, nil
}
