// Package reindex keeps the embedding index in step with published article
// versions. This is the step that closes the learning loop: after it runs,
// retrieval over the same corpus can surface the newly published article.
package reindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/supportmind/supportmind/internal/chunk"
	"github.com/supportmind/supportmind/internal/kb"
)

// ArticleSource loads a specific published article version.
type ArticleSource interface {
	GetArticle(ctx context.Context, articleID string, version int) (kb.Article, error)
}

// Indexer atomically replaces every chunk belonging to one source record.
type Indexer interface {
	ReplaceSource(ctx context.Context, kind chunk.Kind, sourceID string, chunks []chunk.Chunk) error
}

// Reindexer rebuilds the chunk set for one article version.
type Reindexer struct {
	articles ArticleSource
	index    Indexer
	splitter chunk.Splitter
	logger   *slog.Logger
}

func New(articles ArticleSource, index Indexer, splitter chunk.Splitter, logger *slog.Logger) (*Reindexer, error) {
	if articles == nil {
		return nil, errors.New("reindex: article source is required")
	}
	if index == nil {
		return nil, errors.New("reindex: indexer is required")
	}
	if logger == nil {
		return nil, errors.New("reindex: logger is required")
	}
	return &Reindexer{articles: articles, index: index, splitter: splitter, logger: logger}, nil
}

// Reindex replaces the indexed chunks of articleID with chunks built from
// the given version. Chunk identity is (kind, source id, chunk index), and
// the replacement deletes the prior version's chunks in the same
// transaction as the insert, so the call is idempotent: re-running it after
// a partial failure converges on the same chunk set, and retrieval never
// observes a half-replaced one.
func (r *Reindexer) Reindex(ctx context.Context, articleID string, version int) error {
	a, err := r.articles.GetArticle(ctx, articleID, version)
	if err != nil {
		return fmt.Errorf("loading article %s v%d: %w", articleID, version, err)
	}

	chunks := r.splitter.Split(chunk.KindArticle, a.ArticleID, chunk.ArticleText(a.Title, a.Body))
	if err := r.index.ReplaceSource(ctx, chunk.KindArticle, a.ArticleID, chunks); err != nil {
		return fmt.Errorf("replacing chunks for article %s v%d: %w", articleID, version, err)
	}

	r.logger.Info("article reindexed",
		"article_id", articleID, "version", version, "chunks", len(chunks))
	return nil
}
