// Package index stores chunk embeddings in PostgreSQL + pgvector and serves
// nearest-neighbor queries filtered by source kind.
//
// The same embedder must be used at index-build time and query time; mixing
// embedding functions silently breaks distance comparability.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"

	"github.com/supportmind/supportmind/internal/chunk"
)

// VectorDimension is the embedding width stored in the chunks table.
// gemini-embedding-001 is truncated to this via OutputDimensionality.
const VectorDimension int32 = 768

// EmbedTimeout bounds a single embedding call.
const EmbedTimeout = 30 * time.Second

// searchTimeout bounds a vector search query.
const searchTimeout = 10 * time.Second

// ErrUnavailable indicates the index could not be queried at all, as opposed
// to a query that matched nothing.
var ErrUnavailable = errors.New("embedding index unavailable")

// Result is one search hit.
type Result struct {
	Chunk      chunk.Chunk
	Similarity float32 // cosine similarity, 1 = identical
}

// SearchOption configures Search via functional options.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK int
	kind chunk.Kind
}

// WithTopK sets the maximum number of chunks returned. Default 5.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithKind restricts results to one source kind.
func WithKind(k chunk.Kind) SearchOption {
	return func(c *searchConfig) { c.kind = k }
}

// Store manages the chunks table.
//
// Store is safe for concurrent use by multiple goroutines. Reads never block
// on writes: per-source replacement runs in its own transaction and queries
// observe either the old or the new chunk set, never a mix.
type Store struct {
	pool     *pgxpool.Pool
	embedder ai.Embedder
	logger   *slog.Logger
}

// NewStore creates a Store.
func NewStore(pool *pgxpool.Pool, embedder ai.Embedder, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, embedder: embedder, logger: logger}, nil
}

// embed generates embeddings for a batch of texts, preserving order.
func (s *Store) embed(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	dim := VectorDimension
	docs := make([]*ai.Document, len(texts))
	for i, t := range texts {
		docs[i] = ai.DocumentFromText(t, nil)
	}

	embedCtx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()

	resp, err := s.embedder.Embed(embedCtx, &ai.EmbedRequest{
		Input:   docs,
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding %d texts: %w", len(texts), err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(resp.Embeddings), len(texts))
	}

	vecs := make([]pgvector.Vector, len(texts))
	for i, e := range resp.Embeddings {
		if len(e.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding at position %d", i)
		}
		vecs[i] = pgvector.NewVector(e.Embedding)
	}
	return vecs, nil
}

// ReplaceSource atomically replaces the chunk set of one source record.
// Embeddings are generated outside the transaction; the delete and inserts
// share one transaction so a concurrent query never observes a half-replaced
// set. Replaying the call with the same chunks is idempotent: chunk identity
// is (kind, source_id, chunk_index).
func (s *Store) ReplaceSource(ctx context.Context, kind chunk.Kind, sourceID string, chunks []chunk.Chunk) error {
	if !kind.Valid() {
		return fmt.Errorf("invalid source kind %q", kind)
	}

	var vecs []pgvector.Vector
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		var err error
		vecs, err = s.embed(ctx, texts)
		if err != nil {
			return err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning index transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("index rollback", "error", rbErr)
		}
	}()

	if _, err := tx.Exec(ctx,
		`DELETE FROM chunks WHERE source_kind = $1 AND source_id = $2`,
		kind, sourceID); err != nil {
		return fmt.Errorf("deleting chunks of %s %q: %w", kind, sourceID, err)
	}

	for i, c := range chunks {
		if _, err := tx.Exec(ctx, `
			INSERT INTO chunks (id, source_kind, source_id, chunk_index, content, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID(), c.Kind, c.SourceID, c.Index, c.Text, vecs[i]); err != nil {
			return fmt.Errorf("inserting chunk %q: %w", c.ID(), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing index transaction: %w", err)
	}

	s.logger.Debug("source re-indexed", "kind", kind, "source_id", sourceID, "chunks", len(chunks))
	return nil
}

// Search returns the chunks nearest to query by cosine distance.
// A failed query wraps ErrUnavailable; a query that matches nothing returns
// an empty slice and nil error.
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := &searchConfig{topK: 5}
	for _, opt := range opts {
		opt(cfg)
	}

	vecs, err := s.embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	queryVec := vecs[0]

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	var rows pgx.Rows
	if cfg.kind != "" {
		rows, err = s.pool.Query(queryCtx, `
			SELECT source_kind, source_id, chunk_index, content,
				1 - (embedding <=> $1) AS similarity
			FROM chunks WHERE source_kind = $2
			ORDER BY embedding <=> $1 LIMIT $3`,
			queryVec, cfg.kind, cfg.topK)
	} else {
		rows, err = s.pool.Query(queryCtx, `
			SELECT source_kind, source_id, chunk_index, content,
				1 - (embedding <=> $1) AS similarity
			FROM chunks
			ORDER BY embedding <=> $1 LIMIT $2`,
			queryVec, cfg.topK)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: search query failed: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.Chunk.Kind, &r.Chunk.SourceID, &r.Chunk.Index,
			&r.Chunk.Text, &r.Similarity); err != nil {
			return nil, fmt.Errorf("%w: scanning search row: %v", ErrUnavailable, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating search rows: %v", ErrUnavailable, err)
	}
	return out, nil
}

// Count returns the number of indexed chunks, optionally filtered by kind
// (empty kind counts everything).
func (s *Store) Count(ctx context.Context, kind chunk.Kind) (int64, error) {
	var count int64
	var err error
	if kind != "" {
		err = s.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM chunks WHERE source_kind = $1`, kind).Scan(&count)
	} else {
		err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: count failed: %v", ErrUnavailable, err)
	}
	return count, nil
}
