// Package app wires configuration, storage, models and the pipeline into a
// runnable application.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/supportmind/supportmind/db"
	"github.com/supportmind/supportmind/internal/chunk"
	"github.com/supportmind/supportmind/internal/comparator"
	"github.com/supportmind/supportmind/internal/config"
	"github.com/supportmind/supportmind/internal/draft"
	"github.com/supportmind/supportmind/internal/gap"
	"github.com/supportmind/supportmind/internal/guard"
	"github.com/supportmind/supportmind/internal/index"
	"github.com/supportmind/supportmind/internal/ingest"
	"github.com/supportmind/supportmind/internal/judge"
	"github.com/supportmind/supportmind/internal/kb"
	"github.com/supportmind/supportmind/internal/observability"
	"github.com/supportmind/supportmind/internal/pipeline"
	"github.com/supportmind/supportmind/internal/reindex"
	"github.com/supportmind/supportmind/internal/retrieval"
	"github.com/supportmind/supportmind/internal/review"
)

// App is the application container. Setup initializes every component;
// Close releases them in reverse order.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	Pool     *pgxpool.Pool

	Store     *kb.Store
	Index     *index.Store
	Retrieval *retrieval.Engine
	Pipeline  *pipeline.Pipeline
	Importer  *ingest.Importer
	Reindexer *reindex.Reindexer
	Tracer    trace.Tracer

	cleanups []func()
}

// Setup initializes the application. On failure everything already
// initialized is released before returning.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	a.Tracer = observability.Noop()
	if cfg.Observability.Enabled {
		tracer, shutdown, err := observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.Observability.OTLPEndpoint,
			ServiceName: "supportmind",
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("setting up tracing: %w", err)
		}
		a.Tracer = tracer
		a.cleanups = append(a.cleanups, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("shutting down tracer provider", "error", err)
			}
		})
	}

	if err := db.Migrate(cfg.Postgres.URL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.URL())
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}
	poolCfg.MaxConns = 10
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	a.Pool = pool
	a.cleanups = append(a.cleanups, pool.Close)

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, fmt.Errorf("initializing genkit")
	}
	a.Genkit = g

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	a.Embedder = embedder

	store, err := kb.NewStore(pool, logger)
	if err != nil {
		return nil, err
	}
	a.Store = store

	idx, err := index.NewStore(pool, embedder, logger)
	if err != nil {
		return nil, err
	}
	a.Index = idx

	engine, err := retrieval.NewEngine(idx, store, store, logger)
	if err != nil {
		return nil, err
	}
	a.Retrieval = engine

	var limiter *rate.Limiter
	if rpm := cfg.Judge.RequestsPerMin; rpm > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60), 1)
	}
	judgeClient, err := judge.NewGenkitClient(g, cfg.ModelName, cfg.Temperature,
		judge.RetryConfig{
			MaxRetries:      cfg.Judge.MaxRetries,
			InitialInterval: cfg.Judge.InitialInterval,
			MaxInterval:     cfg.Judge.MaxInterval,
			Timeout:         cfg.Judge.Timeout,
		}, limiter, logger)
	if err != nil {
		return nil, err
	}

	compare, err := comparator.NewAgent(judgeClient, logger,
		comparator.WithExcerptChars(cfg.Pipeline.ExcerptChars),
		comparator.WithIncomingHook(guard.NewQuestionFilter().Hook()))
	if err != nil {
		return nil, err
	}

	detector, err := gap.NewDetector(judgeClient, logger)
	if err != nil {
		return nil, err
	}

	extractor, err := draft.NewExtractor(judgeClient, store, logger)
	if err != nil {
		return nil, err
	}

	criteria := review.DefaultCriteria()
	criteria.MinBodyChars = cfg.Pipeline.MinBodyChars
	criteria.MaxBodyChars = cfg.Pipeline.MaxBodyChars
	reviewer, err := review.NewEngine(judgeClient, store, criteria, logger)
	if err != nil {
		return nil, err
	}

	splitter := chunk.NewSplitter(cfg.Pipeline.ChunkSize, cfg.Pipeline.ChunkOverlap)
	reindexer, err := reindex.New(store, idx, splitter, logger)
	if err != nil {
		return nil, err
	}
	a.Reindexer = reindexer

	p, err := pipeline.New(pipeline.Params{
		Retriever: engine,
		Comparer:  compare,
		Detector:  detector,
		Extractor: extractor,
		Reviewer:  reviewer,
		Store:     store,
		Reindexer: reindexer,
		Tracer:    a.Tracer,
		Logger:    logger,
		TopK:      cfg.Pipeline.RetrievalTopK,
	})
	if err != nil {
		return nil, err
	}
	a.Pipeline = p

	importer, err := ingest.NewImporter(store, logger)
	if err != nil {
		return nil, err
	}
	a.Importer = importer

	return a, nil
}

// Close releases resources in reverse initialization order.
func (a *App) Close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
}
