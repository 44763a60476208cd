// Package pipeline composes the answer path and the learning loop.
//
// Answer: question -> retrieval -> comparison -> recommendation.
// Learn: resolved case -> gap detection -> draft -> review -> publish ->
// reindex. After Learn completes for a case with publishable knowledge, a
// later Answer call over the same corpus can surface the new article.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/supportmind/supportmind/internal/comparator"
	"github.com/supportmind/supportmind/internal/gap"
	"github.com/supportmind/supportmind/internal/kb"
	"github.com/supportmind/supportmind/internal/retrieval"
)

// Retriever is the candidate-retrieval surface consumed by the pipeline.
type Retriever interface {
	Retrieve(ctx context.Context, question string, topK int) ([]retrieval.CandidateCase, error)
	NearestArticle(ctx context.Context, text string) (kb.Article, float32, bool, error)
}

// Comparer selects the best candidate for a question.
type Comparer interface {
	TransformQuestion(ctx context.Context, question string) (string, error)
	Compare(ctx context.Context, question string, candidates []retrieval.CandidateCase) (comparator.Result, error)
}

// GapDetector classifies a resolved case against existing knowledge.
type GapDetector interface {
	Detect(ctx context.Context, c kb.Case, nearest *kb.Article) (gap.Detection, error)
}

// DraftExtractor synthesizes a draft article from a case.
type DraftExtractor interface {
	Extract(ctx context.Context, c kb.Case, det gap.Detection, conv *kb.Conversation) (kb.Draft, error)
}

// Reviewer produces the terminal decision for a draft.
type Reviewer interface {
	Review(ctx context.Context, d kb.Draft) (kb.ReviewDecision, error)
}

// Store is the persistence surface the learning loop needs.
type Store interface {
	GetCase(ctx context.Context, caseID string) (kb.Case, error)
	GetConversation(ctx context.Context, conversationID string) (kb.Conversation, error)
	InsertDraft(ctx context.Context, d kb.Draft) error
	InsertDecision(ctx context.Context, d kb.ReviewDecision) error
	Publish(ctx context.Context, decision kb.ReviewDecision, draft kb.Draft) (kb.Published, error)
}

// Reindexer rebuilds the index entries for one article version.
type Reindexer interface {
	Reindex(ctx context.Context, articleID string, version int) error
}

// LearnResult reports what the learning loop did for one case.
type LearnResult struct {
	CaseID    string
	Outcome   gap.Outcome
	Reasoning string
	// Draft and Decision are set when the outcome produced a draft.
	Draft    *kb.Draft
	Decision *kb.ReviewDecision
	// Published is set when the decision was approved and publish succeeded.
	Published *kb.Published
}

// Pipeline wires the stages together. All fields are required.
type Pipeline struct {
	retriever Retriever
	comparer  Comparer
	detector  GapDetector
	extractor DraftExtractor
	reviewer  Reviewer
	store     Store
	reindexer Reindexer
	tracer    trace.Tracer
	logger    *slog.Logger
	topK      int
}

type Params struct {
	Retriever Retriever
	Comparer  Comparer
	Detector  GapDetector
	Extractor DraftExtractor
	Reviewer  Reviewer
	Store     Store
	Reindexer Reindexer
	Tracer    trace.Tracer
	Logger    *slog.Logger
	// TopK is the candidate count for the answer path. Zero means the
	// retrieval default.
	TopK int
}

func New(p Params) (*Pipeline, error) {
	switch {
	case p.Retriever == nil:
		return nil, errors.New("pipeline: retriever is required")
	case p.Comparer == nil:
		return nil, errors.New("pipeline: comparer is required")
	case p.Detector == nil:
		return nil, errors.New("pipeline: gap detector is required")
	case p.Extractor == nil:
		return nil, errors.New("pipeline: draft extractor is required")
	case p.Reviewer == nil:
		return nil, errors.New("pipeline: reviewer is required")
	case p.Store == nil:
		return nil, errors.New("pipeline: store is required")
	case p.Reindexer == nil:
		return nil, errors.New("pipeline: reindexer is required")
	case p.Tracer == nil:
		return nil, errors.New("pipeline: tracer is required")
	case p.Logger == nil:
		return nil, errors.New("pipeline: logger is required")
	}
	topK := p.TopK
	if topK <= 0 {
		topK = retrieval.DefaultTopK
	}
	return &Pipeline{
		retriever: p.Retriever,
		comparer:  p.Comparer,
		detector:  p.Detector,
		extractor: p.Extractor,
		reviewer:  p.Reviewer,
		store:     p.Store,
		reindexer: p.Reindexer,
		tracer:    p.Tracer,
		logger:    p.Logger,
		topK:      topK,
	}, nil
}

// Answer retrieves candidates for the question and asks the comparator for
// the best match.
func (p *Pipeline) Answer(ctx context.Context, question string) (comparator.Result, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.answer")
	defer span.End()

	question, err := p.comparer.TransformQuestion(ctx, question)
	if err != nil {
		return comparator.Result{}, spanErr(span, fmt.Errorf("transforming question: %w", err))
	}

	candidates, err := p.retrieve(ctx, question)
	if err != nil {
		return comparator.Result{}, spanErr(span, err)
	}
	span.SetAttributes(attribute.Int("candidates", len(candidates)))

	result, err := p.compare(ctx, question, candidates)
	if err != nil {
		return comparator.Result{}, spanErr(span, err)
	}
	span.SetAttributes(attribute.Bool("no_match", result.NoMatch))
	return result, nil
}

func (p *Pipeline) retrieve(ctx context.Context, question string) ([]retrieval.CandidateCase, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.retrieve")
	defer span.End()

	candidates, err := p.retriever.Retrieve(ctx, question, p.topK)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("retrieving candidates: %w", err))
	}
	return candidates, nil
}

func (p *Pipeline) compare(ctx context.Context, question string, candidates []retrieval.CandidateCase) (comparator.Result, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.compare")
	defer span.End()

	result, err := p.comparer.Compare(ctx, question, candidates)
	if err != nil {
		return comparator.Result{}, spanErr(span, fmt.Errorf("comparing candidates: %w", err))
	}
	return result, nil
}

// Learn runs the learning loop for one resolved case. Stages run in order
// and each later stage depends on the previous one's persisted output:
// the draft is stored before review, the decision is stored before publish,
// and reindex runs only after a successful publish. A failed publish leaves
// the decision on record and the index untouched.
func (p *Pipeline) Learn(ctx context.Context, caseID string) (LearnResult, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.learn",
		trace.WithAttributes(attribute.String("case_id", caseID)))
	defer span.End()

	c, err := p.store.GetCase(ctx, caseID)
	if err != nil {
		return LearnResult{}, spanErr(span, fmt.Errorf("loading case %s: %w", caseID, err))
	}

	det, err := p.detectGap(ctx, c)
	if err != nil {
		return LearnResult{}, spanErr(span, err)
	}
	result := LearnResult{CaseID: caseID, Outcome: det.Outcome, Reasoning: det.Reasoning}
	span.SetAttributes(attribute.String("gap_outcome", string(det.Outcome)))
	if det.Outcome == gap.NoAction {
		p.logger.Info("no knowledge gap detected", "case_id", caseID)
		return result, nil
	}

	d, err := p.extractDraft(ctx, c, det)
	if err != nil {
		return LearnResult{}, spanErr(span, err)
	}
	result.Draft = &d

	decision, err := p.reviewDraft(ctx, d)
	if err != nil {
		return LearnResult{}, spanErr(span, err)
	}
	result.Decision = &decision
	if !decision.Approved() {
		p.logger.Info("draft rejected",
			"case_id", caseID, "draft_id", d.ID, "reasoning", decision.Reasoning)
		return result, nil
	}

	pub, err := p.publish(ctx, decision, d)
	if err != nil {
		// The decision is already on record; surface the failure and do
		// not touch the index.
		return result, spanErr(span, err)
	}
	result.Published = &pub

	if err := p.reindexArticle(ctx, pub); err != nil {
		// Publish committed. Reindex is idempotent, so the caller can
		// retry it without republishing.
		return result, spanErr(span, err)
	}

	p.logger.Info("learning loop complete",
		"case_id", caseID, "article_id", pub.ArticleID, "version", pub.Version)
	return result, nil
}

func (p *Pipeline) detectGap(ctx context.Context, c kb.Case) (gap.Detection, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.detect_gap")
	defer span.End()

	var nearest *kb.Article
	a, similarity, found, err := p.retriever.NearestArticle(ctx, c.Resolution)
	if err != nil {
		if !errors.Is(err, retrieval.ErrIndexEmpty) {
			return gap.Detection{}, spanErr(span, fmt.Errorf("finding nearest article: %w", err))
		}
		// An empty index simply means no article can be near.
	} else if found {
		nearest = &a
		span.SetAttributes(
			attribute.String("nearest_article_id", a.ArticleID),
			attribute.Float64("similarity", float64(similarity)),
		)
	}

	det, err := p.detector.Detect(ctx, c, nearest)
	if err != nil {
		return gap.Detection{}, spanErr(span, fmt.Errorf("detecting gap for case %s: %w", c.ID, err))
	}
	return det, nil
}

func (p *Pipeline) extractDraft(ctx context.Context, c kb.Case, det gap.Detection) (kb.Draft, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.extract_draft")
	defer span.End()

	var conv *kb.Conversation
	if c.ConversationID != "" {
		cv, err := p.store.GetConversation(ctx, c.ConversationID)
		switch {
		case err == nil:
			conv = &cv
		case errors.Is(err, kb.ErrNotFound):
			p.logger.Warn("case references a missing conversation",
				"case_id", c.ID, "conversation_id", c.ConversationID)
		default:
			return kb.Draft{}, spanErr(span, fmt.Errorf("loading conversation %s: %w", c.ConversationID, err))
		}
	}

	d, err := p.extractor.Extract(ctx, c, det, conv)
	if err != nil {
		return kb.Draft{}, spanErr(span, fmt.Errorf("extracting draft for case %s: %w", c.ID, err))
	}
	if err := p.store.InsertDraft(ctx, d); err != nil {
		return kb.Draft{}, spanErr(span, fmt.Errorf("storing draft %s: %w", d.ID, err))
	}
	return d, nil
}

func (p *Pipeline) reviewDraft(ctx context.Context, d kb.Draft) (kb.ReviewDecision, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.review")
	defer span.End()

	decision, err := p.reviewer.Review(ctx, d)
	if err != nil {
		return kb.ReviewDecision{}, spanErr(span, fmt.Errorf("reviewing draft %s: %w", d.ID, err))
	}
	if err := p.store.InsertDecision(ctx, decision); err != nil {
		return kb.ReviewDecision{}, spanErr(span, fmt.Errorf("recording decision for draft %s: %w", d.ID, err))
	}
	span.SetAttributes(attribute.String("decision", string(decision.Decision)))
	return decision, nil
}

func (p *Pipeline) publish(ctx context.Context, decision kb.ReviewDecision, d kb.Draft) (kb.Published, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.publish")
	defer span.End()

	pub, err := p.store.Publish(ctx, decision, d)
	if err != nil {
		return kb.Published{}, spanErr(span, fmt.Errorf("publishing draft %s: %w", d.ID, err))
	}
	span.SetAttributes(
		attribute.String("article_id", pub.ArticleID),
		attribute.Int("version", pub.Version),
	)
	return pub, nil
}

func (p *Pipeline) reindexArticle(ctx context.Context, pub kb.Published) error {
	ctx, span := p.tracer.Start(ctx, "pipeline.reindex")
	defer span.End()

	if err := p.reindexer.Reindex(ctx, pub.ArticleID, pub.Version); err != nil {
		return spanErr(span, fmt.Errorf("reindexing %s v%d: %w", pub.ArticleID, pub.Version, err))
	}
	return nil
}

// spanErr records err on the span and passes it through.
func spanErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
