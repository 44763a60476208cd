// Package review evaluates drafts and assigns article versions. Every draft
// ends in exactly one terminal decision, approved or rejected, recorded
// before any downstream action.
package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/supportmind/supportmind/internal/judge"
	"github.com/supportmind/supportmind/internal/kb"
)

// ErrReview is returned when a decision cannot be produced at all, as
// opposed to a draft being rejected.
var ErrReview = errors.New("review: evaluation failed")

// Criteria are the deterministic acceptance checks applied before the
// judgment pass. A draft failing any of them is rejected without spending a
// judge call. Bounds are deployment policy, injected from configuration.
type Criteria struct {
	MinBodyChars int
	MaxBodyChars int
	// PlaceholderTokens reject drafts with unresolved template text.
	PlaceholderTokens []string
}

// DefaultCriteria matches the configuration defaults.
func DefaultCriteria() Criteria {
	return Criteria{
		MinBodyChars:      50,
		MaxBodyChars:      20000,
		PlaceholderTokens: []string{"TODO", "TBD", "FIXME", "<placeholder>", "[insert", "lorem ipsum"},
	}
}

// Check returns the reasons the draft fails deterministic review, or an
// empty slice when it passes.
func (c Criteria) Check(d kb.Draft) []string {
	var reasons []string
	if strings.TrimSpace(d.Title) == "" {
		reasons = append(reasons, "empty title")
	}
	body := strings.TrimSpace(d.Body)
	if body == "" {
		reasons = append(reasons, "empty body")
	} else {
		if len(body) < c.MinBodyChars {
			reasons = append(reasons, fmt.Sprintf("body shorter than %d chars", c.MinBodyChars))
		}
		if len(body) > c.MaxBodyChars {
			reasons = append(reasons, fmt.Sprintf("body longer than %d chars", c.MaxBodyChars))
		}
	}
	if d.TriggerCaseID == "" {
		reasons = append(reasons, "missing trigger case id")
	}
	haystack := strings.ToLower(d.Title + "\n" + d.Body + "\n" + strings.Join(d.Steps, "\n"))
	for _, tok := range c.PlaceholderTokens {
		if strings.Contains(haystack, strings.ToLower(tok)) {
			reasons = append(reasons, fmt.Sprintf("unresolved placeholder %q", tok))
		}
	}
	return reasons
}

// ArticleSource resolves the current active version of an article lineage.
type ArticleSource interface {
	ActiveArticle(ctx context.Context, articleID string) (kb.Article, error)
}

// Engine reviews drafts. The deterministic criteria run first; only drafts
// passing them reach the judgment quality pass.
type Engine struct {
	judge    judge.Client
	articles ArticleSource
	criteria Criteria
	logger   *slog.Logger
	now      func() time.Time
}

func NewEngine(j judge.Client, articles ArticleSource, criteria Criteria, logger *slog.Logger) (*Engine, error) {
	if j == nil {
		return nil, errors.New("review: judge client is required")
	}
	if articles == nil {
		return nil, errors.New("review: article source is required")
	}
	if logger == nil {
		return nil, errors.New("review: logger is required")
	}
	if criteria.MinBodyChars < 1 || criteria.MaxBodyChars <= criteria.MinBodyChars {
		return nil, fmt.Errorf("review: invalid body bounds min=%d max=%d",
			criteria.MinBodyChars, criteria.MaxBodyChars)
	}
	return &Engine{judge: j, articles: articles, criteria: criteria, logger: logger, now: time.Now}, nil
}

// qualityVerdict is the closed response shape expected from the judge.
type qualityVerdict struct {
	Approve   bool   `json:"approve"`
	Reasoning string `json:"reasoning"`
}

const promptHeader = `You are a knowledge-base quality reviewer. Decide whether the draft article below is accurate, safe, and useful enough to publish for support agents.

Reject drafts that:
- Give advice that could harm customer data or security
- Contradict themselves or leave the fix ambiguous
- Contain content unrelated to the stated problem

Respond with JSON only, no markdown:
{"approve": <true|false>, "reasoning": "<one sentence>"}`

// Review evaluates the draft and returns its terminal decision with the
// article id and version assigned for publication. The caller records the
// decision before publishing.
//
// Version assignment: a new article gets version 1 under a fresh KB id; an
// update gets the prior active version + 1. Reading the prior version here,
// at decision time, is what arms the publisher's optimistic conflict check.
func (e *Engine) Review(ctx context.Context, d kb.Draft) (kb.ReviewDecision, error) {
	decision := kb.ReviewDecision{
		ID:       uuid.New(),
		DraftID:  d.ID,
		Reviewer: kb.ReviewerAutomated,
	}

	if reasons := e.criteria.Check(d); len(reasons) > 0 {
		decision.Decision = kb.DecisionRejected
		decision.Reasoning = "failed acceptance criteria: " + strings.Join(reasons, "; ")
		decision.DecidedAt = e.now()
		e.logger.Info("draft rejected by acceptance criteria",
			"draft_id", d.ID, "reasons", reasons)
		return decision, nil
	}

	prompt := fmt.Sprintf("%s\n\nDraft title: %s\n\nDraft body:\n%s\n\nDraft steps:\n- %s",
		promptHeader, d.Title, d.Body, strings.Join(d.Steps, "\n- "))
	raw, err := e.judge.Judge(ctx, prompt)
	if err != nil {
		return kb.ReviewDecision{}, fmt.Errorf("%w: %v", ErrReview, err)
	}

	var v qualityVerdict
	if err := json.Unmarshal([]byte(judge.StripCodeFences(raw)), &v); err != nil {
		// Fail safe: an unreadable verdict rejects rather than publishes.
		decision.Decision = kb.DecisionRejected
		decision.Reasoning = "quality review response was unreadable"
		decision.DecidedAt = e.now()
		e.logger.Warn("malformed review response, rejecting draft",
			"draft_id", d.ID, "raw", judge.Truncate(raw, 200))
		return decision, nil
	}

	decision.Reasoning = v.Reasoning
	if !v.Approve {
		decision.Decision = kb.DecisionRejected
		decision.DecidedAt = e.now()
		return decision, nil
	}

	articleID, version, err := e.assignVersion(ctx, d)
	if err != nil {
		return kb.ReviewDecision{}, err
	}
	decision.Decision = kb.DecisionApproved
	decision.ArticleID = articleID
	decision.ArticleVersion = version
	decision.DecidedAt = e.now()
	e.logger.Info("draft approved",
		"draft_id", d.ID, "article_id", articleID, "article_version", version)
	return decision, nil
}

// assignVersion picks the target article id and version for an approved
// draft. New articles get a generated KB id so ids never collide with
// imported ones.
func (e *Engine) assignVersion(ctx context.Context, d kb.Draft) (string, int, error) {
	if d.TargetArticleID == "" {
		return fmt.Sprintf("KB-%s", uuid.New()), 1, nil
	}
	prior, err := e.articles.ActiveArticle(ctx, d.TargetArticleID)
	if err != nil {
		if errors.Is(err, kb.ErrNotFound) {
			// The target was retired between gap detection and review.
			// Mint a fresh lineage instead of resurrecting the old id.
			return fmt.Sprintf("KB-%s", uuid.New()), 1, nil
		}
		return "", 0, fmt.Errorf("reading active version of %s: %w", d.TargetArticleID, err)
	}
	return d.TargetArticleID, prior.Version + 1, nil
}
