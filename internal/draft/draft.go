// Package draft synthesizes knowledge-article drafts from resolved cases.
package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/supportmind/supportmind/internal/gap"
	"github.com/supportmind/supportmind/internal/judge"
	"github.com/supportmind/supportmind/internal/kb"
)

// Sentinel errors returned by the extractor.
var (
	ErrNoAction   = errors.New("draft: gap outcome is no_action")
	ErrExtraction = errors.New("draft: extraction failed")
)

const transcriptExcerptChars = 4000

// Versioner allocates draft version numbers per trigger case.
type Versioner interface {
	NextDraftVersion(ctx context.Context, triggerCaseID string) (int, error)
}

// Extractor turns a resolved case into exactly one draft article. Unlike
// gap detection, extraction does not fail open: a draft the model could not
// produce is an error, not an empty artifact, because an empty draft would
// only be rejected downstream anyway.
type Extractor struct {
	judge    judge.Client
	versions Versioner
	logger   *slog.Logger
}

func NewExtractor(j judge.Client, v Versioner, logger *slog.Logger) (*Extractor, error) {
	if j == nil {
		return nil, errors.New("draft: judge client is required")
	}
	if v == nil {
		return nil, errors.New("draft: versioner is required")
	}
	if logger == nil {
		return nil, errors.New("draft: logger is required")
	}
	return &Extractor{judge: j, versions: v, logger: logger}, nil
}

// article is the closed response shape expected from the judge.
type article struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Steps []string `json:"steps"`
}

const promptHeader = `You are a technical writer for a support knowledge base. Turn the resolved case below into a knowledge article a support agent can follow.

Rules:
- Title: one line, symptom-oriented, no case ids
- Body: a short self-contained explanation of the problem and its fix
- Steps: the resolution as an ordered list of concrete actions
- Use only information present in the case; never invent details

Respond with JSON only, no markdown:
{"title": "<title>", "body": "<body>", "steps": ["<step>", ...]}`

// Extract synthesizes one draft from the case and its gap-detection result.
// Provenance (trigger case, conversation, script) is attached here, at
// creation time, so no review can occur without a traceable origin. The
// caller persists the returned draft.
func (e *Extractor) Extract(ctx context.Context, c kb.Case, det gap.Detection, conv *kb.Conversation) (kb.Draft, error) {
	if det.Outcome == gap.NoAction {
		return kb.Draft{}, ErrNoAction
	}
	if det.Outcome == gap.UpdateExisting && det.TargetArticleID == "" {
		return kb.Draft{}, fmt.Errorf("%w: update_existing without a target article", ErrExtraction)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n\nCase %s (%s / %s, tier %s):\nDescription: %s\nResolution: %s\n",
		promptHeader, c.ID, c.Module, c.Category, c.Tier, c.Description, c.Resolution)
	if conv != nil && conv.Transcript != "" {
		fmt.Fprintf(&sb, "\nConversation transcript:\n%s\n",
			judge.Truncate(conv.Transcript, transcriptExcerptChars))
	}
	if det.Outcome == gap.UpdateExisting {
		fmt.Fprintf(&sb, "\nThis article updates existing article %s; write the full replacement content.\n",
			det.TargetArticleID)
	}

	raw, err := e.judge.Judge(ctx, sb.String())
	if err != nil {
		return kb.Draft{}, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	var a article
	if err := json.Unmarshal([]byte(judge.StripCodeFences(raw)), &a); err != nil {
		e.logger.Warn("malformed extraction response",
			"case_id", c.ID, "raw", judge.Truncate(raw, 200))
		return kb.Draft{}, fmt.Errorf("%w: malformed response", ErrExtraction)
	}
	if strings.TrimSpace(a.Title) == "" || strings.TrimSpace(a.Body) == "" {
		return kb.Draft{}, fmt.Errorf("%w: response missing title or body", ErrExtraction)
	}

	version, err := e.versions.NextDraftVersion(ctx, c.ID)
	if err != nil {
		return kb.Draft{}, fmt.Errorf("allocating draft version for case %s: %w", c.ID, err)
	}

	d := kb.Draft{
		ID:              uuid.New(),
		TriggerCaseID:   c.ID,
		TargetArticleID: det.TargetArticleID,
		ConversationID:  c.ConversationID,
		ScriptID:        c.ScriptID,
		Title:           strings.TrimSpace(a.Title),
		Body:            strings.TrimSpace(a.Body),
		Steps:           a.Steps,
		DraftVersion:    version,
	}
	e.logger.Info("draft extracted",
		"draft_id", d.ID, "case_id", c.ID, "draft_version", version,
		"target_article_id", d.TargetArticleID)
	return d, nil
}
