// Package gap decides whether a resolved support case contributes knowledge
// not already captured by an existing article.
package gap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/supportmind/supportmind/internal/judge"
	"github.com/supportmind/supportmind/internal/kb"
)

// Outcome is the gap-detection verdict for one resolved case.
type Outcome string

const (
	// NoAction means the resolution is already well covered.
	NoAction Outcome = "no_action"
	// UpdateExisting means the case materially extends the nearest article.
	UpdateExisting Outcome = "update_existing"
	// CreateNew means no sufficiently close article exists.
	CreateNew Outcome = "create_new"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case NoAction, UpdateExisting, CreateNew:
		return true
	}
	return false
}

// Detection is the result of gap detection for one case.
type Detection struct {
	Outcome Outcome
	// TargetArticleID is the article to extend. Set only for UpdateExisting.
	TargetArticleID string
	Reasoning       string
}

// ErrNotResolved is returned when the case is still open. Only resolved
// cases carry a usable resolution to compare against existing knowledge.
var ErrNotResolved = errors.New("gap: case is not resolved")

const (
	articleExcerptChars    = 1500
	resolutionExcerptChars = 1500
)

// Detector asks the judgment model whether a resolved case warrants a new
// or updated knowledge article. The threshold is semantic, not a numeric
// similarity cutoff: the model sees both the nearest article and the new
// resolution and reasons over meaningful extension.
type Detector struct {
	judge  judge.Client
	logger *slog.Logger
}

func NewDetector(j judge.Client, logger *slog.Logger) (*Detector, error) {
	if j == nil {
		return nil, errors.New("gap: judge client is required")
	}
	if logger == nil {
		return nil, errors.New("gap: logger is required")
	}
	return &Detector{judge: j, logger: logger}, nil
}

// verdict is the closed response shape expected from the judge.
type verdict struct {
	Outcome   string `json:"outcome"`
	Reasoning string `json:"reasoning"`
}

const promptHeader = `You are a knowledge-base gap analyst. A support case has just been resolved. Decide whether its resolution adds knowledge the knowledge base does not already capture.

Answer with exactly one outcome:
- "no_action": the nearest article already covers this resolution
- "update_existing": the resolution materially extends the nearest article
- "create_new": no sufficiently close article exists

Embedding similarity alone cannot tell "same topic, same fix" from "same topic, materially different fix"; reason over the content.

Respond with JSON only, no markdown:
{"outcome": "<no_action|update_existing|create_new>", "reasoning": "<one sentence>"}`

// Detect classifies the resolved case against the nearest active article.
// nearest may be nil when retrieval found no article at all. An unreachable
// or malformed judgment fails open to NoAction so an availability outage
// cannot flood the draft pipeline with unreviewed artifacts.
func (d *Detector) Detect(ctx context.Context, c kb.Case, nearest *kb.Article) (Detection, error) {
	if !c.Resolved() {
		return Detection{}, fmt.Errorf("%w: case %s has status %q", ErrNotResolved, c.ID, c.Status)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n\nResolved case %s (%s / %s):\nDescription: %s\nResolution: %s\n",
		promptHeader, c.ID, c.Module, c.Category,
		judge.Truncate(c.Description, resolutionExcerptChars),
		judge.Truncate(c.Resolution, resolutionExcerptChars))
	if nearest != nil {
		fmt.Fprintf(&sb, "\nNearest existing article %s (version %d):\nTitle: %s\nBody: %s\n",
			nearest.ArticleID, nearest.Version, nearest.Title,
			judge.Truncate(nearest.Body, articleExcerptChars))
	} else {
		sb.WriteString("\nNo existing article is close to this case.\n")
	}

	raw, err := d.judge.Judge(ctx, sb.String())
	if err != nil {
		d.logger.Warn("judgment unavailable, returning no_action",
			"case_id", c.ID, "error", err)
		return Detection{Outcome: NoAction, Reasoning: "judgment unavailable"}, nil
	}

	var v verdict
	if err := json.Unmarshal([]byte(judge.StripCodeFences(raw)), &v); err != nil {
		d.logger.Warn("malformed judgment response, returning no_action",
			"case_id", c.ID, "raw", judge.Truncate(raw, 200))
		return Detection{Outcome: NoAction, Reasoning: "malformed judgment response"}, nil
	}

	out := Outcome(v.Outcome)
	if !out.Valid() {
		d.logger.Warn("unknown gap outcome, returning no_action",
			"case_id", c.ID, "outcome", v.Outcome)
		return Detection{Outcome: NoAction, Reasoning: "unknown outcome"}, nil
	}
	if out == UpdateExisting && nearest == nil {
		// Nothing to extend; the verdict contradicts the input.
		d.logger.Warn("update_existing verdict without a nearest article, returning no_action",
			"case_id", c.ID)
		return Detection{Outcome: NoAction, Reasoning: "no article to update"}, nil
	}

	det := Detection{Outcome: out, Reasoning: v.Reasoning}
	if out == UpdateExisting {
		det.TargetArticleID = nearest.ArticleID
	}
	return det, nil
}
