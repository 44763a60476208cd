// Package comparator selects the single best matching historical case for a
// new support question via one judgment call over all candidates.
//
// The judgment response is untrusted input: it is parsed into a closed
// decision shape and anything malformed degrades to an explicit no-match
// rather than an error. A degraded recommendation beats a fabricated one.
package comparator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/supportmind/supportmind/internal/judge"
	"github.com/supportmind/supportmind/internal/retrieval"
)

// DefaultExcerptChars bounds the description/resolution excerpts included in
// the judgment payload. Candidates carry linkage booleans instead of full
// article/script bodies, so the relevance signal stays independent of raw
// text length.
const DefaultExcerptChars = 300

// Winner is the selected candidate plus the judgment rationale.
type Winner struct {
	Candidate retrieval.CandidateCase
	Rationale string
}

// Result is the outcome of one comparison. Candidates always lists every
// case considered, whatever the outcome. NoMatch true implies Winner nil.
type Result struct {
	Question   string
	Winner     *Winner
	Candidates []retrieval.CandidateCase
	NoMatch    bool
}

// IncomingHook transforms the question before retrieval (e.g. policy
// filtering). Pure over its inputs; returning an error aborts the flow.
type IncomingHook func(ctx context.Context, question string) (string, error)

// OutgoingHook transforms the final result before it is returned (e.g.
// output validation).
type OutgoingHook func(ctx context.Context, result Result) (Result, error)

// ChainIncoming composes hooks left to right.
func ChainIncoming(hooks ...IncomingHook) IncomingHook {
	return func(ctx context.Context, question string) (string, error) {
		var err error
		for _, h := range hooks {
			if h == nil {
				continue
			}
			if question, err = h(ctx, question); err != nil {
				return "", err
			}
		}
		return question, nil
	}
}

// ChainOutgoing composes hooks left to right.
func ChainOutgoing(hooks ...OutgoingHook) OutgoingHook {
	return func(ctx context.Context, result Result) (Result, error) {
		var err error
		for _, h := range hooks {
			if h == nil {
				continue
			}
			if result, err = h(ctx, result); err != nil {
				return Result{}, err
			}
		}
		return result, nil
	}
}

// Agent compares candidates with a single judgment call.
type Agent struct {
	judge        judge.Client
	excerptChars int
	incoming     IncomingHook
	outgoing     OutgoingHook
	logger       *slog.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithExcerptChars overrides how much of each candidate text the prompt
// includes.
func WithExcerptChars(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.excerptChars = n
		}
	}
}

// WithIncomingHook sets the question transform applied before retrieval.
func WithIncomingHook(h IncomingHook) Option {
	return func(a *Agent) { a.incoming = h }
}

// WithOutgoingHook sets the result transform applied before Compare returns.
func WithOutgoingHook(h OutgoingHook) Option {
	return func(a *Agent) { a.outgoing = h }
}

// NewAgent creates an Agent.
func NewAgent(j judge.Client, logger *slog.Logger, opts ...Option) (*Agent, error) {
	if j == nil {
		return nil, fmt.Errorf("judge client is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Agent{judge: j, excerptChars: DefaultExcerptChars, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// TransformQuestion applies the incoming hook, if set. Callers run this
// before retrieval so the transformed question drives both the vector query
// and the comparison.
func (a *Agent) TransformQuestion(ctx context.Context, question string) (string, error) {
	if a.incoming == nil {
		return question, nil
	}
	return a.incoming(ctx, question)
}

// candidatePayload is the bounded per-candidate view shown to the judge.
type candidatePayload struct {
	Index        int    `json:"index"`
	CaseID       string `json:"case_id"`
	Status       string `json:"status"`
	Tier         string `json:"tier"`
	Module       string `json:"module"`
	Category     string `json:"category"`
	Description  string `json:"description"`
	Resolution   string `json:"resolution"`
	HasKBArticle bool   `json:"has_kb_article"`
	HasScript    bool   `json:"has_script"`
}

// decision is the closed response shape expected from the judge.
type decision struct {
	WinnerIndex *int   `json:"winner_index"`
	Rationale   string `json:"rationale"`
	NoMatch     bool   `json:"no_match"`
}

const promptHeader = `You are a support case matcher. Given a user's support question and a list of similar resolved cases, pick the SINGLE best match, or declare that none is adequate.

Judge by:
- Similarity to the user's issue
- Quality of the recorded resolution
- Availability of a KB article and script
- Module/category match

Respond with JSON only, no markdown:
{"winner_index": <candidate index>, "rationale": "<one sentence>", "no_match": false}
or, when no candidate adequately matches:
{"winner_index": null, "rationale": "<one sentence>", "no_match": true}`

// Compare selects the best candidate for the question. An empty candidate
// list returns no_match without invoking the judge. All candidates are shown
// to the judge in one call so the selection is globally consistent instead
// of order-dependent.
func (a *Agent) Compare(ctx context.Context, question string, candidates []retrieval.CandidateCase) (Result, error) {
	result := Result{
		Question:   question,
		Candidates: candidates,
	}

	if len(candidates) == 0 {
		result.NoMatch = true
		return a.finish(ctx, result)
	}

	payload := make([]candidatePayload, len(candidates))
	for i, c := range candidates {
		payload[i] = candidatePayload{
			Index:        i,
			CaseID:       c.CaseID,
			Status:       c.Status,
			Tier:         c.Tier,
			Module:       c.Module,
			Category:     c.Category,
			Description:  judge.Truncate(c.Description, a.excerptChars),
			Resolution:   judge.Truncate(c.Resolution, a.excerptChars),
			HasKBArticle: c.HasArticle(),
			HasScript:    c.HasScript(),
		}
	}

	payloadJSON, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("marshaling candidates: %w", err)
	}

	prompt := fmt.Sprintf("%s\n\nUser question: %s\n\nCandidate cases:\n%s",
		promptHeader, question, payloadJSON)

	raw, err := a.judge.Judge(ctx, prompt)
	if err != nil {
		// Fail open: an unreachable judge yields an explicit no-match.
		a.logger.Warn("judgment unavailable, returning no_match", "error", err)
		result.NoMatch = true
		return a.finish(ctx, result)
	}

	d, ok := parseDecision(raw)
	if !ok || d.NoMatch || d.WinnerIndex == nil {
		if !ok {
			a.logger.Warn("malformed judgment response, returning no_match",
				"raw", judge.Truncate(raw, 200))
		}
		result.NoMatch = true
		return a.finish(ctx, result)
	}

	idx := *d.WinnerIndex
	if idx < 0 || idx >= len(candidates) {
		a.logger.Warn("judgment winner index out of bounds, returning no_match",
			"index", idx, "candidates", len(candidates))
		result.NoMatch = true
		return a.finish(ctx, result)
	}

	result.Winner = &Winner{Candidate: candidates[idx], Rationale: d.Rationale}
	return a.finish(ctx, result)
}

// finish applies the outgoing hook, if set.
func (a *Agent) finish(ctx context.Context, r Result) (Result, error) {
	if a.outgoing == nil {
		return r, nil
	}
	return a.outgoing(ctx, r)
}

// parseDecision parses the judge response into the closed decision shape.
func parseDecision(raw string) (decision, bool) {
	var d decision
	if err := json.Unmarshal([]byte(judge.StripCodeFences(raw)), &d); err != nil {
		return decision{}, false
	}
	return d, true
}
