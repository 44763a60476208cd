package testutil

import (
	"context"
	"strings"
	"sync"
)

// ScriptedJudge is a deterministic judge.Client for tests. Responses are
// matched by substring against the prompt, first match wins; unmatched
// prompts get the fallback. Every call is recorded.
//
// Safe for concurrent use.
type ScriptedJudge struct {
	mu       sync.Mutex
	rules    []judgeRule
	fallback string
	err      error
	prompts  []string
}

type judgeRule struct {
	pattern  string
	response string
}

// NewScriptedJudge creates a ScriptedJudge returning fallback for unmatched
// prompts.
func NewScriptedJudge(fallback string) *ScriptedJudge {
	return &ScriptedJudge{fallback: fallback}
}

// AddResponse registers a pattern/response pair. Patterns are matched
// case-insensitively against the prompt in registration order.
func (j *ScriptedJudge) AddResponse(pattern, response string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.rules = append(j.rules, judgeRule{pattern: strings.ToLower(pattern), response: response})
}

// Fail makes every subsequent call return err.
func (j *ScriptedJudge) Fail(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.err = err
}

// Judge implements judge.Client.
func (j *ScriptedJudge) Judge(_ context.Context, prompt string) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.prompts = append(j.prompts, prompt)
	if j.err != nil {
		return "", j.err
	}
	lower := strings.ToLower(prompt)
	for _, r := range j.rules {
		if strings.Contains(lower, r.pattern) {
			return r.response, nil
		}
	}
	return j.fallback, nil
}

// Calls returns how many times Judge was invoked.
func (j *ScriptedJudge) Calls() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.prompts)
}

// LastPrompt returns the most recent prompt, or "" when none was made.
func (j *ScriptedJudge) LastPrompt() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.prompts) == 0 {
		return ""
	}
	return j.prompts[len(j.prompts)-1]
}
