// Package guard screens incoming questions before they reach retrieval and
// the judgment model. Pattern matching catches common injection attempts;
// it is a first line of defense, not a complete one.
package guard

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// ErrRejected is returned when a question trips the filter.
var ErrRejected = errors.New("guard: question rejected")

// QuestionFilter detects prompt-injection patterns in support questions.
type QuestionFilter struct {
	patterns []*regexp.Regexp
}

// NewQuestionFilter creates a filter with the default pattern set.
func NewQuestionFilter() *QuestionFilter {
	patterns := []string{
		// Instruction override attempts
		`(?i)ignore\s+(all\s+)?(previous|above|prior)\s+(instructions?|prompts?|rules?)`,
		`(?i)disregard\s+(all\s+)?(previous|above|prior)\s+(instructions?|prompts?)`,
		`(?i)forget\s+(all\s+)?(previous|above|prior)\s+(instructions?|context)`,

		// Role reassignment
		`(?i)^(pretend|act|behave|imagine)\s+(you\s+are|to\s+be|as\s+if|like)`,
		`(?i)^you\s+are\s+now\s+a`,
		`(?i)^from\s+now\s+on,?\s+you\s+(are|will|must)`,

		// Context escape via fake delimiters
		`(?i)</?(system|instruction|prompt)>`,
		`(?i)^\s*(system|admin)\s*(mode|override|command)?\s*:`,

		// Known jailbreak phrasing
		`(?i)do\s+anything\s+now`,
		`(?i)jailbreak`,
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return &QuestionFilter{patterns: compiled}
}

// Check returns the patterns the question matched, empty when clean.
func (f *QuestionFilter) Check(question string) []string {
	normalized := normalize(question)
	var detected []string
	for _, re := range f.patterns {
		if re.MatchString(normalized) {
			detected = append(detected, re.String())
		}
	}
	return detected
}

// Hook returns an incoming-question transform: clean questions pass through
// trimmed, flagged ones fail with ErrRejected.
func (f *QuestionFilter) Hook() func(ctx context.Context, question string) (string, error) {
	return func(_ context.Context, question string) (string, error) {
		if detected := f.Check(question); len(detected) > 0 {
			return "", fmt.Errorf("%w: matched %d injection pattern(s)", ErrRejected, len(detected))
		}
		return strings.TrimSpace(question), nil
	}
}

// normalize strips zero-width characters and collapses whitespace so
// formatting tricks cannot evade the patterns.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.Is(unicode.Cf, r) || unicode.Is(unicode.Mn, r) {
			continue
		}
		if unicode.IsSpace(r) {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
