package kb

import (
	"time"

	"github.com/google/uuid"
)

// Case is one imported support case. ID is the external ticket number
// (e.g. CS-12345), unique within its kind.
type Case struct {
	ID             string
	Description    string
	Resolution     string
	Status         string
	Tier           string
	Module         string
	Category       string
	ArticleID      string // linked KB article, if any
	ScriptID       string // linked remediation script, if any
	ConversationID string
	CreatedAt      time.Time
}

// Resolved reports whether the case has reached a resolved state and can
// feed the learning loop.
func (c Case) Resolved() bool {
	switch c.Status {
	case "Resolved", "Closed":
		return true
	}
	return false
}

// Script is a sanitized remediation script.
type Script struct {
	ID        string
	Body      string
	CreatedAt time.Time
}

// Conversation is a support conversation transcript linked to a case.
type Conversation struct {
	ID         string
	CaseID     string
	Transcript string
	CreatedAt  time.Time
}

// CaseSteps is one append-only documented-resolution row.
type CaseSteps struct {
	ID                int64
	CaseID            string
	StepsText         string
	ResolutionSummary string
	CreatedAt         time.Time
}

// ArticleStatus is the publication state of one article version.
type ArticleStatus string

const (
	StatusActive     ArticleStatus = "active"
	StatusSuperseded ArticleStatus = "superseded"
)

// Article is one published version of a knowledge article. Versions are
// monotonically increasing per ArticleID, starting at 1; at most one version
// of an ArticleID is active at a time.
type Article struct {
	ArticleID string
	Version   int
	Title     string
	Body      string
	Status    ArticleStatus
	CreatedAt time.Time
}

// Draft is a proposed knowledge article awaiting review. Immutable after
// creation; a correction is a new Draft with an incremented DraftVersion.
// Provenance fields are attached at creation time, never reconstructed.
type Draft struct {
	ID              uuid.UUID
	TriggerCaseID   string
	TargetArticleID string // empty when the draft creates a new article
	ConversationID  string
	ScriptID        string
	Title           string
	Body            string
	Steps           []string
	DraftVersion    int
	CreatedAt       time.Time
}

// Decision is the terminal outcome of a draft review.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// ReviewerKind tags who produced a review decision.
type ReviewerKind string

const (
	ReviewerAutomated ReviewerKind = "automated"
	ReviewerHuman     ReviewerKind = "human"
)

// ReviewDecision is one append-only review record. ArticleID and
// ArticleVersion are assigned at decision time for approved drafts: 1 for a
// new article, prior active version + 1 for an update.
type ReviewDecision struct {
	ID             uuid.UUID
	DraftID        uuid.UUID
	Decision       Decision
	Reasoning      string
	Reviewer       ReviewerKind
	ArticleID      string
	ArticleVersion int
	DecidedAt      time.Time
}

// Approved reports whether the decision allows publication.
func (d ReviewDecision) Approved() bool { return d.Decision == DecisionApproved }

// LineageRow is one append-only provenance edge linking an article version
// to the source record that produced it.
type LineageRow struct {
	ID              int64
	ArticleID       string
	ArticleVersion  int
	SourceKind      string
	SourceID        string
	Relationship    string
	EvidenceSnippet string
	CreatedAt       time.Time
}

// Lineage relationship names.
const (
	RelDerivedFrom  = "derived_from"
	RelConversation = "conversation_context"
	RelScript       = "references_script"
	RelSupersedes   = "supersedes"
)

// Published identifies the article version a successful publish produced.
type Published struct {
	ArticleID string
	Version   int
}
