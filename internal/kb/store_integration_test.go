//go:build integration

package kb_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/supportmind/supportmind/internal/kb"
	"github.com/supportmind/supportmind/internal/log"
	"github.com/supportmind/supportmind/internal/testutil"
)

func setupStore(t *testing.T) *kb.Store {
	t.Helper()
	tdb, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	store, err := kb.NewStore(tdb.Pool, log.NewNop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func seedCase(t *testing.T, store *kb.Store, c kb.Case) {
	t.Helper()
	if err := store.UpsertCase(context.Background(), c); err != nil {
		t.Fatalf("UpsertCase(%s): %v", c.ID, err)
	}
}

func approvedDecision(t *testing.T, store *kb.Store, d kb.Draft, articleID string, version int) kb.ReviewDecision {
	t.Helper()
	if err := store.InsertDraft(context.Background(), d); err != nil {
		t.Fatalf("InsertDraft: %v", err)
	}
	dec := kb.ReviewDecision{
		ID:             uuid.New(),
		DraftID:        d.ID,
		Decision:       kb.DecisionApproved,
		Reasoning:      "meets criteria",
		Reviewer:       kb.ReviewerAutomated,
		ArticleID:      articleID,
		ArticleVersion: version,
		DecidedAt:      time.Now(),
	}
	if err := store.InsertDecision(context.Background(), dec); err != nil {
		t.Fatalf("InsertDecision: %v", err)
	}
	return dec
}

func TestCaseRoundTrip(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	c := kb.Case{
		ID: "CS-1", Description: "d", Resolution: "r", Status: "Resolved",
		Tier: "T2", Module: "Profiles", Category: "Uploads",
		ArticleID: "KB-001", ScriptID: "S-042", ConversationID: "CONV-1",
	}
	seedCase(t, store, c)

	got, err := store.GetCase(ctx, "CS-1")
	if err != nil {
		t.Fatalf("GetCase: %v", err)
	}
	if got.ArticleID != "KB-001" || got.ScriptID != "S-042" || got.ConversationID != "CONV-1" {
		t.Errorf("join keys = %q/%q/%q", got.ArticleID, got.ScriptID, got.ConversationID)
	}

	// Upsert is idempotent and replaces fields.
	c.Status = "Closed"
	seedCase(t, store, c)
	got, err = store.GetCase(ctx, "CS-1")
	if err != nil {
		t.Fatalf("GetCase after upsert: %v", err)
	}
	if got.Status != "Closed" {
		t.Errorf("status = %q, want Closed", got.Status)
	}

	if _, err := store.GetCase(ctx, "CS-404"); !errors.Is(err, kb.ErrNotFound) {
		t.Errorf("GetCase(missing) = %v, want ErrNotFound", err)
	}
}

func TestCaseStepsAppendOnly(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	seedCase(t, store, kb.Case{ID: "CS-2", Status: "Resolved"})

	if _, err := store.AddCaseSteps(ctx, "CS-2", "1. first pass", "partial"); err != nil {
		t.Fatalf("AddCaseSteps: %v", err)
	}
	if _, err := store.AddCaseSteps(ctx, "CS-2", "1. full fix", "complete"); err != nil {
		t.Fatalf("AddCaseSteps: %v", err)
	}

	latest, err := store.LatestCaseSteps(ctx, "CS-2")
	if err != nil {
		t.Fatalf("LatestCaseSteps: %v", err)
	}
	if latest.StepsText != "1. full fix" {
		t.Errorf("latest steps = %q, want newest row", latest.StepsText)
	}
}

func TestPublishNewArticleWithLineage(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	seedCase(t, store, kb.Case{ID: "CS-3", Status: "Resolved", Resolution: "rebuilt the cache"})

	d := kb.Draft{
		ID:             uuid.New(),
		TriggerCaseID:  "CS-3",
		ConversationID: "CONV-3",
		ScriptID:       "S-3",
		Title:          "Cache rebuild procedure",
		Body:           "Rebuild the cache when lookups return stale entries.",
		Steps:          []string{"Stop the worker", "Rebuild", "Restart"},
		DraftVersion:   1,
	}
	dec := approvedDecision(t, store, d, "KB-100", 1)

	pub, err := store.Publish(ctx, dec, d)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if pub.ArticleID != "KB-100" || pub.Version != 1 {
		t.Fatalf("published = %+v", pub)
	}

	active, err := store.ActiveArticle(ctx, "KB-100")
	if err != nil {
		t.Fatalf("ActiveArticle: %v", err)
	}
	if active.Version != 1 || active.Status != kb.StatusActive {
		t.Errorf("active = v%d %s", active.Version, active.Status)
	}

	rows, err := store.Lineage(ctx, "KB-100", 1)
	if err != nil {
		t.Fatalf("Lineage: %v", err)
	}
	kinds := make(map[string]bool)
	for _, r := range rows {
		kinds[r.SourceKind+"/"+r.Relationship] = true
	}
	for _, want := range []string{
		"case/" + kb.RelDerivedFrom,
		"conversation/" + kb.RelConversation,
		"script/" + kb.RelScript,
	} {
		if !kinds[want] {
			t.Errorf("lineage missing %s (got %v)", want, kinds)
		}
	}
}

func TestPublishUpdateSupersedesPrior(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	seedCase(t, store, kb.Case{ID: "CS-4", Status: "Resolved"})

	d1 := kb.Draft{ID: uuid.New(), TriggerCaseID: "CS-4", Title: "v1", Body: "first", DraftVersion: 1}
	pub1, err := store.Publish(ctx, approvedDecision(t, store, d1, "KB-200", 1), d1)
	if err != nil {
		t.Fatalf("publish v1: %v", err)
	}

	d2 := kb.Draft{ID: uuid.New(), TriggerCaseID: "CS-4", TargetArticleID: "KB-200", Title: "v2", Body: "second", DraftVersion: 1}
	pub2, err := store.Publish(ctx, approvedDecision(t, store, d2, "KB-200", 2), d2)
	if err != nil {
		t.Fatalf("publish v2: %v", err)
	}
	if pub2.Version != pub1.Version+1 {
		t.Errorf("versions = %d then %d, want monotonic increment", pub1.Version, pub2.Version)
	}

	active, err := store.ActiveArticle(ctx, "KB-200")
	if err != nil {
		t.Fatalf("ActiveArticle: %v", err)
	}
	if active.Version != 2 || active.Title != "v2" {
		t.Errorf("active = v%d %q, want v2", active.Version, active.Title)
	}

	versions, err := store.ArticleVersions(ctx, "KB-200")
	if err != nil {
		t.Fatalf("ArticleVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("versions = %d, want 2", len(versions))
	}
	if versions[0].Status != kb.StatusSuperseded {
		t.Errorf("v1 status = %s, want superseded", versions[0].Status)
	}

	// The superseded row is immutable history.
	v1, err := store.GetArticle(ctx, "KB-200", 1)
	if err != nil {
		t.Fatalf("GetArticle v1: %v", err)
	}
	if v1.Title != "v1" {
		t.Errorf("v1 title = %q, history was rewritten", v1.Title)
	}

	// Supersede lineage edge is present.
	rows, err := store.Lineage(ctx, "KB-200", 2)
	if err != nil {
		t.Fatalf("Lineage: %v", err)
	}
	found := false
	for _, r := range rows {
		if r.Relationship == kb.RelSupersedes && r.SourceID == "KB-200" {
			found = true
		}
	}
	if !found {
		t.Error("v2 lineage lacks a supersedes edge")
	}
}

func TestConcurrentPublishOneWins(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	seedCase(t, store, kb.Case{ID: "CS-5", Status: "Resolved"})

	base := kb.Draft{ID: uuid.New(), TriggerCaseID: "CS-5", Title: "base", Body: "b", DraftVersion: 1}
	if _, err := store.Publish(ctx, approvedDecision(t, store, base, "KB-300", 1), base); err != nil {
		t.Fatalf("publish base: %v", err)
	}

	// Two decisions made against the same prior active version race to
	// publish version 2. Exactly one must win.
	dA := kb.Draft{ID: uuid.New(), TriggerCaseID: "CS-5", TargetArticleID: "KB-300", Title: "a", Body: "a", DraftVersion: 1}
	dB := kb.Draft{ID: uuid.New(), TriggerCaseID: "CS-5", TargetArticleID: "KB-300", Title: "b", Body: "b", DraftVersion: 1}
	decA := approvedDecision(t, store, dA, "KB-300", 2)
	decB := approvedDecision(t, store, dB, "KB-300", 2)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, pair := range []struct {
		dec   kb.ReviewDecision
		draft kb.Draft
	}{{decA, dA}, {decB, dB}} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = store.Publish(ctx, pair.dec, pair.draft)
		}()
	}
	wg.Wait()

	var conflicts, successes int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, kb.ErrPublishConflict):
			conflicts++
		default:
			t.Fatalf("unexpected publish error: %v", err)
		}
	}
	if successes != 1 || conflicts != 1 {
		t.Fatalf("successes = %d conflicts = %d, want exactly one winner", successes, conflicts)
	}

	active, err := store.ActiveArticle(ctx, "KB-300")
	if err != nil {
		t.Fatalf("ActiveArticle: %v", err)
	}
	if active.Version != 2 {
		t.Errorf("active version = %d, want 2 (no version skipped or doubled)", active.Version)
	}
}

func TestDecisionProjectionPrefersHuman(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	seedCase(t, store, kb.Case{ID: "CS-6", Status: "Resolved"})

	d := kb.Draft{ID: uuid.New(), TriggerCaseID: "CS-6", Title: "t", Body: "b", DraftVersion: 1}
	if err := store.InsertDraft(ctx, d); err != nil {
		t.Fatalf("InsertDraft: %v", err)
	}

	auto := kb.ReviewDecision{
		ID: uuid.New(), DraftID: d.ID, Decision: kb.DecisionRejected,
		Reasoning: "too thin", Reviewer: kb.ReviewerAutomated, DecidedAt: time.Now(),
	}
	if err := store.InsertDecision(ctx, auto); err != nil {
		t.Fatalf("insert automated decision: %v", err)
	}

	// A second automated decision for the same draft is refused.
	dup := auto
	dup.ID = uuid.New()
	if err := store.InsertDecision(ctx, dup); !errors.Is(err, kb.ErrDecisionExists) {
		t.Fatalf("duplicate automated decision error = %v, want ErrDecisionExists", err)
	}

	// A human override appends and takes precedence in the projection.
	human := kb.ReviewDecision{
		ID: uuid.New(), DraftID: d.ID, Decision: kb.DecisionApproved,
		Reasoning: "content is fine", Reviewer: kb.ReviewerHuman,
		ArticleID: "KB-400", ArticleVersion: 1, DecidedAt: time.Now().Add(time.Second),
	}
	if err := store.InsertDecision(ctx, human); err != nil {
		t.Fatalf("insert human decision: %v", err)
	}

	effective, err := store.EffectiveDecision(ctx, d.ID)
	if err != nil {
		t.Fatalf("EffectiveDecision: %v", err)
	}
	if effective.Reviewer != kb.ReviewerHuman || !effective.Approved() {
		t.Errorf("effective = %s by %s, want human approval", effective.Decision, effective.Reviewer)
	}
}

func TestSeedArticleDoesNotClobber(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	seeded, err := store.SeedArticle(ctx, kb.Article{ArticleID: "KB-500", Title: "t1", Body: "b1"})
	if err != nil || !seeded {
		t.Fatalf("SeedArticle = %v, %v", seeded, err)
	}
	seeded, err = store.SeedArticle(ctx, kb.Article{ArticleID: "KB-500", Title: "changed", Body: "changed"})
	if err != nil {
		t.Fatalf("re-seed: %v", err)
	}
	if seeded {
		t.Error("re-seed reported a new insert")
	}

	active, err := store.ActiveArticle(ctx, "KB-500")
	if err != nil {
		t.Fatalf("ActiveArticle: %v", err)
	}
	if active.Title != "t1" {
		t.Errorf("title = %q, re-import clobbered the article", active.Title)
	}
}

func TestNextDraftVersionIncrements(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	seedCase(t, store, kb.Case{ID: "CS-7", Status: "Resolved"})

	v, err := store.NextDraftVersion(ctx, "CS-7")
	if err != nil || v != 1 {
		t.Fatalf("first NextDraftVersion = %d, %v, want 1", v, err)
	}
	d := kb.Draft{ID: uuid.New(), TriggerCaseID: "CS-7", Title: "t", Body: "b", DraftVersion: v}
	if err := store.InsertDraft(ctx, d); err != nil {
		t.Fatalf("InsertDraft: %v", err)
	}
	v, err = store.NextDraftVersion(ctx, "CS-7")
	if err != nil || v != 2 {
		t.Fatalf("second NextDraftVersion = %d, %v, want 2", v, err)
	}
}
