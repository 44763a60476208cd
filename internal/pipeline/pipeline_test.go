package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/supportmind/supportmind/internal/comparator"
	"github.com/supportmind/supportmind/internal/gap"
	"github.com/supportmind/supportmind/internal/kb"
	"github.com/supportmind/supportmind/internal/log"
	"github.com/supportmind/supportmind/internal/observability"
	"github.com/supportmind/supportmind/internal/retrieval"
)

type fakeRetriever struct {
	candidates  []retrieval.CandidateCase
	retrieveErr error

	nearest    kb.Article
	similarity float32
	found      bool
	nearestErr error
}

func (f *fakeRetriever) Retrieve(context.Context, string, int) ([]retrieval.CandidateCase, error) {
	return f.candidates, f.retrieveErr
}

func (f *fakeRetriever) NearestArticle(context.Context, string) (kb.Article, float32, bool, error) {
	return f.nearest, f.similarity, f.found, f.nearestErr
}

type fakeComparer struct {
	result comparator.Result
}

func (f *fakeComparer) TransformQuestion(_ context.Context, q string) (string, error) {
	return q, nil
}

func (f *fakeComparer) Compare(_ context.Context, q string, cands []retrieval.CandidateCase) (comparator.Result, error) {
	r := f.result
	r.Question = q
	r.Candidates = cands
	return r, nil
}

type fakeDetector struct {
	detection  gap.Detection
	sawNearest *kb.Article
}

func (f *fakeDetector) Detect(_ context.Context, _ kb.Case, nearest *kb.Article) (gap.Detection, error) {
	f.sawNearest = nearest
	return f.detection, nil
}

type fakeExtractor struct {
	draft kb.Draft
	err   error
}

func (f *fakeExtractor) Extract(_ context.Context, c kb.Case, det gap.Detection, _ *kb.Conversation) (kb.Draft, error) {
	if f.err != nil {
		return kb.Draft{}, f.err
	}
	d := f.draft
	d.TriggerCaseID = c.ID
	d.TargetArticleID = det.TargetArticleID
	return d, nil
}

type fakeReviewer struct {
	decision kb.ReviewDecision
}

func (f *fakeReviewer) Review(_ context.Context, d kb.Draft) (kb.ReviewDecision, error) {
	dec := f.decision
	dec.DraftID = d.ID
	return dec, nil
}

type fakeStore struct {
	cases         map[string]kb.Case
	conversations map[string]kb.Conversation

	drafts    []kb.Draft
	decisions []kb.ReviewDecision

	publishErr error
	published  []kb.Published
}

func (f *fakeStore) GetCase(_ context.Context, id string) (kb.Case, error) {
	c, ok := f.cases[id]
	if !ok {
		return kb.Case{}, kb.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) GetConversation(_ context.Context, id string) (kb.Conversation, error) {
	c, ok := f.conversations[id]
	if !ok {
		return kb.Conversation{}, kb.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) InsertDraft(_ context.Context, d kb.Draft) error {
	f.drafts = append(f.drafts, d)
	return nil
}

func (f *fakeStore) InsertDecision(_ context.Context, d kb.ReviewDecision) error {
	f.decisions = append(f.decisions, d)
	return nil
}

func (f *fakeStore) Publish(_ context.Context, decision kb.ReviewDecision, _ kb.Draft) (kb.Published, error) {
	if f.publishErr != nil {
		return kb.Published{}, f.publishErr
	}
	pub := kb.Published{ArticleID: decision.ArticleID, Version: decision.ArticleVersion}
	f.published = append(f.published, pub)
	return pub, nil
}

type fakeReindexer struct {
	calls []kb.Published
	err   error
}

func (f *fakeReindexer) Reindex(_ context.Context, articleID string, version int) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, kb.Published{ArticleID: articleID, Version: version})
	return nil
}

type deps struct {
	retriever *fakeRetriever
	comparer  *fakeComparer
	detector  *fakeDetector
	extractor *fakeExtractor
	reviewer  *fakeReviewer
	store     *fakeStore
	reindexer *fakeReindexer
}

func newPipeline(t *testing.T, d deps) *Pipeline {
	t.Helper()
	if d.retriever == nil {
		d.retriever = &fakeRetriever{}
	}
	if d.comparer == nil {
		d.comparer = &fakeComparer{}
	}
	if d.detector == nil {
		d.detector = &fakeDetector{}
	}
	if d.extractor == nil {
		d.extractor = &fakeExtractor{}
	}
	if d.reviewer == nil {
		d.reviewer = &fakeReviewer{}
	}
	if d.store == nil {
		d.store = &fakeStore{}
	}
	if d.reindexer == nil {
		d.reindexer = &fakeReindexer{}
	}
	p, err := New(Params{
		Retriever: d.retriever,
		Comparer:  d.comparer,
		Detector:  d.detector,
		Extractor: d.extractor,
		Reviewer:  d.reviewer,
		Store:     d.store,
		Reindexer: d.reindexer,
		Tracer:    observability.Noop(),
		Logger:    log.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestAnswerReturnsWinner(t *testing.T) {
	winner := retrieval.CandidateCase{CaseID: "CS-12345", ArticleID: "KB-001", ScriptID: "S-042"}
	d := deps{
		retriever: &fakeRetriever{candidates: []retrieval.CandidateCase{winner}},
		comparer: &fakeComparer{result: comparator.Result{
			Winner: &comparator.Winner{Candidate: winner, Rationale: "same symptom"},
		}},
	}
	p := newPipeline(t, d)

	got, err := p.Answer(context.Background(), "cannot upload photo")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got.Winner == nil || got.Winner.Candidate.CaseID != "CS-12345" {
		t.Fatalf("winner = %+v, want CS-12345", got.Winner)
	}
	if got.Winner.Candidate.ArticleID != "KB-001" || got.Winner.Candidate.ScriptID != "S-042" {
		t.Error("winner lost its article/script linkage")
	}
}

func TestAnswerPropagatesRetrievalError(t *testing.T) {
	d := deps{retriever: &fakeRetriever{retrieveErr: retrieval.ErrIndexEmpty}}
	p := newPipeline(t, d)

	if _, err := p.Answer(context.Background(), "q"); !errors.Is(err, retrieval.ErrIndexEmpty) {
		t.Fatalf("Answer error = %v, want ErrIndexEmpty", err)
	}
}

func resolvedCase() kb.Case {
	return kb.Case{ID: "CS-50001", Status: "Resolved", Resolution: "restarted the export worker"}
}

func TestLearnNoAction(t *testing.T) {
	d := deps{
		store:    &fakeStore{cases: map[string]kb.Case{"CS-50001": resolvedCase()}},
		detector: &fakeDetector{detection: gap.Detection{Outcome: gap.NoAction, Reasoning: "covered"}},
	}
	p := newPipeline(t, d)

	got, err := p.Learn(context.Background(), "CS-50001")
	if err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if got.Outcome != gap.NoAction {
		t.Errorf("outcome = %s, want no_action", got.Outcome)
	}
	if len(d.store.drafts) != 0 || len(d.store.decisions) != 0 {
		t.Error("no_action still produced drafts or decisions")
	}
}

func TestLearnCreateNewPublishesVersionOne(t *testing.T) {
	draftID := uuid.New()
	d := deps{
		store: &fakeStore{cases: map[string]kb.Case{"CS-50001": resolvedCase()}},
		// Empty article index: no nearest article exists.
		retriever: &fakeRetriever{found: false},
		detector:  &fakeDetector{detection: gap.Detection{Outcome: gap.CreateNew, Reasoning: "new topic"}},
		extractor: &fakeExtractor{draft: kb.Draft{ID: draftID, Title: "t", Body: "b", DraftVersion: 1}},
		reviewer: &fakeReviewer{decision: kb.ReviewDecision{
			ID:             uuid.New(),
			Decision:       kb.DecisionApproved,
			Reviewer:       kb.ReviewerAutomated,
			ArticleID:      "KB-new",
			ArticleVersion: 1,
		}},
		reindexer: &fakeReindexer{},
	}
	p := newPipeline(t, d)

	got, err := p.Learn(context.Background(), "CS-50001")
	if err != nil {
		t.Fatalf("Learn: %v", err)
	}

	if d.detector.sawNearest != nil {
		t.Error("detector was shown a nearest article despite an empty article index")
	}
	if got.Draft == nil || got.Draft.TargetArticleID != "" {
		t.Errorf("draft = %+v, want create_new draft without target", got.Draft)
	}
	if got.Published == nil || got.Published.Version != 1 {
		t.Fatalf("published = %+v, want version 1", got.Published)
	}
	if len(d.store.drafts) != 1 || d.store.drafts[0].ID != draftID {
		t.Error("draft was not persisted before review")
	}
	if len(d.store.decisions) != 1 || d.store.decisions[0].DraftID != draftID {
		t.Error("decision was not recorded")
	}
	if len(d.reindexer.calls) != 1 || d.reindexer.calls[0].Version != 1 {
		t.Errorf("reindex calls = %+v, want one call for version 1", d.reindexer.calls)
	}
}

func TestLearnUpdateExistingCarriesTarget(t *testing.T) {
	nearest := kb.Article{ArticleID: "KB-010", Version: 3, Status: kb.StatusActive}
	d := deps{
		store:     &fakeStore{cases: map[string]kb.Case{"CS-50001": resolvedCase()}},
		retriever: &fakeRetriever{nearest: nearest, similarity: 0.91, found: true},
		detector: &fakeDetector{detection: gap.Detection{
			Outcome:         gap.UpdateExisting,
			TargetArticleID: "KB-010",
		}},
		extractor: &fakeExtractor{draft: kb.Draft{ID: uuid.New(), Title: "t", Body: "b"}},
		reviewer: &fakeReviewer{decision: kb.ReviewDecision{
			ID:             uuid.New(),
			Decision:       kb.DecisionApproved,
			ArticleID:      "KB-010",
			ArticleVersion: 4,
		}},
		reindexer: &fakeReindexer{},
	}
	p := newPipeline(t, d)

	got, err := p.Learn(context.Background(), "CS-50001")
	if err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if d.detector.sawNearest == nil || d.detector.sawNearest.ArticleID != "KB-010" {
		t.Error("detector did not receive the nearest article")
	}
	if got.Draft.TargetArticleID != "KB-010" {
		t.Errorf("draft target = %q, want KB-010", got.Draft.TargetArticleID)
	}
	if got.Published == nil || got.Published.Version != 4 {
		t.Fatalf("published = %+v, want KB-010 v4", got.Published)
	}
}

func TestLearnRejectedDraftStopsBeforePublish(t *testing.T) {
	d := deps{
		store:     &fakeStore{cases: map[string]kb.Case{"CS-50001": resolvedCase()}},
		detector:  &fakeDetector{detection: gap.Detection{Outcome: gap.CreateNew}},
		extractor: &fakeExtractor{draft: kb.Draft{ID: uuid.New(), Title: "t", Body: "b"}},
		reviewer: &fakeReviewer{decision: kb.ReviewDecision{
			ID:        uuid.New(),
			Decision:  kb.DecisionRejected,
			Reasoning: "ambiguous fix",
		}},
		reindexer: &fakeReindexer{},
	}
	p := newPipeline(t, d)

	got, err := p.Learn(context.Background(), "CS-50001")
	if err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if got.Published != nil {
		t.Error("rejected draft was published")
	}
	if len(d.store.decisions) != 1 {
		t.Error("rejection was not recorded")
	}
	if len(d.store.published) != 0 || len(d.reindexer.calls) != 0 {
		t.Error("rejected draft reached publish or reindex")
	}
}

func TestLearnPublishConflictSkipsReindex(t *testing.T) {
	d := deps{
		store: &fakeStore{
			cases:      map[string]kb.Case{"CS-50001": resolvedCase()},
			publishErr: kb.ErrPublishConflict,
		},
		detector:  &fakeDetector{detection: gap.Detection{Outcome: gap.CreateNew}},
		extractor: &fakeExtractor{draft: kb.Draft{ID: uuid.New(), Title: "t", Body: "b"}},
		reviewer: &fakeReviewer{decision: kb.ReviewDecision{
			ID:             uuid.New(),
			Decision:       kb.DecisionApproved,
			ArticleID:      "KB-001",
			ArticleVersion: 2,
		}},
		reindexer: &fakeReindexer{},
	}
	p := newPipeline(t, d)

	got, err := p.Learn(context.Background(), "CS-50001")
	if !errors.Is(err, kb.ErrPublishConflict) {
		t.Fatalf("Learn error = %v, want ErrPublishConflict", err)
	}
	// Audit history survives the failed publish.
	if got.Decision == nil || len(d.store.decisions) != 1 {
		t.Error("decision record was lost on publish failure")
	}
	if len(d.reindexer.calls) != 0 {
		t.Error("reindex ran after a failed publish")
	}
}

func TestLearnUnknownCase(t *testing.T) {
	p := newPipeline(t, deps{store: &fakeStore{}})

	if _, err := p.Learn(context.Background(), "CS-404"); !errors.Is(err, kb.ErrNotFound) {
		t.Fatalf("Learn error = %v, want ErrNotFound", err)
	}
}
