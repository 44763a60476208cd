// Package kb is the knowledge store: imported support cases, scripts and
// conversations, plus the article/draft/decision/lineage tables the learning
// pipeline writes to.
//
// Review decisions and lineage rows are append-only logs; "current state"
// (the active article version, the effective decision for a draft) is a
// read-time projection over them.
package kb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates a point lookup matched no row.
	ErrNotFound = errors.New("not found")

	// ErrPublishConflict indicates a concurrent publish won the optimistic
	// version check. The caller must re-read the active version before
	// retrying; Publish never skips version numbers on its own.
	ErrPublishConflict = errors.New("publish conflict")

	// ErrDecisionExists indicates the draft already has an automated
	// terminal decision. Decisions are never edited or replaced.
	ErrDecisionExists = errors.New("decision already recorded for draft")
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const caseCols = `case_id, description, resolution, status, tier, module, category,
	kb_article_id, script_id, conversation_id, created_at`

const articleCols = `article_id, version, title, body, status, created_at`

// Store provides access to the knowledge database.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// UpsertCase inserts or replaces an imported case row.
func (s *Store) UpsertCase(ctx context.Context, c Case) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cases (case_id, description, resolution, status, tier, module, category,
			kb_article_id, script_id, conversation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (case_id) DO UPDATE SET
			description = EXCLUDED.description,
			resolution = EXCLUDED.resolution,
			status = EXCLUDED.status,
			tier = EXCLUDED.tier,
			module = EXCLUDED.module,
			category = EXCLUDED.category,
			kb_article_id = EXCLUDED.kb_article_id,
			script_id = EXCLUDED.script_id,
			conversation_id = EXCLUDED.conversation_id`,
		c.ID, c.Description, c.Resolution, c.Status, c.Tier, c.Module, c.Category,
		c.ArticleID, c.ScriptID, c.ConversationID)
	if err != nil {
		return fmt.Errorf("upserting case %q: %w", c.ID, err)
	}
	return nil
}

// GetCase returns one case by its ticket number.
func (s *Store) GetCase(ctx context.Context, caseID string) (Case, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+caseCols+` FROM cases WHERE case_id = $1`, caseID)
	c, err := scanCase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Case{}, fmt.Errorf("case %q: %w", caseID, ErrNotFound)
		}
		return Case{}, fmt.Errorf("loading case %q: %w", caseID, err)
	}
	return c, nil
}

// GetCases returns the cases for the given IDs, preserving input order.
// IDs with no matching row are skipped.
func (s *Store) GetCases(ctx context.Context, caseIDs []string) ([]Case, error) {
	if len(caseIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+caseCols+` FROM cases WHERE case_id = ANY($1)`, caseIDs)
	if err != nil {
		return nil, fmt.Errorf("loading cases: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]Case, len(caseIDs))
	for rows.Next() {
		c, scanErr := scanCase(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning case: %w", scanErr)
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cases: %w", err)
	}

	out := make([]Case, 0, len(byID))
	for _, id := range caseIDs {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// ListCases returns all cases, optionally filtered by status.
func (s *Store) ListCases(ctx context.Context, status string) ([]Case, error) {
	q := `SELECT ` + caseCols + ` FROM cases ORDER BY case_id`
	args := []any{}
	if status != "" {
		q = `SELECT ` + caseCols + ` FROM cases WHERE status = $1 ORDER BY case_id`
		args = append(args, status)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing cases: %w", err)
	}
	defer rows.Close()

	var out []Case
	for rows.Next() {
		c, scanErr := scanCase(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning case: %w", scanErr)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertScript inserts or replaces a script.
func (s *Store) UpsertScript(ctx context.Context, sc Script) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scripts (script_id, body) VALUES ($1, $2)
		ON CONFLICT (script_id) DO UPDATE SET body = EXCLUDED.body`,
		sc.ID, sc.Body)
	if err != nil {
		return fmt.Errorf("upserting script %q: %w", sc.ID, err)
	}
	return nil
}

// GetScript returns one script by ID.
func (s *Store) GetScript(ctx context.Context, scriptID string) (Script, error) {
	var sc Script
	err := s.pool.QueryRow(ctx,
		`SELECT script_id, body, created_at FROM scripts WHERE script_id = $1`, scriptID).
		Scan(&sc.ID, &sc.Body, &sc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Script{}, fmt.Errorf("script %q: %w", scriptID, ErrNotFound)
		}
		return Script{}, fmt.Errorf("loading script %q: %w", scriptID, err)
	}
	return sc, nil
}

// ListScripts returns all scripts.
func (s *Store) ListScripts(ctx context.Context) ([]Script, error) {
	rows, err := s.pool.Query(ctx, `SELECT script_id, body, created_at FROM scripts ORDER BY script_id`)
	if err != nil {
		return nil, fmt.Errorf("listing scripts: %w", err)
	}
	defer rows.Close()

	var out []Script
	for rows.Next() {
		var sc Script
		if err := rows.Scan(&sc.ID, &sc.Body, &sc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning script: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// UpsertConversation inserts or replaces a conversation transcript.
func (s *Store) UpsertConversation(ctx context.Context, c Conversation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (conversation_id, case_id, transcript) VALUES ($1, $2, $3)
		ON CONFLICT (conversation_id) DO UPDATE SET
			case_id = EXCLUDED.case_id, transcript = EXCLUDED.transcript`,
		c.ID, c.CaseID, c.Transcript)
	if err != nil {
		return fmt.Errorf("upserting conversation %q: %w", c.ID, err)
	}
	return nil
}

// GetConversation returns one conversation by ID.
func (s *Store) GetConversation(ctx context.Context, conversationID string) (Conversation, error) {
	var c Conversation
	err := s.pool.QueryRow(ctx,
		`SELECT conversation_id, case_id, transcript, created_at FROM conversations WHERE conversation_id = $1`,
		conversationID).
		Scan(&c.ID, &c.CaseID, &c.Transcript, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, fmt.Errorf("conversation %q: %w", conversationID, ErrNotFound)
		}
		return Conversation{}, fmt.Errorf("loading conversation %q: %w", conversationID, err)
	}
	return c, nil
}

// AddCaseSteps appends a documented-resolution row for a case.
func (s *Store) AddCaseSteps(ctx context.Context, caseID, stepsText, resolutionSummary string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO case_steps (case_id, steps_text, resolution_summary)
		VALUES ($1, $2, $3) RETURNING id`,
		caseID, stepsText, resolutionSummary).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("adding case steps for %q: %w", caseID, err)
	}
	s.logger.Debug("case steps recorded", "case_id", caseID, "id", id)
	return id, nil
}

// LatestCaseSteps returns the newest documented-resolution row for a case,
// or ErrNotFound when none has been recorded.
func (s *Store) LatestCaseSteps(ctx context.Context, caseID string) (CaseSteps, error) {
	var cs CaseSteps
	err := s.pool.QueryRow(ctx, `
		SELECT id, case_id, steps_text, resolution_summary, created_at
		FROM case_steps WHERE case_id = $1
		ORDER BY created_at DESC, id DESC LIMIT 1`, caseID).
		Scan(&cs.ID, &cs.CaseID, &cs.StepsText, &cs.ResolutionSummary, &cs.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CaseSteps{}, fmt.Errorf("case steps for %q: %w", caseID, ErrNotFound)
		}
		return CaseSteps{}, fmt.Errorf("loading case steps for %q: %w", caseID, err)
	}
	return cs, nil
}

// ActiveArticle returns the active version of an article lineage, or
// ErrNotFound when the lineage does not exist or has no active version.
func (s *Store) ActiveArticle(ctx context.Context, articleID string) (Article, error) {
	return s.activeArticle(ctx, s.pool, articleID)
}

func (s *Store) activeArticle(ctx context.Context, q querier, articleID string) (Article, error) {
	var a Article
	err := q.QueryRow(ctx,
		`SELECT `+articleCols+` FROM articles WHERE article_id = $1 AND status = 'active'`,
		articleID).
		Scan(&a.ArticleID, &a.Version, &a.Title, &a.Body, &a.Status, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Article{}, fmt.Errorf("active article %q: %w", articleID, ErrNotFound)
		}
		return Article{}, fmt.Errorf("loading active article %q: %w", articleID, err)
	}
	return a, nil
}

// GetArticle returns one article version.
func (s *Store) GetArticle(ctx context.Context, articleID string, version int) (Article, error) {
	var a Article
	err := s.pool.QueryRow(ctx,
		`SELECT `+articleCols+` FROM articles WHERE article_id = $1 AND version = $2`,
		articleID, version).
		Scan(&a.ArticleID, &a.Version, &a.Title, &a.Body, &a.Status, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Article{}, fmt.Errorf("article %q v%d: %w", articleID, version, ErrNotFound)
		}
		return Article{}, fmt.Errorf("loading article %q v%d: %w", articleID, version, err)
	}
	return a, nil
}

// ActiveArticles returns all currently active article versions.
func (s *Store) ActiveArticles(ctx context.Context) ([]Article, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+articleCols+` FROM articles WHERE status = 'active' ORDER BY article_id`)
	if err != nil {
		return nil, fmt.Errorf("listing active articles: %w", err)
	}
	defer rows.Close()

	var out []Article
	for rows.Next() {
		var a Article
		if err := rows.Scan(&a.ArticleID, &a.Version, &a.Title, &a.Body, &a.Status, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning article: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ArticleVersions returns all versions of one lineage, oldest first.
func (s *Store) ArticleVersions(ctx context.Context, articleID string) ([]Article, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+articleCols+` FROM articles WHERE article_id = $1 ORDER BY version`, articleID)
	if err != nil {
		return nil, fmt.Errorf("listing versions of %q: %w", articleID, err)
	}
	defer rows.Close()

	var out []Article
	for rows.Next() {
		var a Article
		if err := rows.Scan(&a.ArticleID, &a.Version, &a.Title, &a.Body, &a.Status, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning article: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SeedArticle inserts an imported article as version 1, active. A lineage
// that already has any version is left untouched so a re-import never
// clobbers published knowledge.
func (s *Store) SeedArticle(ctx context.Context, a Article) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO articles (article_id, version, title, body, status)
		VALUES ($1, 1, $2, $3, 'active')
		ON CONFLICT (article_id, version) DO NOTHING`,
		a.ArticleID, a.Title, a.Body)
	if err != nil {
		return false, fmt.Errorf("seeding article %q: %w", a.ArticleID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// NextDraftVersion returns 1 + the highest existing draft version for a
// trigger case (1 when the case has no drafts yet).
func (s *Store) NextDraftVersion(ctx context.Context, triggerCaseID string) (int, error) {
	var next int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(draft_version), 0) + 1 FROM drafts WHERE trigger_case_id = $1`,
		triggerCaseID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("computing next draft version for %q: %w", triggerCaseID, err)
	}
	return next, nil
}

// InsertDraft stores a new draft. Drafts are never updated.
func (s *Store) InsertDraft(ctx context.Context, d Draft) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO drafts (draft_id, trigger_case_id, target_article_id, conversation_id,
			script_id, title, body, steps, draft_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.TriggerCaseID, d.TargetArticleID, d.ConversationID,
		d.ScriptID, d.Title, d.Body, d.Steps, d.DraftVersion)
	if err != nil {
		return fmt.Errorf("inserting draft %s: %w", d.ID, err)
	}
	s.logger.Debug("draft stored", "draft_id", d.ID, "trigger_case", d.TriggerCaseID, "draft_version", d.DraftVersion)
	return nil
}

// GetDraft returns one draft by ID.
func (s *Store) GetDraft(ctx context.Context, draftID uuid.UUID) (Draft, error) {
	var d Draft
	err := s.pool.QueryRow(ctx, `
		SELECT draft_id, trigger_case_id, target_article_id, conversation_id,
			script_id, title, body, steps, draft_version, created_at
		FROM drafts WHERE draft_id = $1`, draftID).
		Scan(&d.ID, &d.TriggerCaseID, &d.TargetArticleID, &d.ConversationID,
			&d.ScriptID, &d.Title, &d.Body, &d.Steps, &d.DraftVersion, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Draft{}, fmt.Errorf("draft %s: %w", draftID, ErrNotFound)
		}
		return Draft{}, fmt.Errorf("loading draft %s: %w", draftID, err)
	}
	return d, nil
}

// InsertDecision appends a review decision. A second automated decision for
// the same draft returns ErrDecisionExists; human decisions always append
// (the projection in EffectiveDecision prefers the newest human row).
func (s *Store) InsertDecision(ctx context.Context, d ReviewDecision) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO review_decisions (decision_id, draft_id, decision, reasoning,
			reviewer_kind, article_id, article_version, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.DraftID, d.Decision, d.Reasoning, d.Reviewer, d.ArticleID, d.ArticleVersion, d.DecidedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("draft %s: %w", d.DraftID, ErrDecisionExists)
		}
		return fmt.Errorf("inserting decision %s: %w", d.ID, err)
	}
	s.logger.Info("review decision recorded",
		"draft_id", d.DraftID, "decision", d.Decision, "reviewer", d.Reviewer)
	return nil
}

// EffectiveDecision projects the current decision for a draft: the newest
// human decision when one exists, otherwise the automated one.
func (s *Store) EffectiveDecision(ctx context.Context, draftID uuid.UUID) (ReviewDecision, error) {
	var d ReviewDecision
	err := s.pool.QueryRow(ctx, `
		SELECT decision_id, draft_id, decision, reasoning, reviewer_kind,
			article_id, article_version, decided_at
		FROM review_decisions WHERE draft_id = $1
		ORDER BY (reviewer_kind = 'human') DESC, decided_at DESC LIMIT 1`, draftID).
		Scan(&d.ID, &d.DraftID, &d.Decision, &d.Reasoning, &d.Reviewer,
			&d.ArticleID, &d.ArticleVersion, &d.DecidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ReviewDecision{}, fmt.Errorf("decision for draft %s: %w", draftID, ErrNotFound)
		}
		return ReviewDecision{}, fmt.Errorf("loading decision for draft %s: %w", draftID, err)
	}
	return d, nil
}

// Publish atomically commits an approved draft as a new article version and
// writes its lineage rows. For an update, the prior active version is flipped
// to superseded under an optimistic check: if the version read at decision
// time is no longer the active one, Publish returns ErrPublishConflict and
// writes nothing. All writes share one transaction, so an article row
// without lineage (or the reverse) cannot be observed.
func (s *Store) Publish(ctx context.Context, decision ReviewDecision, draft Draft) (Published, error) {
	if !decision.Approved() {
		return Published{}, fmt.Errorf("publishing draft %s: decision is %s, not approved", draft.ID, decision.Decision)
	}
	if decision.DraftID != draft.ID {
		return Published{}, fmt.Errorf("publishing draft %s: decision %s belongs to draft %s",
			draft.ID, decision.ID, decision.DraftID)
	}
	if decision.ArticleID == "" || decision.ArticleVersion < 1 {
		return Published{}, fmt.Errorf("publishing draft %s: decision carries no assigned version", draft.ID)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Published{}, fmt.Errorf("beginning publish transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("publish rollback", "error", rbErr)
		}
	}()

	// Supersede the prior active version. Zero rows updated means another
	// publish already moved the lineage past the version this decision was
	// made against.
	if decision.ArticleVersion > 1 {
		tag, execErr := tx.Exec(ctx, `
			UPDATE articles SET status = 'superseded'
			WHERE article_id = $1 AND version = $2 AND status = 'active'`,
			decision.ArticleID, decision.ArticleVersion-1)
		if execErr != nil {
			return Published{}, fmt.Errorf("superseding %q v%d: %w",
				decision.ArticleID, decision.ArticleVersion-1, execErr)
		}
		if tag.RowsAffected() == 0 {
			return Published{}, fmt.Errorf("article %q: prior version %d is no longer active: %w",
				decision.ArticleID, decision.ArticleVersion-1, ErrPublishConflict)
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO articles (article_id, version, title, body, status)
		VALUES ($1, $2, $3, $4, 'active')`,
		decision.ArticleID, decision.ArticleVersion, draft.Title, draft.Body); err != nil {
		if isUniqueViolation(err) {
			return Published{}, fmt.Errorf("article %q v%d already exists: %w",
				decision.ArticleID, decision.ArticleVersion, ErrPublishConflict)
		}
		return Published{}, fmt.Errorf("inserting article %q v%d: %w",
			decision.ArticleID, decision.ArticleVersion, err)
	}

	for _, row := range lineageRows(decision, draft) {
		if _, err := tx.Exec(ctx, `
			INSERT INTO lineage (article_id, article_version, source_kind, source_id,
				relationship, evidence_snippet)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			row.ArticleID, row.ArticleVersion, row.SourceKind, row.SourceID,
			row.Relationship, row.EvidenceSnippet); err != nil {
			return Published{}, fmt.Errorf("inserting lineage for %q v%d: %w",
				decision.ArticleID, decision.ArticleVersion, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Published{}, fmt.Errorf("committing publish of %q v%d: %w",
			decision.ArticleID, decision.ArticleVersion, err)
	}

	s.logger.Info("article published",
		"article_id", decision.ArticleID, "version", decision.ArticleVersion,
		"trigger_case", draft.TriggerCaseID)
	return Published{ArticleID: decision.ArticleID, Version: decision.ArticleVersion}, nil
}

// Lineage returns the provenance rows for one article version, oldest first.
func (s *Store) Lineage(ctx context.Context, articleID string, version int) ([]LineageRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, article_id, article_version, source_kind, source_id,
			relationship, evidence_snippet, created_at
		FROM lineage WHERE article_id = $1 AND article_version = $2 ORDER BY id`,
		articleID, version)
	if err != nil {
		return nil, fmt.Errorf("loading lineage for %q v%d: %w", articleID, version, err)
	}
	defer rows.Close()

	var out []LineageRow
	for rows.Next() {
		var r LineageRow
		if err := rows.Scan(&r.ID, &r.ArticleID, &r.ArticleVersion, &r.SourceKind,
			&r.SourceID, &r.Relationship, &r.EvidenceSnippet, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning lineage row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// lineageRows builds the provenance edges for one publish from the draft's
// creation-time provenance fields.
func lineageRows(decision ReviewDecision, draft Draft) []LineageRow {
	rows := []LineageRow{{
		ArticleID:       decision.ArticleID,
		ArticleVersion:  decision.ArticleVersion,
		SourceKind:      "case",
		SourceID:        draft.TriggerCaseID,
		Relationship:    RelDerivedFrom,
		EvidenceSnippet: snippet(draft.Body, 200),
	}}
	if draft.ConversationID != "" {
		rows = append(rows, LineageRow{
			ArticleID:      decision.ArticleID,
			ArticleVersion: decision.ArticleVersion,
			SourceKind:     "conversation",
			SourceID:       draft.ConversationID,
			Relationship:   RelConversation,
		})
	}
	if draft.ScriptID != "" {
		rows = append(rows, LineageRow{
			ArticleID:      decision.ArticleID,
			ArticleVersion: decision.ArticleVersion,
			SourceKind:     "script",
			SourceID:       draft.ScriptID,
			Relationship:   RelScript,
		})
	}
	if decision.ArticleVersion > 1 {
		rows = append(rows, LineageRow{
			ArticleID:       decision.ArticleID,
			ArticleVersion:  decision.ArticleVersion,
			SourceKind:      "article",
			SourceID:        decision.ArticleID,
			Relationship:    RelSupersedes,
			EvidenceSnippet: fmt.Sprintf("supersedes version %d", decision.ArticleVersion-1),
		})
	}
	return rows
}

// snippet returns at most n bytes of s for evidence fields, cutting on a
// rune boundary so stored snippets stay valid UTF-8.
func snippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func scanCase(row pgx.Row) (Case, error) {
	var c Case
	err := row.Scan(&c.ID, &c.Description, &c.Resolution, &c.Status, &c.Tier,
		&c.Module, &c.Category, &c.ArticleID, &c.ScriptID, &c.ConversationID, &c.CreatedAt)
	return c, err
}
