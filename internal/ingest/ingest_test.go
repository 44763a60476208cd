package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/tealeg/xlsx/v3"

	"github.com/supportmind/supportmind/internal/kb"
	"github.com/supportmind/supportmind/internal/log"
)

type fakeWriter struct {
	cases         map[string]kb.Case
	scripts       map[string]kb.Script
	conversations map[string]kb.Conversation
	articles      map[string]kb.Article
	seeded        map[string]bool
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		cases:         make(map[string]kb.Case),
		scripts:       make(map[string]kb.Script),
		conversations: make(map[string]kb.Conversation),
		articles:      make(map[string]kb.Article),
		seeded:        make(map[string]bool),
	}
}

func (f *fakeWriter) UpsertCase(_ context.Context, c kb.Case) error {
	f.cases[c.ID] = c
	return nil
}

func (f *fakeWriter) UpsertScript(_ context.Context, s kb.Script) error {
	f.scripts[s.ID] = s
	return nil
}

func (f *fakeWriter) UpsertConversation(_ context.Context, c kb.Conversation) error {
	f.conversations[c.ID] = c
	return nil
}

func (f *fakeWriter) SeedArticle(_ context.Context, a kb.Article) (bool, error) {
	if f.seeded[a.ArticleID] {
		return false, nil
	}
	f.seeded[a.ArticleID] = true
	f.articles[a.ArticleID] = a
	return true, nil
}

func addSheet(t *testing.T, wb *xlsx.File, name string, rows [][]string) {
	t.Helper()
	sh, err := wb.AddSheet(name)
	if err != nil {
		t.Fatalf("AddSheet(%s): %v", name, err)
	}
	for _, cells := range rows {
		row := sh.AddRow()
		for _, v := range cells {
			row.AddCell().SetString(v)
		}
	}
}

func writeWorkbook(t *testing.T) string {
	t.Helper()
	wb := xlsx.NewFile()
	addSheet(t, wb, SheetTickets, [][]string{
		{"Ticket_Number", "Status", "Tier", "Module", "Category", "Description", "Resolution", "KB_Article_ID", "Script_ID", "Conversation_ID"},
		{"CS-12345", "Resolved", "T2", "Profiles", "Uploads", "cannot upload photo", "cleared CDN cache", "KB-001", "S-042", "CONV-1"},
		{"", "Resolved", "T1", "Billing", "Invoices", "orphan row", "", "", "", ""},
		{"CS-67890", "Open", "T1", "Billing", "Invoices", "invoice totals wrong", "", "", "", ""},
	})
	addSheet(t, wb, SheetConversations, [][]string{
		{"Conversation_ID", "Ticket_Number", "Transcript"},
		{"CONV-1", "CS-12345", "user: photo fails\nagent: clearing cache"},
	})
	addSheet(t, wb, SheetScripts, [][]string{
		{"Script_ID", "Script_Text_Sanitized"},
		{"S-042", "purge-cdn --tenant {tenant_id}"},
	})
	addSheet(t, wb, SheetArticles, [][]string{
		{"KB_Article_ID", "Title", "Body"},
		{"KB-001", "Photo upload troubleshooting", "Clear the CDN cache."},
	})

	path := filepath.Join(t.TempDir(), "supportmind.xlsx")
	if err := wb.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return path
}

func TestImportWorkbook(t *testing.T) {
	w := newFakeWriter()
	im, err := NewImporter(w, log.NewNop())
	if err != nil {
		t.Fatalf("NewImporter: %v", err)
	}

	counts, err := im.ImportWorkbook(context.Background(), writeWorkbook(t))
	if err != nil {
		t.Fatalf("ImportWorkbook: %v", err)
	}

	if counts.Cases != 2 {
		t.Errorf("cases = %d, want 2 (row without Ticket_Number skipped)", counts.Cases)
	}
	if counts.Conversations != 1 || counts.Scripts != 1 || counts.Articles != 1 {
		t.Errorf("counts = %+v", counts)
	}

	c, ok := w.cases["CS-12345"]
	if !ok {
		t.Fatal("case CS-12345 not imported")
	}
	if c.ArticleID != "KB-001" || c.ScriptID != "S-042" || c.ConversationID != "CONV-1" {
		t.Errorf("join keys = %q/%q/%q", c.ArticleID, c.ScriptID, c.ConversationID)
	}
	if c.Status != "Resolved" || c.Module != "Profiles" {
		t.Errorf("case fields = %+v", c)
	}

	if got := w.scripts["S-042"].Body; got != "purge-cdn --tenant {tenant_id}" {
		t.Errorf("script body = %q", got)
	}
	if got := w.conversations["CONV-1"].CaseID; got != "CS-12345" {
		t.Errorf("conversation case = %q", got)
	}
	if got := w.articles["KB-001"].Title; got != "Photo upload troubleshooting" {
		t.Errorf("article title = %q", got)
	}
}

func TestImportWorkbookRerunSkipsSeededArticles(t *testing.T) {
	w := newFakeWriter()
	im, err := NewImporter(w, log.NewNop())
	if err != nil {
		t.Fatalf("NewImporter: %v", err)
	}
	path := writeWorkbook(t)

	if _, err := im.ImportWorkbook(context.Background(), path); err != nil {
		t.Fatalf("first import: %v", err)
	}
	counts, err := im.ImportWorkbook(context.Background(), path)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if counts.Articles != 0 || counts.ArticlesSkipped != 1 {
		t.Errorf("articles = %d skipped = %d, want 0/1 on re-import", counts.Articles, counts.ArticlesSkipped)
	}
	if counts.Cases != 2 {
		t.Errorf("cases = %d, want upserts to remain idempotent", counts.Cases)
	}
}

func TestImportWorkbookMissingSheet(t *testing.T) {
	wb := xlsx.NewFile()
	addSheet(t, wb, SheetTickets, [][]string{{"Ticket_Number"}, {"CS-1"}})
	path := filepath.Join(t.TempDir(), "partial.xlsx")
	if err := wb.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	im, err := NewImporter(newFakeWriter(), log.NewNop())
	if err != nil {
		t.Fatalf("NewImporter: %v", err)
	}
	if _, err := im.ImportWorkbook(context.Background(), path); !errors.Is(err, ErrMissingSheet) {
		t.Fatalf("error = %v, want ErrMissingSheet", err)
	}
}

func TestImportWorkbookMissingFile(t *testing.T) {
	im, err := NewImporter(newFakeWriter(), log.NewNop())
	if err != nil {
		t.Fatalf("NewImporter: %v", err)
	}
	if _, err := im.ImportWorkbook(context.Background(), filepath.Join(t.TempDir(), "nope.xlsx")); err == nil {
		t.Fatal("ImportWorkbook succeeded on a missing file")
	}
}
