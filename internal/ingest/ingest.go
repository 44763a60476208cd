// Package ingest loads the support workbook into the knowledge store.
//
// The workbook carries one sheet per record kind. Rows are keyed by header
// name, not position, so reordered or extra columns do not break the
// import. Join keys (Ticket_Number, Conversation_ID, Script_ID,
// KB_Article_ID) become case, conversation, script and article ids.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tealeg/xlsx/v3"

	"github.com/supportmind/supportmind/internal/kb"
)

// Sheet names expected in the workbook.
const (
	SheetTickets       = "Tickets"
	SheetConversations = "Conversations"
	SheetScripts       = "Scripts_Master"
	SheetArticles      = "Knowledge_Articles"
)

// ErrMissingSheet is returned when the workbook lacks a required sheet.
var ErrMissingSheet = errors.New("ingest: missing sheet")

// Writer is the store surface the importer writes to.
type Writer interface {
	UpsertCase(ctx context.Context, c kb.Case) error
	UpsertScript(ctx context.Context, s kb.Script) error
	UpsertConversation(ctx context.Context, c kb.Conversation) error
	SeedArticle(ctx context.Context, a kb.Article) (bool, error)
}

// Counts reports how many rows each sheet contributed.
type Counts struct {
	Cases         int
	Conversations int
	Scripts       int
	Articles      int
	// ArticlesSkipped are article rows whose lineage already existed.
	ArticlesSkipped int
}

// Importer reads workbook files into the store.
type Importer struct {
	store  Writer
	logger *slog.Logger
}

func NewImporter(store Writer, logger *slog.Logger) (*Importer, error) {
	if store == nil {
		return nil, errors.New("ingest: store is required")
	}
	if logger == nil {
		return nil, errors.New("ingest: logger is required")
	}
	return &Importer{store: store, logger: logger}, nil
}

// ImportWorkbook loads all four sheets from the workbook at path. Sheets
// are imported in dependency order (conversations and scripts before the
// cases that reference them). Rows without their join key are skipped with
// a warning rather than failing the whole import.
func (im *Importer) ImportWorkbook(ctx context.Context, path string) (Counts, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return Counts{}, fmt.Errorf("opening workbook %s: %w", path, err)
	}

	var counts Counts
	steps := []struct {
		sheet string
		run   func(context.Context, *xlsx.Sheet) (int, error)
	}{
		{SheetConversations, im.importConversations},
		{SheetScripts, im.importScripts},
		{SheetArticles, func(ctx context.Context, sh *xlsx.Sheet) (int, error) {
			n, skipped, err := im.importArticles(ctx, sh)
			counts.ArticlesSkipped = skipped
			return n, err
		}},
		{SheetTickets, im.importCases},
	}
	for _, step := range steps {
		sh, ok := f.Sheet[step.sheet]
		if !ok {
			return counts, fmt.Errorf("%w: %s", ErrMissingSheet, step.sheet)
		}
		n, err := step.run(ctx, sh)
		if err != nil {
			return counts, fmt.Errorf("importing sheet %s: %w", step.sheet, err)
		}
		switch step.sheet {
		case SheetConversations:
			counts.Conversations = n
		case SheetScripts:
			counts.Scripts = n
		case SheetArticles:
			counts.Articles = n
		case SheetTickets:
			counts.Cases = n
		}
	}

	im.logger.Info("workbook imported", "path", path,
		"cases", counts.Cases, "conversations", counts.Conversations,
		"scripts", counts.Scripts, "articles", counts.Articles,
		"articles_skipped", counts.ArticlesSkipped)
	return counts, nil
}

// record is one sheet row keyed by lower-cased header name.
type record map[string]string

func (r record) get(column string) string {
	return strings.TrimSpace(r[strings.ToLower(column)])
}

// forEachRecord walks the sheet's data rows, pairing cells with the header
// row. Fully empty rows are skipped.
func forEachRecord(sheet *xlsx.Sheet, fn func(record) error) error {
	var headers []string
	return sheet.ForEachRow(func(row *xlsx.Row) error {
		var cells []string
		err := row.ForEachCell(func(cell *xlsx.Cell) error {
			cells = append(cells, cell.String())
			return nil
		})
		if err != nil {
			return err
		}
		if headers == nil {
			headers = make([]string, len(cells))
			for i, h := range cells {
				headers[i] = strings.ToLower(strings.TrimSpace(h))
			}
			return nil
		}
		rec := make(record, len(headers))
		empty := true
		for i, h := range headers {
			if i >= len(cells) || h == "" {
				continue
			}
			v := strings.TrimSpace(cells[i])
			if v != "" {
				empty = false
			}
			rec[h] = v
		}
		if empty {
			return nil
		}
		return fn(rec)
	})
}

func (im *Importer) importCases(ctx context.Context, sheet *xlsx.Sheet) (int, error) {
	var n int
	err := forEachRecord(sheet, func(rec record) error {
		id := rec.get("Ticket_Number")
		if id == "" {
			im.logger.Warn("skipping ticket row without Ticket_Number")
			return nil
		}
		c := kb.Case{
			ID:             id,
			Description:    rec.get("Description"),
			Resolution:     rec.get("Resolution"),
			Status:         rec.get("Status"),
			Tier:           rec.get("Tier"),
			Module:         rec.get("Module"),
			Category:       rec.get("Category"),
			ArticleID:      rec.get("KB_Article_ID"),
			ScriptID:       rec.get("Script_ID"),
			ConversationID: rec.get("Conversation_ID"),
		}
		if err := im.store.UpsertCase(ctx, c); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}

func (im *Importer) importScripts(ctx context.Context, sheet *xlsx.Sheet) (int, error) {
	var n int
	err := forEachRecord(sheet, func(rec record) error {
		id := rec.get("Script_ID")
		if id == "" {
			im.logger.Warn("skipping script row without Script_ID")
			return nil
		}
		s := kb.Script{ID: id, Body: rec.get("Script_Text_Sanitized")}
		if err := im.store.UpsertScript(ctx, s); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}

func (im *Importer) importConversations(ctx context.Context, sheet *xlsx.Sheet) (int, error) {
	var n int
	err := forEachRecord(sheet, func(rec record) error {
		id := rec.get("Conversation_ID")
		if id == "" {
			im.logger.Warn("skipping conversation row without Conversation_ID")
			return nil
		}
		c := kb.Conversation{
			ID:         id,
			CaseID:     rec.get("Ticket_Number"),
			Transcript: rec.get("Transcript"),
		}
		if err := im.store.UpsertConversation(ctx, c); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}

func (im *Importer) importArticles(ctx context.Context, sheet *xlsx.Sheet) (int, int, error) {
	var n, skipped int
	err := forEachRecord(sheet, func(rec record) error {
		id := rec.get("KB_Article_ID")
		if id == "" {
			im.logger.Warn("skipping article row without KB_Article_ID")
			return nil
		}
		a := kb.Article{
			ArticleID: id,
			Title:     rec.get("Title"),
			Body:      rec.get("Body"),
		}
		seeded, err := im.store.SeedArticle(ctx, a)
		if err != nil {
			return err
		}
		if seeded {
			n++
		} else {
			skipped++
		}
		return nil
	})
	return n, skipped, err
}
