package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/supportmind/supportmind/internal/app"
	"github.com/supportmind/supportmind/internal/chunk"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the embedding index from the store",
	Long: `Chunks and embeds every case, script and active article. Replacement
is per source record, so a rebuild converges on the same index regardless
of prior state or partial failures.`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	splitter := chunk.NewSplitter(a.Config.Pipeline.ChunkSize, a.Config.Pipeline.ChunkOverlap)

	cases, err := a.Store.ListCases(ctx, "")
	if err != nil {
		return err
	}
	scripts, err := a.Store.ListScripts(ctx)
	if err != nil {
		return err
	}
	articles, err := a.Store.ActiveArticles(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, c := range cases {
		g.Go(func() error {
			text := chunk.CaseText(c.Description, c.Resolution)
			return replace(gctx, a, splitter, chunk.KindCase, c.ID, text)
		})
	}
	for _, s := range scripts {
		g.Go(func() error {
			return replace(gctx, a, splitter, chunk.KindScript, s.ID, s.Body)
		})
	}
	for _, art := range articles {
		g.Go(func() error {
			text := chunk.ArticleText(art.Title, art.Body)
			return replace(gctx, a, splitter, chunk.KindArticle, art.ArticleID, text)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("Indexed %d cases, %d scripts, %d articles\n",
		len(cases), len(scripts), len(articles))
	return nil
}

func replace(ctx context.Context, a *app.App, splitter chunk.Splitter, kind chunk.Kind, sourceID, text string) error {
	chunks := splitter.Split(kind, sourceID, text)
	if err := a.Index.ReplaceSource(ctx, kind, sourceID, chunks); err != nil {
		return fmt.Errorf("indexing %s %s: %w", kind, sourceID, err)
	}
	return nil
}
