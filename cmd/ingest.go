package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [workbook.xlsx]",
	Short: "Import a support workbook into the store",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	counts, err := a.Importer.ImportWorkbook(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Imported %d cases, %d conversations, %d scripts, %d articles",
		counts.Cases, counts.Conversations, counts.Scripts, counts.Articles)
	if counts.ArticlesSkipped > 0 {
		fmt.Printf(" (%d article lineages already present)", counts.ArticlesSkipped)
	}
	fmt.Println()
	return nil
}
