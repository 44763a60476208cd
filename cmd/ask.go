package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/supportmind/supportmind/internal/retrieval"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a support question from resolved cases",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	question := strings.Join(args, " ")
	result, err := a.Pipeline.Answer(ctx, question)
	if err != nil {
		if errors.Is(err, retrieval.ErrIndexEmpty) {
			return fmt.Errorf("the index is empty; run `supportmind index` first")
		}
		return err
	}

	if result.NoMatch {
		fmt.Println("No adequate match found.")
		if len(result.Candidates) > 0 {
			fmt.Printf("Considered %d candidate case(s).\n", len(result.Candidates))
		}
		return nil
	}

	w := result.Winner
	fmt.Printf("Best match: case %s\n", w.Candidate.CaseID)
	fmt.Printf("Rationale:  %s\n", w.Rationale)
	if w.Candidate.Resolution != "" {
		fmt.Printf("Resolution: %s\n", w.Candidate.Resolution)
	}
	if w.Candidate.ArticleID != "" {
		fmt.Printf("KB article: %s\n", w.Candidate.ArticleID)
	}
	if w.Candidate.ScriptID != "" {
		fmt.Printf("Script:     %s\n", w.Candidate.ScriptID)
	}
	return nil
}
