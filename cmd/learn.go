package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/supportmind/supportmind/internal/gap"
	"github.com/supportmind/supportmind/internal/kb"
)

var (
	learnAllResolved bool
	learnSteps       string
	learnSummary     string
)

var learnCmd = &cobra.Command{
	Use:   "learn [case-id...]",
	Short: "Run the learning loop for resolved cases",
	Long: `Runs gap detection, draft extraction, review, publish and reindex for
each case. With --all-resolved, every resolved case in the store is
processed; independent cases run concurrently.`,
	RunE: runLearn,
}

func init() {
	learnCmd.Flags().BoolVar(&learnAllResolved, "all-resolved", false, "process every resolved case")
	learnCmd.Flags().StringVar(&learnSteps, "steps", "", "documented resolution steps to record before learning (single case only)")
	learnCmd.Flags().StringVar(&learnSummary, "summary", "", "resolution summary to record with --steps")
	rootCmd.AddCommand(learnCmd)
}

func runLearn(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if !learnAllResolved && len(args) == 0 {
		return fmt.Errorf("provide case ids or --all-resolved")
	}
	if learnSteps != "" && (learnAllResolved || len(args) != 1) {
		return fmt.Errorf("--steps applies to exactly one case")
	}

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	caseIDs := args
	if learnAllResolved {
		cases, err := a.Store.ListCases(ctx, "")
		if err != nil {
			return err
		}
		caseIDs = resolvedCaseIDs(cases)
	}
	if len(caseIDs) == 0 {
		fmt.Println("No resolved cases to process.")
		return nil
	}

	if learnSteps != "" {
		if _, err := a.Store.AddCaseSteps(ctx, caseIDs[0], learnSteps, learnSummary); err != nil {
			return fmt.Errorf("recording case steps: %w", err)
		}
	}

	// Independent cases may learn concurrently; publish conflicts on a
	// shared article surface as errors rather than silent retries.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, caseID := range caseIDs {
		g.Go(func() error {
			result, err := a.Pipeline.Learn(gctx, caseID)
			if err != nil {
				return fmt.Errorf("case %s: %w", caseID, err)
			}
			switch {
			case result.Outcome == gap.NoAction:
				fmt.Printf("%s: no action (%s)\n", caseID, result.Reasoning)
			case result.Published != nil:
				fmt.Printf("%s: published %s v%d\n", caseID,
					result.Published.ArticleID, result.Published.Version)
			case result.Decision != nil:
				fmt.Printf("%s: draft %s rejected (%s)\n", caseID,
					result.Draft.ID, result.Decision.Reasoning)
			}
			return nil
		})
	}
	return g.Wait()
}

// resolvedCaseIDs keeps every case the learning loop may process. Both
// Resolved and Closed cases qualify.
func resolvedCaseIDs(cases []kb.Case) []string {
	var ids []string
	for _, c := range cases {
		if c.Resolved() {
			ids = append(ids, c.ID)
		}
	}
	return ids
}
