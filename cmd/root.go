package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "supportmind",
	Short: "SupportMind - self-learning support knowledge engine",
	Long: `SupportMind answers support questions from resolved cases and learns
from every resolution: gaps in the knowledge base become drafts, reviewed
drafts become versioned articles, and published articles feed back into
retrieval.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
