// Package cli wires the cobra command tree for the migrator binary.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/visiocare/clinic-migrator/pkg/logger"
)

// NewRootCmd creates the root command and attaches the subcommands.
func NewRootCmd() *cobra.Command {
	var jsonLogs bool

	rootCmd := &cobra.Command{
		Use:   "migrator",
		Short: "One-time migration of legacy clinic data from MS SQL Server to MongoDB",
		Long: `migrator copies legacy clinic records from the relational back-office
database into the document store, applying the agreed business-retention
rules. Runs are idempotent: re-running skips or updates records that
were already migrated, keyed by their natural identifiers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Initialize(jsonLogs)
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Emit structured JSON logs")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newListCmd())

	return rootCmd
}
