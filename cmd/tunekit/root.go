package main

import (
	"github.com/spf13/cobra"

	"github.com/edoakes/tunekit/pkg/logger"
	"github.com/edoakes/tunekit/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "tunekit",
	Short: "run and inspect hyperparameter tuning experiments",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetLogrus(logger.Config{
			Level: v.GetString("log.level"),
			Color: v.GetBool("log.color"),
		})
	},
}

//nolint:gochecknoinit
func init() {
	// Set in init() rather than at initialization of rootCmd because link-time
	// variable assignments are not applied when package-scoped variables are
	// initialized.
	rootCmd.Version = version.Version
	registerConfig()

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newResultsCmd())
	rootCmd.AddCommand(newTailCmd())
	rootCmd.AddCommand(newCleanCmd())
	rootCmd.AddCommand(newVersionCmd())
}
