package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const experimentFileName = "experiment.json"

func newCleanCmd() *cobra.Command {
	var olderThan time.Duration
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "clean results-root",
		Short: "delete finished experiment directories by age",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cleanResults(
				cmd.OutOrStdout(), args[0], time.Now().Add(-olderThan), dryRun)
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 72*time.Hour,
		"delete experiments whose summary is older than this")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false,
		"print what would be deleted without deleting")
	return cmd
}

// cleanResults removes experiment directories under root whose summary file predates
// the cutoff. Directories without a summary are still running or not experiments, and
// are left alone.
func cleanResults(out io.Writer, root string, cutoff time.Time, dryRun bool) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return errors.Wrap(err, "reading results root")
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		info, err := os.Stat(filepath.Join(dir, experimentFileName))
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if dryRun {
			fmt.Fprintf(out, "would delete %s (finished %s)\n",
				dir, info.ModTime().Format(time.RFC3339))
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return errors.Wrapf(err, "deleting %s", dir)
		}
		fmt.Fprintf(out, "deleted %s\n", dir)
	}
	return nil
}
