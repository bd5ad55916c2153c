package main

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/edoakes/tunekit/pkg/tune"
)

func newResultsCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "results experiment-dir",
		Short: "summarize a finished experiment directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			analysis, err := tune.LoadAnalysis(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch format {
			case "table":
				printAnalysis(out, analysis)
			case "json":
				raw, err := json.MarshalIndent(analysis, "", "  ")
				if err != nil {
					return errors.Wrap(err, "marshaling analysis")
				}
				fmt.Fprintln(out, string(raw))
			case "yaml":
				raw, err := yaml.Marshal(analysis)
				if err != nil {
					return errors.Wrap(err, "marshaling analysis")
				}
				fmt.Fprint(out, string(raw))
			default:
				return errors.Errorf(
					"unknown format %q, expected table, json, or yaml", format)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "output format (table, json, yaml)")
	return cmd
}
