package main

import (
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/edoakes/tunekit/pkg/model"
	"github.com/edoakes/tunekit/pkg/tune"
)

func newRunCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run an experiment from a config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return errors.Wrap(err, "reading experiment config")
			}
			cfg, err := model.ParseExperimentConfig(raw)
			if err != nil {
				return err
			}
			obj, err := lookupObjective(cfg.Objective)
			if err != nil {
				return err
			}

			tuner := tune.New(tune.WithLogger(log.WithField("component", "tuner")))
			var analysis *tune.Analysis
			if obj.factory != nil {
				analysis, err = tuner.Run(cmd.Context(), cfg, obj.factory)
			} else {
				analysis, err = tuner.RunFunc(cmd.Context(), cfg, obj.fn)
			}
			if analysis != nil {
				printAnalysis(cmd.OutOrStdout(), analysis)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "experiment config file (YAML)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
