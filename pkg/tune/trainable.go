// Package tune runs experiments: it samples trial configurations through a searcher,
// executes trainables in parallel under a resource budget, records their metric
// reports, and collects the results into an Analysis.
package tune

import (
	"context"

	"github.com/pkg/errors"

	"github.com/edoakes/tunekit/pkg/model"
)

// ErrTrialStopped is returned by TrialContext.Report once the driver wants the trial
// to end; the training function should clean up and return promptly, conventionally
// returning this error.
var ErrTrialStopped = errors.New("trial stopped")

// ErrInvalidHP is returned by a trainable to declare its sampled hyperparameters
// unusable. The trial ends without counting against the searcher's budget, and the
// searcher may propose a replacement.
var ErrInvalidHP = errors.New("invalid hyperparameters")

// TrainFunc is the stateless trainable form: invoked once per trial, it loops
// internally and must call tc.Report once per training increment.
type TrainFunc func(ctx context.Context, tc *TrialContext) error

// Trainable is the stateful trainable form. The driver owns the iteration loop: it
// calls Setup once, then Step repeatedly, checkpointing per the experiment's
// checkpoint config and restoring from the latest checkpoint when a trial resumes
// after a failure.
type Trainable interface {
	// Setup prepares the trainable for the trial described by tc.
	Setup(ctx context.Context, tc *TrialContext) error
	// Step performs one unit of training work and returns the metrics to report.
	Step(ctx context.Context) (model.Metrics, error)
	// Save writes the trainable's state under dir.
	Save(ctx context.Context, dir string) error
	// Restore loads the trainable's state from dir.
	Restore(ctx context.Context, dir string) error
	// Reconfigure applies new hyperparameters mid-run, keeping model state. It
	// returns false if the values cannot be applied in place, in which case the
	// driver tears the trainable down and sets it up again.
	Reconfigure(hparams model.HParamSample) bool
}

// Factory builds one Trainable per trial.
type Factory func() Trainable
