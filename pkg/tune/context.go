package tune

import (
	"github.com/sirupsen/logrus"

	"github.com/edoakes/tunekit/pkg/model"
)

// TrialContext is what a trainable sees of its trial: the sampled configuration, the
// trial's working directory, its seed, and the report channel back to the driver.
type TrialContext struct {
	requestID model.RequestID
	name      string
	seed      uint32
	dir       string
	log       *logrus.Entry

	hparams   model.HParamSample
	iteration int
	stopped   bool
	report    func(metrics model.Metrics) error
}

// RequestID returns the trial's identity.
func (tc *TrialContext) RequestID() model.RequestID {
	return tc.requestID
}

// Name returns the trial's human-readable name.
func (tc *TrialContext) Name() string {
	return tc.name
}

// Seed returns the trial's seed, drawn from the searcher RNG.
func (tc *TrialContext) Seed() uint32 {
	return tc.seed
}

// Dir returns the trial's working directory. Checkpoints and logs live under it.
func (tc *TrialContext) Dir() string {
	return tc.dir
}

// Logger returns a logger carrying the trial's identifying fields.
func (tc *TrialContext) Logger() *logrus.Entry {
	return tc.log
}

// Hparams returns the trial's current hyperparameters. A scheduler may update them
// mid-run; reads after a report observe the update.
func (tc *TrialContext) Hparams() model.HParamSample {
	return tc.hparams
}

// Iteration returns the number of completed reports.
func (tc *TrialContext) Iteration() int {
	return tc.iteration
}

// Report records one metric row and consults the driver. It returns ErrTrialStopped
// once the driver wants the trial to end; the row that triggered the stop is still
// recorded, and any reports after that are dropped.
func (tc *TrialContext) Report(metrics model.Metrics) error {
	if tc.stopped {
		return ErrTrialStopped
	}
	if err := metrics.Validate(); err != nil {
		return err
	}
	return tc.report(metrics)
}
