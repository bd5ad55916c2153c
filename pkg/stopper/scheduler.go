package stopper

import "github.com/edoakes/tunekit/pkg/model"

// DecisionOp is what a scheduler wants done with a trial after a report.
type DecisionOp int

const (
	// Continue lets the trial keep training.
	Continue DecisionOp = iota
	// Stop terminates the trial early.
	Stop
	// Update rewrites the trial's hyperparameters in place. Trainables that cannot
	// apply the new values mid-run are torn down and set up again by the driver.
	Update
)

// Decision is a scheduler's verdict on one trial after one report.
type Decision struct {
	Op      DecisionOp
	Hparams model.HParamSample
}

// Scheduler is the early-stopping and promotion policy seam. It sees every metric
// report and may stop or mutate trials; richer policies plug in here.
type Scheduler interface {
	OnReport(requestID model.RequestID, iteration int, metrics model.Metrics) Decision
}

type fifoScheduler struct{}

func (fifoScheduler) OnReport(model.RequestID, int, model.Metrics) Decision {
	return Decision{Op: Continue}
}

// FIFO returns the baseline scheduler: every trial runs to its natural end.
func FIFO() Scheduler {
	return fifoScheduler{}
}

// SchedulerFunc adapts a function to the Scheduler interface.
type SchedulerFunc func(requestID model.RequestID, iteration int, metrics model.Metrics) Decision

// OnReport implements the Scheduler interface.
func (f SchedulerFunc) OnReport(
	requestID model.RequestID, iteration int, metrics model.Metrics,
) Decision {
	return f(requestID, iteration, metrics)
}
