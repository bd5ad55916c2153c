package model

import "fmt"

// State is the run state of an experiment or trial.
type State string

const (
	// PendingState is a trial proposed by the searcher but not yet running.
	PendingState State = "PENDING"
	// RunningState is a trial actively training.
	RunningState State = "RUNNING"
	// CompletedState is a trial that finished its training function or ran out of
	// searcher budget without incident.
	CompletedState State = "COMPLETED"
	// StoppedState is a trial ended early by a stop condition or scheduler decision.
	StoppedState State = "STOPPED"
	// ErrorState is a trial whose training returned an error or panicked past its
	// restart budget.
	ErrorState State = "ERROR"
	// CanceledState is a trial ended by user or context cancellation.
	CanceledState State = "CANCELED"
)

// TerminalStates are the states a trial never leaves.
var TerminalStates = map[State]bool{
	CompletedState: true,
	StoppedState:   true,
	ErrorState:     true,
	CanceledState:  true,
}

// trialTransitions maps trial states to their permitted successors.
var trialTransitions = map[State]map[State]bool{
	PendingState: {
		RunningState:  true,
		CanceledState: true,
		ErrorState:    true,
	},
	RunningState: {
		CompletedState: true,
		StoppedState:   true,
		ErrorState:     true,
		CanceledState:  true,
	},
	CompletedState: {},
	StoppedState:   {},
	ErrorState:     {},
	CanceledState:  {},
}

// Terminal reports whether the state is terminal.
func (s State) Terminal() bool {
	return TerminalStates[s]
}

// CanTransitionTo reports whether the transition from s to next is permitted.
func (s State) CanTransitionTo(next State) bool {
	return trialTransitions[s][next]
}

// MustTransition returns next after asserting the transition is permitted. An illegal
// transition is a programming error in the driver, not a runtime condition.
func (s State) MustTransition(next State) State {
	if !s.CanTransitionTo(next) {
		panic(fmt.Sprintf("illegal trial state transition %s -> %s", s, next))
	}
	return next
}

// ExitedReason describes why a trial left the running state before its natural end.
type ExitedReason string

const (
	// Errored is an exit caused by a training error.
	Errored ExitedReason = "ERRORED"
	// Stopped is an exit requested by a stop condition or scheduler.
	Stopped ExitedReason = "STOPPED"
	// Canceled is an exit caused by user or context cancellation.
	Canceled ExitedReason = "CANCELED"
	// InvalidHP is an exit declared by the trainable because the sampled
	// hyperparameters are unusable; the searcher may resample without spending budget.
	InvalidHP ExitedReason = "INVALID_HP"
)
