// Package searcher decides which hyperparameter configurations to try. A SearchMethod
// proposes actions (create a trial, stop a trial, shut the search down) in response to
// trial lifecycle events; the Searcher wrapper owns the RNG, the bookkeeping, and the
// action log the driver consumes.
package searcher

import (
	"github.com/edoakes/tunekit/pkg/model"
	"github.com/edoakes/tunekit/pkg/prand"
)

type context struct {
	rand    *prand.State
	hparams model.Hyperparameters
}

// SearchMethod is the interface for hyperparameter tuning methods. Implementations
// should use pointer receivers so interface equality reduces to pointer equality.
type SearchMethod interface {
	// initialTrials returns the trials the searcher wants created up front. It is
	// called exactly once, before any other event.
	initialTrials(ctx context) ([]Action, error)
	// trialCreated informs the method that a trial has been created from one of its
	// Create actions.
	trialCreated(ctx context, requestID model.RequestID, action Create) ([]Action, error)
	// resultReported informs the method of a metric report from a running trial.
	resultReported(ctx context, requestID model.RequestID,
		metrics model.Metrics) ([]Action, error)
	// trialExited informs the method that a trial reached a terminal state.
	trialExited(ctx context, requestID model.RequestID,
		reason model.ExitedReason) ([]Action, error)
	// progress returns search progress as a float between 0.0 and 1.0.
	progress(trialProgress map[model.RequestID]float64,
		trialsExited map[model.RequestID]bool) float64

	model.Snapshotter
	Type() SearchMethodType
}

// SearchMethodType is the type of a SearchMethod. It is saved in snapshots so restored
// state can be matched back to the right method.
type SearchMethodType string

const (
	// SingleSearch runs exactly one trial.
	SingleSearch SearchMethodType = "single"
	// RandomSearch samples max_trials configurations independently.
	RandomSearch SearchMethodType = "random"
	// GridSearch enumerates the cross-product of the gridded axes.
	GridSearch SearchMethodType = "grid"
	// ListSearch runs an explicit user-supplied list of configurations.
	ListSearch SearchMethodType = "list"
)

// NewSearchMethod returns a new search method for the provided searcher configuration.
func NewSearchMethod(c model.SearcherConfig) SearchMethod {
	switch {
	case c.RandomConfig != nil:
		return newRandomSearch(*c.RandomConfig)
	case c.GridConfig != nil:
		return newGridSearch(*c.GridConfig)
	case c.ListConfig != nil:
		return newListSearch(*c.ListConfig)
	case c.SingleConfig != nil:
		return newSingleSearch()
	default:
		panic("no searcher type specified")
	}
}

type defaultSearchMethod struct{}

func (defaultSearchMethod) trialCreated(context, model.RequestID, Create) ([]Action, error) {
	return nil, nil
}

func (defaultSearchMethod) resultReported(
	context, model.RequestID, model.Metrics,
) ([]Action, error) {
	return nil, nil
}

func (defaultSearchMethod) trialExited(
	context, model.RequestID, model.ExitedReason,
) ([]Action, error) {
	return nil, nil
}
