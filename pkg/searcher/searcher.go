package searcher

import (
	"encoding/json"
	"math"

	"github.com/pkg/errors"

	"github.com/edoakes/tunekit/pkg/model"
	"github.com/edoakes/tunekit/pkg/prand"
)

type (
	// SearcherState is all persisted searcher state. The driver snapshots it alongside
	// the method's own state so an interrupted search resumes where it left off.
	SearcherState struct {
		TrialsRequested int                         `json:"trials_requested"`
		TrialsExited    map[model.RequestID]bool    `json:"trials_exited"`
		Failures        map[model.RequestID]bool    `json:"failures"`
		TrialProgress   map[model.RequestID]float64 `json:"trial_progress"`
		Shutdown        bool                        `json:"shutdown"`
		EventLog        []string                    `json:"event_log"`

		Rand *prand.State `json:"rand"`

		SearchMethodState json.RawMessage `json:"search_method_state"`
	}

	// Searcher tracks the state of a search as it progresses using the provided
	// search method.
	Searcher struct {
		hparams model.Hyperparameters
		method  SearchMethod
		SearcherState
	}
)

// NewSearcher creates a Searcher from a seed, method, and hyperparameter space.
func NewSearcher(seed uint32, method SearchMethod, hparams model.Hyperparameters) *Searcher {
	return &Searcher{
		hparams: hparams,
		method:  method,
		SearcherState: SearcherState{
			TrialsExited:  map[model.RequestID]bool{},
			Failures:      map[model.RequestID]bool{},
			TrialProgress: map[model.RequestID]float64{},
			Rand:          prand.New(uint64(seed)),
		},
	}
}

func (s *Searcher) context() context {
	return context{rand: s.Rand, hparams: s.hparams}
}

// InitialTrials returns the trials the search method wants created up front. Call it
// exactly once, after the searcher is created.
func (s *Searcher) InitialTrials() ([]Action, error) {
	actions, err := s.method.initialTrials(s.context())
	if err != nil {
		return nil, errors.Wrap(err, "fetching initial trials of search method")
	}
	s.record(actions)
	return actions, nil
}

// TrialCreated informs the searcher that a trial has been created from a Create action.
func (s *Searcher) TrialCreated(create Create) ([]Action, error) {
	s.TrialProgress[create.RequestID] = 0
	actions, err := s.method.trialCreated(s.context(), create.RequestID, create)
	if err != nil {
		return nil, errors.Wrapf(err, "handling trial created event: %s", create.RequestID)
	}
	s.record(actions)
	return actions, nil
}

// ResultReported informs the searcher of a metric report from a running trial.
func (s *Searcher) ResultReported(
	requestID model.RequestID, metrics model.Metrics,
) ([]Action, error) {
	actions, err := s.method.resultReported(s.context(), requestID, metrics)
	if err != nil {
		return nil, errors.Wrapf(err, "handling metric report: %s", requestID)
	}
	s.record(actions)
	return actions, nil
}

// SetTrialProgress informs the searcher of the progress of a given trial, as a float
// between 0.0 and 1.0.
func (s *Searcher) SetTrialProgress(requestID model.RequestID, progress float64) {
	s.TrialProgress[requestID] = progress
}

// TrialExited informs the searcher that the trial reached a terminal state. Once every
// requested trial has exited, a Shutdown action is appended to whatever the method
// returned.
func (s *Searcher) TrialExited(
	requestID model.RequestID, reason model.ExitedReason,
) ([]Action, error) {
	switch reason {
	case model.InvalidHP:
		// The trial is replaced rather than counted; it never consumed budget.
		delete(s.TrialProgress, requestID)
	case model.Errored:
		s.Failures[requestID] = true
	}
	s.TrialsExited[requestID] = true

	actions, err := s.method.trialExited(s.context(), requestID, reason)
	if err != nil {
		return nil, errors.Wrapf(err, "handling trial exited event: %s", requestID)
	}
	s.record(actions)
	if s.TrialsRequested == len(s.TrialsExited) && !s.Shutdown {
		shutdown := Shutdown{Failure: len(s.Failures) >= s.TrialsRequested}
		actions = append(actions, shutdown)
		s.record([]Action{shutdown})
	}
	return actions, nil
}

// Progress returns search progress as a float between 0.0 and 1.0.
func (s *Searcher) Progress() float64 {
	progress := s.method.progress(s.TrialProgress, s.TrialsExited)
	if math.IsNaN(progress) || math.IsInf(progress, 0) {
		return 0.0
	}
	return progress
}

// record updates the bookkeeping and event log for actions issued by the method.
func (s *Searcher) record(actions []Action) {
	for _, action := range actions {
		s.EventLog = append(s.EventLog, action.String())
		switch action.(type) {
		case Create:
			s.TrialsRequested++
		case Shutdown:
			s.Shutdown = true
		}
	}
}

// Snapshot returns the searcher's current state, including the method's.
func (s *Searcher) Snapshot() (json.RawMessage, error) {
	b, err := s.method.Snapshot()
	if err != nil {
		return nil, errors.Wrap(err, "saving search method state")
	}
	s.SearcherState.SearchMethodState = b
	return json.Marshal(s.SearcherState)
}

// Restore loads a searcher from prior state.
func (s *Searcher) Restore(state json.RawMessage) error {
	if err := json.Unmarshal(state, &s.SearcherState); err != nil {
		return errors.Wrap(err, "unmarshaling searcher snapshot")
	}
	return s.method.Restore(s.SearchMethodState)
}
