package searcher

import (
	"encoding/json"

	"github.com/edoakes/tunekit/pkg/mathx"
	"github.com/edoakes/tunekit/pkg/model"
)

type (
	listSearchState struct {
		PendingTrials    int                  `json:"pending_trials"`
		RemainingTrials  []model.HParamSample `json:"remaining_trials"`
		SearchMethodType SearchMethodType     `json:"search_method_type"`
	}
	// listSearch runs an explicit, user-supplied list of configurations, in order.
	listSearch struct {
		defaultSearchMethod
		model.ListConfig
		listSearchState
		trials int
	}
)

func newListSearch(config model.ListConfig) SearchMethod {
	return &listSearch{
		ListConfig: config,
		listSearchState: listSearchState{
			SearchMethodType: ListSearch,
		},
	}
}

func (s *listSearch) initialTrials(ctx context) ([]Action, error) {
	s.trials = len(s.Samples)
	// Reverse so createNext pops the user's samples in their given order.
	for i := len(s.Samples) - 1; i >= 0; i-- {
		s.RemainingTrials = append(s.RemainingTrials, s.Samples[i])
	}
	initialTrials := s.trials
	if s.MaxConcurrent > 0 {
		initialTrials = mathx.Min(s.trials, s.MaxConcurrent)
	}
	var actions []Action
	for trial := 0; trial < initialTrials; trial++ {
		actions = append(actions, s.createNext(ctx))
	}
	return actions, nil
}

func (s *listSearch) createNext(ctx context) Action {
	params := s.RemainingTrials[len(s.RemainingTrials)-1]
	s.RemainingTrials = s.RemainingTrials[:len(s.RemainingTrials)-1]
	s.PendingTrials++
	return NewCreate(ctx.rand, params)
}

func (s *listSearch) trialExited(
	ctx context, _ model.RequestID, _ model.ExitedReason,
) ([]Action, error) {
	s.PendingTrials--
	var actions []Action
	if len(s.RemainingTrials) > 0 {
		actions = append(actions, s.createNext(ctx))
	}
	return actions, nil
}

func (s *listSearch) progress(
	trialProgress map[model.RequestID]float64,
	trialsExited map[model.RequestID]bool,
) float64 {
	if len(trialProgress) == 0 {
		return 0
	}
	total := 0.
	for id, p := range trialProgress {
		if trialsExited[id] {
			total += 1.0
		} else {
			total += p
		}
	}
	denominator := s.trials
	if denominator == 0 {
		denominator = len(trialProgress) + len(s.RemainingTrials)
	}
	return total / float64(denominator)
}

func (s *listSearch) Snapshot() (json.RawMessage, error) {
	return json.Marshal(s.listSearchState)
}

func (s *listSearch) Restore(state json.RawMessage) error {
	if state == nil {
		return nil
	}
	return json.Unmarshal(state, &s.listSearchState)
}

func (s *listSearch) Type() SearchMethodType {
	return s.SearchMethodType
}
