package searcher

import (
	"encoding/json"

	"github.com/edoakes/tunekit/pkg/mathx"
	"github.com/edoakes/tunekit/pkg/model"
)

type (
	// randomSearchState tracks how many trials have been created so far, since not all
	// trials are created at initialization when max_concurrent caps them, and how many
	// are pending so the cap is respected.
	randomSearchState struct {
		CreatedTrials    int              `json:"created_trials"`
		PendingTrials    int              `json:"pending_trials"`
		SearchMethodType SearchMethodType `json:"search_method_type"`
	}
	// randomSearch is the standard random search method: each trial gets an
	// independently sampled configuration.
	randomSearch struct {
		defaultSearchMethod
		model.RandomConfig
		randomSearchState
	}
)

func newRandomSearch(config model.RandomConfig) SearchMethod {
	return &randomSearch{
		RandomConfig: config,
		randomSearchState: randomSearchState{
			SearchMethodType: RandomSearch,
		},
	}
}

func newSingleSearch() SearchMethod {
	return &randomSearch{
		RandomConfig: model.RandomConfig{MaxTrials: 1, MaxConcurrent: 1},
		randomSearchState: randomSearchState{
			SearchMethodType: SingleSearch,
		},
	}
}

func (s *randomSearch) initialTrials(ctx context) ([]Action, error) {
	initialTrials := s.MaxTrials
	if s.MaxConcurrent > 0 {
		initialTrials = mathx.Min(s.MaxTrials, s.MaxConcurrent)
	}
	var actions []Action
	for trial := 0; trial < initialTrials; trial++ {
		actions = append(actions, NewCreate(ctx.rand, sampleAll(ctx.hparams, ctx.rand)))
		s.CreatedTrials++
		s.PendingTrials++
	}
	return actions, nil
}

func (s *randomSearch) trialExited(
	ctx context, requestID model.RequestID, reason model.ExitedReason,
) ([]Action, error) {
	s.PendingTrials--
	if reason == model.InvalidHP && s.SearchMethodType == RandomSearch {
		// The invalid sample did not consume budget; the next create replaces it.
		s.CreatedTrials--
	}
	var actions []Action
	if s.CreatedTrials < s.MaxTrials {
		actions = append(actions, NewCreate(ctx.rand, sampleAll(ctx.hparams, ctx.rand)))
		s.CreatedTrials++
		s.PendingTrials++
	}
	return actions, nil
}

func (s *randomSearch) progress(
	trialProgress map[model.RequestID]float64,
	trialsExited map[model.RequestID]bool,
) float64 {
	if s.MaxConcurrent > 0 && s.PendingTrials > s.MaxConcurrent {
		panic("pending trials exceed max_concurrent")
	}
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
	return total / float64(mathx.Max(len(trialProgress), s.MaxTrials))
}

func (s *randomSearch) Snapshot() (json.RawMessage, error) {
	return json.Marshal(s.randomSearchState)
}

func (s *randomSearch) Restore(state json.RawMessage) error {
	if state == nil {
		return nil
	}
	return json.Unmarshal(state, &s.randomSearchState)
}

func (s *randomSearch) Type() SearchMethodType {
	return s.SearchMethodType
}
