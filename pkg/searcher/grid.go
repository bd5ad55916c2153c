package searcher

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/edoakes/tunekit/pkg/mathx"
	"github.com/edoakes/tunekit/pkg/model"
)

const defaultGridCount = 3

type (
	// gridSearchState tracks the grid points that have yet to be handed out, so a
	// restored search does not re-run points already created.
	gridSearchState struct {
		PendingTrials    int                  `json:"pending_trials"`
		RemainingTrials  []model.HParamSample `json:"remaining_trials"`
		SearchMethodType SearchMethodType     `json:"search_method_type"`
	}
	// gridSearch builds the cross-product of the gridded hyperparameter axes and runs
	// one trial per point.
	gridSearch struct {
		defaultSearchMethod
		model.GridConfig
		gridSearchState
		trials int
	}
)

func newGridSearch(config model.GridConfig) SearchMethod {
	return &gridSearch{
		GridConfig: config,
		gridSearchState: gridSearchState{
			SearchMethodType: GridSearch,
			RemainingTrials:  make([]model.HParamSample, 0),
		},
	}
}

func (s *gridSearch) initialTrials(ctx context) ([]Action, error) {
	grid := Grid(ctx.hparams)
	s.trials = len(grid)
	s.RemainingTrials = append(s.RemainingTrials, grid...)
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

// createNext pops the next remaining grid point into a Create action.
func (s *gridSearch) createNext(ctx context) Action {
	params := s.RemainingTrials[len(s.RemainingTrials)-1]
	s.RemainingTrials = s.RemainingTrials[:len(s.RemainingTrials)-1]
	s.PendingTrials++
	return NewCreate(ctx.rand, params)
}

func (s *gridSearch) trialExited(
	ctx context, _ model.RequestID, _ model.ExitedReason,
) ([]Action, error) {
	s.PendingTrials--
	var actions []Action
	if len(s.RemainingTrials) > 0 {
		actions = append(actions, s.createNext(ctx))
	}
	return actions, nil
}

func (s *gridSearch) progress(
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
	denominator := s.trials
	if denominator == 0 {
		denominator = len(trialProgress) + len(s.RemainingTrials)
	}
	return total / float64(denominator)
}

func (s *gridSearch) Snapshot() (json.RawMessage, error) {
	return json.Marshal(s.gridSearchState)
}

func (s *gridSearch) Restore(state json.RawMessage) error {
	if state == nil {
		return nil
	}
	return json.Unmarshal(state, &s.gridSearchState)
}

func (s *gridSearch) Type() SearchMethodType {
	return s.SearchMethodType
}

// Grid enumerates the full cross-product of the hyperparameter space: one sample per
// combination of per-axis grid values. Two axes of five values each yield 25 samples.
func Grid(params model.Hyperparameters) []model.HParamSample {
	names, valueSets := axisValues(params)
	values := cartesianProduct(valueSets)
	samples := make([]model.HParamSample, 0, len(values))
	for _, combination := range values {
		sample := make(model.HParamSample, len(names))
		for i, name := range names {
			sample[name] = combination[i]
		}
		samples = append(samples, sample)
	}
	return samples
}

// axisValues flattens the space into parallel slices of axis names and their gridded
// values, in name order so enumeration is deterministic.
func axisValues(params model.Hyperparameters) ([]string, [][]interface{}) {
	var names []string
	var valueSets [][]interface{}
	params.Each(func(name string, param model.Hyperparameter) {
		names = append(names, name)
		valueSets = append(valueSets, gridValues(param))
	})
	return names, valueSets
}

func cartesianProduct(valueSets [][]interface{}) [][]interface{} {
	switch {
	case len(valueSets) == 0:
		return nil
	case len(valueSets) == 1:
		cross := make([][]interface{}, 0, len(valueSets[0]))
		for _, value := range valueSets[0] {
			cross = append(cross, []interface{}{value})
		}
		return cross
	default:
		right := cartesianProduct(valueSets[1:])
		left := valueSets[0]
		cross := make([][]interface{}, 0, len(left)*len(right))
		for _, lValue := range left {
			for _, rValue := range right {
				var combined []interface{}
				combined = append(combined, lValue)
				combined = append(combined, rValue...)
				cross = append(cross, combined)
			}
		}
		return cross
	}
}

// gridValues returns the gridded values for a single hyperparameter. Numeric axes are
// evenly spaced across the interval; count defaults when unset and int counts clamp to
// the number of distinct integers in the range.
func gridValues(h model.Hyperparameter) []interface{} {
	switch {
	case h.ConstHyperparameter != nil:
		return []interface{}{h.ConstHyperparameter.Val}
	case h.IntHyperparameter != nil:
		p := h.IntHyperparameter
		count := defaultGridCount
		if p.Count != nil {
			count = *p.Count
		}
		count = mathx.Min(count, p.Maxval-p.Minval+1)
		vals := make([]interface{}, count)
		if count == 1 {
			vals[0] = int(math.Round(float64(p.Minval+p.Maxval) / 2.0))
		} else {
			for i := 0; i < count; i++ {
				vals[i] = int(math.Round(
					float64(p.Minval) + float64(i*(p.Maxval-p.Minval))/float64(count-1),
				))
			}
		}
		return vals
	case h.DoubleHyperparameter != nil:
		p := h.DoubleHyperparameter
		count := defaultGridCount
		if p.Count != nil {
			count = *p.Count
		}
		vals := make([]interface{}, count)
		if count == 1 {
			vals[0] = (p.Minval + p.Maxval) / 2.0
		} else {
			for i := 0; i < count; i++ {
				vals[i] = p.Minval + float64(i)*(p.Maxval-p.Minval)/float64(count-1)
			}
		}
		return vals
	case h.LogHyperparameter != nil:
		p := h.LogHyperparameter
		count := defaultGridCount
		if p.Count != nil {
			count = *p.Count
		}
		vals := make([]interface{}, count)
		if count == 1 {
			vals[0] = math.Pow(p.Base, (p.Minval+p.Maxval)/2.0)
		} else {
			for i := 0; i < count; i++ {
				vals[i] = math.Pow(
					p.Base, p.Minval+float64(i)*(p.Maxval-p.Minval)/float64(count-1),
				)
			}
		}
		return vals
	case h.CategoricalHyperparameter != nil:
		return h.CategoricalHyperparameter.Vals
	case h.NestedHyperparameter != nil:
		// A nested space grids recursively; each value is one sub-sample.
		subSamples := Grid(h.NestedHyperparameter.Vals)
		vals := make([]interface{}, 0, len(subSamples))
		for _, sub := range subSamples {
			vals = append(vals, map[string]interface{}(sub))
		}
		return vals
	default:
		panic(fmt.Sprintf("unexpected hyperparameter type %+v", h))
	}
}
