// Package stopper implements the stop conditions a run driver consults on every metric
// report, plus the scheduler seam for early-stopping policies.
package stopper

import (
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"

	"github.com/edoakes/tunekit/pkg/model"
)

// Stopper decides when individual trials or the whole experiment should stop.
// StopTrial is called once per metric report, after the report is recorded.
type Stopper interface {
	StopTrial(requestID model.RequestID, iteration int, metrics model.Metrics) bool
	StopExperiment() bool
}

// New compiles a stopper config union into its implementation.
func New(c model.StopperConfig, clock clockwork.Clock) (Stopper, error) {
	switch {
	case c.MaxIterationsConfig != nil:
		return MaxIterations(c.MaxIterationsConfig.Iterations), nil
	case c.MetricThresholdConfig != nil:
		p := c.MetricThresholdConfig
		return MetricThreshold(p.Metric, p.Value, p.Mode), nil
	case c.TimeoutConfig != nil:
		return Timeout(time.Duration(c.TimeoutConfig.Duration), clock), nil
	case c.PlateauConfig != nil:
		p := c.PlateauConfig
		return Plateau(p.Metric, p.Mode, p.Tolerance, p.Patience), nil
	default:
		return nil, errors.New("no stopper type specified")
	}
}

// Compile builds the conjunction of all configured stoppers, or a Noop when none are
// configured.
func Compile(configs []model.StopperConfig, clock clockwork.Clock) (Stopper, error) {
	if len(configs) == 0 {
		return Noop(), nil
	}
	stoppers := make([]Stopper, 0, len(configs))
	for _, c := range configs {
		s, err := New(c, clock)
		if err != nil {
			return nil, err
		}
		stoppers = append(stoppers, s)
	}
	if len(stoppers) == 1 {
		return stoppers[0], nil
	}
	return Any(stoppers...), nil
}

type noopStopper struct{}

func (noopStopper) StopTrial(model.RequestID, int, model.Metrics) bool { return false }
func (noopStopper) StopExperiment() bool                              { return false }

// Noop returns a stopper that never stops anything.
func Noop() Stopper {
	return noopStopper{}
}

type maxIterations struct {
	iterations int
}

// MaxIterations stops each trial after it has reported n times.
func MaxIterations(n int) Stopper {
	return &maxIterations{iterations: n}
}

func (s *maxIterations) StopTrial(_ model.RequestID, iteration int, _ model.Metrics) bool {
	return iteration >= s.iterations
}

func (s *maxIterations) StopExperiment() bool { return false }

type metricThreshold struct {
	metric string
	value  float64
	mode   model.Mode
}

// MetricThreshold stops a trial once the named metric reaches the threshold in the
// improving direction. Reports missing the metric do not stop the trial.
func MetricThreshold(metric string, value float64, mode model.Mode) Stopper {
	return &metricThreshold{metric: metric, value: value, mode: mode}
}

func (s *metricThreshold) StopTrial(
	_ model.RequestID, _ int, metrics model.Metrics,
) bool {
	v, ok := metrics[s.metric]
	if !ok {
		return false
	}
	if s.mode == model.MinMode {
		return v <= s.value
	}
	return v >= s.value
}

func (s *metricThreshold) StopExperiment() bool { return false }

type timeout struct {
	clock    clockwork.Clock
	deadline time.Time
}

// Timeout stops the whole experiment once the duration has elapsed. The clock is
// injectable so tests can advance time without sleeping.
func Timeout(d time.Duration, clock clockwork.Clock) Stopper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &timeout{clock: clock, deadline: clock.Now().Add(d)}
}

func (s *timeout) StopTrial(model.RequestID, int, model.Metrics) bool {
	return s.StopExperiment()
}

func (s *timeout) StopExperiment() bool {
	return !s.clock.Now().Before(s.deadline)
}

type plateauState struct {
	best  float64
	stale int
}

type plateau struct {
	metric    string
	mode      model.Mode
	tolerance float64
	patience  int

	mu     sync.Mutex
	trials map[model.RequestID]*plateauState
}

// Plateau stops a trial whose metric has not improved by more than tolerance for
// patience consecutive reports.
func Plateau(metric string, mode model.Mode, tolerance float64, patience int) Stopper {
	return &plateau{
		metric:    metric,
		mode:      mode,
		tolerance: tolerance,
		patience:  patience,
		trials:    map[model.RequestID]*plateauState{},
	}
}

func (s *plateau) StopTrial(
	requestID model.RequestID, _ int, metrics model.Metrics,
) bool {
	v, ok := metrics[s.metric]
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.trials[requestID]
	if !ok {
		best := math.Inf(1)
		if s.mode == model.MaxMode {
			best = math.Inf(-1)
		}
		state = &plateauState{best: best}
		s.trials[requestID] = state
	}

	improved := false
	if s.mode == model.MinMode {
		improved = v < state.best-s.tolerance
	} else {
		improved = v > state.best+s.tolerance
	}
	if improved {
		state.best = v
		state.stale = 0
		return false
	}
	state.stale++
	return state.stale >= s.patience
}

func (s *plateau) StopExperiment() bool { return false }

type anyStopper struct {
	stoppers []Stopper
}

// Any combines stoppers; a trial or experiment stops when any member says so.
func Any(stoppers ...Stopper) Stopper {
	return &anyStopper{stoppers: stoppers}
}

func (s *anyStopper) StopTrial(
	requestID model.RequestID, iteration int, metrics model.Metrics,
) bool {
	stop := false
	// Every member sees every report, so stateful stoppers stay current.
	for _, member := range s.stoppers {
		if member.StopTrial(requestID, iteration, metrics) {
			stop = true
		}
	}
	return stop
}

func (s *anyStopper) StopExperiment() bool {
	for _, member := range s.stoppers {
		if member.StopExperiment() {
			return true
		}
	}
	return false
}
