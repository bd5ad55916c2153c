package model

import (
	"encoding/json"
	"reflect"
	"runtime"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/ghodss/yaml"
	"github.com/pkg/errors"

	"github.com/edoakes/tunekit/pkg/check"
	"github.com/edoakes/tunekit/pkg/union"
)

// Mode says whether smaller or larger metric values are better.
type Mode string

const (
	// MinMode means smaller metric values are better.
	MinMode Mode = "min"
	// MaxMode means larger metric values are better.
	MaxMode Mode = "max"
)

// ExperimentConfig holds everything needed to run one experiment.
type ExperimentConfig struct {
	Name            string           `json:"name"`
	Seed            uint32           `json:"seed"`
	ResultsDir      string           `json:"results_dir"`
	Metric          string           `json:"metric"`
	Mode            Mode             `json:"mode"`
	Objective       string           `json:"objective,omitempty"`
	Hyperparameters Hyperparameters  `json:"hyperparameters"`
	Searcher        SearcherConfig   `json:"searcher"`
	Stoppers        []StopperConfig  `json:"stoppers,omitempty"`
	Resources       ResourcesConfig  `json:"resources"`
	Checkpoint      CheckpointConfig `json:"checkpoint"`
	MaxFailures     int              `json:"max_failures"`
}

// DefaultExperimentConfig returns an ExperimentConfig with defaults filled in; callers
// overwrite what they need and validate the result.
func DefaultExperimentConfig() ExperimentConfig {
	return ExperimentConfig{
		Name:       petname.Generate(3, "-"),
		Metric:     "loss",
		Mode:       MinMode,
		ResultsDir: "",
		Resources: ResourcesConfig{
			Slots:         runtime.NumCPU(),
			SlotsPerTrial: 1,
		},
		Checkpoint: CheckpointConfig{
			Period: 0,
			Keep:   1,
			AtEnd:  false,
		},
		MaxFailures: 0,
	}
}

// Validate implements the check.Validatable interface.
func (c ExperimentConfig) Validate() []error {
	return []error{
		check.NotEmpty(c.Name, "name must be set"),
		check.NotEmpty(c.Metric, "metric must be set"),
		check.In(string(c.Mode), []string{string(MinMode), string(MaxMode)},
			"mode must be min or max"),
		check.GreaterThanOrEqualTo(c.MaxFailures, 0, "max_failures must be >= 0"),
	}
}

// ParseExperimentConfig reads a YAML experiment file into a config, applying defaults
// first so absent fields keep them.
func ParseExperimentConfig(raw []byte) (ExperimentConfig, error) {
	config := DefaultExperimentConfig()
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return ExperimentConfig{}, errors.Wrap(err, "parsing experiment config")
	}
	if err := check.Validate(config); err != nil {
		return ExperimentConfig{}, err
	}
	return config, nil
}

// SearcherConfig is a sum type over the provided search methods.
type SearcherConfig struct {
	RandomConfig *RandomConfig `union:"name,random" json:"-"`
	GridConfig   *GridConfig   `union:"name,grid" json:"-"`
	ListConfig   *ListConfig   `union:"name,list" json:"-"`
	SingleConfig *SingleConfig `union:"name,single" json:"-"`
}

// Validate implements the check.Validatable interface.
func (s SearcherConfig) Validate() []error {
	count := 0
	for _, member := range []interface{}{
		s.RandomConfig, s.GridConfig, s.ListConfig, s.SingleConfig,
	} {
		if !reflect.ValueOf(member).IsNil() {
			count++
		}
	}
	return []error{
		check.Equal(count, 1, "exactly one searcher must be set"),
	}
}

// MarshalJSON implements the json.Marshaler interface.
func (s SearcherConfig) MarshalJSON() ([]byte, error) {
	return union.Marshal(s)
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (s *SearcherConfig) UnmarshalJSON(data []byte) error {
	return union.Unmarshal(data, s)
}

// RandomConfig configures a random search.
type RandomConfig struct {
	MaxTrials     int `json:"max_trials"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Validate implements the check.Validatable interface.
func (c RandomConfig) Validate() []error {
	return []error{
		check.GreaterThan(c.MaxTrials, 0, "max_trials must be > 0"),
		check.GreaterThanOrEqualTo(c.MaxConcurrent, 0, "max_concurrent must be >= 0"),
	}
}

// GridConfig configures a grid search. The grid itself comes from the hyperparameter
// definitions; counts on numeric axes say how many points to lay across each interval.
type GridConfig struct {
	MaxConcurrent int `json:"max_concurrent"`
}

// Validate implements the check.Validatable interface.
func (c GridConfig) Validate() []error {
	return []error{
		check.GreaterThanOrEqualTo(c.MaxConcurrent, 0, "max_concurrent must be >= 0"),
	}
}

// ListConfig configures a search over an explicit list of configurations.
type ListConfig struct {
	Samples       []HParamSample `json:"samples"`
	MaxConcurrent int            `json:"max_concurrent"`
}

// Validate implements the check.Validatable interface.
func (c ListConfig) Validate() []error {
	return []error{
		check.GreaterThan(len(c.Samples), 0, "samples must not be empty"),
		check.GreaterThanOrEqualTo(c.MaxConcurrent, 0, "max_concurrent must be >= 0"),
	}
}

// SingleConfig configures a degenerate search running exactly one trial.
type SingleConfig struct{}

// StopperConfig is a sum type over the provided stop conditions.
type StopperConfig struct {
	MaxIterationsConfig   *MaxIterationsConfig   `union:"type,max_iterations" json:"-"`
	MetricThresholdConfig *MetricThresholdConfig `union:"type,metric_threshold" json:"-"`
	TimeoutConfig         *TimeoutConfig         `union:"type,timeout" json:"-"`
	PlateauConfig         *PlateauConfig         `union:"type,plateau" json:"-"`
}

// MarshalJSON implements the json.Marshaler interface.
func (s StopperConfig) MarshalJSON() ([]byte, error) {
	return union.Marshal(s)
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (s *StopperConfig) UnmarshalJSON(data []byte) error {
	return union.Unmarshal(data, s)
}

// MaxIterationsConfig stops each trial after a fixed number of reports.
type MaxIterationsConfig struct {
	Iterations int `json:"iterations"`
}

// Validate implements the check.Validatable interface.
func (c MaxIterationsConfig) Validate() []error {
	return []error{
		check.GreaterThan(c.Iterations, 0, "iterations must be > 0"),
	}
}

// MetricThresholdConfig stops a trial once its metric crosses the threshold in the
// improving direction.
type MetricThresholdConfig struct {
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
	Mode   Mode    `json:"mode"`
}

// Validate implements the check.Validatable interface.
func (c MetricThresholdConfig) Validate() []error {
	return []error{
		check.NotEmpty(c.Metric, "metric must be set"),
		check.In(string(c.Mode), []string{string(MinMode), string(MaxMode)},
			"mode must be min or max"),
	}
}

// TimeoutConfig stops the whole experiment after a wall-clock duration.
type TimeoutConfig struct {
	Duration Duration `json:"duration"`
}

// Validate implements the check.Validatable interface.
func (c TimeoutConfig) Validate() []error {
	return []error{
		check.GreaterThan(time.Duration(c.Duration), time.Duration(0),
			"duration must be > 0"),
	}
}

// PlateauConfig stops a trial whose metric has not improved by more than tolerance for
// patience consecutive reports.
type PlateauConfig struct {
	Metric    string  `json:"metric"`
	Mode      Mode    `json:"mode"`
	Tolerance float64 `json:"tolerance"`
	Patience  int     `json:"patience"`
}

// Validate implements the check.Validatable interface.
func (c PlateauConfig) Validate() []error {
	return []error{
		check.NotEmpty(c.Metric, "metric must be set"),
		check.In(string(c.Mode), []string{string(MinMode), string(MaxMode)},
			"mode must be min or max"),
		check.GreaterThanOrEqualTo(c.Tolerance, 0.0, "tolerance must be >= 0"),
		check.GreaterThan(c.Patience, 0, "patience must be > 0"),
	}
}

// ResourcesConfig bounds parallelism: Slots is the total budget and SlotsPerTrial the
// weight each running trial holds against it.
type ResourcesConfig struct {
	Slots         int `json:"slots"`
	SlotsPerTrial int `json:"slots_per_trial"`
}

// Validate implements the check.Validatable interface.
func (c ResourcesConfig) Validate() []error {
	return []error{
		check.GreaterThan(c.Slots, 0, "slots must be > 0"),
		check.GreaterThan(c.SlotsPerTrial, 0, "slots_per_trial must be > 0"),
		check.GreaterThanOrEqualTo(c.Slots, c.SlotsPerTrial,
			"slots_per_trial must not exceed slots"),
	}
}

// CheckpointConfig controls when trial checkpoints are taken and how many are kept.
// Period 0 disables periodic checkpoints.
type CheckpointConfig struct {
	Period int  `json:"period"`
	Keep   int  `json:"keep"`
	AtEnd  bool `json:"at_end"`
}

// Validate implements the check.Validatable interface.
func (c CheckpointConfig) Validate() []error {
	return []error{
		check.GreaterThanOrEqualTo(c.Period, 0, "period must be >= 0"),
		check.GreaterThan(c.Keep, 0, "keep must be > 0"),
	}
}

// Duration is a time.Duration that marshals as a duration string ("90s", "2h").
type Duration time.Duration

// MarshalJSON implements the json.Marshaler interface.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements the json.Unmarshaler interface; bare numbers are seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var parsed interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return err
	}
	switch v := parsed.(type) {
	case string:
		dur, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "parsing duration %q", v)
		}
		*d = Duration(dur)
		return nil
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
		return nil
	default:
		return errors.Errorf("cannot parse %T as a duration", parsed)
	}
}
