package tune

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/edoakes/tunekit/pkg/logger"
	"github.com/edoakes/tunekit/pkg/model"
	"github.com/edoakes/tunekit/pkg/ptrs"
	"github.com/edoakes/tunekit/pkg/stopper"
)

// bowl reports a loss that improves toward the squared distance of lr from 0.3.
func bowl(ctx context.Context, tc *TrialContext) error {
	lr, err := tc.Hparams().Float64("lr")
	if err != nil {
		return err
	}
	target := (lr - 0.3) * (lr - 0.3)
	loss := 10.0
	for {
		loss = target + (loss-target)*0.5
		if err := tc.Report(model.Metrics{"loss": loss}); err != nil {
			return err
		}
	}
}

func gridConfig(t *testing.T, maxIterations int) model.ExperimentConfig {
	t.Helper()
	cfg := model.DefaultExperimentConfig()
	cfg.Name = "grid-test"
	cfg.ResultsDir = t.TempDir()
	cfg.Metric = "loss"
	cfg.Mode = model.MinMode
	cfg.Seed = 42
	cfg.Hyperparameters = model.Hyperparameters{
		"lr": {DoubleHyperparameter: &model.DoubleHyperparameter{
			Minval: 0, Maxval: 1, Count: ptrs.Ptr(5),
		}},
		"units": {IntHyperparameter: &model.IntHyperparameter{
			Minval: 4, Maxval: 64, Count: ptrs.Ptr(5),
		}},
	}
	cfg.Searcher = model.SearcherConfig{GridConfig: &model.GridConfig{MaxConcurrent: 4}}
	cfg.Stoppers = []model.StopperConfig{
		{MaxIterationsConfig: &model.MaxIterationsConfig{Iterations: maxIterations}},
	}
	cfg.Resources = model.ResourcesConfig{Slots: 4, SlotsPerTrial: 1}
	return cfg
}

func TestGridRunsExactly25Trials(t *testing.T) {
	analysis, err := New().RunFunc(context.Background(), gridConfig(t, 3), bowl)
	require.NoError(t, err)
	require.Len(t, analysis.Trials, 25)

	// A fixed-iteration stop leaves every trial stopped at that iteration.
	for _, trial := range analysis.Trials {
		require.Equal(t, model.StoppedState, trial.State, trial.Name)
		require.Len(t, trial.Series, 3, trial.Name)
		require.Equal(t, 3, trial.Series[2].Iteration)
	}

	best, row, err := analysis.Best("loss", model.MinMode)
	require.NoError(t, err)
	require.NotNil(t, best)
	require.Contains(t, row.Metrics, "loss")
}

func TestRunRejectsConfigWithoutSearcher(t *testing.T) {
	cfg := gridConfig(t, 2)
	cfg.Searcher = model.SearcherConfig{}

	var analysis *Analysis
	var err error
	require.NotPanics(t, func() {
		analysis, err = New().RunFunc(context.Background(), cfg, bowl)
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "exactly one searcher must be set")
	require.Nil(t, analysis)
}

func TestTrialFilesWritten(t *testing.T) {
	cfg := gridConfig(t, 2)
	cfg.Searcher = model.SearcherConfig{SingleConfig: &model.SingleConfig{}}
	analysis, err := New().RunFunc(context.Background(), cfg, bowl)
	require.NoError(t, err)
	require.Len(t, analysis.Trials, 1)

	trial := analysis.Trials[0]
	raw, err := os.ReadFile(filepath.Join(trial.Dir, paramsFile))
	require.NoError(t, err)
	var params trialParams
	require.NoError(t, json.Unmarshal(raw, &params))
	require.Equal(t, trial.RequestID, params.RequestID)
	require.Contains(t, params.Hparams, "lr")

	series, err := readResultLog(filepath.Join(trial.Dir, resultFile))
	require.NoError(t, err)
	require.Len(t, series, 2)
	require.Equal(t, 1, series[0].Iteration)
	require.Equal(t, 2, series[1].Iteration)
}

func TestOneErroringTrialDoesNotAbortSiblings(t *testing.T) {
	cfg := model.DefaultExperimentConfig()
	cfg.Name = "error-test"
	cfg.ResultsDir = t.TempDir()
	cfg.Seed = 7
	cfg.Searcher = model.SearcherConfig{ListConfig: &model.ListConfig{
		Samples: []model.HParamSample{
			{"explode": false}, {"explode": true}, {"explode": false}, {"explode": false},
		},
	}}
	cfg.Stoppers = []model.StopperConfig{
		{MaxIterationsConfig: &model.MaxIterationsConfig{Iterations: 2}},
	}
	cfg.Resources = model.ResourcesConfig{Slots: 4, SlotsPerTrial: 1}

	analysis, err := New().RunFunc(context.Background(), cfg,
		func(ctx context.Context, tc *TrialContext) error {
			explode, ok := tc.Hparams()["explode"].(bool)
			if ok && explode {
				return errors.New("synthetic training failure")
			}
			for {
				if err := tc.Report(model.Metrics{"loss": 1}); err != nil {
					return err
				}
			}
		})
	require.NoError(t, err, "a failing trial must not fail the run")
	require.Len(t, analysis.Trials, 4)

	var errored, stopped int
	for _, trial := range analysis.Trials {
		switch trial.State {
		case model.ErrorState:
			errored++
			require.Contains(t, trial.Error, "synthetic training failure")
			require.FileExists(t, filepath.Join(trial.Dir, errorFile))
		case model.StoppedState:
			stopped++
		}
	}
	require.Equal(t, 1, errored)
	require.Equal(t, 3, stopped)
}

func TestRunFailsWhenEveryTrialFails(t *testing.T) {
	cfg := model.DefaultExperimentConfig()
	cfg.Name = "all-fail"
	cfg.ResultsDir = t.TempDir()
	cfg.Searcher = model.SearcherConfig{ListConfig: &model.ListConfig{
		Samples: []model.HParamSample{{"a": 1}, {"a": 2}},
	}}
	cfg.Resources = model.ResourcesConfig{Slots: 2, SlotsPerTrial: 1}

	_, err := New().RunFunc(context.Background(), cfg,
		func(ctx context.Context, tc *TrialContext) error {
			return errors.New("nope")
		})
	require.Error(t, err)
	require.Contains(t, err.Error(), "all trials failed")
}

// counter is a stateful trainable: its "model" is a step counter persisted by
// checkpoints. failAt > 0 makes the first pass through that step fail once.
type counter struct {
	mu      sync.Mutex
	steps   int
	lr      float64
	rebuilt int
	failAt  int
	failed  *bool
	history []float64
}

func (c *counter) Setup(ctx context.Context, tc *TrialContext) error {
	lr, err := tc.Hparams().Float64("lr")
	if err != nil {
		return err
	}
	c.lr = lr
	return nil
}

func (c *counter) Step(ctx context.Context) (model.Metrics, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps++
	if c.failAt > 0 && c.steps == c.failAt && !*c.failed {
		*c.failed = true
		return nil, errors.New("transient step failure")
	}
	c.history = append(c.history, c.lr)
	return model.Metrics{"loss": 1.0 / float64(c.steps), "steps": float64(c.steps)}, nil
}

func (c *counter) Save(ctx context.Context, dir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return os.WriteFile(filepath.Join(dir, "state.json"),
		[]byte(fmt.Sprintf(`{"steps": %d}`, c.steps)), 0o600)
}

func (c *counter) Restore(ctx context.Context, dir string) error {
	raw, err := os.ReadFile(filepath.Join(dir, "state.json"))
	if err != nil {
		return err
	}
	var state struct {
		Steps int `json:"steps"`
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = state.Steps
	return nil
}

func (c *counter) Reconfigure(hparams model.HParamSample) bool {
	lr, err := hparams.Float64("lr")
	if err != nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lr = lr
	return true
}

func statefulConfig(t *testing.T, iterations int) model.ExperimentConfig {
	t.Helper()
	cfg := model.DefaultExperimentConfig()
	cfg.Name = "stateful-test"
	cfg.ResultsDir = t.TempDir()
	cfg.Seed = 3
	cfg.Hyperparameters = model.Hyperparameters{
		"lr": {ConstHyperparameter: &model.ConstHyperparameter{Val: 0.5}},
	}
	cfg.Searcher = model.SearcherConfig{SingleConfig: &model.SingleConfig{}}
	cfg.Stoppers = []model.StopperConfig{
		{MaxIterationsConfig: &model.MaxIterationsConfig{Iterations: iterations}},
	}
	cfg.Resources = model.ResourcesConfig{Slots: 1, SlotsPerTrial: 1}
	return cfg
}

func TestCheckpointRestoreResumesIterationCounter(t *testing.T) {
	cfg := statefulConfig(t, 8)
	cfg.Checkpoint = model.CheckpointConfig{Period: 2, Keep: 2}
	cfg.MaxFailures = 1

	failed := false
	analysis, err := New().Run(context.Background(), cfg, func() Trainable {
		return &counter{failAt: 6, failed: &failed}
	})
	require.NoError(t, err)
	require.True(t, failed, "the transient failure should have fired")
	require.Len(t, analysis.Trials, 1)

	trial := analysis.Trials[0]
	require.Equal(t, model.StoppedState, trial.State)
	require.Len(t, trial.Series, 8)
	for i, row := range trial.Series {
		require.Equal(t, i+1, row.Iteration)
	}
	// The restored counter picked up from the checkpoint, not from zero.
	require.Equal(t, float64(8), trial.Series[7].Metrics["steps"])
	require.NotEmpty(t, trial.Checkpoints)

	// Keep: 2 bounds retained checkpoints on disk.
	entries, err := os.ReadDir(filepath.Join(trial.Dir, checkpointsDir))
	require.NoError(t, err)
	require.LessOrEqual(t, len(entries), 2)
}

func TestSchedulerUpdateTriggersReconfigure(t *testing.T) {
	cfg := statefulConfig(t, 6)

	var trainable *counter
	sched := stopper.SchedulerFunc(func(
		id model.RequestID, iteration int, metrics model.Metrics,
	) stopper.Decision {
		if iteration == 3 {
			return stopper.Decision{
				Op:      stopper.Update,
				Hparams: model.HParamSample{"lr": 0.9},
			}
		}
		return stopper.Decision{Op: stopper.Continue}
	})

	analysis, err := New(WithScheduler(sched)).Run(context.Background(), cfg,
		func() Trainable {
			trainable = &counter{}
			return trainable
		})
	require.NoError(t, err)
	require.Len(t, analysis.Trials, 1)
	require.Len(t, analysis.Trials[0].Series, 6)

	// Model state survived the swap: the step counter kept counting, and the lr
	// history switches from the sampled value to the update mid-run.
	require.Equal(t, []float64{0.5, 0.5, 0.5, 0.9, 0.9, 0.9}, trainable.history)
	require.Equal(t, 6, trainable.steps)
}

func TestSchedulerStopEndsTrialEarly(t *testing.T) {
	cfg := statefulConfig(t, 100)

	sched := stopper.SchedulerFunc(func(
		id model.RequestID, iteration int, metrics model.Metrics,
	) stopper.Decision {
		if iteration >= 4 {
			return stopper.Decision{Op: stopper.Stop}
		}
		return stopper.Decision{Op: stopper.Continue}
	})

	analysis, err := New(WithScheduler(sched)).Run(context.Background(), cfg,
		func() Trainable { return &counter{} })
	require.NoError(t, err)
	require.Len(t, analysis.Trials[0].Series, 4)
	require.Equal(t, model.StoppedState, analysis.Trials[0].State)
}

func TestLoadAnalysisRoundTrip(t *testing.T) {
	cfg := gridConfig(t, 3)
	cfg.Searcher = model.SearcherConfig{RandomConfig: &model.RandomConfig{
		MaxTrials: 3, MaxConcurrent: 2,
	}}
	analysis, err := New().RunFunc(context.Background(), cfg, bowl)
	require.NoError(t, err)

	loaded, err := LoadAnalysis(analysis.Dir)
	require.NoError(t, err)
	require.Equal(t, analysis.Experiment, loaded.Experiment)
	require.Len(t, loaded.Trials, len(analysis.Trials))
	for i := range loaded.Trials {
		require.Equal(t, analysis.Trials[i].RequestID, loaded.Trials[i].RequestID)
		require.Len(t, loaded.Trials[i].Series, len(analysis.Trials[i].Series))
	}

	best, err := loaded.BestConfig()
	require.NoError(t, err)
	require.Contains(t, best, "lr")
}

func TestAnalysisToleratesEmptySeries(t *testing.T) {
	analysis := &Analysis{
		Metric: "loss",
		Mode:   model.MinMode,
		Trials: []TrialResult{
			{Name: "empty"},
			{Name: "partial", Series: []model.MetricReport{
				{Iteration: 1, Metrics: model.Metrics{"accuracy": 0.5}},
			}},
		},
	}
	require.Empty(t, analysis.Trials[0].Metric("loss"))
	require.Empty(t, analysis.Trials[1].Metric("loss"))
	_, ok := analysis.Trials[0].Last()
	require.False(t, ok)

	_, _, err := analysis.Best("loss", model.MinMode)
	require.Error(t, err)

	_, _, err = analysis.Best("accuracy", model.MaxMode)
	require.NoError(t, err)
}

func TestInvalidHPIsReplacedWithoutFailingRun(t *testing.T) {
	cfg := model.DefaultExperimentConfig()
	cfg.Name = "invalid-hp"
	cfg.ResultsDir = t.TempDir()
	cfg.Seed = 11
	cfg.Hyperparameters = model.Hyperparameters{
		"lr": {DoubleHyperparameter: &model.DoubleHyperparameter{Minval: 0, Maxval: 1}},
	}
	cfg.Searcher = model.SearcherConfig{RandomConfig: &model.RandomConfig{
		MaxTrials: 2, MaxConcurrent: 1,
	}}
	cfg.Stoppers = []model.StopperConfig{
		{MaxIterationsConfig: &model.MaxIterationsConfig{Iterations: 2}},
	}
	cfg.Resources = model.ResourcesConfig{Slots: 1, SlotsPerTrial: 1}

	rejectedFirst := false
	analysis, err := New().RunFunc(context.Background(), cfg,
		func(ctx context.Context, tc *TrialContext) error {
			if !rejectedFirst {
				rejectedFirst = true
				return ErrInvalidHP
			}
			for {
				if err := tc.Report(model.Metrics{"loss": 0.5}); err != nil {
					return err
				}
			}
		})
	require.NoError(t, err)

	// The invalid trial was replaced: 2 budgeted trials plus the rejected one.
	require.Len(t, analysis.Trials, 3)
	var stoppedTrials int
	for _, trial := range analysis.Trials {
		if trial.State == model.StoppedState {
			stoppedTrials++
		}
	}
	require.Equal(t, 2, stoppedTrials)
}

func TestRunLogsCapturedByBuffer(t *testing.T) {
	buf := logger.NewBuffer(32)
	lg := logrus.New()
	lg.SetOutput(io.Discard)
	lg.AddHook(buf)

	cfg := gridConfig(t, 1)
	cfg.Searcher = model.SearcherConfig{SingleConfig: &model.SingleConfig{}}
	_, err := New(WithLogger(lg.WithField("component", "tuner"))).
		RunFunc(context.Background(), cfg, bowl)
	require.NoError(t, err)

	require.Greater(t, buf.Len(), 0)
	var sawStart, sawExit bool
	for _, e := range buf.Entries() {
		if strings.Contains(e.Message, "experiment started") {
			sawStart = true
		}
		if strings.Contains(e.Message, "trial exited") {
			sawExit = true
		}
	}
	require.True(t, sawStart, "expected an experiment-started entry in the buffer")
	require.True(t, sawExit, "expected a trial-exited entry in the buffer")
}
