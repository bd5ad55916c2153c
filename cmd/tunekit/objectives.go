package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/edoakes/tunekit/pkg/model"
	"github.com/edoakes/tunekit/pkg/prand"
	"github.com/edoakes/tunekit/pkg/tune"
)

// objective is a built-in demo trainable selectable by the config's `objective` field.
// Exactly one of fn and factory is set.
type objective struct {
	fn      tune.TrainFunc
	factory tune.Factory
}

var objectives = map[string]objective{
	"bowl":       {fn: bowl},
	"rosenbrock": {fn: rosenbrock},
	"sgd":        {factory: func() tune.Trainable { return &sgdTrainable{} }},
}

func objectiveNames() []string {
	names := make([]string, 0, len(objectives))
	for name := range objectives {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupObjective(name string) (objective, error) {
	obj, ok := objectives[name]
	if !ok {
		return objective{}, errors.Errorf(
			"unknown objective %q, expected one of %v", name, objectiveNames())
	}
	return obj, nil
}

// bowl is a convex quadratic in hyperparameters x and y, minimized at (3, -1). The loss
// shrinks geometrically with the iteration so plateau and threshold stoppers have
// something to watch.
func bowl(ctx context.Context, tc *tune.TrialContext) error {
	for {
		x, err := tc.Hparams().Float64("x")
		if err != nil {
			return err
		}
		y, err := tc.Hparams().Float64("y")
		if err != nil {
			return err
		}
		loss := (x-3)*(x-3) + (y+1)*(y+1)
		for i := 0; i < tc.Iteration(); i++ {
			loss *= 0.9
		}
		if err := tc.Report(model.Metrics{"loss": loss}); err != nil {
			if errors.Is(err, tune.ErrTrialStopped) {
				return nil
			}
			return err
		}
	}
}

// rosenbrock is the classic banana-valley function in x and y, minimized at (1, 1).
func rosenbrock(ctx context.Context, tc *tune.TrialContext) error {
	for {
		x, err := tc.Hparams().Float64("x")
		if err != nil {
			return err
		}
		y, err := tc.Hparams().Float64("y")
		if err != nil {
			return err
		}
		loss := 100*(y-x*x)*(y-x*x) + (1-x)*(1-x)
		if err := tc.Report(model.Metrics{"loss": loss}); err != nil {
			if errors.Is(err, tune.ErrTrialStopped) {
				return nil
			}
			return err
		}
	}
}

// sgdTrainable is a stateful demo: noisy gradient descent on the bowl objective, with
// the position as checkpointable state and the learning rate swappable in place.
type sgdTrainable struct {
	rng *prand.State
	lr  float64

	State sgdState
}

type sgdState struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Steps int     `json:"steps"`
}

const sgdStateFile = "state.json"

func (t *sgdTrainable) Setup(ctx context.Context, tc *tune.TrialContext) error {
	lr, err := tc.Hparams().Float64("lr")
	if err != nil {
		return err
	}
	if lr <= 0 || lr >= 1 {
		return errors.Wrapf(tune.ErrInvalidHP, "lr %v outside (0, 1)", lr)
	}
	t.lr = lr
	t.rng = prand.New(uint64(tc.Seed()))
	t.State = sgdState{X: t.rng.Uniform(-5, 5), Y: t.rng.Uniform(-5, 5)}
	return nil
}

func (t *sgdTrainable) Step(ctx context.Context) (model.Metrics, error) {
	gx := 2 * (t.State.X - 3)
	gy := 2 * (t.State.Y + 1)
	t.State.X -= t.lr * (gx + t.rng.Uniform(-0.1, 0.1))
	t.State.Y -= t.lr * (gy + t.rng.Uniform(-0.1, 0.1))
	t.State.Steps++
	loss := (t.State.X-3)*(t.State.X-3) + (t.State.Y+1)*(t.State.Y+1)
	return model.Metrics{"loss": loss, "steps": float64(t.State.Steps)}, nil
}

func (t *sgdTrainable) Save(ctx context.Context, dir string) error {
	raw, err := json.Marshal(t.State)
	if err != nil {
		return errors.Wrap(err, "marshaling sgd state")
	}
	return errors.Wrap(
		os.WriteFile(filepath.Join(dir, sgdStateFile), raw, 0o600), "saving sgd state")
}

func (t *sgdTrainable) Restore(ctx context.Context, dir string) error {
	raw, err := os.ReadFile(filepath.Join(dir, sgdStateFile))
	if err != nil {
		return errors.Wrap(err, "reading sgd state")
	}
	return errors.Wrap(json.Unmarshal(raw, &t.State), "parsing sgd state")
}

func (t *sgdTrainable) Reconfigure(hparams model.HParamSample) bool {
	lr, err := hparams.Float64("lr")
	if err != nil || lr <= 0 || lr >= 1 {
		return false
	}
	t.lr = lr
	return true
}
