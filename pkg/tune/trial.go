package tune

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/edoakes/tunekit/pkg/model"
	"github.com/edoakes/tunekit/pkg/syncx/queue"
)

// Names of the files a trial writes under its directory.
const (
	paramsFile     = "params.json"
	resultFile     = "result.json"
	errorFile      = "error.txt"
	checkpointsDir = "checkpoints"
)

// event is a message from a trial goroutine to the driver.
type event interface{}

// reportEvent carries one metric report; the trial blocks on reply for the driver's
// verdict before continuing.
type reportEvent struct {
	requestID model.RequestID
	iteration int
	metrics   model.Metrics
	reply     chan directive
}

// exitEvent announces a trial reaching a terminal state.
type exitEvent struct {
	requestID model.RequestID
	reason    model.ExitedReason
	err       error
}

type directiveOp int

const (
	continueTrial directiveOp = iota
	stopTrial
	updateTrial
)

type directive struct {
	op      directiveOp
	hparams model.HParamSample
}

// trial runs one sampled configuration and owns its working directory. All fields
// except series/checkpoints/state are set at creation; the driver reads the mutable
// fields only after the trial's exit event.
type trial struct {
	requestID model.RequestID
	seq       int
	name      string
	seed      uint32
	hparams   model.HParamSample
	dir       string
	log       *logrus.Entry
	clock     clockwork.Clock

	checkpointCfg model.CheckpointConfig
	maxFailures   int
	events        *queue.Queue[event]

	state       model.State
	series      []model.MetricReport
	checkpoints []string
	started     time.Time
	trainErr    error

	pendingUpdate model.HParamSample
}

func newTrial(
	seq int, create createSpec, expDir string, cfg model.ExperimentConfig,
	events *queue.Queue[event], log *logrus.Entry, clock clockwork.Clock,
) *trial {
	name := fmt.Sprintf("trial-%03d-%.8s", seq, create.requestID.String())
	return &trial{
		requestID:     create.requestID,
		seq:           seq,
		name:          name,
		seed:          create.seed,
		hparams:       create.hparams,
		dir:           filepath.Join(expDir, "trials", name),
		log:           log.WithField("trial", name),
		clock:         clock,
		checkpointCfg: cfg.Checkpoint,
		maxFailures:   cfg.MaxFailures,
		events:        events,
		state:         model.PendingState,
	}
}

// createSpec is the driver's view of a searcher Create action.
type createSpec struct {
	requestID model.RequestID
	seed      uint32
	hparams   model.HParamSample
}

func (t *trial) setState(next model.State) {
	t.state = t.state.MustTransition(next)
}

// trialParams is the persisted form of a trial's identity, written before training.
type trialParams struct {
	RequestID model.RequestID    `json:"request_id"`
	Name      string             `json:"name"`
	Seed      uint32             `json:"seed"`
	Hparams   model.HParamSample `json:"hparams"`
}

func (t *trial) writeParams() error {
	if err := os.MkdirAll(t.dir, 0o700); err != nil {
		return errors.Wrap(err, "creating trial directory")
	}
	raw, err := json.MarshalIndent(trialParams{
		RequestID: t.requestID,
		Name:      t.name,
		Seed:      t.seed,
		Hparams:   t.hparams,
	}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling trial params")
	}
	return errors.Wrap(
		os.WriteFile(filepath.Join(t.dir, paramsFile), raw, 0o600),
		"writing trial params")
}

// appendRow appends one report to the trial's result log, one JSON object per line.
func (t *trial) appendRow(row model.MetricReport) error {
	raw, err := json.Marshal(row)
	if err != nil {
		return errors.Wrap(err, "marshaling metric report")
	}
	f, err := os.OpenFile(
		filepath.Join(t.dir, resultFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return errors.Wrap(err, "opening result log")
	}
	defer f.Close()
	_, err = f.Write(append(raw, '\n'))
	return errors.Wrap(err, "appending to result log")
}

// run executes the trial to a terminal state, restarting on failure up to
// maxFailures times, and always delivers exactly one exit event.
func (t *trial) run(ctx context.Context, fn TrainFunc, factory Factory) {
	reason, err := t.runWithRestarts(ctx, fn, factory)
	t.trainErr = err

	switch {
	case err != nil && errors.Is(err, ErrInvalidHP):
		t.setState(model.ErrorState)
		reason = model.InvalidHP
	case err != nil && (errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)):
		t.setState(model.CanceledState)
		reason = model.Canceled
	case err != nil:
		t.setState(model.ErrorState)
		reason = model.Errored
		t.writeError(err)
	case reason == model.Stopped:
		t.setState(model.StoppedState)
	default:
		t.setState(model.CompletedState)
	}

	t.events.Put(exitEvent{requestID: t.requestID, reason: reason, err: err})
}

func (t *trial) writeError(err error) {
	msg := fmt.Sprintf("%+v\n", err)
	if werr := os.WriteFile(filepath.Join(t.dir, errorFile), []byte(msg), 0o600); werr != nil {
		t.log.WithError(werr).Error("writing trial error file")
	}
}

func (t *trial) runWithRestarts(
	ctx context.Context, fn TrainFunc, factory Factory,
) (model.ExitedReason, error) {
	if err := t.writeParams(); err != nil {
		return model.Errored, err
	}
	t.setState(model.RunningState)
	t.started = t.clock.Now()
	t.log.WithField("hparams", t.hparams).Info("trial started")

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 5 * time.Second

	for attempt := 0; ; attempt++ {
		reason, err := t.attempt(ctx, fn, factory)
		if err == nil || errors.Is(err, ErrInvalidHP) ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return reason, err
		}
		if attempt >= t.maxFailures {
			t.log.WithError(err).Errorf("trial failed after %d attempts", attempt+1)
			return model.Errored, err
		}
		wait := bo.NextBackOff()
		t.log.WithError(err).Warnf("trial attempt %d failed, restarting in %s",
			attempt+1, wait)
		select {
		case <-t.clock.After(wait):
		case <-ctx.Done():
			return model.Canceled, ctx.Err()
		}
	}
}

// attempt runs the trainable once. A nil error with reason Stopped means a stop
// condition or scheduler decision ended the trial; a nil error with reason "" means
// the trainable finished naturally.
func (t *trial) attempt(
	ctx context.Context, fn TrainFunc, factory Factory,
) (model.ExitedReason, error) {
	tc := &TrialContext{
		requestID: t.requestID,
		name:      t.name,
		seed:      t.seed,
		dir:       t.dir,
		log:       t.log,
		hparams:   t.hparams,
		iteration: t.restoredIteration(),
	}
	tc.report = func(metrics model.Metrics) error {
		return t.handleReport(ctx, tc, metrics)
	}
	// Rows reported past the resume point belong to the failed attempt; training
	// re-reports them.
	t.truncateSeries(tc.iteration)

	if fn != nil {
		err := fn(ctx, tc)
		if errors.Is(err, ErrTrialStopped) || (err == nil && tc.stopped) {
			return model.Stopped, nil
		}
		if err == nil && ctx.Err() != nil {
			return model.Canceled, ctx.Err()
		}
		return "", err
	}
	return t.attemptTrainable(ctx, tc, factory)
}

// attemptTrainable drives the stateful form: the driver owns the iteration loop,
// checkpoint cadence, and restore-on-resume.
func (t *trial) attemptTrainable(
	ctx context.Context, tc *TrialContext, factory Factory,
) (model.ExitedReason, error) {
	trainable := factory()
	if err := trainable.Setup(ctx, tc); err != nil {
		return "", errors.Wrap(err, "setting up trainable")
	}
	if latest, ok := t.latestCheckpoint(); ok {
		if err := trainable.Restore(ctx, latest); err != nil {
			return "", errors.Wrapf(err, "restoring from %s", latest)
		}
		t.log.Infof("restored from checkpoint at iteration %d", tc.iteration)
	}

	for {
		if ctx.Err() != nil {
			return model.Canceled, ctx.Err()
		}
		metrics, err := trainable.Step(ctx)
		if err != nil {
			return "", errors.Wrap(err, "training step")
		}
		if err := tc.Report(metrics); err != nil {
			if errors.Is(err, ErrTrialStopped) {
				break
			}
			return "", err
		}
		if update := t.takeUpdate(); update != nil {
			if !trainable.Reconfigure(update) {
				// The trainable cannot apply the values in place; rebuild it.
				trainable = factory()
				if err := trainable.Setup(ctx, tc); err != nil {
					return "", errors.Wrap(err, "re-setup after hyperparameter update")
				}
			}
		}
		if t.shouldCheckpoint(tc.iteration, false) {
			if err := t.saveCheckpoint(ctx, trainable, tc.iteration); err != nil {
				return "", err
			}
		}
	}

	if t.shouldCheckpoint(tc.iteration, true) {
		if err := t.saveCheckpoint(ctx, trainable, tc.iteration); err != nil {
			return "", err
		}
	}
	return model.Stopped, nil
}

// handleReport records the row, forwards it to the driver, and applies the verdict.
func (t *trial) handleReport(
	ctx context.Context, tc *TrialContext, metrics model.Metrics,
) error {
	tc.iteration++
	row := model.MetricReport{
		RequestID: t.requestID,
		Iteration: tc.iteration,
		Metrics:   metrics.Copy(),
		Time:      t.clock.Now(),
		TimeTotal: t.clock.Now().Sub(t.started).Seconds(),
	}
	t.series = append(t.series, row)
	if err := t.appendRow(row); err != nil {
		return err
	}

	ev := reportEvent{
		requestID: t.requestID,
		iteration: tc.iteration,
		metrics:   metrics,
		reply:     make(chan directive, 1),
	}
	t.events.Put(ev)

	var d directive
	select {
	case d = <-ev.reply:
	case <-ctx.Done():
		return ctx.Err()
	}
	switch d.op {
	case stopTrial:
		tc.stopped = true
		return ErrTrialStopped
	case updateTrial:
		tc.hparams = d.hparams
		t.hparams = d.hparams
		t.pendingUpdate = d.hparams
	}
	return nil
}

// takeUpdate consumes a pending hyperparameter update, if any.
func (t *trial) takeUpdate() model.HParamSample {
	update := t.pendingUpdate
	t.pendingUpdate = nil
	return update
}

func (t *trial) truncateSeries(iteration int) {
	keep := t.series[:0]
	for _, row := range t.series {
		if row.Iteration <= iteration {
			keep = append(keep, row)
		}
	}
	t.series = keep
}

func (t *trial) shouldCheckpoint(iteration int, atEnd bool) bool {
	if atEnd {
		return t.checkpointCfg.AtEnd && !t.hasCheckpointAt(iteration)
	}
	return t.checkpointCfg.Period > 0 && iteration > 0 &&
		iteration%t.checkpointCfg.Period == 0 && !t.hasCheckpointAt(iteration)
}

func (t *trial) hasCheckpointAt(iteration int) bool {
	dir := t.checkpointPath(iteration)
	for _, existing := range t.checkpoints {
		if existing == dir {
			return true
		}
	}
	return false
}

func (t *trial) checkpointPath(iteration int) string {
	return filepath.Join(t.dir, checkpointsDir, fmt.Sprintf("ckpt-%06d", iteration))
}

func (t *trial) saveCheckpoint(ctx context.Context, trainable Trainable, iteration int) error {
	dir := t.checkpointPath(iteration)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, "creating checkpoint directory")
	}
	if err := trainable.Save(ctx, dir); err != nil {
		return errors.Wrapf(err, "saving checkpoint at iteration %d", iteration)
	}
	t.checkpoints = append(t.checkpoints, dir)
	t.log.Debugf("saved checkpoint at iteration %d", iteration)

	for len(t.checkpoints) > t.checkpointCfg.Keep {
		oldest := t.checkpoints[0]
		t.checkpoints = t.checkpoints[1:]
		if err := os.RemoveAll(oldest); err != nil {
			t.log.WithError(err).Warnf("removing stale checkpoint %s", oldest)
		}
	}
	return nil
}

// latestCheckpoint finds the newest checkpoint on disk, surviving restarts of the
// trial goroutine itself.
func (t *trial) latestCheckpoint() (string, bool) {
	entries, err := os.ReadDir(filepath.Join(t.dir, checkpointsDir))
	if err != nil || len(entries) == 0 {
		return "", false
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", false
	}
	sort.Strings(names)
	return filepath.Join(t.dir, checkpointsDir, names[len(names)-1]), true
}

// restoredIteration reads the iteration encoded in the latest checkpoint's name, so a
// resumed trial's counter picks up where the checkpoint left off.
func (t *trial) restoredIteration() int {
	latest, ok := t.latestCheckpoint()
	if !ok {
		return 0
	}
	var iteration int
	if _, err := fmt.Sscanf(filepath.Base(latest), "ckpt-%d", &iteration); err != nil {
		return 0
	}
	return iteration
}
