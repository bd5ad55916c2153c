package tune

import (
	"context"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/edoakes/tunekit/pkg/check"
	"github.com/edoakes/tunekit/pkg/logger"
	"github.com/edoakes/tunekit/pkg/model"
	"github.com/edoakes/tunekit/pkg/searcher"
	"github.com/edoakes/tunekit/pkg/stopper"
	"github.com/edoakes/tunekit/pkg/syncx/errgroupx"
	"github.com/edoakes/tunekit/pkg/syncx/queue"
)

// Tuner is the run driver: it assembles the searcher, stoppers, and scheduler from an
// experiment config, executes trials in parallel under the resource budget, and
// collects their results.
type Tuner struct {
	log       *logrus.Entry
	clock     clockwork.Clock
	scheduler stopper.Scheduler
	method    searcher.SearchMethod
	stop      stopper.Stopper
}

// TunerOption configures a Tuner.
type TunerOption func(*Tuner)

// WithLogger sets the driver's logger.
func WithLogger(log *logrus.Entry) TunerOption {
	return func(t *Tuner) { t.log = log }
}

// WithClock injects a clock; tests use a fake one.
func WithClock(clock clockwork.Clock) TunerOption {
	return func(t *Tuner) { t.clock = clock }
}

// WithScheduler injects an early-stopping policy consulted on every report. The
// default FIFO scheduler lets every trial run to its natural end.
func WithScheduler(s stopper.Scheduler) TunerOption {
	return func(t *Tuner) { t.scheduler = s }
}

// WithSearchMethod overrides the search method built from the config's searcher
// section; custom proposal strategies plug in here.
func WithSearchMethod(m searcher.SearchMethod) TunerOption {
	return func(t *Tuner) { t.method = m }
}

// WithStopper overrides the stoppers compiled from the config.
func WithStopper(s stopper.Stopper) TunerOption {
	return func(t *Tuner) { t.stop = s }
}

// New creates a Tuner.
func New(opts ...TunerOption) *Tuner {
	t := &Tuner{
		log:   logger.NewContext("component", "tuner").Logger(),
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RunFunc runs an experiment over the stateless trainable form.
func (t *Tuner) RunFunc(
	ctx context.Context, cfg model.ExperimentConfig, fn TrainFunc,
) (*Analysis, error) {
	if fn == nil {
		return nil, errors.New("nil train function")
	}
	return t.run(ctx, cfg, fn, nil)
}

// Run runs an experiment over the stateful trainable form; factory builds one
// trainable per trial.
func (t *Tuner) Run(
	ctx context.Context, cfg model.ExperimentConfig, factory Factory,
) (*Analysis, error) {
	if factory == nil {
		return nil, errors.New("nil trainable factory")
	}
	return t.run(ctx, cfg, nil, factory)
}

// experiment is the mutable state of one driver invocation.
type experiment struct {
	cfg    model.ExperimentConfig
	dir    string
	search *searcher.Searcher
	stop   stopper.Stopper
	sched  stopper.Scheduler
	events *queue.Queue[event]
	group  *errgroupx.Group
	sem    *semaphore.Weighted
	trials *trialList
	log    *logrus.Entry

	nextSeq  int
	running  int
	stopping bool
	stopped  map[model.RequestID]bool
	maxIters int
}

func (t *Tuner) run(
	ctx context.Context, cfg model.ExperimentConfig, fn TrainFunc, factory Factory,
) (*Analysis, error) {
	if err := check.Validate(cfg); err != nil {
		return nil, err
	}

	dir, err := resolveExperimentDir(cfg)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(dir, "trials"), 0o700); err != nil {
		return nil, errors.Wrap(err, "creating experiment directory")
	}

	method := t.method
	if method == nil {
		method = searcher.NewSearchMethod(cfg.Searcher)
	}
	stop := t.stop
	if stop == nil {
		if stop, err = stopper.Compile(cfg.Stoppers, t.clock); err != nil {
			return nil, err
		}
	}
	sched := t.scheduler
	if sched == nil {
		sched = stopper.FIFO()
	}

	exp := &experiment{
		cfg:      cfg,
		dir:      dir,
		search:   searcher.NewSearcher(cfg.Seed, method, cfg.Hyperparameters),
		stop:     stop,
		sched:    sched,
		events:   queue.New[event](),
		group:    errgroupx.WithContext(ctx).WithRecover(),
		sem:      semaphore.NewWeighted(int64(cfg.Resources.Slots)),
		trials:   newTrialList(),
		log:      t.log.WithField("experiment", cfg.Name),
		stopped:  map[model.RequestID]bool{},
		maxIters: maxIterationsOf(cfg),
	}

	exp.log.WithField("dir", dir).Info("experiment started")
	runErr := t.drive(ctx, exp, fn, factory)
	if runErr != nil {
		// Unblock any trial still waiting on a reply, then let them all exit.
		exp.group.Cancel()
		t.drain(exp)
	}
	if waitErr := exp.group.Wait(); waitErr != nil && runErr == nil &&
		!errors.Is(waitErr, context.Canceled) {
		runErr = waitErr
	}
	analysis := exp.collect()
	if err := analysis.write(); err != nil {
		exp.log.WithError(err).Warn("writing experiment summary")
	}
	if runErr != nil {
		return analysis, runErr
	}

	// A failing trial does not fail the run; the run fails only when nothing succeeded.
	if allErr := exp.allTrialsFailed(); allErr != nil {
		return analysis, allErr
	}
	exp.log.Info("experiment finished")
	return analysis, nil
}

// drive is the single goroutine that owns the searcher and all trial bookkeeping, so
// search methods never observe concurrent events.
func (t *Tuner) drive(
	ctx context.Context, exp *experiment, fn TrainFunc, factory Factory,
) error {
	actions, err := exp.search.InitialTrials()
	if err != nil {
		return err
	}
	if err := t.apply(ctx, exp, actions, fn, factory); err != nil {
		return err
	}

	for exp.running > 0 {
		ev, err := exp.events.GetWithContext(ctx)
		if err != nil {
			// Canceled: the trial goroutines observe the same cancellation; drain
			// their exit events so none is left blocked on a reply.
			exp.group.Cancel()
			t.drain(exp)
			return err
		}
		switch ev := ev.(type) {
		case reportEvent:
			if err := t.handleReportEvent(ctx, exp, ev, fn, factory); err != nil {
				return err
			}
		case exitEvent:
			if err := t.handleExitEvent(ctx, exp, ev, fn, factory); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Tuner) handleReportEvent(
	ctx context.Context, exp *experiment, ev reportEvent, fn TrainFunc, factory Factory,
) error {
	actions, err := exp.search.ResultReported(ev.requestID, ev.metrics)
	if err != nil {
		return err
	}
	if exp.maxIters > 0 {
		exp.search.SetTrialProgress(
			ev.requestID, float64(ev.iteration)/float64(exp.maxIters))
	}

	if exp.stop.StopExperiment() {
		exp.stopping = true
	}
	d := directive{op: continueTrial}
	switch {
	case exp.stopping || exp.stopped[ev.requestID]:
		d.op = stopTrial
	case exp.stop.StopTrial(ev.requestID, ev.iteration, ev.metrics):
		d.op = stopTrial
	default:
		switch decision := exp.sched.OnReport(ev.requestID, ev.iteration, ev.metrics); decision.Op {
		case stopper.Stop:
			d.op = stopTrial
		case stopper.Update:
			d = directive{op: updateTrial, hparams: decision.Hparams}
		}
	}
	ev.reply <- d

	return t.apply(ctx, exp, actions, fn, factory)
}

func (t *Tuner) handleExitEvent(
	ctx context.Context, exp *experiment, ev exitEvent, fn TrainFunc, factory Factory,
) error {
	exp.running--
	if tr, ok := exp.trials.ByID(ev.requestID); ok {
		exp.log.WithFields(logrus.Fields{
			"trial": tr.name,
			"state": tr.state,
		}).Info("trial exited")
	}
	exp.search.SetTrialProgress(ev.requestID, 1)
	actions, err := exp.search.TrialExited(ev.requestID, ev.reason)
	if err != nil {
		return err
	}
	return t.apply(ctx, exp, actions, fn, factory)
}

// apply launches creates, records stops, and notes shutdown from a batch of searcher
// actions.
func (t *Tuner) apply(
	ctx context.Context, exp *experiment, actions []searcher.Action,
	fn TrainFunc, factory Factory,
) error {
	for _, action := range actions {
		switch action := action.(type) {
		case searcher.Create:
			if exp.stopping {
				continue
			}
			if err := t.launch(ctx, exp, action, fn, factory); err != nil {
				return err
			}
		case searcher.Stop:
			exp.stopped[action.RequestID] = true
		case searcher.Shutdown:
			// No new trials; the running ones finish on their own terms.
		}
	}
	return nil
}

func (t *Tuner) launch(
	ctx context.Context, exp *experiment, create searcher.Create,
	fn TrainFunc, factory Factory,
) error {
	spec := createSpec{
		requestID: create.RequestID,
		seed:      create.TrialSeed,
		hparams:   create.Hparams,
	}
	tr := newTrial(exp.nextSeq, spec, exp.dir, exp.cfg, exp.events, exp.log, t.clock)
	exp.nextSeq++
	if !exp.trials.Add(tr) {
		return errors.Errorf("duplicate trial request ID %s", tr.requestID)
	}
	followup, err := exp.search.TrialCreated(create)
	if err != nil {
		return err
	}
	exp.running++

	weight := int64(exp.cfg.Resources.SlotsPerTrial)
	exp.group.Go(func(ctx context.Context) error {
		if err := exp.sem.Acquire(ctx, weight); err != nil {
			tr.setState(model.CanceledState)
			exp.events.Put(exitEvent{
				requestID: tr.requestID, reason: model.Canceled, err: err,
			})
			return nil
		}
		defer exp.sem.Release(weight)
		tr.run(ctx, fn, factory)
		return nil
	})
	return t.apply(ctx, exp, followup, fn, factory)
}

// drain consumes events until every launched trial has exited, replying "stop" to any
// in-flight reports.
func (t *Tuner) drain(exp *experiment) {
	for exp.running > 0 {
		switch ev := exp.events.Get().(type) {
		case reportEvent:
			ev.reply <- directive{op: stopTrial}
		case exitEvent:
			exp.running--
		}
	}
}

// allTrialsFailed aggregates trial errors when not a single trial succeeded.
func (exp *experiment) allTrialsFailed() error {
	if exp.trials.Len() == 0 {
		return nil
	}
	var errs *multierror.Error
	failed := 0
	exp.trials.Each(func(tr *trial) {
		if tr.state == model.ErrorState && tr.trainErr != nil {
			failed++
			errs = multierror.Append(errs, errors.Wrap(tr.trainErr, tr.name))
		}
	})
	if failed == exp.trials.Len() {
		return errors.Wrap(errs.ErrorOrNil(), "all trials failed")
	}
	return nil
}

// maxIterationsOf extracts the iteration stop bound for progress reporting, if one is
// configured.
func maxIterationsOf(cfg model.ExperimentConfig) int {
	for _, s := range cfg.Stoppers {
		if s.MaxIterationsConfig != nil {
			return s.MaxIterationsConfig.Iterations
		}
	}
	return 0
}

// resolveExperimentDir picks the experiment directory: the configured results root or
// ~/tunekit_results, with the experiment name as the leaf.
func resolveExperimentDir(cfg model.ExperimentConfig) (string, error) {
	root := cfg.ResultsDir
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, "resolving home directory")
		}
		root = filepath.Join(home, "tunekit_results")
	}
	return filepath.Join(root, cfg.Name), nil
}
