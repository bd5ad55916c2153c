package tune

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/edoakes/tunekit/pkg/model"
)

const experimentFile = "experiment.json"

// TrialResult is the collected outcome of one trial.
type TrialResult struct {
	RequestID   model.RequestID      `json:"request_id"`
	Name        string               `json:"name"`
	State       model.State          `json:"state"`
	Hparams     model.HParamSample   `json:"hparams"`
	Seed        uint32               `json:"seed"`
	Dir         string               `json:"dir"`
	Series      []model.MetricReport `json:"-"`
	Checkpoints []string             `json:"checkpoints,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// Last returns the trial's final report, or false for an empty series.
func (r *TrialResult) Last() (model.MetricReport, bool) {
	if len(r.Series) == 0 {
		return model.MetricReport{}, false
	}
	return r.Series[len(r.Series)-1], true
}

// BestRow returns the trial's best report for the metric under the mode, or false
// when no report carries the metric.
func (r *TrialResult) BestRow(metric string, mode model.Mode) (model.MetricReport, bool) {
	var best model.MetricReport
	found := false
	for _, row := range r.Series {
		v, ok := row.Metrics[metric]
		if !ok {
			continue
		}
		if !found || model.Better(v, best.Metrics[metric], mode) {
			best = row
			found = true
		}
	}
	return best, found
}

// Metric extracts the trial's time series for one metric, skipping reports that lack
// it. Empty and partial series yield a short (possibly empty) slice, never a panic.
func (r *TrialResult) Metric(name string) []float64 {
	var out []float64
	for _, row := range r.Series {
		if v, ok := row.Metrics[name]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Analysis is the queryable result of a run.
type Analysis struct {
	Experiment string        `json:"experiment"`
	Dir        string        `json:"dir"`
	Metric     string        `json:"metric"`
	Mode       model.Mode    `json:"mode"`
	Trials     []TrialResult `json:"trials"`
	EventLog   []string      `json:"event_log,omitempty"`
}

// Best returns the trial with the best value of the metric under the mode, along with
// the row that achieved it. Trials that never reported the metric are skipped; an
// error is returned only when no trial reported it at all.
func (a *Analysis) Best(metric string, mode model.Mode) (*TrialResult, model.MetricReport, error) {
	var bestTrial *TrialResult
	var bestRow model.MetricReport
	for i := range a.Trials {
		row, ok := a.Trials[i].BestRow(metric, mode)
		if !ok {
			continue
		}
		if bestTrial == nil ||
			model.Better(row.Metrics[metric], bestRow.Metrics[metric], mode) {
			bestTrial = &a.Trials[i]
			bestRow = row
		}
	}
	if bestTrial == nil {
		return nil, model.MetricReport{}, errors.Errorf("no trial reported metric %q", metric)
	}
	return bestTrial, bestRow, nil
}

// BestConfig returns the hyperparameters of the best trial by the analysis's own
// metric and mode.
func (a *Analysis) BestConfig() (model.HParamSample, error) {
	trial, _, err := a.Best(a.Metric, a.Mode)
	if err != nil {
		return nil, err
	}
	return trial.Hparams, nil
}

// collect assembles the Analysis from the experiment's terminal trial state.
func (exp *experiment) collect() *Analysis {
	analysis := &Analysis{
		Experiment: exp.cfg.Name,
		Dir:        exp.dir,
		Metric:     exp.cfg.Metric,
		Mode:       exp.cfg.Mode,
		EventLog:   exp.search.EventLog,
	}
	exp.trials.Each(func(tr *trial) {
		result := TrialResult{
			RequestID:   tr.requestID,
			Name:        tr.name,
			State:       tr.state,
			Hparams:     tr.hparams,
			Seed:        tr.seed,
			Dir:         tr.dir,
			Series:      tr.series,
			Checkpoints: tr.checkpoints,
		}
		if tr.trainErr != nil {
			result.Error = tr.trainErr.Error()
		}
		analysis.Trials = append(analysis.Trials, result)
	})
	return analysis
}

// write persists the analysis summary to the experiment directory.
func (a *Analysis) write() error {
	raw, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling experiment summary")
	}
	return errors.Wrap(
		os.WriteFile(filepath.Join(a.Dir, experimentFile), raw, 0o600),
		"writing experiment summary")
}

// LoadAnalysis rehydrates an Analysis from an experiment directory, re-reading each
// trial's result log from disk.
func LoadAnalysis(dir string) (*Analysis, error) {
	raw, err := os.ReadFile(filepath.Join(dir, experimentFile))
	if err != nil {
		return nil, errors.Wrap(err, "reading experiment summary")
	}
	analysis := &Analysis{}
	if err := json.Unmarshal(raw, analysis); err != nil {
		return nil, errors.Wrap(err, "parsing experiment summary")
	}
	analysis.Dir = dir

	for i := range analysis.Trials {
		trialDir := analysis.Trials[i].Dir
		if !filepath.IsAbs(trialDir) {
			trialDir = filepath.Join(dir, "trials", analysis.Trials[i].Name)
		}
		series, err := readResultLog(filepath.Join(trialDir, resultFile))
		if err != nil {
			return nil, errors.Wrapf(err, "trial %s", analysis.Trials[i].Name)
		}
		analysis.Trials[i].Series = series
	}
	return analysis, nil
}

// readResultLog parses a JSON-lines result log. A trial restored from a checkpoint
// re-reports iterations past it, so later rows win on iteration collisions. A missing
// log is an empty series, not an error.
func readResultLog(path string) ([]model.MetricReport, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "opening result log")
	}
	defer f.Close()

	byIteration := map[int]model.MetricReport{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var row model.MetricReport
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return nil, errors.Wrap(err, "parsing result log row")
		}
		byIteration[row.Iteration] = row
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading result log")
	}

	iterations := make([]int, 0, len(byIteration))
	for it := range byIteration {
		iterations = append(iterations, it)
	}
	sort.Ints(iterations)
	series := make([]model.MetricReport, 0, len(iterations))
	for _, it := range iterations {
		series = append(series, byIteration[it])
	}
	return series, nil
}
