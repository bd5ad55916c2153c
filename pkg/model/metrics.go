package model

import (
	"time"

	"github.com/pkg/errors"
)

// Reserved metric names the driver fills in on every report; trainables must not
// report them directly.
const (
	// TrainingIteration is the 1-based index of the report within its trial.
	TrainingIteration = "training_iteration"
	// TimeTotalS is the trial's elapsed wall-clock seconds at report time.
	TimeTotalS = "time_total_s"
)

// Metrics is one reported row of named scalars.
type Metrics map[string]float64

// reservedMetrics are names the driver owns.
var reservedMetrics = map[string]bool{
	TrainingIteration: true,
	TimeTotalS:        true,
}

// Validate returns an error if the metrics row uses a reserved name.
func (m Metrics) Validate() error {
	for name := range m {
		if reservedMetrics[name] {
			return errors.Errorf("metric name %q is reserved", name)
		}
	}
	return nil
}

// Copy returns a shallow copy of the row.
func (m Metrics) Copy() Metrics {
	out := make(Metrics, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MetricReport is one metric row stamped with its trial and time coordinates. Reports
// append to a trial's result log in iteration order.
type MetricReport struct {
	RequestID RequestID `json:"request_id"`
	Iteration int       `json:"training_iteration"`
	Metrics   Metrics   `json:"metrics"`
	Time      time.Time `json:"timestamp"`
	TimeTotal float64   `json:"time_total_s"`
}

// Better reports whether value a beats value b under the given mode.
func Better(a, b float64, mode Mode) bool {
	if mode == MinMode {
		return a < b
	}
	return a > b
}
