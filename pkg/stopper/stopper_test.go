package stopper

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/edoakes/tunekit/pkg/model"
	"github.com/edoakes/tunekit/pkg/prand"
)

func testID() model.RequestID {
	return model.NewRequestID(prand.New(uint64(time.Now().UnixNano())))
}

func TestMaxIterations(t *testing.T) {
	s := MaxIterations(3)
	id := testID()
	require.False(t, s.StopTrial(id, 1, model.Metrics{"loss": 1}))
	require.False(t, s.StopTrial(id, 2, model.Metrics{"loss": 1}))
	require.True(t, s.StopTrial(id, 3, model.Metrics{"loss": 1}))
	require.False(t, s.StopExperiment())
}

func TestMetricThreshold(t *testing.T) {
	s := MetricThreshold("accuracy", 0.9, model.MaxMode)
	id := testID()
	require.False(t, s.StopTrial(id, 1, model.Metrics{"accuracy": 0.5}))
	require.True(t, s.StopTrial(id, 2, model.Metrics{"accuracy": 0.95}))
	require.False(t, s.StopTrial(id, 3, model.Metrics{"loss": 0.1}),
		"reports without the metric must not stop the trial")

	s = MetricThreshold("loss", 0.1, model.MinMode)
	require.False(t, s.StopTrial(id, 1, model.Metrics{"loss": 0.5}))
	require.True(t, s.StopTrial(id, 2, model.Metrics{"loss": 0.05}))
}

func TestTimeout(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := Timeout(time.Minute, clock)
	require.False(t, s.StopExperiment())

	clock.Advance(59 * time.Second)
	require.False(t, s.StopExperiment())

	clock.Advance(2 * time.Second)
	require.True(t, s.StopExperiment())
	require.True(t, s.StopTrial(testID(), 1, nil))
}

func TestPlateau(t *testing.T) {
	s := Plateau("loss", model.MinMode, 0.01, 2)
	id := testID()

	require.False(t, s.StopTrial(id, 1, model.Metrics{"loss": 1.0}))
	require.False(t, s.StopTrial(id, 2, model.Metrics{"loss": 0.5}))
	// Within tolerance: stale.
	require.False(t, s.StopTrial(id, 3, model.Metrics{"loss": 0.495}))
	require.True(t, s.StopTrial(id, 4, model.Metrics{"loss": 0.51}))

	// A fresh improvement resets another trial's patience independently.
	other := testID()
	require.False(t, s.StopTrial(other, 1, model.Metrics{"loss": 2.0}))
	require.False(t, s.StopTrial(other, 2, model.Metrics{"loss": 1.0}))
}

func TestAnyKeepsStatefulMembersCurrent(t *testing.T) {
	s := Any(
		Plateau("loss", model.MinMode, 0, 3),
		MaxIterations(2),
	)
	id := testID()
	require.False(t, s.StopTrial(id, 1, model.Metrics{"loss": 1.0}))
	require.True(t, s.StopTrial(id, 2, model.Metrics{"loss": 0.9}))
}

func TestCompile(t *testing.T) {
	s, err := Compile(nil, nil)
	require.NoError(t, err)
	require.False(t, s.StopTrial(testID(), 100, model.Metrics{"loss": 0}))

	s, err = Compile([]model.StopperConfig{
		{MaxIterationsConfig: &model.MaxIterationsConfig{Iterations: 5}},
		{MetricThresholdConfig: &model.MetricThresholdConfig{
			Metric: "loss", Value: 0.1, Mode: model.MinMode,
		}},
	}, clockwork.NewFakeClock())
	require.NoError(t, err)
	id := testID()
	require.False(t, s.StopTrial(id, 1, model.Metrics{"loss": 0.5}))
	require.True(t, s.StopTrial(id, 2, model.Metrics{"loss": 0.05}))
	require.True(t, s.StopTrial(id, 5, model.Metrics{"loss": 0.5}))

	_, err = Compile([]model.StopperConfig{{}}, nil)
	require.Error(t, err)
}

func TestFIFOAlwaysContinues(t *testing.T) {
	s := FIFO()
	d := s.OnReport(testID(), 10, model.Metrics{"loss": 100})
	require.Equal(t, Continue, d.Op)
}
