package mathx

import (
	"testing"

	"gotest.tools/assert"
)

func TestMinMax(t *testing.T) {
	assert.Equal(t, Min(3, 1, 2), 1)
	assert.Equal(t, Max(3, 1, 2), 3)
	assert.Equal(t, Min(1.5), 1.5)
	assert.Equal(t, Max("a", "c", "b"), "c")
}

func TestClamp(t *testing.T) {
	assert.Equal(t, Clamp(0, -5, 10), 0)
	assert.Equal(t, Clamp(0, 5, 10), 5)
	assert.Equal(t, Clamp(0, 15, 10), 10)
}

func TestSumMean(t *testing.T) {
	assert.Equal(t, Sum(1, 2, 3), 6)
	assert.Equal(t, Sum[float64](), 0.0)
	assert.Equal(t, Mean(2.0, 4.0), 3.0)
	assert.Equal(t, Mean[int](), 0.0)
}
