package prand

import (
	"encoding/json"
	"testing"

	"gotest.tools/assert"
)

func TestDeterministicStreams(t *testing.T) {
	a, b := New(42), New(42)
	for i := 0; i < 1000; i++ {
		assert.Equal(t, a.Bits64(), b.Bits64())
	}
}

func TestSeedsDiverge(t *testing.T) {
	a, b := New(1), New(2)
	same := 0
	for i := 0; i < 64; i++ {
		if a.Bits64() == b.Bits64() {
			same++
		}
	}
	assert.Assert(t, same < 4, "streams from different seeds should not coincide")
}

func TestIntnBounds(t *testing.T) {
	state := New(7)
	seen := make(map[int]bool)
	for i := 0; i < 10000; i++ {
		v := state.Intn(5)
		assert.Assert(t, v >= 0 && v < 5, "Intn out of range: %d", v)
		seen[v] = true
	}
	assert.Equal(t, len(seen), 5)
}

func TestInt64Range(t *testing.T) {
	state := New(7)
	for i := 0; i < 1000; i++ {
		v := state.Int64(-10, 10)
		assert.Assert(t, v >= -10 && v < 10)
	}
}

func TestUniformRange(t *testing.T) {
	state := New(17)
	for i := 0; i < 1000; i++ {
		v := state.Uniform(0.25, 0.75)
		assert.Assert(t, v >= 0.25 && v < 0.75)
	}
}

func TestUnitIntervalRange(t *testing.T) {
	state := New(3)
	for i := 0; i < 10000; i++ {
		v := state.UnitInterval()
		assert.Assert(t, v >= 0 && v < 1)
	}
}

func TestPanicsOnInvertedBounds(t *testing.T) {
	state := New(1)
	for name, f := range map[string]func(){
		"Intn":    func() { state.Intn(0) },
		"Int64n":  func() { state.Int64n(-1) },
		"Int64":   func() { state.Int64(5, 5) },
		"Uniform": func() { state.Uniform(1.0, 0.5) },
	} {
		func() {
			defer func() {
				assert.Assert(t, recover() != nil, "%s should panic", name)
			}()
			f()
		}()
	}
}

func TestSnapshotRestore(t *testing.T) {
	state := New(99)
	for i := 0; i < 10; i++ {
		state.Bits64()
	}
	bs, err := json.Marshal(state)
	assert.NilError(t, err)

	var restored State
	assert.NilError(t, json.Unmarshal(bs, &restored))
	for i := 0; i < 100; i++ {
		assert.Equal(t, restored.Bits64(), state.Bits64())
	}
}

func TestPermIsPermutation(t *testing.T) {
	state := New(5)
	perm := state.Perm(10)
	seen := make(map[int]bool)
	for _, v := range perm {
		assert.Assert(t, v >= 0 && v < 10)
		seen[v] = true
	}
	assert.Equal(t, len(seen), 10)
}

func TestReadFillsBuffer(t *testing.T) {
	state := New(11)
	buf := make([]byte, 37)
	n, err := state.Read(buf)
	assert.NilError(t, err)
	assert.Equal(t, n, 37)

	other := New(11)
	buf2 := make([]byte, 37)
	_, _ = other.Read(buf2)
	assert.DeepEqual(t, buf, buf2)
}
