// Package prand implements the seeded random number generator used for hyperparameter
// sampling. Sampling must replay identically given the same seed, across platforms and
// across Go releases, so the generator is pinned here rather than borrowed from
// math/rand (whose default source has changed between releases). The core is
// xoshiro256** seeded through splitmix64; state is four words and snapshots as JSON.
package prand

import "fmt"

// State is the state of the random number generator.
type State struct {
	S [4]uint64 `json:"s"`
}

// New creates a new seeded RNG state.
func New(seed uint64) *State {
	state := State{}
	state.Seed(seed)
	return &state
}

// Seed initializes the RNG state. Distinct seeds give distinct, well-mixed streams.
func (state *State) Seed(seed uint64) {
	x := seed
	for i := range state.S {
		x += 0x9e3779b97f4a7c15
		z := x
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		state.S[i] = z ^ (z >> 31)
	}
}

func rotl(x uint64, k uint) uint64 {
	return (x << k) | (x >> (64 - k))
}

// Bits64 generates 64 bits of randomness.
func (state *State) Bits64() uint64 {
	result := rotl(state.S[1]*5, 7) * 9

	t := state.S[1] << 17
	state.S[2] ^= state.S[0]
	state.S[3] ^= state.S[1]
	state.S[1] ^= state.S[2]
	state.S[0] ^= state.S[3]
	state.S[2] ^= t
	state.S[3] = rotl(state.S[3], 45)

	return result
}

// Read implements io.Reader, yielding a random stream of bytes. It never fails.
func (state *State) Read(p []byte) (int, error) {
	var val uint64
	rem := 0
	for n := range p {
		if rem == 0 {
			val = state.Bits64()
			rem = 8
		}
		p[n] = byte(val)
		val >>= 8
		rem--
	}
	return len(p), nil
}

// bitsLimit generates uniform randomness in [0, limit] by masked rejection.
func (state *State) bitsLimit(limit uint64) uint64 {
	if limit == 0 {
		return 0
	}
	mask := limit
	mask |= mask >> 1
	mask |= mask >> 2
	mask |= mask >> 4
	mask |= mask >> 8
	mask |= mask >> 16
	mask |= mask >> 32
	for {
		if val := state.Bits64() & mask; val <= limit {
			return val
		}
	}
}

// Int64 generates a random int64 in [low, high). It panics if high <= low.
func (state *State) Int64(low, high int64) int64 {
	if high <= low {
		panic(fmt.Sprintf("prand Int64: high %v <= low %v", high, low))
	}
	return low + int64(state.bitsLimit(uint64(high)-uint64(low)-1))
}

// Int64n generates a random int64 in [0, n). It panics if n <= 0.
func (state *State) Int64n(n int64) int64 {
	if n <= 0 {
		panic(fmt.Sprintf("prand Int64n: n %v <= 0", n))
	}
	return int64(state.bitsLimit(uint64(n) - 1))
}

// Intn generates a random int in [0, n). It panics if n <= 0.
func (state *State) Intn(n int) int {
	if n <= 0 {
		panic(fmt.Sprintf("prand Intn: n %v <= 0", n))
	}
	return int(state.bitsLimit(uint64(n) - 1))
}

// UnitInterval generates a random float64 in [0, 1) with 53 bits of precision.
func (state *State) UnitInterval() float64 {
	return float64(state.Bits64()>>11) / (1 << 53)
}

// Uniform generates a random float64 uniformly distributed in [low, high). It panics if
// high <= low.
func (state *State) Uniform(low, high float64) float64 {
	if high <= low {
		panic(fmt.Sprintf("prand Uniform: high %v <= low %v", high, low))
	}
	return low + (high-low)*state.UnitInterval()
}

// Perm returns a random permutation of [0, n).
func (state *State) Perm(n int) []int {
	out := make([]int, n)
	for i := 1; i < n; i++ {
		j := state.Intn(i + 1)
		out[i] = out[j]
		out[j] = i
	}
	return out
}

// Shuffle pseudo-randomizes the order of n elements using the provided swap function.
func (state *State) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := state.Intn(i + 1)
		swap(i, j)
	}
}
