package ckbdynamic

import (
	"math"
	"math/rand"
)

// rng centralises every stochastic decision the engine makes. All draws go
// through a single seeded source, sequentially, which is what makes a run
// reproducible for a fixed seed and config (spec §5).
type rng struct {
	src *rand.Rand
}

func newRNG(seed uint64) *rng {
	return &rng{src: rand.New(rand.NewSource(int64(seed)))}
}

// drawIndexN returns a uniform integer in [0, n).
func (r *rng) drawIndexN(n int) int {
	return r.src.Intn(n)
}

// drawIndexRange returns a uniform integer in [a, b).
func (r *rng) drawIndexRange(a, b int) int {
	return a + r.src.Intn(b-a)
}

// drawProbability returns a uniform float in [0, 1).
func (r *rng) drawProbability() float64 {
	return r.src.Float64()
}

// drawBinomial samples from Binomial(numTrials, p) by direct simulation.
// numTrials is small in practice (bounded by the community count), so this
// is both simpler and cheap enough compared to an inverse-CDF approach.
func (r *rng) drawBinomial(numTrials int, p float64) int {
	if p <= 0 || numTrials <= 0 {
		return 0
	}
	if p >= 1 {
		return numTrials
	}
	count := 0
	for i := 0; i < numTrials; i++ {
		if r.src.Float64() < p {
			count++
		}
	}
	return count
}

// drawGeometric samples the number of failures before the first success of
// a Bernoulli(p) trial, i.e. a geometric distribution starting at 0. Used
// both for edge-sharpness smearing offsets and for perturbation skip
// strides.
func (r *rng) drawGeometric(p float64) int {
	if p >= 1 {
		return 0
	}
	if p <= 0 {
		// Degenerate: never succeeds. Callers guard against p<=0 themselves;
		// returning a very large stride keeps this total rather than looping
		// forever.
		return math.MaxInt32
	}
	offset := 0
	for r.src.Float64() >= p {
		offset++
	}
	return offset
}

// shuffle permutes xs in place using the engine's rng (Fisher-Yates).
func (r *rng) shuffle(xs []NodeID) {
	for i := len(xs) - 1; i > 0; i-- {
		j := r.src.Intn(i + 1)
		xs[i], xs[j] = xs[j], xs[i]
	}
}

// stochasticRound rounds x to floor(x) or ceil(x), choosing ceil with
// probability equal to the fractional part. Used for the fractional
// overassignment target in solver Phase C.
func (r *rng) stochasticRound(x float64) int {
	base := math.Floor(x)
	frac := x - base
	if r.src.Float64() < frac {
		return int(base) + 1
	}
	return int(base)
}
