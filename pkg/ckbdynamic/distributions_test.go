package ckbdynamic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscretePowerLaw_DrawStaysInRange(t *testing.T) {
	d := newDiscretePowerLaw(5, 50, 2.0)
	for _, u := range []float64{0, 0.001, 0.25, 0.5, 0.75, 0.999, 1} {
		k := d.draw(u)
		assert.GreaterOrEqual(t, k, 5)
		assert.LessOrEqual(t, k, 50)
	}
}

func TestDiscretePowerLaw_MonotonicInU(t *testing.T) {
	d := newDiscretePowerLaw(1, 10, 1.5)
	assert.Equal(t, d.min, d.draw(0))
	assert.Equal(t, d.max, d.draw(1))

	prev := d.draw(0)
	for u := 0.05; u <= 1; u += 0.05 {
		k := d.draw(u)
		assert.GreaterOrEqual(t, k, prev, "draw must not decrease as u grows")
		prev = k
	}
}

func TestPowerLawSizeDistribution_DrawWithinBounds(t *testing.T) {
	r := newRNG(42)
	dist := NewPowerLawSizeDistribution(5, 20, 2.0, 0.9, 0.1, r)

	for i := 0; i < 200; i++ {
		size := dist.DrawCommunitySize()
		require.GreaterOrEqual(t, size, dist.MinSize())
		require.LessOrEqual(t, size, dist.MaxSize())
	}
	assert.Equal(t, 5, dist.MinSize())
	assert.Equal(t, 20, dist.MaxSize())
	assert.Greater(t, dist.AvgSize(), 0.0)
}

func TestPowerLawSizeDistribution_EdgeProbabilityDecaysWithSize(t *testing.T) {
	r := newRNG(1)
	dist := NewPowerLawSizeDistribution(2, 100, 2.0, 0.9, 0.5, r)

	small := dist.EdgeProbability(4)
	large := dist.EdgeProbability(64)
	assert.Greater(t, small, large, "larger communities should get a sparser internal density")
	assert.LessOrEqual(t, small, 1.0)
	assert.Greater(t, large, 0.0)
}

func TestPowerLawMembershipDistribution_DrawWithinBounds(t *testing.T) {
	r := newRNG(7)
	dist := NewPowerLawMembershipDistribution(1, 4, 1.5, r)

	for i := 0; i < 200; i++ {
		m := dist.DrawMemberships()
		require.GreaterOrEqual(t, m, 1)
		require.LessOrEqual(t, m, dist.MaxMemberships())
	}
	assert.Equal(t, 4, dist.MaxMemberships())
	assert.Greater(t, dist.AvgMemberships(), 0.0)
}
