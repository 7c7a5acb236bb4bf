package ckbdynamic

import "math"

// SizeDistribution samples community sizes. The engine treats it as an
// external collaborator (spec.md §1 explicitly scopes the sampler
// implementation out of the core); PowerLawSizeDistribution below is a
// plain, direct implementation of the contract rather than something
// ported from the retrieved pack.
type SizeDistribution interface {
	DrawCommunitySize() int
	MinSize() int
	MaxSize() int
	AvgSize() float64
}

// MembershipDistribution samples how many communities a node wants to
// belong to.
type MembershipDistribution interface {
	DrawMemberships() int
	MaxMemberships() int
	AvgMemberships() float64
}

// discretePowerLaw draws integers in [min, max] with P(k) ∝ k^-exponent,
// via inverse-CDF over a cached cumulative weight table. Shared by both
// the size and membership power-law distributions.
type discretePowerLaw struct {
	min, max int
	cdf      []float64 // cdf[i] is the cumulative probability of drawing min+i or less
	mean     float64
}

func newDiscretePowerLaw(min, max int, exponent float64) *discretePowerLaw {
	if max < min {
		max = min
	}
	n := max - min + 1
	weights := make([]float64, n)
	var total, weightedTotal float64
	for i := 0; i < n; i++ {
		k := float64(min + i)
		w := math.Pow(k, -exponent)
		weights[i] = w
		total += w
		weightedTotal += w * k
	}
	cdf := make([]float64, n)
	running := 0.0
	for i, w := range weights {
		running += w / total
		cdf[i] = running
	}
	cdf[n-1] = 1 // guard against float drift so the final bucket always catches u=1
	return &discretePowerLaw{min: min, max: max, cdf: cdf, mean: weightedTotal / total}
}

func (d *discretePowerLaw) draw(u float64) int {
	// Linear scan is fine: community/membership ranges are small relative
	// to run length, and this only runs once per drawn size/membership.
	for i, c := range d.cdf {
		if u <= c {
			return d.min + i
		}
	}
	return d.max
}

// PowerLawSizeDistribution implements SizeDistribution with a bounded
// discrete power law and a size-dependent edge density, per the
// intraCommunityEdgeProbability/intraCommunityEdgeExponent configuration
// (spec.md §6).
type PowerLawSizeDistribution struct {
	dist                      *discretePowerLaw
	edgeProbabilityBase       float64
	edgeProbabilityExponent   float64
	r                         *rng
}

// NewPowerLawSizeDistribution builds a size distribution over [minSize,
// maxSize] with the given Zipf-like exponent, plus the density curve used
// by Community edge-probability assignment.
func NewPowerLawSizeDistribution(minSize, maxSize int, exponent, edgeProbabilityBase, edgeProbabilityExponent float64, r *rng) *PowerLawSizeDistribution {
	return &PowerLawSizeDistribution{
		dist:                    newDiscretePowerLaw(minSize, maxSize, exponent),
		edgeProbabilityBase:     edgeProbabilityBase,
		edgeProbabilityExponent: edgeProbabilityExponent,
		r:                       r,
	}
}

func (d *PowerLawSizeDistribution) DrawCommunitySize() int {
	return d.dist.draw(d.r.drawProbability())
}

func (d *PowerLawSizeDistribution) MinSize() int { return d.dist.min }
func (d *PowerLawSizeDistribution) MaxSize() int { return d.dist.max }
func (d *PowerLawSizeDistribution) AvgSize() float64 { return d.dist.mean }

// EdgeProbability returns the intra-community edge probability for a
// community of the given desired size: base * size^-exponent, clamped to
// (0, 1]. Larger communities get sparser internal density, matching the
// "density as a function of size" configuration knob (spec.md §6).
func (d *PowerLawSizeDistribution) EdgeProbability(size int) float64 {
	if size <= 0 {
		return d.edgeProbabilityBase
	}
	p := d.edgeProbabilityBase * math.Pow(float64(size), -d.edgeProbabilityExponent)
	if p > 1 {
		return 1
	}
	if p <= 0 {
		return math.SmallestNonzeroFloat64
	}
	return p
}

// PowerLawMembershipDistribution implements MembershipDistribution with a
// bounded discrete power law.
type PowerLawMembershipDistribution struct {
	dist *discretePowerLaw
	r    *rng
}

func NewPowerLawMembershipDistribution(minMembership, maxMembership int, exponent float64, r *rng) *PowerLawMembershipDistribution {
	return &PowerLawMembershipDistribution{dist: newDiscretePowerLaw(minMembership, maxMembership, exponent), r: r}
}

func (d *PowerLawMembershipDistribution) DrawMemberships() int {
	return d.dist.draw(d.r.drawProbability())
}

func (d *PowerLawMembershipDistribution) MaxMemberships() int { return d.dist.max }
func (d *PowerLawMembershipDistribution) AvgMemberships() float64 { return d.dist.mean }
