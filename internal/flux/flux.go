// Package flux provides deterministic, bounded ambient jitter on
// per-region regen multipliers, so the world feels alive between
// agent-driven events without introducing unbounded randomness into
// resource accounting.
package flux

import (
	"hash/fnv"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// MaxSwing is the largest fractional adjustment Jitter ever applies,
// in either direction (0.05 == +/-5%).
const MaxSwing = 0.05

// Noise wraps an opensimplex generator to produce a deterministic,
// bounded multiplier jitter keyed by region and tick.
type Noise struct {
	gen opensimplex.Noise
}

// New returns a Noise source seeded by seed. The same seed always
// produces the same jitter sequence, so a reloaded world reproduces
// identical flux for a given tick/region.
func New(seed int64) *Noise {
	return &Noise{gen: opensimplex.NewNormalized(seed)}
}

// Jitter returns base adjusted by at most +/-MaxSwing, varying smoothly
// across ticks for a given region and independently across regions.
func (n *Noise) Jitter(regionID string, tick uint64, base float64) float64 {
	if n == nil {
		return base
	}
	x := float64(tick) * 0.05
	y := float64(regionSeed(regionID))
	// Eval2 of opensimplex.NewNormalized returns a value in [0, 1].
	sample := n.gen.Eval2(x, y)
	swing := (sample*2 - 1) * MaxSwing
	return base * (1 + swing)
}

// regionSeed derives a stable per-region offset along the noise field's
// second axis, so distinct regions sample different, uncorrelated
// slices of the same underlying generator.
func regionSeed(regionID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(regionID))
	return h.Sum32() % 1000
}
