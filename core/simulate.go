package core

import (
	"math/rand"
	"time"

	"github.com/pr-poehali-dev/heated-roof-strips-system/model"
)

// maxTempDrift bounds the per-tick temperature perturbation in either
// direction.
const maxTempDrift = 0.75

// AdvanceTemperatures applies one simulation tick: every effectively enabled
// segment takes a uniform perturbation from [-0.75, +0.75) on its temperature,
// rounded to one decimal, and each of its probes takes an independent
// perturbation with a refreshed LastUpdate. Disabled segments and segments of
// disabled tapes keep their last readings as stale data. Status is never
// re-derived here.
//
// The input system is not mutated. The returned count is the number of
// segments perturbed.
func AdvanceTemperatures(sys *model.System, rng *rand.Rand, now time.Time) (*model.System, int) {
	next := sys.Clone()
	changed := 0
	for ti := range next.Tapes {
		t := &next.Tapes[ti]
		if !t.Enabled {
			continue
		}
		for si := range t.Segments {
			seg := &t.Segments[si]
			if !seg.Enabled {
				continue
			}
			seg.TemperatureC = round1(seg.TemperatureC + drift(rng))
			for ni := range seg.Sensors {
				sn := &seg.Sensors[ni]
				sn.TemperatureC = round1(sn.TemperatureC + drift(rng))
				sn.LastUpdate = now
			}
			changed++
		}
	}
	return next, changed
}

func drift(rng *rand.Rand) float64 {
	return (rng.Float64() - 0.5) * 2 * maxTempDrift
}
