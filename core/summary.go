package core

import (
	"strconv"
	"strings"

	"github.com/pr-poehali-dev/heated-roof-strips-system/model"
)

// powerCoefficientKW is the draw of one segment at 100% power.
const powerCoefficientKW = 0.5

// ComputeSummary derives the system-wide metrics from a snapshot. It is
// stateless and recomputed on every read; nothing is cached.
//
// A segment contributes to the active count, the average temperature and the
// power total iff it is effectively enabled (segment and owning tape both
// enabled). Tape lengths are numeric text; unparsable values count as zero.
func ComputeSummary(sys *model.System) model.Summary {
	var out model.Summary
	var tempSum float64

	for i := range sys.Tapes {
		t := &sys.Tapes[i]
		if t.Enabled {
			out.ActiveTapeCount++
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(t.Length), 64); err == nil {
			out.TotalLengthMeters += v
		}
		for j := range t.Segments {
			seg := &t.Segments[j]
			out.TotalSensorCount += len(seg.Sensors)
			if !model.EffectiveEnabled(t, seg) {
				continue
			}
			out.ActiveSegmentCount++
			tempSum += seg.TemperatureC
			out.TotalPowerKW += float64(seg.Power) / 100 * powerCoefficientKW
		}
	}

	if out.ActiveSegmentCount > 0 {
		avg := tempSum / float64(out.ActiveSegmentCount)
		out.AverageTemperature = &avg
	}
	return out
}
