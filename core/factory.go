package core

import (
	"encoding/hex"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/pr-poehali-dev/heated-roof-strips-system/model"
)

// Construction parameters for fresh entities. Temperatures are degrees C.
const (
	sensorTempMin     = -5.0
	sensorTempMax     = 10.0
	sensorOfflineProb = 0.10

	minSensorsPerSegment = 2
	maxSensorsPerSegment = 4

	powerMin = 40
	powerMax = 90 // exclusive

	segmentWarningProb  = 0.20
	defaultTargetTempC  = 5
	enabledSegmentRatio = 0.7

	segmentsPerNewTape = 4

	defaultTapeCount       = 2
	defaultSegmentsPerTape = 6
)

// Default numeric-text dimensions for tapes whose persisted record carries
// none. Length is metres, width millimetres.
const (
	DefaultTapeLength = "24"
	DefaultTapeWidth  = "50"
)

// round1 rounds to one decimal place, the precision used for every displayed
// temperature.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// NewSensorSerial generates a DS18B20-style 1-Wire serial: the 0x28 family
// prefix followed by 16 random bytes in hex.
func NewSensorSerial(rng *rand.Rand) string {
	buf := make([]byte, 16)
	rng.Read(buf)
	return "28-" + hex.EncodeToString(buf)
}

// NewSensor creates the index-th probe of a segment. Temperature is uniform
// in [-5, 10); roughly one probe in ten starts offline.
func NewSensor(rng *rand.Rand, segmentID, index int, now time.Time) model.Sensor {
	status := model.SensorOnline
	if rng.Float64() < sensorOfflineProb {
		status = model.SensorOffline
	}
	return model.Sensor{
		ID:           fmt.Sprintf("%d-%d", segmentID, index+1),
		SerialNumber: NewSensorSerial(rng),
		TemperatureC: round1(sensorTempMin + rng.Float64()*(sensorTempMax-sensorTempMin)),
		Status:       status,
		LastUpdate:   now,
	}
}

// NewSensors creates between two and four probes for one segment.
func NewSensors(rng *rand.Rand, segmentID int, now time.Time) []model.Sensor {
	n := minSensorsPerSegment + rng.Intn(maxSensorsPerSegment-minSensorsPerSegment+1)
	out := make([]model.Sensor, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, NewSensor(rng, segmentID, i, now))
	}
	return out
}

// NewSegment creates a segment with fresh probes. The segment temperature
// starts as the one-decimal mean of its probes. Enabled segments come up
// normal, with a 20% chance of a warning; disabled segments are off.
func NewSegment(rng *rand.Rand, id int, enabled bool, now time.Time) model.Segment {
	sensors := NewSensors(rng, id, now)

	var sum float64
	for _, sn := range sensors {
		sum += sn.TemperatureC
	}

	status := model.SegmentOff
	if enabled {
		status = model.SegmentNormal
		if rng.Float64() < segmentWarningProb {
			status = model.SegmentWarning
		}
	}

	return model.Segment{
		ID:             id,
		Name:           fmt.Sprintf("Segment %d", id),
		Enabled:        enabled,
		Power:          powerMin + rng.Intn(powerMax-powerMin),
		TemperatureC:   round1(sum / float64(len(sensors))),
		TargetTempC:    defaultTargetTempC,
		Status:         status,
		LegacySensorID: NewSensorSerial(rng),
		Sensors:        sensors,
	}
}

// NewTape creates a tape with segmentCount segments carrying consecutive ids
// starting at firstSegmentID. The first ceil(0.7*segmentCount) segments are
// enabled, the rest disabled.
func NewTape(rng *rand.Rand, id, firstSegmentID, segmentCount int, now time.Time) model.Tape {
	enabledCount := int(math.Ceil(enabledSegmentRatio * float64(segmentCount)))

	segments := make([]model.Segment, 0, segmentCount)
	for i := 0; i < segmentCount; i++ {
		segments = append(segments, NewSegment(rng, firstSegmentID+i, i < enabledCount, now))
	}

	return model.Tape{
		ID:       id,
		Name:     fmt.Sprintf("Tape %d", id),
		Length:   DefaultTapeLength,
		Width:    DefaultTapeWidth,
		Enabled:  true,
		Segments: segments,
	}
}

// DefaultSystem is the fallback installation used when no persisted state
// exists: two tapes of six segments each, segment ids 1 through 12.
func DefaultSystem(rng *rand.Rand, now time.Time) *model.System {
	sys := &model.System{Settings: model.DefaultSettings()}
	firstSegment := 1
	for id := 1; id <= defaultTapeCount; id++ {
		sys.Tapes = append(sys.Tapes, NewTape(rng, id, firstSegment, defaultSegmentsPerTape, now))
		firstSegment += defaultSegmentsPerTape
	}
	return sys
}

// NewRand returns the generator used when callers do not supply a seed.
func NewRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
