package model

import "time"

// SensorStatus reports the health of a single temperature probe.
type SensorStatus string

const (
	SensorOnline  SensorStatus = "online"
	SensorOffline SensorStatus = "offline"
	SensorError   SensorStatus = "error"
)

// SegmentStatus is the operator-facing state of a heating segment. It is set
// at construction and by enable/disable actions; the simulation tick does not
// re-derive it from temperature.
type SegmentStatus string

const (
	SegmentNormal   SegmentStatus = "normal"
	SegmentWarning  SegmentStatus = "warning"
	SegmentCritical SegmentStatus = "critical"
	SegmentOff      SegmentStatus = "off"
)

// Sensor is a single temperature-reporting point bound to one segment.
type Sensor struct {
	ID           string       `json:"id"`
	SerialNumber string       `json:"serialNumber"` // "28-" + 16 hex pairs, DS18B20 1-Wire convention
	TemperatureC float64      `json:"temperatureC"`
	Status       SensorStatus `json:"status"`
	LastUpdate   time.Time    `json:"lastUpdate"`
}

// Segment is an independently powered section of a tape. Segment ids are
// global across all tapes and allocated as max(existing)+1.
type Segment struct {
	ID           int           `json:"id"`
	Name         string        `json:"name"`
	Enabled      bool          `json:"enabled"`
	Power        int           `json:"power"`        // percent, 0..100
	TemperatureC float64       `json:"temperatureC"` // rounded to one decimal
	TargetTempC  int           `json:"targetTempC"`  // -10..30
	Status       SegmentStatus `json:"status"`

	// LegacySensorID is the single-probe identifier from the pre-sensors
	// schema. It is kept under its original JSON key so older readers of the
	// persisted record still find it.
	LegacySensorID string `json:"sensorId"`

	// Sensors is never empty; a segment always carries at least one probe.
	Sensors []Sensor `json:"sensors"`
}

// Clone returns a deep copy of the segment.
func (s *Segment) Clone() Segment {
	out := *s
	out.Sensors = make([]Sensor, len(s.Sensors))
	copy(out.Sensors, s.Sensors)
	return out
}

// Tape is one physical de-icing cable run. Length and Width are numeric text
// (metres and millimetres) exactly as entered by the operator.
type Tape struct {
	ID             int       `json:"id"`
	Name           string    `json:"name"`
	Coordinates    string    `json:"coordinates"`    // free-form "lat, lon", may be empty
	ContractNumber string    `json:"contractNumber"` // may be empty
	Length         string    `json:"length"`
	Width          string    `json:"width"`
	Enabled        bool      `json:"enabled"`
	Segments       []Segment `json:"segments"`
}

// Clone returns a deep copy of the tape and everything it owns.
func (t *Tape) Clone() Tape {
	out := *t
	out.Segments = make([]Segment, len(t.Segments))
	for i := range t.Segments {
		out.Segments[i] = t.Segments[i].Clone()
	}
	return out
}

// EffectiveEnabled reports whether a segment counts as active: both the
// segment and its owning tape must be enabled. A disabled tape suppresses its
// segments without touching their own enabled flags.
func EffectiveEnabled(t *Tape, s *Segment) bool {
	return t.Enabled && s.Enabled
}
