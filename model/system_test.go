package model

import (
	"testing"
	"time"
)

func twoTapeSystem() *System {
	return &System{
		Settings: DefaultSettings(),
		Tapes: []Tape{
			{
				ID: 1, Name: "Tape 1", Length: "24", Width: "50", Enabled: true,
				Segments: []Segment{
					{ID: 1, Name: "Segment 1", Enabled: true, Power: 50, TemperatureC: 2.5, Status: SegmentNormal,
						Sensors: []Sensor{{ID: "1-1", SerialNumber: "28-00", TemperatureC: 2.5, Status: SensorOnline, LastUpdate: time.Unix(0, 0)}}},
					{ID: 2, Name: "Segment 2", Enabled: false, Power: 40, TemperatureC: 1.0, Status: SegmentOff,
						Sensors: []Sensor{{ID: "2-1", SerialNumber: "28-01", TemperatureC: 1.0, Status: SensorOnline, LastUpdate: time.Unix(0, 0)}}},
				},
			},
			{
				ID: 2, Name: "Tape 2", Length: "30", Width: "50", Enabled: false,
				Segments: []Segment{
					{ID: 7, Name: "Segment 7", Enabled: true, Power: 60, TemperatureC: -1.5, Status: SegmentWarning,
						Sensors: []Sensor{{ID: "7-1", SerialNumber: "28-02", TemperatureC: -1.5, Status: SensorOffline, LastUpdate: time.Unix(0, 0)}}},
				},
			},
		},
	}
}

func TestCloneIsDeep(t *testing.T) {
	sys := twoTapeSystem()
	dup := sys.Clone()

	dup.Tapes[0].Name = "renamed"
	dup.Tapes[0].Segments[0].Power = 99
	dup.Tapes[0].Segments[0].Sensors[0].TemperatureC = 42

	if sys.Tapes[0].Name != "Tape 1" {
		t.Fatalf("clone mutation leaked into tape name: %q", sys.Tapes[0].Name)
	}
	if got := sys.Tapes[0].Segments[0].Power; got != 50 {
		t.Fatalf("clone mutation leaked into segment power: %d", got)
	}
	if got := sys.Tapes[0].Segments[0].Sensors[0].TemperatureC; got != 2.5 {
		t.Fatalf("clone mutation leaked into sensor temperature: %v", got)
	}
}

func TestNextIDsAreMaxPlusOne(t *testing.T) {
	sys := twoTapeSystem()
	if got := sys.NextTapeID(); got != 3 {
		t.Fatalf("NextTapeID = %d, want 3", got)
	}
	if got := sys.NextSegmentID(); got != 8 {
		t.Fatalf("NextSegmentID = %d, want 8", got)
	}

	empty := &System{}
	if got := empty.NextTapeID(); got != 1 {
		t.Fatalf("NextTapeID on empty system = %d, want 1", got)
	}
	if got := empty.NextSegmentID(); got != 1 {
		t.Fatalf("NextSegmentID on empty system = %d, want 1", got)
	}
}

func TestEffectiveEnabled(t *testing.T) {
	sys := twoTapeSystem()

	enabledTape := &sys.Tapes[0]
	if !EffectiveEnabled(enabledTape, &enabledTape.Segments[0]) {
		t.Fatal("enabled segment on enabled tape should be effective")
	}
	if EffectiveEnabled(enabledTape, &enabledTape.Segments[1]) {
		t.Fatal("disabled segment should not be effective")
	}

	disabledTape := &sys.Tapes[1]
	if EffectiveEnabled(disabledTape, &disabledTape.Segments[0]) {
		t.Fatal("disabled tape must suppress its enabled segments")
	}
}

func TestFindSegment(t *testing.T) {
	sys := twoTapeSystem()

	tape, seg := sys.FindSegment(1, 2)
	if tape == nil || seg == nil {
		t.Fatal("FindSegment(1, 2) returned nil")
	}
	if seg.ID != 2 {
		t.Fatalf("segment id = %d, want 2", seg.ID)
	}

	if tape, seg := sys.FindSegment(1, 7); tape == nil || seg != nil {
		t.Fatal("segment 7 belongs to tape 2, lookup via tape 1 must miss")
	}
	if tape, _ := sys.FindSegment(99, 1); tape != nil {
		t.Fatal("unknown tape id must return nil tape")
	}
}

func TestValidPollInterval(t *testing.T) {
	for _, v := range []string{"1", "2", "5", "10"} {
		if !ValidPollInterval(v) {
			t.Fatalf("ValidPollInterval(%q) = false, want true", v)
		}
	}
	for _, v := range []string{"", "3", "60", "five"} {
		if ValidPollInterval(v) {
			t.Fatalf("ValidPollInterval(%q) = true, want false", v)
		}
	}
}
