package core

import (
	"math/rand"
	"time"

	"github.com/pr-poehali-dev/heated-roof-strips-system/model"
)

// RejectReason explains why a command left the system unchanged.
type RejectReason string

const (
	ReasonLastTape        RejectReason = "last tape"
	ReasonLastSegment     RejectReason = "last segment"
	ReasonTapeNotFound    RejectReason = "tape not found"
	ReasonSegmentNotFound RejectReason = "segment not found"
	ReasonAlertNotFound   RejectReason = "alert not found"
	ReasonUnknownField    RejectReason = "unknown field"
	ReasonInvalidValue    RejectReason = "invalid value"
)

// Outcome is the result of a command: applied, or rejected with the reason.
// Invariant guards (remove-last-tape, remove-last-segment) reject rather than
// error; the command surface may swallow the rejection, but it is recorded
// here in one place.
type Outcome struct {
	Applied bool         `json:"applied"`
	Reason  RejectReason `json:"reason,omitempty"`
}

func applied() Outcome {
	return Outcome{Applied: true}
}

func rejected(r RejectReason) Outcome {
	return Outcome{Reason: r}
}

// Every command is a pure transformation: the input system is never mutated;
// an applied outcome comes with a fresh deep copy carrying the change, a
// rejected outcome returns the input unchanged.

// AddTape appends a new tape with four segments. Ids follow the max+1 rule
// for both the tape and its segments.
func AddTape(sys *model.System, rng *rand.Rand, now time.Time) (*model.System, Outcome) {
	next := sys.Clone()
	next.Tapes = append(next.Tapes, NewTape(rng, next.NextTapeID(), next.NextSegmentID(), segmentsPerNewTape, now))
	return next, applied()
}

// RemoveTape deletes a tape. The last remaining tape is never removed.
func RemoveTape(sys *model.System, tapeID int) (*model.System, Outcome) {
	if len(sys.Tapes) <= 1 {
		return sys, rejected(ReasonLastTape)
	}
	idx := -1
	for i := range sys.Tapes {
		if sys.Tapes[i].ID == tapeID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return sys, rejected(ReasonTapeNotFound)
	}
	next := sys.Clone()
	next.Tapes = append(next.Tapes[:idx], next.Tapes[idx+1:]...)
	return next, applied()
}

// ToggleTape flips a tape's enabled flag. Its segments keep their own
// enabled/status fields; a disabled tape merely suppresses their effective
// activity.
func ToggleTape(sys *model.System, tapeID int) (*model.System, Outcome) {
	if sys.FindTape(tapeID) == nil {
		return sys, rejected(ReasonTapeNotFound)
	}
	next := sys.Clone()
	t := next.FindTape(tapeID)
	t.Enabled = !t.Enabled
	return next, applied()
}

// TapeField names a tape attribute settable through UpdateTapeField.
type TapeField string

const (
	TapeFieldName           TapeField = "name"
	TapeFieldCoordinates    TapeField = "coordinates"
	TapeFieldContractNumber TapeField = "contractNumber"
	TapeFieldLength         TapeField = "length"
	TapeFieldWidth          TapeField = "width"
)

// UpdateTapeField replaces one free-form tape attribute. Numeric-text fields
// are stored exactly as given; consumers treat unparsable values as zero.
func UpdateTapeField(sys *model.System, tapeID int, field TapeField, value string) (*model.System, Outcome) {
	if sys.FindTape(tapeID) == nil {
		return sys, rejected(ReasonTapeNotFound)
	}
	switch field {
	case TapeFieldName, TapeFieldCoordinates, TapeFieldContractNumber, TapeFieldLength, TapeFieldWidth:
	default:
		return sys, rejected(ReasonUnknownField)
	}

	next := sys.Clone()
	t := next.FindTape(tapeID)
	switch field {
	case TapeFieldName:
		t.Name = value
	case TapeFieldCoordinates:
		t.Coordinates = value
	case TapeFieldContractNumber:
		t.ContractNumber = value
	case TapeFieldLength:
		t.Length = value
	case TapeFieldWidth:
		t.Width = value
	}
	return next, applied()
}

// AddSegment appends one disabled segment to a tape, id max+1 across all
// tapes.
func AddSegment(sys *model.System, rng *rand.Rand, tapeID int, now time.Time) (*model.System, Outcome) {
	if sys.FindTape(tapeID) == nil {
		return sys, rejected(ReasonTapeNotFound)
	}
	next := sys.Clone()
	t := next.FindTape(tapeID)
	t.Segments = append(t.Segments, NewSegment(rng, next.NextSegmentID(), false, now))
	return next, applied()
}

// RemoveSegment deletes a segment from its tape. A tape's last segment is
// never removed.
func RemoveSegment(sys *model.System, tapeID, segmentID int) (*model.System, Outcome) {
	t := sys.FindTape(tapeID)
	if t == nil {
		return sys, rejected(ReasonTapeNotFound)
	}
	if len(t.Segments) <= 1 {
		return sys, rejected(ReasonLastSegment)
	}
	idx := -1
	for i := range t.Segments {
		if t.Segments[i].ID == segmentID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return sys, rejected(ReasonSegmentNotFound)
	}
	next := sys.Clone()
	nt := next.FindTape(tapeID)
	nt.Segments = append(nt.Segments[:idx], nt.Segments[idx+1:]...)
	return next, applied()
}

// ToggleSegment flips a segment's enabled flag and aligns its status: normal
// when enabling, off when disabling.
func ToggleSegment(sys *model.System, tapeID, segmentID int) (*model.System, Outcome) {
	if t, seg := sys.FindSegment(tapeID, segmentID); t == nil {
		return sys, rejected(ReasonTapeNotFound)
	} else if seg == nil {
		return sys, rejected(ReasonSegmentNotFound)
	}
	next := sys.Clone()
	_, seg := next.FindSegment(tapeID, segmentID)
	seg.Enabled = !seg.Enabled
	if seg.Enabled {
		seg.Status = model.SegmentNormal
	} else {
		seg.Status = model.SegmentOff
	}
	return next, applied()
}

// SetSegmentPower sets a segment's power percentage, clamped to [0,100].
func SetSegmentPower(sys *model.System, tapeID, segmentID, power int) (*model.System, Outcome) {
	if t, seg := sys.FindSegment(tapeID, segmentID); t == nil {
		return sys, rejected(ReasonTapeNotFound)
	} else if seg == nil {
		return sys, rejected(ReasonSegmentNotFound)
	}
	next := sys.Clone()
	_, seg := next.FindSegment(tapeID, segmentID)
	seg.Power = clampInt(power, 0, 100)
	return next, applied()
}

// SetSegmentTargetTemp sets a segment's target temperature, clamped to
// [-10,30].
func SetSegmentTargetTemp(sys *model.System, tapeID, segmentID, target int) (*model.System, Outcome) {
	if t, seg := sys.FindSegment(tapeID, segmentID); t == nil {
		return sys, rejected(ReasonTapeNotFound)
	} else if seg == nil {
		return sys, rejected(ReasonSegmentNotFound)
	}
	next := sys.Clone()
	_, seg := next.FindSegment(tapeID, segmentID)
	seg.TargetTempC = clampInt(target, -10, 30)
	return next, applied()
}

// SetAllSegments applies the toggle semantics to every segment of one tape:
// enabled+normal or disabled+off.
func SetAllSegments(sys *model.System, tapeID int, enabled bool) (*model.System, Outcome) {
	if sys.FindTape(tapeID) == nil {
		return sys, rejected(ReasonTapeNotFound)
	}
	next := sys.Clone()
	t := next.FindTape(tapeID)
	for i := range t.Segments {
		t.Segments[i].Enabled = enabled
		if enabled {
			t.Segments[i].Status = model.SegmentNormal
		} else {
			t.Segments[i].Status = model.SegmentOff
		}
	}
	return next, applied()
}

// SettingsPatch is a partial settings update; nil fields are left unchanged.
type SettingsPatch struct {
	SystemOn      *bool   `json:"systemOn"`
	AutoMode      *bool   `json:"autoMode"`
	ThresholdTemp *string `json:"thresholdTemp"`
	AlertSound    *string `json:"alertSound"`
	PollInterval  *string `json:"pollInterval"`
}

// ApplySettings merges a patch into the system settings. PollInterval must be
// one of the accepted values and AlertSound one of "true"/"false"; anything
// else rejects the whole patch.
func ApplySettings(sys *model.System, patch SettingsPatch) (*model.System, Outcome) {
	if patch.PollInterval != nil && !model.ValidPollInterval(*patch.PollInterval) {
		return sys, rejected(ReasonInvalidValue)
	}
	if patch.AlertSound != nil && *patch.AlertSound != "true" && *patch.AlertSound != "false" {
		return sys, rejected(ReasonInvalidValue)
	}

	next := sys.Clone()
	if patch.SystemOn != nil {
		next.Settings.SystemOn = *patch.SystemOn
	}
	if patch.AutoMode != nil {
		next.Settings.AutoMode = *patch.AutoMode
	}
	if patch.ThresholdTemp != nil {
		next.Settings.ThresholdTemp = *patch.ThresholdTemp
	}
	if patch.AlertSound != nil {
		next.Settings.AlertSound = *patch.AlertSound
	}
	if patch.PollInterval != nil {
		next.Settings.PollInterval = *patch.PollInterval
	}
	return next, applied()
}

// AcknowledgeAlert marks an alert acknowledged. Acknowledging an already
// acknowledged alert is a no-op, not an error; the transition never reverses.
func AcknowledgeAlert(alerts []model.Alert, alertID int) ([]model.Alert, Outcome) {
	idx := -1
	for i := range alerts {
		if alerts[i].ID == alertID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return alerts, rejected(ReasonAlertNotFound)
	}
	next := model.CloneAlerts(alerts)
	next[idx].Acknowledged = true
	return next, applied()
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
