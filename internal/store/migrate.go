package store

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/pr-poehali-dev/heated-roof-strips-system/core"
	"github.com/pr-poehali-dev/heated-roof-strips-system/model"
)

// rawTape mirrors model.Tape with the fields older schemas may omit left
// optional, so absence is distinguishable from an explicit zero value.
type rawTape struct {
	ID             int             `json:"id"`
	Name           string          `json:"name"`
	Coordinates    string          `json:"coordinates"`
	ContractNumber string          `json:"contractNumber"`
	Length         *string         `json:"length"`
	Width          *string         `json:"width"`
	Enabled        *bool           `json:"enabled"`
	Segments       []model.Segment `json:"segments"`
}

// rawDoc is the union of every historical document shape. Version 1 kept a
// flat segment list plus tape dimensions at the top level; later versions
// nest segments under tapes.
type rawDoc struct {
	SchemaVersion int       `json:"schemaVersion"`
	Tapes         []rawTape `json:"tapes"`

	// Version 1 fields.
	Segments   []model.Segment `json:"segments"`
	TapeLength *string         `json:"tapeLength"`
	TapeWidth  *string         `json:"tapeWidth"`

	Alerts        []model.Alert `json:"alerts"`
	SystemOn      *bool         `json:"systemOn"`
	AutoMode      *bool         `json:"autoMode"`
	ThresholdTemp *string       `json:"thresholdTemp"`
	AlertSound    *string       `json:"alertSound"`
	PollInterval  *string       `json:"pollInterval"`
}

// versionOf sniffs the document shape. The shape, not the schemaVersion tag,
// is authoritative: records from before tagging carry no tag, and a wrong tag
// must not skip a needed migration step.
func versionOf(doc rawDoc) int {
	if doc.Tapes == nil {
		return schemaV1
	}
	for _, t := range doc.Tapes {
		if t.Length == nil || t.Width == nil || t.Enabled == nil {
			return schemaV2
		}
		for i := range t.Segments {
			if len(t.Segments[i].Sensors) == 0 {
				return schemaV2
			}
		}
	}
	return schemaV3
}

// Migrate parses data and runs the migration chain until the document reaches
// the current shape. Each step is pure and strictly advances the sniffed
// version, so the loop terminates. Malformed input is an error; callers treat
// it as no saved state.
func Migrate(data []byte, rng *rand.Rand, now time.Time) (*Snapshot, error) {
	var doc rawDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	for {
		switch versionOf(doc) {
		case schemaV1:
			doc = migrateFlatSegments(doc)
		case schemaV2:
			doc = migrateBackfill(doc, rng, now)
		default:
			return finalize(doc), nil
		}
	}
}

// migrateFlatSegments wraps a version-1 flat segment list in a single
// synthetic tape and drops the legacy top-level fields. A document with no
// segments at all becomes a document with no tapes, which bootstrap treats
// the same as no saved state.
func migrateFlatSegments(doc rawDoc) rawDoc {
	out := doc
	out.Segments = nil
	out.TapeLength = nil
	out.TapeWidth = nil
	out.Tapes = []rawTape{}

	if len(doc.Segments) == 0 {
		return out
	}

	length, width := core.DefaultTapeLength, core.DefaultTapeWidth
	if doc.TapeLength != nil {
		length = *doc.TapeLength
	}
	if doc.TapeWidth != nil {
		width = *doc.TapeWidth
	}
	enabled := true
	out.Tapes = []rawTape{{
		ID:       1,
		Name:     "Tape 1",
		Length:   &length,
		Width:    &width,
		Enabled:  &enabled,
		Segments: doc.Segments,
	}}
	return out
}

// migrateBackfill brings a version-2 document to the current shape. Segments
// without probes get a freshly generated set; the original probe history is
// unrecoverable at that point. Tapes gain defaults for any field older
// writers never stored.
func migrateBackfill(doc rawDoc, rng *rand.Rand, now time.Time) rawDoc {
	out := doc
	out.Tapes = make([]rawTape, len(doc.Tapes))
	for i, t := range doc.Tapes {
		nt := t
		if nt.Length == nil {
			length := core.DefaultTapeLength
			nt.Length = &length
		}
		if nt.Width == nil {
			width := core.DefaultTapeWidth
			nt.Width = &width
		}
		if nt.Enabled == nil {
			enabled := true
			nt.Enabled = &enabled
		}
		nt.Segments = make([]model.Segment, len(t.Segments))
		for j, seg := range t.Segments {
			if len(seg.Sensors) == 0 {
				seg.Sensors = core.NewSensors(rng, seg.ID, now)
			}
			nt.Segments[j] = seg
		}
		out.Tapes[i] = nt
	}
	return out
}

// finalize converts a current-shape document into the public snapshot,
// defaulting the settings fields the record never carried. Scalar values the
// settings contract constrains to a whitelist fall back to their defaults
// when the stored text is out of range.
func finalize(doc rawDoc) *Snapshot {
	tapes := make([]model.Tape, len(doc.Tapes))
	for i, t := range doc.Tapes {
		tapes[i] = model.Tape{
			ID:             t.ID,
			Name:           t.Name,
			Coordinates:    t.Coordinates,
			ContractNumber: t.ContractNumber,
			Length:         *t.Length,
			Width:          *t.Width,
			Enabled:        *t.Enabled,
			Segments:       t.Segments,
		}
	}

	set := model.DefaultSettings()
	if doc.SystemOn != nil {
		set.SystemOn = *doc.SystemOn
	}
	if doc.AutoMode != nil {
		set.AutoMode = *doc.AutoMode
	}
	if doc.ThresholdTemp != nil {
		set.ThresholdTemp = *doc.ThresholdTemp
	}
	if doc.AlertSound != nil && (*doc.AlertSound == "true" || *doc.AlertSound == "false") {
		set.AlertSound = *doc.AlertSound
	}
	if doc.PollInterval != nil && model.ValidPollInterval(*doc.PollInterval) {
		set.PollInterval = *doc.PollInterval
	}

	return &Snapshot{
		SchemaVersion: CurrentSchemaVersion,
		Tapes:         tapes,
		Alerts:        doc.Alerts,
		SystemOn:      set.SystemOn,
		AutoMode:      set.AutoMode,
		ThresholdTemp: set.ThresholdTemp,
		AlertSound:    set.AlertSound,
		PollInterval:  set.PollInterval,
	}
}
