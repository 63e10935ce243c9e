package store

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/pr-poehali-dev/heated-roof-strips-system/model"
)

// Schema versions of the persisted document. Version 1 kept a flat segment
// list, version 2 introduced tapes, version 3 added per-segment sensors.
const (
	schemaV1 = 1
	schemaV2 = 2
	schemaV3 = 3

	// CurrentSchemaVersion is written on every save. Loading still sniffs
	// the document shape, so untagged records from older writers migrate
	// the same way as tagged ones.
	CurrentSchemaVersion = schemaV3
)

// Snapshot is the persisted record: the full entity tree, the alert list and
// the scalar settings, flattened into one document.
type Snapshot struct {
	SchemaVersion int           `json:"schemaVersion"`
	Tapes         []model.Tape  `json:"tapes"`
	Alerts        []model.Alert `json:"alerts"`
	SystemOn      bool          `json:"systemOn"`
	AutoMode      bool          `json:"autoMode"`
	ThresholdTemp string        `json:"thresholdTemp"`
	AlertSound    string        `json:"alertSound"`
	PollInterval  string        `json:"pollInterval"`
}

// Encode serializes the current state as a schema-tagged document.
func Encode(sys *model.System, alerts []model.Alert) ([]byte, error) {
	snap := Snapshot{
		SchemaVersion: CurrentSchemaVersion,
		Tapes:         sys.Tapes,
		Alerts:        alerts,
		SystemOn:      sys.Settings.SystemOn,
		AutoMode:      sys.Settings.AutoMode,
		ThresholdTemp: sys.Settings.ThresholdTemp,
		AlertSound:    sys.Settings.AlertSound,
		PollInterval:  sys.Settings.PollInterval,
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a persisted document of any historical shape and returns the
// current model. rng and now feed sensor generation when a pre-v3 document
// has probes backfilled.
func Decode(data []byte, rng *rand.Rand, now time.Time) (*model.System, []model.Alert, error) {
	snap, err := Migrate(data, rng, now)
	if err != nil {
		return nil, nil, err
	}
	sys := &model.System{
		Tapes: snap.Tapes,
		Settings: model.Settings{
			SystemOn:      snap.SystemOn,
			AutoMode:      snap.AutoMode,
			ThresholdTemp: snap.ThresholdTemp,
			AlertSound:    snap.AlertSound,
			PollInterval:  snap.PollInterval,
		},
	}
	return sys, snap.Alerts, nil
}
