package model

// Settings are the scalar panel settings persisted alongside the tapes.
// AlertSound and PollInterval are string-typed by the persisted record
// contract, not booleans/integers.
type Settings struct {
	SystemOn      bool   `json:"systemOn"`
	AutoMode      bool   `json:"autoMode"`
	ThresholdTemp string `json:"thresholdTemp"` // numeric text, degrees C
	AlertSound    string `json:"alertSound"`    // "true" | "false"
	PollInterval  string `json:"pollInterval"`  // one of "1","2","5","10"
}

// DefaultSettings returns the settings used for a fresh system and to fill
// gaps in older persisted records.
func DefaultSettings() Settings {
	return Settings{
		SystemOn:      true,
		AutoMode:      false,
		ThresholdTemp: "3",
		AlertSound:    "true",
		PollInterval:  "5",
	}
}

// ValidPollInterval reports whether v is one of the accepted poll interval
// values.
func ValidPollInterval(v string) bool {
	switch v {
	case "1", "2", "5", "10":
		return true
	}
	return false
}

// System is the root of the ownership tree: tapes own segments, segments own
// sensors. There are no back-references.
type System struct {
	Tapes    []Tape   `json:"tapes"`
	Settings Settings `json:"settings"`
}

// Clone returns a deep copy. Command transformations clone first and mutate
// the copy, so readers holding an earlier snapshot are never disturbed.
func (s *System) Clone() *System {
	out := &System{Settings: s.Settings}
	out.Tapes = make([]Tape, len(s.Tapes))
	for i := range s.Tapes {
		out.Tapes[i] = s.Tapes[i].Clone()
	}
	return out
}

// FindTape returns a pointer into the system's tape slice, or nil.
func (s *System) FindTape(id int) *Tape {
	for i := range s.Tapes {
		if s.Tapes[i].ID == id {
			return &s.Tapes[i]
		}
	}
	return nil
}

// FindSegment returns pointers to a tape and one of its segments, or nils.
func (s *System) FindSegment(tapeID, segmentID int) (*Tape, *Segment) {
	t := s.FindTape(tapeID)
	if t == nil {
		return nil, nil
	}
	for i := range t.Segments {
		if t.Segments[i].ID == segmentID {
			return t, &t.Segments[i]
		}
	}
	return t, nil
}

// NextTapeID allocates the next tape id: max(existing)+1, or 1 when the
// system has no tapes.
func (s *System) NextTapeID() int {
	max := 0
	for i := range s.Tapes {
		if s.Tapes[i].ID > max {
			max = s.Tapes[i].ID
		}
	}
	return max + 1
}

// NextSegmentID allocates the next segment id across all tapes.
func (s *System) NextSegmentID() int {
	max := 0
	for i := range s.Tapes {
		for j := range s.Tapes[i].Segments {
			if s.Tapes[i].Segments[j].ID > max {
				max = s.Tapes[i].Segments[j].ID
			}
		}
	}
	return max + 1
}
