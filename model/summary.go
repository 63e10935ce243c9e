package model

// Summary is the derived system-wide view computed fresh on every read.
type Summary struct {
	ActiveSegmentCount int `json:"activeSegmentCount"`

	// AverageTemperature is nil when no segment is effectively enabled;
	// "no data" must stay distinguishable from zero degrees.
	AverageTemperature *float64 `json:"averageTemperature"`

	TotalPowerKW      float64 `json:"totalPowerKW"`
	TotalLengthMeters float64 `json:"totalLengthMeters"`
	ActiveTapeCount   int     `json:"activeTapeCount"`
	TotalSensorCount  int     `json:"totalSensorCount"`
}
