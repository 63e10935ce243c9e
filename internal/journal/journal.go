// Package journal builds the session-start log feed and the startup alert
// list. Logs are generated once per session and never change; alerts persist
// with the snapshot and are only ever acknowledged.
package journal

import (
	"regexp"
	"time"

	"github.com/pr-poehali-dev/heated-roof-strips-system/model"
)

// Spacing between consecutive entries, newest first.
const (
	logSpacing   = 5 * time.Minute
	alertSpacing = 15 * time.Minute
)

// segmentRef extracts a segment-name tag from a message, best effort.
var segmentRef = regexp.MustCompile(`(?i)segment\s+\d+`)

type logTemplate struct {
	typ     model.LogType
	message string
}

var logTemplates = []logTemplate{
	{model.LogSuccess, "System started in normal mode"},
	{model.LogInfo, "Segment 3 reached target temperature"},
	{model.LogWarning, "Segment 7 temperature below target"},
	{model.LogInfo, "Heating enabled on segment 2"},
	{model.LogError, "Sensor poll timed out on segment 5"},
	{model.LogInfo, "Configuration saved"},
	{model.LogSuccess, "Self-test completed, all tapes responding"},
	{model.LogWarning, "Power draw approaching contract limit"},
	{model.LogInfo, "Segment 10 switched to standby"},
	{model.LogInfo, "Poll interval set to 5 seconds"},
}

type alertTemplate struct {
	severity model.AlertSeverity
	message  string
}

var alertTemplates = []alertTemplate{
	{model.SeverityHigh, "Segment 7 temperature below threshold"},
	{model.SeverityMedium, "Sensor offline on segment 5"},
	{model.SeverityCritical, "Power draw exceeded contract limit on tape 2"},
	{model.SeverityLow, "Scheduled maintenance window in 3 days"},
}

// SessionLogs materializes the session feed: ids ascending from 1, timestamps
// descending from now, evenly spaced, with the segment tag filled in where a
// message names one.
func SessionLogs(now time.Time) []model.LogEntry {
	out := make([]model.LogEntry, 0, len(logTemplates))
	for i, tpl := range logTemplates {
		entry := model.LogEntry{
			ID:        i + 1,
			Timestamp: now.Add(-time.Duration(i) * logSpacing),
			Type:      tpl.typ,
			Message:   tpl.message,
			Segment:   segmentRef.FindString(tpl.message),
		}
		out = append(out, entry)
	}
	return out
}

// StartupAlerts materializes the alert list used when the persisted snapshot
// carries none. Everything starts unacknowledged.
func StartupAlerts(now time.Time) []model.Alert {
	out := make([]model.Alert, 0, len(alertTemplates))
	for i, tpl := range alertTemplates {
		out = append(out, model.Alert{
			ID:        i + 1,
			Timestamp: now.Add(-time.Duration(i) * alertSpacing),
			Severity:  tpl.severity,
			Message:   tpl.message,
		})
	}
	return out
}
