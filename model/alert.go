package model

import "time"

// LogType classifies a session log entry.
type LogType string

const (
	LogInfo    LogType = "info"
	LogWarning LogType = "warning"
	LogError   LogType = "error"
	LogSuccess LogType = "success"
)

// AlertSeverity orders alerts for the operator.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// LogEntry is one line of the session feed. Entries are generated once at
// session start and never change afterwards.
type LogEntry struct {
	ID        int       `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      LogType   `json:"type"`
	Message   string    `json:"message"`

	// Segment is a best-effort segment-name tag extracted from the message,
	// not an ownership link. Empty when the message names no segment.
	Segment string `json:"segment,omitempty"`
}

// Alert is a persisted operator notification. The only permitted mutation is
// acknowledgment, which is one-way: once true it never reverts.
type Alert struct {
	ID           int           `json:"id"`
	Timestamp    time.Time     `json:"timestamp"`
	Severity     AlertSeverity `json:"severity"`
	Message      string        `json:"message"`
	Acknowledged bool          `json:"acknowledged"`
}

// CloneAlerts copies an alert list so callers can hand it out without
// exposing the owned slice.
func CloneAlerts(alerts []Alert) []Alert {
	if alerts == nil {
		return nil
	}
	out := make([]Alert, len(alerts))
	copy(out, alerts)
	return out
}

// CloneLogs copies a log list.
func CloneLogs(logs []LogEntry) []LogEntry {
	if logs == nil {
		return nil
	}
	out := make([]LogEntry, len(logs))
	copy(out, logs)
	return out
}
