package journal

import (
	"strings"
	"testing"
	"time"

	"github.com/pr-poehali-dev/heated-roof-strips-system/model"
)

func TestSessionLogsShape(t *testing.T) {
	now := time.Date(2024, 11, 12, 9, 30, 0, 0, time.UTC)
	logs := SessionLogs(now)

	if len(logs) == 0 {
		t.Fatal("no session logs generated")
	}
	if !logs[0].Timestamp.Equal(now) {
		t.Fatalf("first log timestamp = %v, want %v", logs[0].Timestamp, now)
	}

	for i, entry := range logs {
		if entry.ID != i+1 {
			t.Fatalf("log id = %d, want %d", entry.ID, i+1)
		}
		if i == 0 {
			continue
		}
		gap := logs[i-1].Timestamp.Sub(entry.Timestamp)
		if gap != logSpacing {
			t.Fatalf("gap between log %d and %d = %v, want %v", i, i+1, gap, logSpacing)
		}
	}
}

func TestSessionLogsSegmentTag(t *testing.T) {
	logs := SessionLogs(time.Now())

	tagged := 0
	for _, entry := range logs {
		mentions := strings.Contains(strings.ToLower(entry.Message), "segment ")
		if mentions && entry.Segment == "" {
			t.Fatalf("log %q mentions a segment but carries no tag", entry.Message)
		}
		if !mentions && entry.Segment != "" {
			t.Fatalf("log %q carries unexpected tag %q", entry.Message, entry.Segment)
		}
		if entry.Segment != "" {
			if !strings.Contains(strings.ToLower(entry.Segment), "segment") {
				t.Fatalf("tag %q does not look like a segment name", entry.Segment)
			}
			tagged++
		}
	}
	if tagged == 0 {
		t.Fatal("no log entry carries a segment tag")
	}
}

func TestStartupAlerts(t *testing.T) {
	now := time.Date(2024, 11, 12, 9, 30, 0, 0, time.UTC)
	alerts := StartupAlerts(now)

	if len(alerts) == 0 {
		t.Fatal("no startup alerts generated")
	}
	valid := map[model.AlertSeverity]bool{
		model.SeverityLow:      true,
		model.SeverityMedium:   true,
		model.SeverityHigh:     true,
		model.SeverityCritical: true,
	}
	for i, alert := range alerts {
		if alert.ID != i+1 {
			t.Fatalf("alert id = %d, want %d", alert.ID, i+1)
		}
		if alert.Acknowledged {
			t.Fatalf("alert %d starts acknowledged", alert.ID)
		}
		if !valid[alert.Severity] {
			t.Fatalf("alert %d has unknown severity %q", alert.ID, alert.Severity)
		}
		if i > 0 {
			gap := alerts[i-1].Timestamp.Sub(alert.Timestamp)
			if gap != alertSpacing {
				t.Fatalf("gap between alert %d and %d = %v, want %v", i, i+1, gap, alertSpacing)
			}
		}
	}
}
