// Package state holds the panel's single state owner. Every mutation source,
// whether an operator command, a settings change, an alert acknowledgment, or
// the simulation tick, is serialized here, and the owner is the only writer
// of the persisted snapshot.
package state

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pr-poehali-dev/heated-roof-strips-system/core"
	"github.com/pr-poehali-dev/heated-roof-strips-system/internal/journal"
	"github.com/pr-poehali-dev/heated-roof-strips-system/internal/logging"
	"github.com/pr-poehali-dev/heated-roof-strips-system/internal/store"
	"github.com/pr-poehali-dev/heated-roof-strips-system/model"
)

// PanelMetricsRecorder receives entity counts plus per-command and per-tick
// measurements from the state owner.
type PanelMetricsRecorder interface {
	SetPanelCounts(tapes, segments, activeSegments, sensors, unackedAlerts int)
	RecordCommand(op string, applied bool)
	ObserveSimTick(d time.Duration)
}

// Panel owns the live System value, the session log feed, and the alert
// list. Commands run as pure transformations against the current value; the
// result is committed, persisted, and announced under one mutex, so there is
// no read-merge-write window between concurrent mutation sources. Readers
// take deep-copied snapshots.
type Panel struct {
	mu sync.RWMutex

	// sessionID identifies one owner lifetime; logs and the health endpoint
	// carry it.
	sessionID string
	startedAt time.Time

	sys    *model.System
	alerts []model.Alert
	logs   []model.LogEntry

	// displayTime is the wall clock shown to operators. The clock tick
	// advances it without touching the entity model.
	displayTime time.Time

	st      store.SnapshotStore
	rng     *rand.Rand
	nowFn   func() time.Time
	log     logging.Logger
	metrics PanelMetricsRecorder

	subs    map[int]func(Event)
	nextSub int
}

// Option customises Panel construction.
type Option func(*Panel)

// WithStore attaches the persistence backend. Without one the panel runs
// memory-only and every session starts from the default installation.
func WithStore(st store.SnapshotStore) Option {
	return func(p *Panel) {
		p.st = st
	}
}

// WithMetricsRecorder attaches an optional recorder for entity counts and
// command outcomes.
func WithMetricsRecorder(m PanelMetricsRecorder) Option {
	return func(p *Panel) {
		p.metrics = m
	}
}

// WithRand injects the random source used for entity generation, sensor
// backfill, and temperature drift. Defaults to a time-seeded source.
func WithRand(rng *rand.Rand) Option {
	return func(p *Panel) {
		p.rng = rng
	}
}

// WithClock overrides the wall-clock source, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Panel) {
		p.nowFn = now
	}
}

// New restores the panel from the snapshot store, or builds the default
// installation when no usable state is saved. Session logs are generated
// fresh on every start; alerts come from the snapshot when it carries any.
func New(ctx context.Context, log logging.Logger, opts ...Option) (*Panel, error) {
	if log == nil {
		log = logging.Noop()
	}
	p := &Panel{
		sessionID: uuid.NewString(),
		log:       log,
		subs:      make(map[int]func(Event)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.nowFn == nil {
		p.nowFn = time.Now
	}
	if p.rng == nil {
		p.rng = core.NewRand()
	}

	now := p.nowFn()
	p.startedAt = now
	p.displayTime = now
	p.logs = journal.SessionLogs(now)

	if err := p.restore(ctx, now); err != nil {
		return nil, err
	}

	// Write the restored (and possibly just-migrated) state back so the
	// stored document is always in the current shape.
	p.mu.Lock()
	p.persistLocked(ctx)
	p.updateMetricsLocked()
	p.mu.Unlock()
	return p, nil
}

// restore loads the persisted document. A malformed document counts as no
// saved state, as does one without tapes; a store that cannot be reached is
// an error, so a reachable older snapshot is never overwritten by defaults.
func (p *Panel) restore(ctx context.Context, now time.Time) error {
	if p.st == nil {
		p.sys = core.DefaultSystem(p.rng, now)
		p.alerts = journal.StartupAlerts(now)
		p.log.Info(ctx, "no snapshot store configured, starting with defaults")
		return nil
	}

	raw, found, err := p.st.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if found {
		sys, alerts, err := store.Decode(raw, p.rng, now)
		switch {
		case err != nil:
			p.log.Warn(ctx, "persisted snapshot is malformed, starting with defaults", logging.Err(err))
		case len(sys.Tapes) > 0:
			p.sys = sys
			if len(alerts) > 0 {
				p.alerts = alerts
			} else {
				p.alerts = journal.StartupAlerts(now)
			}
			p.log.Info(ctx, "panel state restored",
				logging.Int("tapes", len(sys.Tapes)),
				logging.Int("alerts", len(p.alerts)))
			return nil
		}
	}

	p.sys = core.DefaultSystem(p.rng, now)
	p.alerts = journal.StartupAlerts(now)
	p.log.Info(ctx, "starting with default installation",
		logging.Int("tapes", len(p.sys.Tapes)))
	return nil
}

// persistLocked writes the current state through the snapshot store.
// Failures are logged and swallowed: persistence is best-effort and must
// never fail a command. Caller holds p.mu.
func (p *Panel) persistLocked(ctx context.Context) {
	if p.st == nil {
		return
	}
	data, err := store.Encode(p.sys, p.alerts)
	if err != nil {
		p.log.Error(ctx, "encode snapshot", logging.Err(err))
		return
	}
	if err := p.st.Save(ctx, data); err != nil {
		p.log.Error(ctx, "save snapshot", logging.Err(err))
	}
}

// updateMetricsLocked pushes current entity counts to the metrics recorder.
// Caller holds p.mu.
func (p *Panel) updateMetricsLocked() {
	if p == nil || p.metrics == nil {
		return
	}
	segments, active, sensors := 0, 0, 0
	for i := range p.sys.Tapes {
		t := &p.sys.Tapes[i]
		segments += len(t.Segments)
		for j := range t.Segments {
			sensors += len(t.Segments[j].Sensors)
			if model.EffectiveEnabled(t, &t.Segments[j]) {
				active++
			}
		}
	}
	unacked := 0
	for i := range p.alerts {
		if !p.alerts[i].Acknowledged {
			unacked++
		}
	}
	p.metrics.SetPanelCounts(len(p.sys.Tapes), segments, active, sensors, unacked)
}

// apply runs a pure command against the current system, commits the result
// when it applied, and persists and announces the change. The outcome is
// returned either way so surfaces can report rejections without failing.
func (p *Panel) apply(ctx context.Context, op string, fn func(*model.System) (*model.System, core.Outcome)) core.Outcome {
	p.mu.Lock()
	next, out := fn(p.sys)
	if out.Applied {
		p.sys = next
		p.persistLocked(ctx)
		p.updateMetricsLocked()
	}
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.RecordCommand(op, out.Applied)
	}
	if out.Applied {
		p.notify(Event{Kind: EventCommand, Op: op, At: p.nowFn()})
	} else {
		p.log.Debug(ctx, "command rejected",
			logging.String("op", op),
			logging.String("reason", string(out.Reason)))
	}
	return out
}

// AddTape appends a new tape with four fresh segments.
func (p *Panel) AddTape(ctx context.Context) core.Outcome {
	return p.apply(ctx, "addTape", func(sys *model.System) (*model.System, core.Outcome) {
		return core.AddTape(sys, p.rng, p.nowFn())
	})
}

// RemoveTape deletes a tape unless it is the last one.
func (p *Panel) RemoveTape(ctx context.Context, tapeID int) core.Outcome {
	return p.apply(ctx, "removeTape", func(sys *model.System) (*model.System, core.Outcome) {
		return core.RemoveTape(sys, tapeID)
	})
}

// ToggleTape flips a tape's enabled flag.
func (p *Panel) ToggleTape(ctx context.Context, tapeID int) core.Outcome {
	return p.apply(ctx, "toggleTape", func(sys *model.System) (*model.System, core.Outcome) {
		return core.ToggleTape(sys, tapeID)
	})
}

// UpdateTapeField replaces one free-form tape attribute.
func (p *Panel) UpdateTapeField(ctx context.Context, tapeID int, field core.TapeField, value string) core.Outcome {
	return p.apply(ctx, "updateTapeField", func(sys *model.System) (*model.System, core.Outcome) {
		return core.UpdateTapeField(sys, tapeID, field, value)
	})
}

// AddSegment appends one disabled segment to a tape.
func (p *Panel) AddSegment(ctx context.Context, tapeID int) core.Outcome {
	return p.apply(ctx, "addSegment", func(sys *model.System) (*model.System, core.Outcome) {
		return core.AddSegment(sys, p.rng, tapeID, p.nowFn())
	})
}

// RemoveSegment deletes a segment unless it is its tape's last one.
func (p *Panel) RemoveSegment(ctx context.Context, tapeID, segmentID int) core.Outcome {
	return p.apply(ctx, "removeSegment", func(sys *model.System) (*model.System, core.Outcome) {
		return core.RemoveSegment(sys, tapeID, segmentID)
	})
}

// ToggleSegment flips a segment's enabled flag and aligns its status.
func (p *Panel) ToggleSegment(ctx context.Context, tapeID, segmentID int) core.Outcome {
	return p.apply(ctx, "toggleSegment", func(sys *model.System) (*model.System, core.Outcome) {
		return core.ToggleSegment(sys, tapeID, segmentID)
	})
}

// SetSegmentPower sets a segment's power percentage, clamped to [0,100].
func (p *Panel) SetSegmentPower(ctx context.Context, tapeID, segmentID, power int) core.Outcome {
	return p.apply(ctx, "setSegmentPower", func(sys *model.System) (*model.System, core.Outcome) {
		return core.SetSegmentPower(sys, tapeID, segmentID, power)
	})
}

// SetSegmentTargetTemp sets a segment's target temperature, clamped to
// [-10,30].
func (p *Panel) SetSegmentTargetTemp(ctx context.Context, tapeID, segmentID, target int) core.Outcome {
	return p.apply(ctx, "setSegmentTargetTemp", func(sys *model.System) (*model.System, core.Outcome) {
		return core.SetSegmentTargetTemp(sys, tapeID, segmentID, target)
	})
}

// SetAllSegments enables or disables every segment of one tape.
func (p *Panel) SetAllSegments(ctx context.Context, tapeID int, enabled bool) core.Outcome {
	return p.apply(ctx, "setAllSegments", func(sys *model.System) (*model.System, core.Outcome) {
		return core.SetAllSegments(sys, tapeID, enabled)
	})
}

// ApplySettings merges a partial settings update.
func (p *Panel) ApplySettings(ctx context.Context, patch core.SettingsPatch) core.Outcome {
	return p.apply(ctx, "applySettings", func(sys *model.System) (*model.System, core.Outcome) {
		return core.ApplySettings(sys, patch)
	})
}

// AcknowledgeAlert marks an alert as acknowledged. Re-acknowledging is a
// no-op that still reports applied; the flag never reverts.
func (p *Panel) AcknowledgeAlert(ctx context.Context, alertID int) core.Outcome {
	p.mu.Lock()
	next, out := core.AcknowledgeAlert(p.alerts, alertID)
	if out.Applied {
		p.alerts = next
		p.persistLocked(ctx)
		p.updateMetricsLocked()
	}
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.RecordCommand("acknowledgeAlert", out.Applied)
	}
	if out.Applied {
		p.notify(Event{Kind: EventCommand, Op: "acknowledgeAlert", At: p.nowFn()})
	} else {
		p.log.Debug(ctx, "command rejected",
			logging.String("op", "acknowledgeAlert"),
			logging.String("reason", string(out.Reason)))
	}
	return out
}

// RunSimulationTick perturbs the temperature of every effectively active
// segment and persists the result. Segment status is not recomputed here; it
// changes only through explicit enable and disable actions.
func (p *Panel) RunSimulationTick(ctx context.Context, now time.Time) int {
	start := time.Now()

	p.mu.Lock()
	next, changed := core.AdvanceTemperatures(p.sys, p.rng, now)
	if changed > 0 {
		p.sys = next
		p.persistLocked(ctx)
	}
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.ObserveSimTick(time.Since(start))
	}
	if changed > 0 {
		p.notify(Event{Kind: EventSimTick, At: now})
	}
	p.log.Debug(ctx, "simulation tick", logging.Int("segments_changed", changed))
	return changed
}

// SetDisplayTime advances the displayed wall clock. It never touches the
// entity model.
func (p *Panel) SetDisplayTime(now time.Time) {
	p.mu.Lock()
	p.displayTime = now
	p.mu.Unlock()

	p.notify(Event{Kind: EventClock, At: now})
}

// SessionID identifies this owner lifetime. Two restarts of the same
// installation share persisted state but never a session ID.
func (p *Panel) SessionID() string {
	return p.sessionID
}

// StartedAt is the wall-clock time this session began.
func (p *Panel) StartedAt() time.Time {
	return p.startedAt
}

// DisplayTime returns the displayed wall clock value.
func (p *Panel) DisplayTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.displayTime
}

// SystemSnapshot returns a deep copy of the current system.
func (p *Panel) SystemSnapshot() *model.System {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sys.Clone()
}

// Summary computes the derived aggregates from the current state, fresh on
// every call; nothing is cached.
func (p *Panel) Summary() model.Summary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return core.ComputeSummary(p.sys)
}

// Alerts returns a copy of the alert list.
func (p *Panel) Alerts() []model.Alert {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return model.CloneAlerts(p.alerts)
}

// Logs returns the session log feed, generated once at start and immutable
// afterwards.
func (p *Panel) Logs() []model.LogEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return model.CloneLogs(p.logs)
}

// Export returns independent copies of the system and alert list, in the
// shape download endpoints serialize.
func (p *Panel) Export() (*model.System, []model.Alert) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sys.Clone(), model.CloneAlerts(p.alerts)
}

// Flush persists the current state unconditionally, for shutdown paths.
func (p *Panel) Flush(ctx context.Context) {
	p.mu.Lock()
	p.persistLocked(ctx)
	p.mu.Unlock()
}
