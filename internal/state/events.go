package state

import "time"

// EventKind classifies a change notification.
type EventKind string

const (
	// EventCommand is emitted after an operator command applied.
	EventCommand EventKind = "command"
	// EventSimTick is emitted after a simulation tick changed at least one
	// segment.
	EventSimTick EventKind = "simTick"
	// EventClock is emitted when the displayed wall clock advances.
	EventClock EventKind = "clock"
)

// Event is delivered to subscribers after a change is committed. It names
// what happened, not the new state; consumers read a fresh snapshot.
type Event struct {
	Kind EventKind `json:"kind"`
	Op   string    `json:"op,omitempty"`
	At   time.Time `json:"at"`
}

// Subscribe registers fn to run after every committed change and returns an
// unsubscribe function. Callbacks run outside the state lock and must not
// block; slow consumers should hand off to their own goroutine.
func (p *Panel) Subscribe(fn func(Event)) (unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

// notify fans an event out to current subscribers outside the state lock, so
// a callback can call back into the panel without deadlocking.
func (p *Panel) notify(ev Event) {
	p.mu.RLock()
	fns := make([]func(Event), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
