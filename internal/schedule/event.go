// Package schedule implements a single alarm that can be enabled, disabled
// and, when recurring, re-armed one calendar year after every firing.
package schedule

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/noahxzhu/annual-alarm/internal/clock"
	"github.com/noahxzhu/annual-alarm/internal/timer"
)

var ErrClosed = errors.New("schedule: event closed")

type Kind int

const (
	KindFired Kind = iota + 1
	KindStateChanged
)

func (k Kind) String() string {
	switch k {
	case KindFired:
		return "fired"
	case KindStateChanged:
		return "state_changed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Notification is one entry of the event's ordered output stream.
// For KindFired, At is the instant that elapsed. For KindStateChanged,
// Enabled is the new state and At the armed target (zero when disabled).
type Notification struct {
	Kind    Kind
	Enabled bool
	At      time.Time
}

type Option func(*Event)

func WithClock(c clock.Clock) Option {
	return func(e *Event) { e.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Event) { e.log = l }
}

type Event struct {
	clock     clock.Clock
	log       *slog.Logger
	recurring bool
	out       *outbox

	mu      sync.Mutex
	at      time.Time
	enabled bool
	timer   *timer.Timer
	gen     uint64
	closed  bool
}

// New returns a disabled event targeting at.
func New(at time.Time, recurring bool, opts ...Option) *Event {
	e := &Event{
		clock:     clock.Real(),
		log:       slog.Default(),
		recurring: recurring,
		at:        at,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.out = newOutbox()
	return e
}

// Notifications returns the event's output stream. Fired and state-changed
// notifications arrive in the order they happened. The channel is closed
// by Close.
func (e *Event) Notifications() <-chan Notification {
	return e.out.C()
}

func (e *Event) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// ScheduledAt returns the next firing time (or the last one, if disabled).
func (e *Event) ScheduledAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.at
}

// Enable arms the event for at. An already enabled event is disabled first.
// A target that is not strictly in the future is rejected with
// timer.ErrInvalidSchedule and leaves the event disabled.
func (e *Event) Enable(at time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return e.enableLocked(at)
}

func (e *Event) enableLocked(at time.Time) error {
	if e.enabled {
		e.log.Warn("Enable called on an enabled event, disabling first", "at", e.at)
		e.disableLocked()
	}

	t, err := e.armLocked(at)
	if err != nil {
		return fmt.Errorf("schedule: enable: %w", err)
	}
	e.at = at
	e.timer = t
	e.enabled = true
	e.log.Info("Scheduled event enabled", "at", at, "recurring", e.recurring)
	e.out.push(Notification{Kind: KindStateChanged, Enabled: true, At: at})
	return nil
}

// Disable cancels the pending firing. Disabling a disabled event is a no-op.
func (e *Event) Disable() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disableLocked()
}

func (e *Event) disableLocked() {
	if !e.enabled {
		return
	}
	if e.timer != nil {
		e.timer.Cancel()
		e.timer = nil
	}
	e.enabled = false
	e.log.Info("Scheduled event disabled", "at", e.at)
	e.out.push(Notification{Kind: KindStateChanged, Enabled: false})
}

// Close disables the event. The notification stream is closed after the
// notifications already queued have been received, so readers should keep
// draining it until it is closed.
func (e *Event) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.disableLocked()
	e.closed = true
	e.mu.Unlock()
	e.out.close()
}

// armLocked bumps the generation so callbacks of replaced timers are ignored.
func (e *Event) armLocked(at time.Time) (*timer.Timer, error) {
	gen := e.gen + 1
	t, err := timer.Arm(e.clock, at, func() { e.elapsed(gen, at) })
	if err != nil {
		return nil, err
	}
	e.gen = gen
	return t, nil
}

func (e *Event) elapsed(gen uint64, firedAt time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	// A Disable or re-Enable that won the lock owns the state now.
	if !e.enabled || e.gen != gen {
		return
	}

	e.log.Info("Scheduled event fired", "at", firedAt)
	e.out.push(Notification{Kind: KindFired, At: firedAt})

	if !e.recurring {
		e.timer = nil
		e.enabled = false
		e.out.push(Notification{Kind: KindStateChanged, Enabled: false})
		return
	}

	next := AddYear(firedAt)
	if now := e.clock.Now(); !next.After(now) {
		// The clock jumped more than a year; skip to the next anniversary.
		next = NextAnniversary(firedAt, now)
	}
	nt, err := e.armLocked(next)
	if err != nil {
		e.log.Error("Failed to re-arm recurring event", "at", next, "error", err)
		e.timer = nil
		e.enabled = false
		e.out.push(Notification{Kind: KindStateChanged, Enabled: false})
		return
	}
	e.at = next
	e.timer = nt
	e.log.Info("Recurring event rescheduled", "at", next)
	e.out.push(Notification{Kind: KindStateChanged, Enabled: true, At: next})
}
