// Package timer turns an absolute instant into a single callback.
package timer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/noahxzhu/annual-alarm/internal/clock"
)

var ErrInvalidSchedule = errors.New("timer: invalid schedule")

type State int

const (
	StateArmed State = iota
	StateFired
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateFired:
		return "fired"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Timer is a one-shot countdown to a fixed instant. Once it has fired or
// been cancelled it is spent; arm a new one for the next instant.
type Timer struct {
	target time.Time

	mu    sync.Mutex
	state State
	stop  clock.Stopper
}

// Arm schedules fn to run once at target. The target must be strictly after
// c.Now(); the delay is measured from that same sample.
func Arm(c clock.Clock, target time.Time, fn func()) (*Timer, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: nil callback", ErrInvalidSchedule)
	}
	now := c.Now()
	delay := target.Sub(now)
	if delay <= 0 {
		return nil, fmt.Errorf("%w: %s is not after %s", ErrInvalidSchedule,
			target.Format(time.RFC3339), now.Format(time.RFC3339))
	}

	t := &Timer{target: target}
	// Hold the lock so an extremely short delay cannot fire before stop is set.
	t.mu.Lock()
	t.stop = c.AfterFunc(delay, func() { t.elapse(fn) })
	t.mu.Unlock()
	return t, nil
}

func (t *Timer) elapse(fn func()) {
	t.mu.Lock()
	if t.state != StateArmed {
		t.mu.Unlock()
		return
	}
	t.state = StateFired
	t.mu.Unlock()
	fn()
}

// Cancel prevents a pending callback. It reports whether this call did the
// cancelling; cancelling a fired or cancelled timer is a no-op.
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateArmed {
		return false
	}
	t.state = StateCancelled
	if t.stop != nil {
		t.stop.Stop()
	}
	return true
}

// Target is the instant the timer was armed for.
func (t *Timer) Target() time.Time { return t.target }

func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
