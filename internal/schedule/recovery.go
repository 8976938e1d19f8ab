package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/noahxzhu/annual-alarm/internal/model"
	"github.com/noahxzhu/annual-alarm/internal/timer"
)

type RecoveryAction int

const (
	// RecoverNone leaves the event disabled.
	RecoverNone RecoveryAction = iota
	// RecoverResume re-arms the stored target.
	RecoverResume
	// RecoverMakeup fires once for the missed target, then arms the next
	// anniversary.
	RecoverMakeup
)

func (a RecoveryAction) String() string {
	switch a {
	case RecoverNone:
		return "none"
	case RecoverResume:
		return "resume"
	case RecoverMakeup:
		return "makeup"
	default:
		return fmt.Sprintf("RecoveryAction(%d)", int(a))
	}
}

type Recovery struct {
	Action RecoveryAction
	// Missed is the stored target that elapsed while offline (RecoverMakeup).
	Missed time.Time
	// At is the target to arm (RecoverResume, RecoverMakeup).
	At time.Time
}

// PlanRecovery decides what to do with a record read at startup. A nil
// record means nothing was stored. A missed target is always rolled forward,
// even for a one-shot event, and only one makeup firing is ever planned.
func PlanRecovery(rec *model.ScheduleRecord, now time.Time) Recovery {
	if rec == nil || !rec.Enabled || rec.ScheduledTime.IsZero() {
		return Recovery{Action: RecoverNone}
	}
	if rec.ScheduledTime.After(now) {
		return Recovery{Action: RecoverResume, At: rec.ScheduledTime}
	}
	return Recovery{
		Action: RecoverMakeup,
		Missed: rec.ScheduledTime,
		At:     NextAnniversary(rec.ScheduledTime, now),
	}
}

// Recover applies PlanRecovery to e using e's clock. Planning and arming
// happen under one lock, and a stored target that elapses before it can be
// armed is handled as a missed one. The makeup firing is queued before the
// state change of the new arming.
func (e *Event) Recover(rec *model.ScheduleRecord) (Recovery, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return Recovery{}, ErrClosed
	}

	plan := PlanRecovery(rec, e.clock.Now())
	switch plan.Action {
	case RecoverNone:
		e.log.Info("No enabled event stored")
		return plan, nil
	case RecoverResume:
		err := e.enableLocked(plan.At)
		if err == nil {
			e.log.Info("Resumed stored event", "at", plan.At)
			return plan, nil
		}
		if !errors.Is(err, timer.ErrInvalidSchedule) {
			return plan, err
		}
		plan = Recovery{
			Action: RecoverMakeup,
			Missed: plan.At,
			At:     NextAnniversary(plan.At, e.clock.Now()),
		}
	}

	e.log.Warn("Stored event elapsed while offline", "missed", plan.Missed, "next", plan.At)
	e.out.push(Notification{Kind: KindFired, At: plan.Missed})
	if err := e.enableLocked(plan.At); err != nil {
		return plan, err
	}
	return plan, nil
}
