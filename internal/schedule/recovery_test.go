package schedule

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noahxzhu/annual-alarm/internal/clock"
	"github.com/noahxzhu/annual-alarm/internal/model"
)

func TestPlanRecovery(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local)
	past := time.Date(2023, 3, 1, 0, 0, 0, 0, time.Local)
	future := now.Add(48 * time.Hour)

	tests := []struct {
		name string
		rec  *model.ScheduleRecord
		want Recovery
	}{
		{name: "absent", rec: nil, want: Recovery{Action: RecoverNone}},
		{name: "disabled future", rec: &model.ScheduleRecord{ScheduledTime: future}, want: Recovery{Action: RecoverNone}},
		{name: "disabled past", rec: &model.ScheduleRecord{ScheduledTime: past}, want: Recovery{Action: RecoverNone}},
		{name: "enabled zero time", rec: &model.ScheduleRecord{Enabled: true}, want: Recovery{Action: RecoverNone}},
		{name: "enabled future", rec: &model.ScheduleRecord{ScheduledTime: future, Enabled: true}, want: Recovery{Action: RecoverResume, At: future}},
		{
			name: "enabled past",
			rec:  &model.ScheduleRecord{ScheduledTime: past, Enabled: true},
			want: Recovery{Action: RecoverMakeup, Missed: past, At: time.Date(2025, 3, 1, 0, 0, 0, 0, time.Local)},
		},
		{
			name: "enabled exactly now",
			rec:  &model.ScheduleRecord{ScheduledTime: now, Enabled: true},
			want: Recovery{Action: RecoverMakeup, Missed: now, At: time.Date(2025, 3, 1, 0, 0, 0, 0, time.Local)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlanRecovery(tt.rec, now))
		})
	}
}

func TestRecoverMakeupFiresOnceAndRearms(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local)
	missed := time.Date(2023, 3, 1, 0, 0, 0, 0, time.Local)
	c := clock.NewManual(now)
	// One-shot events are rolled forward too.
	e := newTestEvent(t, c, time.Time{}, false)

	plan, err := e.Recover(&model.ScheduleRecord{ScheduledTime: missed, Enabled: true})
	require.NoError(t, err)
	assert.Equal(t, RecoverMakeup, plan.Action)

	next := time.Date(2025, 3, 1, 0, 0, 0, 0, time.Local)
	ch := e.Notifications()
	assert.Equal(t, Notification{Kind: KindFired, At: missed}, waitNotification(t, ch))
	assert.Equal(t, Notification{Kind: KindStateChanged, Enabled: true, At: next}, waitNotification(t, ch))
	expectNoNotification(t, ch)
	assert.True(t, e.Enabled())
	assert.Equal(t, next, e.ScheduledAt())
}

func TestRecoverFutureResumesWithoutFiring(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local)
	target := now.Add(time.Hour)
	e := newTestEvent(t, clock.NewManual(now), time.Time{}, true)

	plan, err := e.Recover(&model.ScheduleRecord{ScheduledTime: target, Enabled: true})
	require.NoError(t, err)
	assert.Equal(t, RecoverResume, plan.Action)

	assert.Equal(t, Notification{Kind: KindStateChanged, Enabled: true, At: target}, waitNotification(t, e.Notifications()))
	expectNoNotification(t, e.Notifications())
	assert.Equal(t, target, e.ScheduledAt())
}

func TestRecoverNothingStored(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local)
	for _, rec := range []*model.ScheduleRecord{nil, {ScheduledTime: now.Add(time.Hour)}} {
		e := newTestEvent(t, clock.NewManual(now), time.Time{}, true)
		plan, err := e.Recover(rec)
		require.NoError(t, err)
		assert.Equal(t, RecoverNone, plan.Action)
		assert.False(t, e.Enabled())
		expectNoNotification(t, e.Notifications())
	}
}

func TestNextAnniversary(t *testing.T) {
	at := time.Date(2020, 6, 15, 8, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{name: "before first anniversary", now: at.Add(time.Hour), want: time.Date(2021, 6, 15, 8, 30, 0, 0, time.UTC)},
		{name: "same year later", now: time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC), want: time.Date(2024, 6, 15, 8, 30, 0, 0, time.UTC)},
		{name: "same year passed", now: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), want: time.Date(2025, 6, 15, 8, 30, 0, 0, time.UTC)},
		{name: "exact instant", now: time.Date(2024, 6, 15, 8, 30, 0, 0, time.UTC), want: time.Date(2025, 6, 15, 8, 30, 0, 0, time.UTC)},
		{name: "now before at", now: at.Add(-time.Hour), want: time.Date(2021, 6, 15, 8, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextAnniversary(at, tt.now))
		})
	}
}

func TestNextAnniversaryLeapDay(t *testing.T) {
	leap := time.Date(2020, 2, 29, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2023, 3, 1, 12, 0, 0, 0, time.UTC),
		NextAnniversary(leap, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC),
		NextAnniversary(leap, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)))
}

func TestAddYear(t *testing.T) {
	assert.Equal(t, time.Date(2025, 1, 10, 9, 0, 1, 0, time.UTC), AddYear(time.Date(2024, 1, 10, 9, 0, 1, 0, time.UTC)))
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), AddYear(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)))
}

// steppingClock moves forward by step on every Now call. Its timers never
// fire.
type steppingClock struct {
	*clock.Manual

	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

func TestRecoverTargetElapsingDuringRestore(t *testing.T) {
	now := time.Date(2024, 1, 10, 9, 0, 0, 0, time.Local)
	target := now.Add(3 * time.Second)
	c := &steppingClock{Manual: clock.NewManual(now), now: now, step: 2 * time.Second}
	e := newTestEvent(t, c, time.Time{}, true)

	// Planning sees now+2s, arming sees now+4s.
	plan, err := e.Recover(&model.ScheduleRecord{ScheduledTime: target, Enabled: true})
	require.NoError(t, err)
	assert.Equal(t, RecoverMakeup, plan.Action)
	assert.Equal(t, target, plan.Missed)

	next := target.AddDate(1, 0, 0)
	assert.Equal(t, next, plan.At)
	ch := e.Notifications()
	assert.Equal(t, Notification{Kind: KindFired, At: target}, waitNotification(t, ch))
	assert.Equal(t, Notification{Kind: KindStateChanged, Enabled: true, At: next}, waitNotification(t, ch))
	expectNoNotification(t, ch)
	assert.True(t, e.Enabled())
}
