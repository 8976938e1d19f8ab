// Package device is the user-facing side of the alarm: it validates entered
// times, dispatches enable/disable commands, keeps the status properties
// shown to the user and persists the schedule whenever its state changes.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/noahxzhu/annual-alarm/internal/clock"
	"github.com/noahxzhu/annual-alarm/internal/model"
	"github.com/noahxzhu/annual-alarm/internal/schedule"
	"github.com/noahxzhu/annual-alarm/internal/storage"
)

const (
	CommandEnable  = "EventEnable"
	CommandDisable = "EventDisable"

	PropertySetTime = "EventSetTime"
)

const (
	msgBadFormat    = "The text entered is not in the correct format"
	msgPastTime     = "The date entered is in the past."
	msgInvalidValue = "The text entered is invalid."
	statusDisabled  = "Disabled"
)

var (
	ErrEmptyCommand    = errors.New("device: command string is empty")
	ErrUnknownCommand  = errors.New("device: unhandled command")
	ErrUnknownProperty = errors.New("device: property does not exist")
	ErrInvalidInput    = errors.New("device: invalid time")
	ErrPastTime        = errors.New("device: time is not in the future")
)

// Status mirrors the properties shown to the user.
type Status struct {
	SetTime        string
	StatusText     string
	SetTimeError   string
	EnableButton   bool
	DisableButton  bool
	Enabled        bool
	ScheduledAt    time.Time
	LastFiredAt    time.Time
	EnteredTime    string
	RecoveryAction string
}

type Options struct {
	Clock     clock.Clock
	Logger    *slog.Logger
	Recurring bool
	// ScheduleKey is the storage key of the schedule record.
	ScheduleKey string
	// OnFired is called for every firing, including a makeup firing at start.
	OnFired func(firedAt time.Time)
}

type Device struct {
	store   storage.Store
	clock   clock.Clock
	log     *slog.Logger
	key     string
	onFired func(time.Time)
	event   *schedule.Event
	done    chan struct{}

	mu      sync.Mutex
	status  Status
	closing bool
	started bool
}

func New(store storage.Store, opts Options) *Device {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ScheduleKey == "" {
		opts.ScheduleKey = storage.KeySchedule
	}
	d := &Device{
		store:   store,
		clock:   opts.Clock,
		log:     opts.Logger.With("component", "device"),
		key:     opts.ScheduleKey,
		onFired: opts.OnFired,
		done:    make(chan struct{}),
		status: Status{
			StatusText:   statusDisabled,
			EnableButton: true,
		},
	}
	d.event = schedule.New(time.Time{}, opts.Recurring,
		schedule.WithClock(opts.Clock),
		schedule.WithLogger(opts.Logger.With("component", "schedule")),
	)
	return d
}

// Start restores the stored schedule and begins processing notifications.
// A missing or unreadable record leaves the alarm disabled.
func (d *Device) Start(ctx context.Context) (schedule.Recovery, error) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return schedule.Recovery{}, errors.New("device: already started")
	}
	d.started = true
	d.mu.Unlock()

	var setTime string
	if _, err := d.store.Load(ctx, storage.KeySetTime, &setTime); err != nil {
		d.log.Debug("No time settings stored", "error", err)
		setTime = ""
	}
	d.mu.Lock()
	d.status.SetTime = setTime
	d.mu.Unlock()

	var rec *model.ScheduleRecord
	var stored model.ScheduleRecord
	ok, err := d.store.Load(ctx, d.key, &stored)
	switch {
	case err != nil:
		d.log.Warn("Stored event is unreadable, starting disabled", "error", err)
	case !ok:
		d.log.Debug("No event settings stored")
	default:
		rec = &stored
	}

	go d.run(ctx)

	plan, err := d.event.Recover(rec)
	d.mu.Lock()
	d.status.RecoveryAction = plan.Action.String()
	d.mu.Unlock()
	if err != nil {
		// The stored record is kept for the next Start.
		d.log.Error("Failed to restore stored event", "error", err)
		d.showState(false, time.Time{})
		return plan, err
	}
	if plan.Action == schedule.RecoverNone {
		d.showState(false, time.Time{})
	}
	return plan, nil
}

// SetProperty records user input. Only EventSetTime is writable.
func (d *Device) SetProperty(key string, value any) error {
	d.log.Debug("SetProperty", "key", key)
	if key != PropertySetTime {
		return fmt.Errorf("%w: %q", ErrUnknownProperty, key)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	text, ok := value.(string)
	if !ok {
		d.status.SetTimeError = msgInvalidValue
		return fmt.Errorf("%w: %T", ErrInvalidInput, value)
	}
	d.status.EnteredTime = text
	return nil
}

// Command runs one of the EventEnable / EventDisable commands.
func (d *Device) Command(ctx context.Context, cmd string) error {
	d.log.Debug("Command", "command", cmd)
	switch cmd {
	case "":
		return ErrEmptyCommand
	case CommandEnable:
		return d.enable()
	case CommandDisable:
		d.event.Disable()
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}
}

func (d *Device) enable() error {
	d.mu.Lock()
	entered := d.status.EnteredTime
	at, err := ParseTime(entered, d.clock.Now())
	if err != nil {
		if errors.Is(err, ErrPastTime) {
			d.status.SetTimeError = msgPastTime
		} else {
			d.status.SetTimeError = msgBadFormat
		}
		d.mu.Unlock()
		return err
	}
	d.status.SetTime = entered
	d.status.SetTimeError = ""
	d.mu.Unlock()

	return d.event.Enable(at)
}

func (d *Device) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Close stops the alarm. The stored record is left as it was so the next
// Start can restore it.
func (d *Device) Close() {
	d.mu.Lock()
	d.closing = true
	started := d.started
	d.mu.Unlock()

	d.event.Close()
	if started {
		<-d.done
	}
}

func (d *Device) run(ctx context.Context) {
	defer close(d.done)
	for n := range d.event.Notifications() {
		switch n.Kind {
		case schedule.KindFired:
			d.log.Info("Event Triggered", "at", n.At)
			d.mu.Lock()
			d.status.LastFiredAt = n.At
			d.mu.Unlock()
			if d.onFired != nil {
				d.onFired(n.At)
			}
		case schedule.KindStateChanged:
			d.log.Debug("Scheduled event state changed", "enabled", n.Enabled, "at", n.At)
			d.applyState(ctx, n.Enabled, n.At)
		}
	}
}

// showState updates the status properties and returns the text persisted
// as the set time.
func (d *Device) showState(enabled bool, at time.Time) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status.Enabled = enabled
	d.status.EnableButton = !enabled
	d.status.DisableButton = enabled
	if enabled {
		d.status.ScheduledAt = at
		d.status.SetTime = at.Format(model.DisplayLayout)
		d.status.StatusText = "Enabled: " + d.status.SetTime
	} else {
		d.status.SetTime = ""
		d.status.StatusText = statusDisabled
	}
	return d.status.SetTime
}

func (d *Device) applyState(ctx context.Context, enabled bool, at time.Time) {
	setTime := d.showState(enabled, at)
	d.mu.Lock()
	skip := d.closing
	d.mu.Unlock()

	if skip {
		return
	}
	if !enabled {
		// Keep the last target so the record stays meaningful.
		at = d.event.ScheduledAt()
	}
	if err := d.store.Save(ctx, d.key, model.NewScheduleRecord(at, enabled)); err != nil {
		d.log.Error("Failed to save event", "error", err)
	}
	if err := d.store.Save(ctx, storage.KeySetTime, setTime); err != nil {
		d.log.Error("Failed to save set time", "error", err)
	}
}

var inputLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"Jan 2, 2006 3:04 PM",
	"January 2, 2006 3:04 PM",
}

// ParseTime reads user input as local wall-clock time and requires it to be
// strictly after now.
func ParseTime(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidInput)
	}
	for _, layout := range inputLayouts {
		at, err := time.ParseInLocation(layout, text, time.Local)
		if err != nil {
			continue
		}
		if !at.After(now) {
			return time.Time{}, fmt.Errorf("%w: %s", ErrPastTime, at.Format(model.DisplayLayout))
		}
		return at, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidInput, text)
}
