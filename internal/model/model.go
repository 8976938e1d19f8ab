package model

import "time"

// DisplayLayout is the human-readable form stored next to a schedule.
const DisplayLayout = "1/2/2006 3:04:05 PM"

// ScheduleRecord is the persisted form of the alarm.
type ScheduleRecord struct {
	ScheduledTime time.Time `json:"scheduled_time"`
	Display       string    `json:"display"`
	Enabled       bool      `json:"enabled"`
}

func NewScheduleRecord(at time.Time, enabled bool) ScheduleRecord {
	return ScheduleRecord{
		ScheduledTime: at,
		Display:       at.Format(DisplayLayout),
		Enabled:       enabled,
	}
}

type SendStatus string

const (
	StatusPending SendStatus = "Pending"
	StatusDone    SendStatus = "Done"
	StatusFailed  SendStatus = "Failed"
)

// Delivery tracks the push sent for one firing.
type Delivery struct {
	ID           string     `json:"id"`
	FiredAt      time.Time  `json:"fired_at"`
	Status       SendStatus `json:"status"`
	Attempts     int        `json:"attempts"`
	LastPushTime time.Time  `json:"last_push_time"`
	LastError    string     `json:"last_error,omitempty"`
}

type Settings struct {
	PushoverToken string `json:"pushover_token"`
	PushoverUser  string `json:"pushover_user"`
	Title         string `json:"title"`
	Message       string `json:"message"`
	MaxRetries    int    `json:"max_retries"`
	RetryInterval string `json:"retry_interval"` // Duration string e.g. "30s"
	Password      string `json:"password"`       // Plain text
}

// WithDefaults fills in zero fields.
func (s Settings) WithDefaults() Settings {
	if s.MaxRetries == 0 {
		s.MaxRetries = 3
	}
	if s.RetryInterval == "" {
		s.RetryInterval = "30s"
	}
	if s.Title == "" {
		s.Title = "Reminder"
	}
	if s.Message == "" {
		s.Message = "Scheduled event time elapsed."
	}
	return s
}
