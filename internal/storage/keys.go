package storage

import (
	"context"

	"github.com/noahxzhu/annual-alarm/internal/model"
)

const (
	KeySettings     = "Settings"
	KeySchedule     = "ScheduledEvent"
	KeySetTime      = "EventSetTime"
	KeyLastDelivery = "LastDelivery"
)

// GetSettings returns the stored settings with defaults applied. A missing or
// unreadable entry yields the defaults.
func GetSettings(ctx context.Context, s Store) (model.Settings, error) {
	var settings model.Settings
	if _, err := s.Load(ctx, KeySettings, &settings); err != nil {
		return model.Settings{}.WithDefaults(), err
	}
	return settings.WithDefaults(), nil
}

func UpdateSettings(ctx context.Context, s Store, settings model.Settings) error {
	return s.Save(ctx, KeySettings, settings)
}
