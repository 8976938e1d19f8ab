package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noahxzhu/annual-alarm/internal/model"
)

func openers(t *testing.T) map[string]func(dir string) Store {
	t.Helper()
	return map[string]func(dir string) Store{
		"json": func(dir string) Store {
			s, err := Open(Config{Driver: "json", FilePath: filepath.Join(dir, "data", "store.json")})
			require.NoError(t, err)
			return s
		},
		"sqlite": func(dir string) Store {
			s, err := Open(Config{Driver: "sqlite", DSN: filepath.Join(dir, "data", "store.db")})
			require.NoError(t, err)
			return s
		},
	}
}

func TestStoreRoundTripAcrossReopen(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	for name, open := range openers(t) {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()

			s := open(dir)
			require.NoError(t, s.Save(ctx, "ScheduledEvent", model.NewScheduleRecord(at, true)))
			require.NoError(t, s.Save(ctx, "EventSetTime", "3/1/2024 9:30 AM"))
			require.NoError(t, s.Save(ctx, "EventSetTime", "3/2/2024 9:30 AM"))
			require.NoError(t, s.Close())

			s = open(dir)
			defer s.Close()

			var rec model.ScheduleRecord
			ok, err := s.Load(ctx, "ScheduledEvent", &rec)
			require.NoError(t, err)
			require.True(t, ok)
			assert.True(t, rec.ScheduledTime.Equal(at))
			assert.True(t, rec.Enabled)
			assert.Equal(t, "3/1/2024 9:30:00 AM", rec.Display)

			var text string
			ok, err = s.Load(ctx, "EventSetTime", &text)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "3/2/2024 9:30 AM", text)
		})
	}
}

func TestStoreMissingKey(t *testing.T) {
	for name, open := range openers(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t.TempDir())
			defer s.Close()

			var rec model.ScheduleRecord
			ok, err := s.Load(context.Background(), "nope", &rec)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStoreCorruptValue(t *testing.T) {
	for name, open := range openers(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t.TempDir())
			defer s.Close()

			require.NoError(t, s.Save(context.Background(), "ScheduledEvent", "not a record"))
			var rec model.ScheduleRecord
			_, err := s.Load(context.Background(), "ScheduledEvent", &rec)
			assert.Error(t, err)
		})
	}
}

func TestJSONStoreEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	s := NewJSONStore(path)
	require.NoError(t, s.Open())
	ok, err := s.Load(context.Background(), "x", new(string))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJSONStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))

	s := NewJSONStore(path)
	require.NoError(t, s.Open())
	ok, err := s.Load(context.Background(), KeySchedule, &model.ScheduleRecord{})
	require.NoError(t, err)
	assert.False(t, ok)

	moved, err := os.ReadFile(s.CorruptPath())
	require.NoError(t, err)
	assert.Equal(t, "{", string(moved))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, s.Save(context.Background(), KeySetTime, "x"))
	var got string
	ok, err = reopenJSONStore(t, path).Load(context.Background(), KeySetTime, &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x", got)
}

func reopenJSONStore(t *testing.T, path string) *JSONStore {
	t.Helper()
	s := NewJSONStore(path)
	require.NoError(t, s.Open())
	return s
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "redis"})
	assert.ErrorIs(t, err, ErrUnknownDriver)
}
