package storage

import (
	"context"
	"errors"
	"fmt"
)

var ErrUnknownDriver = errors.New("storage: unknown driver")

// Store is a small key/value settings store. Values are JSON encoded.
type Store interface {
	// Load decodes the value under key into v. It reports false when the key
	// is absent.
	Load(ctx context.Context, key string, v any) (bool, error)
	Save(ctx context.Context, key string, v any) error
	Close() error
}

type Config struct {
	Driver   string
	FilePath string
	DSN      string
}

func Open(cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "json":
		s := NewJSONStore(cfg.FilePath)
		if err := s.Open(); err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		return OpenSQLite(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
