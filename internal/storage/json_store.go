package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// JSONStore keeps every key in one JSON object on disk.
type JSONStore struct {
	mu       sync.RWMutex
	filePath string
	data     map[string]json.RawMessage
}

func NewJSONStore(filePath string) *JSONStore {
	return &JSONStore{
		filePath: filePath,
		data:     map[string]json.RawMessage{},
	}
}

// Open reads the file. A missing or empty file is an empty store. A file that
// is not a JSON object is moved to CorruptPath and the store starts empty.
func (s *JSONStore) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			s.data = map[string]json.RawMessage{}
			return nil
		}
		return fmt.Errorf("failed to read file: %w", err)
	}

	if len(data) == 0 {
		s.data = map[string]json.RawMessage{}
		return nil
	}

	decoded := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		if rerr := os.Rename(s.filePath, s.CorruptPath()); rerr != nil {
			return fmt.Errorf("failed to move corrupt file aside: %w", rerr)
		}
		slog.Warn("Store file is corrupt, starting empty", "file", s.filePath, "moved_to", s.CorruptPath(), "error", err)
		s.data = map[string]json.RawMessage{}
		return nil
	}
	s.data = decoded
	return nil
}

// CorruptPath is where Open moves an unreadable store file.
func (s *JSONStore) CorruptPath() string { return s.filePath + ".corrupt" }

func (s *JSONStore) Load(_ context.Context, key string, v any) (bool, error) {
	s.mu.RLock()
	raw, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return true, nil
}

func (s *JSONStore) Save(_ context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = raw
	return s.flushLocked()
}

func (s *JSONStore) flushLocked() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		return fmt.Errorf("failed to replace file: %w", err)
	}
	return nil
}

func (s *JSONStore) Close() error { return nil }
