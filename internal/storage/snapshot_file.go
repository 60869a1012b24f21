package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"ammengine/internal/model"
)

// FileSnapshotStore keeps the latest snapshot in a local JSON file.
// Writes go to a temp file first and are renamed into place.
type FileSnapshotStore struct {
	Path string
	mu   sync.Mutex
}

func (s *FileSnapshotStore) LoadSnapshot(ctx context.Context) (model.Snapshot, bool, error) {
	if s == nil || s.Path == "" {
		return model.Snapshot{}, false, nil
	}
	stat, err := os.Stat(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Snapshot{}, false, nil
		}
		return model.Snapshot{}, false, fmt.Errorf("stat snapshot: %w", err)
	}
	if stat.IsDir() {
		return model.Snapshot{}, false, fmt.Errorf("snapshot path is a directory")
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return model.Snapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.Snapshot{}, false, fmt.Errorf("parse snapshot: %w", err)
	}
	return snap, true, nil
}

func (s *FileSnapshotStore) SaveSnapshot(ctx context.Context, snap model.Snapshot) error {
	if s == nil || s.Path == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(s.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot tmp: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}
