package localstorage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"activestats/internal/core/domain"
)

const (
	snapshotFile = "snapshot.json"
	latestFile   = "latest.json"
)

// LocalStorage implements ports.Storage for the local filesystem.
type LocalStorage struct {
	BaseDir string
}

// NewLocalStorage creates a new LocalStorage instance.
func NewLocalStorage(baseDir string) *LocalStorage {
	return &LocalStorage{BaseDir: baseDir}
}

// Save writes the snapshot to the session directory and to latest.json.
func (s *LocalStorage) Save(ctx context.Context, snap domain.Snapshot) error {
	if snap.SessionID == "" {
		return fmt.Errorf("snapshot has no session id")
	}
	path := s.GetSessionPath(snap.SessionID)
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create session directory %s: %w", path, err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := writeAtomic(filepath.Join(path, snapshotFile), data); err != nil {
		return fmt.Errorf("failed to save %s: %w", snapshotFile, err)
	}
	if err := writeAtomic(filepath.Join(s.BaseDir, latestFile), data); err != nil {
		return fmt.Errorf("failed to save %s: %w", latestFile, err)
	}
	return nil
}

// Latest reads latest.json. It returns nil, nil when nothing was saved yet.
func (s *LocalStorage) Latest(ctx context.Context) (*domain.Snapshot, error) {
	return readSnapshot(filepath.Join(s.BaseDir, latestFile))
}

// Session reads the snapshot saved for sessionID, or nil, nil if there is none.
func (s *LocalStorage) Session(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	if sessionID == "" || sessionID != filepath.Base(sessionID) {
		return nil, fmt.Errorf("invalid session id %q", sessionID)
	}
	return readSnapshot(filepath.Join(s.GetSessionPath(sessionID), snapshotFile))
}

func readSnapshot(path string) (*domain.Snapshot, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return &snap, nil
}

// GetSessionPath returns the directory holding a session's snapshot.
func (s *LocalStorage) GetSessionPath(sessionID string) string {
	return filepath.Join(s.BaseDir, "sessions", sessionID)
}

// writeAtomic replaces path so readers never see a half-written file.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
