// Package state persists the one durable key the coordinator owns: the
// current session id. Absent file means no session is active.
package state

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mkhas/Rescue/internal/core"
	"github.com/mkhas/Rescue/internal/domain"
)

type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

type record struct {
	SessionID string `json:"sessionId"`
}

func (s *FileStore) Load() (domain.SessionID, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", false, err
	}
	if rec.SessionID == "" {
		return "", false, nil
	}
	return domain.SessionID(rec.SessionID), true, nil
}

// Save writes atomically; a crash mid-save never leaves a torn file.
func (s *FileStore) Save(id domain.SessionID) error {
	data, err := json.Marshal(record{SessionID: string(id)})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

var _ core.StateStore = (*FileStore)(nil)
