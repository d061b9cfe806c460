package autosave

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hoff1997/CodexMyBudgetMate-sub000/pkg/envelope"
)

// FileBackup is a Backup writing the snapshot as JSON to a single file,
// the server-side analogue of a browser's local storage mirror. Writes go
// through a temp file plus rename so a crash never leaves a torn backup.
type FileBackup struct {
	path string
}

// NewFileBackup returns a FileBackup rooted at path.
func NewFileBackup(path string) (*FileBackup, error) {
	if path == "" {
		return nil, fmt.Errorf("autosave: backup path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("autosave: backup dir: %w", err)
	}
	return &FileBackup{path: path}, nil
}

// Write replaces the backup with the given snapshot.
func (backup *FileBackup) Write(snapshot envelope.Snapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("autosave: marshal backup: %w", err)
	}
	temporary := backup.path + ".tmp"
	if err := os.WriteFile(temporary, raw, 0o644); err != nil {
		return fmt.Errorf("autosave: write backup: %w", err)
	}
	if err := os.Rename(temporary, backup.path); err != nil {
		return fmt.Errorf("autosave: replace backup: %w", err)
	}
	return nil
}

// Read loads the backup. The second return is false when none exists.
func (backup *FileBackup) Read() (envelope.Snapshot, bool, error) {
	raw, err := os.ReadFile(backup.path)
	if errors.Is(err, fs.ErrNotExist) {
		return envelope.Snapshot{}, false, nil
	}
	if err != nil {
		return envelope.Snapshot{}, false, fmt.Errorf("autosave: read backup: %w", err)
	}
	var snapshot envelope.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return envelope.Snapshot{}, false, fmt.Errorf("autosave: decode backup: %w", err)
	}
	return snapshot, true, nil
}
