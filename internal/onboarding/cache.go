package onboarding

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hoff1997/CodexMyBudgetMate-sub000/pkg/envelope"
)

// FileDraftCache mirrors the onboarding draft to local disk so a remote
// outage cannot lose a half-finished setup.
type FileDraftCache struct {
	path string
}

// NewFileDraftCache returns a cache rooted at path.
func NewFileDraftCache(path string) (*FileDraftCache, error) {
	if path == "" {
		return nil, fmt.Errorf("onboarding: cache path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("onboarding: cache dir: %w", err)
	}
	return &FileDraftCache{path: path}, nil
}

// Write replaces the cached draft.
func (cache *FileDraftCache) Write(draft envelope.Draft) error {
	raw, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("onboarding: marshal draft: %w", err)
	}
	temporary := cache.path + ".tmp"
	if err := os.WriteFile(temporary, raw, 0o644); err != nil {
		return fmt.Errorf("onboarding: write draft cache: %w", err)
	}
	if err := os.Rename(temporary, cache.path); err != nil {
		return fmt.Errorf("onboarding: replace draft cache: %w", err)
	}
	return nil
}

// Read loads the cached draft; the second return is false when none exists.
func (cache *FileDraftCache) Read() (*envelope.Draft, bool, error) {
	raw, err := os.ReadFile(cache.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("onboarding: read draft cache: %w", err)
	}
	var draft envelope.Draft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return nil, false, fmt.Errorf("onboarding: decode draft cache: %w", err)
	}
	return &draft, true, nil
}

// Delete removes the cached draft once onboarding completes.
func (cache *FileDraftCache) Delete() error {
	err := os.Remove(cache.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("onboarding: delete draft cache: %w", err)
	}
	return nil
}
