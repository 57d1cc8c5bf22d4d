package rulestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/signupwatch/daemon/internal/domain"
)

// FilePersister implements Persister against a single JSON file, rewritten
// in full (write-temp, fsync, rename) on every Save call (spec §3.2: "write
// -truncate semantics or equivalent").
type FilePersister struct {
	path   string
	logger *slog.Logger
}

// NewFilePersister builds a FilePersister rooted at path.
func NewFilePersister(path string, logger *slog.Logger) *FilePersister {
	return &FilePersister{path: path, logger: logger}
}

// Load reads the catalogue from disk, returning an empty slice (not an
// error) if the file does not exist yet — a fresh daemon starts with zero
// rules.
func (p *FilePersister) Load() ([]domain.Rule, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return []domain.Rule{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rulestore: read %s: %w", p.path, err)
	}
	var rules []domain.Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("rulestore: decode %s: %w", p.path, err)
	}
	return rules, nil
}

// Save atomically rewrites the catalogue file: marshal, write to a
// sibling temp file, fsync, then rename over the target. Rename is atomic
// on the same filesystem, so readers (including our own fsnotify watcher)
// never observe a partially written file.
func (p *FilePersister) Save(rules []domain.Rule) error {
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return fmt.Errorf("rulestore: encode: %w", err)
	}
	dir := filepath.Dir(p.path)
	tmp, err := os.CreateTemp(dir, ".rules-*.tmp")
	if err != nil {
		return fmt.Errorf("rulestore: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("rulestore: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("rulestore: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("rulestore: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, p.path); err != nil {
		return fmt.Errorf("rulestore: rename into place: %w", err)
	}
	return nil
}

// WatchExternalEdits watches the catalogue file for operator hand-edits
// (spec allows the file to be "operator-edited rarely") and invokes onChange
// whenever a write lands. fsnotify is the teacher's own go.mod dependency,
// previously only pulled in indirectly by viper; this is its one direct use.
func WatchExternalEdits(path string, logger *slog.Logger, onChange func()) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("rulestore: new watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("rulestore: watch %s: %w", dir, err)
	}
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					onChange()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("rulestore: watch error", "error", err)
			}
		}
	}()
	return watcher, nil
}
