// Package store is a thin typed adapter over a replicated directory tree
// (iCloud Drive or any other file-sync medium). It deliberately exposes the
// raw semantics of the underlying filesystem: writes are full-file
// replacements, atomic only against local readers, and there is no
// cross-host locking. Coordination correctness lives in the election
// protocol, not here.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnavailable is returned by New when the store root does not exist.
// Callers fall back to single-instance mode.
var ErrUnavailable = errors.New("shared store unavailable")

// ErrNotFound is returned by ReadJSON for a missing document.
var ErrNotFound = errors.New("document not found")

// Store reads and writes JSON documents under <root>/<app-name>/.
type Store struct {
	base string
}

// New opens the store rooted at root/app. The root itself must already
// exist (it is owned by the sync medium); the app subdirectory is created
// on demand.
func New(root, app string) (*Store, error) {
	st, err := os.Stat(root)
	if err != nil || !st.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, root)
	}
	base := filepath.Join(root, app)
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir %s: %w", base, err)
	}
	return &Store{base: base}, nil
}

// Base returns the app-scoped store directory.
func (s *Store) Base() string { return s.base }

// EnsureDir creates a subdirectory under the store base.
func (s *Store) EnsureDir(dir string) error {
	if err := os.MkdirAll(filepath.Join(s.base, dir), 0o755); err != nil {
		return fmt.Errorf("create store subdir %s: %w", dir, err)
	}
	return nil
}

// ReadJSON reads and decodes one document. dir may be "" for the base.
func (s *Store) ReadJSON(dir, name string, v any) error {
	path := s.path(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// WriteJSON encodes and writes one document as a full-file replacement.
// Write-temp-then-rename keeps local readers from observing partial writes;
// remote replication remains eventually consistent.
func (s *Store) WriteJSON(dir, name string, v any) error {
	path := s.path(dir, name)
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+name+"-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

// List returns the JSON document names in a subdirectory, sorted.
// Sync-medium droppings (hidden files, temp files) are skipped.
func (s *Store) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.base, dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes one document. Deleting a missing document is not an error.
func (s *Store) Delete(dir, name string) error {
	err := os.Remove(s.path(dir, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s/%s: %w", dir, name, err)
	}
	return nil
}

func (s *Store) path(dir, name string) string {
	if dir == "" {
		return filepath.Join(s.base, name)
	}
	return filepath.Join(s.base, dir, name)
}
