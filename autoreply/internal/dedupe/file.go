package dedupe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore persists identifiers as a JSON array of strings. Persist writes a
// temporary file in the same directory, fsyncs it, renames it over the target
// and fsyncs the directory, so a crash at any point leaves either the old or
// the new list on disk, never a partial one.
type FileStore struct {
	path  string
	set   set
	dirty bool
}

// NewFileStore creates a FileStore for path. Call Load before use.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, set: newSet()}
}

func (f *FileStore) Contains(id string) bool { return f.set.contains(id) }

func (f *FileStore) Record(id string) {
	if f.set.add(id) {
		f.dirty = true
	}
}

func (f *FileStore) Len() int      { return len(f.set.order) }
func (f *FileStore) IDs() []string { return f.set.snapshot() }
func (f *FileStore) Close() error  { return nil }
func (f *FileStore) Path() string  { return f.path }

// Load reads the file and merges its identifiers. A missing file is an empty
// set. Numeric identifiers (written by older versions) are accepted and
// converted to their decimal string form.
func (f *FileStore) Load(_ context.Context) error {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("dedupe: read %s: %w", f.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	ids, err := decodeIDs(data)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, f.path, err)
	}
	for _, id := range ids {
		f.set.add(id)
	}
	return nil
}

func decodeIDs(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(raw))
	for i, v := range raw {
		switch x := v.(type) {
		case string:
			ids = append(ids, x)
		case json.Number:
			ids = append(ids, x.String())
		default:
			return nil, fmt.Errorf("element %d: unexpected %T", i, v)
		}
	}
	return ids, nil
}

// Persist writes the whole set atomically. It is a no-op when nothing was
// recorded since the last successful Persist.
func (f *FileStore) Persist(_ context.Context) error {
	if !f.dirty {
		return nil
	}
	data, err := json.MarshalIndent(f.set.order, "", "  ")
	if err != nil {
		return fmt.Errorf("dedupe: marshal: %w", err)
	}
	if err := writeFileAtomic(f.path, data); err != nil {
		return err
	}
	f.dirty = false
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("dedupe: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("dedupe: create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("dedupe: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("dedupe: fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("dedupe: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("dedupe: rename: %w", err)
	}

	// The rename is only durable once the directory entry is flushed.
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("dedupe: open dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("dedupe: fsync dir: %w", err)
	}
	return nil
}
