// Package marker persists the "last active tenant" key in a single small
// file outside the document store. The marker survives a store
// re-creation and is readable before the database is opened, which is
// what lets a restart restore the selection before the tenant list loads.
package marker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Marker is a durable single-value slot holding a tenant key.
type Marker struct {
	path string
}

// New creates a marker backed by the file at path. The file is not
// created until the first Write.
func New(path string) *Marker {
	return &Marker{path: path}
}

// Read returns the stored tenant key. ok is false when no selection has
// been recorded or the file content is unreadable as a key.
func (m *Marker) Read() (key int64, ok bool, err error) {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read selection marker: %w", err)
	}
	key, perr := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if perr != nil {
		// A mangled marker is treated as no selection; the switcher falls
		// back to the stored active flag.
		return 0, false, nil
	}
	return key, true, nil
}

// Write records the tenant key. The write is atomic: a temp file in the
// same directory is renamed over the target, so a crash leaves either the
// old value or the new one, never a torn file.
func (m *Marker) Write(key int64) error {
	dir := filepath.Dir(m.path)
	tmp, err := os.CreateTemp(dir, ".marker-*")
	if err != nil {
		return fmt.Errorf("write selection marker: %w", err)
	}
	tmpName := tmp.Name()
	_, werr := tmp.WriteString(strconv.FormatInt(key, 10) + "\n")
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmpName)
		if werr != nil {
			return fmt.Errorf("write selection marker: %w", werr)
		}
		return fmt.Errorf("write selection marker: %w", cerr)
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write selection marker: %w", err)
	}
	return nil
}

// Clear removes the marker. Clearing an absent marker is a no-op.
func (m *Marker) Clear() error {
	err := os.Remove(m.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear selection marker: %w", err)
	}
	return nil
}
