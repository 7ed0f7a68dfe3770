// Package workdir manages the per-job working directory that is the
// fork/exec contract surface between the broker and plugin processes:
// <run_root>/<job_id>/{meta,data}/, per spec.md §3.4.
package workdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNotFound is returned by ReadKVString/ReadKVInt when the requested meta
// file does not exist — a distinct condition from other I/O errors, since
// some callers (e.g. Poll) treat "not yet written" differently from a
// filesystem failure.
var ErrNotFound = errors.New("workdir: key not found")

// Manager roots every job directory under RunRoot.
type Manager struct {
	RunRoot string
}

// New returns a Manager rooted at runRoot.
func New(runRoot string) *Manager {
	return &Manager{RunRoot: runRoot}
}

// Dir returns the path to jobID's working directory.
func (m *Manager) Dir(jobID int32) string {
	return filepath.Join(m.RunRoot, strconv.Itoa(int(jobID)))
}

// MetaDir returns jobID's meta/ subdirectory.
func (m *Manager) MetaDir(jobID int32) string {
	return filepath.Join(m.Dir(jobID), "meta")
}

// DataDir returns jobID's data/ subdirectory.
func (m *Manager) DataDir(jobID int32) string {
	return filepath.Join(m.Dir(jobID), "data")
}

// Prepare removes any stale directory for jobID and creates a fresh
// meta/+data/ layout, per spec.md §4.4.
func (m *Manager) Prepare(jobID int32) error {
	dir := m.Dir(jobID)
	if _, err := os.Lstat(dir); err == nil {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("workdir: cleanup stale dir %s: %w", dir, err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, "meta"), 0o700); err != nil {
		return fmt.Errorf("workdir: create meta dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "data"), 0o700); err != nil {
		return fmt.Errorf("workdir: create data dir: %w", err)
	}
	return nil
}

// Inherit moves srcJobID's data/ directory into dstJobID's working
// directory, the data-handoff rule used by put (from export) and import
// (from get). dstJobID must already have been Prepare'd; srcJobID is left
// with an empty data/ directory afterward.
func (m *Manager) Inherit(srcJobID, dstJobID int32) error {
	srcData := m.DataDir(srcJobID)
	dstData := m.DataDir(dstJobID)

	// dstData was created empty by Prepare; os.Rename requires the
	// destination not exist (or be an empty directory it can replace), so
	// remove the empty shell first.
	if err := os.Remove(dstData); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("workdir: clear destination data dir: %w", err)
	}
	if err := os.Rename(srcData, dstData); err != nil {
		return fmt.Errorf("workdir: rename %s to %s: %w", srcData, dstData, err)
	}
	if err := os.MkdirAll(srcData, 0o700); err != nil {
		return fmt.Errorf("workdir: recreate source data dir: %w", err)
	}
	return nil
}

// WriteKVBytes atomically writes a meta file via a temp-file-then-rename,
// the idiomatic Go equivalent of the original's truncate+write.
func (m *Manager) WriteKVBytes(jobID int32, key string, value []byte) error {
	dir := m.Dir(jobID)
	dst := filepath.Join(dir, key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		return fmt.Errorf("workdir: create parent dir for %s: %w", key, err)
	}
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, value, 0o600); err != nil {
		return fmt.Errorf("workdir: write temp file for %s: %w", key, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("workdir: rename temp file into place for %s: %w", key, err)
	}
	return nil
}

// WriteKVString writes a meta file's content as a raw string (no trailing
// newline added), matching the original's kv_put_sval.
func (m *Manager) WriteKVString(jobID int32, key, value string) error {
	return m.WriteKVBytes(jobID, key, []byte(value))
}

// WriteKVInt writes a meta file's content as a decimal integer, matching
// the original's kv_put_ival.
func (m *Manager) WriteKVInt(jobID int32, key string, value int) error {
	return m.WriteKVBytes(jobID, key, []byte(strconv.Itoa(value)))
}

// ReadKVString reads a meta file's content as a string. Returns
// ErrNotFound if the file does not exist.
func (m *Manager) ReadKVString(jobID int32, key string) (string, error) {
	path := filepath.Join(m.Dir(jobID), key)
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("workdir: read %s: %w", key, err)
	}
	return strings.TrimSpace(string(b)), nil
}

// ReadKVInt reads a meta file's content as a decimal integer.
func (m *Manager) ReadKVInt(jobID int32, key string) (int, error) {
	s, err := m.ReadKVString(jobID, key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("workdir: %s is not an integer: %w", key, err)
	}
	return v, nil
}

// Cleanup recursively removes jobID's working directory. Invoked as the
// job transitions to DONE.
func (m *Manager) Cleanup(jobID int32) error {
	if err := os.RemoveAll(m.Dir(jobID)); err != nil {
		return fmt.Errorf("workdir: cleanup %d: %w", jobID, err)
	}
	return nil
}

// Exists reports whether jobID currently has a working directory on disk.
func (m *Manager) Exists(jobID int32) bool {
	_, err := os.Lstat(m.Dir(jobID))
	return err == nil
}
