package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoStatus is returned when no status record has been written yet.
var ErrNoStatus = errors.New("no status record")

// StatusChannel is the single-slot status mailbox. The monitor loop is the
// only writer; any number of processes may read.
type StatusChannel struct {
	path string
}

// NewStatusChannel binds the channel to the status slot under dir.
func NewStatusChannel(dir string) *StatusChannel {
	return &StatusChannel{path: filepath.Join(dir, StatusFile)}
}

// Path returns the slot file path.
func (s *StatusChannel) Path() string { return s.path }

// Write atomically replaces the slot with rec.
func (s *StatusChannel) Write(rec StatusRecord) error {
	if err := writeJSONAtomic(s.path, rec); err != nil {
		return fmt.Errorf("write status record: %w", err)
	}
	return nil
}

// Read returns the current record. A missing slot yields ErrNoStatus; a slot
// that cannot be decoded yields an error describing the corruption.
func (s *StatusChannel) Read() (StatusRecord, error) {
	var rec StatusRecord
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return rec, ErrNoStatus
		}
		return rec, fmt.Errorf("read status record: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decode status record: %w", err)
	}
	return rec, nil
}

// Clear removes the slot. Used when a new run starts so readers do not see a
// previous run's final record as current.
func (s *StatusChannel) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
