// Package main - tracker.go
//
// Durable tracking of which expansions have been completed.
//
// The tracker owns a small JSON state file surviving restarts. Every mutation
// is written through an atomic temp-file-then-rename so a crash mid-write
// leaves either the old state or the new state on disk, never a torn file.
// A persistence failure is surfaced as a PersistError and treated as fatal
// by the caller: running on without durable state would silently repeat
// completed expansions.
//
// A reset sentinel file, dropped next to the state file by the operator (or
// the reset command), clears all completion marks at the next loop iteration
// and is consumed in the process.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ExpansionRecord is the persisted state of one expansion
type ExpansionRecord struct {
	ID            string     `json:"id"`
	Completed     bool       `json:"completed"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	LastAttempted *time.Time `json:"last_attempted,omitempty"`
}

// trackerState is the on-disk document
type trackerState struct {
	UpdatedAt  time.Time         `json:"updated_at"`
	Expansions []ExpansionRecord `json:"expansions"`
}

// ExpansionTracker persists expansion completion across restarts.
//
// The tracker is used only from the control goroutine; it does not lock.
type ExpansionTracker struct {
	path    string
	records map[string]ExpansionRecord
	order   []string
}

// NewExpansionTracker loads (or initializes) the tracker backed by the state
// file at path. A missing file means a fresh start; a corrupt file is an
// error rather than a silent reset.
func NewExpansionTracker(path string) (*ExpansionTracker, error) {
	t := &ExpansionTracker{
		path:    path,
		records: make(map[string]ExpansionRecord),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		LogInfo("No expansion state at %s, starting fresh", path)
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read expansion state %s: %w", path, err)
	}

	var state trackerState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("corrupt expansion state %s: %w", path, err)
	}
	for _, rec := range state.Expansions {
		t.records[rec.ID] = rec
		t.order = append(t.order, rec.ID)
	}
	LogInfo("Loaded expansion state: %d records, %d completed", len(t.records), t.completedCount())
	return t, nil
}

// IsCompleted reports whether the expansion has been marked completed
func (t *ExpansionTracker) IsCompleted(id string) bool {
	return t.records[id].Completed
}

// NextExpansion returns the first entry of known not yet completed, or
// ok=false when every known expansion is done.
func (t *ExpansionTracker) NextExpansion(known []string) (string, bool) {
	for _, id := range known {
		if !t.records[id].Completed {
			return id, true
		}
	}
	return "", false
}

// MarkCompleted records an expansion as completed and persists immediately.
// Marking an already-completed expansion is a no-op and does not rewrite the
// file.
func (t *ExpansionTracker) MarkCompleted(id string) error {
	rec := t.record(id)
	if rec.Completed {
		LogDebug("Expansion %s already completed, nothing to do", id)
		return nil
	}
	now := time.Now().UTC()
	rec.Completed = true
	rec.CompletedAt = &now
	t.records[id] = rec

	if err := t.save(); err != nil {
		return err
	}
	LogInfo("Expansion %s marked completed (%d/%d done)", id, t.completedCount(), len(t.records))
	return nil
}

// MarkAttempted stamps the expansion with the current time and persists
func (t *ExpansionTracker) MarkAttempted(id string) error {
	rec := t.record(id)
	now := time.Now().UTC()
	rec.LastAttempted = &now
	t.records[id] = rec
	return t.save()
}

// Reset clears all completion marks and persists the cleared state
func (t *ExpansionTracker) Reset() error {
	for id, rec := range t.records {
		rec.Completed = false
		rec.CompletedAt = nil
		t.records[id] = rec
	}
	if err := t.save(); err != nil {
		return err
	}
	LogInfo("Expansion state reset: all completion marks cleared")
	return nil
}

// ConsumeResetSignal checks for the reset sentinel file; when present it
// resets the tracker and removes the sentinel. Returns whether a reset ran.
func (t *ExpansionTracker) ConsumeResetSignal(flagPath string) (bool, error) {
	if _, err := os.Stat(flagPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check reset sentinel %s: %w", flagPath, err)
	}

	LogInfo("Reset sentinel %s found", flagPath)
	if err := t.Reset(); err != nil {
		return false, err
	}
	if err := os.Remove(flagPath); err != nil {
		return false, fmt.Errorf("failed to remove reset sentinel %s: %w", flagPath, err)
	}
	return true, nil
}

// record returns the record for id, registering it on first reference
func (t *ExpansionTracker) record(id string) ExpansionRecord {
	rec, ok := t.records[id]
	if !ok {
		rec = ExpansionRecord{ID: id}
		t.order = append(t.order, id)
	}
	return rec
}

func (t *ExpansionTracker) completedCount() int {
	n := 0
	for _, rec := range t.records {
		if rec.Completed {
			n++
		}
	}
	return n
}

// save writes the state atomically: marshal to a temp file in the same
// directory, fsync, then rename over the real file.
func (t *ExpansionTracker) save() error {
	state := trackerState{UpdatedAt: time.Now().UTC()}
	for _, id := range t.order {
		state.Expansions = append(state.Expansions, t.records[id])
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return &PersistError{Path: t.path, Err: err}
	}

	dir := filepath.Dir(t.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(t.path)+".tmp-*")
	if err != nil {
		return &PersistError{Path: t.path, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &PersistError{Path: t.path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &PersistError{Path: t.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &PersistError{Path: t.path, Err: err}
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		os.Remove(tmpName)
		return &PersistError{Path: t.path, Err: err}
	}
	return nil
}
