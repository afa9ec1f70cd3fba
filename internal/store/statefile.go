package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/datallboy/gotok/internal/domain"
)

const StateVersion = 2

// ErrMalformedState is returned alongside an empty state when the state
// file exists but cannot be decoded.
var ErrMalformedState = errors.New("malformed state file")

type stateDocument struct {
	Version        int                      `json:"version"`
	NextDownloadID int64                    `json:"next_download_id"`
	Downloads      map[string]domain.Record `json:"downloads"`
}

// LoadedState is the reconciled content of a state file.
type LoadedState struct {
	NextID int64
	Jobs   []*domain.Job
	// Skipped holds one error per record that could not be rebuilt.
	Skipped []error
}

// StateFile persists the live job table as a single JSON document.
type StateFile struct {
	path string
}

func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

func (s *StateFile) Path() string { return s.path }

// Save atomically replaces the state file with records.
func (s *StateFile) Save(nextID int64, records []domain.Record) error {
	doc := stateDocument{
		Version:        StateVersion,
		NextDownloadID: nextID,
		Downloads:      make(map[string]domain.Record, len(records)),
	}
	for _, r := range records {
		doc.Downloads[strconv.FormatInt(r.ID, 10)] = r
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	return writeFileAtomic(s.path, append(b, '\n'))
}

// Load reads and reconciles the state file. A missing file yields an empty
// state and no error. A malformed file yields an empty state and an error
// wrapping ErrMalformedState.
func (s *StateFile) Load() (LoadedState, error) {
	empty := LoadedState{NextID: 1}

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return empty, nil
	}
	if err != nil {
		return empty, fmt.Errorf("read state %s: %w", s.path, err)
	}

	nextID, records, err := decodeState(b)
	if err != nil {
		return empty, fmt.Errorf("%w: %s: %v", ErrMalformedState, s.path, err)
	}

	out := LoadedState{}
	var maxID int64
	now := time.Now()
	for key, rec := range records {
		job, err := domain.JobFromRecord(key, rec)
		if err != nil {
			out.Skipped = append(out.Skipped, err)
			continue
		}
		Reconcile(job, now)
		out.Jobs = append(out.Jobs, job)
		maxID = max(maxID, job.ID)
	}
	sort.Slice(out.Jobs, func(i, j int) bool { return out.Jobs[i].ID < out.Jobs[j].ID })
	out.NextID = max(nextID, maxID+1, 1)
	return out, nil
}

func decodeState(b []byte) (int64, map[string]domain.Record, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return 0, nil, err
	}

	if _, ok := raw["downloads"]; ok {
		var doc stateDocument
		if err := json.Unmarshal(b, &doc); err != nil {
			return 0, nil, err
		}
		if doc.Downloads == nil {
			doc.Downloads = map[string]domain.Record{}
		}
		return doc.NextDownloadID, doc.Downloads, nil
	}

	// Legacy layout: a flat id -> record mapping.
	records := make(map[string]domain.Record, len(raw))
	for key, msg := range raw {
		var rec domain.Record
		if err := json.Unmarshal(msg, &rec); err != nil {
			return 0, nil, fmt.Errorf("record %q: %w", key, err)
		}
		records[key] = rec
	}
	return 0, records, nil
}

// Reconcile forces a job loaded from disk into a state that is valid for a
// fresh process: nothing can still be running.
func Reconcile(j *domain.Job, now time.Time) {
	j.Handle = nil
	j.Attempt = 0
	j.Progress = nil
	if j.State.IsTerminal() {
		return
	}
	j.State = domain.StateInterrupted
	j.StatusText = domain.StatusLine(j.DisplayTitle(), domain.StateInterrupted, "")
	j.UpdatedAt = now
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
