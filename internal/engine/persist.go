package engine

import (
	"errors"

	"github.com/datallboy/gotok/internal/domain"
	"github.com/datallboy/gotok/internal/store"
)

// SaveState writes every job except completed ones. Failures are logged and
// swallowed; the in-memory table stays authoritative.
func (m *Manager) SaveState() {
	st := m.app.State
	if st == nil {
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.Lock()
	nextID := m.nextID
	records := make([]domain.Record, 0, len(m.jobs))
	for _, id := range m.sortedIDsLocked() {
		j := m.jobs[id]
		if j.Completed {
			continue
		}
		records = append(records, j.Record())
	}
	m.mu.Unlock()

	if err := st.Save(nextID, records); err != nil {
		m.log.Error("Failed to save download state: %v", err)
	}
}

// LoadState replaces the job table with the reconciled content of the state
// file. It refuses with ErrBusy while any worker is running, since loaded
// jobs are assumed to have no live process. A missing or malformed file
// results in an empty table.
func (m *Manager) LoadState() error {
	st := m.app.State
	if st == nil {
		return nil
	}
	if m.busy() {
		return ErrBusy
	}

	loaded, err := st.Load()
	if err != nil {
		if errors.Is(err, store.ErrMalformedState) {
			m.log.Error("Ignoring unreadable download state: %v", err)
		} else {
			m.log.Error("Failed to load download state: %v", err)
		}
	}
	for _, skipped := range loaded.Skipped {
		m.log.Warn("Skipping saved download: %v", skipped)
	}

	m.mu.Lock()
	if m.busyLocked() {
		m.mu.Unlock()
		return ErrBusy
	}
	var events []event
	for _, id := range m.sortedIDsLocked() {
		events = append(events, removed(id))
	}
	m.jobs = make(map[int64]*domain.Job, len(loaded.Jobs))
	m.queue = nil
	for _, j := range loaded.Jobs {
		m.jobs[j.ID] = j
		events = append(events, added(j))
	}
	m.nextID = max(m.nextID, loaded.NextID)
	events = append(events, queueChanged)
	m.mu.Unlock()

	m.log.Info("Loaded %d saved downloads", len(loaded.Jobs))
	m.emit(events)
	return nil
}

func (m *Manager) busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busyLocked()
}

func (m *Manager) busyLocked() bool {
	for _, j := range m.jobs {
		if j.State.IsActive() || j.Handle != nil {
			return true
		}
	}
	return false
}
