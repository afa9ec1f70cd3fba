package engine

import "context"

// UpdateTool runs the yt-dlp self-update. Scheduling is paused for the
// duration and the call is refused while anything is running or queued.
func (m *Manager) UpdateTool(ctx context.Context) (string, error) {
	if m.app.Updater == nil {
		return "", ErrNoUpdater
	}
	if !m.maintenance.CompareAndSwap(false, true) {
		return "", ErrMaintenanceRunning
	}
	defer func() {
		m.maintenance.Store(false)
		m.processQueue()
	}()

	m.mu.Lock()
	pending := m.slotsInUseLocked() > 0 || len(m.queue) > 0
	m.mu.Unlock()
	if pending {
		return "", ErrDownloadsPending
	}

	m.log.Info("Updating yt-dlp")
	msg, err := m.app.Updater.SelfUpdate(ctx)
	if err != nil {
		m.log.Error("yt-dlp update failed: %v", err)
		return "", err
	}
	m.log.Info("%s", msg)
	return msg, nil
}

// Maintenance reports whether a maintenance task currently pauses scheduling.
func (m *Manager) Maintenance() bool {
	return m.maintenance.Load()
}
