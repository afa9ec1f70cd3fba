package engine

import (
	"errors"

	"github.com/datallboy/gotok/internal/domain"
)

var (
	// ErrBusy is returned by LoadState while downloads are running.
	ErrBusy = errors.New("downloads are running")
	// ErrMaintenanceRunning is returned when a maintenance task is already in progress.
	ErrMaintenanceRunning = errors.New("maintenance already in progress")
	// ErrDownloadsPending refuses maintenance while jobs are active or queued.
	ErrDownloadsPending = errors.New("cannot run maintenance while downloads are active or queued")
	ErrNoUpdater        = errors.New("no updater configured")
)

// Observer receives lifecycle notifications. Calls happen outside the
// manager lock on whichever goroutine caused the change; implementations
// hand off to their own execution context if they need one.
type Observer interface {
	ItemAdded(id int64, snap domain.Snapshot)
	ItemUpdated(id int64, snap domain.Snapshot)
	ItemRemoved(id int64)
	QueueChanged()
}

type eventKind int

const (
	eventAdded eventKind = iota
	eventUpdated
	eventRemoved
	eventQueueChanged
)

type event struct {
	kind eventKind
	id   int64
	snap domain.Snapshot
}

func added(j *domain.Job) event   { return event{kind: eventAdded, id: j.ID, snap: j.Snapshot()} }
func updated(j *domain.Job) event { return event{kind: eventUpdated, id: j.ID, snap: j.Snapshot()} }
func removed(id int64) event      { return event{kind: eventRemoved, id: id} }

var queueChanged = event{kind: eventQueueChanged}
