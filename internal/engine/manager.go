package engine

import (
	"context"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/datallboy/gotok/internal/app"
	"github.com/datallboy/gotok/internal/domain"
	"github.com/datallboy/gotok/internal/infra/logger"
	"github.com/datallboy/gotok/internal/ytdlp"
)

// Manager owns the job table and the FIFO queue. Both are guarded by mu and
// are only reachable through the methods below; callers get snapshots.
type Manager struct {
	app *app.Context
	log *logger.Logger

	maxConcurrent int
	maxRetries    int
	stopGrace     time.Duration
	outDir        string

	// saveMu is taken before mu so state file writes land in snapshot order.
	saveMu sync.Mutex

	mu     sync.Mutex
	jobs   map[int64]*domain.Job
	queue  []int64
	nextID int64
	closed bool
	// stopping counts stopped jobs whose worker has not been terminated
	// yet. Their slots stay taken until finishStops releases them.
	stopping int

	maintenance atomic.Bool

	obsMu     sync.RWMutex
	observers []Observer

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	now func() time.Time
}

// NewManager builds a manager from the application context. Limits come from
// the download config section.
func NewManager(appCtx *app.Context) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := appCtx.Config

	log := appCtx.Logger
	if log == nil {
		log = logger.Discard()
	}

	m := &Manager{
		app:           appCtx,
		log:           log,
		maxConcurrent: cfg.Download.MaxConcurrent,
		maxRetries:    cfg.Download.MaxRetries,
		stopGrace:     cfg.YTDLP.StopGrace,
		outDir:        cfg.Download.OutDir,
		jobs:          make(map[int64]*domain.Job),
		nextID:        1,
		baseCtx:       ctx,
		cancel:        cancel,
		now:           time.Now,
	}
	if m.maxConcurrent <= 0 {
		m.maxConcurrent = 1
	}
	return m
}

// StartDownload creates a queued job, schedules it and returns its id.
func (m *Manager) StartDownload(url, quality, knownTitle string, removeWatermark bool) int64 {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	j := domain.NewJob(id, strings.TrimSpace(url), quality, knownTitle, removeWatermark, m.now())
	m.jobs[id] = j
	m.queue = append(m.queue, id)
	events := []event{added(j), queueChanged}
	m.mu.Unlock()

	m.log.Info("Queued download %d: %s", id, j.URL)
	m.emit(events)
	m.SaveState()
	m.processQueue()
	return id
}

// RetryDownload resets a finished, failed or stopped job and puts it at the
// tail of the queue. Unknown ids and running jobs are left alone.
func (m *Manager) RetryDownload(id int64) bool {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok || j.State.IsActive() {
		m.mu.Unlock()
		return false
	}
	j.ResetForRetry(m.now())
	m.removeFromQueueLocked(id)
	m.queue = append(m.queue, id)
	events := []event{updated(j), queueChanged}
	m.mu.Unlock()

	m.log.Info("Retrying download %d", id)
	m.emit(events)
	m.SaveState()
	m.processQueue()
	return true
}

// pendingStop is the work left after a job was marked stopped under the lock.
type pendingStop struct {
	id       int64
	handle   domain.Handle
	title    string
	filename string
}

// stopLocked marks j as manually stopped. The caller holds m.mu.
func (m *Manager) stopLocked(j *domain.Job) pendingStop {
	ps := pendingStop{id: j.ID, handle: j.Handle, filename: j.CurrentFilename}
	if j.TitleKnown() {
		ps.title = j.Title
	}

	if ps.handle != nil {
		m.stopping++
	}
	m.removeFromQueueLocked(j.ID)
	j.ManualStop = true
	j.Handle = nil
	j.State = domain.StateStopped
	j.Progress = nil
	j.StatusText = domain.StatusLine(j.DisplayTitle(), domain.StateStopped, "")
	j.UpdatedAt = m.now()
	return ps
}

// finishStops terminates workers and removes partial files. Must be called
// without m.mu held.
func (m *Manager) finishStops(stops []pendingStop, downloadDir string) {
	if len(stops) == 0 {
		return
	}
	if downloadDir == "" {
		downloadDir = m.outDir
	}

	m.terminateAll(stops)

	m.mu.Lock()
	for _, ps := range stops {
		if ps.handle != nil {
			m.stopping--
		}
	}
	m.mu.Unlock()

	dirs := []string{downloadDir}
	if m.app.Runner != nil {
		dirs = append(dirs, m.app.Runner.TempDir())
	}
	for _, ps := range stops {
		if ps.filename == "" && ps.title == "" {
			continue
		}
		for _, p := range ytdlp.CleanupPartials(dirs, ps.title, ps.filename) {
			m.log.Debug("Removed partial file %s of download %d", p, ps.id)
		}
	}
}

// StopDownload cancels a queued or running job. Jobs that already reached a
// terminal state are left untouched.
func (m *Manager) StopDownload(id int64, downloadDir string) bool {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok || j.State.IsTerminal() {
		m.mu.Unlock()
		return false
	}
	ps := m.stopLocked(j)
	events := []event{updated(j), queueChanged}
	m.mu.Unlock()

	m.log.Info("Stopped download %d", id)
	m.emit(events)
	m.finishStops([]pendingStop{ps}, downloadDir)
	m.SaveState()
	m.processQueue()
	return true
}

// StopAll stops every job that is not terminal and returns how many it stopped.
func (m *Manager) StopAll(downloadDir string) int {
	m.mu.Lock()
	var stops []pendingStop
	var events []event
	for _, id := range m.sortedIDsLocked() {
		j := m.jobs[id]
		if j.State.IsTerminal() {
			continue
		}
		stops = append(stops, m.stopLocked(j))
		events = append(events, updated(j))
	}
	if len(stops) > 0 {
		events = append(events, queueChanged)
	}
	m.mu.Unlock()

	if len(stops) == 0 {
		return 0
	}
	m.log.Info("Stopped %d downloads", len(stops))
	m.emit(events)
	m.finishStops(stops, downloadDir)
	m.SaveState()
	m.processQueue()
	return len(stops)
}

// RemoveDownload stops the job if needed and deletes it from the table.
func (m *Manager) RemoveDownload(id int64, downloadDir string) bool {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	var stops []pendingStop
	if !j.State.IsTerminal() {
		stops = append(stops, m.stopLocked(j))
	}
	delete(m.jobs, id)
	m.removeFromQueueLocked(id)
	events := []event{removed(id), queueChanged}
	m.mu.Unlock()

	m.log.Info("Removed download %d", id)
	m.emit(events)
	m.finishStops(stops, downloadDir)
	m.SaveState()
	if len(stops) > 0 {
		m.processQueue()
	}
	return true
}

// ClearCompleted drops every completed job and returns the count.
func (m *Manager) ClearCompleted() int {
	m.mu.Lock()
	var events []event
	for _, id := range m.sortedIDsLocked() {
		if m.jobs[id].Completed {
			delete(m.jobs, id)
			events = append(events, removed(id))
		}
	}
	n := len(events)
	if n > 0 {
		events = append(events, queueChanged)
	}
	m.mu.Unlock()

	if n == 0 {
		return 0
	}
	m.emit(events)
	m.SaveState()
	return n
}

// OpenFileLocation reveals the finished file, or opens downloadDir when the
// file is gone. It reports whether anything could be opened.
func (m *Manager) OpenFileLocation(id int64, downloadDir string) bool {
	opener := m.app.Opener
	if opener == nil {
		return false
	}

	m.mu.Lock()
	j, ok := m.jobs[id]
	var path string
	if ok {
		path = j.FilePath
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			err := opener.RevealFile(path)
			if err == nil {
				return true
			}
			m.log.Warn("Could not reveal %s: %v", path, err)
		}
	}

	if downloadDir == "" {
		downloadDir = m.outDir
	}
	if err := opener.OpenDir(downloadDir); err != nil {
		m.log.Warn("Could not open %s: %v", downloadDir, err)
		return false
	}
	return true
}

// Snapshot returns a copy of one job.
func (m *Manager) Snapshot(id int64) (domain.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return domain.Snapshot{}, false
	}
	return j.Snapshot(), true
}

// Snapshots returns copies of all jobs ordered by id.
func (m *Manager) Snapshots() []domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Snapshot, 0, len(m.jobs))
	for _, id := range m.sortedIDsLocked() {
		out = append(out, m.jobs[id].Snapshot())
	}
	return out
}

func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeCountLocked()
}

func (m *Manager) QueuedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// IsURLActive reports whether url belongs to a job that has not finished.
func (m *Manager) IsURLActive(url string) bool {
	url = strings.TrimSpace(url)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.URL == url && !j.State.IsTerminal() {
			return true
		}
	}
	return false
}

// Stats combines live counts with the stored completion counter.
func (m *Manager) Stats(ctx context.Context) domain.Stats {
	m.mu.Lock()
	s := domain.Stats{Active: m.activeCountLocked(), Queued: len(m.queue)}
	m.mu.Unlock()

	if m.app.History != nil {
		total, err := m.app.History.TotalDownloads(ctx)
		if err != nil {
			m.log.Warn("Could not read download counter: %v", err)
		}
		s.TotalDownloads = total
	}
	return s
}

// MarkAllInterruptedAndTerminateProcesses is the shutdown hook: it kills
// every worker, marks unfinished jobs Interrupted and persists.
func (m *Manager) MarkAllInterruptedAndTerminateProcesses() {
	m.mu.Lock()
	m.closed = true
	var stops []pendingStop
	var events []event
	now := m.now()
	for _, id := range m.sortedIDsLocked() {
		j := m.jobs[id]
		if j.Handle != nil {
			stops = append(stops, pendingStop{id: id, handle: j.Handle})
			j.Handle = nil
		}
		if j.State.IsTerminal() {
			continue
		}
		j.State = domain.StateInterrupted
		j.Progress = nil
		j.StatusText = domain.StatusLine(j.DisplayTitle(), domain.StateInterrupted, "")
		j.UpdatedAt = now
		events = append(events, updated(j))
	}
	m.queue = nil
	events = append(events, queueChanged)
	m.mu.Unlock()

	m.emit(events)
	m.terminateAll(stops)
	m.cancel()
	m.SaveState()
}

// Wait blocks until every worker goroutine has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// slotsInUseLocked is what admission counts against maxConcurrent.
func (m *Manager) slotsInUseLocked() int {
	return m.activeCountLocked() + m.stopping
}

func (m *Manager) activeCountLocked() int {
	n := 0
	for _, j := range m.jobs {
		if j.State.IsActive() {
			n++
		}
	}
	return n
}

func (m *Manager) removeFromQueueLocked(id int64) {
	m.queue = slices.DeleteFunc(m.queue, func(q int64) bool { return q == id })
}

func (m *Manager) sortedIDsLocked() []int64 {
	ids := make([]int64, 0, len(m.jobs))
	for id := range m.jobs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, k int) bool { return ids[i] < ids[k] })
	return ids
}

// ResetStats zeroes the stored completion counter. History rows are kept.
func (m *Manager) ResetStats(ctx context.Context) error {
	if m.app.History == nil {
		return nil
	}
	return m.app.History.ResetStats(ctx)
}

// History lists completed downloads, newest first.
func (m *Manager) History(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	if m.app.History == nil {
		return nil, nil
	}
	return m.app.History.ListHistory(ctx, limit)
}
