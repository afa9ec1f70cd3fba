package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/datallboy/gotok/internal/domain"
	"github.com/datallboy/gotok/internal/platform"
	"github.com/datallboy/gotok/internal/ytdlp"
	"golang.org/x/sync/errgroup"
)

// worker is the handle of one running attempt.
type worker struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Terminate cancels the attempt, which signals the process, and waits up to
// grace for the worker goroutine to finish. The runner force-kills the
// process once the same grace period has passed.
func (w *worker) Terminate(grace time.Duration) {
	w.cancel()
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-w.done:
	case <-t.C:
	}
}

type launch struct {
	id      int64
	attempt uint64
	req     ytdlp.Request
	ctx     context.Context
	worker  *worker
}

// processQueue admits queued jobs while there are free slots.
func (m *Manager) processQueue() {
	m.mu.Lock()
	if m.closed || m.maintenance.Load() {
		m.mu.Unlock()
		return
	}

	var launches []launch
	var events []event
	for m.slotsInUseLocked() < m.maxConcurrent && len(m.queue) > 0 {
		id := m.queue[0]
		m.queue = m.queue[1:]

		j, ok := m.jobs[id]
		if !ok || j.Completed || j.State.IsTerminal() {
			continue
		}

		j.Attempt++
		j.State = domain.StateStarting
		j.Progress = nil
		j.StatusText = domain.StatusLine(j.DisplayTitle(), domain.StateStarting, "")
		j.UpdatedAt = m.now()

		ctx, cancel := context.WithCancel(m.baseCtx)
		w := &worker{cancel: cancel, done: make(chan struct{})}
		j.Handle = w

		req := ytdlp.Request{
			URL:             j.URL,
			OutputDir:       m.outDir,
			Quality:         j.Quality,
			RemoveWatermark: j.RemoveWatermark,
		}
		if j.TitleKnown() {
			req.Title = j.Title
		}

		m.wg.Add(1)
		launches = append(launches, launch{id: id, attempt: j.Attempt, req: req, ctx: ctx, worker: w})
		events = append(events, updated(j))
	}
	if len(launches) > 0 {
		events = append(events, queueChanged)
	}
	m.mu.Unlock()

	if len(launches) == 0 {
		return
	}
	m.emit(events)
	for _, l := range launches {
		m.log.Debug("Starting download %d (attempt %d)", l.id, l.attempt)
		go m.runWorker(l)
	}
	m.SaveState()
}

func (m *Manager) runWorker(l launch) {
	defer m.wg.Done()
	defer close(l.worker.done)
	defer l.worker.cancel()

	res, err := m.runAttempt(l)
	switch {
	case errors.Is(err, ytdlp.ErrStopped):
		m.log.Debug("Download %d attempt %d ended by stop", l.id, l.attempt)
	case err != nil:
		m.failJob(l.id, l.attempt, err)
	default:
		m.completeJob(l.id, l.attempt, res)
	}
	m.processQueue()
}

// runAttempt converts a panic inside the runner into an ordinary failure.
func (m *Manager) runAttempt(l launch) (res ytdlp.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	if m.app.Runner == nil {
		return ytdlp.Result{}, errors.New("no download runner configured")
	}
	return m.app.Runner.Run(l.ctx, l.req, &jobHooks{m: m, id: l.id, attempt: l.attempt})
}

// currentLocked returns the job when attempt is still the live attempt and
// its reports may be applied.
func (m *Manager) currentLocked(id int64, attempt uint64) (*domain.Job, bool) {
	j, ok := m.jobs[id]
	if !ok || m.closed || j.Attempt != attempt || j.ManualStop || j.Completed || !j.State.IsActive() {
		return nil, false
	}
	return j, true
}

func (m *Manager) completeJob(id int64, attempt uint64, res ytdlp.Result) {
	m.mu.Lock()
	j, ok := m.currentLocked(id, attempt)
	if !ok {
		m.mu.Unlock()
		return
	}
	j.Completed = true
	j.State = domain.StateCompleted
	j.Progress = nil
	j.FilePath = res.FilePath
	j.LastError = ""
	j.Handle = nil
	j.StatusText = domain.StatusLine(j.Title, domain.StateCompleted, "")
	j.UpdatedAt = m.now()
	entry := domain.HistoryEntry{
		DownloadID:  j.ID,
		URL:         j.URL,
		Title:       j.Title,
		FilePath:    j.FilePath,
		Quality:     j.Quality,
		CompletedAt: j.UpdatedAt,
	}
	events := []event{updated(j), queueChanged}
	m.mu.Unlock()

	m.log.Info("Download %d completed: %s", id, res.FilePath)
	m.emit(events)
	m.recordHistory(entry)
	m.notify(true)
	m.SaveState()
}

func (m *Manager) failJob(id int64, attempt uint64, err error) {
	m.mu.Lock()
	j, ok := m.currentLocked(id, attempt)
	if !ok {
		m.mu.Unlock()
		m.log.Debug("Ignoring failure of download %d attempt %d: %v", id, attempt, err)
		return
	}

	var missing *platform.MissingBinariesError
	retryable := !errors.As(err, &missing)

	j.LastError = err.Error()
	j.Progress = nil
	j.Handle = nil
	j.UpdatedAt = m.now()
	if retryable && j.RetryCount < m.maxRetries {
		j.RetryCount++
		j.State = domain.StateRetrying
		j.StatusText = domain.StatusLine(j.DisplayTitle(), domain.StateRetrying,
			fmt.Sprintf("Retrying... (%d/%d)", j.RetryCount, m.maxRetries))
		m.removeFromQueueLocked(id)
		m.queue = append(m.queue, id)
	} else {
		j.State = domain.StateError
		j.StatusText = domain.StatusLine(j.Title, domain.StateError, "")
	}
	state, retries := j.State, j.RetryCount
	events := []event{updated(j), queueChanged}
	m.mu.Unlock()

	if state == domain.StateRetrying {
		m.log.Warn("Download %d failed, retry %d/%d: %v", id, retries, m.maxRetries, err)
	} else {
		m.log.Error("Download %d failed: %v", id, err)
	}
	m.emit(events)
	if state == domain.StateError {
		m.notify(false)
	}
	m.SaveState()
}

func (m *Manager) recordHistory(e domain.HistoryEntry) {
	if m.app.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := m.app.History.RecordCompletion(ctx, e); err != nil {
		m.log.Error("Failed to record history for download %d: %v", e.DownloadID, err)
	}
}

func (m *Manager) notify(success bool) {
	if m.app.Notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Warn("notifier panic: %v", r)
		}
	}()
	m.app.Notifier.Notify(success)
}

// terminateAll stops every handle concurrently; each waits at most stopGrace.
func (m *Manager) terminateAll(stops []pendingStop) {
	var g errgroup.Group
	for _, ps := range stops {
		if ps.handle == nil {
			continue
		}
		h := ps.handle
		g.Go(func() error {
			h.Terminate(m.stopGrace)
			return nil
		})
	}
	_ = g.Wait()
}

// jobHooks feeds runner events for one attempt back into the manager.
type jobHooks struct {
	m       *Manager
	id      int64
	attempt uint64
}

func (h *jobHooks) TitleResolved(title string) {
	m := h.m
	m.mu.Lock()
	j, ok := m.currentLocked(h.id, h.attempt)
	if !ok {
		m.mu.Unlock()
		return
	}
	j.Title = title
	j.UpdatedAt = m.now()
	events := []event{updated(j)}
	m.mu.Unlock()
	m.emit(events)
}

func (h *jobHooks) Destination(path string) {
	m := h.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.currentLocked(h.id, h.attempt); ok {
		j.CurrentFilename = path
	}
}

func (h *jobHooks) Update(u ytdlp.Update) {
	m := h.m
	m.mu.Lock()
	j, ok := m.currentLocked(h.id, h.attempt)
	if !ok || !domain.CanTransition(j.State, u.State) {
		m.mu.Unlock()
		return
	}
	j.State = u.State
	j.Progress = nil
	if u.State == domain.StateDownloading && u.Percent != nil {
		p := *u.Percent
		j.Progress = &p
	}
	j.StatusText = domain.StatusLine(j.DisplayTitle(), u.State, u.Detail)
	j.UpdatedAt = m.now()
	events := []event{updated(j)}
	m.mu.Unlock()
	m.emit(events)
}

func (h *jobHooks) Stopped() bool {
	m := h.m
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[h.id]
	return !ok || m.closed || j.ManualStop || j.Attempt != h.attempt
}
