package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/datallboy/gotok/internal/app"
	"github.com/datallboy/gotok/internal/domain"
	"github.com/datallboy/gotok/internal/infra/config"
	"github.com/datallboy/gotok/internal/infra/logger"
	"github.com/datallboy/gotok/internal/ytdlp"
)

type outcome struct {
	res ytdlp.Result
	err error
}

type fakeRun struct {
	req   ytdlp.Request
	hooks ytdlp.Hooks
	out   chan outcome
}

func (r *fakeRun) succeed(path string) { r.out <- outcome{res: ytdlp.Result{FilePath: path}} }
func (r *fakeRun) fail(err error)      { r.out <- outcome{err: err} }

// fakeRunner blocks every Run until the test decides its outcome.
type fakeRunner struct {
	tempDir      string
	ignoreCancel bool
	runs         chan *fakeRun

	// held keeps runs pulled by nextFor that belong to other URLs.
	mu   sync.Mutex
	held []*fakeRun
}

func newFakeRunner(t *testing.T) *fakeRunner {
	return &fakeRunner{tempDir: t.TempDir(), runs: make(chan *fakeRun, 64)}
}

func (f *fakeRunner) TempDir() string { return f.tempDir }

func (f *fakeRunner) Run(ctx context.Context, req ytdlp.Request, hooks ytdlp.Hooks) (ytdlp.Result, error) {
	r := &fakeRun{req: req, hooks: hooks, out: make(chan outcome, 1)}
	f.runs <- r
	if f.ignoreCancel {
		o := <-r.out
		return o.res, o.err
	}
	select {
	case o := <-r.out:
		return o.res, o.err
	case <-ctx.Done():
		return ytdlp.Result{}, ytdlp.ErrStopped
	}
}

// next returns the next run in arrival order. Workers are separate
// goroutines, so arrival order is not admission order.
func (f *fakeRunner) next(t *testing.T) *fakeRun {
	t.Helper()
	f.mu.Lock()
	if len(f.held) > 0 {
		r := f.held[0]
		f.held = f.held[1:]
		f.mu.Unlock()
		return r
	}
	f.mu.Unlock()
	select {
	case r := <-f.runs:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("runner was not called")
		return nil
	}
}

// nextFor returns the run for url, holding back runs for other URLs.
func (f *fakeRunner) nextFor(t *testing.T, url string) *fakeRun {
	t.Helper()
	f.mu.Lock()
	for i, r := range f.held {
		if r.req.URL == url {
			f.held = append(f.held[:i:i], f.held[i+1:]...)
			f.mu.Unlock()
			return r
		}
	}
	f.mu.Unlock()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case r := <-f.runs:
			if r.req.URL == url {
				return r
			}
			f.mu.Lock()
			f.held = append(f.held, r)
			f.mu.Unlock()
		case <-deadline:
			t.Fatalf("runner was not called for %s", url)
			return nil
		}
	}
}

func (f *fakeRunner) expectIdle(t *testing.T) {
	t.Helper()
	select {
	case r := <-f.runs:
		t.Fatalf("unexpected run for %s", r.req.URL)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeNotifier struct {
	mu      sync.Mutex
	results []bool
}

func (n *fakeNotifier) Notify(success bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, success)
}

func (n *fakeNotifier) calls() []bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]bool(nil), n.results...)
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []domain.HistoryEntry
}

func (h *fakeHistory) RecordCompletion(_ context.Context, e domain.HistoryEntry) (domain.HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
	return e, nil
}

func (h *fakeHistory) ListHistory(context.Context, int) ([]domain.HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.HistoryEntry(nil), h.entries...), nil
}

func (h *fakeHistory) TotalDownloads(context.Context) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return int64(len(h.entries)), nil
}

func (h *fakeHistory) ResetStats(context.Context) error { return nil }

type testEnv struct {
	m        *Manager
	runner   *fakeRunner
	notifier *fakeNotifier
	history  *fakeHistory
	app      *app.Context
}

func newTestEnv(t *testing.T, maxConcurrent, maxRetries int, state app.StateStore) *testEnv {
	t.Helper()
	cfg := &config.Config{
		Download: config.DownloadConfig{
			OutDir:        t.TempDir(),
			MaxConcurrent: maxConcurrent,
			MaxRetries:    maxRetries,
		},
		YTDLP: config.YTDLPConfig{StopGrace: 200 * time.Millisecond},
	}
	a := app.NewContext(cfg, logger.Discard())
	env := &testEnv{runner: newFakeRunner(t), notifier: &fakeNotifier{}, history: &fakeHistory{}, app: a}
	a.Runner = env.runner
	a.Notifier = env.notifier
	a.History = env.history
	a.State = state
	env.m = NewManager(a)

	t.Cleanup(func() {
		env.m.MarkAllInterruptedAndTerminateProcesses()
		env.m.Wait()
	})
	return env
}

func (e *testEnv) snap(t *testing.T, id int64) domain.Snapshot {
	t.Helper()
	s, ok := e.m.Snapshot(id)
	if !ok {
		t.Fatalf("download %d not found", id)
	}
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (e *testEnv) waitState(t *testing.T, id int64, want domain.State) domain.Snapshot {
	t.Helper()
	var last domain.Snapshot
	waitFor(t, "download "+string(want), func() bool {
		last, _ = e.m.Snapshot(id)
		return last.State == want
	})
	return last
}

func (e *testEnv) queued(id int64) bool {
	e.m.mu.Lock()
	defer e.m.mu.Unlock()
	for _, q := range e.m.queue {
		if q == id {
			return true
		}
	}
	return false
}

type recordingObserver struct {
	mu      sync.Mutex
	added   []int64
	updated []domain.Snapshot
	removed []int64
	queue   int
}

func (o *recordingObserver) ItemAdded(id int64, _ domain.Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.added = append(o.added, id)
}

func (o *recordingObserver) ItemUpdated(_ int64, s domain.Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.updated = append(o.updated, s)
}

func (o *recordingObserver) ItemRemoved(id int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.removed = append(o.removed, id)
}

func (o *recordingObserver) QueueChanged() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queue++
}
