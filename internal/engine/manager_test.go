package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/datallboy/gotok/internal/domain"
	"github.com/datallboy/gotok/internal/platform"
	"github.com/datallboy/gotok/internal/store"
	"github.com/datallboy/gotok/internal/ytdlp"
)

const videoURL = "https://www.tiktok.com/@u/video/1"

func TestStartDownloadIsAdmittedImmediately(t *testing.T) {
	env := newTestEnv(t, 3, 2, nil)

	id := env.m.StartDownload(videoURL, "best", "", true)
	if id != 1 {
		t.Fatalf("first id = %d, want 1", id)
	}

	s := env.snap(t, id)
	if s.State != domain.StateStarting {
		t.Fatalf("state = %s, want Starting", s.State)
	}
	if got := env.m.ActiveCount(); got != 1 {
		t.Fatalf("active = %d, want 1", got)
	}

	run := env.runner.next(t)
	if run.req.URL != videoURL || !run.req.RemoveWatermark || run.req.Quality != "best" {
		t.Fatalf("unexpected request %+v", run.req)
	}
	if run.req.Title != "" {
		t.Fatalf("placeholder title leaked into request: %q", run.req.Title)
	}
}

func TestConcurrencyCapHoldsFourthJob(t *testing.T) {
	env := newTestEnv(t, 3, 2, nil)

	var ids []int64
	var urls []string
	for i := 0; i < 4; i++ {
		u := videoURL + string(rune('a'+i))
		urls = append(urls, u)
		ids = append(ids, env.m.StartDownload(u, "best", "", true))
	}
	for _, id := range ids[:3] {
		if s := env.snap(t, id); s.State != domain.StateStarting {
			t.Fatalf("job %d state = %s, want Starting", id, s.State)
		}
	}
	if s := env.snap(t, ids[3]); s.State != domain.StateQueued {
		t.Fatalf("job 4 state = %s, want Queued", s.State)
	}

	first := env.runner.nextFor(t, urls[0])
	env.runner.nextFor(t, urls[1])
	env.runner.nextFor(t, urls[2])
	env.runner.expectIdle(t)

	first.succeed("")
	env.waitState(t, ids[3], domain.StateStarting)
	env.runner.nextFor(t, urls[3])

	done := env.snap(t, ids[0])
	if !done.Completed || done.Progress != nil {
		t.Fatalf("completed job: %+v", done)
	}
}

func TestFailureSchedulesRetryAtQueueTail(t *testing.T) {
	env := newTestEnv(t, 1, 2, nil)

	a := env.m.StartDownload(videoURL, "best", "", true)
	b := env.m.StartDownload(videoURL+"2", "best", "", true)

	env.runner.next(t).fail(errors.New("exit 1"))
	env.waitState(t, b, domain.StateStarting)

	s := env.snap(t, a)
	if s.State != domain.StateRetrying || s.RetryCount != 1 || s.Progress != nil {
		t.Fatalf("after failure: %+v", s)
	}
	if !env.queued(a) {
		t.Fatalf("retrying job must be back in the queue")
	}
	if s.StatusText != "Resolving... - Retrying... (1/2)" {
		t.Fatalf("status text = %q", s.StatusText)
	}

	// Freeing the slot re-admits the retry.
	env.runner.next(t).succeed("")
	env.waitState(t, a, domain.StateStarting)
	if env.queued(a) {
		t.Fatalf("admitted job still queued")
	}
}

func TestFailureWithRetriesExhaustedIsError(t *testing.T) {
	env := newTestEnv(t, 3, 0, nil)

	id := env.m.StartDownload(videoURL, "best", "Known clip", true)
	env.runner.next(t).fail(&ytdlp.ExitError{Code: 1, Tail: []string{"ERROR: boom"}})

	s := env.waitState(t, id, domain.StateError)
	if env.queued(id) || s.Running {
		t.Fatalf("errored job must not be queued or running: %+v", s)
	}
	if s.StatusText != "Error: Known clip" || s.LastError == "" {
		t.Fatalf("unexpected error status %+v", s)
	}
	waitFor(t, "failure cue", func() bool {
		c := env.notifier.calls()
		return len(c) == 1 && !c[0]
	})
}

func TestRetryCountReachesMaxThenError(t *testing.T) {
	env := newTestEnv(t, 1, 2, nil)
	id := env.m.StartDownload(videoURL, "best", "", true)

	for i := 0; i < 3; i++ {
		env.runner.next(t).fail(errors.New("flaky"))
	}
	s := env.waitState(t, id, domain.StateError)
	if s.RetryCount != 2 {
		t.Fatalf("retry count = %d, want 2", s.RetryCount)
	}
	env.runner.expectIdle(t)
}

func TestMissingBinariesAreNotRetried(t *testing.T) {
	env := newTestEnv(t, 3, 2, nil)
	id := env.m.StartDownload(videoURL, "best", "", true)

	env.runner.next(t).fail(&platform.MissingBinariesError{Missing: []string{"ffmpeg"}})
	s := env.waitState(t, id, domain.StateError)
	if s.RetryCount != 0 {
		t.Fatalf("retry count = %d, want 0", s.RetryCount)
	}
}

func TestStopDownloadingJobIgnoresLateSuccess(t *testing.T) {
	env := newTestEnv(t, 3, 2, nil)
	env.runner.ignoreCancel = true

	id := env.m.StartDownload(videoURL, "best", "Cat Video", true)
	run := env.runner.next(t)

	partial := filepath.Join(env.app.Config.Download.OutDir, "Cat Video.mp4")
	if err := os.WriteFile(partial+".part", []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	run.hooks.Destination(partial)
	pct := 37.0
	run.hooks.Update(ytdlp.Update{State: domain.StateDownloading, Detail: "37.0%", Percent: &pct})
	if s := env.snap(t, id); s.State != domain.StateDownloading || s.Progress == nil || *s.Progress != 37 {
		t.Fatalf("progress not applied: %+v", s)
	}

	if !env.m.StopDownload(id, "") {
		t.Fatal("StopDownload returned false")
	}
	s := env.snap(t, id)
	if s.State != domain.StateStopped || !s.ManualStop || s.Progress != nil {
		t.Fatalf("after stop: %+v", s)
	}
	if env.queued(id) {
		t.Fatal("stopped job still queued")
	}
	if _, err := os.Stat(partial + ".part"); !os.IsNotExist(err) {
		t.Fatalf("partial file not removed: %v", err)
	}
	if !run.hooks.Stopped() {
		t.Fatal("worker should observe the stop flag")
	}

	run.succeed(partial)
	env.m.Wait()

	s = env.snap(t, id)
	if s.State != domain.StateStopped || s.Completed {
		t.Fatalf("late success changed a stopped job: %+v", s)
	}
	if len(env.notifier.calls()) != 0 {
		t.Fatalf("stopped job must not play a cue")
	}
}

func TestStopIgnoresLateFailure(t *testing.T) {
	env := newTestEnv(t, 3, 2, nil)
	env.runner.ignoreCancel = true

	id := env.m.StartDownload(videoURL, "best", "", true)
	run := env.runner.next(t)
	env.m.StopDownload(id, "")
	run.fail(errors.New("killed"))
	env.m.Wait()

	s := env.snap(t, id)
	if s.State != domain.StateStopped || s.RetryCount != 0 {
		t.Fatalf("late failure changed a stopped job: %+v", s)
	}
}

func TestStoppedSlotHeldUntilWorkerExits(t *testing.T) {
	env := newTestEnv(t, 1, 2, nil)
	env.runner.ignoreCancel = true
	env.m.stopGrace = 2 * time.Second

	a := env.m.StartDownload(videoURL+"a", "best", "", true)
	env.m.StartDownload(videoURL+"b", "best", "", true)
	run := env.runner.nextFor(t, videoURL+"a")
	env.runner.expectIdle(t)

	stopped := make(chan bool, 1)
	go func() { stopped <- env.m.StopDownload(a, "") }()
	waitFor(t, "manual stop", func() bool { return env.snap(t, a).ManualStop })

	// The old process has not exited, so the next job must wait.
	env.runner.expectIdle(t)
	if s := env.snap(t, a); s.State != domain.StateStopped {
		t.Fatalf("stopped job should report Stopped right away: %+v", s)
	}

	run.succeed("")
	select {
	case ok := <-stopped:
		if !ok {
			t.Fatal("StopDownload returned false")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("StopDownload did not return")
	}
	env.runner.nextFor(t, videoURL+"b")
	if n := env.m.ActiveCount(); n != 1 {
		t.Fatalf("active = %d, want 1", n)
	}
}

func TestStopQueuedAndTerminalJobs(t *testing.T) {
	env := newTestEnv(t, 1, 2, nil)
	a := env.m.StartDownload(videoURL, "best", "", true)
	b := env.m.StartDownload(videoURL+"2", "best", "", true)
	run := env.runner.next(t)

	if !env.m.StopDownload(b, "") {
		t.Fatal("stopping a queued job should succeed")
	}
	if env.queued(b) || env.snap(t, b).State != domain.StateStopped {
		t.Fatalf("queued job not stopped")
	}

	run.succeed("")
	env.waitState(t, a, domain.StateCompleted)
	if env.m.StopDownload(a, "") {
		t.Fatal("stopping a completed job must be a no-op")
	}
	if s := env.snap(t, a); s.State != domain.StateCompleted || s.ManualStop {
		t.Fatalf("completed job changed: %+v", s)
	}
	if env.m.StopDownload(99, "") {
		t.Fatal("unknown id should report false")
	}
}

func TestStopAll(t *testing.T) {
	env := newTestEnv(t, 2, 2, nil)
	for i := 0; i < 4; i++ {
		env.m.StartDownload(videoURL+string(rune('a'+i)), "best", "", true)
	}
	env.runner.next(t)
	env.runner.next(t)

	if n := env.m.StopAll(""); n != 4 {
		t.Fatalf("StopAll = %d, want 4", n)
	}
	env.m.Wait()
	env.runner.expectIdle(t)
	if env.m.ActiveCount() != 0 || env.m.QueuedCount() != 0 {
		t.Fatalf("active=%d queued=%d", env.m.ActiveCount(), env.m.QueuedCount())
	}
	if n := env.m.StopAll(""); n != 0 {
		t.Fatalf("second StopAll = %d", n)
	}
}

func TestRetryDownloadResetsTerminalJob(t *testing.T) {
	env := newTestEnv(t, 3, 0, nil)
	id := env.m.StartDownload(videoURL, "720", "", false)
	env.runner.next(t).fail(errors.New("nope"))
	env.waitState(t, id, domain.StateError)

	if !env.m.RetryDownload(id) {
		t.Fatal("RetryDownload returned false")
	}
	s := env.snap(t, id)
	if s.State != domain.StateStarting || s.RetryCount != 0 || s.LastError != "" {
		t.Fatalf("after retry: %+v", s)
	}
	run := env.runner.next(t)
	if run.req.Quality != "720" || run.req.RemoveWatermark {
		t.Fatalf("request params changed: %+v", run.req)
	}

	if env.m.RetryDownload(id) {
		t.Fatal("retry of a running job must be a no-op")
	}
	if env.m.RetryDownload(42) {
		t.Fatal("retry of unknown id must be a no-op")
	}
}

func TestCompletedJobIsFinal(t *testing.T) {
	env := newTestEnv(t, 3, 2, nil)
	id := env.m.StartDownload(videoURL, "best", "", true)
	run := env.runner.next(t)
	run.hooks.TitleResolved("Resolved title")
	run.succeed("/videos/clip.mp4")

	s := env.waitState(t, id, domain.StateCompleted)
	if !s.Completed || s.FilePath != "/videos/clip.mp4" || s.Title != "Resolved title" {
		t.Fatalf("completed snapshot: %+v", s)
	}

	// Reports arriving after completion are dropped.
	pct := 10.0
	run.hooks.Update(ytdlp.Update{State: domain.StateDownloading, Percent: &pct})
	if s := env.snap(t, id); s.State != domain.StateCompleted || s.Progress != nil {
		t.Fatalf("completed job changed: %+v", s)
	}

	waitFor(t, "history entry", func() bool {
		n, _ := env.history.TotalDownloads(context.Background())
		return n == 1
	})
	if st := env.m.Stats(context.Background()); st.TotalDownloads != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestClearCompletedIsIdempotent(t *testing.T) {
	env := newTestEnv(t, 3, 2, nil)
	obs := &recordingObserver{}
	env.m.AddObserver(obs)

	a := env.m.StartDownload(videoURL, "best", "", true)
	b := env.m.StartDownload(videoURL+"2", "best", "", true)
	env.runner.next(t).succeed("")
	env.runner.next(t).succeed("")
	env.waitState(t, a, domain.StateCompleted)
	env.waitState(t, b, domain.StateCompleted)
	c := env.m.StartDownload(videoURL+"3", "best", "", true)

	if n := env.m.ClearCompleted(); n != 2 {
		t.Fatalf("first ClearCompleted = %d, want 2", n)
	}
	before := env.m.Snapshots()
	if n := env.m.ClearCompleted(); n != 0 {
		t.Fatalf("second ClearCompleted = %d, want 0", n)
	}
	after := env.m.Snapshots()
	if len(before) != 1 || len(after) != 1 || after[0].ID != c {
		t.Fatalf("unexpected table: before=%v after=%v", before, after)
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.removed) != 2 {
		t.Fatalf("removed notifications = %v", obs.removed)
	}
}

func TestRemoveDownload(t *testing.T) {
	env := newTestEnv(t, 3, 2, nil)
	id := env.m.StartDownload(videoURL, "best", "", true)
	env.runner.next(t)

	if !env.m.RemoveDownload(id, "") {
		t.Fatal("RemoveDownload returned false")
	}
	if _, ok := env.m.Snapshot(id); ok {
		t.Fatal("job still present")
	}
	if env.m.ActiveCount() != 0 || env.m.IsURLActive(videoURL) {
		t.Fatal("removed job still counted")
	}
	if env.m.RemoveDownload(id, "") {
		t.Fatal("second remove should report false")
	}
}

func TestIsURLActive(t *testing.T) {
	env := newTestEnv(t, 3, 0, nil)
	id := env.m.StartDownload(videoURL, "best", "", true)
	if !env.m.IsURLActive(" " + videoURL + " ") {
		t.Fatal("url should be active")
	}
	env.runner.next(t).fail(errors.New("x"))
	env.waitState(t, id, domain.StateError)
	if env.m.IsURLActive(videoURL) {
		t.Fatal("errored url should not be active")
	}
}

func TestConcurrencyCapNeverExceeded(t *testing.T) {
	const limit = 2
	env := newTestEnv(t, limit, 1, nil)

	var mu sync.Mutex
	maxSeen := 0
	env.m.AddObserver(observerFunc(func() {
		n := env.m.ActiveCount()
		mu.Lock()
		if n > maxSeen {
			maxSeen = n
		}
		mu.Unlock()
	}))

	for i := 0; i < 8; i++ {
		env.m.StartDownload(videoURL+string(rune('a'+i)), "best", "", true)
	}
	// The first attempt of four jobs fails once, so twelve runs drain the queue.
	failed := make(map[string]bool)
	for i := 0; i < 12; i++ {
		run := env.runner.next(t)
		if len(failed) < 4 && !failed[run.req.URL] {
			failed[run.req.URL] = true
			run.fail(errors.New("flaky"))
		} else {
			run.succeed("")
		}
	}
	waitFor(t, "idle manager", func() bool {
		return env.m.ActiveCount() == 0 && env.m.QueuedCount() == 0
	})

	mu.Lock()
	defer mu.Unlock()
	if maxSeen > limit {
		t.Fatalf("observed %d active jobs, limit %d", maxSeen, limit)
	}
}

func TestObserverPanicIsContained(t *testing.T) {
	env := newTestEnv(t, 3, 2, nil)
	env.m.AddObserver(observerFunc(func() { panic("boom") }))
	obs := &recordingObserver{}
	env.m.AddObserver(obs)

	id := env.m.StartDownload(videoURL, "best", "", true)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.added) != 1 || obs.added[0] != id {
		t.Fatalf("second observer missed the add: %v", obs.added)
	}
}

func TestShutdownMarksInterrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	env := newTestEnv(t, 1, 2, store.NewStateFile(path))

	a := env.m.StartDownload(videoURL, "best", "", true)
	b := env.m.StartDownload(videoURL+"2", "best", "", true)
	env.runner.next(t)

	env.m.MarkAllInterruptedAndTerminateProcesses()
	env.m.Wait()

	for _, id := range []int64{a, b} {
		if s := env.snap(t, id); s.State != domain.StateInterrupted || s.Running {
			t.Fatalf("job %d: %+v", id, s)
		}
	}
	if env.m.QueuedCount() != 0 {
		t.Fatal("queue not cleared")
	}

	loaded, err := store.NewStateFile(path).Load()
	if err != nil || len(loaded.Jobs) != 2 {
		t.Fatalf("persisted state: %+v, %v", loaded, err)
	}
}

// observerFunc calls fn for every notification.
type observerFunc func()

func (f observerFunc) ItemAdded(int64, domain.Snapshot)   { f() }
func (f observerFunc) ItemUpdated(int64, domain.Snapshot) { f() }
func (f observerFunc) ItemRemoved(int64)                  { f() }
func (f observerFunc) QueueChanged()                      { f() }
