package engine

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/datallboy/gotok/internal/domain"
	"github.com/datallboy/gotok/internal/store"
)

func seedState(t *testing.T, path string, nextID int64, jobs ...*domain.Job) {
	t.Helper()
	records := make([]domain.Record, 0, len(jobs))
	for _, j := range jobs {
		records = append(records, j.Record())
	}
	if err := store.NewStateFile(path).Save(nextID, records); err != nil {
		t.Fatalf("seed state: %v", err)
	}
}

func TestLoadStateReconcilesRunningJobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	now := time.Unix(1700000000, 0)

	running := domain.NewJob(5, videoURL, "best", "Dance", true, now)
	running.State = domain.StateDownloading
	pct := 42.0
	running.Progress = &pct
	stopped := domain.NewJob(7, videoURL+"7", "best", "", false, now)
	stopped.State = domain.StateStopped
	stopped.ManualStop = true
	seedState(t, path, 9, running, stopped)

	env := newTestEnv(t, 3, 2, store.NewStateFile(path))
	if err := env.m.LoadState(); err != nil {
		t.Fatalf("LoadState: %v", err)
	}

	s := env.snap(t, 5)
	if s.State != domain.StateInterrupted || s.Progress != nil || s.Running {
		t.Fatalf("running job not reconciled: %+v", s)
	}
	if s.StatusText != "Dance - Interrupted" {
		t.Fatalf("status text = %q", s.StatusText)
	}
	if s := env.snap(t, 7); s.State != domain.StateStopped || !s.ManualStop {
		t.Fatalf("stopped job changed: %+v", s)
	}
	if env.m.QueuedCount() != 0 || env.m.ActiveCount() != 0 {
		t.Fatal("loaded jobs must not be scheduled")
	}
	env.runner.expectIdle(t)

	if id := env.m.StartDownload(videoURL+"new", "best", "", true); id != 9 {
		t.Fatalf("next id = %d, want 9", id)
	}
}

func TestLoadStateRefusesWhileBusy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	env := newTestEnv(t, 3, 2, store.NewStateFile(path))

	env.m.StartDownload(videoURL, "best", "", true)
	env.runner.next(t)

	if err := env.m.LoadState(); !errors.Is(err, ErrBusy) {
		t.Fatalf("LoadState = %v, want ErrBusy", err)
	}
	if len(env.m.Snapshots()) != 1 {
		t.Fatal("table replaced while busy")
	}
}

func TestSaveStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	first := newTestEnv(t, 3, 2, store.NewStateFile(path))
	done := first.m.StartDownload(videoURL, "best", "", true)
	pending := first.m.StartDownload(videoURL+"2", "720", "Known", false)
	first.runner.nextFor(t, videoURL).succeed("/out/a.mp4")
	first.runner.nextFor(t, videoURL+"2")
	first.waitState(t, done, domain.StateCompleted)

	first.m.MarkAllInterruptedAndTerminateProcesses()
	first.m.Wait()

	second := newTestEnv(t, 3, 2, store.NewStateFile(path))
	if err := second.m.LoadState(); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	snaps := second.m.Snapshots()
	if len(snaps) != 1 || snaps[0].ID != pending {
		t.Fatalf("completed jobs must not be persisted: %+v", snaps)
	}
	s := snaps[0]
	if s.State != domain.StateInterrupted || s.Quality != "720" || s.RemoveWatermark || s.Title != "Known" {
		t.Fatalf("restored job: %+v", s)
	}

	// Interrupted jobs can be retried after a restart.
	if !second.m.RetryDownload(pending) {
		t.Fatal("retry of a restored job failed")
	}
	run := second.runner.next(t)
	if run.req.Title != "Known" || run.req.Quality != "720" {
		t.Fatalf("restored request: %+v", run.req)
	}
}

func TestLoadStateMalformedFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	writeFile(t, path, "{not json")

	env := newTestEnv(t, 3, 2, store.NewStateFile(path))
	if err := env.m.LoadState(); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if n := len(env.m.Snapshots()); n != 0 {
		t.Fatalf("loaded %d jobs from a malformed file", n)
	}
}
