package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/datallboy/gotok/internal/api"
	"github.com/datallboy/gotok/internal/app"
	"github.com/datallboy/gotok/internal/domain"
	"github.com/datallboy/gotok/internal/engine"
	"github.com/datallboy/gotok/internal/infra/config"
	"github.com/datallboy/gotok/internal/infra/logger"
	"github.com/datallboy/gotok/internal/ytdlp"
)

type instantRunner struct{}

func (instantRunner) TempDir() string { return "" }

func (instantRunner) Run(_ context.Context, req ytdlp.Request, hooks ytdlp.Hooks) (ytdlp.Result, error) {
	hooks.TitleResolved("clip " + req.URL)
	return ytdlp.Result{FilePath: "/out/clip.mp4"}, nil
}

func newTestClient(t *testing.T) (*Client, *engine.Manager) {
	t.Helper()
	cfg := &config.Config{
		Download: config.DownloadConfig{OutDir: t.TempDir(), MaxConcurrent: 2, DefaultQuality: "best"},
		YTDLP:    config.YTDLPConfig{StopGrace: 100 * time.Millisecond},
	}
	a := app.NewContext(cfg, logger.Discard())
	a.Runner = instantRunner{}
	mgr := engine.NewManager(a)
	srv := httptest.NewServer(api.NewServer(a, mgr))
	t.Cleanup(func() {
		srv.Close()
		mgr.MarkAllInterruptedAndTerminateProcesses()
		mgr.Wait()
	})
	return New(srv.URL + "/"), mgr
}

func TestClientLifecycle(t *testing.T) {
	c, mgr := newTestClient(t)
	ctx := context.Background()

	snap, err := c.Add(ctx, "https://a/1", AddOptions{})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if snap.ID != 1 || snap.Quality != "best" {
		t.Fatalf("snapshot = %+v", snap)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		s, err := c.Get(ctx, snap.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if s.State == domain.StateCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("download never completed: %+v", s)
		}
		time.Sleep(10 * time.Millisecond)
	}
	mgr.Wait()

	list, err := c.List(ctx)
	if err != nil || len(list.Downloads) != 1 {
		t.Fatalf("List = %+v, %v", list, err)
	}
	n, err := c.ClearCompleted(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ClearCompleted = %d, %v", n, err)
	}
	if _, err := c.Get(ctx, snap.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after clear = %v, want ErrNotFound", err)
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.Add(context.Background(), "", AddOptions{})

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest || apiErr.Message != "Missing url" {
		t.Fatalf("Add error = %v", err)
	}
}

func TestClientUnreachableServer(t *testing.T) {
	c := New("http://127.0.0.1:1")
	if _, err := c.Stats(context.Background()); err == nil {
		t.Fatal("expected connection error")
	}
}
