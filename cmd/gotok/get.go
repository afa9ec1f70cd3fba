package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/datallboy/gotok/internal/domain"
	"github.com/datallboy/gotok/internal/engine"
	"github.com/datallboy/gotok/internal/infra/logger"
	"github.com/datallboy/gotok/internal/store"
	"github.com/spf13/cobra"
)

type downloadFlags struct {
	quality     string
	title       string
	keepMark    bool
	outDir      string
	concurrency int
}

func newGetCmd(opts *rootOptions) *cobra.Command {
	f := &downloadFlags{}
	cmd := &cobra.Command{
		Use:   "get <url>...",
		Short: "Download videos in the foreground without a server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd.Context(), opts, f, cmd.Flags().Changed("keep-watermark"), args, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&f.quality, "quality", "q", "", "format height (e.g. 720) or best")
	cmd.Flags().BoolVar(&f.keepMark, "keep-watermark", false, "keep the watermarked variant")
	cmd.Flags().StringVarP(&f.outDir, "output", "o", "", "download directory")
	cmd.Flags().IntVarP(&f.concurrency, "jobs", "j", 0, "parallel downloads")
	return cmd
}

func runGet(ctx context.Context, opts *rootOptions, f *downloadFlags, keepSet bool, urls []string, out io.Writer) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if f.outDir != "" {
		cfg.Download.OutDir = f.outDir
	}
	if f.concurrency > 0 {
		cfg.Download.MaxConcurrent = f.concurrency
	}
	quality := f.quality
	if quality == "" {
		quality = cfg.Download.DefaultQuality
	}
	removeWatermark := cfg.Download.RemoveWatermark
	if keepSet {
		removeWatermark = !f.keepMark
	}

	log, err := logger.New(cfg.Log.Path, logger.ParseLevel(cfg.Log.Level), false)
	if err != nil {
		return err
	}
	defer log.Close()

	appCtx := newAppContext(cfg, log)
	if db, err := store.NewPersistentStore(cfg.Store.SQLitePath); err == nil {
		defer db.Close()
		appCtx.History = db
	} else {
		log.Warn("History disabled: %v", err)
	}

	mgr := engine.NewManager(appCtx)
	w := newGetWatcher(mgr, out)
	mgr.AddObserver(w)

	for _, u := range urls {
		if mgr.IsURLActive(u) {
			fmt.Fprintf(out, "%s already queued, skipping\n", u)
			continue
		}
		mgr.StartDownload(u, quality, "", removeWatermark)
	}
	if len(mgr.Snapshots()) == 0 {
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-w.done:
	case <-ctx.Done():
		fmt.Fprintln(out, "Stopping downloads...")
		mgr.StopAll("")
	}
	mgr.Wait()

	failed := 0
	snaps := mgr.Snapshots()
	for _, s := range snaps {
		if !s.Completed {
			failed++
		}
	}
	fmt.Fprint(out, renderSummary(snaps))
	if failed > 0 {
		return fmt.Errorf("%d of %d downloads did not complete", failed, len(snaps))
	}
	return nil
}

// getWatcher prints status changes and signals once every job is terminal.
type getWatcher struct {
	mgr *engine.Manager
	out io.Writer

	mu   sync.Mutex
	last map[int64]string
	once sync.Once
	done chan struct{}
}

func newGetWatcher(mgr *engine.Manager, out io.Writer) *getWatcher {
	return &getWatcher{mgr: mgr, out: out, last: make(map[int64]string), done: make(chan struct{})}
}

func (w *getWatcher) ItemAdded(_ int64, snap domain.Snapshot)   { w.print(snap) }
func (w *getWatcher) ItemUpdated(_ int64, snap domain.Snapshot) { w.print(snap); w.check() }
func (w *getWatcher) ItemRemoved(int64)                         {}
func (w *getWatcher) QueueChanged()                             {}

func (w *getWatcher) print(snap domain.Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last[snap.ID] == snap.StatusText {
		return
	}
	w.last[snap.ID] = snap.StatusText
	fmt.Fprintln(w.out, renderStatusLine(snap))
}

func (w *getWatcher) check() {
	for _, s := range w.mgr.Snapshots() {
		if !s.State.IsTerminal() {
			return
		}
	}
	w.once.Do(func() { close(w.done) })
}
