package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/datallboy/gotok/internal/api"
	"github.com/datallboy/gotok/internal/engine"
	"github.com/datallboy/gotok/internal/infra/logger"
	"github.com/datallboy/gotok/internal/platform"
	"github.com/datallboy/gotok/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the download manager and its HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default :<port>)")
	return cmd
}

func runServe(ctx context.Context, opts *rootOptions, listen string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Path, logger.ParseLevel(cfg.Log.Level), cfg.Log.IncludeStdout)
	if err != nil {
		return err
	}
	defer log.Close()

	if err := platform.ValidateDependencies(cfg.YTDLP.BinDir); err != nil {
		// Downloads fail individually with the same message until fixed.
		log.Warn("%v", err)
	}

	appCtx := newAppContext(cfg, log)
	appCtx.State = store.NewStateFile(cfg.State.Path)

	db, err := store.NewPersistentStore(cfg.Store.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()
	appCtx.History = db

	mgr := engine.NewManager(appCtx)
	if err := mgr.LoadState(); err != nil {
		return err
	}

	if listen == "" {
		listen = ":" + cfg.Port
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              listen,
		Handler:           api.NewServer(appCtx, mgr),
		ReadHeaderTimeout: 10 * time.Second,
		// Event streams end with the process.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Listening on %s", listen)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	mgr.MarkAllInterruptedAndTerminateProcesses()
	mgr.Wait()
	log.Info("Stopped")
	return err
}
