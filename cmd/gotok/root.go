package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/datallboy/gotok/internal/app"
	"github.com/datallboy/gotok/internal/client"
	"github.com/datallboy/gotok/internal/infra/config"
	"github.com/datallboy/gotok/internal/infra/logger"
	"github.com/datallboy/gotok/internal/infra/notify"
	"github.com/datallboy/gotok/internal/platform"
	"github.com/datallboy/gotok/internal/ytdlp"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	server     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          "gotok",
		Short:        "Queue and download TikTok videos with yt-dlp",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default config.yaml, then ~/.gotok/config.yaml)")
	root.PersistentFlags().StringVar(&opts.server, "server", "", "address of a running gotok server (default http://127.0.0.1:<port>)")

	root.AddCommand(
		newServeCmd(opts),
		newGetCmd(opts),
		newAddCmd(opts),
		newListCmd(opts),
		newWatchCmd(opts),
		newStopCmd(opts),
		newStopAllCmd(opts),
		newRetryCmd(opts),
		newRemoveCmd(opts),
		newClearCmd(opts),
		newOpenCmd(opts),
		newHistoryCmd(opts),
		newUpdateToolCmd(opts),
	)
	return root
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	return cfg, nil
}

func (o *rootOptions) client() (*client.Client, error) {
	if o.server != "" {
		return client.New(o.server), nil
	}
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return client.New("http://127.0.0.1:" + cfg.Port), nil
}

// newAppContext wires the process-local collaborators shared by serve and get.
func newAppContext(cfg *config.Config, log *logger.Logger) *app.Context {
	appCtx := app.NewContext(cfg, log)

	runner := ytdlp.NewCLI(ytdlp.Options{
		BinDir:        cfg.YTDLP.BinDir,
		TempDir:       cfg.Download.TempDir,
		FallbackDir:   config.DefaultDownloadDir(),
		TitleTimeout:  cfg.YTDLP.TitleTimeout,
		StopGrace:     cfg.YTDLP.StopGrace,
		UpdateTimeout: cfg.YTDLP.UpdateTimeout,
	}, log)
	appCtx.Runner = runner
	appCtx.Updater = runner
	appCtx.Notifier = notify.NewBell(cfg.Notify.Sounds)
	appCtx.Opener = platform.Opener{}
	return appCtx
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(strings.TrimPrefix(a, "#"), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid download id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
