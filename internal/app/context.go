package app

import (
	"context"

	"github.com/datallboy/gotok/internal/domain"
	"github.com/datallboy/gotok/internal/infra/config"
	"github.com/datallboy/gotok/internal/infra/logger"
	"github.com/datallboy/gotok/internal/store"
	"github.com/datallboy/gotok/internal/ytdlp"
)

// Runner executes one download attempt. The engine never sees raw tool output.
type Runner interface {
	Run(ctx context.Context, req ytdlp.Request, hooks ytdlp.Hooks) (ytdlp.Result, error)
	// TempDir is where partial fragments live while a download runs.
	TempDir() string
}

type Updater interface {
	SelfUpdate(ctx context.Context) (string, error)
}

type StateStore interface {
	Save(nextID int64, records []domain.Record) error
	Load() (store.LoadedState, error)
}

type History interface {
	RecordCompletion(ctx context.Context, e domain.HistoryEntry) (domain.HistoryEntry, error)
	ListHistory(ctx context.Context, limit int) ([]domain.HistoryEntry, error)
	TotalDownloads(ctx context.Context) (int64, error)
	ResetStats(ctx context.Context) error
}

type Notifier interface {
	Notify(success bool)
}

type FileOpener interface {
	RevealFile(path string) error
	OpenDir(dir string) error
}

// Context holds the core environment and shared resources for gotok.
// Optional collaborators may be nil: a one-shot CLI download runs without
// State or History.
type Context struct {
	Config *config.Config
	Logger *logger.Logger

	Runner   Runner
	Updater  Updater
	State    StateStore
	History  History
	Notifier Notifier
	Opener   FileOpener
}

// NewContext initializes the base environment.
func NewContext(cfg *config.Config, log *logger.Logger) *Context {
	return &Context{
		Config: cfg,
		Logger: log,
	}
}
