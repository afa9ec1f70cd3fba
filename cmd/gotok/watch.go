package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/datallboy/gotok/internal/client"
	"github.com/datallboy/gotok/internal/domain"
	"github.com/spf13/cobra"
)

const (
	watchInterval   = 500 * time.Millisecond
	watchCallBudget = 10 * time.Second
	watchBarWidth   = 24
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Interactive live view of the download queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !stdinIsTTY() {
				return errors.New("watch requires an interactive terminal (TTY)")
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			final, err := tea.NewProgram(newWatchModel(c), tea.WithAltScreen()).Run()
			if err != nil {
				return err
			}
			if m, ok := final.(watchModel); ok {
				return m.fatalErr
			}
			return nil
		},
	}
}

func stdinIsTTY() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

type watchModel struct {
	client *client.Client
	bar    progress.Model

	downloads []domain.Snapshot
	stats     domain.Stats
	cursor    int
	status    string
	fatalErr  error
}

type watchTickMsg struct{}

type watchLoadedMsg struct {
	downloads []domain.Snapshot
	stats     domain.Stats
	err       error
}

type watchActionMsg struct {
	message string
	err     error
}

func newWatchModel(c *client.Client) watchModel {
	return watchModel{
		client: c,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(watchBarWidth), progress.WithoutPercentage()),
	}
}

func (m watchModel) Init() tea.Cmd {
	return m.load()
}

func (m watchModel) load() tea.Cmd {
	c := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), watchCallBudget)
		defer cancel()
		list, err := c.List(ctx)
		if err != nil {
			return watchLoadedMsg{err: err}
		}
		return watchLoadedMsg{
			downloads: list.Downloads,
			stats:     domain.Stats{Active: list.Active, Queued: list.Queued},
		}
	}
}

func tick() tea.Cmd {
	return tea.Tick(watchInterval, func(time.Time) tea.Msg { return watchTickMsg{} })
}

// action runs fn against the selected download.
func (m watchModel) action(verb string, fn func(context.Context, int64) error) tea.Cmd {
	if m.cursor >= len(m.downloads) {
		return nil
	}
	id := m.downloads[m.cursor].ID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), watchCallBudget)
		defer cancel()
		if err := fn(ctx, id); err != nil {
			return watchActionMsg{err: fmt.Errorf("%s #%d: %w", verb, id, err)}
		}
		return watchActionMsg{message: fmt.Sprintf("%s #%d", verb, id)}
	}
}

func (m watchModel) bulk(fn func(context.Context) (string, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), watchCallBudget)
		defer cancel()
		msg, err := fn(ctx)
		return watchActionMsg{message: msg, err: err}
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case watchTickMsg:
		return m, m.load()
	case watchLoadedMsg:
		if msg.err != nil {
			m.status = "error: " + msg.err.Error()
			return m, tick()
		}
		m.downloads = msg.downloads
		m.stats = msg.stats
		m.cursor = clampInt(m.cursor, 0, max(len(m.downloads)-1, 0))
		return m, tick()
	case watchActionMsg:
		if msg.err != nil {
			m.status = "error: " + msg.err.Error()
		} else {
			m.status = msg.message
		}
		return m, m.load()
	case tea.KeyMsg:
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m watchModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	c := m.client
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.downloads)-1 {
			m.cursor++
		}
	case "s":
		return m, m.action("Stopped", func(ctx context.Context, id int64) error {
			_, err := c.Stop(ctx, id)
			return err
		})
	case "r":
		return m, m.action("Retrying", func(ctx context.Context, id int64) error {
			_, err := c.Retry(ctx, id)
			return err
		})
	case "o":
		return m, m.action("Opened", c.Open)
	case "x", "delete":
		return m, m.action("Removed", c.Remove)
	case "c":
		return m, m.bulk(func(ctx context.Context) (string, error) {
			n, err := c.ClearCompleted(ctx)
			return fmt.Sprintf("Cleared %d completed", n), err
		})
	case "S":
		return m, m.bulk(func(ctx context.Context) (string, error) {
			n, err := c.StopAll(ctx)
			return fmt.Sprintf("Stopped %d downloads", n), err
		})
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("gotok"))
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  %d active, %d queued", m.stats.Active, m.stats.Queued)))
	b.WriteString("\n\n")

	if len(m.downloads) == 0 {
		b.WriteString(mutedStyle.Render("No downloads. Queue one with `gotok add <url>`."))
		b.WriteString("\n")
	}
	for i, s := range m.downloads {
		marker := "  "
		if i == m.cursor {
			marker = "> "
		}
		b.WriteString(marker)
		b.WriteString(cell(fmt.Sprintf("#%d", s.ID), colID))
		b.WriteString(stateStyle(s.State).Render(cell(string(s.State), colState)))
		if s.Progress != nil {
			b.WriteString(m.bar.ViewAs(*s.Progress / 100))
			b.WriteString(" ")
		} else {
			b.WriteString(strings.Repeat(" ", watchBarWidth+1))
		}
		b.WriteString(truncateRunes(s.StatusText, 60))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(m.status)
		b.WriteString("\n")
	}
	b.WriteString(mutedStyle.Render("↑/↓ select • s stop • r retry • o open • x remove • c clear completed • S stop all • q quit"))
	b.WriteString("\n")
	return b.String()
}

func clampInt(v, minV, maxV int) int {
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}
