package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/datallboy/gotok/internal/domain"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("221"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
)

const (
	colID       = 5
	colState    = 12
	colProgress = 8
	colTitle    = 32
)

func stateStyle(s domain.State) lipgloss.Style {
	switch {
	case s == domain.StateCompleted:
		return okStyle
	case s == domain.StateError:
		return errorStyle
	case s.IsActive():
		return activeStyle
	case s.IsPending():
		return pendingStyle
	default:
		return mutedStyle
	}
}

func renderStatusLine(s domain.Snapshot) string {
	line := fmt.Sprintf("#%d %s", s.ID, s.StatusText)
	if s.State == domain.StateError && s.LastError != "" {
		line += mutedStyle.Render(" (" + firstLine(s.LastError) + ")")
	}
	return stateStyle(s.State).Render(line)
}

func renderProgress(s domain.Snapshot) string {
	if s.Progress == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", *s.Progress)
}

func cell(s string, width int) string {
	return lipgloss.NewStyle().Width(width).MaxWidth(width).Render(truncateRunes(s, width-1))
}

func renderList(snaps []domain.Snapshot, stats domain.Stats) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("gotok downloads"))
	b.WriteString("\n")
	if len(snaps) == 0 {
		b.WriteString(mutedStyle.Render("No downloads."))
		b.WriteString("\n")
	} else {
		b.WriteString(headerStyle.Render(cell("ID", colID) + cell("STATE", colState) + cell("PROGRESS", colProgress+2) + cell("TITLE", colTitle) + "URL"))
		b.WriteString("\n")
		for _, s := range snaps {
			b.WriteString(cell(fmt.Sprintf("%d", s.ID), colID))
			b.WriteString(stateStyle(s.State).Render(cell(string(s.State), colState)))
			b.WriteString(cell(renderProgress(s), colProgress+2))
			b.WriteString(cell(s.Title, colTitle))
			b.WriteString(mutedStyle.Render(s.URL))
			b.WriteString("\n")
		}
	}
	b.WriteString(mutedStyle.Render(fmt.Sprintf("%d active, %d queued, %d downloaded in total",
		stats.Active, stats.Queued, stats.TotalDownloads)))
	b.WriteString("\n")
	return b.String()
}

func renderHistory(entries []domain.HistoryEntry, total int64) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Completed downloads (%d total)", total)))
	b.WriteString("\n")
	if len(entries) == 0 {
		b.WriteString(mutedStyle.Render("Nothing downloaded yet."))
		b.WriteString("\n")
		return b.String()
	}
	for _, e := range entries {
		b.WriteString(mutedStyle.Render(e.CompletedAt.Local().Format("2006-01-02 15:04")))
		b.WriteString("  ")
		b.WriteString(okStyle.Render(e.Title))
		if e.FilePath != "" {
			b.WriteString("  ")
			b.WriteString(mutedStyle.Render(e.FilePath))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// renderSummary is printed when a foreground get finishes.
func renderSummary(snaps []domain.Snapshot) string {
	var done, failed int
	var b strings.Builder
	for _, s := range snaps {
		if s.Completed {
			done++
			if s.FilePath != "" {
				b.WriteString(okStyle.Render("✓ ") + s.FilePath + "\n")
			}
			continue
		}
		failed++
		b.WriteString(errorStyle.Render("✗ ") + s.URL + mutedStyle.Render(" "+string(s.State)) + "\n")
	}
	b.WriteString(fmt.Sprintf("%d completed, %d not completed\n", done, failed))
	return b.String()
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 1 {
		return string(r[:max])
	}
	return string(r[:max-1]) + "…"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
