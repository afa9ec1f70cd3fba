package main

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/datallboy/gotok/internal/domain"
)

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"1", "#42"})
	if err != nil || len(ids) != 2 || ids[0] != 1 || ids[1] != 42 {
		t.Fatalf("parseIDs = %v, %v", ids, err)
	}
	for _, bad := range []string{"0", "-3", "abc", ""} {
		if _, err := parseIDs([]string{bad}); err == nil {
			t.Errorf("parseIDs(%q) should fail", bad)
		}
	}
}

func TestRenderList(t *testing.T) {
	pct := 42.5
	snaps := []domain.Snapshot{
		{ID: 1, State: domain.StateDownloading, Title: "Dance", URL: "https://a/1", Progress: &pct},
		{ID: 2, State: domain.StateQueued, Title: "A very long title that will not fit in the column at all", URL: "https://a/2"},
	}
	out := renderList(snaps, domain.Stats{Active: 1, Queued: 1, TotalDownloads: 7})

	for _, want := range []string{"Dance", "42.5%", "https://a/2", "1 active, 1 queued, 7 downloaded in total"} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "at all") {
		t.Errorf("long title was not truncated:\n%s", out)
	}
}

func TestRenderEmptyViews(t *testing.T) {
	if out := renderList(nil, domain.Stats{}); !strings.Contains(out, "No downloads.") {
		t.Errorf("empty list: %q", out)
	}
	if out := renderHistory(nil, 3); !strings.Contains(out, "3 total") {
		t.Errorf("empty history: %q", out)
	}
}

func TestRenderSummary(t *testing.T) {
	out := renderSummary([]domain.Snapshot{
		{ID: 1, Completed: true, State: domain.StateCompleted, FilePath: "/v/a.mp4"},
		{ID: 2, State: domain.StateError, URL: "https://a/2"},
	})
	if !strings.Contains(out, "/v/a.mp4") || !strings.Contains(out, "1 completed, 1 not completed") {
		t.Fatalf("summary = %q", out)
	}
}

func TestRenderStatusLineIncludesFirstErrorLine(t *testing.T) {
	out := renderStatusLine(domain.Snapshot{
		ID: 3, State: domain.StateError, StatusText: "Error: clip", LastError: "exit status 1\nstack",
	})
	if !strings.Contains(out, "#3 Error: clip") || !strings.Contains(out, "exit status 1") || strings.Contains(out, "stack") {
		t.Fatalf("status line = %q", out)
	}
}

func TestWatchModelNavigation(t *testing.T) {
	m := newWatchModel(nil)
	next, _ := m.Update(watchLoadedMsg{downloads: []domain.Snapshot{{ID: 1}, {ID: 2}}})
	m = next.(watchModel)

	down := tea.KeyMsg{Type: tea.KeyDown}
	next, _ = m.Update(down)
	next, _ = next.Update(down)
	m = next.(watchModel)
	if m.cursor != 1 {
		t.Fatalf("cursor = %d, want 1", m.cursor)
	}

	// A refresh with fewer rows pulls the cursor back in range.
	next, _ = m.Update(watchLoadedMsg{downloads: []domain.Snapshot{{ID: 2}}})
	if c := next.(watchModel).cursor; c != 0 {
		t.Fatalf("cursor after shrink = %d", c)
	}

	_, cmd := next.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should quit")
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("héllo wörld", 6); got != "héllo…" {
		t.Fatalf("truncateRunes = %q", got)
	}
	if got := truncateRunes("short", 10); got != "short" {
		t.Fatalf("truncateRunes = %q", got)
	}
}
