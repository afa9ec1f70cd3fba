package store

import (
	"database/sql"
	"time"

	"github.com/datallboy/gotok/internal/domain"
)

// historyDBO maps to the history table
type historyDBO struct {
	ID          string         `db:"id"`
	DownloadID  int64          `db:"download_id"`
	URL         string         `db:"url"`
	Title       string         `db:"title"`
	FilePath    sql.NullString `db:"file_path"`
	Quality     string         `db:"quality"`
	CompletedAt int64          `db:"completed_at"`
}

func (h *historyDBO) ToDomain() domain.HistoryEntry {
	return domain.HistoryEntry{
		ID:          h.ID,
		DownloadID:  h.DownloadID,
		URL:         h.URL,
		Title:       h.Title,
		FilePath:    h.FilePath.String,
		Quality:     h.Quality,
		CompletedAt: time.Unix(0, h.CompletedAt),
	}
}

func (h *historyDBO) FromDomain(e domain.HistoryEntry) {
	h.ID = e.ID
	h.DownloadID = e.DownloadID
	h.URL = e.URL
	h.Title = e.Title
	h.FilePath = sql.NullString{String: e.FilePath, Valid: e.FilePath != ""}
	h.Quality = e.Quality
	h.CompletedAt = e.CompletedAt.UnixNano()
}
