package domain

import "time"

// HistoryEntry records one finished download. Completed jobs leave the live
// table, so this is what remains of them.
type HistoryEntry struct {
	ID          string    `json:"id"`
	DownloadID  int64     `json:"download_id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	FilePath    string    `json:"file_path,omitempty"`
	Quality     string    `json:"quality"`
	CompletedAt time.Time `json:"completed_at"`
}

// Stats is the aggregate counter view.
type Stats struct {
	TotalDownloads int64 `json:"total_downloads"`
	Active         int   `json:"active"`
	Queued         int   `json:"queued"`
}
