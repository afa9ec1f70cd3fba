package controllers

import "github.com/datallboy/gotok/internal/domain"

// CreateDownloadRequest is the body of POST /api/downloads. Omitted fields
// fall back to the configured defaults.
type CreateDownloadRequest struct {
	URL             string `json:"url"`
	Quality         string `json:"quality"`
	Title           string `json:"title"`
	RemoveWatermark *bool  `json:"remove_watermark"`
}

type DownloadList struct {
	Downloads []domain.Snapshot `json:"downloads"`
	Active    int               `json:"active"`
	Queued    int               `json:"queued"`
}

// CountResponse reports how many downloads a bulk action touched.
type CountResponse struct {
	Count int `json:"count"`
}

type HistoryResponse struct {
	Entries []domain.HistoryEntry `json:"entries"`
}

type UpdateToolResponse struct {
	Message string `json:"message"`
}

// Event is one server-sent notification. Snapshot is nil for removals and
// queue changes.
type Event struct {
	Type     string           `json:"type"`
	ID       int64            `json:"id,omitempty"`
	Snapshot *domain.Snapshot `json:"snapshot,omitempty"`
}

const (
	EventAdded        = "added"
	EventUpdated      = "updated"
	EventRemoved      = "removed"
	EventQueueChanged = "queue"
)
