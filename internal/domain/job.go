package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	QualityBest      = "best"
	TitlePending     = "Resolving..."
	TitleUnknown     = "Unknown Video"
	TitleFallback    = "TikTok Video"
	maxDisplayTitle  = 30
	displayTitleKeep = 27
)

// Handle is the process-local grip on a running worker.
type Handle interface {
	// Terminate asks the worker to exit and waits at most grace before killing it.
	Terminate(grace time.Duration)
}

// Job is one requested download and its tracked lifecycle. Jobs are owned by
// the engine and must only be mutated while holding its lock.
type Job struct {
	ID              int64
	URL             string
	Quality         string
	RemoveWatermark bool

	Title           string
	State           State
	StatusText      string
	Progress        *float64
	FilePath        string
	CurrentFilename string
	RetryCount      int
	ManualStop      bool
	Completed       bool
	LastError       string

	CreatedAt time.Time
	UpdatedAt time.Time

	// Transient, never persisted.
	Handle  Handle
	Attempt uint64
}

// NewJob builds a queued job for a fresh request.
func NewJob(id int64, url, quality, knownTitle string, removeWatermark bool, now time.Time) *Job {
	if quality == "" {
		quality = QualityBest
	}
	title := strings.TrimSpace(knownTitle)
	if title == "" {
		title = TitlePending
	}
	j := &Job{
		ID:              id,
		URL:             url,
		Quality:         quality,
		RemoveWatermark: removeWatermark,
		Title:           title,
		State:           StateQueued,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	j.StatusText = StatusLine(j.DisplayTitle(), StateQueued, "")
	return j
}

// TitleKnown reports whether the title was resolved rather than a placeholder.
func (j *Job) TitleKnown() bool {
	return j.Title != "" && j.Title != TitlePending && j.Title != TitleUnknown
}

// DisplayTitle shortens long titles for status lines.
func (j *Job) DisplayTitle() string {
	return ShortTitle(j.Title)
}

func ShortTitle(title string) string {
	r := []rune(title)
	if len(r) > maxDisplayTitle {
		return string(r[:displayTitleKeep]) + "..."
	}
	return title
}

// StatusLine composes the human readable status shown next to a job.
func StatusLine(title string, s State, detail string) string {
	switch s {
	case StateQueued:
		return title + " - Queued"
	case StateStarting:
		return title + " - Starting..."
	case StateCompleted:
		return title + " - Completed"
	case StateError:
		if detail != "" {
			return "Error: " + title + " (" + detail + ")"
		}
		return "Error: " + title
	case StateStopped:
		return title + " - Stopped"
	case StateInterrupted:
		return title + " - Interrupted"
	}
	if detail != "" {
		return title + " - " + detail
	}
	return fmt.Sprintf("%s - %s", title, s)
}

// Running reports whether a worker is attached to the job.
func (j *Job) Running() bool {
	return j.Handle != nil
}

// ResetForRetry prepares a terminal job for another round in the queue.
func (j *Job) ResetForRetry(now time.Time) {
	j.RetryCount = 0
	j.ManualStop = false
	j.Completed = false
	j.Progress = nil
	j.FilePath = ""
	j.LastError = ""
	j.State = StateQueued
	j.StatusText = StatusLine(j.DisplayTitle(), StateQueued, "")
	j.UpdatedAt = now
}

// Params are the immutable request parameters of a job.
type Params struct {
	URL             string `json:"url"`
	Quality         string `json:"quality"`
	KnownTitle      string `json:"known_title,omitempty"`
	RemoveWatermark bool   `json:"remove_watermark"`
}

// Snapshot is the read-only projection handed to callers and observers.
type Snapshot struct {
	ID              int64     `json:"id"`
	URL             string    `json:"url"`
	Quality         string    `json:"quality"`
	RemoveWatermark bool      `json:"remove_watermark"`
	Params          Params    `json:"params"`
	Title           string    `json:"title"`
	State           State     `json:"state"`
	StatusText      string    `json:"status_text"`
	Progress        *float64  `json:"progress,omitempty"`
	FilePath        string    `json:"file_path,omitempty"`
	CurrentFilename string    `json:"current_filename,omitempty"`
	RetryCount      int       `json:"retry_count"`
	ManualStop      bool      `json:"manual_stop"`
	Completed       bool      `json:"completed"`
	LastError       string    `json:"last_error,omitempty"`
	Running         bool      `json:"running"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (j *Job) Snapshot() Snapshot {
	s := Snapshot{
		ID:              j.ID,
		URL:             j.URL,
		Quality:         j.Quality,
		RemoveWatermark: j.RemoveWatermark,
		Title:           j.Title,
		State:           j.State,
		StatusText:      j.StatusText,
		FilePath:        j.FilePath,
		CurrentFilename: j.CurrentFilename,
		RetryCount:      j.RetryCount,
		ManualStop:      j.ManualStop,
		Completed:       j.Completed,
		LastError:       j.LastError,
		Running:         j.Running(),
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
	}
	s.Params = Params{URL: j.URL, Quality: j.Quality, RemoveWatermark: j.RemoveWatermark}
	if j.TitleKnown() {
		s.Params.KnownTitle = j.Title
	}
	if j.Progress != nil {
		p := *j.Progress
		s.Progress = &p
	}
	return s
}
