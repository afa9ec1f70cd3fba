package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// EpochTime marshals as fractional unix seconds. It also reads RFC3339 strings.
type EpochTime time.Time

func (t EpochTime) Time() time.Time { return time.Time(t) }

func (t EpochTime) MarshalJSON() ([]byte, error) {
	tt := time.Time(t)
	if tt.IsZero() {
		return []byte("0"), nil
	}
	secs := float64(tt.UnixNano()) / float64(time.Second)
	return []byte(strconv.FormatFloat(secs, 'f', 6, 64)), nil
}

func (t *EpochTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = EpochTime{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*t = EpochTime{}
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("parse timestamp %q: %w", s, err)
		}
		*t = EpochTime(parsed)
		return nil
	}
	secs, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("parse timestamp %s: %w", b, err)
	}
	if secs <= 0 {
		*t = EpochTime{}
		return nil
	}
	whole, frac := math.Modf(secs)
	*t = EpochTime(time.Unix(int64(whole), int64(frac*float64(time.Second))))
	return nil
}

// LegacyParams is the nested request block written by early versions.
type LegacyParams struct {
	URL             string `json:"url"`
	Quality         string `json:"quality_str"`
	RemoveWatermark *bool  `json:"remove_watermark,omitempty"`
}

// Record is the persistable projection of a Job.
type Record struct {
	ID              int64     `json:"id,omitempty"`
	URL             string    `json:"url,omitempty"`
	Quality         string    `json:"quality_str,omitempty"`
	RemoveWatermark *bool     `json:"remove_watermark,omitempty"`
	Title           string    `json:"title,omitempty"`
	State           State     `json:"state,omitempty"`
	StatusText      string    `json:"statusText,omitempty"`
	Progress        *float64  `json:"progress"`
	FilePath        string    `json:"file_path,omitempty"`
	CurrentFilename string    `json:"current_filename,omitempty"`
	RetryCount      int       `json:"retry_count"`
	ManualStop      bool      `json:"manual_stop"`
	Completed       bool      `json:"completed"`
	LastError       string    `json:"last_error,omitempty"`
	CreatedAt       EpochTime `json:"created_at"`
	UpdatedAt       EpochTime `json:"updated_at"`

	// Legacy fields, read only.
	Params *LegacyParams `json:"params,omitempty"`
	Status string        `json:"status,omitempty"`
}

func (j *Job) Record() Record {
	rw := j.RemoveWatermark
	r := Record{
		ID:              j.ID,
		URL:             j.URL,
		Quality:         j.Quality,
		RemoveWatermark: &rw,
		Title:           j.Title,
		State:           j.State,
		StatusText:      j.StatusText,
		FilePath:        j.FilePath,
		CurrentFilename: j.CurrentFilename,
		RetryCount:      j.RetryCount,
		ManualStop:      j.ManualStop,
		Completed:       j.Completed,
		LastError:       j.LastError,
		CreatedAt:       EpochTime(j.CreatedAt),
		UpdatedAt:       EpochTime(j.UpdatedAt),
	}
	if j.Progress != nil {
		p := *j.Progress
		r.Progress = &p
	}
	return r
}

// JobFromRecord rebuilds a job from a persisted record. key is the mapping key
// the record was stored under and supplies the id when the record has none.
// The returned job carries no worker handle.
func JobFromRecord(key string, r Record) (*Job, error) {
	id := r.ID
	if id == 0 {
		parsed, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%w: no usable id under key %q", ErrInvalidRecord, key)
		}
		id = parsed
	}

	url, quality, rw := r.URL, r.Quality, r.RemoveWatermark
	if r.Params != nil {
		if url == "" {
			url = r.Params.URL
		}
		if quality == "" {
			quality = r.Params.Quality
		}
		if rw == nil {
			rw = r.Params.RemoveWatermark
		}
	}
	if url == "" {
		return nil, fmt.Errorf("%w: download %d has no url", ErrInvalidRecord, id)
	}
	if quality == "" {
		quality = QualityBest
	}

	statusText := r.StatusText
	if statusText == "" {
		statusText = r.Status
	}
	state := r.State
	if !state.Valid() {
		state = StateFromStatusText(statusText)
	}

	title := strings.TrimSpace(r.Title)
	if title == "" || title == TitlePending {
		title = TitleUnknown
	}

	j := &Job{
		ID:              id,
		URL:             url,
		Quality:         quality,
		RemoveWatermark: rw == nil || *rw,
		Title:           title,
		State:           state,
		StatusText:      statusText,
		FilePath:        r.FilePath,
		CurrentFilename: r.CurrentFilename,
		RetryCount:      r.RetryCount,
		ManualStop:      r.ManualStop,
		Completed:       r.Completed || state == StateCompleted,
		LastError:       r.LastError,
		CreatedAt:       r.CreatedAt.Time(),
		UpdatedAt:       r.UpdatedAt.Time(),
	}
	if j.Completed {
		j.State = StateCompleted
	}
	if r.Progress != nil {
		p := *r.Progress
		j.Progress = &p
	}
	if j.StatusText == "" {
		j.StatusText = StatusLine(j.DisplayTitle(), j.State, "")
	}
	return j, nil
}
