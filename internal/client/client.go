package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/datallboy/gotok/internal/api/controllers"
	"github.com/datallboy/gotok/internal/domain"
)

// ErrNotFound is returned for 404 responses.
var ErrNotFound = domain.ErrJobNotFound

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Client talks to a running `gotok serve` instance.
type Client struct {
	base string
	http *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 2 * time.Minute},
	}
}

// AddOptions mirrors the create request; nil fields use server defaults.
type AddOptions struct {
	Quality         string
	Title           string
	RemoveWatermark *bool
}

func (c *Client) Add(ctx context.Context, rawURL string, opts AddOptions) (domain.Snapshot, error) {
	body := controllers.CreateDownloadRequest{
		URL:             rawURL,
		Quality:         opts.Quality,
		Title:           opts.Title,
		RemoveWatermark: opts.RemoveWatermark,
	}
	var snap domain.Snapshot
	err := c.do(ctx, http.MethodPost, "/api/downloads", body, &snap)
	return snap, err
}

func (c *Client) List(ctx context.Context) (controllers.DownloadList, error) {
	var list controllers.DownloadList
	err := c.do(ctx, http.MethodGet, "/api/downloads", nil, &list)
	return list, err
}

func (c *Client) Get(ctx context.Context, id int64) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := c.do(ctx, http.MethodGet, downloadPath(id, ""), nil, &snap)
	return snap, err
}

func (c *Client) Stop(ctx context.Context, id int64) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := c.do(ctx, http.MethodPost, downloadPath(id, "stop"), nil, &snap)
	return snap, err
}

func (c *Client) Retry(ctx context.Context, id int64) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := c.do(ctx, http.MethodPost, downloadPath(id, "retry"), nil, &snap)
	return snap, err
}

func (c *Client) Open(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, downloadPath(id, "open"), nil, nil)
}

func (c *Client) Remove(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, downloadPath(id, ""), nil, nil)
}

func (c *Client) StopAll(ctx context.Context) (int, error) {
	var res controllers.CountResponse
	err := c.do(ctx, http.MethodPost, "/api/downloads/stop-all", nil, &res)
	return res.Count, err
}

func (c *Client) ClearCompleted(ctx context.Context) (int, error) {
	var res controllers.CountResponse
	err := c.do(ctx, http.MethodPost, "/api/downloads/clear-completed", nil, &res)
	return res.Count, err
}

func (c *Client) Stats(ctx context.Context) (domain.Stats, error) {
	var s domain.Stats
	err := c.do(ctx, http.MethodGet, "/api/stats", nil, &s)
	return s, err
}

func (c *Client) ResetStats(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/stats", nil, nil)
}

func (c *Client) History(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	var res controllers.HistoryResponse
	err := c.do(ctx, http.MethodGet, "/api/history?"+q.Encode(), nil, &res)
	return res.Entries, err
}

func (c *Client) UpdateTool(ctx context.Context) (string, error) {
	var res controllers.UpdateToolResponse
	err := c.do(ctx, http.MethodPost, "/api/maintenance/update-tool", nil, &res)
	return res.Message, err
}

func downloadPath(id int64, action string) string {
	p := "/api/downloads/" + strconv.FormatInt(id, 10)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contact gotok server at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Message string `json:"message"`
	}
	msg := strings.TrimSpace(string(b))
	if json.Unmarshal(b, &payload) == nil && payload.Message != "" {
		msg = payload.Message
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
