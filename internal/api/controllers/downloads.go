package controllers

import (
	"net/http"
	"strings"

	"github.com/datallboy/gotok/internal/app"
	"github.com/datallboy/gotok/internal/engine"
	"github.com/labstack/echo/v5"
)

type DownloadsController struct {
	App     *app.Context
	Manager *engine.Manager
}

func (ctrl *DownloadsController) List(c *echo.Context) error {
	return c.JSON(http.StatusOK, DownloadList{
		Downloads: ctrl.Manager.Snapshots(),
		Active:    ctrl.Manager.ActiveCount(),
		Queued:    ctrl.Manager.QueuedCount(),
	})
}

func (ctrl *DownloadsController) Get(c *echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	snap, ok := ctrl.Manager.Snapshot(id)
	if !ok {
		return notFound()
	}
	return c.JSON(http.StatusOK, snap)
}

// Create queues a new download. A URL that already has an unfinished job is
// rejected with 409.
func (ctrl *DownloadsController) Create(c *echo.Context) error {
	var req CreateDownloadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing url")
	}
	if ctrl.Manager.IsURLActive(req.URL) {
		return echo.NewHTTPError(http.StatusConflict, "Download already in progress")
	}

	cfg := ctrl.App.Config.Download
	quality := req.Quality
	if quality == "" {
		quality = cfg.DefaultQuality
	}
	removeWatermark := cfg.RemoveWatermark
	if req.RemoveWatermark != nil {
		removeWatermark = *req.RemoveWatermark
	}

	id := ctrl.Manager.StartDownload(req.URL, quality, req.Title, removeWatermark)
	snap, _ := ctrl.Manager.Snapshot(id)
	return c.JSON(http.StatusCreated, snap)
}

func (ctrl *DownloadsController) Retry(c *echo.Context) error {
	return ctrl.act(c, ctrl.Manager.RetryDownload)
}

func (ctrl *DownloadsController) Stop(c *echo.Context) error {
	return ctrl.act(c, func(id int64) bool {
		return ctrl.Manager.StopDownload(id, c.QueryParam("dir"))
	})
}

func (ctrl *DownloadsController) Open(c *echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if _, ok := ctrl.Manager.Snapshot(id); !ok {
		return notFound()
	}
	if !ctrl.Manager.OpenFileLocation(id, c.QueryParam("dir")) {
		return echo.NewHTTPError(http.StatusInternalServerError, "Could not open file location")
	}
	return c.NoContent(http.StatusNoContent)
}

func (ctrl *DownloadsController) Remove(c *echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if !ctrl.Manager.RemoveDownload(id, c.QueryParam("dir")) {
		return notFound()
	}
	return c.NoContent(http.StatusNoContent)
}

func (ctrl *DownloadsController) StopAll(c *echo.Context) error {
	n := ctrl.Manager.StopAll(c.QueryParam("dir"))
	return c.JSON(http.StatusOK, CountResponse{Count: n})
}

func (ctrl *DownloadsController) ClearCompleted(c *echo.Context) error {
	return c.JSON(http.StatusOK, CountResponse{Count: ctrl.Manager.ClearCompleted()})
}

// act runs a per-id action that reports false when nothing changed. An
// unknown id is 404, a known job the action declined is 409.
func (ctrl *DownloadsController) act(c *echo.Context, fn func(int64) bool) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if _, ok := ctrl.Manager.Snapshot(id); !ok {
		return notFound()
	}
	if !fn(id) {
		return echo.NewHTTPError(http.StatusConflict, "Download is not in a state that allows this action")
	}
	snap, _ := ctrl.Manager.Snapshot(id)
	return c.JSON(http.StatusOK, snap)
}
