package controllers

import (
	"errors"
	"net/http"

	"github.com/datallboy/gotok/internal/domain"
	"github.com/datallboy/gotok/internal/engine"
	"github.com/labstack/echo/v5"
)

const defaultHistoryLimit = 50

type StatsController struct {
	Manager *engine.Manager
}

func (ctrl *StatsController) Stats(c *echo.Context) error {
	return c.JSON(http.StatusOK, ctrl.Manager.Stats(c.Request().Context()))
}

func (ctrl *StatsController) Reset(c *echo.Context) error {
	if err := ctrl.Manager.ResetStats(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to reset statistics")
	}
	return c.NoContent(http.StatusNoContent)
}

func (ctrl *StatsController) History(c *echo.Context) error {
	limit, err := parseLimit(c, defaultHistoryLimit)
	if err != nil {
		return err
	}
	entries, err := ctrl.Manager.History(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to read history")
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	return c.JSON(http.StatusOK, HistoryResponse{Entries: entries})
}

// UpdateTool runs the yt-dlp self-update synchronously.
func (ctrl *StatsController) UpdateTool(c *echo.Context) error {
	msg, err := ctrl.Manager.UpdateTool(c.Request().Context())
	switch {
	case errors.Is(err, engine.ErrDownloadsPending), errors.Is(err, engine.ErrMaintenanceRunning):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrNoUpdater):
		return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, UpdateToolResponse{Message: msg})
}
