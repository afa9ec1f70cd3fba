package controllers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v5"
)

func parseID(c *echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Invalid download id")
	}
	return id, nil
}

func parseLimit(c *echo.Context, def int) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Invalid limit")
	}
	return n, nil
}

func notFound() error {
	return echo.NewHTTPError(http.StatusNotFound, "Download not found")
}
