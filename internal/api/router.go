package api

import (
	"github.com/datallboy/gotok/internal/api/controllers"
	"github.com/datallboy/gotok/internal/app"
	"github.com/datallboy/gotok/internal/engine"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
)

// NewServer builds the echo instance serving the download API and subscribes
// its event broker to mgr.
func NewServer(app *app.Context, mgr *engine.Manager) *echo.Echo {
	e := echo.New()
	RegisterRoutes(e, app, mgr)
	return e
}

func RegisterRoutes(e *echo.Echo, app *app.Context, mgr *engine.Manager) {

	// Middleware: Request Logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			app.Logger.Debug("%s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	events := controllers.NewEventBroker(app.Logger)
	mgr.AddObserver(events)

	dl := &controllers.DownloadsController{App: app, Manager: mgr}
	stats := &controllers.StatsController{Manager: mgr}

	g := e.Group("/api")
	g.GET("/downloads", dl.List)
	g.POST("/downloads", dl.Create)
	g.POST("/downloads/stop-all", dl.StopAll)
	g.POST("/downloads/clear-completed", dl.ClearCompleted)
	g.GET("/downloads/:id", dl.Get)
	g.DELETE("/downloads/:id", dl.Remove)
	g.POST("/downloads/:id/retry", dl.Retry)
	g.POST("/downloads/:id/stop", dl.Stop)
	g.POST("/downloads/:id/open", dl.Open)

	g.GET("/stats", stats.Stats)
	g.DELETE("/stats", stats.Reset)
	g.GET("/history", stats.History)
	g.POST("/maintenance/update-tool", stats.UpdateTool)

	// Live updates for CLI watchers
	g.GET("/events", events.Stream)
}
