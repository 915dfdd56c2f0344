// Package xhttp is the collaborator-facing HTTP layer: it decodes
// requests, calls into the printer orchestrator, and formats
// responses. It never makes a CDP decision itself.
package xhttp

import (
	"github.com/labstack/echo/v4"

	"github.com/flyte/chromium-pdf-api/internal/pkg/cdp"
	"github.com/flyte/chromium-pdf-api/internal/pkg/conf"
	"github.com/flyte/chromium-pdf-api/internal/pkg/printer"
	"github.com/flyte/chromium-pdf-api/internal/pkg/xlog"
)

// New returns a configured echo.Echo exposing the two routes: PDF
// rendering and the browser healthcheck.
func New(config conf.Config, browser *cdp.Browser, chromePrinter *printer.ChromePrinter, logger xlog.Logger) *echo.Echo {
	srv := echo.New()
	srv.HideBanner = true
	srv.HidePort = true

	srv.Use(loggerMiddleware(logger))
	srv.Use(errorMiddleware())

	h := &handlers{config: config, browser: browser, printer: chromePrinter}

	srv.POST("/", h.render)
	srv.GET("/healthcheck/", h.healthcheck)
	return srv
}
