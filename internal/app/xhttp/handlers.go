package xhttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/flyte/chromium-pdf-api/internal/pkg/cdp"
	"github.com/flyte/chromium-pdf-api/internal/pkg/conf"
	"github.com/flyte/chromium-pdf-api/internal/pkg/printer"
	"github.com/flyte/chromium-pdf-api/internal/pkg/xlog"
	"github.com/flyte/chromium-pdf-api/internal/pkg/xtime"
)

type handlers struct {
	config  conf.Config
	browser *cdp.Browser
	printer *printer.ChromePrinter
}

type renderRequest struct {
	URL           string                 `json:"url"`
	Timeout       *int                   `json:"timeout"`
	Compress      bool                   `json:"compress"`
	Options       map[string]interface{} `json:"options"`
	MaxSize       *int64                 `json:"max_size"`
	LoadTimeout   *int                   `json:"load_timeout"`
	StatusTimeout *int                   `json:"status_timeout"`
	PrintTimeout  *int                   `json:"print_timeout"`
	LoadedEvent   string                 `json:"loaded_event"`
}

// render implements POST /: decode the request, call into the
// orchestrator, and echo every field the caller sent back alongside
// the rendered pdf so callers can correlate responses without a
// dedicated request-id header.
func (h *handlers) render(c echo.Context) error {
	const op string = "xhttp.handlers.render"
	logger, _ := c.Get("logger").(xlog.Logger)

	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not read request body")
	}

	echoed := map[string]interface{}{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &echoed); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "body must be a JSON object")
		}
	}

	var req renderRequest
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "body must be a JSON object")
		}
	}
	if req.URL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "'url' is required")
	}

	outerTimeout := h.config.OuterTimeout()
	if req.Timeout != nil {
		outerTimeout = float64(*req.Timeout)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), xtime.Duration(outerTimeout))
	defer cancel()

	pdfReq := printer.Request{
		URL:           req.URL,
		Options:       printer.PDFOptions(req.Options),
		MaxSize:       h.config.MaxFrameSize(),
		LoadTimeout:   h.config.LoadTimeout(),
		StatusTimeout: h.config.StatusTimeout(),
		PrintTimeout:  h.config.PrintTimeout(),
		LoadedEvent:   h.config.LoadedEvent(),
		Trace:         logger.GetTraceId(),
	}
	if req.MaxSize != nil {
		pdfReq.MaxSize = *req.MaxSize
	}
	if req.LoadTimeout != nil {
		pdfReq.LoadTimeout = float64(*req.LoadTimeout)
	}
	if req.StatusTimeout != nil {
		pdfReq.StatusTimeout = float64(*req.StatusTimeout)
	}
	if req.PrintTimeout != nil {
		pdfReq.PrintTimeout = float64(*req.PrintTimeout)
	}
	if req.LoadedEvent != "" {
		pdfReq.LoadedEvent = req.LoadedEvent
	}

	pdf, err := h.printer.GetPDF(ctx, pdfReq)
	if err != nil {
		return mapPrinterError(err, req.URL)
	}

	if req.Compress {
		pdf, err = printer.Compress(pdf)
		if err != nil {
			logger.ErrorOp(op, err)
			return echo.NewHTTPError(http.StatusInternalServerError, "could not compress pdf")
		}
	}

	echoed["pdf"] = pdf
	return c.JSON(http.StatusOK, echoed)
}

// healthcheck implements GET /healthcheck/.
func (h *handlers) healthcheck(c echo.Context) error {
	if h.browser.Healthy(c.Request().Context()) {
		return c.String(http.StatusOK, "OK")
	}
	return c.String(http.StatusInternalServerError, "unhealthy")
}

func mapPrinterError(err error, requestURL string) error {
	var navErr *printer.NavigationError
	if errors.As(err, &navErr) {
		url := navErr.URL
		if url == "" {
			url = requestURL
		}
		return echo.NewHTTPError(http.StatusFailedDependency, echo.Map{
			"failed_url":  url,
			"status_code": navErr.StatusCode,
			"message":     navErr.Error(),
		})
	}

	var timeoutErr *printer.TimeoutError
	if errors.As(err, &timeoutErr) {
		return echo.NewHTTPError(http.StatusGatewayTimeout, timeoutErr.Error())
	}

	if errors.Is(err, cdp.ErrPayloadTooBig) {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "pdf exceeded max_size")
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return echo.NewHTTPError(http.StatusGatewayTimeout, "timed out")
	}

	if errors.Is(err, cdp.ErrReceiveLoopStopped) {
		return echo.NewHTTPError(http.StatusGatewayTimeout, "cdp session ended unexpectedly")
	}

	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
