package xhttp

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/flyte/chromium-pdf-api/internal/pkg/xlog"
)

const traceHeader = "X-Trace"

// loggerMiddleware attaches a per-request xlog.Logger, tagged with a
// trace ID taken from the request or minted fresh, to the echo
// context.
func loggerMiddleware(logger xlog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			trace := c.Request().Header.Get(traceHeader)
			if trace == "" {
				trace = uuid.New().String()
			}
			c.Set("logger", xlog.New(logger.Level(), trace))
			return next(c)
		}
	}
}

// errorMiddleware maps handler errors to the HTTP status codes the
// collaborator-facing API promises, logging anything it doesn't
// recognize before falling back to 500.
func errorMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}
			if httpErr, ok := err.(*echo.HTTPError); ok {
				return c.JSON(httpErr.Code, httpErr.Message)
			}
			const op string = "xhttp.errorMiddleware"
			if logger, ok := c.Get("logger").(xlog.Logger); ok {
				logger.ErrorOp(op, err)
			}
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": err.Error()})
		}
	}
}
