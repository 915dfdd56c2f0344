package main

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/flyte/chromium-pdf-api/internal/app/xhttp"
	"github.com/flyte/chromium-pdf-api/internal/pkg/cdp"
	"github.com/flyte/chromium-pdf-api/internal/pkg/conf"
	"github.com/flyte/chromium-pdf-api/internal/pkg/printer"
	"github.com/flyte/chromium-pdf-api/internal/pkg/xlog"
	"github.com/flyte/chromium-pdf-api/internal/pkg/xtime"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	const op string = "main.serve"

	config, err := conf.FromEnv()
	if err != nil {
		return err
	}

	serverLogger := xlog.New(config.ServerLoggerLevel(), "-")
	cdpLogger := xlog.New(config.CDPLoggerLevel(), "-")
	pdfLogger := xlog.New(config.PDFLoggerLevel(), "-")

	browser := cdp.NewBrowser(config.CDPHostURL(), cdpLogger)
	gate := printer.NewConcurrencyGate(config.ConcurrencyLimit())
	chromePrinter := printer.NewChromePrinter(browser, gate, pdfLogger,
		xtime.Duration(config.CommandTimeout()), xtime.Duration(config.CloseTimeout()))

	srv := xhttp.New(config, browser, chromePrinter, serverLogger)
	serverLogger.InfoOp(op, "listening on "+config.ListenOn())
	return http.ListenAndServe(config.ListenOn(), srv)
}
