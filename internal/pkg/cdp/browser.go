package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/flyte/chromium-pdf-api/internal/pkg/xlog"
)

// Tab is a browser rendering context opened via the JSON endpoint.
type Tab struct {
	ID                   string `json:"id"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Browser is the thin HTTP client for Chromium's /json/* control
// plane: opening and closing tabs, and probing liveness for the
// healthcheck. It is a local loopback call that occasionally refuses a
// connection for a few hundred milliseconds right after a tab opens or
// closes, so it retries with bounded backoff.
type Browser struct {
	host   string
	client *retryablehttp.Client
}

// NewBrowser returns a Browser talking to the given CDP host, e.g.
// "http://localhost:9222".
func NewBrowser(host string, logger xlog.Logger) *Browser {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 500 * time.Millisecond
	client.Logger = xlog.NewLeveledLogger(logger, "cdp.Browser")
	return &Browser{host: host, client: client}
}

// OpenTab asks the browser for a fresh tab.
func (b *Browser) OpenTab(ctx context.Context) (Tab, error) {
	const op string = "cdp.Browser.OpenTab"
	var tab Tab
	if err := b.getJSON(ctx, "/json/new", &tab); err != nil {
		return Tab{}, fmt.Errorf("%s: %w", op, err)
	}
	return tab, nil
}

// CloseTab asks the browser to close a tab. It is the orchestrator's
// finalizer and runs on every exit path; callers should log rather
// than fail the whole request on its error.
func (b *Browser) CloseTab(ctx context.Context, id string) error {
	const op string = "cdp.Browser.CloseTab"
	if err := b.getJSON(ctx, "/json/close/"+id, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Healthy reports whether the browser's JSON endpoint is reachable.
func (b *Browser) Healthy(ctx context.Context) bool {
	req, err := retryablehttp.NewRequest(http.MethodGet, b.host+"/json", nil)
	if err != nil {
		return false
	}
	req = req.WithContext(ctx)
	resp, err := b.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (b *Browser) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := retryablehttp.NewRequest(http.MethodGet, b.host+path, nil)
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
