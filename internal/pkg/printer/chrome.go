package printer

import (
	"context"
	"encoding/json"
	"time"

	protocol "github.com/chromedp/cdproto/cdp"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/flyte/chromium-pdf-api/internal/pkg/cdp"
	"github.com/flyte/chromium-pdf-api/internal/pkg/xerror"
	"github.com/flyte/chromium-pdf-api/internal/pkg/xlog"
	"github.com/flyte/chromium-pdf-api/internal/pkg/xtime"
)

const tabCloseTimeout = 5 * time.Second
const cooperativeLoadSelector = "input.pdfloading[value='loading']"

// Request bundles every input to GetPDF.
type Request struct {
	URL           string
	Options       PDFOptions
	MaxSize       int64
	LoadTimeout   float64
	StatusTimeout float64
	PrintTimeout  float64
	LoadedEvent   string
	Trace         string
}

// ChromePrinter drives headless Chromium over CDP to render one URL to
// a PDF per request. It owns the browser control-plane client and the
// process-wide concurrency gate; everything else lives on the stack of
// a single GetPDF call: tab, session, listeners, all opened and torn
// down within it.
type ChromePrinter struct {
	browser        *cdp.Browser
	gate           *ConcurrencyGate
	logger         xlog.Logger
	commandTimeout time.Duration
	closeTimeout   time.Duration
}

// NewChromePrinter returns a ChromePrinter. commandTimeout bounds every
// individual CDP command the orchestrator issues outside of
// Page.printToPDF (which is bounded by the request's own print
// timeout instead); closeTimeout bounds how long the transport waits
// for its close handshake to complete.
func NewChromePrinter(browser *cdp.Browser, gate *ConcurrencyGate, logger xlog.Logger, commandTimeout, closeTimeout time.Duration) *ChromePrinter {
	return &ChromePrinter{browser: browser, gate: gate, logger: logger, commandTimeout: commandTimeout, closeTimeout: closeTimeout}
}

// GetPDF renders req.URL to a base64-encoded PDF: acquire permit, open
// tab, connect session, orchestrate, always close tab and session,
// release permit.
func (p *ChromePrinter) GetPDF(ctx context.Context, req Request) (string, error) {
	const op string = "printer.ChromePrinter.GetPDF"

	logger := p.logger
	if req.Trace != "" {
		logger = logger.WithFields(map[string]interface{}{"trace": req.Trace})
	}

	if err := p.gate.Acquire(ctx); err != nil {
		return "", xerror.New(op, err)
	}
	defer p.gate.Release()

	tab, err := p.browser.OpenTab(ctx)
	if err != nil {
		return "", xerror.New(op, err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), tabCloseTimeout)
		defer cancel()
		if err := p.browser.CloseTab(closeCtx, tab.ID); err != nil {
			logger.ErrorOp(op, err)
		}
	}()

	session, err := cdp.Connect(ctx, logger, tab.WebSocketDebuggerURL, req.MaxSize, p.closeTimeout)
	if err != nil {
		return "", xerror.New(op, err)
	}
	defer session.Disconnect()

	return orchestrate(ctx, session, logger, req, p.commandTimeout)
}

// orchestrate is the PDF state machine: enable domains, discover the
// main frame, arm the frame request listener before navigating, open
// the cooperative-load subscription, navigate, await load, verify
// status, optionally wait for the application's own loaded signal,
// print.
func orchestrate(ctx context.Context, session *cdp.Session, logger xlog.Logger, req Request, commandTimeout time.Duration) (string, error) {
	const op string = "printer.orchestrate"

	if err := enableDomains(ctx, session, commandTimeout); err != nil {
		return "", xerror.New(op, err)
	}

	frameID, err := mainFrameID(ctx, session, commandTimeout)
	if err != nil {
		return "", xerror.New(op, err)
	}

	// armed before navigation: Network.requestWillBeSent frequently
	// precedes the navigation command's own reply.
	listener := cdp.NewFrameRequestListener(session, string(frameID))

	attrSub := session.Subscribe("DOM.attributeModified")
	defer attrSub.Close()

	if err := navigate(ctx, session, req.URL, frameID, commandTimeout); err != nil {
		return "", err
	}

	loadedEvent := req.LoadedEvent
	if loadedEvent == "" {
		loadedEvent = "Page.loadEventFired"
	}
	if err := awaitLoad(ctx, session, loadedEvent, req.LoadTimeout); err != nil {
		return "", err
	}

	resp, err := verifyStatus(ctx, listener, req.StatusTimeout)
	if err != nil {
		return "", err
	}
	if resp.Status != 304 && (resp.Status < 200 || resp.Status >= 300) {
		return "", &NavigationError{URL: resp.URL, StatusCode: resp.Status}
	}

	if err := awaitCooperativeLoad(ctx, session, attrSub, req.LoadTimeout, commandTimeout); err != nil {
		return "", err
	}

	data, err := printToPDF(ctx, session, req.Options, req.PrintTimeout)
	if err != nil {
		return "", err
	}

	logger.DebugOpf(op, "produced pdf of %s", humanize.Bytes(uint64(len(data))))
	return data, nil
}

func enableDomains(ctx context.Context, session *cdp.Session, commandTimeout time.Duration) error {
	return runBatch(ctx,
		func() error {
			_, err := session.Send(ctx, "Page.enable", struct{}{}, true, commandTimeout)
			return err
		},
		func() error {
			_, err := session.Send(ctx, "Network.enable", struct{}{}, true, commandTimeout)
			return err
		},
	)
}

func mainFrameID(ctx context.Context, session *cdp.Session, commandTimeout time.Duration) (protocol.FrameID, error) {
	result, err := session.Send(ctx, "Page.getFrameTree", struct{}{}, true, commandTimeout)
	if err != nil {
		return "", err
	}
	var tree struct {
		FrameTree struct {
			Frame struct {
				ID protocol.FrameID `json:"id"`
			} `json:"frame"`
		} `json:"frameTree"`
	}
	if err := json.Unmarshal(result, &tree); err != nil {
		return "", err
	}
	return tree.FrameTree.Frame.ID, nil
}

func navigate(ctx context.Context, session *cdp.Session, url string, frameID protocol.FrameID, commandTimeout time.Duration) error {
	const op string = "printer.navigate"
	result, err := session.Send(ctx, "Page.navigate",
		map[string]string{"url": url, "frameId": string(frameID)}, true, commandTimeout)
	if err != nil {
		return xerror.New(op, err)
	}
	var reply struct {
		ErrorText string `json:"errorText"`
	}
	if err := json.Unmarshal(result, &reply); err != nil {
		return xerror.New(op, err)
	}
	if reply.ErrorText != "" {
		return &NavigationError{URL: url, Message: reply.ErrorText}
	}
	return nil
}

func awaitLoad(ctx context.Context, session *cdp.Session, loadedEvent string, timeout float64) error {
	loadCtx, cancel := context.WithTimeout(ctx, xtime.Duration(timeout))
	defer cancel()
	if _, err := session.WaitFor(loadCtx, loadedEvent); err != nil {
		return &TimeoutError{Kind: PageLoadTimeout}
	}
	return nil
}

type mainResponse struct {
	URL    string `json:"url"`
	Status int    `json:"status"`
}

func verifyStatus(ctx context.Context, listener *cdp.FrameRequestListener, timeout float64) (mainResponse, error) {
	statusCtx, cancel := context.WithTimeout(ctx, xtime.Duration(timeout))
	defer cancel()

	raw, err := listener.Await(statusCtx)
	if err != nil {
		return mainResponse{}, &TimeoutError{Kind: StatusTimeout}
	}
	var resp mainResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mainResponse{}, xerror.New("printer.verifyStatus", err)
	}
	return resp, nil
}

func awaitCooperativeLoad(ctx context.Context, session *cdp.Session, attrSub *cdp.Subscription, loadTimeout float64, commandTimeout time.Duration) error {
	const op string = "printer.awaitCooperativeLoad"

	docResult, err := session.Send(ctx, "DOM.getDocument", struct{}{}, true, commandTimeout)
	if err != nil {
		return xerror.New(op, err)
	}
	var doc struct {
		Root struct {
			NodeID protocol.NodeID `json:"nodeId"`
		} `json:"root"`
	}
	if err := json.Unmarshal(docResult, &doc); err != nil {
		return xerror.New(op, err)
	}

	selResult, err := session.Send(ctx, "DOM.querySelectorAll",
		map[string]interface{}{"nodeId": doc.Root.NodeID, "selector": cooperativeLoadSelector},
		true, commandTimeout)
	if err != nil {
		return xerror.New(op, err)
	}
	var sel struct {
		NodeIDs []protocol.NodeID `json:"nodeIds"`
	}
	if err := json.Unmarshal(selResult, &sel); err != nil {
		return xerror.New(op, err)
	}
	if len(sel.NodeIDs) == 0 {
		return nil
	}

	pending := make(map[protocol.NodeID]struct{}, len(sel.NodeIDs))
	for _, id := range sel.NodeIDs {
		pending[id] = struct{}{}
	}

	for len(pending) > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, xtime.Duration(loadTimeout))
		f, err := attrSub.Next(waitCtx)
		cancel()
		if err != nil {
			return &TimeoutError{Kind: PageLoadTimeout}
		}
		var ev struct {
			NodeID protocol.NodeID `json:"nodeId"`
			Name   string          `json:"name"`
			Value  string          `json:"value"`
		}
		if err := json.Unmarshal(f.Params, &ev); err != nil {
			continue
		}
		if _, ok := pending[ev.NodeID]; !ok {
			continue
		}
		if ev.Name != "value" || ev.Value != "loaded" {
			continue
		}
		delete(pending, ev.NodeID)
	}
	return nil
}

func printToPDF(ctx context.Context, session *cdp.Session, options PDFOptions, timeout float64) (string, error) {
	const op string = "printer.printToPDF"
	if options == nil {
		options = PDFOptions{}
	}
	printDuration := xtime.Duration(timeout)
	printCtx, cancel := context.WithTimeout(ctx, printDuration)
	defer cancel()

	// Send's own response timer must share printCtx's duration: a
	// shorter fixed bound would make Send's generic timeout error fire
	// first, which printCtx.Err() == nil would then mistake for a
	// genuine command failure instead of PDFPrintTimeout.
	result, err := session.Send(printCtx, "Page.printToPDF", options, true, printDuration)
	if err != nil {
		if printCtx.Err() != nil {
			return "", &TimeoutError{Kind: PDFPrintTimeout}
		}
		return "", xerror.New(op, err)
	}
	var reply struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(result, &reply); err != nil {
		return "", xerror.New(op, err)
	}
	return reply.Data, nil
}

// runBatch runs every fn concurrently, waits until all have returned,
// and reports the first error, if any. A failing fn does not cancel
// the others.
func runBatch(ctx context.Context, fn ...func() error) error {
	eg, ctx := errgroup.WithContext(ctx)
	_ = ctx
	for _, f := range fn {
		eg.Go(f)
	}
	return eg.Wait()
}
