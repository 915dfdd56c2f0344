package printer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flyte/chromium-pdf-api/internal/pkg/cdp"
	"github.com/flyte/chromium-pdf-api/internal/pkg/xlog"
)

// browserFixture stands in for a headless Chromium instance: it serves
// the /json/new and /json/close/{id} control plane, and upgrades the
// returned websocket URL into a scripted CDP peer.
type browserFixture struct {
	httpSrv *httptest.Server
	wsSrv   *httptest.Server
	conn    *websocket.Conn
	recv    chan []byte

	// reply is invoked for every outbound command the orchestrator
	// sends; tests customize it per scenario.
	reply func(cmd outboundFrameForTest) (json.RawMessage, bool)
}

type outboundFrameForTest struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func newBrowserFixture(t *testing.T) *browserFixture {
	t.Helper()
	f := &browserFixture{recv: make(chan []byte, 64)}

	upgrader := websocket.Upgrader{}
	f.wsSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.conn = conn
		go f.pump(conn)
	}))

	mux := http.NewServeMux()
	mux.HandleFunc("/json/new", func(w http.ResponseWriter, r *http.Request) {
		wsURL := "ws" + strings.TrimPrefix(f.wsSrv.URL, "http") + "/"
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "tab-1", "webSocketDebuggerUrl": wsURL})
	})
	mux.HandleFunc("/json/close/tab-1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	f.httpSrv = httptest.NewServer(mux)

	return f
}

func (f *browserFixture) pump(conn *websocket.Conn) {
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd outboundFrameForTest
		if err := json.Unmarshal(b, &cmd); err != nil {
			continue
		}
		if f.reply == nil {
			continue
		}
		result, handled := f.reply(cmd)
		if !handled {
			continue
		}
		_ = conn.WriteJSON(map[string]interface{}{"id": cmd.ID, "result": result})
	}
}

func (f *browserFixture) event(method string, params interface{}) {
	b, _ := json.Marshal(params)
	_ = f.conn.WriteJSON(map[string]interface{}{"method": method, "params": json.RawMessage(b)})
}

func (f *browserFixture) close() {
	f.wsSrv.Close()
	f.httpSrv.Close()
}

func newPrinter(f *browserFixture) *ChromePrinter {
	logger := xlog.New(xlog.ErrorLevel, "test")
	browser := cdp.NewBrowser(f.httpSrv.URL, logger)
	gate := NewConcurrencyGate(10)
	return NewChromePrinter(browser, gate, logger, 10*time.Second, 5*time.Second)
}

func rawJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}
