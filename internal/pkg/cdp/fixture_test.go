package cdp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

// fixtureServer is a minimal scripted CDP peer: tests drive it by
// writing raw text frames with sendText/sendJSON and reading what real
// code writes off recv.
type fixtureServer struct {
	srv  *httptest.Server
	conn *websocket.Conn
	recv chan []byte
}

func newFixtureServer(t *testing.T) *fixtureServer {
	t.Helper()
	upgrader := websocket.Upgrader{}
	f := &fixtureServer{recv: make(chan []byte, 64)}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.conn = conn
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				close(f.recv)
				return
			}
			f.recv <- b
		}
	}))
	return f
}

func (f *fixtureServer) wsURL() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/"
}

func (f *fixtureServer) sendText(t *testing.T, text string) {
	t.Helper()
	if err := f.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		t.Fatalf("fixture send: %v", err)
	}
}

func (f *fixtureServer) sendJSON(t *testing.T, v interface{}) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("fixture marshal: %v", err)
	}
	f.sendText(t, string(b))
}

// nextCommand waits for the next frame the code under test sent and
// decodes it as an outbound command.
func (f *fixtureServer) nextCommand(t *testing.T) outboundFrame {
	t.Helper()
	b, ok := <-f.recv
	if !ok {
		t.Fatalf("fixture: connection closed before a command arrived")
	}
	var cmd outboundFrame
	if err := json.Unmarshal(b, &cmd); err != nil {
		t.Fatalf("fixture decode command: %v", err)
	}
	return cmd
}

func (f *fixtureServer) close() {
	f.srv.Close()
}
