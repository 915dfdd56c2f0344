package cdp

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// transport wraps the websocket connection to a single browser tab. It
// is single-writer-single-reader: only Send writes, and only the
// owning Session's receive loop ever calls Receive.
type transport struct {
	conn         *websocket.Conn
	closeTimeout time.Duration
	writeMu      sync.Mutex
}

// dial establishes the websocket connection. maxFrameSize bounds the
// largest inbound frame the peer may send. Ping/pong keepalive is
// never enabled: a ping timeout racing a long Page.printToPDF reply
// would tear the session down spuriously.
func dial(ctx context.Context, url string, maxFrameSize int64, closeTimeout time.Duration) (*transport, error) {
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxFrameSize)
	return &transport{conn: conn, closeTimeout: closeTimeout}, nil
}

// send writes one text frame. Concurrent Send calls are serialized here,
// so the connection only ever sees one writer at a time.
func (t *transport) send(b []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, b)
}

// receive blocks until the next text frame arrives. It is a plain
// blocking read: the receive loop has no other way to observe a
// disconnect request than Disconnect closing the connection out from
// under it, which unblocks this call with an error. Arming a read
// deadline here to poll for cancellation instead would be wrong — once
// gorilla/websocket sees a single read-deadline timeout it latches the
// error permanently in the connection, and every later ReadMessage
// returns it immediately, so the loop would stop receiving real frames
// after the first idle second. It fails with ErrPayloadTooBig when the
// inbound frame exceeds the configured max frame size, and with
// ErrClosed for anything else (the peer went away, or the socket was
// closed locally).
func (t *transport) receive() ([]byte, error) {
	_, b, err := t.conn.ReadMessage()
	if err == nil {
		return b, nil
	}
	if err == websocket.ErrReadLimit {
		return nil, ErrPayloadTooBig
	}
	return nil, ErrClosed
}

// close gracefully closes the connection, bounded by closeTimeout.
func (t *transport) close() error {
	deadline := time.Now().Add(t.closeTimeout)
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return t.conn.Close()
}
