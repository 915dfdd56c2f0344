package cdp

import "errors"

// ErrClosed indicates the transport's peer closed the connection, or
// the transport was cancelled locally.
var ErrClosed = errors.New("cdp: transport closed")

// ErrPayloadTooBig indicates an inbound frame exceeded the transport's
// configured max frame size.
var ErrPayloadTooBig = errors.New("cdp: payload too big")

// ErrReceiveLoopStopped indicates a session's receive loop has
// terminated while a caller was still waiting on it, and no more
// specific cause was recorded.
var ErrReceiveLoopStopped = errors.New("cdp: receive loop stopped")
