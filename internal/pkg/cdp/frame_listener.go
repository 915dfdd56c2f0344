package cdp

import (
	"context"
	"encoding/json"
)

type requestWillBeSentParams struct {
	FrameID   string `json:"frameId"`
	RequestID string `json:"requestId"`
}

type responseReceivedParams struct {
	RequestID string          `json:"requestId"`
	Response  json.RawMessage `json:"response"`
}

type frameResponse struct {
	response json.RawMessage
	err      error
}

// FrameRequestListener correlates a frame's main navigation to the
// HTTP-level response for that frame's main request: it binds to the
// first Network.requestWillBeSent matching the target frame, then to
// the first Network.responseReceived matching that request's ID.
// Intermediary redirects, observed as later requestWillBeSent/
// responseReceived pairs, are ignored by construction: the listener
// only ever looks at the first requestId it captures.
type FrameRequestListener struct {
	result chan frameResponse
}

// NewFrameRequestListener arms the listener. It must be constructed
// before navigation is issued, since Network.requestWillBeSent
// frequently precedes the navigation command's own reply.
func NewFrameRequestListener(session *Session, frameID string) *FrameRequestListener {
	l := &FrameRequestListener{result: make(chan frameResponse, 1)}
	reqSub := session.Subscribe("Network.requestWillBeSent")
	respSub := session.Subscribe("Network.responseReceived")
	go l.run(reqSub, respSub, frameID)
	return l
}

func (l *FrameRequestListener) run(reqSub, respSub *Subscription, frameID string) {
	defer reqSub.Close()
	defer respSub.Close()

	ctx := context.Background()

	var requestID string
	for requestID == "" {
		f, err := reqSub.Next(ctx)
		if err != nil {
			l.result <- frameResponse{err: err}
			return
		}
		var p requestWillBeSentParams
		if err := json.Unmarshal(f.Params, &p); err != nil {
			continue
		}
		if p.FrameID == frameID {
			requestID = p.RequestID
		}
	}

	for {
		f, err := respSub.Next(ctx)
		if err != nil {
			l.result <- frameResponse{err: err}
			return
		}
		var p responseReceivedParams
		if err := json.Unmarshal(f.Params, &p); err != nil {
			continue
		}
		if p.RequestID == requestID {
			l.result <- frameResponse{response: p.Response}
			return
		}
	}
}

// Await blocks until the correlated response arrives or ctx is done.
// The listener keeps running past a timed-out Await (the caller's ctx
// expiring doesn't stop the underlying subscriptions), since the
// session's eventual Disconnect is what guarantees their cleanup.
func (l *FrameRequestListener) Await(ctx context.Context) (json.RawMessage, error) {
	select {
	case r := <-l.result:
		return r.response, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
