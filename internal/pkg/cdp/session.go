// Package cdp implements the Chrome DevTools Protocol session
// multiplexer: one websocket transport to a browser tab, carrying
// interleaved command replies and asynchronous events for many
// concurrent in-flight operations.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/flyte/chromium-pdf-api/internal/pkg/xlog"
)

// Frame is one JSON object exchanged over the websocket: either a
// command reply (ID set, plus Result or Error) or an event (Method
// set, plus Params).
type Frame struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// IsReply reports whether the frame carries a command ID. Session-
// generated IDs are drawn from [1, 1e9], so zero unambiguously means
// "no id" rather than "id 0".
func (f Frame) IsReply() bool { return f.ID != 0 }

type outboundFrame struct {
	ID     int64       `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

// Session multiplexes one transport: it assigns unique command IDs,
// resolves inbound replies against a per-command completion slot, and
// fans out inbound events to any number of topic subscribers keyed by
// event method name (plus the wildcard topic "*"). It owns exactly one
// background receive task and is the sole reader of its transport.
type Session struct {
	transport *transport
	logger    xlog.Logger

	idMu   sync.Mutex
	usedID map[int64]struct{}

	slotsMu sync.Mutex
	slots   map[int64]chan Frame

	subsMu sync.Mutex
	subs   map[string]map[*Subscription]struct{}

	stoppedCh chan struct{}
	stopOnce  sync.Once
	stopErr   error

	cancelled  chan struct{}
	cancelOnce sync.Once

	recvDone chan struct{}
}

// Connect creates the transport and spawns the receive task. It
// returns once the task is live.
func Connect(ctx context.Context, logger xlog.Logger, wsURL string, maxFrameSize int64, closeTimeout time.Duration) (*Session, error) {
	t, err := dial(ctx, wsURL, maxFrameSize, closeTimeout)
	if err != nil {
		return nil, err
	}
	s := &Session{
		transport: t,
		logger:    logger,
		usedID:    make(map[int64]struct{}),
		slots:     make(map[int64]chan Frame),
		subs:      make(map[string]map[*Subscription]struct{}),
		stoppedCh: make(chan struct{}),
		cancelled: make(chan struct{}),
		recvDone:  make(chan struct{}),
	}
	go s.receiveLoop()
	return s, nil
}

// Send assigns a fresh command ID and transmits {id, method, params}.
// When awaitResponse is false, it returns once the frame is written and
// no completion slot is registered for the id. When true, it awaits whichever comes
// first: the slot being resolved, the receive task terminating, the
// response timeout elapsing, or ctx being done.
func (s *Session) Send(ctx context.Context, method string, params interface{}, awaitResponse bool, timeout time.Duration) (json.RawMessage, error) {
	const op string = "cdp.Session.Send"
	id := s.nextID()
	b, err := json.Marshal(outboundFrame{ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var slot chan Frame
	if awaitResponse {
		slot = make(chan Frame, 1)
		s.registerSlot(id, slot)
		defer s.deleteSlot(id)
	}

	if err := s.transport.send(b); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !awaitResponse {
		return nil, nil
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case f := <-slot:
		return resultOrError(op, f)
	case <-s.stoppedCh:
		select {
		case f := <-slot:
			return resultOrError(op, f)
		default:
		}
		if s.stopErr != nil {
			return nil, s.stopErr
		}
		return nil, ErrReceiveLoopStopped
	case <-timer.C:
		return nil, fmt.Errorf("%s: command %q timed out after %s", op, method, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func resultOrError(op string, f Frame) (json.RawMessage, error) {
	if len(f.Error) > 0 {
		return nil, fmt.Errorf("%s: %s", op, string(f.Error))
	}
	return f.Result, nil
}

// WaitFor is a one-shot wait: it subscribes, awaits the next event of
// the given method, and unsubscribes.
func (s *Session) WaitFor(ctx context.Context, method string) (Frame, error) {
	sub := s.Subscribe(method)
	defer sub.Close()
	return sub.Next(ctx)
}

// Subscribe returns a scoped queue that receives every event whose
// method is in methods, or every event if methods contains "*". Close
// must be called on every exit path.
func (s *Session) Subscribe(methods ...string) *Subscription {
	sub := newSubscription(s, methods)
	s.subsMu.Lock()
	for _, m := range methods {
		if s.subs[m] == nil {
			s.subs[m] = make(map[*Subscription]struct{})
		}
		s.subs[m][sub] = struct{}{}
	}
	s.subsMu.Unlock()
	return sub
}

func (s *Session) unsubscribe(sub *Subscription) {
	s.subsMu.Lock()
	for _, m := range sub.methods {
		set := s.subs[m]
		delete(set, sub)
		if len(set) == 0 {
			delete(s.subs, m)
		}
	}
	s.subsMu.Unlock()
}

// Disconnect sets the cancellation signal, closes the transport to
// unblock a read in progress, and waits for the receive loop to exit.
func (s *Session) Disconnect() {
	s.cancelOnce.Do(func() { close(s.cancelled) })
	_ = s.transport.close()
	<-s.recvDone
}

func (s *Session) stopped() <-chan struct{} { return s.stoppedCh }

func (s *Session) stopCause() error {
	if s.stopErr != nil {
		return s.stopErr
	}
	return ErrReceiveLoopStopped
}

// nextID draws a uniform random integer in [1, 1e9], re-drawing on
// collision, and keeps it in the used set for the session's lifetime.
func (s *Session) nextID() int64 {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	for {
		id := rand.Int63n(1_000_000_000) + 1
		if _, used := s.usedID[id]; !used {
			s.usedID[id] = struct{}{}
			return id
		}
	}
}

func (s *Session) registerSlot(id int64, slot chan Frame) {
	s.slotsMu.Lock()
	s.slots[id] = slot
	s.slotsMu.Unlock()
}

func (s *Session) deleteSlot(id int64) {
	s.slotsMu.Lock()
	delete(s.slots, id)
	s.slotsMu.Unlock()
}

// receiveLoop is the single task reading the transport. It blocks on
// each read rather than polling under a deadline: Disconnect wakes it
// by closing the underlying connection, not by arming a timeout. It
// tolerates malformed JSON and non-object JSON by discarding the
// frame, dispatches well-formed frames to completion slots and
// subscribers, and sets stoppedCh exactly once, on the only path that
// exits.
func (s *Session) receiveLoop() {
	var cause error
	defer func() {
		s.stopOnce.Do(func() {
			s.stopErr = cause
			close(s.stoppedCh)
		})
		close(s.recvDone)
	}()

	for {
		b, err := s.transport.receive()
		if err != nil {
			if err == ErrPayloadTooBig {
				cause = ErrPayloadTooBig
				return
			}
			select {
			case <-s.cancelled:
			default:
				cause = ErrClosed
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(b, &f); err != nil {
			// malformed JSON, or JSON that doesn't decode into an
			// object (an array, a string, a number): discard and keep
			// reading, the loop must never die from stray traffic.
			continue
		}
		s.dispatch(f)
	}
}

func (s *Session) dispatch(f Frame) {
	if f.IsReply() {
		s.slotsMu.Lock()
		slot, ok := s.slots[f.ID]
		s.slotsMu.Unlock()
		if ok {
			select {
			case slot <- f:
			default:
			}
		}
	}
	if f.Method != "" {
		s.subsMu.Lock()
		var targets []*Subscription
		for sub := range s.subs[f.Method] {
			targets = append(targets, sub)
		}
		for sub := range s.subs["*"] {
			targets = append(targets, sub)
		}
		s.subsMu.Unlock()
		for _, sub := range targets {
			sub.push(f)
		}
	}
}
