package cdp

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flyte/chromium-pdf-api/internal/pkg/xlog"
)

func testLogger() xlog.Logger {
	return xlog.New(xlog.ErrorLevel, "test")
}

func connectFixture(t *testing.T) (*fixtureServer, *Session) {
	t.Helper()
	f := newFixtureServer(t)
	session, err := Connect(context.Background(), testLogger(), f.wsURL(), 1024*1024, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() {
		session.Disconnect()
		f.close()
	})
	return f, session
}

func TestSendResolvesOnMatchingReply(t *testing.T) {
	f, session := connectFixture(t)

	done := make(chan struct{})
	var result []byte
	var sendErr error
	go func() {
		result, sendErr = session.Send(context.Background(), "Page.enable", struct{}{}, true, time.Second)
		close(done)
	}()

	cmd := f.nextCommand(t)
	f.sendJSON(t, map[string]interface{}{"id": cmd.ID, "result": map[string]string{"ok": "yes"}})

	<-done
	require.NoError(t, sendErr)
	assert.JSONEq(t, `{"ok":"yes"}`, string(result))
}

func TestSendFireAndForgetReturnsImmediately(t *testing.T) {
	f, session := connectFixture(t)

	result, err := session.Send(context.Background(), "Page.enable", struct{}{}, false, time.Second)
	require.NoError(t, err)
	assert.Nil(t, result)
	f.nextCommand(t)
}

func TestSendTimesOutWithoutReply(t *testing.T) {
	f, session := connectFixture(t)
	_, err := session.Send(context.Background(), "Page.enable", struct{}{}, true, 50*time.Millisecond)
	assert.Error(t, err)
	f.nextCommand(t)
}

// ID uniqueness: the used-set must never hand out the same command ID
// twice within a session's lifetime.
func TestCommandIDUniqueness(t *testing.T) {
	_, session := connectFixture(t)

	seen := make(map[int64]struct{})
	for i := 0; i < 2000; i++ {
		id := session.nextID()
		_, dup := seen[id]
		require.False(t, dup, "id %d drawn twice", id)
		seen[id] = struct{}{}
	}
}

// Subscription hygiene: the method directory holds the queue strictly
// inside the subscription's scope.
func TestSubscriptionHygiene(t *testing.T) {
	_, session := connectFixture(t)

	sub := session.Subscribe("Foo.bar")
	session.subsMu.Lock()
	_, present := session.subs["Foo.bar"]
	session.subsMu.Unlock()
	require.True(t, present)

	sub.Close()

	session.subsMu.Lock()
	_, present = session.subs["Foo.bar"]
	session.subsMu.Unlock()
	assert.False(t, present)
}

// Fan-out: an event matching N subscribers plus any wildcard
// subscribers is delivered exactly once to each.
func TestFanOut(t *testing.T) {
	f, session := connectFixture(t)

	subA := session.Subscribe("Foo.bar")
	defer subA.Close()
	subB := session.Subscribe("Foo.bar")
	defer subB.Close()
	subWild := session.Subscribe("*")
	defer subWild.Close()

	f.sendJSON(t, map[string]interface{}{"method": "Foo.bar", "params": map[string]string{"x": "1"}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	fa, err := subA.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Foo.bar", fa.Method)

	fb, err := subB.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Foo.bar", fb.Method)

	fw, err := subWild.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Foo.bar", fw.Method)

	// no second copy is queued for any of them.
	assert.Len(t, subA.queue, 0)
	assert.Len(t, subB.queue, 0)
	assert.Len(t, subWild.queue, 0)
}

// Non-object resilience: malformed or non-object JSON must not stop
// the receive loop, and a subsequent real event must still arrive.
func TestNonObjectFramesAreIgnored(t *testing.T) {
	f, session := connectFixture(t)

	sub := session.Subscribe("finished")
	defer sub.Close()

	f.sendText(t, "not json")
	f.sendText(t, "[]")
	f.sendJSON(t, map[string]string{"method": "finished"})

	select {
	case <-session.stopped():
		t.Fatal("receive loop stopped on malformed traffic")
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "finished", ev.Method)
}

// At-most-once slot resolution: once Send has consumed its reply, a
// later frame reusing the same ID must not be delivered a second time;
// if it also carries a method it is routed only as an event.
func TestAtMostOnceSlotResolution(t *testing.T) {
	f, session := connectFixture(t)

	sub := session.Subscribe("*")
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		_, _ = session.Send(context.Background(), "Page.enable", struct{}{}, true, time.Second)
		close(done)
	}()

	cmd := f.nextCommand(t)
	f.sendJSON(t, map[string]interface{}{"id": cmd.ID, "result": map[string]string{}})
	<-done

	// a stray frame re-using the same id, now also carrying a method,
	// must be routed as an event only.
	f.sendJSON(t, map[string]interface{}{"id": cmd.ID, "method": "Stray.event"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Stray.event", ev.Method)
}

// receiveLoopStopped propagation: disconnect wakes a blocked Send.
func TestDisconnectWakesBlockedSend(t *testing.T) {
	f := newFixtureServer(t)
	session, err := Connect(context.Background(), testLogger(), f.wsURL(), 1024*1024, time.Second)
	require.NoError(t, err)
	defer f.close()

	done := make(chan error, 1)
	go func() {
		_, err := session.Send(context.Background(), "Page.enable", struct{}{}, true, 5*time.Second)
		done <- err
	}()

	f.nextCommand(t)
	session.Disconnect()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Send did not wake up after Disconnect")
	}
}

func TestWaitForOneShot(t *testing.T) {
	f, session := connectFixture(t)

	done := make(chan struct{})
	var ev Frame
	var err error
	go func() {
		ev, err = session.WaitFor(context.Background(), "Page.loadEventFired")
		close(done)
	}()

	// give WaitFor a moment to register its subscription before the
	// event is fired, without relying on a fixed sleep duration.
	for i := 0; i < 100; i++ {
		session.subsMu.Lock()
		_, ready := session.subs["Page.loadEventFired"]
		session.subsMu.Unlock()
		if ready {
			break
		}
		time.Sleep(time.Millisecond)
	}

	f.sendJSON(t, map[string]string{"method": "Page.loadEventFired"})
	<-done
	require.NoError(t, err)
	assert.Equal(t, "Page.loadEventFired", ev.Method)

	session.subsMu.Lock()
	_, present := session.subs["Page.loadEventFired"]
	session.subsMu.Unlock()
	assert.False(t, present, "wait_for must unsubscribe once resolved")
}

func TestFrameIsReply(t *testing.T) {
	assert.True(t, Frame{ID: 7}.IsReply())
	assert.False(t, Frame{Method: "Foo"}.IsReply())
}

// A quiet gap longer than any per-iteration read deadline the receive
// loop might once have armed must not stop frames arriving afterward:
// gorilla/websocket latches a read-deadline timeout permanently on the
// connection, so arming and hitting one even once would make every
// later ReadMessage fail immediately. The loop must instead block
// indefinitely between frames.
func TestReceiveSurvivesIdleGap(t *testing.T) {
	f, session := connectFixture(t)

	sub := session.Subscribe("*")
	defer sub.Close()

	time.Sleep(1200 * time.Millisecond)

	f.sendJSON(t, map[string]string{"method": "Page.loadEventFired"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Page.loadEventFired", ev.Method)
}

func TestPayloadTooBigStopsReceiveLoop(t *testing.T) {
	f := newFixtureServer(t)
	session, err := Connect(context.Background(), testLogger(), f.wsURL(), 16, time.Second)
	require.NoError(t, err)
	defer func() {
		session.Disconnect()
		f.close()
	}()

	f.sendText(t, fmt.Sprintf(`{"method":"%s"}`, "this-is-a-long-enough-method-name-to-overflow-the-limit"))

	select {
	case <-session.stopped():
	case <-time.After(2 * time.Second):
		t.Fatal("receive loop did not stop on oversized frame")
	}
	assert.ErrorIs(t, session.stopCause(), ErrPayloadTooBig)
}
