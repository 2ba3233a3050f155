package streaming

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "pulsedesk.ai/cli/internal/core/domain/streaming"
)

const waitTimeout = 2 * time.Second

// fastPolicy keeps the retry loop quick enough for tests while keeping
// the exponential shape of the production policy.
func fastPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		BaseDelay:   20 * time.Millisecond,
		Factor:      2.0,
		MaxDelay:    100 * time.Millisecond,
		MaxAttempts: maxAttempts,
	}
}

// fakeConn is a scripted stream body. Tests push chunks and a terminal
// error; Read honors the cancellation of the attempt that opened it, the
// way an HTTP response body does.
type fakeConn struct {
	ctx    context.Context
	chunks chan []byte
	errs   chan error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		chunks: make(chan []byte, 16),
		errs:   make(chan error, 1),
	}
}

func (c *fakeConn) Read(p []byte) (int, error) {
	select {
	case chunk, ok := <-c.chunks:
		if !ok {
			return 0, io.EOF
		}
		return copy(p, chunk), nil
	case err := <-c.errs:
		return 0, err
	case <-c.ctx.Done():
		return 0, c.ctx.Err()
	}
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) push(t *testing.T, chunk string) {
	t.Helper()
	select {
	case c.chunks <- []byte(chunk):
	case <-time.After(waitTimeout):
		t.Fatal("timed out pushing chunk")
	}
}

// cancelled reports whether the attempt that opened this conn was torn down
func (c *fakeConn) cancelled() bool {
	select {
	case <-c.ctx.Done():
		return true
	case <-time.After(waitTimeout):
		return false
	}
}

// openResult scripts the outcome of one transport Open call
type openResult struct {
	conn *fakeConn
	err  error
}

// fakeTransport replays a script of Open outcomes and records the URLs
// it was asked to open.
type fakeTransport struct {
	mu     sync.Mutex
	script []openResult
	urls   []string
	opens  chan string
}

func newFakeTransport(script ...openResult) *fakeTransport {
	return &fakeTransport{
		script: script,
		opens:  make(chan string, 16),
	}
}

func (t *fakeTransport) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	t.mu.Lock()
	if len(t.script) == 0 {
		t.mu.Unlock()
		return nil, errors.New("unscripted open")
	}
	next := t.script[0]
	t.script = t.script[1:]
	t.urls = append(t.urls, url)
	t.mu.Unlock()

	t.opens <- url
	if next.err != nil {
		return nil, next.err
	}
	next.conn.ctx = ctx
	return next.conn, nil
}

func (t *fakeTransport) openCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.urls)
}

// recordingObserver records every callback and exposes channels for
// tests to await them.
type recordingObserver struct {
	mu      sync.Mutex
	states  []domain.ConnectionState
	events  []domain.UpdateEvent
	stateCh chan domain.ConnectionState
	eventCh chan domain.UpdateEvent
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		stateCh: make(chan domain.ConnectionState, 64),
		eventCh: make(chan domain.UpdateEvent, 64),
	}
}

func (o *recordingObserver) OnEvent(event domain.UpdateEvent) {
	o.mu.Lock()
	o.events = append(o.events, event)
	o.mu.Unlock()
	o.eventCh <- event
}

func (o *recordingObserver) OnStateChange(state domain.ConnectionState) {
	o.mu.Lock()
	o.states = append(o.states, state)
	o.mu.Unlock()
	o.stateCh <- state
}

// awaitPhase consumes state transitions until the wanted phase arrives
func (o *recordingObserver) awaitPhase(t *testing.T, phase domain.ConnectionPhase) domain.ConnectionState {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case state := <-o.stateCh:
			if state.Phase == phase {
				return state
			}
		case <-deadline:
			t.Fatalf("timed out waiting for phase %s; saw %v", phase, o.phases())
		}
	}
}

func (o *recordingObserver) awaitEvent(t *testing.T) domain.UpdateEvent {
	t.Helper()
	select {
	case event := <-o.eventCh:
		return event
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for event")
		return domain.UpdateEvent{}
	}
}

func (o *recordingObserver) phases() []domain.ConnectionPhase {
	o.mu.Lock()
	defer o.mu.Unlock()
	phases := make([]domain.ConnectionPhase, len(o.states))
	for i, s := range o.states {
		phases[i] = s.Phase
	}
	return phases
}

func (o *recordingObserver) eventKinds() []domain.UpdateEventKind {
	o.mu.Lock()
	defer o.mu.Unlock()
	kinds := make([]domain.UpdateEventKind, len(o.events))
	for i, e := range o.events {
		kinds[i] = e.Kind
	}
	return kinds
}

// TestClient_DeliversEventsInWireOrder tests the happy path: connect,
// receive a chunk holding two complete frames, get both events in order
func TestClient_DeliversEventsInWireOrder(t *testing.T) {
	conn := newFakeConn()
	transport := newFakeTransport(openResult{conn: conn})
	observer := newRecordingObserver()
	client := New(transport, observer, fastPolicy(5))
	defer client.Close()

	client.Connect("http://backend.test/v1/updates/stream")
	observer.awaitPhase(t, domain.PhaseConnecting)
	observer.awaitPhase(t, domain.PhaseConnected)

	conn.push(t, "data: {\"kind\":\"item.added\",\"seq\":1}\n\ndata: {\"kind\":\"item.updated\",\"seq\":2}\n\n")

	first := observer.awaitEvent(t)
	second := observer.awaitEvent(t)
	assert.Equal(t, domain.UpdateEventItemAdded, first.Kind)
	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, domain.UpdateEventItemUpdated, second.Kind)
	assert.Equal(t, int64(2), second.Seq)
}

// TestClient_FrameStraddlingChunks tests a delimiter split across two
// transport chunks: the frame is assembled and decoded exactly once
func TestClient_FrameStraddlingChunks(t *testing.T) {
	conn := newFakeConn()
	transport := newFakeTransport(openResult{conn: conn})
	observer := newRecordingObserver()
	client := New(transport, observer, fastPolicy(5))
	defer client.Close()

	client.Connect("http://backend.test/stream")
	observer.awaitPhase(t, domain.PhaseConnected)

	conn.push(t, "data: {\"kind\":\"item.added\",\"seq\":7}\n")
	conn.push(t, "\n")

	event := observer.awaitEvent(t)
	assert.Equal(t, int64(7), event.Seq)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []domain.UpdateEventKind{domain.UpdateEventItemAdded}, observer.eventKinds(),
		"the straddled frame must decode exactly once")
}

// TestClient_MalformedFrameIsDroppedNotFatal tests that one undecodable
// frame is skipped without disturbing the connection or later frames
func TestClient_MalformedFrameIsDroppedNotFatal(t *testing.T) {
	conn := newFakeConn()
	transport := newFakeTransport(openResult{conn: conn})
	observer := newRecordingObserver()
	client := New(transport, observer, fastPolicy(5))
	defer client.Close()

	client.Connect("http://backend.test/stream")
	observer.awaitPhase(t, domain.PhaseConnected)

	conn.push(t, "data: {not json\n\ndata: {\"kind\":\"item.added\",\"seq\":3}\n\n")

	event := observer.awaitEvent(t)
	assert.Equal(t, int64(3), event.Seq)
	assert.Len(t, observer.eventKinds(), 1, "the malformed frame must not produce an event")

	for _, phase := range observer.phases() {
		assert.NotEqual(t, domain.PhaseFailed, phase, "a decode error must not fail the connection")
	}
}

// TestClient_Non2xxRetriesWithBackoff tests the end-to-end retry
// scheduling: a failing endpoint produces connecting/failed pairs with a
// backoff delay between attempts
func TestClient_Non2xxRetriesWithBackoff(t *testing.T) {
	serverErr := errors.New("unexpected response status 500")
	transport := newFakeTransport(openResult{err: serverErr}, openResult{err: serverErr})
	observer := newRecordingObserver()
	policy := fastPolicy(5)
	client := New(transport, observer, policy)
	defer client.Close()

	client.Connect("http://backend.test/stream")

	observer.awaitPhase(t, domain.PhaseConnecting)
	<-transport.opens
	firstOpen := time.Now()
	state := observer.awaitPhase(t, domain.PhaseFailed)
	assert.ErrorIs(t, state.Reason, serverErr)

	// The second attempt fires only after the first backoff delay.
	observer.awaitPhase(t, domain.PhaseConnecting)
	<-transport.opens
	assert.GreaterOrEqual(t, time.Since(firstOpen), policy.BaseDelay,
		"the retry must wait out the backoff delay")
	observer.awaitPhase(t, domain.PhaseFailed)

	client.Disconnect()
	observer.awaitPhase(t, domain.PhaseIdle)
}

// TestClient_RetriesExhaustedEndsIdle tests that the client gives up
// after MaxAttempts retries and settles in idle
func TestClient_RetriesExhaustedEndsIdle(t *testing.T) {
	openErr := errors.New("connection refused")
	transport := newFakeTransport(
		openResult{err: openErr}, // initial attempt
		openResult{err: openErr}, // retry 1
		openResult{err: openErr}, // retry 2
	)
	observer := newRecordingObserver()
	client := New(transport, observer, fastPolicy(2))
	defer client.Close()

	client.Connect("http://backend.test/stream")
	observer.awaitPhase(t, domain.PhaseIdle)

	assert.Equal(t, 3, transport.openCount(), "initial attempt plus MaxAttempts retries")

	// No further attempt may fire after the client settled idle.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 3, transport.openCount())

	phases := observer.phases()
	assert.Equal(t, domain.PhaseIdle, phases[len(phases)-1])
}

// TestClient_DisconnectCancelsPendingRetry tests that a retry delay in
// progress is cancelled by Disconnect and never fires afterwards
func TestClient_DisconnectCancelsPendingRetry(t *testing.T) {
	openErr := errors.New("connection refused")
	transport := newFakeTransport(openResult{err: openErr})
	observer := newRecordingObserver()
	policy := fastPolicy(5)
	policy.BaseDelay = 200 * time.Millisecond
	policy.MaxDelay = time.Second
	client := New(transport, observer, policy)
	defer client.Close()

	client.Connect("http://backend.test/stream")
	observer.awaitPhase(t, domain.PhaseFailed)

	client.Disconnect()
	observer.awaitPhase(t, domain.PhaseIdle)

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, transport.openCount(), "the pending retry must not fire")

	phases := observer.phases()
	assert.Equal(t, domain.PhaseIdle, phases[len(phases)-1], "no connecting may follow the final idle")
}

// TestClient_ConnectSupersedesActiveStream tests redirecting the client
// to a new URL mid-stream: the old attempt ends without a failed report,
// its transport is cancelled and its partial buffer never leaks
func TestClient_ConnectSupersedesActiveStream(t *testing.T) {
	connA := newFakeConn()
	connB := newFakeConn()
	transport := newFakeTransport(openResult{conn: connA}, openResult{conn: connB})
	observer := newRecordingObserver()
	client := New(transport, observer, fastPolicy(5))
	defer client.Close()

	client.Connect("http://a.test/stream")
	observer.awaitPhase(t, domain.PhaseConnected)

	// Leave a partial frame in the first stream's buffer, then redirect.
	connA.push(t, "data: {\"kind\":\"item.added\",\"seq\":1")

	client.Connect("http://b.test/stream")
	observer.awaitPhase(t, domain.PhaseConnecting)
	observer.awaitPhase(t, domain.PhaseConnected)

	assert.True(t, connA.cancelled(), "the superseded transport must actually be cancelled")

	connB.push(t, "data: {\"kind\":\"item.removed\",\"seq\":9}\n\n")
	event := observer.awaitEvent(t)
	assert.Equal(t, domain.UpdateEventItemRemoved, event.Kind)

	assert.Equal(t, []domain.UpdateEventKind{domain.UpdateEventItemRemoved}, observer.eventKinds(),
		"no event from urlA's in-flight buffer may leak into urlB's stream")
	for _, phase := range observer.phases() {
		assert.NotEqual(t, domain.PhaseFailed, phase,
			"cancelling urlA by superseding it must not be reported as a failure")
	}
	assert.Equal(t, []string{"http://a.test/stream", "http://b.test/stream"}, transport.urls)
}

// TestClient_ServerCloseTriggersReconnect tests that the remote end
// closing the stream counts as a failure and goes through the retry path
func TestClient_ServerCloseTriggersReconnect(t *testing.T) {
	connA := newFakeConn()
	connB := newFakeConn()
	transport := newFakeTransport(openResult{conn: connA}, openResult{conn: connB})
	observer := newRecordingObserver()
	client := New(transport, observer, fastPolicy(5))
	defer client.Close()

	client.Connect("http://backend.test/stream")
	observer.awaitPhase(t, domain.PhaseConnected)

	close(connA.chunks) // server closes the stream

	state := observer.awaitPhase(t, domain.PhaseFailed)
	assert.ErrorIs(t, state.Reason, errServerClosed)
	observer.awaitPhase(t, domain.PhaseConnecting)
	observer.awaitPhase(t, domain.PhaseConnected)
}

// TestClient_ConnectedResetsRetryCounter tests that reaching connected
// starts the retry budget over for the next outage
func TestClient_ConnectedResetsRetryCounter(t *testing.T) {
	openErr := errors.New("connection refused")
	conn := newFakeConn()
	transport := newFakeTransport(
		openResult{err: openErr}, // initial attempt fails
		openResult{conn: conn},   // retry 1 connects
		openResult{err: openErr}, // stream breaks, fresh attempt fails
		openResult{err: openErr}, // retry 1 of the new outage
	)
	observer := newRecordingObserver()
	client := New(transport, observer, fastPolicy(2))
	defer client.Close()

	client.Connect("http://backend.test/stream")
	observer.awaitPhase(t, domain.PhaseConnected)

	conn.errs <- errors.New("connection reset")

	// With the counter reset on connected, the client still has its full
	// budget: failed, retry, failed, retry, failed, idle.
	observer.awaitPhase(t, domain.PhaseIdle)
	assert.Equal(t, 4, transport.openCount())
}

// TestClient_InvalidURLFailsWithoutTransportCall tests the fail-fast
// path for targets that cannot become a request
func TestClient_InvalidURLFailsWithoutTransportCall(t *testing.T) {
	transport := newFakeTransport()
	observer := newRecordingObserver()
	client := New(transport, observer, fastPolicy(1))
	defer client.Close()

	client.Connect("not a url")

	observer.awaitPhase(t, domain.PhaseFailed)
	observer.awaitPhase(t, domain.PhaseIdle)
	assert.Equal(t, 0, transport.openCount(), "an unresolvable target must not reach the transport")
}

// TestClient_DisconnectFromIdleReannouncesIdle tests that Disconnect is
// safe in any state and re-reports idle
func TestClient_DisconnectFromIdleReannouncesIdle(t *testing.T) {
	transport := newFakeTransport()
	observer := newRecordingObserver()
	client := New(transport, observer, fastPolicy(5))
	defer client.Close()

	client.Disconnect()
	observer.awaitPhase(t, domain.PhaseIdle)
	require.Equal(t, []domain.ConnectionPhase{domain.PhaseIdle}, observer.phases())
}

// TestClient_DisconnectSilencesInFlightChunks tests that a chunk racing
// with teardown is discarded, not delivered
func TestClient_DisconnectSilencesInFlightChunks(t *testing.T) {
	conn := newFakeConn()
	transport := newFakeTransport(openResult{conn: conn})
	observer := newRecordingObserver()
	client := New(transport, observer, fastPolicy(5))
	defer client.Close()

	client.Connect("http://backend.test/stream")
	observer.awaitPhase(t, domain.PhaseConnected)

	conn.chunks <- []byte("data: {\"kind\":\"item.added\",\"seq\":1}\n\n")
	client.Disconnect()

	// The chunk may or may not have been processed before teardown, but
	// nothing may arrive after Disconnect returned.
	eventsAtReturn := len(observer.eventKinds())
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, observer.eventKinds(), eventsAtReturn,
		"no event callback from the torn-down attempt may fire after Disconnect returns")
}
