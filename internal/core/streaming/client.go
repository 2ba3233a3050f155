package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	domain "pulsedesk.ai/cli/internal/core/domain/streaming"
	ports "pulsedesk.ai/cli/internal/core/ports/streaming"
	"pulsedesk.ai/cli/internal/logging"
)

const readBufferSize = 4096

// logPayloadLimit caps how much of a malformed payload ends up in the
// diagnostic log.
const logPayloadLimit = 256

// errServerClosed reports a stream the remote end closed. The protocol
// has no orderly shutdown, so a server-side close is a failure and goes
// through the normal retry path.
var errServerClosed = errors.New("server closed the stream")

// Client maintains a long-lived connection to the backend's update
// stream. It owns the connection state machine, assembles frames out of
// the chunked byte feed, decodes them and hands the results to the
// registered observer, reconnecting with bounded exponential backoff when
// the connection drops.
//
// All mutable state is owned by a single run-loop goroutine. Connect and
// Disconnect marshal their work onto that goroutine, as do the transport
// callbacks, so callers and transport chunks can never interleave into a
// torn state. Messages from a superseded connection attempt carry a stale
// generation number and are discarded, never delivered.
type Client struct {
	transport ports.StreamTransport
	observer  ports.StreamObserver
	policy    RetryPolicy

	commands  chan func()
	done      chan struct{}
	closeOnce sync.Once

	// Everything below is owned by the run loop.
	state      domain.ConnectionState
	target     string
	connID     string
	generation uint64
	failures   int
	frames     frameAccumulator
	cancel     context.CancelFunc
	retryTimer *time.Timer
}

// New creates a stream client and starts its run loop. The caller must
// Close the client when done with it.
func New(transport ports.StreamTransport, observer ports.StreamObserver, policy RetryPolicy) *Client {
	client := &Client{
		transport: transport,
		observer:  observer,
		policy:    policy,
		commands:  make(chan func()),
		done:      make(chan struct{}),
		state:     domain.Idle(),
	}
	go client.run()
	return client
}

var _ ports.Client = (*Client)(nil)

// Connect starts streaming from the given URL. Any connection or retry
// loop already in progress is torn down first: the transport is
// cancelled, pending retries stop, buffered partial frames are dropped
// and the retry counter starts over. The superseded attempt is never
// reported as failed. Connect returns immediately; progress arrives
// through the observer.
func (c *Client) Connect(targetURL string) {
	c.post(func() {
		c.teardown()
		c.failures = 0
		c.target = targetURL
		c.connID = uuid.NewString()[:8]
		c.startAttempt()
	})
}

// Disconnect tears down any active connection and pending retry, resets
// the retry counter and reports idle. Safe to call from any state and
// from any goroutine except the observer callbacks themselves. Once
// Disconnect returns, no event or state callback from the torn-down
// attempt will fire.
func (c *Client) Disconnect() {
	acked := make(chan struct{})
	c.post(func() {
		c.teardown()
		c.failures = 0
		c.target = ""
		c.setState(domain.Idle())
		close(acked)
	})
	select {
	case <-acked:
	case <-c.done:
	}
}

// Close disconnects and stops the run loop. The client must not be used
// afterwards.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.Disconnect()
		close(c.done)
	})
	return nil
}

// post marshals fn onto the run loop. It drops the call when the client
// is closed.
func (c *Client) post(fn func()) {
	select {
	case c.commands <- fn:
	case <-c.done:
	}
}

func (c *Client) run() {
	for {
		select {
		case fn := <-c.commands:
			fn()
		case <-c.done:
			c.teardown()
			return
		}
	}
}

// teardown cancels the active transport and any pending retry timer and
// drops buffered partial frames. It does not touch the observable state.
// Bumping the generation turns every message still in flight from the old
// attempt stale, so a chunk racing with teardown is discarded rather than
// delivered.
func (c *Client) teardown() {
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.frames.Reset()
}

// startAttempt begins one connection attempt against the current target.
// A target that cannot be resolved to a valid request fails without a
// transport call.
func (c *Client) startAttempt() {
	c.generation++
	generation := c.generation
	c.frames.Reset()

	if err := validateTarget(c.target); err != nil {
		c.log().WithError(err).Warn("stream target rejected")
		c.failAttempt(err)
		return
	}

	c.setState(domain.Connecting())
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.runTransport(ctx, generation, c.target)
}

// runTransport drives one transport request off the run loop. Everything
// it learns is posted back with the attempt's generation so the loop can
// discard results from attempts that have since been superseded.
func (c *Client) runTransport(ctx context.Context, generation uint64, target string) {
	body, err := c.transport.Open(ctx, target)
	if err != nil {
		c.post(func() { c.attemptBroken(generation, ctx, err) })
		return
	}

	c.post(func() { c.attemptConnected(generation) })

	buf := make([]byte, readBufferSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.post(func() { c.chunkReceived(generation, chunk) })
		}
		if err != nil {
			body.Close()
			if err == io.EOF {
				err = errServerClosed
			}
			c.post(func() { c.attemptBroken(generation, ctx, err) })
			return
		}
	}
}

// attemptConnected handles a transport that got a successful response. A
// connection reaching connected resets the retry counter.
func (c *Client) attemptConnected(generation uint64) {
	if generation != c.generation {
		return
	}
	c.failures = 0
	c.setState(domain.Connected())
}

// chunkReceived feeds one transport chunk into the frame accumulator and
// dispatches every frame it completes. A frame whose payload fails to
// decode is logged and dropped; the stream keeps going.
func (c *Client) chunkReceived(generation uint64, chunk []byte) {
	if generation != c.generation {
		return
	}
	for _, frame := range c.frames.Feed(chunk) {
		payload, ok := framePayload(frame)
		if !ok {
			continue
		}
		event, err := domain.DecodeUpdateEvent([]byte(payload))
		if err != nil {
			c.log().WithError(err).WithField("payload", truncate(payload, logPayloadLimit)).
				Warn("dropping undecodable frame")
			continue
		}
		c.observer.OnEvent(event)
	}
}

// attemptBroken handles a transport error, from opening the request
// through mid-stream. An error produced by our own cancellation is an
// artifact of intentional teardown, not a connection failure, and is
// never reported.
func (c *Client) attemptBroken(generation uint64, ctx context.Context, err error) {
	if generation != c.generation {
		return
	}
	if ctx.Err() != nil {
		return
	}
	c.failAttempt(err)
}

// failAttempt reports the failed state and either schedules the next
// attempt per the retry policy or, with retries exhausted, gives up and
// returns to idle until the caller connects again.
func (c *Client) failAttempt(err error) {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.frames.Reset()
	c.setState(domain.Failed(err))

	c.failures++
	if c.policy.Exhausted(c.failures) {
		c.log().WithField("failures", c.failures).Warn("reconnect attempts exhausted, giving up")
		c.failures = 0
		c.setState(domain.Idle())
		return
	}

	delay := c.policy.Delay(c.failures)
	generation := c.generation
	c.log().WithFields(logrus.Fields{
		"attempt": c.failures,
		"delay":   delay,
	}).Info("scheduling reconnect")
	c.retryTimer = time.AfterFunc(delay, func() {
		c.post(func() { c.retryFired(generation) })
	})
}

// retryFired runs when a backoff delay elapses. A stale generation means
// the retry was superseded or cancelled after the timer had already
// fired.
func (c *Client) retryFired(generation uint64) {
	if generation != c.generation {
		return
	}
	c.retryTimer = nil
	c.startAttempt()
}

// setState records and reports a transition. Every call is reported,
// including repeated failed states across retries; debouncing is the
// observer's concern.
func (c *Client) setState(state domain.ConnectionState) {
	c.state = state
	c.log().WithField("state", state.Phase).Debug("connection state changed")
	c.observer.OnStateChange(state)
}

func (c *Client) log() *logrus.Entry {
	entry := logging.Logger("streaming")
	if c.connID != "" {
		entry = entry.WithField("conn", c.connID)
	}
	if c.target != "" {
		entry = entry.WithField("url", c.target)
	}
	return entry
}

// validateTarget checks that the target can be resolved to a request
// before any transport work happens.
func validateTarget(target string) error {
	parsed, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid stream URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %q (must be http or https)", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("stream URL must include a host")
	}
	return nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
