package streaming

import (
	"context"
	"io"

	"pulsedesk.ai/cli/internal/core/domain/streaming"
)

// StreamObserver receives decoded update events and connection state
// transitions from a stream client.
//
// Both methods are invoked from the client's owning goroutine, one call at
// a time, in the order things happened on the wire. Implementations must
// not call back into the client synchronously and must not retain the
// payload slices beyond the call.
type StreamObserver interface {
	// OnEvent is invoked once per successfully decoded frame
	OnEvent(event streaming.UpdateEvent)

	// OnStateChange is invoked on every connection state transition
	OnStateChange(state streaming.ConnectionState)
}

// StreamTransport opens a long-lived streaming request against the backend.
//
// Open blocks until response headers arrive, then returns the response
// body, which delivers chunks of unknown size until the stream ends or ctx
// is cancelled. A non-2xx response must be returned as an error, not as a
// readable body.
type StreamTransport interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// Client defines the lifecycle contract the UI layer drives.
type Client interface {
	// Connect starts (or restarts) streaming from the given URL. It
	// supersedes any connection or retry loop already in progress and
	// returns without waiting for the connection to establish.
	Connect(url string)

	// Disconnect tears down any active connection and pending retry and
	// reports the idle state. Safe to call from any state.
	Disconnect()

	// Close disconnects and releases the client. The client must not be
	// used afterwards.
	Close() error
}
