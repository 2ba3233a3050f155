package httpinfra

import (
	"context"
	"fmt"
	"io"
	"net/http"

	streamports "pulsedesk.ai/cli/internal/core/ports/streaming"
)

// StatusError reports a response whose status was outside the 2xx range.
// The stream client treats it like any other connection failure, but a
// typed error keeps the status code available for diagnostics.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected response status %d", e.Code)
}

// StreamRequester opens long-lived text/event-stream requests. The
// underlying http.Client carries no timeout: a stream runs until the
// request context is cancelled, and cancelling the context is what
// actually closes the socket.
type StreamRequester struct {
	client    *http.Client
	userAgent string
}

// NewStreamRequester creates a streaming requester with the given
// User-Agent (empty leaves the default).
func NewStreamRequester(userAgent string) *StreamRequester {
	return &StreamRequester{
		client:    &http.Client{},
		userAgent: userAgent,
	}
}

// Open issues the streaming request and returns the response body once
// headers have arrived. Non-2xx responses are drained into a StatusError;
// the caller never sees their body.
func (r *StreamRequester) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode}
	}
	return resp.Body, nil
}

var _ streamports.StreamTransport = (*StreamRequester)(nil)
