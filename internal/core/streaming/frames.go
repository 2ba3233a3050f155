package streaming

import (
	"bytes"
	"strings"
)

// frameDelimiter separates frames on the wire. The backend terminates
// every frame with a blank line.
var frameDelimiter = []byte("\n\n")

// frameAccumulator buffers raw bytes received from the transport and
// splits out complete frames. The wire chunks bytes arbitrarily, so a
// frame (or the delimiter itself) can straddle any number of chunks; the
// accumulator keeps the trailing partial frame until the rest arrives.
//
// The accumulator belongs to exactly one connection attempt. It is Reset
// whenever a new attempt starts so partial data from a failed attempt can
// never splice into the next one.
type frameAccumulator struct {
	buf []byte
}

// Feed appends a chunk and returns the raw text of every frame completed
// by it, in wire order. The returned strings do not alias the internal
// buffer.
func (a *frameAccumulator) Feed(chunk []byte) []string {
	a.buf = append(a.buf, chunk...)

	var frames []string
	for {
		i := bytes.Index(a.buf, frameDelimiter)
		if i < 0 {
			break
		}
		frames = append(frames, string(a.buf[:i]))
		a.buf = a.buf[i+len(frameDelimiter):]
	}
	return frames
}

// Reset discards any buffered partial frame.
func (a *frameAccumulator) Reset() {
	a.buf = nil
}

// framePayload extracts the event payload from one raw frame: the values
// of all "data:" lines joined with newlines, in arrival order. A single
// leading space after the colon is stripped. Comment lines and other
// fields ("event:", "id:", "retry:") carry nothing the update schema
// needs, so they are skipped. ok is false when the frame holds no data
// lines at all, e.g. a keep-alive comment.
func framePayload(frame string) (payload string, ok bool) {
	var lines []string
	for _, line := range strings.Split(frame, "\n") {
		line = strings.TrimSuffix(line, "\r")
		value, found := strings.CutPrefix(line, "data:")
		if !found {
			continue
		}
		value = strings.TrimPrefix(value, " ")
		lines = append(lines, value)
	}
	if lines == nil {
		return "", false
	}
	return strings.Join(lines, "\n"), true
}
