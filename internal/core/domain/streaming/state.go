package streaming

import "fmt"

// ConnectionPhase represents the phase of the stream connection lifecycle
type ConnectionPhase string

const (
	// PhaseIdle means no connection is active or pending
	PhaseIdle ConnectionPhase = "idle"
	// PhaseConnecting means a request has been issued but no successful
	// response has arrived yet
	PhaseConnecting ConnectionPhase = "connecting"
	// PhaseConnected means the response was accepted and bytes are flowing
	PhaseConnected ConnectionPhase = "connected"
	// PhaseFailed means the current attempt ended in an error; a retry may
	// follow
	PhaseFailed ConnectionPhase = "failed"
)

// ConnectionState is one observable state of a stream client. Reason is
// non-nil only when Phase is PhaseFailed.
type ConnectionState struct {
	Phase  ConnectionPhase
	Reason error
}

// Idle returns the state for a client with no active or pending connection
func Idle() ConnectionState {
	return ConnectionState{Phase: PhaseIdle}
}

// Connecting returns the state for a client with a request in flight
func Connecting() ConnectionState {
	return ConnectionState{Phase: PhaseConnecting}
}

// Connected returns the state for a client receiving the event stream
func Connected() ConnectionState {
	return ConnectionState{Phase: PhaseConnected}
}

// Failed returns the state for an attempt that ended in an error
func Failed(reason error) ConnectionState {
	return ConnectionState{Phase: PhaseFailed, Reason: reason}
}

// String returns a human-readable representation of the state
func (s ConnectionState) String() string {
	if s.Phase == PhaseFailed && s.Reason != nil {
		return fmt.Sprintf("%s: %v", s.Phase, s.Reason)
	}
	return string(s.Phase)
}
