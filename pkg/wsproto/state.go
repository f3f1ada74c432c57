package wsproto

import "sync"

// ConnState is a position in the connection lifecycle, per spec §4.8.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateConnected
	StateReady
	StateClosing
	StateClosed
)

// String returns the state's name.
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectionStateMachine owns the connection lifecycle
// (Connecting -> Connected -> Ready -> (Closing) -> Closed), close-code
// validation, and protocol-error classification, per spec §4.8.
//
// closeSent/closeReceived are guarded by their own mutex (following
// tzrikka-timpani/pkg/websocket/close.go's closeSentMu pattern), since
// Session's read loop and a concurrent local Close() call can both
// observe/mutate them.
type ConnectionStateMachine struct {
	mu    sync.RWMutex
	state ConnState

	closeMu       sync.Mutex
	closeSent     bool
	closeReceived bool
}

// NewConnectionStateMachine returns a machine in StateConnecting.
func NewConnectionStateMachine() *ConnectionStateMachine {
	return &ConnectionStateMachine{}
}

// State returns the current lifecycle state.
func (m *ConnectionStateMachine) State() ConnState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *ConnectionStateMachine) setState(s ConnState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// TransportConnected transitions Connecting -> Connected.
func (m *ConnectionStateMachine) TransportConnected() {
	m.setState(StateConnected)
}

// HandshakeAccepted transitions Connected -> Ready.
func (m *ConnectionStateMachine) HandshakeAccepted() {
	m.setState(StateReady)
}

// HandshakeRejected transitions Connected -> Closed: no close frame is
// sent, the socket is simply torn down.
func (m *ConnectionStateMachine) HandshakeRejected() {
	m.setState(StateClosed)
}

// BeginClosing transitions Ready -> Closing, whether the local side
// initiated the close or is echoing a peer-initiated one.
func (m *ConnectionStateMachine) BeginClosing() {
	m.setState(StateClosing)
}

// Closed transitions Closing -> Closed (peer echo observed, or
// close-timeout elapsed, or the transport ended).
func (m *ConnectionStateMachine) Closed() {
	m.setState(StateClosed)
}

// Abort transitions directly to Closed, skipping Closing: used for a
// fatal transport error or a critical protocol error, per spec §4.8
// ("skip graceful close").
func (m *ConnectionStateMachine) Abort() {
	m.setState(StateClosed)
}

// MarkCloseSent records that a CLOSE frame has gone out, and reports
// whether this is the first time (the caller should only actually write
// the frame to the wire when first is true — sendCloseControlFrame is
// idempotent, per tzrikka-timpani/pkg/websocket/close.go).
func (m *ConnectionStateMachine) MarkCloseSent() (first bool) {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()
	if m.closeSent {
		return false
	}
	m.closeSent = true
	return true
}

// MarkCloseReceived records that a CLOSE frame has arrived from the peer.
func (m *ConnectionStateMachine) MarkCloseReceived() {
	m.closeMu.Lock()
	m.closeReceived = true
	m.closeMu.Unlock()
}

// CloseSent reports whether a CLOSE frame has already gone out.
func (m *ConnectionStateMachine) CloseSent() bool {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()
	return m.closeSent
}

// CloseReceived reports whether a CLOSE frame has already arrived.
func (m *ConnectionStateMachine) CloseReceived() bool {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()
	return m.closeReceived
}

// IsClosing reports whether either side has already sent a CLOSE.
func (m *ConnectionStateMachine) IsClosing() bool {
	return m.CloseReceived() || m.CloseSent()
}

// IsClosed reports whether the closing handshake has fully completed.
func (m *ConnectionStateMachine) IsClosed() bool {
	return m.CloseReceived() && m.CloseSent()
}

// ValidateCloseCode reports whether code is legal to appear on the wire.
// 1005 (StatusNotReceived) and 1006 (StatusAbnormalClosure) are
// reserved for local use only and must never be sent or received; 1015
// (TLS handshake failure) is likewise reserved. Codes 1000-4999 outside
// that reserved set are otherwise permitted: this engine does not
// further restrict application-defined codes, per spec §4.8.
func ValidateCloseCode(code StatusCode) bool {
	return !code.reserved()
}
