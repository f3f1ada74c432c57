package wsproto

import "fmt"

// Event is a tagged value describing one step of a connection's
// lifecycle or traffic, per spec §3. Ordering within one connection
// attempt: Connecting precedes Connected precedes either Ready or
// Rejected precedes any message events precedes Closed precedes
// Disconnected.
type Event interface {
	eventKind() string
}

// Connecting is emitted once, before Transport.Connect is called.
type Connecting struct {
	URL string
}

// Connected is emitted once the transport connection succeeds, before
// the handshake response has been validated.
type Connected struct {
	URL string
}

// Ready is emitted once the handshake response has been accepted. The
// connection is now usable for sending and receiving messages.
type Ready struct {
	Protocol   string
	Extensions []string
}

// Rejected is emitted when the handshake response fails validation; the
// session ends without a close frame, since the connection was never
// a full WebSocket connection.
type Rejected struct {
	Reason string
}

// ConnectFail is emitted when Transport.Connect itself fails, before any
// handshake is attempted.
type ConnectFail struct {
	Reason string
}

// Poll is emitted periodically (spec §4.9 step 4) so a consumer's event
// loop gets a chance to run even when no traffic has arrived.
type Poll struct{}

// Text is a complete, UTF-8-validated TEXT message.
type Text struct {
	Data string
}

// Binary is a complete BINARY message.
type Binary struct {
	Data []byte
}

// Ping is a received PING control frame; unless auto-pong has been
// turned off with WithAutoPong(false), the engine replies with a
// matching PONG automatically, the Ping event itself only informs the
// consumer.
type Ping struct {
	Data []byte
}

// Pong is a received PONG control frame.
type Pong struct {
	Data []byte
}

// Closing is emitted once either side has sent or echoed a CLOSE frame.
type Closing struct {
	Code   StatusCode
	Reason string
}

// Closed is emitted once the closing handshake (send + matching
// receive, or a close-timeout) has fully completed.
type Closed struct {
	Code   StatusCode
	Reason string
}

// Disconnected is emitted once, last, when the session loop exits.
// Graceful is true iff the loop exited because the state reached Closed
// via a well-formed close handshake.
type Disconnected struct {
	Reason   string
	Graceful bool
}

// BackOff is emitted by an external reconnect wrapper between attempts;
// it is never emitted by Session itself, per spec §3 (reconnection
// policy is out of this engine's scope, same as Transport/Compression).
type BackOff struct {
	Next int // Milliseconds until the next connection attempt.
}

// Unresponsive is emitted when a sent PING's matching PONG has not
// arrived within the configured ping timeout.
type Unresponsive struct{}

func (Connecting) eventKind() string   { return "connecting" }
func (Connected) eventKind() string    { return "connected" }
func (Ready) eventKind() string        { return "ready" }
func (Rejected) eventKind() string     { return "rejected" }
func (ConnectFail) eventKind() string  { return "connect_fail" }
func (Poll) eventKind() string         { return "poll" }
func (Text) eventKind() string         { return "text" }
func (Binary) eventKind() string       { return "binary" }
func (Ping) eventKind() string         { return "ping" }
func (Pong) eventKind() string         { return "pong" }
func (Closing) eventKind() string      { return "closing" }
func (Closed) eventKind() string       { return "closed" }
func (Disconnected) eventKind() string { return "disconnected" }
func (BackOff) eventKind() string      { return "back_off" }
func (Unresponsive) eventKind() string { return "unresponsive" }

// eventString renders an Event for logging.
func eventString(e Event) string {
	switch v := e.(type) {
	case Connecting:
		return fmt.Sprintf("connecting(%s)", v.URL)
	case Connected:
		return fmt.Sprintf("connected(%s)", v.URL)
	case Ready:
		return fmt.Sprintf("ready(protocol=%q)", v.Protocol)
	case Rejected:
		return fmt.Sprintf("rejected(%s)", v.Reason)
	case ConnectFail:
		return fmt.Sprintf("connect_fail(%s)", v.Reason)
	case Text:
		return fmt.Sprintf("text(%d bytes)", len(v.Data))
	case Binary:
		return fmt.Sprintf("binary(%d bytes)", len(v.Data))
	case Closing:
		return fmt.Sprintf("closing(%d,%q)", v.Code, v.Reason)
	case Closed:
		return fmt.Sprintf("closed(%d,%q)", v.Code, v.Reason)
	case Disconnected:
		return fmt.Sprintf("disconnected(graceful=%t)", v.Graceful)
	default:
		return e.eventKind()
	}
}
