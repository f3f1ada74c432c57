package wsproto

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tzrikka/timpani-ws/internal/logging"
)

// Default timings, used unless overridden by a SessionOpt.
const (
	defaultPollInterval = 200 * time.Millisecond
	defaultPingRate     = 30 * time.Second
	defaultPingTimeout  = 10 * time.Second
	defaultCloseTimeout = 5 * time.Second
)

// SessionConfig holds a Session's tunables, populated via SessionOpt the
// way tzrikka-timpani/pkg/websocket/dial.go's DialOpt populates Conn.
type SessionConfig struct {
	PollInterval time.Duration
	PingRate     time.Duration
	PingTimeout  time.Duration
	CloseTimeout time.Duration
	AutoPong     bool
	UserAgent    string
	Protocols    []string
	Headers      http.Header

	authErr error // Set by WithSignedJWTBearer if signing failed.
}

// WithPollInterval overrides how often Session emits a Poll event when
// no traffic has arrived, per spec §4.9 step 4.
func WithPollInterval(d time.Duration) SessionOpt {
	return func(c *SessionConfig) { c.PollInterval = d }
}

// WithPingRate overrides how often Session sends an automatic PING once
// Ready.
func WithPingRate(d time.Duration) SessionOpt {
	return func(c *SessionConfig) { c.PingRate = d }
}

// WithPingTimeout overrides how long Session waits for a PONG after
// sending a PING before emitting Unresponsive.
func WithPingTimeout(d time.Duration) SessionOpt {
	return func(c *SessionConfig) { c.PingTimeout = d }
}

// WithCloseTimeout overrides how long Session waits for the peer to echo
// a locally-initiated CLOSE before giving up and disconnecting anyway.
func WithCloseTimeout(d time.Duration) SessionOpt {
	return func(c *SessionConfig) { c.CloseTimeout = d }
}

// WithAutoPong disables (false) or enables (true, the default) sending
// an automatic PONG in reply to every received PING.
func WithAutoPong(enabled bool) SessionOpt {
	return func(c *SessionConfig) { c.AutoPong = enabled }
}

// WithUserAgent sets the User-Agent header on the upgrade request.
func WithUserAgent(ua string) SessionOpt {
	return func(c *SessionConfig) { c.UserAgent = ua }
}

// WithProtocol offers subprotocols, in preference order, via the
// Sec-WebSocket-Protocol header.
func WithProtocol(protocols ...string) SessionOpt {
	return func(c *SessionConfig) { c.Protocols = append(c.Protocols, protocols...) }
}

// WithHeader adds a single upgrade-request header, mirroring
// tzrikka-timpani/pkg/websocket/dial.go's WithHTTPHeader.
func WithHeader(key, value string) SessionOpt {
	return func(c *SessionConfig) {
		if c.Headers == nil {
			c.Headers = http.Header{}
		}
		c.Headers.Add(key, value)
	}
}

// internalSend synchronizes concurrent Send* calls through the session's
// main loop, which performs every write, adapting
// tzrikka-timpani/pkg/websocket/conn.go's internalMessage/writeMessages
// pattern.
type internalSend struct {
	opcode Opcode
	data   []byte
	err    chan<- error
}

// Session drives one WebSocket connection attempt end-to-end: it owns
// the Transport, FrameCodec, MessageAssembler, and ConnectionStateMachine
// exclusively (spec §3) and runs the single-threaded read/decode loop.
// Caller-initiated sends (SendText, SendBinary, Close) block on a
// channel until that loop picks them up and writes them; there is no
// separate writer goroutine.
type Session struct {
	id     string
	logger zerolog.Logger
	cfg    SessionConfig

	transport Transport
	parser    *ByteParser
	codec     *FrameCodec
	assembler *MessageAssembler
	state     *ConnectionStateMachine

	events chan Event
	sendCh chan internalSend

	pingSentAt   time.Time
	awaitingPong bool
	closeSentAt  time.Time
}

// NewSession constructs a Session bound to transport, which must already
// be connected (NetTransport.Connect is a no-op; Session.Run performs
// only the HTTP upgrade over it).
func NewSession(ctx context.Context, transport Transport, opts ...SessionOpt) *Session {
	cfg := SessionConfig{
		PollInterval: defaultPollInterval,
		PingRate:     defaultPingRate,
		PingTimeout:  defaultPingTimeout,
		CloseTimeout: defaultCloseTimeout,
		AutoPong:     true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	id := newSessionID()
	logger := logging.FromContext(ctx).With().Str("session_id", id).Logger()

	parser := NewByteParser()
	return &Session{
		id:        id,
		logger:    logger,
		cfg:       cfg,
		transport: transport,
		parser:    parser,
		codec:     NewFrameCodec(parser),
		assembler: NewMessageAssembler(),
		state:     NewConnectionStateMachine(),
		events:    make(chan Event, 16),
		sendCh:    make(chan internalSend),
	}
}

// Events returns the channel Session publishes lifecycle and message
// Events to. It is closed when Run returns: after Disconnected, or right
// after ConnectFail when the connection could not be set up (no
// Disconnected follows a ConnectFail).
func (s *Session) Events() <-chan Event {
	return s.events
}

// Run executes the Session's lifecycle (spec §4.9 algorithm steps 1-5):
// connect, handshake, then loop decoding frames and ticking timers until
// the state machine reaches Closed, finally emitting Disconnected and
// closing the Transport and the events channel. Run blocks until the
// session ends; callers typically invoke it in its own goroutine.
func (s *Session) Run(ctx context.Context, wsURL string) {
	defer close(s.events)
	defer func() { _ = s.transport.Shutdown() }()

	s.events <- Connecting{URL: wsURL}

	if s.cfg.authErr != nil {
		s.events <- ConnectFail{Reason: s.cfg.authErr.Error()}
		return
	}

	if err := s.transport.Connect(ctx, wsURL); err != nil {
		s.events <- ConnectFail{Reason: err.Error()}
		return
	}
	s.state.TransportConnected()
	s.events <- Connected{URL: wsURL}

	graceful, reason := s.runHandshakeAndLoop(ctx, wsURL)
	s.events <- Disconnected{Reason: reason, Graceful: graceful}
}

func (s *Session) runHandshakeAndLoop(ctx context.Context, wsURL string) (graceful bool, reason string) {
	hs, err := NewHandshake(wsURL, s.requestHeaders())
	if err != nil {
		s.events <- Rejected{Reason: err.Error()}
		s.state.HandshakeRejected()
		return false, err.Error()
	}
	if len(s.cfg.Protocols) > 0 {
		hs.WithProtocol(strings.Join(s.cfg.Protocols, ", "))
	}

	req, err := hs.Request()
	if err != nil {
		s.events <- Rejected{Reason: err.Error()}
		s.state.HandshakeRejected()
		return false, err.Error()
	}
	if err := s.writeHandshakeRequest(req); err != nil {
		s.events <- Rejected{Reason: err.Error()}
		s.state.HandshakeRejected()
		return false, err.Error()
	}

	if err := s.awaitReady(ctx, hs); err != nil {
		s.events <- Rejected{Reason: err.Error()}
		s.state.HandshakeRejected()
		return false, err.Error()
	}

	return s.mainLoop(ctx)
}

func (s *Session) requestHeaders() http.Header {
	h := s.cfg.Headers.Clone()
	if h == nil {
		h = http.Header{}
	}
	if s.cfg.UserAgent != "" {
		h.Set("User-Agent", s.cfg.UserAgent)
	}
	return h
}

// writeHandshakeRequest serializes req's request line and headers
// directly over the Transport, since NetTransport is a raw byte pipe
// rather than an http.RoundTripper (unlike the teacher's Dial, which
// delegates the handshake to an *http.Client).
func (s *Session) writeHandshakeRequest(req *http.Request) error {
	path := req.URL.RequestURI()
	line := fmt.Sprintf("GET %s HTTP/1.1\r\n", path)
	for k, vs := range req.Header {
		for _, v := range vs {
			line += fmt.Sprintf("%s: %s\r\n", k, v)
		}
	}
	line += fmt.Sprintf("Host: %s\r\n\r\n", req.URL.Host)
	return s.transport.Write([]byte(line))
}

// awaitReady reads from the Transport until a full handshake response
// head has arrived and validates it.
func (s *Session) awaitReady(ctx context.Context, hs *Handshake) error {
	respParser := NewHandshakeResponseParser(s.parser)
	buf := make([]byte, 4096)

	for {
		resp, ok, err := respParser.DecodeNext()
		if err != nil {
			return err
		}
		if ok {
			protocol, err := hs.CheckResponse(resp)
			if err != nil {
				return err
			}
			s.state.HandshakeAccepted()
			var extensions []string
			if raw := resp.Header.Get("Sec-WebSocket-Extensions"); raw != "" {
				extensions = headerList(resp.Header, "Sec-WebSocket-Extensions")
			}
			s.events <- Ready{Protocol: protocol, Extensions: extensions}
			return nil
		}

		if err := s.transport.WaitReadable(ctx, time.Time{}); err != nil {
			return err
		}
		n, err := s.transport.Read(buf)
		if n > 0 {
			_ = s.parser.Feed(buf[:n])
		}
		if err != nil {
			return err
		}
	}
}

// mainLoop implements spec §4.9 step 4: decode frames as they arrive,
// service the write channel, and tick Poll/ping/close timers, until the
// state machine reaches Closed.
func (s *Session) mainLoop(ctx context.Context) (graceful bool, reason string) {
	readBuf := make([]byte, 4096)

	pollTimer := time.NewTicker(s.cfg.PollInterval)
	defer pollTimer.Stop()
	pingTimer := time.NewTicker(s.cfg.PingRate)
	defer pingTimer.Stop()

	var mu sync.Mutex // Guards concurrent writes from sendCh and from this loop.
	writeLocked := func(op Opcode, data []byte) error {
		mu.Lock()
		defer mu.Unlock()
		frame, err := EncodeFrame(op, data)
		if err != nil {
			return err
		}
		return s.transport.Write(frame)
	}

	for s.state.State() != StateClosed {
		if err := s.transport.WaitReadable(ctx, time.Now().Add(s.cfg.PollInterval)); err != nil {
			return false, err.Error()
		}

		if s.transport.Pending() {
			n, err := s.transport.Read(readBuf)
			if n > 0 {
				if ferr := s.parser.Feed(readBuf[:n]); ferr != nil && ferr != ErrParserEOF {
					return false, ferr.Error()
				}
				if derr := s.decodeAvailableFrames(writeLocked); derr != nil {
					return s.state.IsClosed(), derr.Error()
				}
			}
			if err != nil {
				return s.state.IsClosed(), err.Error()
			}
		}

		select {
		case snd := <-s.sendCh:
			snd.err <- writeLocked(snd.opcode, snd.data)
		case <-pollTimer.C:
			s.events <- Poll{}
		case <-pingTimer.C:
			if s.state.State() == StateReady && !s.awaitingPong {
				s.pingSentAt = time.Now()
				s.awaitingPong = true
				_ = writeLocked(OpcodePing, nil)
			}
		case <-ctx.Done():
			return false, ctx.Err().Error()
		default:
		}

		if s.awaitingPong && time.Since(s.pingSentAt) > s.cfg.PingTimeout {
			s.awaitingPong = false
			s.events <- Unresponsive{}
			s.state.Abort()
			return false, "ping timeout: peer unresponsive"
		}

		if s.state.State() == StateClosing && !s.closeSentAt.IsZero() &&
			time.Since(s.closeSentAt) > s.cfg.CloseTimeout {
			s.state.Closed()
		}
	}

	return s.state.IsClosed(), "close handshake completed"
}

// decodeAvailableFrames drains every frame the ByteParser can currently
// produce, feeding each through MessageAssembler and reacting to
// control frames and protocol errors per spec §4.8/§4.9.
func (s *Session) decodeAvailableFrames(write func(Opcode, []byte) error) error {
	for {
		frame, ok, err := s.codec.DecodeNext(s.assembler.ValidatorFor)
		if err != nil {
			return s.handleDecodeError(err, write)
		}
		if !ok {
			return nil
		}

		msg, complete, merr := s.assembler.Feed(frame)
		if merr != nil {
			return s.handleDecodeError(merr, write)
		}
		if !complete {
			continue
		}

		if err := s.handleMessage(msg, write); err != nil {
			return err
		}
	}
}

func (s *Session) handleDecodeError(err error, write func(Opcode, []byte) error) error {
	if IsCritical(err) {
		s.state.Abort()
		return err
	}
	var pe *ProtocolError
	if asProtocolError(err, &pe) {
		s.sendClose(StatusProtocolError, pe.Reason, write)
		s.state.BeginClosing()
		s.state.Closed()
		return nil
	}
	return err
}

func (s *Session) handleMessage(msg Message, write func(Opcode, []byte) error) error {
	switch msg.Opcode {
	case OpcodeText:
		s.events <- Text{Data: msg.Text()}
	case OpcodeBinary:
		s.events <- Binary{Data: msg.Data}
	case OpcodePing:
		s.events <- Ping{Data: msg.Data}
		if s.cfg.AutoPong {
			_ = write(OpcodePong, msg.Data)
		}
	case OpcodePong:
		s.awaitingPong = false
		s.events <- Pong{Data: msg.Data}
	case OpcodeClose:
		return s.handleClose(msg, write)
	}
	return nil
}

// handleClose implements spec §4.8's echo rule: if the local side had
// not already sent a CLOSE, it echoes one with the same (code, reason)
// before moving to Closed.
func (s *Session) handleClose(msg Message, write func(Opcode, []byte) error) error {
	s.state.MarkCloseReceived()

	code := StatusNormalClosure
	if msg.HasCode {
		code = msg.Code
	}
	if !ValidateCloseCode(code) {
		s.sendClose(StatusProtocolError, "reserved close code", write)
		s.state.BeginClosing()
		s.state.Closed()
		return nil
	}

	wasClosing := s.state.CloseSent()
	s.state.BeginClosing()
	s.events <- Closing{Code: code, Reason: msg.Reason}

	if !wasClosing {
		s.sendClose(code, msg.Reason, write)
	}

	s.state.Closed()
	s.events <- Closed{Code: code, Reason: msg.Reason}
	return nil
}

// sendClose writes a CLOSE control frame, honoring the idempotency rule
// from tzrikka-timpani/pkg/websocket/close.go's sendCloseControlFrame:
// at most one CLOSE frame ever goes out per connection.
func (s *Session) sendClose(code StatusCode, reason string, write func(Opcode, []byte) error) {
	if !s.state.MarkCloseSent() {
		return
	}
	s.closeSentAt = time.Now()

	payload := encodeClosePayload(code, reason)
	if err := write(OpcodeClose, payload); err != nil {
		s.logger.Debug().Err(err).Msg("failed to send close frame")
	}
}

func encodeClosePayload(code StatusCode, reason string) []byte {
	const maxCloseReason = MaxControlPayload - 2
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}
	payload := make([]byte, 2+len(reason))
	payload[0] = byte(code >> 8)
	payload[1] = byte(code)
	copy(payload[2:], reason)
	return payload
}

// Close initiates the closing handshake (spec §4.9's "consumer cancels
// by calling close(code, reason)"): it sends a CLOSE frame and
// transitions to Closing, returning once the frame has been written (not
// once the peer has echoed it — watch Events for the eventual Closed).
func (s *Session) Close(code StatusCode, reason string) error {
	errCh := make(chan error, 1)
	payload := encodeClosePayload(code, reason)
	if !s.state.MarkCloseSent() {
		return nil
	}
	s.state.BeginClosing()
	s.closeSentAt = time.Now()
	s.sendCh <- internalSend{opcode: OpcodeClose, data: payload, err: errCh}
	return <-errCh
}

// SendText sends a complete TEXT message.
func (s *Session) SendText(data string) error {
	return s.send(OpcodeText, []byte(data))
}

// SendBinary sends a complete BINARY message.
func (s *Session) SendBinary(data []byte) error {
	return s.send(OpcodeBinary, data)
}

func (s *Session) send(op Opcode, data []byte) error {
	switch s.state.State() {
	case StateClosed:
		return ErrWebSocketClosed
	case StateClosing:
		return ErrWebSocketClosing
	case StateConnecting, StateConnected:
		return ErrWebSocketUnavailable
	}

	errCh := make(chan error, 1)
	s.sendCh <- internalSend{opcode: op, data: data, err: errCh}
	return <-errCh
}

// asProtocolError reports whether err is itself a *ProtocolError and, if
// so, stores it in target. Unlike errors.As it does not unwrap err.
func asProtocolError(err error, target **ProtocolError) bool {
	pe, ok := err.(*ProtocolError)
	if !ok {
		return false
	}
	*target = pe
	return true
}
