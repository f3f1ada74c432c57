package wsproto

import (
	"bytes"
	"encoding/binary"
)

// Message is one or more (defragmented) frames reassembled into an
// application-visible unit, as defined in
// https://datatracker.ietf.org/doc/html/rfc6455#section-5.6.
type Message struct {
	Opcode Opcode
	Data   []byte

	// Code and Reason are only meaningful when Opcode == OpcodeClose.
	// HasCode distinguishes "no status code was present on the wire"
	// (an empty CLOSE payload) from StatusNormalClosure having been
	// sent explicitly.
	HasCode bool
	Code    StatusCode
	Reason  string
}

// Text returns Data decoded as a string. Callers should only use it
// when Opcode == OpcodeText, where MessageAssembler has already
// guaranteed the bytes are valid UTF-8.
func (m Message) Text() string {
	return string(m.Data)
}

// MessageAssembler joins fragmented frames into complete Messages,
// enforcing the continuation/control interleaving rules of spec §4.5:
// control frames (CLOSE/PING/PONG) are delivered immediately regardless
// of in-flight fragmentation; a CONTINUATION frame with nothing to
// continue, or a TEXT/BINARY frame while fragments are already in
// flight, are both protocol errors.
//
// A MessageAssembler is owned exclusively by one Session; it is not
// goroutine-safe.
type MessageAssembler struct {
	buf        bytes.Buffer
	fragOpcode Opcode
	inFragment bool
	validator  Utf8Validator
}

// NewMessageAssembler returns an assembler with no fragments in flight.
func NewMessageAssembler() *MessageAssembler {
	return &MessageAssembler{}
}

// ValidatorFor reports which UTF-8 DFA, if any, should validate the
// payload of a frame with the given opcode: a TEXT frame always needs
// one, a CONTINUATION frame needs one exactly when the fragmented
// message in flight is itself TEXT, and anything else (BINARY, PING,
// PONG, CLOSE) needs none. It is passed directly as FrameCodec.DecodeNext's
// validatorFor callback.
func (a *MessageAssembler) ValidatorFor(opcode Opcode) *Utf8Validator {
	switch {
	case opcode == OpcodeText:
		return &a.validator
	case opcode == OpcodeContinuation && a.inFragment && a.fragOpcode == OpcodeText:
		return &a.validator
	default:
		return nil
	}
}

// Feed processes one decoded Frame. It returns ok=true with a complete
// Message once fragmentation (if any) concludes, or an error for a
// protocol violation. Control frames always return ok=true immediately.
func (a *MessageAssembler) Feed(f Frame) (msg Message, ok bool, err error) {
	if f.Opcode.IsControl() {
		return a.buildControlMessage(f)
	}

	switch {
	case f.Opcode == OpcodeContinuation && !a.inFragment:
		return Message{}, false, newGracefulError("continuation frame has nothing to continue")
	case f.Opcode != OpcodeContinuation && a.inFragment:
		return Message{}, false, newGracefulError("continuation frame expected")
	}

	if !a.inFragment {
		a.inFragment = true
		a.fragOpcode = f.Opcode
		a.buf.Reset()
	}
	if len(f.Payload) > 0 {
		a.buf.Write(f.Payload)
	}

	if !f.Fin {
		return Message{}, false, nil
	}

	data := append([]byte(nil), a.buf.Bytes()...)
	opcode := a.fragOpcode
	a.buf.Reset()
	a.inFragment = false

	if opcode == OpcodeText {
		complete := a.validator.Complete()
		a.validator.Reset()
		if !complete {
			return Message{}, false, newCriticalError("truncated UTF-8 sequence at end of text message")
		}
	}

	return Message{Opcode: opcode, Data: data}, true, nil
}

// buildControlMessage assembles a one-frame control Message (spec §4.5:
// "Control frame (CLOSE/PING/PONG) is delivered immediately as a
// one-frame message regardless of in-flight fragments").
func (a *MessageAssembler) buildControlMessage(f Frame) (Message, bool, error) {
	if f.Opcode != OpcodeClose {
		return Message{Opcode: f.Opcode, Data: f.Payload}, true, nil
	}

	msg, err := parseClosePayload(f.Payload)
	if err != nil {
		return Message{}, false, err
	}
	return msg, true, nil
}

// parseClosePayload decodes a CLOSE frame's payload into a Message per
// spec §4.5: length 0 means no status code was sent; length 1 is
// malformed; length >= 2 is a big-endian 16-bit code followed by a
// UTF-8 reason.
func parseClosePayload(payload []byte) (Message, error) {
	switch len(payload) {
	case 0:
		return Message{Opcode: OpcodeClose}, nil
	case 1:
		return Message{}, newGracefulError("close frame with a 1-byte payload")
	}

	code := StatusCode(binary.BigEndian.Uint16(payload[:2]))
	reason := payload[2:]
	if !validUTF8(reason) {
		return Message{}, newCriticalError("invalid UTF-8 in close reason")
	}
	if code.reserved() {
		return Message{}, newGracefulError("reserved close code " + code.String())
	}

	return Message{
		Opcode:  OpcodeClose,
		HasCode: true,
		Code:    code,
		Reason:  string(reason),
	}, nil
}

// Reset clears any in-flight fragment state and the UTF-8 validator. It
// is called on disconnect so a reused assembler (there is none in this
// engine's own Session, which creates a fresh one per connection
// attempt, but the type remains independently testable/reusable) starts
// clean.
func (a *MessageAssembler) Reset() {
	a.buf.Reset()
	a.inFragment = false
	a.fragOpcode = 0
	a.validator.Reset()
}
