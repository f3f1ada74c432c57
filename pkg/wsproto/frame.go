package wsproto

import (
	"encoding/binary"
	"math"
	"strconv"
)

// Opcode denotes the type of a WebSocket frame, as defined in
// https://datatracker.ietf.org/doc/html/rfc6455#section-5.2 and
// https://datatracker.ietf.org/doc/html/rfc6455#section-11.8.
type Opcode int

const (
	OpcodeContinuation Opcode = iota
	OpcodeText
	OpcodeBinary
	// 3-7 are reserved for further non-control frames.
	_
	_
	_
	_
	_
	OpcodeClose
	OpcodePing
	OpcodePong
	// 11-15 are reserved for further control frames.
)

// IsControl reports whether the opcode identifies a control frame
// (CLOSE, PING, PONG): always fin=1, payload at most 125 bytes.
func (o Opcode) IsControl() bool {
	return o >= OpcodeClose
}

func (o Opcode) reserved() bool {
	return (o > OpcodeBinary && o < OpcodeClose) || o > OpcodePong
}

// String returns the opcode's name, or its number if unrecognized.
func (o Opcode) String() string {
	switch o {
	case OpcodeContinuation:
		return "continuation"
	case OpcodeText:
		return "text"
	case OpcodeBinary:
		return "binary"
	case OpcodeClose:
		return "close"
	case OpcodePing:
		return "ping"
	case OpcodePong:
		return "pong"
	default:
		return strconv.Itoa(int(o))
	}
}

// Frame is a single RFC 6455 §5.2 protocol frame. By the time a Frame
// value is produced by FrameCodec.DecodeNext, any masking has already
// been handled (a server frame must not be masked at all; this engine
// rejects it otherwise), so Payload is always ready-to-use application
// data.
type Frame struct {
	Fin              bool
	RSV1, RSV2, RSV3 bool
	Opcode           Opcode
	Payload          []byte
}

const (
	headerBit0 = 0x80 // FIN
	headerBit1 = 0x40 // RSV1
	headerBit2 = 0x20 // RSV2
	headerBit3 = 0x10 // RSV3
	maskBit    = 0x80
	opcodeMask = 0x0f
	lenMask    = 0x7f

	len7Bits  = 125 // Direct payload length encoding, up to 125 bytes.
	len16Bits = 126 // Next 2 bytes are a big-endian 16-bit extended length.
	len64Bits = 127 // Next 8 bytes are a big-endian 64-bit extended length.

	// MaxControlPayload is the maximum length of a control frame
	// payload, per https://datatracker.ietf.org/doc/html/rfc6455#section-5.5.
	MaxControlPayload = 125
)

// maxPayloadLength is the largest payload length this engine accepts: a
// 63-bit unsigned integer per spec §3 (the RFC requires the MSB of the
// 64-bit extended length to be zero).
const maxPayloadLength = math.MaxInt64

// frameHeader is the parsed form of an incoming frame's header, before
// the payload has been read.
type frameHeader struct {
	fin              bool
	rsv1, rsv2, rsv3 bool
	opcode           Opcode
	masked           bool
	payloadLength    uint64
}

type decodeStage int

const (
	stageHeaderByte1 decodeStage = iota
	stageHeaderByte2
	stageExtLength
	stagePayload
)

// FrameCodec encodes outgoing frames and decodes incoming ones from a
// ByteParser, enforcing the per-frame invariants of spec §3 and §4.4:
// reserved bits, reserved opcodes, control-frame fin/length limits, and
// the server-must-not-mask rule. Continuation-sequencing rules (does a
// CONT frame have anything to continue) are MessageAssembler's
// responsibility, one layer up, since they depend on message-level
// state FrameCodec does not keep.
//
// A FrameCodec is owned exclusively by one Session; it is not
// goroutine-safe.
type FrameCodec struct {
	parser *ByteParser

	stage    decodeStage
	header   frameHeader
	extWidth int // 2 or 8, set when stage == stageExtLength
}

// NewFrameCodec returns a codec that decodes frames fed into parser.
func NewFrameCodec(parser *ByteParser) *FrameCodec {
	return &FrameCodec{parser: parser}
}

// DecodeNext attempts to decode the next frame from bytes already fed
// into the codec's ByteParser. validatorFor is consulted once the
// frame's opcode is known (at the start of its payload stage); when it
// returns non-nil, that UTF-8 DFA validates the payload incrementally as
// bytes arrive, instead of the payload being buffered verbatim.
// DecodeNext returns ok=false (no error) when more bytes are needed; the
// caller should Feed the parser and retry.
func (c *FrameCodec) DecodeNext(validatorFor func(Opcode) *Utf8Validator) (frame Frame, ok bool, err error) {
	for {
		switch c.stage {
		case stageHeaderByte1:
			b, got, ferr := c.parser.ReadExact(1)
			if ferr != nil || !got {
				return Frame{}, false, ferr
			}
			c.header = frameHeader{
				fin:    b[0]&headerBit0 != 0,
				rsv1:   b[0]&headerBit1 != 0,
				rsv2:   b[0]&headerBit2 != 0,
				rsv3:   b[0]&headerBit3 != 0,
				opcode: Opcode(b[0] & opcodeMask),
			}
			c.stage = stageHeaderByte2

		case stageHeaderByte2:
			b, got, ferr := c.parser.ReadExact(1)
			if ferr != nil || !got {
				return Frame{}, false, ferr
			}
			c.header.masked = b[0]&maskBit != 0
			length := b[0] & lenMask
			switch length {
			case len16Bits:
				c.extWidth = 2
				c.stage = stageExtLength
			case len64Bits:
				c.extWidth = 8
				c.stage = stageExtLength
			default:
				c.header.payloadLength = uint64(length)
				c.stage = stagePayload
			}

		case stageExtLength:
			b, got, ferr := c.parser.ReadExact(c.extWidth)
			if ferr != nil || !got {
				return Frame{}, false, ferr
			}
			if c.extWidth == 2 {
				c.header.payloadLength = uint64(binary.BigEndian.Uint16(b))
			} else {
				v := binary.BigEndian.Uint64(b)
				if v > maxPayloadLength {
					c.stage = stageHeaderByte1
					return Frame{}, false, newCriticalError("payload length exceeds 63 bits")
				}
				c.header.payloadLength = v
			}
			c.stage = stagePayload

		case stagePayload:
			h := c.header
			if verr := checkFrameHeader(h); verr != nil {
				c.stage = stageHeaderByte1
				return Frame{}, false, verr
			}

			var validator *Utf8Validator
			if validatorFor != nil {
				validator = validatorFor(h.opcode)
			}
			data, got, derr := c.readPayload(validator)
			if derr != nil {
				c.stage = stageHeaderByte1
				return Frame{}, false, derr
			}
			if !got {
				return Frame{}, false, nil
			}

			c.stage = stageHeaderByte1
			return Frame{
				Fin:     h.fin,
				RSV1:    h.rsv1,
				RSV2:    h.rsv2,
				RSV3:    h.rsv3,
				Opcode:  h.opcode,
				Payload: data,
			}, true, nil
		}
	}
}

func (c *FrameCodec) readPayload(validateText *Utf8Validator) ([]byte, bool, error) {
	n := int(c.header.payloadLength)
	if n == 0 {
		return []byte{}, true, nil
	}

	var data []byte
	var got bool
	var err error
	if validateText != nil {
		data, got, err = c.parser.ReadValidatedUTF8(n, validateText)
		if err == ErrInvalidUTF8 {
			return nil, false, newCriticalError("invalid UTF-8 in text payload")
		}
	} else {
		data, got, err = c.parser.ReadExact(n)
	}
	if err != nil || !got {
		return nil, got, err
	}
	return append([]byte(nil), data...), true, nil
}

// checkFrameHeader validates the per-frame invariants from spec §3 and
// §4.4 once a header (and any extended length) has been fully parsed,
// before the payload is read.
func checkFrameHeader(h frameHeader) error {
	if h.rsv1 || h.rsv2 || h.rsv3 {
		return newGracefulError("invalid reserved bits")
	}
	if h.opcode.reserved() {
		return newGracefulError("unknown opcode " + h.opcode.String())
	}
	if h.opcode.IsControl() {
		if h.payloadLength > MaxControlPayload {
			return newGracefulError("control frame payload too large")
		}
		if !h.fin {
			return newGracefulError("control frame must not be fragmented")
		}
	}
	if h.masked {
		return newGracefulError("server sent a masked frame")
	}
	return nil
}

// EncodeFrame builds a single, unfragmented, masked outgoing frame:
// client-to-server frames are always masked per RFC 6455 §5.1. This
// engine never fragments outgoing frames, so FIN is always set.
func EncodeFrame(op Opcode, payload []byte) ([]byte, error) {
	if uint64(len(payload)) > maxPayloadLength {
		return nil, ErrFrameTooLarge
	}

	key, err := newMaskKey()
	if err != nil {
		return nil, err
	}

	header := encodeHeader(op, len(payload))
	out := make([]byte, 0, len(header)+4+len(payload))
	out = append(out, header...)
	out = append(out, key[:]...)

	masked := append([]byte(nil), payload...)
	mask(key, masked)
	out = append(out, masked...)

	return out, nil
}

func encodeHeader(op Opcode, n int) []byte {
	first := headerBit0 | byte(op) // FIN always set.

	switch {
	case n <= len7Bits:
		return []byte{first, maskBit | byte(n)}
	case n <= 0xffff:
		h := make([]byte, 4)
		h[0] = first
		h[1] = maskBit | len16Bits
		binary.BigEndian.PutUint16(h[2:], uint16(n)) //nolint:gosec // bounded by the case above
		return h
	default:
		h := make([]byte, 10)
		h[0] = first
		h[1] = maskBit | len64Bits
		binary.BigEndian.PutUint64(h[2:], uint64(n)) //nolint:gosec // bounded by the ErrFrameTooLarge check above
		return h
	}
}
