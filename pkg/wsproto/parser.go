package wsproto

import "bytes"

// ByteParser is a resumable reader over an append-only byte stream. It
// replaces the coroutine-style ("yield self.read(n)") parser of the
// Python original (original_source/lomond/parser.go's ancestor,
// lomond/parser.py): Go has no generator suspension, so instead of a
// routine that yields read requests, callers issue one of ReadExact,
// ReadUntil, or ReadValidatedUTF8 and poll it after each Feed until it
// reports ready. The "current awaiting request" that the Python
// coroutine kept on its call stack becomes, here, whatever local state
// the caller (FrameCodec's decode loop) holds between polls — ByteParser
// itself only owns the byte buffer and the incremental UTF-8 progress
// cursor for whichever read is in flight.
type ByteParser struct {
	buf  []byte
	eof  bool
	done bool // Feed refused after EOF.

	// utf8Progress tracks how many leading bytes of the in-flight
	// ReadValidatedUTF8 request have already been pushed through its
	// validator, so repeated polls don't re-validate the same prefix.
	utf8Progress int
}

// NewByteParser returns a parser ready to accept its first Feed.
func NewByteParser() *ByteParser {
	return &ByteParser{}
}

// Feed appends chunk to the stream. A call with an empty chunk signals
// EOF: it is recorded, and any outstanding read will now fail once it
// exhausts the buffered bytes. Feeding a parser that has already seen
// EOF refuses the call.
func (p *ByteParser) Feed(chunk []byte) error {
	if p.done {
		return ErrParserClosed
	}
	if len(chunk) == 0 {
		p.eof = true
		p.done = true
		return ErrParserEOF
	}
	p.buf = append(p.buf, chunk...)
	return nil
}

// ReadExact tries to obtain the next n bytes. It returns ok=false (no
// error) when not enough bytes have been fed yet; the caller should
// retry after the next Feed. The returned slice aliases the parser's
// internal buffer and is only valid until the next Read call.
func (p *ByteParser) ReadExact(n int) (data []byte, ok bool, err error) {
	if len(p.buf) < n {
		if p.eof {
			return nil, false, ErrParserEOF
		}
		return nil, false, nil
	}
	data = p.buf[:n]
	p.buf = p.buf[n:]
	return data, true, nil
}

// ReadUntil tries to obtain the bytes up to and including the first
// occurrence of sep. It fails with ErrOverflow if sep has not appeared
// within maxBytes.
func (p *ByteParser) ReadUntil(sep []byte, maxBytes int) (data []byte, ok bool, err error) {
	idx := bytes.Index(p.buf, sep)
	if idx < 0 {
		if len(p.buf) > maxBytes {
			return nil, false, ErrOverflow
		}
		if p.eof {
			return nil, false, ErrParserEOF
		}
		return nil, false, nil
	}
	end := idx + len(sep)
	if end > maxBytes {
		return nil, false, ErrOverflow
	}
	data = p.buf[:end]
	p.buf = p.buf[end:]
	return data, true, nil
}

// ReadValidatedUTF8 behaves like ReadExact, except every newly-arrived
// byte is pushed through validator as soon as it is buffered, even
// before the full n bytes have arrived — so invalid UTF-8 is detected as
// early as possible instead of only once the whole (possibly
// multi-fragment) payload has been read.
func (p *ByteParser) ReadValidatedUTF8(n int, validator *Utf8Validator) (data []byte, ok bool, err error) {
	avail := len(p.buf)
	if avail > n {
		avail = n
	}
	if fresh := p.buf[p.utf8Progress:avail]; len(fresh) > 0 {
		if !validator.Push(fresh) {
			return nil, false, ErrInvalidUTF8
		}
		p.utf8Progress = avail
	}

	if avail < n {
		if p.eof {
			return nil, false, ErrParserEOF
		}
		return nil, false, nil
	}

	data = p.buf[:n]
	p.buf = p.buf[n:]
	p.utf8Progress = 0
	return data, true, nil
}

// Buffered reports how many unconsumed bytes are currently held.
// HandshakeResponseParser does not use it; its 16 KiB header cap is
// enforced by ReadUntil's maxBytes alone.
func (p *ByteParser) Buffered() int {
	return len(p.buf)
}
