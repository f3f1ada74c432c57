package wsproto

import (
	"bufio"
	"fmt"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
)

// maxHandshakeResponseBytes caps the status line plus headers accepted
// from the server during the opening handshake, guarding against a
// server that never sends the terminating blank line.
const maxHandshakeResponseBytes = 16 * 1024

var crlf = []byte("\r\n\r\n")

// HandshakeResponse is the parsed form of the server's opening HTTP
// response, per https://datatracker.ietf.org/doc/html/rfc6455#section-4.2.2.
type HandshakeResponse struct {
	StatusCode int
	Status     string
	Header     http.Header
}

// HandshakeResponseParser reads a server's handshake response off a
// ByteParser, the same resumable-poll style as FrameCodec: the response
// head (status line + headers, terminated by a blank line) is read with
// a single ReadUntil("\r\n\r\n", 16 KiB) call, then parsed in one shot
// once it has all arrived.
type HandshakeResponseParser struct {
	parser *ByteParser
}

// NewHandshakeResponseParser returns a parser reading from parser.
func NewHandshakeResponseParser(parser *ByteParser) *HandshakeResponseParser {
	return &HandshakeResponseParser{parser: parser}
}

// DecodeNext attempts to parse the full response head. It returns
// ok=false (no error) when more bytes are needed.
func (p *HandshakeResponseParser) DecodeNext() (resp *HandshakeResponse, ok bool, err error) {
	head, got, err := p.parser.ReadUntil(crlf, maxHandshakeResponseBytes)
	if err != nil {
		return nil, false, err
	}
	if !got {
		return nil, false, nil
	}

	resp, err = parseResponseHead(head)
	if err != nil {
		return nil, false, err
	}
	return resp, true, nil
}

// parseResponseHead parses a complete HTTP/1.1 status line and header
// block (including the trailing blank line) via textproto, which already
// implements RFC 7230's folded-header and case-insensitive-canonical-key
// rules.
func parseResponseHead(head []byte) (*HandshakeResponse, error) {
	lines := strings.SplitN(string(head), "\r\n", 2)
	if len(lines) != 2 {
		return nil, newGracefulError("malformed HTTP response: missing status line")
	}

	statusLine := lines[0]
	parts := strings.SplitN(statusLine, " ", 3)
	if len(parts) < 2 {
		return nil, newGracefulError("malformed HTTP status line: " + statusLine)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, newGracefulError("malformed HTTP status code: " + parts[1])
	}

	reader := textproto.NewReader(bufio.NewReader(strings.NewReader(lines[1] + "\r\n")))
	mimeHeader, err := reader.ReadMIMEHeader()
	if err != nil && mimeHeader == nil {
		return nil, fmt.Errorf("failed to parse handshake response headers: %w", err)
	}

	status := ""
	if len(parts) == 3 {
		status = parts[2]
	}

	return &HandshakeResponse{
		StatusCode: code,
		Status:     status,
		Header:     http.Header(mimeHeader),
	}, nil
}

// headerList splits a comma-separated header value into its trimmed
// parts, mirroring original_source/lomond/response.py's get_list (used
// e.g. for a multi-valued Sec-WebSocket-Extensions header).
func headerList(header http.Header, key string) []string {
	raw := header.Get(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
