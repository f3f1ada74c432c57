package wsproto

import (
	"fmt"
	"net/url"
	"strconv"
)

// ErrCompressionParameter is returned by ParseDeflateParams when a
// permessage-deflate extension parameter is out of range or malformed.
var ErrCompressionParameter = newGracefulError("invalid permessage-deflate parameter")

// Compression is the decompress/compress collaborator a Session may
// delegate a negotiated extension to. This engine implements only
// parameter parsing (ParseDeflateParams below); the actual byte
// transform, and whether to negotiate the extension at all, are left to
// the implementer, per spec.md §9 Open Question (2).
type Compression interface {
	Decompress(data []byte) ([]byte, error)
	Compress(data []byte) ([]byte, error)
}

// DeflateParams holds the parsed parameters of a permessage-deflate
// offer or response, per RFC 7692 §7.1, grounded on
// original_source/lomond/compression.py's Decompressor option handling.
type DeflateParams struct {
	ServerNoContextTakeover bool
	ClientNoContextTakeover bool
	ServerMaxWindowBits     int // 0 means unspecified (use the default of 15).
	ClientMaxWindowBits     int
}

// ParseDeflateParams validates and parses the Sec-WebSocket-Extensions
// parameter set for permessage-deflate. server_max_window_bits and
// client_max_window_bits, when present, must be integers in [8,15].
func ParseDeflateParams(values url.Values) (DeflateParams, error) {
	var p DeflateParams

	if _, ok := values["server_no_context_takeover"]; ok {
		p.ServerNoContextTakeover = true
	}
	if _, ok := values["client_no_context_takeover"]; ok {
		p.ClientNoContextTakeover = true
	}

	var err error
	if p.ServerMaxWindowBits, err = parseWindowBits(values, "server_max_window_bits"); err != nil {
		return DeflateParams{}, err
	}
	if p.ClientMaxWindowBits, err = parseWindowBits(values, "client_max_window_bits"); err != nil {
		return DeflateParams{}, err
	}

	return p, nil
}

func parseWindowBits(values url.Values, key string) (int, error) {
	raw, ok := values[key]
	if !ok || len(raw) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(raw[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrCompressionParameter, key, raw[0])
	}
	if n < 8 || n > 15 {
		return 0, fmt.Errorf("%w: %s=%d out of range [8,15]", ErrCompressionParameter, key, n)
	}
	return n, nil
}
