package wsproto

import (
	"net/http"
	"testing"
)

func TestHandshakeRequest(t *testing.T) {
	hs, err := NewHandshake("ws://example.com/chat", nil)
	if err != nil {
		t.Fatalf("NewHandshake() error = %v", err)
	}
	hs.WithProtocol("chat")

	req, err := hs.Request()
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	if req.URL.Scheme != "http" {
		t.Errorf("Request().URL.Scheme = %q, want %q", req.URL.Scheme, "http")
	}
	if got := req.Header.Get("Upgrade"); got != "websocket" {
		t.Errorf("Upgrade header = %q, want %q", got, "websocket")
	}
	if got := req.Header.Get("Sec-WebSocket-Version"); got != "13" {
		t.Errorf("Sec-WebSocket-Version = %q, want %q", got, "13")
	}
	if got := req.Header.Get("Sec-WebSocket-Key"); got == "" {
		t.Errorf("Sec-WebSocket-Key header missing")
	}
	if got := req.Header.Get("Sec-WebSocket-Protocol"); got != "chat" {
		t.Errorf("Sec-WebSocket-Protocol = %q, want %q", got, "chat")
	}
}

func TestHandshakeCheckResponseAccepted(t *testing.T) {
	hs, err := NewHandshake("ws://example.com/", nil)
	if err != nil {
		t.Fatalf("NewHandshake() error = %v", err)
	}
	hs.nonce = "dGhlIHNhbXBsZSBub25jZQ=="

	resp := &HandshakeResponse{
		StatusCode: http.StatusSwitchingProtocols,
		Header: http.Header{
			"Upgrade":              []string{"websocket"},
			"Connection":           []string{"Upgrade"},
			"Sec-Websocket-Accept": []string{"s3pPLMBiTxaQ9kYGzzhZRbK+xOo="},
		},
	}

	if _, err := hs.CheckResponse(resp); err != nil {
		t.Fatalf("CheckResponse() error = %v, want nil", err)
	}
}

func TestHandshakeCheckResponseRejectsWrongStatus(t *testing.T) {
	hs, _ := NewHandshake("ws://example.com/", nil)
	resp := &HandshakeResponse{StatusCode: http.StatusOK}
	if _, err := hs.CheckResponse(resp); err == nil {
		t.Fatal("CheckResponse() error = nil, want non-nil for wrong status code")
	}
}

func TestHandshakeCheckResponseAcceptsConnectionTokenList(t *testing.T) {
	hs, err := NewHandshake("ws://example.com/", nil)
	if err != nil {
		t.Fatalf("NewHandshake() error = %v", err)
	}
	hs.nonce = "dGhlIHNhbXBsZSBub25jZQ=="

	// RFC 7230 §7 allows Connection to be a comma-separated token list;
	// a compliant server may combine it with other connection options.
	resp := &HandshakeResponse{
		StatusCode: http.StatusSwitchingProtocols,
		Header: http.Header{
			"Upgrade":              []string{"websocket"},
			"Connection":           []string{"keep-alive, Upgrade"},
			"Sec-Websocket-Accept": []string{"s3pPLMBiTxaQ9kYGzzhZRbK+xOo="},
		},
	}

	if _, err := hs.CheckResponse(resp); err != nil {
		t.Fatalf("CheckResponse() error = %v, want nil for a valid Connection token list", err)
	}
}

func TestHandshakeCheckResponseRejectsMissingConnectionToken(t *testing.T) {
	hs, _ := NewHandshake("ws://example.com/", nil)
	hs.nonce = "dGhlIHNhbXBsZSBub25jZQ=="
	resp := &HandshakeResponse{
		StatusCode: http.StatusSwitchingProtocols,
		Header: http.Header{
			"Upgrade":              []string{"websocket"},
			"Connection":           []string{"keep-alive"},
			"Sec-Websocket-Accept": []string{"s3pPLMBiTxaQ9kYGzzhZRbK+xOo="},
		},
	}
	if _, err := hs.CheckResponse(resp); err == nil {
		t.Fatal("CheckResponse() error = nil, want non-nil when Connection lacks an Upgrade token")
	}
}

func TestHandshakeCheckResponseRejectsWrongAccept(t *testing.T) {
	hs, _ := NewHandshake("ws://example.com/", nil)
	hs.nonce = "dGhlIHNhbXBsZSBub25jZQ=="
	resp := &HandshakeResponse{
		StatusCode: http.StatusSwitchingProtocols,
		Header: http.Header{
			"Upgrade":              []string{"websocket"},
			"Connection":           []string{"Upgrade"},
			"Sec-Websocket-Accept": []string{"wrong"},
		},
	}
	if _, err := hs.CheckResponse(resp); err == nil {
		t.Fatal("CheckResponse() error = nil, want non-nil for wrong accept value")
	}
}

func TestExpectedServerAcceptValue(t *testing.T) {
	// RFC 6455 §1.3 worked example.
	got := expectedServerAcceptValue("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Errorf("expectedServerAcceptValue() = %q, want %q", got, want)
	}
}
