package wsproto

import "testing"

func TestMessageAssemblerSingleFrame(t *testing.T) {
	a := NewMessageAssembler()
	msg, ok, err := a.Feed(Frame{Fin: true, Opcode: OpcodeText, Payload: []byte("hi")})
	if err != nil || !ok {
		t.Fatalf("Feed() = (_, %v, %v), want (_, true, nil)", ok, err)
	}
	if msg.Text() != "hi" {
		t.Errorf("Feed() text = %q, want %q", msg.Text(), "hi")
	}
}

func TestMessageAssemblerFragmentation(t *testing.T) {
	a := NewMessageAssembler()

	if _, ok, err := a.Feed(Frame{Opcode: OpcodeText, Payload: []byte("Hel")}); ok || err != nil {
		t.Fatalf("Feed(first fragment) = (_, %v, %v), want (_, false, nil)", ok, err)
	}
	if _, ok, err := a.Feed(Frame{Opcode: OpcodeContinuation, Payload: []byte("lo ")}); ok || err != nil {
		t.Fatalf("Feed(continuation) = (_, %v, %v), want (_, false, nil)", ok, err)
	}

	msg, ok, err := a.Feed(Frame{Fin: true, Opcode: OpcodeContinuation, Payload: []byte("world")})
	if err != nil || !ok {
		t.Fatalf("Feed(final) = (_, %v, %v), want (_, true, nil)", ok, err)
	}
	if msg.Text() != "Hello world" {
		t.Errorf("assembled text = %q, want %q", msg.Text(), "Hello world")
	}
}

func TestMessageAssemblerControlFrameDuringFragmentation(t *testing.T) {
	a := NewMessageAssembler()
	if _, ok, _ := a.Feed(Frame{Opcode: OpcodeText, Payload: []byte("Hel")}); ok {
		t.Fatal("first fragment unexpectedly complete")
	}

	msg, ok, err := a.Feed(Frame{Fin: true, Opcode: OpcodePing, Payload: []byte("ping")})
	if err != nil || !ok {
		t.Fatalf("Feed(ping mid-fragment) = (_, %v, %v), want (_, true, nil)", ok, err)
	}
	if string(msg.Data) != "ping" {
		t.Errorf("ping payload = %q, want %q", msg.Data, "ping")
	}

	// The fragmented TEXT message must still be in flight afterwards.
	final, ok, err := a.Feed(Frame{Fin: true, Opcode: OpcodeContinuation, Payload: []byte("lo")})
	if err != nil || !ok {
		t.Fatalf("Feed(resumed continuation) = (_, %v, %v), want (_, true, nil)", ok, err)
	}
	if final.Text() != "Hello" {
		t.Errorf("assembled text = %q, want %q", final.Text(), "Hello")
	}
}

func TestMessageAssemblerContinuationWithNothingToContinue(t *testing.T) {
	a := NewMessageAssembler()
	_, _, err := a.Feed(Frame{Fin: true, Opcode: OpcodeContinuation, Payload: []byte("x")})
	if err == nil {
		t.Fatal("Feed() error = nil, want a protocol error")
	}
	if IsCritical(err) {
		t.Errorf("IsCritical() = true, want false (graceful)")
	}
}

func TestMessageAssemblerUnexpectedNewMessage(t *testing.T) {
	a := NewMessageAssembler()
	if _, ok, _ := a.Feed(Frame{Opcode: OpcodeText, Payload: []byte("a")}); ok {
		t.Fatal("first fragment unexpectedly complete")
	}
	_, _, err := a.Feed(Frame{Fin: true, Opcode: OpcodeBinary, Payload: []byte("b")})
	if err == nil {
		t.Fatal("Feed() error = nil, want a protocol error")
	}
}

func TestMessageAssemblerTruncatedUTF8AtMessageEnd(t *testing.T) {
	a := NewMessageAssembler()
	// Simulate what FrameCodec's readPayload would already have done: push
	// an incomplete multi-byte sequence (the first two bytes of '€')
	// through the validator while decoding the payload.
	if !a.validator.Push([]byte{0xe2, 0x82}) {
		t.Fatal("Push() rejected a valid UTF-8 prefix")
	}

	_, ok, err := a.Feed(Frame{Fin: true, Opcode: OpcodeText, Payload: []byte{0xe2, 0x82}})
	if ok {
		t.Fatal("Feed() ok = true, want false for a truncated UTF-8 sequence")
	}
	if err == nil {
		t.Fatal("Feed() error = nil, want a critical protocol error")
	}
	if !IsCritical(err) {
		t.Errorf("IsCritical() = false, want true")
	}
}

func TestMessageAssemblerCloseParsing(t *testing.T) {
	tests := []struct {
		name        string
		payload     []byte
		wantCode    StatusCode
		wantReason  string
		wantHasCode bool
		wantErr     bool
	}{
		{name: "empty", payload: nil},
		{name: "one_byte", payload: []byte{0x03}, wantErr: true},
		{
			name:        "code_only",
			payload:     []byte{0x03, 0xe8},
			wantCode:    StatusNormalClosure,
			wantHasCode: true,
		},
		{
			name:        "code_and_reason",
			payload:     append([]byte{0x03, 0xe8}, []byte("bye")...),
			wantCode:    StatusNormalClosure,
			wantReason:  "bye",
			wantHasCode: true,
		},
		{
			name:    "reserved_code",
			payload: []byte{0x03, 0xed}, // 1005
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewMessageAssembler()
			msg, ok, err := a.Feed(Frame{Fin: true, Opcode: OpcodeClose, Payload: tt.payload})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Feed() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !ok {
				t.Fatal("Feed() ok = false, want true")
			}
			if msg.HasCode != tt.wantHasCode || msg.Code != tt.wantCode || msg.Reason != tt.wantReason {
				t.Errorf("Feed() = %+v, want HasCode=%v Code=%v Reason=%q",
					msg, tt.wantHasCode, tt.wantCode, tt.wantReason)
			}
		})
	}
}
