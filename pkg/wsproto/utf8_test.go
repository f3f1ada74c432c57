package wsproto

import "testing"

func TestUtf8ValidatorValid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"ascii", []byte("Hello, world!")},
		{"two_byte", []byte("café")},
		{"three_byte", []byte("中文")},
		{"four_byte", []byte("\U0001F600")},
		{"empty", []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Utf8Validator
			if !v.Push(tt.data) {
				t.Fatalf("Push(%q) = false, want true", tt.data)
			}
			if !v.Complete() {
				t.Errorf("Complete() = false, want true")
			}
		})
	}
}

func TestUtf8ValidatorInvalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"lone_continuation_byte", []byte{0x80}},
		{"overlong_encoding", []byte{0xc0, 0xaf}},
		{"truncated_sequence_followed_by_ascii", []byte{0xe2, 0x28, 0x41}},
		{"surrogate_half", []byte{0xed, 0xa0, 0x80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Utf8Validator
			if v.Push(tt.data) {
				t.Fatalf("Push(%v) = true, want false", tt.data)
			}
		})
	}
}

func TestUtf8ValidatorIncompleteAtEnd(t *testing.T) {
	var v Utf8Validator
	// The first two bytes of a 3-byte sequence: individually valid so
	// far, but the sequence never completes.
	if !v.Push([]byte{0xe4, 0xb8}) {
		t.Fatalf("Push() = false, want true (not yet rejected)")
	}
	if v.Complete() {
		t.Errorf("Complete() = true, want false for a dangling sequence")
	}
}

func TestUtf8ValidatorSplitAcrossPushes(t *testing.T) {
	full := []byte("中文test")
	var v Utf8Validator
	for i := range full {
		if !v.Push(full[i : i+1]) {
			t.Fatalf("Push() failed at byte %d", i)
		}
	}
	if !v.Complete() {
		t.Errorf("Complete() = false after full sequence split byte-by-byte")
	}
}

func TestUtf8ValidatorReset(t *testing.T) {
	var v Utf8Validator
	v.Push([]byte{0x80}) // Force reject.
	v.Reset()
	if !v.Push([]byte("ok")) {
		t.Errorf("Push() after Reset() = false, want true")
	}
}

func TestValidUTF8(t *testing.T) {
	if !validUTF8([]byte("bye")) {
		t.Errorf("validUTF8(\"bye\") = false, want true")
	}
	if validUTF8([]byte{0xff, 0xfe}) {
		t.Errorf("validUTF8(invalid) = true, want false")
	}
}
