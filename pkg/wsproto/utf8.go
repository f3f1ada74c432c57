package wsproto

// Utf8Validator is a byte-at-a-time incremental validator for UTF-8,
// built on Bjoern Hoehrmann's table-driven DFA
// (https://bjoern.hoehrmann.de/utf-8/decoder/dfa/). It lets the frame
// decoder validate a TEXT message's payload as bytes arrive, possibly
// split across several fragment frames, instead of buffering the whole
// message and decoding it at the end.
//
// The zero value is a validator in the accept state, ready to use.
type Utf8Validator struct {
	state uint8
}

const (
	utf8Accept uint8 = 0
	utf8Reject uint8 = 12
)

// utf8DFA is Hoehrmann's transition table: the first 256 entries map a
// byte to an character class (0-11); the remaining entries map
// (state, class) to the next state, in chunks of 12.
var utf8DFA = [...]uint8{
	// The byte -> character class table.
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	8, 8, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2,
	2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2,
	10, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 4, 3, 3,
	11, 6, 6, 6, 5, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8,

	// The (state, class) -> state transition table.
	0, 12, 24, 36, 60, 96, 84, 12, 12, 12, 48, 72,
	12, 12, 12, 12, 12, 12, 12, 12, 12, 12, 12, 12,
	12, 0, 12, 12, 12, 12, 12, 0, 12, 0, 12, 12,
	12, 24, 12, 12, 12, 12, 12, 24, 12, 24, 12, 12,
	12, 12, 12, 12, 12, 12, 12, 24, 12, 12, 12, 12,
	12, 24, 12, 12, 12, 12, 12, 12, 12, 24, 12, 12,
	12, 12, 12, 12, 12, 12, 12, 36, 12, 36, 12, 12,
	12, 36, 12, 12, 12, 12, 12, 36, 12, 36, 12, 12,
	12, 36, 12, 12, 12, 12, 12, 12, 12, 12, 12, 12,
}

// Push feeds bytes through the DFA. It returns false the moment an
// invalid sequence is detected; once it returns false, the validator
// must not be reused without a call to Reset.
func (v *Utf8Validator) Push(data []byte) bool {
	state := v.state
	for _, b := range data {
		class := utf8DFA[b]
		state = utf8DFA[256+int(state)+int(class)]
		if state == utf8Reject {
			v.state = utf8Reject
			return false
		}
	}
	v.state = state
	return true
}

// Complete reports whether the bytes validated so far form one or more
// complete, well-formed UTF-8 code points (i.e. the DFA is back in its
// accept state). It must be checked after the final fragment (fin=1) of
// a TEXT message: a validator left mid-sequence at message end is itself
// a critical protocol violation, even though every byte pushed so far
// was individually acceptable.
func (v *Utf8Validator) Complete() bool {
	return v.state == utf8Accept
}

// Reset returns the validator to its initial accept state, ready for a
// new message. The frame decoder resets it after every complete (fin=1)
// TEXT message and whenever the connection disconnects.
func (v *Utf8Validator) Reset() {
	v.state = utf8Accept
}

// validUTF8 reports whether s is entirely well-formed UTF-8. It is used
// for one-shot validation (e.g. CLOSE reasons, which are never
// fragmented) where the streaming API of Utf8Validator is unnecessary.
func validUTF8(b []byte) bool {
	var v Utf8Validator
	return v.Push(b) && v.Complete()
}
