package sshshell

import "bytes"

type matcherState int

const (
	matcherIdle matcherState = iota
	matcherReceiving
)

// promptMatcher frames responses on an unframed interactive channel by
// recognizing the idle prompt reappearing at the tail of the stream.
// It is an explicit Idle/Receiving state machine so the brittleness of
// prompt detection stays in one place.
//
// Known risk: correctness depends on the sentinel being stable and
// never occurring inside legitimate output.
type promptMatcher struct {
	sentinel []byte
	state    matcherState
	tail     []byte
}

func newPromptMatcher(sentinel string) *promptMatcher {
	return &promptMatcher{
		sentinel: []byte(sentinel),
		state:    matcherIdle,
		tail:     make([]byte, 0, len(sentinel)),
	}
}

// Feed consumes the next chunk and reports whether the trailing bytes
// of the stream now equal the sentinel. Chunks may split the sentinel
// at any byte boundary.
func (m *promptMatcher) Feed(chunk []byte) bool {
	if len(chunk) == 0 {
		return bytes.Equal(m.tail, m.sentinel)
	}
	m.state = matcherReceiving

	m.tail = append(m.tail, chunk...)
	if overflow := len(m.tail) - len(m.sentinel); overflow > 0 {
		m.tail = m.tail[overflow:]
	}

	if bytes.Equal(m.tail, m.sentinel) {
		m.state = matcherIdle
		return true
	}
	return false
}

// Reset returns the matcher to the Idle state with no history, ready
// to frame the next command.
func (m *promptMatcher) Reset() {
	m.state = matcherIdle
	m.tail = m.tail[:0]
}
