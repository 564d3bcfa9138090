package tlsrecord

// MessageBuffer (mbuffer, spec §3) is a record-sized scratch region
// with three logical windows: a user-head area reserved for the
// record header, a user-data area for ciphertext+auth overhead, and a
// configurable alignment value. The send path
// reserves the header here instead of allocating it separately,
// avoiding a second copy when the header is finally known (sequence
// number, length) and the buffer is handed to the transport push
// callback.
type MessageBuffer struct {
	buf       []byte
	headLen   int
	alignment int
	dataLen   int
}

// NewMessageBuffer reserves headLen bytes for the record header and
// records alignment (values below 1 are stored as 1). The alignment is
// not applied: the head window always starts at offset 0 of the
// backing buffer.
func NewMessageBuffer(headLen, alignment, capacity int) *MessageBuffer {
	if alignment <= 0 {
		alignment = 1
	}
	return &MessageBuffer{
		buf:       make([]byte, headLen+capacity),
		headLen:   headLen,
		alignment: alignment,
	}
}

// Head returns the reserved header window for in-place writes.
func (m *MessageBuffer) Head() []byte { return m.buf[:m.headLen] }

// SetHeader right-aligns a variable-length header (e.g. TLS's 5 bytes
// vs DTLS's 13) against the end of the reserved head window, then
// returns the full head+data record ready for Flush.
func (m *MessageBuffer) SetHeader(h []byte) []byte {
	start := m.headLen - len(h)
	copy(m.buf[start:m.headLen], h)
	return m.buf[start : m.headLen+m.dataLen]
}

// Data returns the user-data window sized to the last SetData call.
func (m *MessageBuffer) Data() []byte { return m.buf[m.headLen : m.headLen+m.dataLen] }

// SetData copies b into the data window, growing the backing buffer
// if the caller under-reserved capacity.
func (m *MessageBuffer) SetData(b []byte) {
	need := m.headLen + len(b)
	if need > len(m.buf) {
		grown := make([]byte, need)
		copy(grown, m.buf[:m.headLen])
		m.buf = grown
	}
	copy(m.buf[m.headLen:], b)
	m.dataLen = len(b)
}

// Flush returns the full head+data window ready for the transport
// push callback, transferring ownership to the caller (spec §3:
// "transferred to the I/O writer on flush").
func (m *MessageBuffer) Flush() []byte {
	return m.buf[:m.headLen+m.dataLen]
}

// Reset clears the data window so the buffer can be reused for the
// next record without reallocating.
func (m *MessageBuffer) Reset() {
	m.dataLen = 0
}
