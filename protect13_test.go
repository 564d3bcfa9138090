package tlsrecord

import (
	"bytes"
	"testing"
)

// TestTLS13RoundTrip exercises Encrypt13/Decrypt13 with padding
// requested on the wire, verifying the inner content type and
// plaintext survive the round trip.
func TestTLS13RoundTrip(t *testing.T) {
	clientRP := suitedRP(chacha20)
	serverRP := suitedRP(chacha20)
	key := bytes.Repeat([]byte{0x55}, 32)
	iv := bytes.Repeat([]byte{0x66}, 12)
	clientRP.Write = DirectionState{Key: key, IV: iv}
	serverRP.Read = DirectionState{Key: key, IV: iv}
	assertNil(t, clientRP.buildCipherContexts(), "client cipher contexts")
	assertNil(t, serverRP.buildCipherContexts(), "server cipher contexts")

	plaintext := []byte("hello application data")
	payload, err := Encrypt13(clientRP, 0, RecordTypeApplicationData, plaintext, 4, DefaultMaxRecordSendSize)
	assertNil(t, err, "encrypt13")

	out, innerType, err := Decrypt13(serverRP, 0, payload, DefaultMaxRecordRecvSize, true)
	assertNil(t, err, "decrypt13")
	assertTrue(t, bytes.Equal(out, plaintext), "round trip mismatch")
	assertTrue(t, innerType == RecordTypeApplicationData, "wrong inner content type")
}

// TestTLS13ContentTypeRecovery covers S4: inner plaintext "abc" ||
// 0x17 || 00 00 00 recovers content type application_data at index 3
// with payload "abc", scanning from the right.
func TestTLS13ContentTypeRecovery(t *testing.T) {
	inner := append([]byte("abc"), byte(RecordTypeApplicationData), 0, 0, 0)
	idx, ok := ctScanRightNonzero(inner)
	assertTrue(t, ok, "expected a non-zero byte")
	assertTrue(t, idx == 3, "expected content type at index 3")
	assertTrue(t, RecordType(inner[idx]) == RecordTypeApplicationData, "wrong recovered type")
	assertTrue(t, bytes.Equal(inner[:idx], []byte("abc")), "wrong payload")
}

// TestTLS13AllZeroInnerPlaintextFails matches GnuTLS's treatment of an
// all-zero inner plaintext as a decode failure, not a distinguishable
// signal.
func TestTLS13AllZeroInnerPlaintextFails(t *testing.T) {
	_, ok := ctScanRightNonzero(make([]byte, 8))
	assertTrue(t, !ok, "all-zero buffer must not resolve a content type")
}

// TestTLS13TamperDetected mirrors invariant 4 for the TLS 1.3 AEAD
// path: any bit flip in the authenticated ciphertext surfaces as
// KindDecryptionFailure.
func TestTLS13TamperDetected(t *testing.T) {
	clientRP := suitedRP(chacha20)
	serverRP := suitedRP(chacha20)
	key := bytes.Repeat([]byte{0x21}, 32)
	iv := bytes.Repeat([]byte{0x22}, 12)
	clientRP.Write = DirectionState{Key: key, IV: iv}
	serverRP.Read = DirectionState{Key: key, IV: iv}
	assertNil(t, clientRP.buildCipherContexts(), "client cipher contexts")
	assertNil(t, serverRP.buildCipherContexts(), "server cipher contexts")

	payload, err := Encrypt13(clientRP, 0, RecordTypeApplicationData, []byte("data"), 0, DefaultMaxRecordSendSize)
	assertNil(t, err, "encrypt13")
	payload[0] ^= 0xFF

	_, _, err = Decrypt13(serverRP, 0, payload, DefaultMaxRecordRecvSize, true)
	assertTrue(t, err != nil, "tampered record must fail")
	kind, ok := KindOf(err)
	assertTrue(t, ok && kind == KindDecryptionFailure, "expected KindDecryptionFailure")
}
