package tlsrecord

import (
	"bytes"
	"testing"
)

func assertTrue(t *testing.T, cond bool, msg string) {
	t.Helper()
	if !cond {
		t.Fatalf(msg)
	}
}

func assertNil(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}

func suitedRP(desc CipherDescriptor) *RecordParameters {
	return &RecordParameters{Descriptor: desc, state: slotSuited}
}

var aesGCM128 = CipherDescriptor{
	Name: "AES-GCM", Kind: KindAEAD,
	KeySize: 16, IVSize: 4, TagSize: 16, ExplicitIV: 8,
}

var chacha20 = CipherDescriptor{
	Name: "CHACHA20-POLY1305", Kind: KindAEAD,
	KeySize: 32, IVSize: 12, TagSize: 16, XORNonce: true,
}

var aesCBC128SHA1 = CipherDescriptor{
	Name: "AES", Kind: KindBlock,
	KeySize: 16, IVSize: 16, BlockSize: 16, MAC: MACHMACSHA1,
}

// TestAESGCMRoundTrip covers S1: AES-128-GCM TLS 1.2 one-record round
// trip. master_secret is 48 zero bytes; both ends derive the key block
// via the PRF and exchange one application_data record.
func TestAESGCMRoundTrip(t *testing.T) {
	masterSecret := make([]byte, 48)
	serverRandom := bytes.Repeat([]byte{0xAA}, 32)
	clientRandom := bytes.Repeat([]byte{0xBB}, 32)

	clientRP := suitedRP(aesGCM128)
	assertNil(t, clientRP.SetKeysTLS12(masterSecret, serverRandom, clientRandom, true), "client set_keys")
	serverRP := suitedRP(aesGCM128)
	assertNil(t, serverRP.SetKeysTLS12(masterSecret, serverRandom, clientRandom, false), "server set_keys")

	plaintext := []byte("hi")
	payload, err := Encrypt12(clientRP, 0, RecordTypeApplicationData, 3, 3, plaintext)
	assertNil(t, err, "encrypt")
	assertTrue(t, len(payload) == 8+len(plaintext)+16, "payload = explicit_iv(8) + ciphertext + tag(16)")

	out, err := Decrypt12(serverRP, 0, RecordTypeApplicationData, 3, 3, payload, DefaultMaxRecordRecvSize)
	assertNil(t, err, "decrypt")
	assertTrue(t, bytes.Equal(out, plaintext), "round trip mismatch")
}

// TestChaCha20XORNonceRoundTrip exercises the XOR-nonce AEAD path that
// AES-GCM's explicit-IV path does not cover.
func TestChaCha20XORNonceRoundTrip(t *testing.T) {
	masterSecret := bytes.Repeat([]byte{0x01}, 48)
	serverRandom := bytes.Repeat([]byte{0xCC}, 32)
	clientRandom := bytes.Repeat([]byte{0xDD}, 32)

	clientRP := suitedRP(chacha20)
	assertNil(t, clientRP.SetKeysTLS12(masterSecret, serverRandom, clientRandom, true), "client set_keys")
	serverRP := suitedRP(chacha20)
	assertNil(t, serverRP.SetKeysTLS12(masterSecret, serverRandom, clientRandom, false), "server set_keys")

	plaintext := []byte("the quick brown fox")
	for seq := uint64(0); seq < 3; seq++ {
		payload, err := Encrypt12(clientRP, seq, RecordTypeApplicationData, 3, 3, plaintext)
		assertNil(t, err, "encrypt")
		assertTrue(t, len(payload) == len(plaintext)+16, "no explicit IV travels on XOR-nonce suites")

		out, err := Decrypt12(serverRP, seq, RecordTypeApplicationData, 3, 3, payload, DefaultMaxRecordRecvSize)
		assertNil(t, err, "decrypt")
		assertTrue(t, bytes.Equal(out, plaintext), "round trip mismatch")
	}
}

// TestCBCMACThenEncryptPadding covers S2: a 13-byte plaintext under
// AES-128-CBC+HMAC-SHA1 pads to a block boundary. 13 (data) + 20
// (MAC) = 33, the next block boundary is 48, so the wire payload is
// explicit_iv(16) + 48 = 64 bytes.
func TestCBCMACThenEncryptPadding(t *testing.T) {
	clientRP := suitedRP(aesCBC128SHA1)
	key := bytes.Repeat([]byte{0x42}, 16)
	iv := bytes.Repeat([]byte{0x55}, 16)
	clientRP.Write = DirectionState{Key: key, MACKey: bytes.Repeat([]byte{0x24}, 20), IV: iv}
	assertNil(t, clientRP.buildCipherContexts(), "build cipher contexts")

	serverRP := suitedRP(aesCBC128SHA1)
	serverRP.Read = DirectionState{Key: key, MACKey: bytes.Repeat([]byte{0x24}, 20), IV: iv}
	assertNil(t, serverRP.buildCipherContexts(), "build cipher contexts")

	plaintext := bytes.Repeat([]byte{0x11}, 13)
	payload, err := Encrypt12(clientRP, 0, RecordTypeApplicationData, 3, 3, plaintext)
	assertNil(t, err, "encrypt")
	assertTrue(t, len(payload) == 64, "expected a 64-byte record")

	out, err := Decrypt12(serverRP, 0, RecordTypeApplicationData, 3, 3, payload, DefaultMaxRecordRecvSize)
	assertNil(t, err, "decrypt")
	assertTrue(t, bytes.Equal(out, plaintext), "round trip mismatch")
}

// TestCBCEncryptThenMACRoundTrip covers the EncryptThenMAC variant.
func TestCBCEncryptThenMACRoundTrip(t *testing.T) {
	desc := aesCBC128SHA1
	clientRP := suitedRP(desc)
	clientRP.EncryptThenMAC = true
	key := bytes.Repeat([]byte{0x77}, 16)
	mac := bytes.Repeat([]byte{0x88}, 20)
	iv := bytes.Repeat([]byte{0x99}, 16)
	clientRP.Write = DirectionState{Key: key, MACKey: mac, IV: iv}
	assertNil(t, clientRP.buildCipherContexts(), "build cipher contexts")

	serverRP := suitedRP(desc)
	serverRP.EncryptThenMAC = true
	serverRP.Read = DirectionState{Key: key, MACKey: mac, IV: iv}
	assertNil(t, serverRP.buildCipherContexts(), "build cipher contexts")

	plaintext := []byte("encrypt then mac, not the other way around")
	payload, err := Encrypt12(clientRP, 5, RecordTypeApplicationData, 3, 3, plaintext)
	assertNil(t, err, "encrypt")

	out, err := Decrypt12(serverRP, 5, RecordTypeApplicationData, 3, 3, payload, DefaultMaxRecordRecvSize)
	assertNil(t, err, "decrypt")
	assertTrue(t, bytes.Equal(out, plaintext), "round trip mismatch")

	payload[len(payload)-1] ^= 0xFF
	_, err = Decrypt12(serverRP, 5, RecordTypeApplicationData, 3, 3, payload, DefaultMaxRecordRecvSize)
	assertTrue(t, err != nil, "tampered MAC must fail")
	kind, ok := KindOf(err)
	assertTrue(t, ok && kind == KindDecryptionFailure, "expected KindDecryptionFailure")
}

// TestAEADTamperDetected is invariant 4/10: any bit flip in the tag or
// ciphertext must surface as KindDecryptionFailure, never a panic or a
// distinguishable error for a different cause.
func TestAEADTamperDetected(t *testing.T) {
	masterSecret := make([]byte, 48)
	serverRandom := bytes.Repeat([]byte{0xAA}, 32)
	clientRandom := bytes.Repeat([]byte{0xBB}, 32)

	clientRP := suitedRP(aesGCM128)
	assertNil(t, clientRP.SetKeysTLS12(masterSecret, serverRandom, clientRandom, true), "client set_keys")
	serverRP := suitedRP(aesGCM128)
	assertNil(t, serverRP.SetKeysTLS12(masterSecret, serverRandom, clientRandom, false), "server set_keys")

	payload, err := Encrypt12(clientRP, 0, RecordTypeApplicationData, 3, 3, []byte("hi"))
	assertNil(t, err, "encrypt")
	payload[len(payload)-1] ^= 0x01

	_, err = Decrypt12(serverRP, 0, RecordTypeApplicationData, 3, 3, payload, DefaultMaxRecordRecvSize)
	assertTrue(t, err != nil, "tampered tag must fail")
	kind, ok := KindOf(err)
	assertTrue(t, ok && kind == KindDecryptionFailure, "expected KindDecryptionFailure")
}
