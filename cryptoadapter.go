package tlsrecord

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/hmac"
	"crypto/rc4"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"golang.org/x/crypto/chacha20poly1305"
)

// CipherKind selects which of the three capability sets (spec §4.1)
// a CipherDescriptor belongs to.
type CipherKind int

const (
	KindBlock CipherKind = iota
	KindStream
	KindAEAD
)

// MACAlgorithm identifies the keyed hash used by Block+MAC and
// Stream+MAC suites. AEAD suites carry MACNone.
type MACAlgorithm int

const (
	MACNone MACAlgorithm = iota
	MACHMACSHA1
	MACHMACSHA256
	MACHMACSHA384
)

func (m MACAlgorithm) hashFunc() func() hash.Hash {
	switch m {
	case MACHMACSHA1:
		return sha1.New
	case MACHMACSHA256:
		return sha256.New
	case MACHMACSHA384:
		return sha512.New384
	default:
		return nil
	}
}

func (m MACAlgorithm) size() int {
	switch m {
	case MACHMACSHA1:
		return 20
	case MACHMACSHA256:
		return 32
	case MACHMACSHA384:
		return 48
	default:
		return 0
	}
}

// CipherDescriptor is the static shape of one cipher suite's record
// protection, matching spec §3's RecordParameters.cipher_descriptor.
type CipherDescriptor struct {
	Name string
	Kind CipherKind

	KeySize    int
	IVSize     int // derived implicit IV length: full nonce for XOR-nonce AEAD, 4-byte salt for explicit-IV AEAD, block size for CBC
	BlockSize  int // 0 for stream/AEAD
	TagSize    int // AEAD tag, or MAC output size folded in by caller
	ExplicitIV int // bytes of per-record explicit IV carried on the wire (0 for TLS1.1- CBC uses BlockSize; AEAD GCM uses 8)
	XORNonce   bool // ChaCha20-Poly1305-style: nonce = IV XOR seq, no on-wire explicit IV

	MAC MACAlgorithm
}

// newBlockCipher constructs the raw block cipher behind a Block+MAC
// descriptor. Grounded on GnuTLS cipher.c's dispatch over cipher
// algorithm identifiers; only the primitives needed by common TLS 1.2
// suites are wired (AES, 3DES).
func newBlockCipher(name string, key []byte) (cipher.Block, error) {
	switch name {
	case "AES":
		return aes.NewCipher(key)
	case "3DES":
		return des.NewTripleDESCipher(key)
	default:
		return nil, newErr(KindInvalidRequest, "unsupported block cipher "+name)
	}
}

// newStreamCipher constructs a raw stream cipher (RC4 is the only
// stream cipher TLS 1.0/1.1 ever negotiated).
func newStreamCipher(key []byte) (cipher.Stream, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, wrapErr(KindInvalidRequest, "rc4 key", err)
	}
	return c, nil
}

// AEADFactory builds an AEAD instance from a key, matching mint's
// AEADFactory type (record-layer.go:129).
type AEADFactory func(key []byte) (cipher.AEAD, error)

func aesGCMFactory(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func chacha20poly1305Factory(key []byte) (cipher.AEAD, error) {
	return chacha20poly1305.New(key)
}

// FactoryFor resolves the AEADFactory for a descriptor's Name. Callers
// for non-AEAD descriptors never call this.
func FactoryFor(name string) (AEADFactory, error) {
	switch name {
	case "AES-GCM":
		return aesGCMFactory, nil
	case "CHACHA20-POLY1305":
		return chacha20poly1305Factory, nil
	default:
		return nil, newErr(KindInvalidRequest, "unsupported AEAD "+name)
	}
}

// computeMAC is a one-shot HMAC computation: Write the MAC input, then
// Sum. Block+MAC and Stream+MAC suites build the preamble-prefixed
// input themselves (protect12.go) and call this once per record.
func computeMAC(alg MACAlgorithm, key []byte, parts ...[]byte) []byte {
	hf := alg.hashFunc()
	if hf == nil {
		return nil
	}
	mac := hmac.New(hf, key)
	for _, p := range parts {
		mac.Write(p)
	}
	return mac.Sum(nil)
}

// checkBufferSizes rejects calls whose buffer sizes disagree with the
// descriptor, per spec §4.1 ("the adapter must reject calls whose
// buffer sizes disagree with the descriptor").
func checkBufferSizes(d *CipherDescriptor, key, iv []byte) error {
	if len(key) != d.KeySize {
		return newErr(KindInvalidRequest, "key size mismatch")
	}
	if d.IVSize > 0 && len(iv) != d.IVSize {
		return newErr(KindInvalidRequest, "iv size mismatch")
	}
	return nil
}

// buildCipherContexts constructs the live cipher.AEAD/cipher.Block/
// cipher.Stream contexts for both directions of rp from the keys
// SetKeys/SetKeysTLS12 just installed. Dispatches on
// rp.Descriptor.Kind exactly as the Crypto Provider Adapter's
// capability switch (spec §4.1).
func (rp *RecordParameters) buildCipherContexts() error {
	for _, ds := range []*DirectionState{&rp.Read, &rp.Write} {
		if len(ds.Key) == 0 {
			continue // direction not armed at this stage (e.g. early data)
		}
		if err := checkBufferSizes(&rp.Descriptor, ds.Key, ds.IV); err != nil {
			return err
		}
		switch rp.Descriptor.Kind {
		case KindAEAD:
			factory, err := FactoryFor(rp.Descriptor.Name)
			if err != nil {
				return err
			}
			aead, err := factory(ds.Key)
			if err != nil {
				return wrapErr(KindInternalError, "aead init", err)
			}
			ds.aead = aead
		case KindBlock:
			block, err := newBlockCipher(rp.Descriptor.Name, ds.Key)
			if err != nil {
				return err
			}
			ds.block = block
		case KindStream:
			rc4, err := newStreamCipher(ds.Key)
			if err != nil {
				return err
			}
			ds.rc4 = rc4
		}
	}
	return nil
}
