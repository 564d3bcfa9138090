package tlsrecord

import "encoding/binary"

// RecordType is the wire content-type byte (spec §4.7 step 7).
type RecordType uint8

const (
	RecordTypeChangeCipherSpec RecordType = 20
	RecordTypeAlert            RecordType = 21
	RecordTypeHandshake        RecordType = 22
	RecordTypeApplicationData  RecordType = 23
	RecordTypeHeartbeat        RecordType = 24
)

const (
	recordHeaderLenTLS  = 5
	recordHeaderLenDTLS = 13
)

// buildPreamble12 constructs the 13-byte TLS 1.2 MAC/AAD preamble
// (spec §4.2): sequence(8) || type(1) || major(1) || minor(1) ||
// length(2). The caller chooses `length`: the plaintext size for
// MAC-then-encrypt, stream+MAC and AEAD AAD, and the padded
// ciphertext size (excluding explicit IV and MAC) for
// encrypt-then-MAC.
func buildPreamble12(seq uint64, ct RecordType, major, minor byte, length int) [13]byte {
	var p [13]byte
	binary.BigEndian.PutUint64(p[0:8], seq)
	p[8] = byte(ct)
	p[9] = major
	p[10] = minor
	binary.BigEndian.PutUint16(p[11:13], uint16(length))
	return p
}

// buildAAD13 constructs the 5-byte TLS 1.3 AAD (spec §4.2):
// application_data(0x17) || 0x03 0x03 || total_length(2), where
// total_length = plaintext + 1 (inner type) + padding + tag.
func buildAAD13(totalLength int) [5]byte {
	var a [5]byte
	a[0] = byte(RecordTypeApplicationData)
	a[1] = 0x03
	a[2] = 0x03
	binary.BigEndian.PutUint16(a[3:5], uint16(totalLength))
	return a
}

// recordHeaderTLS is the 5-byte on-wire TLS record header (spec §6.1).
type recordHeaderTLS struct {
	ContentType RecordType
	VersionMajor, VersionMinor byte
	Length uint16
}

func (h recordHeaderTLS) marshal() [5]byte {
	var b [5]byte
	b[0] = byte(h.ContentType)
	b[1] = h.VersionMajor
	b[2] = h.VersionMinor
	binary.BigEndian.PutUint16(b[3:5], h.Length)
	return b
}

func unmarshalRecordHeaderTLS(b []byte) (recordHeaderTLS, error) {
	if len(b) < recordHeaderLenTLS {
		return recordHeaderTLS{}, newErr(KindUnexpectedPacketLength, "short TLS header")
	}
	return recordHeaderTLS{
		ContentType:  RecordType(b[0]),
		VersionMajor: b[1],
		VersionMinor: b[2],
		Length:       binary.BigEndian.Uint16(b[3:5]),
	}, nil
}

// recordHeaderDTLS is the 13-byte on-wire DTLS record header (spec
// §6.1): type(1) || version(2) || epoch(2) || sequence(6) || length(2).
type recordHeaderDTLS struct {
	ContentType                RecordType
	VersionMajor, VersionMinor byte
	Epoch                      uint16
	Sequence                   uint64 // low 48 bits significant
	Length                     uint16
}

func (h recordHeaderDTLS) marshal() [13]byte {
	var b [13]byte
	b[0] = byte(h.ContentType)
	b[1] = h.VersionMajor
	b[2] = h.VersionMinor
	binary.BigEndian.PutUint16(b[3:5], h.Epoch)
	encodeUint(h.Sequence&0xFFFFFFFFFFFF, 6, b[5:11])
	binary.BigEndian.PutUint16(b[11:13], h.Length)
	return b
}

func unmarshalRecordHeaderDTLS(b []byte) (recordHeaderDTLS, error) {
	if len(b) < recordHeaderLenDTLS {
		return recordHeaderDTLS{}, newErr(KindUnexpectedPacketLength, "short DTLS header")
	}
	seq, _ := decodeUint(b[5:11], 6)
	return recordHeaderDTLS{
		ContentType:  RecordType(b[0]),
		VersionMajor: b[1],
		VersionMinor: b[2],
		Epoch:        binary.BigEndian.Uint16(b[3:5]),
		Sequence:     seq,
		Length:       binary.BigEndian.Uint16(b[11:13]),
	}, nil
}

// Legacy DTLS version tuples used on the wire (spec §6.1). Spec.md
// pins these literally: (254,255) for DTLS 1.2 and (254,253) for the
// DTLS 1.0 tuple used only during the cookie exchange; followed here
// verbatim even though it inverts RFC 6347's historical assignment,
// since spec.md is the source of truth for this distillation.
const (
	dtls12VersionMajor, dtls12VersionMinor byte = 254, 255
	dtls10VersionMajor, dtls10VersionMinor byte = 254, 253
)
