package tlsrecord

import (
	"crypto/cipher"
	"crypto/rand"
)

// Encrypt12 protects one TLS 1.2 record (spec §4.3). seq is the
// write sequence number for this record (supplied by the caller, not
// mutated here — the Record I/O Loop owns sequence increment per
// spec §4.7 step 5). Returns the wire payload that follows the
// TLS or DTLS record header (explicit IV + ciphertext + tag/MAC, as
// applicable to the cipher kind).
func Encrypt12(rp *RecordParameters, seq uint64, ct RecordType, major, minor byte, plaintext []byte) ([]byte, error) {
	d := &rp.Descriptor
	ws := &rp.Write

	switch {
	case d.Kind == KindAEAD && d.XORNonce:
		return encryptAEADXOR(ws, d, seq, ct, major, minor, plaintext)
	case d.Kind == KindAEAD:
		return encryptAEADExplicit(ws, d, seq, ct, major, minor, plaintext)
	case d.Kind == KindBlock && rp.EncryptThenMAC:
		return encryptBlockEtM(ws, d, seq, ct, major, minor, plaintext)
	case d.Kind == KindBlock:
		return encryptBlockMtE(ws, d, seq, ct, major, minor, plaintext)
	case d.Kind == KindStream:
		return encryptStreamMAC(ws, d, seq, ct, major, minor, plaintext)
	default:
		return nil, newErr(KindInternalError, "unsupported cipher kind")
	}
}

// Decrypt12 is the mirror of Encrypt12 (spec §4.3). Tag/MAC
// verification failures are uniformly reported as
// KindDecryptionFailure regardless of cause (padding-oracle safety).
func Decrypt12(rp *RecordParameters, seq uint64, ct RecordType, major, minor byte, record []byte, maxRecv int) ([]byte, error) {
	d := &rp.Descriptor
	rs := &rp.Read

	var out []byte
	var err error
	switch {
	case d.Kind == KindAEAD && d.XORNonce:
		out, err = decryptAEADXOR(rs, d, seq, ct, major, minor, record)
	case d.Kind == KindAEAD:
		out, err = decryptAEADExplicit(rs, d, seq, ct, major, minor, record)
	case d.Kind == KindBlock && rp.EncryptThenMAC:
		out, err = decryptBlockEtM(rs, d, seq, ct, major, minor, record)
	case d.Kind == KindBlock:
		out, err = decryptBlockMtE(rs, d, seq, ct, major, minor, record)
	case d.Kind == KindStream:
		out, err = decryptStreamMAC(rs, d, seq, ct, major, minor, record)
	default:
		return nil, newErr(KindInternalError, "unsupported cipher kind")
	}
	if err != nil {
		return nil, err
	}
	if len(out) > maxRecv {
		return nil, newErr(KindRecordOverflow, "decrypted record exceeds max_record_recv_size")
	}
	return out, nil
}

// --- Block, MAC-then-encrypt (default) ---

func encryptBlockMtE(ws *DirectionState, d *CipherDescriptor, seq uint64, ct RecordType, major, minor byte, plaintext []byte) ([]byte, error) {
	block := d.BlockSize
	hashSize := d.MAC.size()

	pre := buildPreamble12(seq, ct, major, minor, len(plaintext))
	mac := computeMAC(d.MAC, ws.MACKey, pre[:], plaintext)

	preLen := len(plaintext) + hashSize
	pad := block - (preLen % block)
	if pad == 0 {
		pad = block
	}

	explicitIV := make([]byte, block)
	if _, err := rand.Read(explicitIV); err != nil {
		return nil, wrapErr(KindInternalError, "explicit iv", err)
	}

	body := make([]byte, preLen+pad)
	copy(body, plaintext)
	copy(body[len(plaintext):], mac)
	for i := preLen; i < len(body); i++ {
		body[i] = byte(pad - 1)
	}

	enc := cipher.NewCBCEncrypter(ws.block, explicitIV)
	enc.CryptBlocks(body, body)

	return append(explicitIV, body...), nil
}

func decryptBlockMtE(rs *DirectionState, d *CipherDescriptor, seq uint64, ct RecordType, major, minor byte, record []byte) ([]byte, error) {
	block := d.BlockSize
	hashSize := d.MAC.size()

	if len(record) < block {
		return nil, newErr(KindUnexpectedPacketLength, "record shorter than explicit IV")
	}
	iv := record[:block]
	body := record[block:]
	if len(body) == 0 || len(body)%block != 0 {
		return nil, newErr(KindUnexpectedPacketLength, "ciphertext not block aligned")
	}

	plain := make([]byte, len(body))
	dec := cipher.NewCBCDecrypter(rs.block, iv)
	dec.CryptBlocks(plain, body)

	padLen := int(plain[len(plain)-1]) + 1
	if padLen > len(plain) {
		return nil, newErr(KindDecryptionFailure, "decryption failed")
	}
	dataLen := len(plain) - padLen - hashSize
	if dataLen < 0 {
		return nil, newErr(KindDecryptionFailure, "decryption failed")
	}

	var padBad byte
	for _, b := range plain[len(plain)-padLen:] {
		padBad |= b ^ byte(padLen-1)
	}

	data := plain[:dataLen]
	gotMAC := plain[dataLen : dataLen+hashSize]
	pre := buildPreamble12(seq, ct, major, minor, dataLen)
	wantMAC := computeMAC(d.MAC, rs.MACKey, pre[:], data)
	if !ctEq(gotMAC, wantMAC) || padBad != 0 {
		return nil, newErr(KindDecryptionFailure, "decryption failed")
	}
	return data, nil
}

// --- Block, encrypt-then-MAC ---

func encryptBlockEtM(ws *DirectionState, d *CipherDescriptor, seq uint64, ct RecordType, major, minor byte, plaintext []byte) ([]byte, error) {
	block := d.BlockSize
	hashSize := d.MAC.size()

	pad := block - (len(plaintext) % block)
	if pad == 0 {
		pad = block
	}
	body := make([]byte, len(plaintext)+pad)
	copy(body, plaintext)
	for i := len(plaintext); i < len(body); i++ {
		body[i] = byte(pad - 1)
	}

	explicitIV := make([]byte, block)
	if _, err := rand.Read(explicitIV); err != nil {
		return nil, wrapErr(KindInternalError, "explicit iv", err)
	}
	enc := cipher.NewCBCEncrypter(ws.block, explicitIV)
	enc.CryptBlocks(body, body)

	pre := buildPreamble12(seq, ct, major, minor, len(body))
	mac := computeMAC(d.MAC, ws.MACKey, pre[:], explicitIV, body)

	out := make([]byte, 0, block+len(body)+hashSize)
	out = append(out, explicitIV...)
	out = append(out, body...)
	out = append(out, mac...)
	return out, nil
}

func decryptBlockEtM(rs *DirectionState, d *CipherDescriptor, seq uint64, ct RecordType, major, minor byte, record []byte) ([]byte, error) {
	block := d.BlockSize
	hashSize := d.MAC.size()

	if len(record) < block+hashSize {
		return nil, newErr(KindUnexpectedPacketLength, "record shorter than IV+tag")
	}
	iv := record[:block]
	ciphertext := record[block : len(record)-hashSize]
	gotMAC := record[len(record)-hashSize:]
	if len(ciphertext)%block != 0 || len(ciphertext) == 0 {
		return nil, newErr(KindUnexpectedPacketLength, "ciphertext not block aligned")
	}

	pre := buildPreamble12(seq, ct, major, minor, len(ciphertext))
	wantMAC := computeMAC(d.MAC, rs.MACKey, pre[:], iv, ciphertext)
	if !ctEq(gotMAC, wantMAC) {
		return nil, newErr(KindDecryptionFailure, "decryption failed")
	}

	plain := make([]byte, len(ciphertext))
	dec := cipher.NewCBCDecrypter(rs.block, iv)
	dec.CryptBlocks(plain, ciphertext)

	padLen := int(plain[len(plain)-1]) + 1
	if padLen > len(plain) {
		return nil, newErr(KindDecryptionFailure, "decryption failed")
	}
	var padBad byte
	for _, b := range plain[len(plain)-padLen:] {
		padBad |= b ^ byte(padLen-1)
	}
	if padBad != 0 {
		return nil, newErr(KindDecryptionFailure, "decryption failed")
	}
	return plain[:len(plain)-padLen], nil
}

// --- Stream + MAC ---

func encryptStreamMAC(ws *DirectionState, d *CipherDescriptor, seq uint64, ct RecordType, major, minor byte, plaintext []byte) ([]byte, error) {
	pre := buildPreamble12(seq, ct, major, minor, len(plaintext))
	mac := computeMAC(d.MAC, ws.MACKey, pre[:], plaintext)

	body := make([]byte, len(plaintext)+len(mac))
	copy(body, plaintext)
	copy(body[len(plaintext):], mac)
	ws.rc4.XORKeyStream(body, body)
	return body, nil
}

func decryptStreamMAC(rs *DirectionState, d *CipherDescriptor, seq uint64, ct RecordType, major, minor byte, record []byte) ([]byte, error) {
	hashSize := d.MAC.size()
	if len(record) < hashSize {
		return nil, newErr(KindUnexpectedPacketLength, "record shorter than MAC")
	}
	plain := make([]byte, len(record))
	rs.rc4.XORKeyStream(plain, record)

	dataLen := len(plain) - hashSize
	data := plain[:dataLen]
	gotMAC := plain[dataLen:]
	pre := buildPreamble12(seq, ct, major, minor, dataLen)
	wantMAC := computeMAC(d.MAC, rs.MACKey, pre[:], data)
	if !ctEq(gotMAC, wantMAC) {
		return nil, newErr(KindDecryptionFailure, "decryption failed")
	}
	return data, nil
}

// --- AEAD, explicit (non-XOR) nonce e.g. AES-GCM ---

func encryptAEADExplicit(ws *DirectionState, d *CipherDescriptor, seq uint64, ct RecordType, major, minor byte, plaintext []byte) ([]byte, error) {
	explicitIV := make([]byte, 8)
	for i := 0; i < 8; i++ {
		explicitIV[7-i] = byte(seq >> (8 * i))
	}
	nonce := append(append([]byte{}, ws.IV...), explicitIV...) // implicit(4) || explicit(8)

	pre := buildPreamble12(seq, ct, major, minor, len(plaintext))
	sealed := ws.aead.Seal(nil, nonce, plaintext, pre[:])

	return append(explicitIV, sealed...), nil
}

func decryptAEADExplicit(rs *DirectionState, d *CipherDescriptor, seq uint64, ct RecordType, major, minor byte, record []byte) ([]byte, error) {
	if len(record) < 8+d.TagSize {
		return nil, newErr(KindUnexpectedPacketLength, "record shorter than explicit IV + tag")
	}
	explicitIV := record[:8]
	ciphertext := record[8:]
	nonce := append(append([]byte{}, rs.IV...), explicitIV...)

	pre := buildPreamble12(seq, ct, major, minor, len(ciphertext)-d.TagSize)
	plain, err := rs.aead.Open(nil, nonce, ciphertext, pre[:])
	if err != nil {
		return nil, newErr(KindDecryptionFailure, "decryption failed")
	}
	return plain, nil
}

// --- AEAD, XOR nonce e.g. ChaCha20-Poly1305 ---

func encryptAEADXOR(ws *DirectionState, d *CipherDescriptor, seq uint64, ct RecordType, major, minor byte, plaintext []byte) ([]byte, error) {
	nonce := xorNonce(ws.IV, seq)
	pre := buildPreamble12(seq, ct, major, minor, len(plaintext))
	return ws.aead.Seal(nil, nonce, plaintext, pre[:]), nil
}

func decryptAEADXOR(rs *DirectionState, d *CipherDescriptor, seq uint64, ct RecordType, major, minor byte, record []byte) ([]byte, error) {
	if len(record) < d.TagSize {
		return nil, newErr(KindUnexpectedPacketLength, "record shorter than tag")
	}
	nonce := xorNonce(rs.IV, seq)
	pre := buildPreamble12(seq, ct, major, minor, len(record)-d.TagSize)
	plain, err := rs.aead.Open(nil, nonce, record, pre[:])
	if err != nil {
		return nil, newErr(KindDecryptionFailure, "decryption failed")
	}
	return plain, nil
}

// xorNonce XORs an 8-byte big-endian sequence into the low bytes of
// the implicit IV (spec §4.3 AEAD-XOR-nonce).
func xorNonce(iv []byte, seq uint64) []byte {
	nonce := make([]byte, len(iv))
	copy(nonce, iv)
	off := len(nonce)
	for i := 0; i < 8; i++ {
		nonce[off-1-i] ^= byte(seq >> (8 * i))
	}
	return nonce
}
