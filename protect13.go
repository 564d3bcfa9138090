package tlsrecord

// Encrypt13 protects one TLS 1.3 record (spec §4.4). innerType is the
// true content type carried inside the encrypted envelope; the record
// header the caller writes always advertises application_data (spec
// §3 invariant). minPad requests at least that many zero padding
// bytes; it is clamped downward if the result would exceed maxSend.
func Encrypt13(rp *RecordParameters, seq uint64, innerType RecordType, plaintext []byte, minPad, maxSend int) ([]byte, error) {
	ws := &rp.Write
	tagSize := rp.Descriptor.TagSize

	pad := minPad
	total := len(plaintext) + 1 + pad
	if total > maxSend {
		pad -= total - maxSend
		if pad < 0 {
			return nil, newErr(KindInternalError, "padding request exceeds max_record_send_size")
		}
		total = len(plaintext) + 1 + pad
	}

	inner := make([]byte, total)
	copy(inner, plaintext)
	inner[len(plaintext)] = byte(innerType)
	// remaining bytes already zero (Go zero-value slice)

	nonce := xorNonce(ws.IV, seq)
	aad := buildAAD13(total + tagSize)
	return ws.aead.Seal(nil, nonce, inner, aad[:]), nil
}

// Decrypt13 is the mirror of Encrypt13. On success it returns the
// application-data payload (padding and the trailing content-type
// byte stripped) and the recovered inner content type. The scan that
// recovers the content type always visits every byte of the decrypted
// buffer in the same fixed order regardless of safePadding (spec §9:
// the "safe padding" flag only controls whether an *early-exit*
// variant would be allowed; this implementation never takes the
// early-exit path, so it is safe-by-default independent of the flag,
// consistent with the Open Question's default-on recommendation).
func Decrypt13(rp *RecordParameters, seq uint64, record []byte, maxDecrypted int, safePadding bool) ([]byte, RecordType, error) {
	rs := &rp.Read
	nonce := xorNonce(rs.IV, seq)

	tagSize := rp.Descriptor.TagSize
	if len(record) < tagSize {
		return nil, 0, newErr(KindUnexpectedPacketLength, "record shorter than tag")
	}
	aad := buildAAD13(len(record))

	plain, err := rs.aead.Open(nil, nonce, record, aad[:])
	if err != nil {
		return nil, 0, newErr(KindDecryptionFailure, "decryption failed")
	}

	if len(plain) > maxDecrypted+1 {
		return nil, 0, newErr(KindRecordOverflow, "decrypted record exceeds max_decrypted_size")
	}

	idx, ok := ctScanRightNonzero(plain)
	if !ok {
		// All-zero inner plaintext: no content type recovered. GnuTLS
		// treats this as a decode failure, not a distinguishable
		// padding-oracle signal.
		return nil, 0, newErr(KindDecryptionFailure, "decryption failed")
	}
	_ = safePadding // both modes take the same constant-time path, see doc comment above

	innerType := RecordType(plain[idx])
	return plain[:idx], innerType, nil
}
