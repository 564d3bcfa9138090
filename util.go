package tlsrecord

import "crypto/subtle"

// encodeUint writes the low n bytes of v into buf, big-endian,
// matching mint's encodeUint/decodeUint helpers referenced from
// record-layer.go (the originals live in mint's syntax.go, not part
// of this retrieval pack, so the shape here is reconstructed from the
// call sites in record-layer.go: encodeUint(seq, 8, header[3:]) and
// decodeUint(header[3:11], 8)).
func encodeUint(v uint64, n int, buf []byte) {
	for i := 0; i < n; i++ {
		buf[n-1-i] = byte(v)
		v >>= 8
	}
}

func decodeUint(buf []byte, n int) (uint64, error) {
	var v uint64
	for i := 0; i < n; i++ {
		v = (v << 8) | uint64(buf[i])
	}
	return v, nil
}

// ctEq is a constant-time byte-slice comparison. Required by spec §9
// for tag/MAC/padding verification; callers must not short-circuit on
// result before the caller-visible error path.
func ctEq(a, b []byte) bool {
	if len(a) != len(b) {
		// Length mismatch is a programmer error (descriptor-driven
		// buffers should always match), not a timing-sensitive
		// secret, so it is fine to branch on.
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// ctScanRightNonzero scans buf from the end looking for the first
// (rightmost-to-leftmost) non-zero byte, as required for TLS 1.3 inner
// content-type recovery (spec §4.4, §9). Every byte is visited in the
// same fixed order regardless of where the non-zero byte is found (the
// "safe padding" behaviour), and results are accumulated with
// constant-time selects, so neither the work done nor any branch
// outcome depends on the buffer contents.
//
// Returns the index of the content-type byte, and ok=false when every
// byte is zero.
func ctScanRightNonzero(buf []byte) (idx int, ok bool) {
	n := len(buf)
	foundMask := 0 // 0 = not yet found, 1 = found
	foundIdx := -1
	for i := n - 1; i >= 0; i-- {
		isNonZero := 1 - subtle.ConstantTimeByteEq(buf[i], 0)
		// Record the first (highest index) non-zero byte seen.
		take := isNonZero & (1 - foundMask)
		foundIdx = subtle.ConstantTimeSelect(take, i, foundIdx)
		foundMask |= isNonZero
	}
	if foundMask == 0 {
		return 0, false
	}
	return foundIdx, true
}

func assert(cond bool) {
	if !cond {
		panic("tlsrecord: assertion failed")
	}
}
