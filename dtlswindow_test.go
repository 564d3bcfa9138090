package tlsrecord

import "testing"

// TestDTLSWindowEdge covers S3: with next=1000, delivering sequences
// 1000, 1064, 1001, 1001 must accept, accept (window slides so 1000
// becomes the oldest missing slot), accept (was missing), reject
// (duplicate).
func TestDTLSWindowEdge(t *testing.T) {
	w := &DtlsWindow{next: 1000, bitmap: ^uint64(0), haveRecv: true}

	v := w.Check(1000, 0)
	assertTrue(t, v == windowOK, "1000 should be accepted")

	v = w.Check(1064, 0)
	assertTrue(t, v == windowOK, "1064 should be accepted")

	v = w.Check(1001, 0)
	assertTrue(t, v == windowOK, "1001 should be accepted the first time")

	v = w.Check(1001, 0)
	assertTrue(t, v == windowReplay, "second 1001 must be rejected as a replay")
}

// TestDTLSWindowFreshStart covers invariant 6's other half: the first
// record ever seen on a window is always accepted and arms the
// bitmap.
func TestDTLSWindowFreshStart(t *testing.T) {
	w := &DtlsWindow{}
	fullSeq := (uint64(3) << 48) | 42
	v := w.Check(fullSeq, 3)
	assertTrue(t, v == windowOK, "first record must be accepted")
	assertTrue(t, w.next == 43, "next should advance past the accepted sequence")
}

// TestDTLSWindowWrongEpoch covers the epoch-mismatch branch of Check.
func TestDTLSWindowWrongEpoch(t *testing.T) {
	w := &DtlsWindow{next: 5, haveRecv: true}
	fullSeq := (uint64(7) << 48) | 5
	v := w.Check(fullSeq, 9)
	assertTrue(t, v == windowWrongEpoch, "epoch mismatch must be reported")
}

// TestDTLSWindowTooOld covers invariant 6's lower bound: anything more
// than 65 below next is always rejected, never touching the bitmap.
func TestDTLSWindowTooOld(t *testing.T) {
	w := &DtlsWindow{next: 1000, bitmap: ^uint64(0), haveRecv: true}
	v := w.Check(900, 0)
	assertTrue(t, v == windowTooOld, "900 is 100 below next=1000, must be too old")
}

// TestDTLSWindowAdvanceAcceptsOnce covers invariant 7: after accepting
// some s > next, any previously-missing s' in [s-63, s-2] is accepted
// exactly once.
func TestDTLSWindowAdvanceAcceptsOnce(t *testing.T) {
	w := &DtlsWindow{next: 100, bitmap: ^uint64(0), haveRecv: true}
	assertTrue(t, w.Check(150, 0) == windowOK, "150 should be accepted")

	assertTrue(t, w.Check(148, 0) == windowOK, "148 was missing, first arrival accepted")
	assertTrue(t, w.Check(148, 0) == windowReplay, "148 second arrival rejected")
}

func TestDTLSWindowReset(t *testing.T) {
	w := &DtlsWindow{next: 42, bitmap: 7, haveRecv: true}
	w.Reset()
	assertTrue(t, !w.haveRecv && w.next == 0 && w.bitmap == 0, "reset must zero all state")
}
