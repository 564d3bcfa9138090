package tlsrecord

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
)

const cookieLen = 16

// Prestate is the stateless triple preserved across the DTLS cookie
// exchange (spec §3 Cookie prestate, §4.10): the record-sequence echo
// and the handshake read/write sequence numbers the client rebuilds
// its next ClientHello against.
type Prestate struct {
	RecordSeqEcho    uint64
	HandshakeReadSeq uint16
	HandshakeWriteSeq uint16
}

// CookieSend computes the HelloVerifyRequest cookie (spec §4.10,
// §6.1): the first 16 bytes of HMAC-SHA1(key, clientIdentity).
// clientIdentity is an application-supplied binding, typically the
// peer's transport address serialized by the caller.
func CookieSend(key, clientIdentity []byte) []byte {
	mac := hmac.New(sha1.New, key)
	mac.Write(clientIdentity)
	full := mac.Sum(nil) // 20 bytes
	return append([]byte(nil), full[:cookieLen]...)
}

// CookieVerify recomputes the MAC and constant-time compares it
// against the cookie carried on the second ClientHello.
func CookieVerify(key, clientIdentity, cookie []byte) error {
	if len(cookie) != cookieLen {
		return newErr(KindBadCookie, "wrong cookie length")
	}
	want := CookieSend(key, clientIdentity)
	if subtle.ConstantTimeCompare(want, cookie) != 1 {
		return newErr(KindBadCookie, "cookie mismatch")
	}
	return nil
}

// BuildHelloVerifyRequest assembles the HelloVerifyRequest handshake
// body (spec §6.1): server_version(2) || cookie_len(1) || cookie,
// wrapped by the caller in a record envelope carrying the legacy
// DTLS 1.0 version tuple (254,253).
func BuildHelloVerifyRequest(cookie []byte) []byte {
	body := make([]byte, 0, 2+1+len(cookie))
	body = append(body, dtls10VersionMajor, dtls10VersionMinor)
	body = append(body, byte(len(cookie)))
	body = append(body, cookie...)
	return body
}

// PrestateSet imports a verified prestate into rp's read/write
// sequence numbers before handshake processing resumes (spec §4.10):
// record seq carries over; write seq restarts at zero for the new
// session's first flight. ps.HandshakeReadSeq/HandshakeWriteSeq are
// for the caller's handshake-message-sequence tracking, which lives
// above the record layer and is not owned by RecordParameters.
func PrestateSet(rp *RecordParameters, ps Prestate) {
	rp.Read.Seq = ps.RecordSeqEcho
	rp.Write.Seq = 0
}
