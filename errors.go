package tlsrecord

import "fmt"

// Kind identifies a stable error category from the record-layer error
// model. Values are stable because callers map them onto TLS alert
// descriptions.
type Kind int

const (
	// Transient: the caller should retry with identical arguments.
	KindWouldBlock Kind = iota
	KindInterrupted
	KindTimeout

	// Framing.
	KindUnexpectedPacketLength
	KindUnsupportedVersion
	KindRecordOverflow
	KindUnexpectedPacket
	KindLargePacket

	// Cryptographic.
	KindDecryptionFailure
	KindBadCookie

	// State.
	KindInvalidRequest
	KindInvalidSession
	KindUnavailableDuringHandshake
	KindRehandshake
	KindRecordLimitReached

	// Fatal-session.
	KindInternalError
	KindFatalAlertReceived
)

func (k Kind) String() string {
	switch k {
	case KindWouldBlock:
		return "WouldBlock"
	case KindInterrupted:
		return "Interrupted"
	case KindTimeout:
		return "Timeout"
	case KindUnexpectedPacketLength:
		return "UnexpectedPacketLength"
	case KindUnsupportedVersion:
		return "UnsupportedVersion"
	case KindRecordOverflow:
		return "RecordOverflow"
	case KindUnexpectedPacket:
		return "UnexpectedPacket"
	case KindLargePacket:
		return "LargePacket"
	case KindDecryptionFailure:
		return "DecryptionFailure"
	case KindBadCookie:
		return "BadCookie"
	case KindInvalidRequest:
		return "InvalidRequest"
	case KindInvalidSession:
		return "InvalidSession"
	case KindUnavailableDuringHandshake:
		return "UnavailableDuringHandshake"
	case KindRehandshake:
		return "Rehandshake"
	case KindRecordLimitReached:
		return "RecordLimitReached"
	case KindInternalError:
		return "InternalError"
	case KindFatalAlertReceived:
		return "FatalAlertReceived"
	default:
		return "Unknown"
	}
}

// RecordError is the error type returned by every public entry point.
// It carries a stable Kind so callers can classify failures without
// string matching, plus an optional wrapped cause.
type RecordError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *RecordError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tlsrecord: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	if e.Msg != "" {
		return fmt.Sprintf("tlsrecord: %s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("tlsrecord: %s", e.Kind)
}

func (e *RecordError) Unwrap() error { return e.Err }

// Is allows errors.Is(err, &RecordError{Kind: KindX}) to match on Kind
// alone, regardless of Msg/Err.
func (e *RecordError) Is(target error) bool {
	t, ok := target.(*RecordError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newErr(kind Kind, msg string) error {
	return &RecordError{Kind: kind, Msg: msg}
}

func wrapErr(kind Kind, msg string, err error) error {
	return &RecordError{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind of err if it (or something it wraps) is a
// *RecordError, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	for err != nil {
		if re, ok := err.(*RecordError); ok {
			return re.Kind, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return 0, false
}
