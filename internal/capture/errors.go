package capture

import (
	"errors"
	"fmt"
)

// ErrEndOfStream signals that the record sequence is exhausted. It is the
// normal termination of a capture walk, not a failure: callers should treat
// it as the loop-exit condition and reserve error handling for *FormatError.
var ErrEndOfStream = errors.New("end of capture stream")

// ErrorKind classifies container format failures so that callers can branch
// on the condition rather than parse message text.
type ErrorKind int

const (
	// KindCannotOpen means the underlying file open failed.
	KindCannotOpen ErrorKind = iota + 1
	// KindTruncatedHeader means fewer than 24 bytes were available for the
	// global header.
	KindTruncatedHeader
	// KindBadMagic means the first four bytes matched neither recognized
	// magic value.
	KindBadMagic
	// KindNotOpen means a read was attempted on a reader that never opened
	// or was already closed.
	KindNotOpen
	// KindOversizedPacket means a record header declared a captured length
	// above MaxPayloadLen.
	KindOversizedPacket
)

// String returns a short name for the kind, used in error messages.
func (k ErrorKind) String() string {
	switch k {
	case KindCannotOpen:
		return "cannot open"
	case KindTruncatedHeader:
		return "truncated header"
	case KindBadMagic:
		return "bad magic"
	case KindNotOpen:
		return "not open"
	case KindOversizedPacket:
		return "oversized packet"
	default:
		return fmt.Sprintf("unknown kind %d", int(k))
	}
}

// FormatError reports an unrecoverable capture container failure. The Kind
// field identifies the condition; Magic and Length carry the offending
// values for KindBadMagic and KindOversizedPacket respectively. Err holds
// the wrapped OS-level cause when one exists (KindCannotOpen).
type FormatError struct {
	Kind   ErrorKind
	Path   string
	Magic  uint32 // offending magic value for KindBadMagic
	Length uint32 // declared record length for KindOversizedPacket
	Err    error  // underlying cause, if any
}

func (e *FormatError) Error() string {
	switch e.Kind {
	case KindCannotOpen:
		return fmt.Sprintf("cannot open capture %s: %v", e.Path, e.Err)
	case KindTruncatedHeader:
		return fmt.Sprintf("capture %s: global header truncated (need %d bytes)", e.Path, GlobalHeaderLen)
	case KindBadMagic:
		return fmt.Sprintf("capture %s: unrecognized magic 0x%08X", e.Path, e.Magic)
	case KindNotOpen:
		return "capture not open"
	case KindOversizedPacket:
		return fmt.Sprintf("capture %s: record length %d exceeds maximum payload %d", e.Path, e.Length, MaxPayloadLen)
	default:
		return fmt.Sprintf("capture %s: %s", e.Path, e.Kind)
	}
}

// Unwrap exposes the underlying cause for errors.Is / errors.As chains.
func (e *FormatError) Unwrap() error { return e.Err }

// IsKind reports whether err is a *FormatError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var fe *FormatError
	return errors.As(err, &fe) && fe.Kind == kind
}
