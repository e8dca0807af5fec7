package grf

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an Error the way spec §7 enumerates the taxonomy: by kind,
// not by a proliferation of sentinel types.
type Kind int

const (
	KindUnknown Kind = iota

	// File access.
	KindNotFound
	KindOpenFailed
	KindLocked
	KindReadFailed
	KindWriteFailed

	// Format.
	KindInvalidMagic
	KindUnsupportedVersion
	KindCorruptHeader
	KindCorruptDirectory

	// Codec.
	KindCompressFailed
	KindDecompressFailed

	// Logic.
	KindEntryNotFound
	KindInvalidOperation

	// Patch flow (shared vocabulary with package thor/patcher errors).
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindOpenFailed:
		return "open failed"
	case KindLocked:
		return "locked"
	case KindReadFailed:
		return "read failed"
	case KindWriteFailed:
		return "write failed"
	case KindInvalidMagic:
		return "invalid magic"
	case KindUnsupportedVersion:
		return "unsupported version"
	case KindCorruptHeader:
		return "corrupt header"
	case KindCorruptDirectory:
		return "corrupt directory"
	case KindCompressFailed:
		return "compress failed"
	case KindDecompressFailed:
		return "decompress failed"
	case KindEntryNotFound:
		return "entry not found"
	case KindInvalidOperation:
		return "invalid operation"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the error value every exported grf operation returns on failure.
// It is also stashed as the Archive's "last error" (spec §7's propagation
// policy), retrievable with Archive.LastError.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("grf: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("grf: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(op string, kind Kind, cause error) *Error {
	var err error
	if cause != nil {
		err = errors.Wrap(cause, kind.String())
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
