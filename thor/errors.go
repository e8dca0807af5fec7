package thor

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a PATCH-reader error (spec §7).
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindOpenFailed
	KindReadFailed
	KindInvalidMagic
	KindCorruptHeader
	KindCorruptDirectory
	KindInvalidMode
	KindDecompressFailed
	KindEntryNotFound
	KindIntegrityFailed
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindOpenFailed:
		return "open failed"
	case KindReadFailed:
		return "read failed"
	case KindInvalidMagic:
		return "invalid magic"
	case KindCorruptHeader:
		return "corrupt header"
	case KindCorruptDirectory:
		return "corrupt directory"
	case KindInvalidMode:
		return "invalid mode"
	case KindDecompressFailed:
		return "decompress failed"
	case KindEntryNotFound:
		return "entry not found"
	case KindIntegrityFailed:
		return "integrity failed"
	default:
		return "unknown"
	}
}

// Error is returned by every exported function in this package.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("thor: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("thor: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(op string, kind Kind, cause error) *Error {
	var err error
	if cause != nil {
		err = errors.Wrap(cause, kind.String())
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
