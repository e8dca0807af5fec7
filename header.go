package grf

// HeaderSize is the fixed size in bytes of the ARC header prefix (spec §3).
const HeaderSize = 46

// magicLiteral is the full 16-byte magic field, including its trailing NUL
// terminator. Only the first magicCompareLen bytes are ever compared, per
// spec §8's "Magic comparison uses only the first 15 bytes" boundary
// behavior.
const magicLiteral = "Master of Magic\x00"

const magicCompareLen = 15

// Version identifies the container's on-disk layout generation.
type Version uint32

const (
	Version102 Version = 0x102
	Version103 Version = 0x103
	Version200 Version = 0x200
	Version300 Version = 0x300
)

// IsV1 reports whether the version uses the V1 directory layout (variable
// name field decoded via the legacy DES primitive, no-DES entries off by
// default).
func (v Version) IsV1() bool {
	return v == Version102 || v == Version103
}

// IsSupported reports whether v is one of the four known container
// versions.
func (v Version) IsSupported() bool {
	switch v {
	case Version102, Version103, Version200, Version300:
		return true
	default:
		return false
	}
}

// Header is the fixed 46-byte ARC header prefix (spec §3).
type Header struct {
	Key          [14]byte
	TableOffset  uint32
	Seed         int32
	RawFileCount int32
	Version      Version
}

// seedConstant is the fixed offset spec §3's invariant
// rawFileCount = realFileCount + seed + 7 is built around.
const seedConstant = 7

// syncRawFileCount recomputes RawFileCount from a live entry count,
// preserving whatever Seed the header was loaded (or created) with.
func (h *Header) syncRawFileCount(realFileCount int) {
	h.RawFileCount = int32(realFileCount) + h.Seed + seedConstant
}
