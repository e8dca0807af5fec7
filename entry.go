package grf

// Entry flag bits (spec §3).
const (
	FlagFile    uint8 = 0x01
	FlagMixed   uint8 = 0x02
	FlagHeader  uint8 = 0x04
	FlagAdded   uint8 = 0x08
)

// NoCycle is the sentinel Cycle value meaning "no DES encryption applies".
const NoCycle int32 = -1

// Entry is one record of the ARC directory (spec §3).
type Entry struct {
	Filename string // canonical form, see internal/pathnorm

	SizeCompressed        uint32
	SizeCompressedAligned uint32
	SizeDecompressed      uint32

	Offset uint32
	Flags  uint8
	Cycle  int32

	isNew      bool
	isModified bool
	isDeleted  bool

	// cachedData holds the compressed payload for a dirty (new or modified)
	// entry. It is released once the entry is written to disk.
	cachedData []byte
}

// IsFile reports whether the entry represents a regular (flagged) file, as
// opposed to an uncompressed directory placeholder.
func (e *Entry) IsFile() bool { return e.Flags&FlagFile != 0 }

// IsEncrypted reports whether the entry carries a DES encryption mode.
func (e *Entry) IsEncrypted() bool {
	return e.Flags&(FlagMixed|FlagHeader) != 0
}

// alignSize rounds n up to the next multiple of 8, matching spec §3's
// sizeCompressedAligned invariant.
func alignSize(n uint32) uint32 {
	return (n + 7) &^ 7
}

// IsNew reports whether the entry was added in this session and has not
// yet been persisted.
func (e *Entry) IsNew() bool { return e.isNew }

// IsModified reports whether the entry's data changed in this session and
// has not yet been persisted.
func (e *Entry) IsModified() bool { return e.isModified }

// IsDeleted reports whether RemoveFile has marked the entry for removal on
// next save.
func (e *Entry) IsDeleted() bool { return e.isDeleted }

// clone returns a shallow copy safe to hand to callers without exposing the
// live cachedData slice.
func (e *Entry) clone() *Entry {
	c := *e
	c.cachedData = nil
	return &c
}
