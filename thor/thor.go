// Package thor reads the PATCH archive format: a header identifying the
// target ARC and merge mode, a single- or multi-entry directory, and an
// optional data.integrity side-channel.
package thor

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/icza/grf/internal/codec"
	"github.com/icza/grf/internal/pathnorm"
	"github.com/klauspost/compress/zlib"
)

const (
	magicModern = "ASSF (C) 2007 Aeomin DEV"
	magicLegacy = "ASSF (C) 2007 Aeokan (aeokan@gmail.com)"
)

const (
	modeSingle = 33
	modeMulti  = 48
)

// Entry describes one file carried by a patch.
type Entry struct {
	RelativePath   string
	Size           uint32
	SizeCompressed uint32
	Offset         uint64
	IsRemoved      bool
}

// Header is the fixed preamble of a patch file, following the magic.
type Header struct {
	UseGrfMerging bool
	FileCount     uint32
	Mode          uint16
	TargetArcName string
}

// Archive is an opened PATCH file. It holds the file handle open for the
// lifetime of readFileContent calls; callers must Close it.
type Archive struct {
	path    string
	file    *os.File
	header  Header
	entries []*Entry
	byName  map[string]*Entry

	// Integrity maps a normalized filename to its expected CRC32, parsed
	// from the data.integrity entry if one was present.
	Integrity map[string]uint32

	lastErr error
}

// Header returns the parsed patch header.
func (a *Archive) Header() Header { return a.header }

// Path returns the filesystem path the archive was opened from.
func (a *Archive) Path() string { return a.path }

// LastError returns the most recent error recorded by an operation on a.
func (a *Archive) LastError() error { return a.lastErr }

func (a *Archive) setLastErr(err error) error {
	a.lastErr = err
	return err
}

// Close releases the underlying file handle.
func (a *Archive) Close() error {
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// Entries returns every directory entry in on-disk order, including the
// data.integrity entry if present.
func (a *Archive) Entries() []*Entry {
	out := make([]*Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// GetEntry looks up an entry by name, normalized the same way the ARC
// engine normalizes its directory keys, so callers may pass any case or
// separator variant.
func (a *Archive) GetEntry(name string) (*Entry, bool) {
	e, ok := a.byName[pathnorm.Normalize(name)]
	return e, ok
}

const integrityEntryName = "data.integrity"

// Open parses the patch at path: header, directory, and (if present) the
// integrity manifest.
func Open(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newError("Open", KindOpenFailed, err)
	}

	a := &Archive{
		path:   path,
		file:   f,
		byName: make(map[string]*Entry),
	}

	if err := a.load(); err != nil {
		f.Close()
		return nil, err
	}
	return a, nil
}

// load reads the magic, header and directory from a.file.
func (a *Archive) load() error {
	if err := a.detectMagic(); err != nil {
		return a.setLastErr(err)
	}

	rest := make([]byte, 1+4+2+1)
	if _, err := io.ReadFull(a.file, rest); err != nil {
		return a.setLastErr(newError("Open", KindCorruptHeader, err))
	}
	h := Header{}
	h.UseGrfMerging = rest[0] != 0
	h.FileCount = binary.LittleEndian.Uint32(rest[1:5])
	h.Mode = binary.LittleEndian.Uint16(rest[5:7])
	nameSize := int(rest[7])

	if nameSize > 0 {
		nameBuf := make([]byte, nameSize)
		if _, err := io.ReadFull(a.file, nameBuf); err != nil {
			return a.setLastErr(newError("Open", KindCorruptHeader, err))
		}
		h.TargetArcName = string(nameBuf)
	}
	a.header = h

	switch h.Mode {
	case modeSingle:
		if err := a.parseSingleEntryDirectory(); err != nil {
			return a.setLastErr(err)
		}
	case modeMulti:
		if err := a.parseMultiEntryDirectory(); err != nil {
			return a.setLastErr(err)
		}
	default:
		return a.setLastErr(newError("Open", KindInvalidMode, nil))
	}

	a.loadIntegrity()
	return nil
}

// detectMagic probes the first 24 bytes for the modern magic; if they
// don't match, it rereads the full 48-byte legacy magic field and checks
// that it begins with the legacy magic, leaving the file positioned right
// after whichever magic field matched.
func (a *Archive) detectMagic() error {
	buf24 := make([]byte, len(magicModern))
	if _, err := io.ReadFull(a.file, buf24); err != nil {
		return newError("Open", KindCorruptHeader, err)
	}
	if string(buf24) == magicModern {
		return nil
	}

	if _, err := a.file.Seek(0, io.SeekStart); err != nil {
		return newError("Open", KindCorruptHeader, err)
	}
	buf48 := make([]byte, 48)
	if _, err := io.ReadFull(a.file, buf48); err != nil {
		return newError("Open", KindInvalidMagic, err)
	}
	if string(buf48[:len(magicLegacy)]) != magicLegacy {
		return newError("Open", KindInvalidMagic, nil)
	}
	return nil
}

// parseSingleEntryDirectory handles mode 33: an 8-byte table offset
// followed by exactly one fixed-layout record.
func (a *Archive) parseSingleEntryDirectory() error {
	var offBuf [8]byte
	if _, err := io.ReadFull(a.file, offBuf[:]); err != nil {
		return newError("Open", KindCorruptDirectory, err)
	}
	tableOffset := binary.LittleEndian.Uint64(offBuf[:])
	if _, err := a.file.Seek(int64(tableOffset), io.SeekStart); err != nil {
		return newError("Open", KindCorruptDirectory, err)
	}

	e, err := a.readSingleRecord()
	if err != nil {
		return err
	}
	a.addEntry(e)
	return nil
}

func (a *Archive) readSingleRecord() (*Entry, error) {
	var nameSizeBuf [1]byte
	if _, err := io.ReadFull(a.file, nameSizeBuf[:]); err != nil {
		return nil, newError("Open", KindCorruptDirectory, err)
	}
	nameBuf := make([]byte, int(nameSizeBuf[0]))
	if _, err := io.ReadFull(a.file, nameBuf); err != nil {
		return nil, newError("Open", KindCorruptDirectory, err)
	}

	rest := make([]byte, 1+8+4+4)
	if _, err := io.ReadFull(a.file, rest); err != nil {
		return nil, newError("Open", KindCorruptDirectory, err)
	}

	e := &Entry{RelativePath: string(nameBuf)}
	flags := rest[0]
	e.IsRemoved = flags&0x01 != 0
	e.Offset = binary.LittleEndian.Uint64(rest[1:9])
	e.SizeCompressed = binary.LittleEndian.Uint32(rest[9:13])
	e.Size = binary.LittleEndian.Uint32(rest[13:17])
	return e, nil
}

// parseMultiEntryDirectory handles mode 48: a compressed table of
// variable-layout records (removed entries carry no size/offset fields).
func (a *Archive) parseMultiEntryDirectory() error {
	var head [8]byte
	if _, err := io.ReadFull(a.file, head[:]); err != nil {
		return newError("Open", KindCorruptDirectory, err)
	}
	tableCompressedSize := binary.LittleEndian.Uint32(head[0:4])
	tableOffset := binary.LittleEndian.Uint32(head[4:8])

	if _, err := a.file.Seek(int64(tableOffset), io.SeekStart); err != nil {
		return newError("Open", KindCorruptDirectory, err)
	}
	compressed := make([]byte, tableCompressedSize)
	if _, err := io.ReadFull(a.file, compressed); err != nil {
		return newError("Open", KindCorruptDirectory, err)
	}

	table, err := codec.DecompressRaw(compressed, int(tableCompressedSize)*10)
	if err != nil || len(table) == 0 {
		// The zlib-framed fallback has no known output size either, so it
		// is read to completion like the raw path.
		zr, zerr := zlib.NewReader(bytes.NewReader(compressed))
		if zerr == nil {
			table, zerr = io.ReadAll(zr)
			zr.Close()
		}
		if zerr != nil {
			return newError("Open", KindDecompressFailed, zerr)
		}
	}

	pos := 0
	for i := uint32(0); i < a.header.FileCount; i++ {
		if pos >= len(table) {
			break
		}
		nameSize := int(table[pos])
		pos++
		if pos+nameSize > len(table) {
			break
		}
		name := string(table[pos : pos+nameSize])
		pos += nameSize
		if pos >= len(table) {
			break
		}
		flags := table[pos]
		pos++

		e := &Entry{RelativePath: name, IsRemoved: flags&0x01 != 0}
		if !e.IsRemoved {
			if pos+12 > len(table) {
				break
			}
			e.Offset = uint64(binary.LittleEndian.Uint32(table[pos : pos+4]))
			e.SizeCompressed = binary.LittleEndian.Uint32(table[pos+4 : pos+8])
			e.Size = binary.LittleEndian.Uint32(table[pos+8 : pos+12])
			pos += 12
		}
		a.addEntry(e)
	}
	return nil
}

func (a *Archive) addEntry(e *Entry) {
	a.entries = append(a.entries, e)
	a.byName[pathnorm.Normalize(e.RelativePath)] = e
}

// ReadFileContent returns the decompressed payload of the named entry.
// Removed entries and zero-size entries return an empty slice without
// error.
func (a *Archive) ReadFileContent(name string) ([]byte, error) {
	e, ok := a.GetEntry(name)
	if !ok {
		return nil, a.setLastErr(newError("ReadFileContent", KindEntryNotFound, nil))
	}
	return a.readEntryContent(e)
}

func (a *Archive) readEntryContent(e *Entry) ([]byte, error) {
	if e.IsRemoved || e.Size == 0 {
		return []byte{}, nil
	}

	compressed := make([]byte, e.SizeCompressed)
	if _, err := a.file.ReadAt(compressed, int64(e.Offset)); err != nil {
		return nil, a.setLastErr(newError("ReadFileContent", KindReadFailed, err))
	}
	if e.SizeCompressed == e.Size {
		return compressed, nil
	}
	out, err := codec.Decompress(compressed, int(e.Size))
	if err != nil {
		return nil, a.setLastErr(newError("ReadFileContent", KindDecompressFailed, err))
	}
	return out, nil
}

// loadIntegrity populates a.Integrity from the data.integrity entry, if
// one exists. Parse failures are swallowed per the format's own
// best-effort convention: integrity is an optional side-channel.
func (a *Archive) loadIntegrity() {
	e, ok := a.GetEntry(integrityEntryName)
	if !ok {
		return
	}
	content, err := a.readEntryContent(e)
	if err != nil {
		return
	}

	m := make(map[string]uint32)
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "/") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		name := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		crc, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			continue
		}
		m[pathnorm.Normalize(name)] = uint32(crc)
	}
	a.Integrity = m
}

// Validate compares data against the integrity manifest's expected CRC32
// for name, returning false when no manifest or no entry for name exists.
func (a *Archive) Validate(name string, data []byte) bool {
	if a.Integrity == nil {
		return false
	}
	want, ok := a.Integrity[pathnorm.Normalize(name)]
	if !ok {
		return false
	}
	return crc32.ChecksumIEEE(data) == want
}

// IsIntegrityEntry reports whether name refers to the integrity
// side-channel file itself, which is excluded from merge iteration.
func IsIntegrityEntry(name string) bool {
	return pathnorm.Normalize(name) == integrityEntryName
}
