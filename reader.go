package grf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/icza/grf/internal/codec"
	"github.com/icza/grf/internal/descrypt"
)

// Open loads the ARC at path, following spec §4.4's open procedure: a
// read-write handle is preferred, degrading to read-only on a permission
// failure (spec §5's shared-resource policy — Save then behaves like
// SaveAs via FullRepack).
func Open(path string) (*Archive, error) {
	f, readOnly, err := openPreferReadWrite(path)
	if err != nil {
		return nil, newError("Open", KindOpenFailed, err)
	}

	a := &Archive{
		path:     path,
		file:     f,
		readOnly: readOnly,
		entries:  make(map[string]*Entry),
		cipher:   descrypt.Default(),
	}

	if err := a.load(nil); err != nil {
		f.Close()
		return nil, err
	}
	return a, nil
}

func openPreferReadWrite(path string) (*os.File, bool, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err == nil {
		return f, false, nil
	}
	if !errors.Is(err, os.ErrPermission) {
		return nil, false, err
	}
	f, err = os.Open(path)
	if err != nil {
		return nil, false, err
	}
	return f, true, nil
}

// load reads the header and directory of a.file into a.
func (a *Archive) load(progress ProgressFunc) error {
	var raw [HeaderSize]byte
	if _, err := io.ReadFull(a.file, raw[:]); err != nil {
		return a.setLastErr(newError("Open", KindCorruptHeader, err))
	}
	if !bytes.Equal(raw[:magicCompareLen], []byte(magicLiteral)[:magicCompareLen]) {
		return a.setLastErr(newError("Open", KindInvalidMagic, nil))
	}

	h := Header{}
	copy(h.Key[:], raw[16:30])
	h.TableOffset = binary.LittleEndian.Uint32(raw[30:34])
	h.Seed = int32(binary.LittleEndian.Uint32(raw[34:38]))
	h.RawFileCount = int32(binary.LittleEndian.Uint32(raw[38:42]))
	h.Version = Version(binary.LittleEndian.Uint32(raw[42:46]))

	if !h.Version.IsSupported() {
		return a.setLastErr(newError("Open", KindUnsupportedVersion, nil))
	}
	a.header = h

	if _, err := a.file.Seek(int64(HeaderSize)+int64(h.TableOffset), io.SeekStart); err != nil {
		return a.setLastErr(newError("Open", KindCorruptDirectory, err))
	}

	var sizes [8]byte
	if _, err := io.ReadFull(a.file, sizes[:]); err != nil {
		return a.setLastErr(newError("Open", KindCorruptDirectory, err))
	}
	tableSizeCompressed := binary.LittleEndian.Uint32(sizes[0:4])
	tableSize := binary.LittleEndian.Uint32(sizes[4:8])

	if tableSizeCompressed == 0 && tableSize == 0 {
		return nil // empty archive
	}

	compressed := make([]byte, tableSizeCompressed)
	if _, err := io.ReadFull(a.file, compressed); err != nil {
		return a.setLastErr(newError("Open", KindReadFailed, err))
	}

	table, err := codec.Decompress(compressed, int(tableSize))
	if err != nil {
		return a.setLastErr(newError("Open", KindDecompressFailed, err))
	}

	realFileCount := int(h.RawFileCount - h.Seed - seedConstant)
	if realFileCount < 0 {
		realFileCount = 0
	}

	cb := throttle(progress, 1000)
	if h.Version.IsV1() {
		a.parseDirectoryV1(table, realFileCount, cb)
	} else {
		a.parseDirectoryV2(table, realFileCount, cb)
	}
	return nil
}

// parseDirectoryV1 parses the variable-head/20-byte-tail V1 record layout
// (spec §4.4). The truncation guard matches the original implementation's
// 17-byte threshold (it under-counts the 3 padding bytes, a pre-existing
// quirk); this port still only consumes a record once a full 20 bytes are
// actually available, since Go has no equivalent of reading past a slice's
// bounds the way the original's raw pointer arithmetic could.
func (a *Archive) parseDirectoryV1(table []byte, total int, progress ProgressFunc) {
	pos := 0
	for i := 0; i < total && pos < len(table); i++ {
		if !progress(i, total) {
			return
		}
		nameStart := pos
		for pos < len(table) && table[pos] != 0 {
			pos++
		}
		nameBytes := table[nameStart:pos]
		if pos < len(table) {
			pos++ // skip NUL
		}

		const tailLen = 20
		if pos+17 > len(table) || pos+tailLen > len(table) {
			break
		}

		e := &Entry{}
		e.SizeCompressed = binary.LittleEndian.Uint32(table[pos : pos+4])
		e.SizeCompressedAligned = binary.LittleEndian.Uint32(table[pos+4 : pos+8])
		e.SizeDecompressed = binary.LittleEndian.Uint32(table[pos+8 : pos+12])
		e.Flags = table[pos+12]
		// 3 padding bytes at pos+13..pos+16
		e.Offset = binary.LittleEndian.Uint32(table[pos+16 : pos+20])
		pos += tailLen

		e.Filename = a.cipher.DecodeFileName(nameBytes)
		e.Filename = normalizeForStorage(e.Filename)
		if e.Filename == "" {
			continue
		}

		e.Cycle = NoCycle
		if e.IsEncrypted() {
			e.Cycle = 1
			if e.SizeCompressed >= 3 {
				c := int32(e.SizeCompressed / 3)
				if c < 1 {
					c = 1
				}
				e.Cycle = c
			}
		}

		a.entries[e.Filename] = e
	}
}

// parseDirectoryV2 parses the fixed 17-byte-tail V2+ record layout (spec
// §4.4): no padding, no DES, cycle always NoCycle.
func (a *Archive) parseDirectoryV2(table []byte, total int, progress ProgressFunc) {
	pos := 0
	for i := 0; i < total && pos < len(table); i++ {
		if !progress(i, total) {
			return
		}
		nameStart := pos
		for pos < len(table) && table[pos] != 0 {
			pos++
		}
		nameBytes := table[nameStart:pos]
		if pos < len(table) {
			pos++
		}

		const tailLen = 17
		if pos+tailLen > len(table) {
			break
		}

		e := &Entry{}
		e.SizeCompressed = binary.LittleEndian.Uint32(table[pos : pos+4])
		e.SizeCompressedAligned = binary.LittleEndian.Uint32(table[pos+4 : pos+8])
		e.SizeDecompressed = binary.LittleEndian.Uint32(table[pos+8 : pos+12])
		e.Flags = table[pos+12]
		e.Offset = binary.LittleEndian.Uint32(table[pos+13 : pos+17])
		pos += tailLen

		e.Filename = normalizeForStorage(string(nameBytes))
		if e.Filename == "" {
			continue
		}
		e.Cycle = NoCycle

		a.entries[e.Filename] = e
	}
}

// Extract returns the decompressed, decrypted payload of the named entry.
// name is normalized before lookup, so callers may pass any case or
// separator variant (spec §4.3/§8).
func (a *Archive) Extract(name string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[normalizeForStorage(name)]
	if !ok || e.isDeleted {
		return nil, a.setLastErr(newError("Extract", KindEntryNotFound, nil))
	}

	var compressed []byte
	if len(e.cachedData) > 0 {
		compressed = e.cachedData
	} else {
		buf := make([]byte, e.SizeCompressedAligned)
		if _, err := a.file.ReadAt(buf, int64(HeaderSize)+int64(e.Offset)); err != nil {
			return nil, a.setLastErr(newError("Extract", KindReadFailed, err))
		}
		a.decryptInPlace(e, buf)
		compressed = buf
	}

	if e.SizeCompressed == e.SizeDecompressed {
		if uint32(len(compressed)) < e.SizeDecompressed {
			return nil, a.setLastErr(newError("Extract", KindCorruptDirectory, nil))
		}
		return append([]byte{}, compressed[:e.SizeDecompressed]...), nil
	}

	out, err := codec.Decompress(compressed[:e.SizeCompressed], int(e.SizeDecompressed))
	if err != nil {
		return nil, a.setLastErr(newError("Extract", KindDecompressFailed, err))
	}
	return out, nil
}

// decryptInPlace applies the custom XOR key (if any) followed by DES, per
// spec §4.4 step 3. The XOR step runs whenever a custom key is set; the DES
// step is skipped when the entry carries no encryption flag or the archive
// is not a V1 (0x102/0x103) version.
func (a *Archive) decryptInPlace(e *Entry, buf []byte) {
	if a.customKey != nil {
		for i := range buf {
			buf[i] ^= a.customKey[i%256]
		}
	}
	if e.IsEncrypted() && a.header.Version.IsV1() {
		a.cipher.Crypt(buf, descrypt.Type(e.Flags&(FlagMixed|FlagHeader)), e.Cycle, descrypt.Decrypt)
	}
}

// ExtractAll extracts every live entry, invoking progress every entry
// (throttling is the caller's concern for very large archives via the
// returned per-call bool). Returns the number of entries extracted and the
// first error encountered for entries that failed, continuing past
// per-entry failures per spec §7's best-effort policy.
func (a *Archive) ExtractAll(destDir string, progress ProgressFunc) (extracted int, firstErr error) {
	a.mu.Lock()
	names := a.sortedLiveNames()
	a.mu.Unlock()
	cb := throttle(progress, 1)
	for i, name := range names {
		if !cb(i, len(names)) {
			return extracted, nil
		}
		data, err := a.Extract(name)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := writeFileUnder(destDir, name, data); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		extracted++
	}
	return extracted, firstErr
}
