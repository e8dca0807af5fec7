package grf

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/icza/grf/internal/codec"
	"github.com/icza/grf/internal/descrypt"
)

// compressThreshold is the minimum payload size AddFile will even attempt
// to compress (spec §4.5, §8).
const compressThreshold = 128

// AddFile inserts or replaces the entry named name with data. If compress
// is true and len(data) exceeds compressThreshold, a zlib-compressed form
// is kept only if it is smaller than the raw form; otherwise the entry is
// stored uncompressed (sizeCompressed == sizeDecompressed).
func (a *Archive) AddFile(name string, data []byte, compress bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := normalizeForStorage(name)
	e, existed := a.entries[key]
	if !existed {
		e = &Entry{Filename: key}
		a.entries[key] = e
	}

	sizeDecompressed := uint32(len(data))
	var stored []byte
	sizeCompressed := sizeDecompressed

	if compress && len(data) > compressThreshold {
		c, err := codec.Compress(data)
		if err != nil {
			return a.setLastErr(newError("AddFile", KindCompressFailed, err))
		}
		if len(c) < len(data) {
			stored = c
			sizeCompressed = uint32(len(c))
		}
	}
	if stored == nil {
		stored = append([]byte{}, data...)
	}

	e.cachedData = stored
	e.SizeCompressed = sizeCompressed
	e.SizeDecompressed = sizeDecompressed
	e.SizeCompressedAligned = alignSize(sizeCompressed)
	e.Flags = FlagFile
	if existed {
		e.isNew = false
	} else {
		e.isNew = true
	}
	e.isModified = true
	e.isDeleted = false
	e.Cycle = NoCycle

	return nil
}

// RemoveFile marks name for removal on the next Save. The entry's data is
// untouched until then.
func (a *Archive) RemoveFile(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := normalizeForStorage(name)
	e, ok := a.entries[key]
	if !ok {
		return a.setLastErr(newError("RemoveFile", KindEntryNotFound, nil))
	}
	e.isDeleted = true
	return nil
}

// RenameFile moves the entry at oldName to newName. It fails if newName
// already names a live entry.
func (a *Archive) RenameFile(oldName, newName string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	oldKey := normalizeForStorage(oldName)
	newKey := normalizeForStorage(newName)

	e, ok := a.entries[oldKey]
	if !ok || e.isDeleted {
		return a.setLastErr(newError("RenameFile", KindEntryNotFound, nil))
	}
	if existing, ok := a.entries[newKey]; ok && !existing.isDeleted {
		return a.setLastErr(newError("RenameFile", KindInvalidOperation, nil))
	}

	delete(a.entries, oldKey)
	e.Filename = newKey
	e.isModified = true
	a.entries[newKey] = e
	return nil
}

// Save persists pending changes, trying QuickMerge first and falling back
// to FullRepack on any write-time error (spec §4.5). It requires the
// Archive to have an open file and a path (from Open or an earlier SaveAs);
// a read-only handle degrades Save to a FullRepack-backed replacement.
func (a *Archive) Save(progress ProgressFunc) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file == nil || a.path == "" {
		return a.setLastErr(newError("Save", KindInvalidOperation, nil))
	}

	if !a.readOnly {
		if err := a.quickMerge(progress); err == nil {
			return nil
		} else {
			log.WithError(err).Debug("grf: QuickMerge failed, falling back to FullRepack")
		}
	}
	return a.fullRepackLocked(a.path, progress)
}

// SaveAs writes the Archive to a new path using FullRepack unconditionally
// (spec §4.5), then reopens the Archive against that path.
func (a *Archive) SaveAs(path string, progress ProgressFunc) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fullRepackLocked(path, progress)
}

// quickMerge implements the append-only save strategy of spec §4.5.
func (a *Archive) quickMerge(progress ProgressFunc) error {
	var endOffset uint32
	for _, e := range a.entries {
		if e.isDeleted || e.isNew {
			continue
		}
		end := e.Offset + e.SizeCompressedAligned
		if end > endOffset {
			endOffset = end
		}
	}

	writeOffset := endOffset
	dirty := a.dirtyEntries()
	total := len(dirty)
	cb := throttle(progress, 1)

	for i, e := range dirty {
		if !cb(i, total) {
			return nil // cooperative cancellation; directory not rewritten
		}

		buf := append([]byte{}, e.cachedData...)
		if e.IsEncrypted() && a.header.Version.IsV1() {
			a.cipher.Crypt(buf, descrypt.Type(e.Flags&(FlagMixed|FlagHeader)), e.Cycle, descrypt.Encrypt)
		}
		padded := padTo8(buf)

		if _, err := a.file.WriteAt(padded, int64(HeaderSize)+int64(writeOffset)); err != nil {
			return newError("Save", KindWriteFailed, err)
		}

		e.Offset = writeOffset
		e.SizeCompressedAligned = uint32(len(padded))
		e.isNew = false
		e.isModified = false
		e.cachedData = nil
		writeOffset += e.SizeCompressedAligned
	}

	a.header.TableOffset = writeOffset
	a.header.syncRawFileCount(a.liveCountLocked())

	if err := a.writeDirectoryAndHeader(a.file); err != nil {
		return err
	}
	return nil
}

// fullRepackLocked implements the FullRepack strategy of spec §4.5. Caller
// must hold a.mu.
func (a *Archive) fullRepackLocked(targetPath string, progress ProgressFunc) error {
	dir := filepath.Dir(targetPath)
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.tmp", uuid.NewString()))

	tmp, err := os.Create(tmpPath)
	if err != nil {
		return a.setLastErr(newError("FullRepack", KindOpenFailed, err))
	}
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(make([]byte, HeaderSize)); err != nil {
		return a.setLastErr(newError("FullRepack", KindWriteFailed, err))
	}

	names := a.sortedLiveNames()
	total := len(names)
	cb := throttle(progress, 1)

	var writeOffset uint32
	for i, name := range names {
		if !cb(i, total) {
			return nil // temp file discarded by the deferred cleanup above
		}
		e := a.entries[name]

		src, err := a.payloadForRepack(e)
		if err != nil {
			return a.setLastErr(err)
		}

		raw := append([]byte{}, src...)
		if e.IsEncrypted() && a.header.Version.IsV1() {
			a.cipher.Crypt(raw, descrypt.Type(e.Flags&(FlagMixed|FlagHeader)), e.Cycle, descrypt.Encrypt)
		}
		padded := padTo8(raw)

		if _, err := tmp.WriteAt(padded, int64(HeaderSize)+int64(writeOffset)); err != nil {
			return a.setLastErr(newError("FullRepack", KindWriteFailed, err))
		}

		e.Offset = writeOffset
		e.SizeCompressedAligned = uint32(len(padded))
		e.isNew = false
		e.isModified = false
		e.cachedData = nil
		writeOffset += e.SizeCompressedAligned
	}

	a.header.TableOffset = writeOffset
	a.header.syncRawFileCount(a.liveCountLocked())

	if err := a.writeDirectoryAndHeader(tmp); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return a.setLastErr(newError("FullRepack", KindWriteFailed, err))
	}

	if a.file != nil {
		a.file.Close()
		a.file = nil
	}
	if err := os.Remove(targetPath); err != nil && !os.IsNotExist(err) {
		return a.setLastErr(newError("FullRepack", KindWriteFailed, err))
	}
	if err := os.Rename(tmpPath, targetPath); err != nil {
		return a.setLastErr(newError("FullRepack", KindWriteFailed, err))
	}

	reopened, err := os.OpenFile(targetPath, os.O_RDWR, 0)
	if err != nil {
		return a.setLastErr(newError("FullRepack", KindOpenFailed, err))
	}
	a.file = reopened
	a.path = targetPath
	a.readOnly = false
	return nil
}

// payloadForRepack returns the compressed bytes FullRepack should write for
// e: its dirty cache if present, otherwise the compressed bytes already on
// disk in the archive being repacked.
func (a *Archive) payloadForRepack(e *Entry) ([]byte, *Error) {
	if len(e.cachedData) > 0 {
		return e.cachedData, nil
	}
	if a.file == nil {
		return nil, newError("FullRepack", KindInvalidOperation, nil)
	}
	buf := make([]byte, e.SizeCompressedAligned)
	if _, err := a.file.ReadAt(buf, int64(HeaderSize)+int64(e.Offset)); err != nil {
		return nil, newError("FullRepack", KindReadFailed, err)
	}
	if a.customKey != nil {
		for i := range buf {
			buf[i] ^= a.customKey[i%256]
		}
	}
	if e.IsEncrypted() && a.header.Version.IsV1() {
		a.cipher.Crypt(buf, descrypt.Type(e.Flags&(FlagMixed|FlagHeader)), e.Cycle, descrypt.Decrypt)
	}
	return buf[:e.SizeCompressedAligned], nil
}

// dirtyEntries returns the live entries QuickMerge must append, in a
// stable-enough order for a single run (spec §5 does not require a
// specific cross-run order, only that each is visited once).
func (a *Archive) dirtyEntries() []*Entry {
	var out []*Entry
	for _, e := range a.entries {
		if e.isDeleted {
			continue
		}
		if e.isNew || e.isModified {
			out = append(out, e)
		}
	}
	return out
}

// writeDirectoryAndHeader serializes the directory (V2+ layout
// unconditionally, per spec §4.5/§9) and rewrites the header, both against
// w, which may be a.file (QuickMerge) or the FullRepack temp file.
func (a *Archive) writeDirectoryAndHeader(w io.WriterAt) error {
	dir := a.serializeDirectory()
	compressed, err := codec.Compress(dir)
	if err != nil {
		return newError("Save", KindCompressFailed, err)
	}

	sizes := make([]byte, 8)
	binary.LittleEndian.PutUint32(sizes[0:4], uint32(len(compressed)))
	binary.LittleEndian.PutUint32(sizes[4:8], uint32(len(dir)))

	dirPos := int64(HeaderSize) + int64(a.header.TableOffset)
	if _, err := w.WriteAt(sizes, dirPos); err != nil {
		return newError("Save", KindWriteFailed, err)
	}
	if _, err := w.WriteAt(compressed, dirPos+8); err != nil {
		return newError("Save", KindWriteFailed, err)
	}

	headerBuf := a.serializeHeader()
	if _, err := w.WriteAt(headerBuf, 0); err != nil {
		return newError("Save", KindWriteFailed, err)
	}
	return nil
}

// serializeDirectory emits every live entry using the V2+ on-disk layout
// (spec §4.5's directory serialization rules), regardless of the version
// the archive was loaded with.
func (a *Archive) serializeDirectory() []byte {
	var buf []byte
	for _, name := range a.sortedLiveNames() {
		e := a.entries[name]
		buf = append(buf, []byte(e.Filename)...)
		buf = append(buf, 0)

		tail := make([]byte, 17)
		binary.LittleEndian.PutUint32(tail[0:4], e.SizeCompressed)
		binary.LittleEndian.PutUint32(tail[4:8], e.SizeCompressedAligned)
		binary.LittleEndian.PutUint32(tail[8:12], e.SizeDecompressed)
		tail[12] = e.Flags
		binary.LittleEndian.PutUint32(tail[13:17], e.Offset)
		buf = append(buf, tail...)
	}
	return buf
}

// sortedLiveNames returns live entry names in a deterministic order. A
// stable iteration order is not required by spec §5, but it makes output
// reproducible across runs for the same in-memory state, which is good
// practice for a format that other tools will diff.
func (a *Archive) sortedLiveNames() []string {
	names := make([]string, 0, len(a.entries))
	for name, e := range a.entries {
		if !e.isDeleted {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (a *Archive) serializeHeader() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:16], magicLiteral)
	copy(buf[16:30], a.header.Key[:])
	binary.LittleEndian.PutUint32(buf[30:34], a.header.TableOffset)
	binary.LittleEndian.PutUint32(buf[34:38], uint32(a.header.Seed))
	binary.LittleEndian.PutUint32(buf[38:42], uint32(a.header.RawFileCount))
	binary.LittleEndian.PutUint32(buf[42:46], uint32(a.header.Version))
	return buf
}

func padTo8(b []byte) []byte {
	aligned := alignSize(uint32(len(b)))
	if aligned == uint32(len(b)) {
		return b
	}
	out := make([]byte, aligned)
	copy(out, b)
	return out
}

// VerifyIntegrity re-extracts every live entry and reports any whose
// extraction fails or whose decompressed size does not match the
// directory's recorded size (spec §5's long-running-operation list).
func (a *Archive) VerifyIntegrity(progress ProgressFunc) []string {
	a.mu.Lock()
	names := a.sortedLiveNames()
	a.mu.Unlock()
	cb := throttle(progress, 100)

	var problems []string
	for i, name := range names {
		if !cb(i, len(names)) {
			break
		}
		e, ok := a.GetEntry(name)
		if !ok {
			continue
		}
		data, err := a.Extract(name)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		if uint32(len(data)) != e.SizeDecompressed {
			problems = append(problems, fmt.Sprintf("%s: size mismatch", name))
		}
	}
	return problems
}
