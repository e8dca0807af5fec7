package thor

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/require"
)

func writeSingleEntryPatch(t *testing.T, path string, content []byte) {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString(magicModern)
	buf.WriteByte(1) // useGrfMerging
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], 1)
	buf.Write(u32[:])
	var u16 [2]byte
	binary.LittleEndian.PutUint16(u16[:], modeSingle)
	buf.Write(u16[:])
	buf.WriteByte(0) // empty target arc name

	tableOffsetPos := buf.Len() + 8 // table starts right after the 8-byte offset field
	var off8 [8]byte
	binary.LittleEndian.PutUint64(off8[:], uint64(tableOffsetPos))
	buf.Write(off8[:])

	name := `data\single.txt`
	buf.WriteByte(byte(len(name)))
	buf.WriteString(name)
	buf.WriteByte(0) // flags: not removed

	payloadOffset := buf.Len() + 8 + 4 + 4
	var off8b [8]byte
	binary.LittleEndian.PutUint64(off8b[:], uint64(payloadOffset))
	buf.Write(off8b[:])
	binary.LittleEndian.PutUint32(u32[:], uint32(len(content)))
	buf.Write(u32[:]) // sizeCompressed == size: stored raw
	buf.Write(u32[:]) // size
	buf.Write(content)

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestOpenSingleEntryPatchReadsContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.thor")
	writeSingleEntryPatch(t, path, []byte("hello patch"))

	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	require.Equal(t, uint16(modeSingle), a.Header().Mode)
	require.True(t, a.Header().UseGrfMerging)

	data, err := a.ReadFileContent(`DATA/SINGLE.TXT`)
	require.NoError(t, err)
	require.Equal(t, "hello patch", string(data))
}

func rawDeflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func writeMultiEntryPatch(t *testing.T, path string, files map[string][]byte, removed []string) {
	t.Helper()
	var header bytes.Buffer
	header.WriteString(magicModern)
	header.WriteByte(0) // disk mode
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], uint32(len(files)+len(removed)))
	header.Write(u32[:])
	var u16 [2]byte
	binary.LittleEndian.PutUint16(u16[:], modeMulti)
	header.Write(u16[:])
	header.WriteByte(0)

	names := []string{}
	for n := range files {
		names = append(names, n)
	}

	// placeholders; real offsets are filled in after payload layout is known
	type rec struct {
		name    string
		removed bool
	}
	var recs []rec
	for _, n := range names {
		recs = append(recs, rec{n, false})
	}
	for _, n := range removed {
		recs = append(recs, rec{n, true})
	}

	// Lay out payloads right after the header+table-length fields; their
	// absolute offsets are computed once the compressed table size is
	// known, so build the table twice: once to measure, once for real.
	build := func(offsets map[string]uint32) []byte {
		var b bytes.Buffer
		for _, r := range recs {
			b.WriteByte(byte(len(r.name)))
			b.WriteString(r.name)
			if r.removed {
				b.WriteByte(0x01)
				continue
			}
			b.WriteByte(0)
			var o [4]byte
			binary.LittleEndian.PutUint32(o[:], offsets[r.name])
			b.Write(o[:])
			content := files[r.name]
			binary.LittleEndian.PutUint32(o[:], uint32(len(content)))
			b.Write(o[:]) // sizeCompressed == size, stored raw
			b.Write(o[:]) // size
		}
		return b.Bytes()
	}

	zeroOffsets := map[string]uint32{}
	for _, n := range names {
		zeroOffsets[n] = 0
	}
	compressedTable := rawDeflate(t, build(zeroOffsets))

	headerAndTableFieldsLen := header.Len() + 4 + 4
	payloadStart := headerAndTableFieldsLen + len(compressedTable)
	offsets := map[string]uint32{}
	cur := payloadStart
	for _, n := range names {
		offsets[n] = uint32(cur)
		cur += len(files[n])
	}
	compressedTable = rawDeflate(t, build(offsets))

	binary.LittleEndian.PutUint32(u32[:], uint32(len(compressedTable)))
	header.Write(u32[:])
	binary.LittleEndian.PutUint32(u32[:], uint32(headerAndTableFieldsLen))
	header.Write(u32[:])
	header.Write(compressedTable)
	for _, n := range names {
		header.Write(files[n])
	}

	require.NoError(t, os.WriteFile(path, header.Bytes(), 0o644))
}

func TestOpenMultiEntryPatchReadsContentAndRemovals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.thor")
	writeMultiEntryPatch(t, path, map[string][]byte{
		`data\a.txt`: []byte("payload a"),
		`data\b.txt`: []byte("payload b, a bit longer"),
	}, []string{`data\gone.txt`})

	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	require.False(t, a.Header().UseGrfMerging)
	require.Len(t, a.Entries(), 3)

	got, err := a.ReadFileContent(`data\a.txt`)
	require.NoError(t, err)
	require.Equal(t, "payload a", string(got))

	goneEntry, ok := a.GetEntry(`data\gone.txt`)
	require.True(t, ok)
	require.True(t, goneEntry.IsRemoved)

	empty, err := a.ReadFileContent(`data\gone.txt`)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestParsePatchListSkipsCommentsAndFiltersByVersion(t *testing.T) {
	// Scenario 6 from the format's concrete test cases: local version 870
	// should leave only c.thor eligible.
	r := bytes.NewBufferString("//869 a.thor\n870 b.thor\n871 c.thor\n")
	entries, err := ParsePatchList(r)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	const localVersion = 870
	var eligible []ListEntry
	for _, e := range entries {
		if e.Index > localVersion {
			eligible = append(eligible, e)
		}
	}
	require.Len(t, eligible, 1)
	require.Equal(t, "c.thor", eligible[0].Filename)
}
