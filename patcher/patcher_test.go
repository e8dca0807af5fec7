package patcher

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/icza/grf"
	"github.com/icza/grf/thor"
	"github.com/stretchr/testify/require"
)

// writeSingleEntryThor builds a minimal mode-33 patch file carrying one
// entry, stored uncompressed (sizeCompressed == size).
func writeSingleEntryThor(t *testing.T, path string, useGrfMerging bool, relPath string, content []byte, removed bool) {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("ASSF (C) 2007 Aeomin DEV")
	if useGrfMerging {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], 1)
	buf.Write(u32[:])
	var u16 [2]byte
	binary.LittleEndian.PutUint16(u16[:], 33)
	buf.Write(u16[:])
	buf.WriteByte(0) // empty target arc name

	tableOffset := buf.Len() + 8
	var off8 [8]byte
	binary.LittleEndian.PutUint64(off8[:], uint64(tableOffset))
	buf.Write(off8[:])

	buf.WriteByte(byte(len(relPath)))
	buf.WriteString(relPath)
	if removed {
		buf.WriteByte(0x01)
		var zero8 [8]byte
		var zero4 [4]byte
		buf.Write(zero8[:])
		buf.Write(zero4[:]) // sizeCompressed: zero per the format's own convention for removed entries
		buf.Write(zero4[:]) // size
		require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
		return
	}
	buf.WriteByte(0)

	payloadOffset := buf.Len() + 8 + 4 + 4
	binary.LittleEndian.PutUint64(off8[:], uint64(payloadOffset))
	buf.Write(off8[:])
	binary.LittleEndian.PutUint32(u32[:], uint32(len(content)))
	buf.Write(u32[:])
	buf.Write(u32[:])
	buf.Write(content)

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestApplyPatchArcMergeAddsFile(t *testing.T) {
	dir := t.TempDir()
	arcPath := filepath.Join(dir, "data.grf")

	a, err := grf.New(grf.Version200)
	require.NoError(t, err)
	require.NoError(t, a.SaveAs(arcPath, nil))
	a.Close()

	thorPath := filepath.Join(dir, "p.thor")
	writeSingleEntryThor(t, thorPath, true, `data\new.txt`, []byte("patched content"), false)

	result, err := ApplyPatch(thorPath, Options{
		Mode:             ArcMerge,
		ExtractDirectory: dir,
		TargetGrf:        "data.grf",
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.FilesAdded)

	reopened, err := grf.Open(arcPath)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Extract(`data\new.txt`)
	require.NoError(t, err)
	require.Equal(t, "patched content", string(got))
}

func TestApplyPatchArcMergeRemovesFile(t *testing.T) {
	dir := t.TempDir()
	arcPath := filepath.Join(dir, "data.grf")

	a, err := grf.New(grf.Version200)
	require.NoError(t, err)
	require.NoError(t, a.AddFile(`data\old.txt`, []byte("stale"), false))
	require.NoError(t, a.SaveAs(arcPath, nil))
	a.Close()

	thorPath := filepath.Join(dir, "r.thor")
	writeSingleEntryThor(t, thorPath, true, `data\old.txt`, nil, true)

	result, err := ApplyPatch(thorPath, Options{
		Mode:             ArcMerge,
		ExtractDirectory: dir,
		TargetGrf:        "data.grf",
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.FilesRemoved)

	reopened, err := grf.Open(arcPath)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, 0, reopened.GetFileCount())
}

func TestApplyPatchDiskExtractWritesFile(t *testing.T) {
	dir := t.TempDir()
	thorPath := filepath.Join(dir, "d.thor")
	writeSingleEntryThor(t, thorPath, false, `sub\dir\file.txt`, []byte("disk content"), false)

	result, err := ApplyPatch(thorPath, Options{Mode: Auto, ExtractDirectory: dir})
	require.NoError(t, err)
	require.Equal(t, 1, result.FilesAdded)

	data, err := os.ReadFile(filepath.Join(dir, "sub", "dir", "file.txt"))
	require.NoError(t, err)
	require.Equal(t, "disk content", string(data))
}

func TestLocalVersionRoundTrip(t *testing.T) {
	dir := t.TempDir()

	v, err := ReadLocalVersion(dir)
	require.NoError(t, err)
	require.Equal(t, 0, v)

	require.NoError(t, WriteLocalVersion(dir, 871))
	v, err = ReadLocalVersion(dir)
	require.NoError(t, err)
	require.Equal(t, 871, v)
}

func TestGetPatchesToApplyFiltersAndSorts(t *testing.T) {
	list := []thor.ListEntry{
		{Index: 871, Filename: "c.thor"},
		{Index: 869, Filename: "a.thor"},
		{Index: 870, Filename: "b.thor"},
	}
	got := GetPatchesToApply(list, 869)
	require.Len(t, got, 2)
	require.Equal(t, "b.thor", got[0].Filename)
	require.Equal(t, "c.thor", got[1].Filename)
}
