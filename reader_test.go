package grf

import (
	"encoding/binary"
	"testing"

	"github.com/icza/grf/internal/descrypt"
)

// buildV1Record builds one raw V1 directory record: an already-DES-"encoded"
// name (here just XORed the way legacyCipher.DecodeFileName expects),
// followed by the 20-byte tail.
func buildV1Record(t *testing.T, plainName string, sizeCompressed, sizeAligned, sizeDecompressed uint32, flags uint8, offset uint32) []byte {
	t.Helper()
	key := [8]byte{0x06, 0xB0, 0x9F, 0x15, 0x77, 0x9C, 0xE2, 0x43}
	encoded := make([]byte, len(plainName))
	for i := 0; i < len(plainName); i++ {
		encoded[i] = plainName[i] ^ key[i%len(key)]
	}

	rec := append([]byte{}, encoded...)
	rec = append(rec, 0)
	tail := make([]byte, 20)
	binary.LittleEndian.PutUint32(tail[0:4], sizeCompressed)
	binary.LittleEndian.PutUint32(tail[4:8], sizeAligned)
	binary.LittleEndian.PutUint32(tail[8:12], sizeDecompressed)
	tail[12] = flags
	binary.LittleEndian.PutUint32(tail[16:20], offset)
	rec = append(rec, tail...)
	return rec
}

func TestParseDirectoryV1DecodesNameAndComputesCycle(t *testing.T) {
	a := &Archive{
		entries: make(map[string]*Entry),
		header:  Header{Version: Version102},
		cipher:  descrypt.Default(),
	}

	rec := buildV1Record(t, `DATA\test.gat`, 30, 32, 100, FlagFile|FlagMixed, 0)
	a.parseDirectoryV1(rec, 1, func(int, int) bool { return true })

	e, ok := a.entries[`data\test.gat`]
	if !ok {
		t.Fatalf("entry not found, have: %v", a.entries)
	}
	if e.SizeCompressed != 30 || e.SizeDecompressed != 100 {
		t.Fatalf("unexpected sizes: %+v", e)
	}
	wantCycle := int32(30 / 3)
	if e.Cycle != wantCycle {
		t.Fatalf("Cycle = %d, want %d", e.Cycle, wantCycle)
	}
}

func TestParseDirectoryV1StopsOnTruncation(t *testing.T) {
	a := &Archive{
		entries: make(map[string]*Entry),
		header:  Header{Version: Version102},
		cipher:  descrypt.Default(),
	}

	full := buildV1Record(t, "a", 1, 8, 1, FlagFile, 0)
	truncated := full[:len(full)-5]
	a.parseDirectoryV1(truncated, 1, func(int, int) bool { return true })

	if len(a.entries) != 0 {
		t.Fatalf("expected truncated entry to be discarded, got %v", a.entries)
	}
}

func TestVerifyIntegrityDetectsNothingOnHealthyArchive(t *testing.T) {
	a, path := newTempArchive(t, Version200)
	if err := a.AddFile("a", []byte("some data worth compressing maybe"), true); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if err := a.SaveAs(path, nil); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	if problems := a.VerifyIntegrity(nil); len(problems) != 0 {
		t.Fatalf("unexpected problems: %v", problems)
	}
}
