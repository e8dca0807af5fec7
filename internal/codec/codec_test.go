package codec

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/flate"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	src := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 50)

	compressed, err := Compress(src)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if len(compressed) >= len(src) {
		t.Fatalf("expected compression to shrink repetitive input")
	}

	got, err := Decompress(compressed, len(src))
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatalf("round-trip mismatch")
	}
}

func TestDecompressWrongSize(t *testing.T) {
	src := []byte("hello world")
	compressed, err := Compress(src)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if _, err := Decompress(compressed, len(src)+10); err == nil {
		t.Fatalf("expected error for mismatched known size")
	}
}

func TestDecompressRaw(t *testing.T) {
	src := []byte("raw deflate framing has no zlib header or adler32 trailer")

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		t.Fatalf("flate.NewWriter: %v", err)
	}
	if _, err := w.Write(src); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := DecompressRaw(buf.Bytes(), len(src))
	if err != nil {
		t.Fatalf("DecompressRaw: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatalf("round-trip mismatch: got %q want %q", got, src)
	}
}
