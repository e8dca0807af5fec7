// Package codec wraps the zlib and raw-deflate framings used across the GRF
// directory, GRF payloads and THOR patch directories.
package codec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
)

// ErrDecompressFailed is returned when inflating a block does not yield
// exactly the expected number of bytes, or the stream itself is corrupt.
var ErrDecompressFailed = errors.New("codec: decompress failed")

// ErrCompressFailed is returned when the underlying flate writer errors.
var ErrCompressFailed = errors.New("codec: compress failed")

// Compress zlib-deflates src at the library's default compression level.
func Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		return nil, errors.Wrap(ErrCompressFailed, err.Error())
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(ErrCompressFailed, err.Error())
	}
	return buf.Bytes(), nil
}

// Decompress inflates a zlib-framed stream, requiring the result to be
// exactly knownOutputSize bytes long.
func Decompress(src []byte, knownOutputSize int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, errors.Wrap(ErrDecompressFailed, err.Error())
	}
	defer r.Close()
	return readExact(r, knownOutputSize)
}

// DecompressRaw inflates a raw deflate stream with no zlib wrapper, as
// emitted by the THOR multi-entry directory producer. THOR directories carry
// no reliable uncompressed-size field for the whole table, so the stream is
// read to completion rather than into a size-guessed buffer — a guess that
// undershoots the real size would otherwise silently truncate the result.
func DecompressRaw(src []byte, hintSize int) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(src))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(ErrDecompressFailed, err.Error())
	}
	return out, nil
}

func readExact(r io.Reader, size int) ([]byte, error) {
	out := make([]byte, size)
	n, err := io.ReadFull(r, out)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, errors.Wrap(ErrDecompressFailed, err.Error())
	}
	if n != size {
		return nil, errors.Wrapf(ErrDecompressFailed, "got %d bytes, want %d", n, size)
	}
	return out, nil
}
