package descrypt

import (
	"bytes"
	"testing"
)

func TestDESBlockRoundTrip(t *testing.T) {
	ks := expandKey(legacyKey)
	orig := []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xAB, 0xCD, 0xEF}
	block := append([]byte{}, orig...)

	desBlock(block, ks, false)
	if bytes.Equal(block, orig) {
		t.Fatalf("encryption left block unchanged")
	}
	desBlock(block, ks, true)
	if !bytes.Equal(block, orig) {
		t.Fatalf("decrypt(encrypt(x)) != x: got %x want %x", block, orig)
	}
}

func TestCryptHeaderRoundTrip(t *testing.T) {
	c := legacyCipher{}
	data := bytes.Repeat([]byte{0xAA, 0x55, 0x10, 0x20, 0x30, 0x40, 0x50, 0x60}, 30)
	orig := append([]byte{}, data...)

	c.Crypt(data, TypeHeader, -1, Encrypt)
	if bytes.Equal(data, orig) {
		t.Fatalf("header encryption left data unchanged")
	}
	c.Crypt(data, TypeHeader, -1, Decrypt)
	if !bytes.Equal(data, orig) {
		t.Fatalf("round-trip mismatch for TypeHeader")
	}
}

func TestCryptMixedRoundTrip(t *testing.T) {
	c := legacyCipher{}
	data := bytes.Repeat([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}, 40)
	orig := append([]byte{}, data...)

	c.Crypt(data, TypeMixed, 3, Encrypt)
	if bytes.Equal(data, orig) {
		t.Fatalf("mixed encryption left data unchanged")
	}
	c.Crypt(data, TypeMixed, 3, Decrypt)
	if !bytes.Equal(data, orig) {
		t.Fatalf("round-trip mismatch for TypeMixed")
	}
}

func TestDecodeFileNameTrimsNUL(t *testing.T) {
	c := legacyCipher{}
	name := "data\\test.txt"
	raw := make([]byte, len(name)+4)
	key := legacyKey
	for i := 0; i < len(name); i++ {
		raw[i] = name[i] ^ key[i%len(key)]
	}
	// trailing bytes stay zero after XOR with key only if key bytes are 0,
	// which they are not; encode explicit NUL terminator bytes instead.
	for i := len(name); i < len(raw); i++ {
		raw[i] = 0 ^ key[i%len(key)]
	}

	got := c.DecodeFileName(raw)
	if got != name {
		t.Fatalf("DecodeFileName = %q, want %q", got, name)
	}
}
