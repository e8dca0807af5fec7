package grf

import (
	"os"
	"sync"

	"github.com/icza/grf/internal/descrypt"
)

// Archive is an open ARC container: a header, an in-memory directory of
// entries, and the file handle it was opened from (spec §4.4's "ownership"
// rule — entries never outlive the Archive that loaded them).
//
// Archive is not safe for concurrent use: spec §5 specifies a
// single-threaded cooperative model, one operation at a time per instance.
type Archive struct {
	mu sync.Mutex

	path     string
	file     *os.File
	readOnly bool

	header  Header
	entries map[string]*Entry

	cipher     descrypt.Cipher
	customKey  *[256]byte
	lastErr    error
}

// Path returns the filesystem path the Archive was opened from, or the
// empty string for an in-memory Archive created with New.
func (a *Archive) Path() string { return a.path }

// Version returns the container version the Archive was opened with, or
// the version it will be saved as for a freshly created Archive.
func (a *Archive) Version() Version { return a.header.Version }

// GetFileCount returns the number of live (non-deleted) entries.
func (a *Archive) GetFileCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.liveCountLocked()
}

func (a *Archive) liveCountLocked() int {
	n := 0
	for _, e := range a.entries {
		if !e.isDeleted {
			n++
		}
	}
	return n
}

// LastError returns the error stored by the most recent operation that
// failed, or nil. This is the convenience accessor spec §9 calls out for
// the "last error" global-mutable-state smell: every exported method also
// returns its own error directly, so using LastError is optional.
func (a *Archive) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

func (a *Archive) setLastErr(err error) error {
	a.lastErr = err
	return err
}

// SetCustomKey installs a 256-byte XOR key applied to every payload read
// from disk, encrypted or not, before DES, per original_source's ApplyCustomKey. Most archives
// do not use one; ClearCustomKey removes it.
func (a *Archive) SetCustomKey(key [256]byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	k := key
	a.customKey = &k
}

// ClearCustomKey removes any installed custom key, zeroing it first.
func (a *Archive) ClearCustomKey() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.customKey != nil {
		for i := range a.customKey {
			a.customKey[i] = 0
		}
		a.customKey = nil
	}
}

// Close releases the Archive's file handle. It does not implicitly Save.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// New creates an empty, in-memory Archive of the given version. Callers
// typically follow it with AddFile calls and SaveAs to a path.
func New(version Version) (*Archive, error) {
	if !version.IsSupported() {
		return nil, newError("New", KindUnsupportedVersion, nil)
	}
	return &Archive{
		header: Header{
			Version: version,
		},
		entries: make(map[string]*Entry),
		cipher:  descrypt.Default(),
	}, nil
}
