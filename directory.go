package grf

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/icza/grf/internal/pathnorm"
)

// normalizeForStorage canonicalizes a name for use as a directory-map key
// (spec §4.3).
func normalizeForStorage(name string) string {
	return pathnorm.Normalize(name)
}

// GetEntry returns a copy of the live entry for name, or
// (nil, false) if it does not exist or has been deleted.
func (a *Archive) GetEntry(name string) (*Entry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[normalizeForStorage(name)]
	if !ok || e.isDeleted {
		return nil, false
	}
	return e.clone(), true
}

// ListNames returns the canonical names of every live entry whose name
// matches the glob pattern (spec §4.3). A '*' in the pattern never matches
// across a '\' separator, so "*" alone lists only names with no directory
// part.
func (a *Archive) ListNames(pattern string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	re := pathnorm.CompileGlob(pattern)
	names := make([]string, 0, len(a.entries))
	for name, e := range a.entries {
		if e.isDeleted {
			continue
		}
		if re.MatchString(name) {
			names = append(names, name)
		}
	}
	return names
}

// writeFileUnder writes data to destDir/relName, creating parent
// directories as needed. relName is a canonical backslash-separated name;
// it is converted to the host's separator before joining.
func writeFileUnder(destDir, relName string, data []byte) error {
	rel := strings.ReplaceAll(relName, `\`, string(filepath.Separator))
	full := filepath.Join(destDir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, data, 0o644)
}
