package grf

import (
	"os"
	"path/filepath"
	"strings"
)

// AddDirectory walks srcDir and AddFiles every regular file found under it,
// keyed by its path relative to srcDir. It is best-effort per spec §7: a
// failure on one file does not abort the walk, and the first error
// encountered is returned alongside the count of files actually added.
func (a *Archive) AddDirectory(srcDir string, compress bool, progress ProgressFunc) (added int, firstErr error) {
	var paths []string
	_ = filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})

	cb := throttle(progress, 1)
	for i, path := range paths {
		if !cb(i, len(paths)) {
			return added, firstErr
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		name := strings.ReplaceAll(rel, string(filepath.Separator), `\`)
		if err := a.AddFile(name, data, compress); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		added++
	}
	return added, firstErr
}
