// Package patcher implements the merge engine: applying one or many PATCH
// archives to either an ARC container or a plain filesystem tree, and
// tracking the monotonically increasing local version index that decides
// which patches remain to be applied.
package patcher

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/icza/grf"
	"github.com/icza/grf/thor"
)

// Mode selects how ApplyPatch merges a patch's entries.
type Mode int

const (
	// Auto follows the patch's own UseGrfMerging flag.
	Auto Mode = iota
	// ArcMerge adds/removes entries in an ARC container.
	ArcMerge
	// DiskExtract writes/deletes files under a directory tree.
	DiskExtract
)

// LocalVersionFile is the name of the text file recording the last
// successfully applied patch index, relative to the client directory.
const LocalVersionFile = "plist.version"

// Options configures ApplyPatch and ApplyPatches.
type Options struct {
	// Mode selects the merge strategy; Auto defers to the patch itself.
	Mode Mode

	// ExtractDirectory is the client root: where ArcMerge resolves
	// TargetGrf against, and where DiskExtract writes/deletes files.
	ExtractDirectory string

	// TargetGrf names the ARC to merge into when the patch itself carries
	// no target name. Ignored in DiskExtract mode.
	TargetGrf string

	// Backup copies the target ARC to "<name>.backup" before modifying it.
	// A backup failure is not fatal; merging proceeds regardless.
	Backup bool

	// ContinueOnError, for ApplyPatches, keeps applying subsequent patches
	// after one fails instead of aborting the batch.
	ContinueOnError bool
}

// Result tallies the outcome of applying one or more patches.
type Result struct {
	FilesAdded   int
	FilesRemoved int
	BytesWritten int64
}

func (r *Result) add(other Result) {
	r.FilesAdded += other.FilesAdded
	r.FilesRemoved += other.FilesRemoved
	r.BytesWritten += other.BytesWritten
}

// ApplyPatch opens the patch at thorPath and merges its entries per
// options, into an ARC (ArcMerge) or onto disk (DiskExtract). Auto mode
// follows the patch's own UseGrfMerging flag.
func ApplyPatch(thorPath string, options Options) (Result, error) {
	t, err := thor.Open(thorPath)
	if err != nil {
		return Result{}, newError("ApplyPatch", KindOpenFailed, err)
	}
	defer t.Close()

	mode := options.Mode
	if mode == Auto {
		if t.Header().UseGrfMerging {
			mode = ArcMerge
		} else {
			mode = DiskExtract
		}
	}

	if mode == ArcMerge {
		return applyToArc(t, options)
	}
	return applyToDisk(t, options)
}

func applyToArc(t *thor.Archive, options Options) (Result, error) {
	targetName := options.TargetGrf
	if name := t.Header().TargetArcName; name != "" {
		targetName = name
	}
	arcPath := filepath.Join(options.ExtractDirectory, targetName)

	if options.Backup {
		if err := copyFile(arcPath, arcPath+".backup"); err != nil {
			log.WithError(err).Warn("patcher: backup failed, continuing without one")
		}
	}

	a, err := grf.Open(arcPath)
	if err != nil {
		return Result{}, newError("ApplyPatch", KindOpenFailed, err)
	}
	defer a.Close()

	var result Result
	for _, e := range t.Entries() {
		if thor.IsIntegrityEntry(e.RelativePath) {
			continue
		}
		if e.IsRemoved {
			if err := a.RemoveFile(e.RelativePath); err == nil {
				result.FilesRemoved++
			}
			continue
		}

		data, err := t.ReadFileContent(e.RelativePath)
		if err != nil {
			log.WithError(err).WithField("file", e.RelativePath).Warn("patcher: skipping unreadable entry")
			continue
		}
		if err := a.AddFile(e.RelativePath, data, true); err != nil {
			log.WithError(err).WithField("file", e.RelativePath).Warn("patcher: skipping entry that could not be added")
			continue
		}
		result.FilesAdded++
		result.BytesWritten += int64(len(data))
	}

	if err := a.Save(nil); err != nil {
		return result, newError("ApplyPatch", KindWriteFailed, err)
	}
	return result, nil
}

func applyToDisk(t *thor.Archive, options Options) (Result, error) {
	var result Result
	for _, e := range t.Entries() {
		if thor.IsIntegrityEntry(e.RelativePath) {
			continue
		}
		outPath := filepath.Join(options.ExtractDirectory, filepath.FromSlash(strings.ReplaceAll(e.RelativePath, `\`, "/")))

		if e.IsRemoved {
			if err := os.Remove(outPath); err == nil {
				result.FilesRemoved++
			}
			continue
		}

		data, err := t.ReadFileContent(e.RelativePath)
		if err != nil {
			log.WithError(err).WithField("file", e.RelativePath).Warn("patcher: skipping unreadable entry")
			continue
		}
		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			continue
		}
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			continue
		}
		result.FilesAdded++
		result.BytesWritten += int64(len(data))
	}
	return result, nil
}

// ApplyPatches applies each patch in thorPaths, in order, aggregating the
// combined Result. When options.ContinueOnError is false, the first
// failing patch aborts the batch and its error is returned alongside the
// Result accumulated so far.
func ApplyPatches(thorPaths []string, options Options) (Result, error) {
	var total Result
	for _, path := range thorPaths {
		r, err := ApplyPatch(path, options)
		total.add(r)
		if err != nil {
			log.WithError(err).WithField("patch", path).Warn("patcher: patch application failed")
			if !options.ContinueOnError {
				return total, err
			}
		}
	}
	return total, nil
}

// ReadLocalVersion reads the last-applied patch index from
// dir/plist.version. A missing file reads as version 0, matching a
// client that has never been patched.
func ReadLocalVersion(dir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(dir, LocalVersionFile))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, newError("ReadLocalVersion", KindReadFailed, err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, newError("ReadLocalVersion", KindReadFailed, err)
	}
	return v, nil
}

// WriteLocalVersion persists version to dir/plist.version.
func WriteLocalVersion(dir string, version int) error {
	path := filepath.Join(dir, LocalVersionFile)
	if err := os.WriteFile(path, []byte(strconv.Itoa(version)), 0o644); err != nil {
		return newError("WriteLocalVersion", KindWriteFailed, err)
	}
	return nil
}

// GetPatchesToApply returns the entries of list whose index exceeds
// localVersion, sorted ascending by index.
func GetPatchesToApply(list []thor.ListEntry, localVersion int) []thor.ListEntry {
	var out []thor.ListEntry
	for _, e := range list {
		if e.Index > localVersion {
			out = append(out, e)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].Index > out[j].Index; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
