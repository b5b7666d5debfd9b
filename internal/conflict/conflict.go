// Package conflict detects name collisions between upload candidates
// and the last-known remote listing, and computes final target names
// under a chosen strategy.
package conflict

import (
	"fmt"
	"strings"

	"github.com/mhollis/skiff/internal/collect"
	"github.com/mhollis/skiff/internal/vpath"
)

// Strategy selects how a name collision is handled.
type Strategy string

const (
	// Skip drops conflicting candidates entirely.
	Skip Strategy = "skip"

	// Rename keeps the candidate under a unique " (2)", " (3)", ...
	// suffixed name.
	Rename Strategy = "rename"

	// Replace deletes the existing file before uploading in place.
	// Candidates destined for a nested subdirectory degrade to Rename,
	// since replace semantics only exist for the batch's own folder.
	Replace Strategy = "replace"
)

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case Skip, Rename, Replace:
		return true
	}
	return false
}

// Resolution is a candidate with its final name and destination
// decided.
type Resolution struct {
	Candidate       collect.Candidate
	TargetName      string
	DestinationPath string // virtual directory the file must end up in
	ReplaceExisting bool
}

// TargetPath returns the full virtual path of the resolved upload.
func (r Resolution) TargetPath() string {
	return vpath.Join(r.DestinationPath, r.TargetName)
}

// Resolve decides final target names for candidates headed into
// destPath. existingNames is the file-name set of the currently known
// listing of destPath; directories never conflict with uploads.
//
// A conflict exists only when a candidate lands directly in destPath
// (no subdirectory component) and its name matches an existing file
// exactly. Reserved-name bookkeeping is scoped per resolved destination
// directory so a batch fanning out into nested folders cannot clash
// across them, and allocation is strictly sequential in input order.
func Resolve(destPath string, candidates []collect.Candidate, existingNames map[string]bool, strategy Strategy) []Resolution {
	destPath = vpath.Normalize(destPath)
	reserved := make(map[string]map[string]bool)

	reserve := func(dir, name string) {
		if reserved[dir] == nil {
			reserved[dir] = make(map[string]bool)
		}
		reserved[dir][name] = true
	}

	var out []Resolution
	for _, cand := range candidates {
		name := cand.Name()
		dir := vpath.Join(destPath, cand.Dir())
		direct := cand.Dir() == ""

		conflicting := direct && existingNames[name]

		switch {
		case !conflicting:
			// Still avoid clashing with names reserved by earlier
			// candidates in the same batch.
			if reserved[dir][name] {
				name = uniqueName(name, taken(dir, direct, existingNames, reserved))
			}

		case strategy == Skip:
			continue

		case strategy == Replace && direct:
			reserve(dir, name)
			out = append(out, Resolution{
				Candidate:       cand,
				TargetName:      name,
				DestinationPath: dir,
				ReplaceExisting: true,
			})
			continue

		default:
			// Rename, or Replace degraded for a nested destination.
			name = uniqueName(name, taken(dir, direct, existingNames, reserved))
		}

		reserve(dir, name)
		out = append(out, Resolution{
			Candidate:       cand,
			TargetName:      name,
			DestinationPath: dir,
		})
	}

	return out
}

// taken merges remote names (only meaningful for the batch's own
// destination) with names reserved so far in dir.
func taken(dir string, direct bool, existing map[string]bool, reserved map[string]map[string]bool) func(string) bool {
	return func(name string) bool {
		if direct && existing[name] {
			return true
		}
		return reserved[dir][name]
	}
}

// uniqueName appends " (2)", " (3)", ... before the extension until
// the name is free.
func uniqueName(name string, inUse func(string) bool) string {
	if !inUse(name) {
		return name
	}

	stem, ext := splitExt(name)
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if !inUse(candidate) {
			return candidate
		}
	}
}

// splitExt splits on the last dot, keeping dotfiles whole.
func splitExt(name string) (stem, ext string) {
	i := strings.LastIndex(name, ".")
	if i <= 0 {
		return name, ""
	}
	return name[:i], name[i:]
}
