// Package vpath implements the virtual path algebra used across skiff.
//
// A virtual path is an absolute forward-slash path with "." and ".."
// resolved and empty segments collapsed. "/" denotes the root. Virtual
// paths are rooted independently of the backend's filesystem layout; the
// remote package translates them into upstream URLs.
package vpath

import "strings"

// Root is the normalized root path.
const Root = "/"

// Normalize resolves raw into a canonical absolute virtual path.
// Backslashes are accepted as separators, segments are trimmed, "." and
// empty segments are dropped, and ".." pops the previous segment without
// ever escaping the root. Normalize is idempotent.
func Normalize(raw string) string {
	segs := Segments(raw)
	if len(segs) == 0 {
		return Root
	}
	return "/" + strings.Join(segs, "/")
}

// Segments splits raw into its resolved path segments. The root yields
// an empty slice.
func Segments(raw string) []string {
	raw = strings.ReplaceAll(raw, "\\", "/")
	var segs []string
	for _, seg := range strings.Split(raw, "/") {
		seg = strings.TrimSpace(seg)
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(segs) > 0 {
				segs = segs[:len(segs)-1]
			}
		default:
			segs = append(segs, seg)
		}
	}
	return segs
}

// Join appends child to base and normalizes the result. Child may be a
// multi-segment relative path; ".." in child cannot escape above base's
// root because normalization never pops past it.
func Join(base, child string) string {
	return Normalize(base + "/" + child)
}

// Parent returns the directory containing p. The boolean is false only
// for the root, which has no parent.
func Parent(p string) (string, bool) {
	segs := Segments(p)
	if len(segs) == 0 {
		return "", false
	}
	if len(segs) == 1 {
		return Root, true
	}
	return "/" + strings.Join(segs[:len(segs)-1], "/"), true
}

// LeafName returns the final segment of p. The boolean is false only
// for the root.
func LeafName(p string) (string, bool) {
	segs := Segments(p)
	if len(segs) == 0 {
		return "", false
	}
	return segs[len(segs)-1], true
}

// IsRoot reports whether p normalizes to the root.
func IsRoot(p string) bool {
	return len(Segments(p)) == 0
}

// NormalizeRelative resolves raw with the same segment rules as
// Normalize but keeps the result relative (no leading slash). An input
// that resolves to nothing yields the empty string.
func NormalizeRelative(raw string) string {
	return strings.Join(Segments(raw), "/")
}
