package vpath_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhollis/skiff/internal/vpath"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "/"},
		{"root", "/", "/"},
		{"simple", "/a/b", "/a/b"},
		{"no leading slash", "a/b", "/a/b"},
		{"trailing slash", "/a/b/", "/a/b"},
		{"double slashes", "//a///b", "/a/b"},
		{"dot segments", "/a/./b/.", "/a/b"},
		{"dotdot resolves", "/a/b/../c", "/a/c"},
		{"dotdot past root", "/../../a", "/a"},
		{"pure dotdot", "/../..", "/"},
		{"backslashes", "\\a\\b\\c", "/a/b/c"},
		{"mixed separators", "/a\\b/c", "/a/b/c"},
		{"whitespace segments", "/ a / b ", "/a/b"},
		{"only whitespace", "/   /  ", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, vpath.Normalize(tt.in))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"", "/", "a/b/../c", "//x//", "\\win\\style", "/../../..",
		"/deep/a/b/c/d", ". /..", "/a/./././b",
	}
	for _, in := range inputs {
		once := vpath.Normalize(in)
		assert.Equal(t, once, vpath.Normalize(once), "input %q", in)
	}
}

func TestNormalizeNeverKeepsSpecialSegments(t *testing.T) {
	inputs := []string{"/a/../b", "/..", "../..", "/a/./b", "//", "/a//b"}
	for _, in := range inputs {
		got := vpath.Normalize(in)
		for _, seg := range vpath.Segments(got) {
			assert.NotEqual(t, "..", seg)
			assert.NotEqual(t, ".", seg)
			assert.NotEmpty(t, seg)
		}
	}
}

func TestJoinParentLeafRoundTrip(t *testing.T) {
	paths := []string{"/a", "/a/b/c", "/x/y", "/file.txt", "/a b/c d.bin"}
	for _, p := range paths {
		parent, ok := vpath.Parent(p)
		require.True(t, ok)
		leaf, ok := vpath.LeafName(p)
		require.True(t, ok)
		assert.Equal(t, vpath.Normalize(p), vpath.Join(parent, leaf))
	}
}

func TestParentAndLeafOfRoot(t *testing.T) {
	_, ok := vpath.Parent("/")
	assert.False(t, ok)

	_, ok = vpath.LeafName("//")
	assert.False(t, ok)

	parent, ok := vpath.Parent("/top")
	require.True(t, ok)
	assert.Equal(t, "/", parent)
}

func TestJoinCannotEscapeBase(t *testing.T) {
	assert.Equal(t, "/safe", vpath.Join("/", "../../safe"))
	assert.Equal(t, "/a/c", vpath.Join("/a", "b/../c"))
	assert.Equal(t, "/", vpath.Join("/a", "../.."))
}

func TestNormalizeRelative(t *testing.T) {
	assert.Equal(t, "a/b", vpath.NormalizeRelative("a//b/"))
	assert.Equal(t, "b", vpath.NormalizeRelative("a/../b"))
	assert.Equal(t, "", vpath.NormalizeRelative("./.."))
	assert.Equal(t, "dir/file.txt", vpath.NormalizeRelative("dir\\file.txt"))
}

func TestIsRoot(t *testing.T) {
	assert.True(t, vpath.IsRoot("/"))
	assert.True(t, vpath.IsRoot("//./"))
	assert.False(t, vpath.IsRoot("/a"))
}
