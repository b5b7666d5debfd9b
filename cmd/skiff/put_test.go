package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhollis/skiff/internal/collect"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func relPaths(candidates []collect.Candidate) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.RelPath)
	}
	return out
}

func TestCollectLocalMixedArgs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "single.txt"), "s")
	writeFile(t, filepath.Join(dir, "album", "cover.png"), "c")
	writeFile(t, filepath.Join(dir, "album", "tracks", "one.mp3"), "1")

	collector := collect.NewCollector(zerolog.Nop())
	err := collectLocal(context.Background(), collector,
		[]string{filepath.Join(dir, "single.txt"), filepath.Join(dir, "album")}, true)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"single.txt",
		"album/cover.png",
		"album/tracks/one.mp3",
	}, relPaths(collector.Candidates()))
}

func TestCollectLocalWithoutRootDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "album", "cover.png"), "c")

	collector := collect.NewCollector(zerolog.Nop())
	err := collectLocal(context.Background(), collector,
		[]string{filepath.Join(dir, "album")}, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"cover.png"}, relPaths(collector.Candidates()))
}

func TestCollectLocalMissingPath(t *testing.T) {
	collector := collect.NewCollector(zerolog.Nop())
	err := collectLocal(context.Background(), collector,
		[]string{filepath.Join(t.TempDir(), "nope")}, true)
	require.Error(t, err)
}
