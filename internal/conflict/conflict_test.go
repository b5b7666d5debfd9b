package conflict_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhollis/skiff/internal/collect"
	"github.com/mhollis/skiff/internal/conflict"
)

func cand(relPath string) collect.Candidate {
	return collect.Candidate{
		Payload: collect.NewMemPayload(relPath, []byte("data"), time.Unix(1700000000, 0)),
		RelPath: relPath,
	}
}

func names(res []conflict.Resolution) []string {
	var out []string
	for _, r := range res {
		out = append(out, r.TargetName)
	}
	return out
}

func TestNoConflictPassesThrough(t *testing.T) {
	existing := map[string]bool{"other.txt": true}
	res := conflict.Resolve("/inbox", []collect.Candidate{cand("notes.txt")}, existing, conflict.Rename)

	require.Len(t, res, 1)
	assert.Equal(t, "notes.txt", res[0].TargetName)
	assert.Equal(t, "/inbox", res[0].DestinationPath)
	assert.Equal(t, "/inbox/notes.txt", res[0].TargetPath())
	assert.False(t, res[0].ReplaceExisting)
}

func TestSkipDropsConflicts(t *testing.T) {
	existing := map[string]bool{"report.csv": true}
	res := conflict.Resolve("/inbox",
		[]collect.Candidate{cand("report.csv"), cand("notes.txt")},
		existing, conflict.Skip)

	assert.Equal(t, []string{"notes.txt"}, names(res))
}

func TestRenameSuffixesInInputOrder(t *testing.T) {
	existing := map[string]bool{"photo.png": true}
	res := conflict.Resolve("/album",
		[]collect.Candidate{cand("photo.png"), cand("photo.png")},
		existing, conflict.Rename)

	assert.Equal(t, []string{"photo (2).png", "photo (3).png"}, names(res))
}

func TestRenameCountsPastTakenSuffixes(t *testing.T) {
	existing := map[string]bool{
		"photo.png":     true,
		"photo (2).png": true,
	}
	res := conflict.Resolve("/album", []collect.Candidate{cand("photo.png")}, existing, conflict.Rename)

	assert.Equal(t, []string{"photo (3).png"}, names(res))
}

func TestRenameExtensionlessAndDotfiles(t *testing.T) {
	existing := map[string]bool{"README": true, ".env": true}
	res := conflict.Resolve("/x",
		[]collect.Candidate{cand("README"), cand(".env")},
		existing, conflict.Rename)

	assert.Equal(t, []string{"README (2)", ".env (2)"}, names(res))
}

func TestReplaceMarksDeleteThenUpload(t *testing.T) {
	existing := map[string]bool{"report.csv": true}
	res := conflict.Resolve("/inbox",
		[]collect.Candidate{cand("report.csv"), cand("notes.txt")},
		existing, conflict.Replace)

	require.Len(t, res, 2)
	assert.Equal(t, "report.csv", res[0].TargetName)
	assert.True(t, res[0].ReplaceExisting)
	assert.Equal(t, "notes.txt", res[1].TargetName)
	assert.False(t, res[1].ReplaceExisting)
}

func TestNestedCandidatesNeverConflictWithListing(t *testing.T) {
	// sub/report.csv does not land directly in the destination, so the
	// existing report.csv is not a conflict for it.
	existing := map[string]bool{"report.csv": true}
	res := conflict.Resolve("/inbox",
		[]collect.Candidate{cand("sub/report.csv")},
		existing, conflict.Skip)

	require.Len(t, res, 1)
	assert.Equal(t, "report.csv", res[0].TargetName)
	assert.Equal(t, "/inbox/sub", res[0].DestinationPath)
	assert.False(t, res[0].ReplaceExisting)
}

func TestSameBatchCollisionWithoutRemoteConflict(t *testing.T) {
	// Two same-named dropped files must not collide with each other
	// even when the remote has no such name.
	res := conflict.Resolve("/inbox",
		[]collect.Candidate{cand("new.bin"), cand("new.bin")},
		map[string]bool{}, conflict.Replace)

	assert.Equal(t, []string{"new.bin", "new (2).bin"}, names(res))
}

func TestReservedNamesScopedPerDestination(t *testing.T) {
	// Identical names in different destination folders never clash.
	res := conflict.Resolve("/inbox",
		[]collect.Candidate{cand("a/file.txt"), cand("b/file.txt")},
		map[string]bool{}, conflict.Rename)

	assert.Equal(t, []string{"file.txt", "file.txt"}, names(res))
	assert.Equal(t, "/inbox/a", res[0].DestinationPath)
	assert.Equal(t, "/inbox/b", res[1].DestinationPath)
}

func TestStrategyValid(t *testing.T) {
	assert.True(t, conflict.Rename.Valid())
	assert.True(t, conflict.Skip.Valid())
	assert.True(t, conflict.Replace.Valid())
	assert.False(t, conflict.Strategy("merge").Valid())
}
