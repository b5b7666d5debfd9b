package remote_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhollis/skiff/internal/config"
	"github.com/mhollis/skiff/internal/models"
	"github.com/mhollis/skiff/internal/remote"
)

const listingFixture = `{
  "acct": "demo",
  "srvinf": "backend 1.2",
  "dirs": [
    {"href": "music/", "ts": 1700000000},
    {"name": "archive", "href": "archive/", "ts": 1700000000}
  ],
  "files": [
    {"name": "file10.txt", "href": "file10.txt", "sz": 100, "ts": 1700000000, "ext": "txt"},
    {"name": "file2.txt", "href": "file2.txt", "sz": 50, "ts": 1700000000000, "ext": "%"},
    {"href": "my%20song.flac?cache=1#frag", "sz": 3000, "ts": 1700000000, "ext": "-", "tags": {"artist": "someone", "track": 7}},
    {"name": ".bashrc", "href": ".bashrc", "sz": 10, "ts": 1700000000, "ext": "%"},
    {"name": "", "href": "", "sz": 1, "ts": 0}
  ]
}`

func listingServer(t *testing.T, status int, body string, seen *http.Request) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			*seen = *r
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func newListingClient(t *testing.T, baseURL string) *remote.ListingClient {
	t.Helper()
	conn := testConn(t, config.BackendConfig{
		BaseURL:  baseURL,
		Password: "pw123",
	})
	return remote.NewListingClient(conn, zerolog.Nop())
}

func TestListParsesEntries(t *testing.T) {
	var seen http.Request
	server := listingServer(t, http.StatusOK, listingFixture, &seen)
	defer server.Close()

	client := newListingClient(t, server.URL)
	listing := client.List(context.Background(), "/media", "")

	require.Empty(t, listing.Err)
	assert.Equal(t, "demo", listing.Account)
	assert.Equal(t, "backend 1.2", listing.ServerInfo)

	// Request shape: JSON listing with the password attached.
	assert.Equal(t, "application/json", seen.Header.Get("Accept"))
	q := seen.URL.Query()
	assert.True(t, q.Has("ls"))
	assert.Equal(t, "pw123", q.Get("pw"))

	// Directory names fall back to href; dirs carry the child path.
	require.Len(t, listing.Directories, 2)
	assert.Equal(t, "archive", listing.Directories[0].Name)
	assert.Equal(t, "music", listing.Directories[1].Name)
	assert.Equal(t, "/media/music", listing.Directories[1].NextPath)
	assert.Equal(t, models.KindDir, listing.Directories[1].Kind)

	require.Len(t, listing.Files, 5)
	assert.Equal(t, int64(3161), listing.TotalBytes)
}

func TestListNameFallbackAndPlaceholder(t *testing.T) {
	server := listingServer(t, http.StatusOK, listingFixture, nil)
	defer server.Close()

	listing := newListingClient(t, server.URL).List(context.Background(), "/", "")
	require.Empty(t, listing.Err)

	var names []string
	for _, f := range listing.Files {
		names = append(names, f.Name)
	}

	// Percent-decoded name from href, query and fragment stripped.
	assert.Contains(t, names, "my song.flac")
	// Entry with no name and no href gets the placeholder, never "".
	assert.Contains(t, names, "(unnamed)")
	assert.NotContains(t, names, "")
}

func TestListExtensionRules(t *testing.T) {
	server := listingServer(t, http.StatusOK, listingFixture, nil)
	defer server.Close()

	listing := newListingClient(t, server.URL).List(context.Background(), "/", "")
	require.Empty(t, listing.Err)

	byName := map[string]models.InventoryEntry{}
	for _, f := range listing.Files {
		byName[f.Name] = f
	}

	// Explicit extension preferred.
	assert.Equal(t, "txt", byName["file10.txt"].Extension)
	// Sentinel "%" ignored, derived from name instead.
	assert.Equal(t, "txt", byName["file2.txt"].Extension)
	// Sentinel "-" ignored, derived from href-based name.
	assert.Equal(t, "flac", byName["my song.flac"].Extension)
	// Dotfiles never produce an extension.
	assert.Equal(t, "", byName[".bashrc"].Extension)
}

func TestListNumericSort(t *testing.T) {
	server := listingServer(t, http.StatusOK, listingFixture, nil)
	defer server.Close()

	listing := newListingClient(t, server.URL).List(context.Background(), "/", "")
	require.Empty(t, listing.Err)

	idx := map[string]int{}
	for i, f := range listing.Files {
		idx[f.Name] = i
	}
	assert.Less(t, idx["file2.txt"], idx["file10.txt"], "numeric-aware sort")
}

func TestListHrefResolvedUnderListingDirectory(t *testing.T) {
	server := listingServer(t, http.StatusOK,
		`{"dirs": [], "files": [{"name": "song.mp3", "href": "song.mp3", "sz": 9}]}`, nil)
	defer server.Close()

	listing := newListingClient(t, server.URL).List(context.Background(), "/deep/nested", "")
	require.Empty(t, listing.Err)
	require.Len(t, listing.Files, 1)

	href, err := url.Parse(listing.Files[0].Href)
	require.NoError(t, err)
	assert.Equal(t, "/deep/nested/song.mp3", href.Path)
	assert.Equal(t, "pw123", href.Query().Get("pw"), "href must stay authenticated")
}

func TestListTimestampUnits(t *testing.T) {
	server := listingServer(t, http.StatusOK, listingFixture, nil)
	defer server.Close()

	listing := newListingClient(t, server.URL).List(context.Background(), "/", "")
	require.Empty(t, listing.Err)

	byName := map[string]models.InventoryEntry{}
	for _, f := range listing.Files {
		byName[f.Name] = f
	}

	// Seconds and milliseconds for the same instant produce the same label.
	assert.Equal(t, byName["file10.txt"].Modified, byName["file2.txt"].Modified)
	assert.NotEmpty(t, byName["file10.txt"].Modified)
}

func TestListAbsorbsHTTPFailure(t *testing.T) {
	server := listingServer(t, http.StatusBadGateway, "gateway down", nil)
	defer server.Close()

	listing := newListingClient(t, server.URL).List(context.Background(), "/docs", "")

	assert.NotEmpty(t, listing.Err)
	assert.Contains(t, listing.Err, "502")
	assert.Empty(t, listing.Files)
	assert.Empty(t, listing.Directories)
	assert.Equal(t, "/docs", listing.Path)
}

func TestListAbsorbsBadJSON(t *testing.T) {
	server := listingServer(t, http.StatusOK, "<html>not json</html>", nil)
	defer server.Close()

	listing := newListingClient(t, server.URL).List(context.Background(), "/", "")
	assert.NotEmpty(t, listing.Err)
	assert.Empty(t, listing.Files)
}
