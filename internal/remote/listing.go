package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/mhollis/skiff/internal/models"
	"github.com/mhollis/skiff/internal/vpath"
)

// placeholderName substitutes for entries with neither a usable name
// nor href, so a single malformed row never fails a whole listing.
const placeholderName = "(unnamed)"

// extension sentinels the backend emits when it has no extension to
// offer; derivation from the name takes over instead.
var extSentinels = map[string]bool{"": true, "-": true, "%": true}

// rawEntry is one row of the backend's listing payload.
type rawEntry struct {
	Name string                 `json:"name"`
	Href string                 `json:"href"`
	Size int64                  `json:"sz"`
	TS   float64                `json:"ts"`
	Ext  string                 `json:"ext"`
	Tags map[string]interface{} `json:"tags"`
}

type rawListing struct {
	Dirs   []rawEntry `json:"dirs"`
	Files  []rawEntry `json:"files"`
	Acct   string     `json:"acct"`
	Srvinf string     `json:"srvinf"`
}

// ListingClient fetches and types remote directory listings. Failures
// are absorbed into the Listing's Err field; List never returns an
// error.
type ListingClient struct {
	conn     *Connection
	logger   zerolog.Logger
	collator *collate.Collator
}

// NewListingClient creates a listing client.
func NewListingClient(conn *Connection, logger zerolog.Logger) *ListingClient {
	return &ListingClient{
		conn:   conn,
		logger: logger.With().Str("component", "listing").Logger(),
		// Numeric collation so file2 sorts before file10.
		collator: collate.New(language.Und, collate.Numeric, collate.IgnoreCase),
	}
}

// List fetches the listing at vp. Entry hrefs are resolved against the
// listed directory's public URL, so a bare filename in the payload lands
// beneath the directory being listed. inboundOrigin feeds loopback-host
// rewriting and may be empty.
func (l *ListingClient) List(ctx context.Context, vp, inboundOrigin string) *models.Listing {
	vp = vpath.Normalize(vp)

	req, err := l.conn.NewRequest(ctx, http.MethodGet, vp, nil)
	if err != nil {
		return l.failed(vp, err)
	}

	q := req.URL.Query()
	q.Set("ls", "")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")

	resp, err := l.conn.DoTimed(req)
	if err != nil {
		return l.failed(vp, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return l.failed(vp, fmt.Errorf("upstream unavailable: HTTP %d", resp.StatusCode))
	}

	var raw rawListing
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return l.failed(vp, fmt.Errorf("upstream unavailable: bad listing payload: %w", err))
	}

	dirBase := l.conn.PublicURL(vp, inboundOrigin)
	if !strings.HasSuffix(dirBase.Path, "/") {
		dirBase.Path += "/"
	}

	listing := &models.Listing{
		Path:       vp,
		Account:    raw.Acct,
		ServerInfo: raw.Srvinf,
	}

	for _, r := range raw.Dirs {
		e := l.mapEntry(r, models.KindDir, vp, dirBase)
		listing.Directories = append(listing.Directories, e)
	}
	for _, r := range raw.Files {
		e := l.mapEntry(r, models.KindFile, vp, dirBase)
		listing.TotalBytes += e.Size
		listing.Files = append(listing.Files, e)
	}

	l.sortEntries(listing.Directories)
	l.sortEntries(listing.Files)

	l.logger.Debug().
		Str("path", vp).
		Int("dirs", len(listing.Directories)).
		Int("files", len(listing.Files)).
		Int64("bytes", listing.TotalBytes).
		Msg("listed directory")

	return listing
}

func (l *ListingClient) failed(vp string, err error) *models.Listing {
	l.logger.Warn().Str("path", vp).Err(err).Msg("listing failed")
	return &models.Listing{Path: vp, Err: err.Error()}
}

func (l *ListingClient) mapEntry(r rawEntry, kind models.EntryKind, dirPath string, dirBase *url.URL) models.InventoryEntry {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		name = nameFromHref(r.Href)
	}
	if name == "" {
		name = placeholderName
	}

	e := models.InventoryEntry{
		Kind:       kind,
		Name:       name,
		Href:       resolveHref(dirBase, r.Href),
		Modified:   modifiedLabel(r.TS),
		ModifiedTS: int64(r.TS),
		Tags:       stringTags(r.Tags),
	}

	if kind == models.KindFile {
		if e.Size = r.Size; e.Size < 0 {
			e.Size = 0
		}
		e.Extension = resolveExtension(r.Ext, name)
	} else {
		e.NextPath = vpath.Join(dirPath, name)
	}

	return e
}

func (l *ListingClient) sortEntries(entries []models.InventoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return l.collator.CompareString(entries[i].Name, entries[j].Name) < 0
	})
}

// nameFromHref derives a display name from an entry's href: strip
// query and fragment, drop a trailing slash, take the last path
// segment, percent-decode.
func nameFromHref(href string) string {
	if href == "" {
		return ""
	}

	path := href
	if u, err := url.Parse(href); err == nil {
		path = u.Path
	} else {
		if i := strings.IndexAny(path, "?#"); i >= 0 {
			path = path[:i]
		}
	}

	path = strings.TrimRight(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}

	if decoded, err := url.PathUnescape(path); err == nil {
		path = decoded
	}
	return strings.TrimSpace(path)
}

// resolveHref makes href absolute and authenticated relative to the
// listed directory's URL, not the backend root.
func resolveHref(dirBase *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return dirBase.String()
	}

	resolved := dirBase.ResolveReference(ref)

	// ResolveReference drops the directory's query when the ref has its
	// own path; re-attach the auth parameter from the base.
	q := resolved.Query()
	if pw := dirBase.Query().Get(passwordParam); pw != "" && q.Get(passwordParam) == "" {
		q.Set(passwordParam, pw)
		resolved.RawQuery = q.Encode()
	}

	return resolved.String()
}

// resolveExtension prefers an explicit non-sentinel extension field,
// then derives from the name's last dot — unless that dot is the first
// or last character, so dotfiles and trailing dots yield nothing.
func resolveExtension(explicit, name string) string {
	explicit = strings.TrimSpace(explicit)
	if !extSentinels[strings.ToLower(explicit)] {
		return strings.ToLower(explicit)
	}

	i := strings.LastIndex(name, ".")
	if i <= 0 || i == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

func modifiedLabel(ts float64) string {
	t := models.ModTime(int64(ts))
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func stringTags(tags map[string]interface{}) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		if s, ok := v.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}
