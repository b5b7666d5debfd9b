package models

import "time"

// EntryKind distinguishes directories from files in a listing.
type EntryKind string

const (
	KindDir  EntryKind = "dir"
	KindFile EntryKind = "file"
)

// msThreshold disambiguates the backend's numeric modification time.
// Values above it are taken as milliseconds, below as seconds. 1e11
// seconds is year 5138, so no plausible seconds value crosses it.
const msThreshold = 1e11

// InventoryEntry is one row of a remote directory listing. Entries are
// immutable and replaced wholesale on every listing fetch.
type InventoryEntry struct {
	Kind       EntryKind         `json:"kind"`
	Name       string            `json:"name"`
	Href       string            `json:"href"`
	Size       int64             `json:"size"`
	Modified   string            `json:"modified"`
	ModifiedTS int64             `json:"modifiedTs"`
	Extension  string            `json:"extension,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`

	// NextPath is the virtual path of a directory entry, empty for
	// files.
	NextPath string `json:"nextPath,omitempty"`
}

// ModTime interprets a raw numeric modification timestamp, applying the
// milliseconds-vs-seconds magnitude heuristic.
func ModTime(raw int64) time.Time {
	if raw <= 0 {
		return time.Time{}
	}
	if raw > msThreshold {
		return time.UnixMilli(raw)
	}
	return time.Unix(raw, 0)
}

// Listing is the typed result of one remote listing call. Failures are
// absorbed: a listing with Err set is still well formed with empty
// slices, so one bad directory never crashes a browsing session.
type Listing struct {
	Path        string           `json:"path"`
	Directories []InventoryEntry `json:"directories"`
	Files       []InventoryEntry `json:"files"`
	Account     string           `json:"account,omitempty"`
	ServerInfo  string           `json:"serverInfo,omitempty"`
	TotalBytes  int64            `json:"totalBytes"`

	// Err holds a human-readable error string when the fetch failed.
	// Distinct from NotConfigured, which is signalled before any
	// listing is attempted.
	Err string `json:"error,omitempty"`
}

// FileNames returns the set of file names in the listing, used for
// conflict detection against incoming uploads.
func (l *Listing) FileNames() map[string]bool {
	names := make(map[string]bool, len(l.Files))
	for _, f := range l.Files {
		names[f.Name] = true
	}
	return names
}
