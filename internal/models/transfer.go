package models

import "time"

// TransferStatus is the lifecycle state of a transfer item.
//
// Valid transitions: queued -> uploading -> {complete|error}, plus
// queued -> error for cancellation before start. Nothing leaves
// complete or error except removal from history.
type TransferStatus string

const (
	StatusQueued    TransferStatus = "queued"
	StatusUploading TransferStatus = "uploading"
	StatusComplete  TransferStatus = "complete"
	StatusError     TransferStatus = "error"
)

// Active reports whether the status still holds queue resources.
func (s TransferStatus) Active() bool {
	return s == StatusQueued || s == StatusUploading
}

// TransferItem tracks one file through the upload pipeline. The queue
// mutates it in place as the upload progresses; callers observe copies
// via snapshots and events.
type TransferItem struct {
	ID         string `json:"id"`
	SourceName string `json:"sourceName"`

	// TargetName is the post-conflict-resolution file name.
	// TargetPath is always DestinationPath joined with TargetName.
	TargetName      string `json:"targetName"`
	TargetPath      string `json:"targetPath"`
	DestinationPath string `json:"destinationPath"`

	// UploadPath is the virtual directory the transport physically
	// writes into. When it differs from DestinationPath the upload was
	// flattened and a post-upload move relocates the file.
	UploadPath string `json:"uploadPath"`

	Size     int64          `json:"size"`
	Loaded   int64          `json:"loaded"`
	Progress int            `json:"progress"`
	Status   TransferStatus `json:"status"`

	ReplaceExisting bool   `json:"replaceExisting"`
	Error           string `json:"error,omitempty"`

	EnqueuedAt time.Time `json:"enqueuedAt"`
	FinishedAt time.Time `json:"finishedAt,omitzero"`
}

// Flattened reports whether the item needs a post-upload relocation.
func (t *TransferItem) Flattened() bool {
	return t.UploadPath != "" && t.UploadPath != t.DestinationPath
}
