package filestore

import (
	"strings"
	"time"
)

// Bucket describes a storage bucket.
type Bucket struct {
	// Name is the bucket name.
	Name string

	// CreatedAt is when the bucket was created.
	// May be zero if the backend does not expose creation time.
	CreatedAt time.Time
}

// ObjectEntry describes one entry of an object listing.
type ObjectEntry struct {
	// Key is the full object path within the bucket (e.g. "images/photo.jpg").
	Key string

	// Size is the byte size of the object.
	Size int64

	// LastModified is when the object was last written.
	// Zero for common prefixes.
	LastModified time.Time

	// ETag is the object's entity tag as returned by the store.
	ETag string

	// IsPrefix is true when the entry is a delimiter-grouped common prefix
	// rather than a stored object.
	IsPrefix bool
}

// IsFolder reports whether the entry stands for a folder: either a common
// prefix or a folder marker object.
func (o ObjectEntry) IsFolder() bool {
	return o.IsPrefix || o.IsFolderMarker()
}

// IsFolderMarker reports whether the entry is a zero-byte object whose key
// ends in "/".
func (o ObjectEntry) IsFolderMarker() bool {
	return !o.IsPrefix && o.Size == 0 && strings.HasSuffix(o.Key, Delimiter)
}

// ConnectionStatus is the outcome of TestConnection.
type ConnectionStatus int

const (
	StatusOK ConnectionStatus = iota
	StatusForbidden
	StatusFailed
	StatusUnknownError
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusForbidden:
		return "forbidden"
	case StatusFailed:
		return "failed"
	default:
		return "unknown_error"
	}
}

// ProgressEvent reports cumulative download progress.
type ProgressEvent struct {
	// BytesTransferred is the number of bytes received so far. It never
	// decreases within one operation.
	BytesTransferred int64

	// TotalBytes is the object size, or 0 when the store did not report it.
	TotalBytes int64
}

// Percent returns the completed share in [0,100], or -1 when the total is
// unknown.
func (e ProgressEvent) Percent() float64 {
	if e.TotalBytes <= 0 {
		return -1
	}
	return float64(e.BytesTransferred) / float64(e.TotalBytes) * 100
}

// ProgressSink receives progress during a download. It runs synchronously
// on the goroutine performing the download. Returning false cancels the
// download.
type ProgressSink func(ProgressEvent) bool

// RenamePhase is a step of the copy-then-delete rename.
type RenamePhase string

const (
	PhaseCopying  RenamePhase = "copying"
	PhaseDeleting RenamePhase = "deleting"
	PhaseDone     RenamePhase = "done"
)
