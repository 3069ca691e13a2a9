// Package filestore defines the object store client contract.
//
// The client is stateless from the caller's point of view: every operation
// takes the full ConnectionParams, so credentials may change between calls
// and nothing has to be opened or closed around them. Implementations may
// cache transport clients internally.
//
// Every error returned by a Client is an *errs.Error.
//
// Usage:
//
//	params := filestore.DefaultParams("localhost:9000", "minioadmin", "minioadmin")
//	client := minio.New(minio.WithLogger(log))
//	defer client.Close()
//
//	buckets, err := client.ListBuckets(ctx, params)
package filestore

import "context"

// Client is the single interface all object store drivers implement.
type Client interface {
	// TestConnection checks that the store is reachable with params. When
	// bucket is set the check is scoped to that bucket.
	TestConnection(ctx context.Context, params ConnectionParams, bucket string) ConnectionStatus

	// ListBuckets returns every bucket visible to the credentials, in store order.
	ListBuckets(ctx context.Context, params ConnectionParams) ([]Bucket, error)

	// ListObjects returns one folder level under prefix, grouped by
	// delimiter ("/" when empty). All result pages are aggregated.
	// Common prefixes come back as entries with IsPrefix set.
	ListObjects(ctx context.Context, params ConnectionParams, bucket, prefix, delimiter string) ([]ObjectEntry, error)

	// CreateFolderMarker creates a zero-byte object whose key ends in "/".
	CreateFolderMarker(ctx context.Context, params ConnectionParams, bucket, folderPath string) error

	// UploadObject streams the local file at localPath to key.
	UploadObject(ctx context.Context, params ConnectionParams, bucket, key, localPath string) error

	// DownloadObjectToFile streams key into localPath, reporting progress to
	// sink (may be nil). A sink returning false aborts with ErrKindCancelled
	// and no file is left at localPath.
	DownloadObjectToFile(ctx context.Context, params ConnectionParams, bucket, key, localPath string, sink ProgressSink) error

	// DownloadObjectToBuffer reads a small object fully into memory.
	DownloadObjectToBuffer(ctx context.Context, params ConnectionParams, bucket, key string) ([]byte, error)

	// RenameObject copies oldKey to newKey and then deletes oldKey.
	RenameObject(ctx context.Context, params ConnectionParams, bucket, oldKey, newKey string) error

	// DeleteObject removes key.
	DeleteObject(ctx context.Context, params ConnectionParams, bucket, key string) error

	// Close releases cached transport clients.
	Close() error
}
