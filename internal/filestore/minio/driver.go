// Package minio provides a minio-go implementation of filestore.Client.
//
// Usage:
//
//	client := minio.New(minio.WithLogger(log), minio.WithObserver(collector))
//	defer client.Close()
//
//	params := filestore.DefaultParams("localhost:9000", "minioadmin", "minioadmin")
//	buckets, err := client.ListBuckets(ctx, params)
package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/koustreak/s3nav/internal/errs"
	"github.com/koustreak/s3nav/internal/filestore"
	"github.com/koustreak/s3nav/internal/logger"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	// DefaultBufferLimit caps DownloadObjectToBuffer.
	DefaultBufferLimit = 16 << 20

	chunkSize = 32 << 10
)

// Observer receives one record per finished operation and the byte counts
// moved by uploads and downloads.
type Observer interface {
	ObserveOperation(op, outcome string, elapsed time.Duration)
	AddBytes(direction string, n int64)
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, string, time.Duration) {}
func (nopObserver) AddBytes(string, int64)                         {}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger operations report to. The default discards.
func WithLogger(l *logger.Logger) Option {
	return func(d *Driver) { d.log = l }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(d *Driver) { d.observer = o }
}

// WithTransport sets the HTTP transport used for every store request.
func WithTransport(rt http.RoundTripper) Option {
	return func(d *Driver) { d.transport = rt }
}

// InsecureTransport returns the store transport with certificate
// verification turned off, for endpoints with self-signed certificates.
func InsecureTransport() (http.RoundTripper, error) {
	tr, err := miniogo.DefaultTransport(true)
	if err != nil {
		return nil, err
	}
	tr.TLSClientConfig.InsecureSkipVerify = true
	return tr, nil
}

// WithBufferLimit sets the largest object DownloadObjectToBuffer accepts.
// Zero or less removes the limit.
func WithBufferLimit(n int64) Option {
	return func(d *Driver) { d.bufferLimit = n }
}

// Driver is a minio-go implementation of filestore.Client.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	log         *logger.Logger
	observer    Observer
	transport   http.RoundTripper
	bufferLimit int64

	mu      sync.Mutex
	clients map[filestore.ConnectionParams]*miniogo.Client
}

var _ filestore.Client = (*Driver)(nil)

// New returns a Driver. No connection is made until the first operation.
func New(opts ...Option) *Driver {
	d := &Driver{
		log:         logger.Nop(),
		observer:    nopObserver{},
		bufferLimit: DefaultBufferLimit,
		clients:     make(map[filestore.ConnectionParams]*miniogo.Client),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Close drops every cached transport client.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clients = make(map[filestore.ConnectionParams]*miniogo.Client)
	return nil
}

// client returns the cached minio client for params, creating it on first use.
func (d *Driver) client(params filestore.ConnectionParams) (*miniogo.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c, ok := d.clients[params]; ok {
		return c, nil
	}

	host, schemeTLS, hasScheme, err := filestore.NormalizeEndpoint(params.Endpoint)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid endpoint", err)
	}
	secure := params.UseTLS
	if hasScheme {
		secure = schemeTLS
	}

	lookup := miniogo.BucketLookupDNS
	if params.PathStyle {
		lookup = miniogo.BucketLookupPath
	}

	c, err := miniogo.New(host, &miniogo.Options{
		Creds:        credentials.NewStaticV4(params.AccessKey, params.SecretKey, ""),
		Secure:       secure,
		Region:       params.RegionOrDefault(),
		BucketLookup: lookup,
		Transport:    d.transport,
		MaxRetries:   1,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to create minio client", err)
	}

	d.clients[params] = c
	return c, nil
}

// --- filestore.Client implementation ---

// TestConnection heads bucket when one is given, otherwise lists buckets.
func (d *Driver) TestConnection(ctx context.Context, params filestore.ConnectionParams, bucket string) filestore.ConnectionStatus {
	op := d.begin("test_connection", params, bucket, "")

	c, err := d.client(params)
	if err != nil {
		op.end(err)
		return filestore.StatusFailed
	}

	if bucket == "" {
		if _, err := c.ListBuckets(ctx); err != nil {
			e := mapError(err, "failed to list buckets")
			op.end(e)
			return statusOf(e)
		}
		op.end(nil)
		return filestore.StatusOK
	}

	exists, err := c.BucketExists(ctx, bucket)
	if err != nil {
		e := mapError(err, "failed to check bucket")
		op.end(e)
		return statusOf(e)
	}
	if !exists {
		e := errs.New(errs.ErrKindRemoteAPI, "bucket does not exist").WithObject(bucket, "")
		e.Code = "NoSuchBucket"
		op.end(e)
		return filestore.StatusFailed
	}

	op.end(nil)
	return filestore.StatusOK
}

// ListBuckets returns all buckets accessible with the credentials.
func (d *Driver) ListBuckets(ctx context.Context, params filestore.ConnectionParams) (_ []filestore.Bucket, err error) {
	op := d.begin("list_buckets", params, "", "")
	defer func() { op.end(err) }()

	c, err := d.client(params)
	if err != nil {
		return nil, err
	}

	raw, lerr := c.ListBuckets(ctx)
	if lerr != nil {
		return nil, mapError(lerr, "failed to list buckets")
	}

	buckets := make([]filestore.Bucket, len(raw))
	for i, b := range raw {
		buckets[i] = filestore.Bucket{
			Name:      b.Name,
			CreatedAt: b.CreationDate,
		}
	}
	op.count(len(buckets))
	return buckets, nil
}

// ListObjects returns one folder level under prefix. minio-go follows the
// continuation token, so every page is included.
func (d *Driver) ListObjects(ctx context.Context, params filestore.ConnectionParams, bucket, prefix, delimiter string) (_ []filestore.ObjectEntry, err error) {
	op := d.begin("list_objects", params, bucket, prefix)
	defer func() { op.end(err) }()

	if err := requireBucket(bucket); err != nil {
		return nil, err
	}
	if delimiter != "" && delimiter != filestore.Delimiter {
		return nil, errs.New(errs.ErrKindInvalidInput, "only the \"/\" delimiter is supported")
	}

	c, err := d.client(params)
	if err != nil {
		return nil, err
	}

	// Stops the listing goroutine if we return early.
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := []filestore.ObjectEntry{}
	for obj := range c.ListObjects(listCtx, bucket, miniogo.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: false,
	}) {
		if obj.Err != nil {
			return nil, mapError(obj.Err, "failed to list objects").WithObject(bucket, prefix)
		}
		// The marker of the folder being listed is the folder itself.
		if prefix != "" && obj.Key == prefix {
			continue
		}

		entries = append(entries, filestore.ObjectEntry{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
			ETag:         obj.ETag,
			IsPrefix:     isCommonPrefix(obj),
		})
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, mapError(ctxErr, "listing interrupted").WithObject(bucket, prefix)
	}

	op.count(len(entries))
	return entries, nil
}

// common prefixes come back from minio-go with nothing but the key set
func isCommonPrefix(obj miniogo.ObjectInfo) bool {
	return strings.HasSuffix(obj.Key, filestore.Delimiter) && obj.ETag == "" && obj.LastModified.IsZero()
}

// CreateFolderMarker puts a zero-byte object at folderPath + "/".
func (d *Driver) CreateFolderMarker(ctx context.Context, params filestore.ConnectionParams, bucket, folderPath string) (err error) {
	key := filestore.FolderKey(folderPath)
	op := d.begin("create_folder", params, bucket, key)
	defer func() { op.end(err) }()

	if err := requireBucket(bucket); err != nil {
		return err
	}
	if key == "" {
		return errs.New(errs.ErrKindInvalidInput, "folder path is required")
	}

	c, err := d.client(params)
	if err != nil {
		return err
	}

	_, perr := c.PutObject(ctx, bucket, key, bytes.NewReader(nil), 0, miniogo.PutObjectOptions{
		ContentType:      "application/x-directory",
		DisableMultipart: true,
	})
	if perr != nil {
		return mapError(perr, "failed to create folder").WithObject(bucket, key)
	}
	return nil
}

// UploadObject streams the file at localPath to key in a single PUT.
func (d *Driver) UploadObject(ctx context.Context, params filestore.ConnectionParams, bucket, key, localPath string) (err error) {
	op := d.begin("upload_object", params, bucket, key)
	op.fields["path"] = localPath
	defer func() { op.end(err) }()

	if err := requireObject(bucket, key); err != nil {
		return err
	}

	f, ferr := os.Open(localPath)
	if ferr != nil {
		return errs.LocalIO("failed to open local file", localPath, ferr)
	}
	defer f.Close()

	st, ferr := f.Stat()
	if ferr != nil {
		return errs.LocalIO("failed to stat local file", localPath, ferr)
	}
	if st.IsDir() {
		return errs.LocalIO("local path is a directory", localPath, nil)
	}

	c, err := d.client(params)
	if err != nil {
		return err
	}

	_, perr := c.PutObject(ctx, bucket, key, f, st.Size(), miniogo.PutObjectOptions{
		ContentType:      contentType(key),
		DisableMultipart: true,
	})
	if perr != nil {
		// Read failures on our side come back through the SDK unchanged.
		var pathErr *os.PathError
		if errors.As(perr, &pathErr) {
			return errs.LocalIO("failed to read local file", localPath, perr)
		}
		return mapError(perr, "failed to upload object").WithObject(bucket, key)
	}

	d.observer.AddBytes("upload", st.Size())
	op.fields["bytes"] = st.Size()
	return nil
}

// DownloadObjectToFile streams key into a temporary file next to localPath
// and renames it into place once the whole body has arrived. On any failure,
// including cancellation, the temporary file is removed and an existing
// file at localPath is left untouched.
func (d *Driver) DownloadObjectToFile(ctx context.Context, params filestore.ConnectionParams, bucket, key, localPath string, sink filestore.ProgressSink) (err error) {
	op := d.begin("download_object", params, bucket, key)
	op.fields["path"] = localPath
	defer func() { op.end(err) }()

	if err := requireObject(bucket, key); err != nil {
		return err
	}
	if localPath == "" {
		return errs.New(errs.ErrKindInvalidInput, "local path is required")
	}

	c, err := d.client(params)
	if err != nil {
		return err
	}

	tmp, ferr := os.CreateTemp(filepath.Dir(localPath), "."+filepath.Base(localPath)+".*.part")
	if ferr != nil {
		return errs.LocalIO("failed to create local file", localPath, ferr)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	obj, gerr := c.GetObject(ctx, bucket, key, miniogo.GetObjectOptions{})
	if gerr != nil {
		return mapError(gerr, "failed to get object").WithObject(bucket, key)
	}
	defer obj.Close()

	info, serr := obj.Stat()
	if serr != nil {
		return mapError(serr, "failed to get object").WithObject(bucket, key)
	}

	written, cerr := copyWithProgress(ctx, tmp, obj, info.Size, sink)
	d.observer.AddBytes("download", written)
	op.fields["bytes"] = written
	if cerr != nil {
		if cerr.Kind == errs.ErrKindLocalIO {
			cerr.Path = localPath
		}
		return cerr.WithObject(bucket, key)
	}

	if ferr := tmp.Chmod(downloadMode(localPath)); ferr != nil {
		return errs.LocalIO("failed to set local file mode", localPath, ferr)
	}
	if ferr := tmp.Close(); ferr != nil {
		return errs.LocalIO("failed to flush local file", localPath, ferr)
	}
	if ferr := os.Rename(tmp.Name(), localPath); ferr != nil {
		return errs.LocalIO("failed to move download into place", localPath, ferr)
	}
	committed = true
	return nil
}

// downloadMode keeps the mode of a file being replaced and otherwise uses
// the mode os.Create would give under the usual 022 umask.
func downloadMode(localPath string) os.FileMode {
	if st, err := os.Stat(localPath); err == nil && st.Mode().IsRegular() {
		return st.Mode().Perm()
	}
	return 0o644
}

// copyWithProgress copies src to dst in chunks, calling sink after each one.
func copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, total int64, sink filestore.ProgressSink) (int64, *errs.Error) {
	if total < 0 {
		total = 0
	}
	buf := make([]byte, chunkSize)
	var done int64

	for {
		if ctx.Err() != nil {
			return done, mapError(ctx.Err(), "download interrupted")
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return done, errs.LocalIO("failed to write local file", "", werr)
			}
			done += int64(n)
			if sink != nil && !sink(filestore.ProgressEvent{BytesTransferred: done, TotalBytes: total}) {
				return done, errs.New(errs.ErrKindCancelled, "download cancelled")
			}
		}
		if rerr == io.EOF {
			return done, nil
		}
		if rerr != nil {
			return done, mapError(rerr, "failed to read object body")
		}
	}
}

// DownloadObjectToBuffer reads key fully into memory.
func (d *Driver) DownloadObjectToBuffer(ctx context.Context, params filestore.ConnectionParams, bucket, key string) (_ []byte, err error) {
	op := d.begin("download_buffer", params, bucket, key)
	defer func() { op.end(err) }()

	if err := requireObject(bucket, key); err != nil {
		return nil, err
	}

	c, err := d.client(params)
	if err != nil {
		return nil, err
	}

	obj, gerr := c.GetObject(ctx, bucket, key, miniogo.GetObjectOptions{})
	if gerr != nil {
		return nil, mapError(gerr, "failed to get object").WithObject(bucket, key)
	}
	defer obj.Close()

	info, serr := obj.Stat()
	if serr != nil {
		return nil, mapError(serr, "failed to get object").WithObject(bucket, key)
	}
	if d.bufferLimit > 0 && info.Size > d.bufferLimit {
		return nil, errs.New(errs.ErrKindInvalidInput, "object is too large to open in memory").WithObject(bucket, key)
	}

	data, rerr := io.ReadAll(obj)
	if rerr != nil {
		return nil, mapError(rerr, "failed to read object body").WithObject(bucket, key)
	}

	d.observer.AddBytes("download", int64(len(data)))
	op.fields["bytes"] = len(data)
	return data, nil
}

// RenameObject copies oldKey to newKey, then deletes oldKey. The delete is
// only attempted after a successful copy. A failed delete is reported as
// ErrKindPartialRename: both keys exist at that point.
func (d *Driver) RenameObject(ctx context.Context, params filestore.ConnectionParams, bucket, oldKey, newKey string) (err error) {
	op := d.begin("rename_object", params, bucket, oldKey)
	op.fields["new_key"] = newKey
	defer func() { op.end(err) }()

	if err := requireObject(bucket, oldKey); err != nil {
		return err
	}
	if newKey == "" {
		return errs.New(errs.ErrKindInvalidInput, "new key is required")
	}
	if newKey == oldKey {
		return errs.New(errs.ErrKindInvalidInput, "new key equals old key").WithObject(bucket, oldKey)
	}

	c, err := d.client(params)
	if err != nil {
		return err
	}

	phase := filestore.PhaseCopying
	op.fields["phase"] = string(phase)
	_, cerr := c.CopyObject(ctx,
		miniogo.CopyDestOptions{Bucket: bucket, Object: newKey},
		miniogo.CopySrcOptions{Bucket: bucket, Object: oldKey},
	)
	if cerr != nil {
		return mapError(cerr, "failed to copy object").WithObject(bucket, oldKey).WithPhase(string(phase))
	}

	phase = filestore.PhaseDeleting
	op.fields["phase"] = string(phase)
	if rerr := c.RemoveObject(ctx, bucket, oldKey, miniogo.RemoveObjectOptions{}); rerr != nil {
		cause := mapError(rerr, "failed to delete old key")
		e := errs.Wrap(errs.ErrKindPartialRename,
			"copied to "+newKey+" but the old key could not be deleted; both keys now exist", cause)
		e.Code = cause.Code
		e.StatusCode = cause.StatusCode
		return e.WithObject(bucket, oldKey).WithPhase(string(phase))
	}

	op.fields["phase"] = string(filestore.PhaseDone)
	return nil
}

// DeleteObject removes key. Stores that treat deleting a missing key as
// success are reported as success.
func (d *Driver) DeleteObject(ctx context.Context, params filestore.ConnectionParams, bucket, key string) (err error) {
	op := d.begin("delete_object", params, bucket, key)
	defer func() { op.end(err) }()

	if err := requireObject(bucket, key); err != nil {
		return err
	}

	c, err := d.client(params)
	if err != nil {
		return err
	}

	if rerr := c.RemoveObject(ctx, bucket, key, miniogo.RemoveObjectOptions{}); rerr != nil {
		return mapError(rerr, "failed to delete object").WithObject(bucket, key)
	}
	return nil
}

// --- internal helpers ---

func requireBucket(bucket string) error {
	if bucket == "" {
		return errs.New(errs.ErrKindInvalidInput, "bucket is required")
	}
	return nil
}

func requireObject(bucket, key string) error {
	if err := requireBucket(bucket); err != nil {
		return err
	}
	if key == "" {
		return errs.New(errs.ErrKindInvalidInput, "object key is required").WithObject(bucket, "")
	}
	return nil
}

func contentType(key string) string {
	if t := mime.TypeByExtension(filepath.Ext(key)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// operation carries the log fields and start time of one call.
type operation struct {
	d      *Driver
	name   string
	start  time.Time
	fields map[string]interface{}
}

func (d *Driver) begin(name string, params filestore.ConnectionParams, bucket, key string) *operation {
	fields := map[string]interface{}{
		"op":         name,
		"endpoint":   params.Endpoint,
		"access_key": logger.Redact(params.AccessKey),
	}
	if bucket != "" {
		fields["bucket"] = bucket
	}
	if key != "" {
		fields["key"] = key
	}
	return &operation{d: d, name: name, start: time.Now(), fields: fields}
}

func (o *operation) count(n int) {
	o.fields["count"] = n
}

func (o *operation) end(err error) {
	elapsed := time.Since(o.start)
	o.fields["duration_ms"] = elapsed.Milliseconds()

	outcome := "ok"
	if err != nil {
		outcome = errs.KindOf(err).String()
	}
	o.fields["outcome"] = outcome
	o.d.observer.ObserveOperation(o.name, outcome, elapsed)

	if err != nil {
		o.d.log.WarnWith("object store operation failed", err, o.fields)
		return
	}
	o.d.log.DebugWith("object store operation finished", o.fields)
}
