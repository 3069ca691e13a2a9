// Package s3test runs an in-memory S3-compatible server for tests.
//
// It speaks enough of the S3 REST API for the filestore client: ListBuckets,
// ListObjectsV2 with delimiter and continuation tokens, PutObject (plain and
// aws-chunked bodies), GetObject/HeadObject, CopyObject, DeleteObject and
// HeadBucket. Requests are accepted only when signed with the server's
// access key, so authentication failures can be exercised.
//
// Usage:
//
//	srv := s3test.New(t)
//	srv.CreateBucket("demo")
//	params := srv.Params()
package s3test

import (
	"bufio"
	"bytes"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/koustreak/s3nav/internal/filestore"
)

const (
	// DefaultAccessKey and DefaultSecretKey are the credentials the server accepts.
	DefaultAccessKey = "s3test-access"
	DefaultSecretKey = "s3test-secret"

	defaultPageSize = 1000
	timeFormat      = "2006-01-02T15:04:05.000Z"
)

// Server is an in-memory S3 endpoint.
type Server struct {
	srv *httptest.Server

	AccessKey string
	SecretKey string

	mu       sync.Mutex
	pageSize int
	buckets  map[string]*bucket
	denied   map[string]bool
	faults   map[string]fault
	requests []string
}

type bucket struct {
	created time.Time
	objects map[string]*object
}

type object struct {
	data        []byte
	etag        string
	contentType string
	modified    time.Time
}

type fault struct {
	status int
	code   string
}

// New starts a server and stops it when the test ends.
func New(t testing.TB) *Server {
	s := &Server{
		AccessKey: DefaultAccessKey,
		SecretKey: DefaultSecretKey,
		pageSize:  defaultPageSize,
		buckets:   make(map[string]*bucket),
		denied:    make(map[string]bool),
		faults:    make(map[string]fault),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the server's base URL.
func (s *Server) URL() string {
	return s.srv.URL
}

// Params returns connection params that reach this server with valid credentials.
func (s *Server) Params() filestore.ConnectionParams {
	return filestore.ConnectionParams{
		Endpoint:  strings.TrimPrefix(s.srv.URL, "http://"),
		AccessKey: s.AccessKey,
		SecretKey: s.SecretKey,
		UseTLS:    false,
		Region:    filestore.DefaultRegion,
		PathStyle: true,
	}
}

// SetPageSize caps the number of entries per ListObjectsV2 page.
func (s *Server) SetPageSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageSize = n
}

// CreateBucket adds an empty bucket.
func (s *Server) CreateBucket(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[name]; !ok {
		s.buckets[name] = &bucket{created: time.Now().UTC(), objects: make(map[string]*object)}
	}
}

// PutObject stores data at key, creating the bucket if needed.
func (s *Server) PutObject(bucketName, key string, data []byte) {
	s.CreateBucket(bucketName)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets[bucketName].objects[key] = newObject(data, "")
}

// Object returns the stored bytes for key.
func (s *Server) Object(bucketName, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucketName]
	if !ok {
		return nil, false
	}
	o, ok := b.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), o.data...), true
}

// Keys returns every key in the bucket, sorted.
func (s *Server) Keys(bucketName string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucketName]
	if !ok {
		return nil
	}
	return sortedKeys(b.objects)
}

// DenyBucket makes every request against the bucket fail with AccessDenied,
// as a store would for credentials without permission on it.
func (s *Server) DenyBucket(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied[name] = true
}

// Fail makes requests of kind op ("PUT", "GET", "COPY", "DELETE") on
// bucket/key answer with the given status and S3 error code.
func (s *Server) Fail(op, bucketName, key string, status int, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op+" "+bucketName+"/"+key] = fault{status: status, code: code}
}

// Requests returns "METHOD path" for every request received so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func newObject(data []byte, contentType string) *object {
	sum := md5.Sum(data)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &object{
		data:        data,
		etag:        `"` + hex.EncodeToString(sum[:]) + `"`,
		contentType: contentType,
		modified:    time.Now().UTC().Truncate(time.Second),
	}
}

// --- request handling ---

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.Method+" "+r.URL.Path)
	s.mu.Unlock()

	if accessKeyOf(r) != s.AccessKey {
		writeError(w, r, http.StatusForbidden, "InvalidAccessKeyId",
			"The AWS Access Key Id you provided does not exist in our records.", "", "")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/")
	if path == "" {
		if r.Method != http.MethodGet {
			writeError(w, r, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed", "", "")
			return
		}
		s.listBuckets(w)
		return
	}

	bucketName, key, _ := strings.Cut(path, "/")

	s.mu.Lock()
	denied := s.denied[bucketName]
	s.mu.Unlock()
	if denied {
		writeError(w, r, http.StatusForbidden, "AccessDenied", "Access Denied.", bucketName, key)
		return
	}

	if key == "" {
		switch r.Method {
		case http.MethodGet:
			if _, ok := r.URL.Query()["location"]; ok {
				writeXML(w, http.StatusOK, locationConstraint{})
				return
			}
			s.listObjectsV2(w, r, bucketName)
		case http.MethodHead:
			s.headBucket(w, r, bucketName)
		case http.MethodPut:
			s.CreateBucket(bucketName)
			w.WriteHeader(http.StatusOK)
		default:
			writeError(w, r, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed", bucketName, "")
		}
		return
	}

	op := r.Method
	if r.Method == http.MethodPut && r.Header.Get("X-Amz-Copy-Source") != "" {
		op = "COPY"
	}
	if f, ok := s.fault(op, bucketName, key); ok {
		writeError(w, r, f.status, f.code, "injected failure", bucketName, key)
		return
	}

	switch op {
	case "COPY":
		s.copyObject(w, r, bucketName, key)
	case http.MethodPut:
		s.putObject(w, r, bucketName, key)
	case http.MethodGet, http.MethodHead:
		s.getObject(w, r, bucketName, key)
	case http.MethodDelete:
		s.deleteObject(w, r, bucketName, key)
	default:
		writeError(w, r, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed", bucketName, key)
	}
}

func (s *Server) fault(op, bucketName, key string) (fault, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.faults[op+" "+bucketName+"/"+key]
	return f, ok
}

func (s *Server) listBuckets(w http.ResponseWriter) {
	s.mu.Lock()
	names := make([]string, 0, len(s.buckets))
	for name := range s.buckets {
		names = append(names, name)
	}
	sort.Strings(names)

	var res listAllMyBucketsResult
	res.Owner.ID = "s3test"
	res.Owner.DisplayName = "s3test"
	for _, name := range names {
		res.Buckets.Bucket = append(res.Buckets.Bucket, bucketEntry{
			Name:         name,
			CreationDate: s.buckets[name].created.Format(timeFormat),
		})
	}
	s.mu.Unlock()

	writeXML(w, http.StatusOK, res)
}

func (s *Server) headBucket(w http.ResponseWriter, r *http.Request, bucketName string) {
	s.mu.Lock()
	_, ok := s.buckets[bucketName]
	s.mu.Unlock()
	if !ok {
		writeError(w, r, http.StatusNotFound, "NoSuchBucket", "The specified bucket does not exist", bucketName, "")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) listObjectsV2(w http.ResponseWriter, r *http.Request, bucketName string) {
	q := r.URL.Query()
	prefix := q.Get("prefix")
	delimiter := q.Get("delimiter")

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[bucketName]
	if !ok {
		writeError(w, r, http.StatusNotFound, "NoSuchBucket", "The specified bucket does not exist", bucketName, "")
		return
	}

	maxKeys := s.pageSize
	if mk, err := strconv.Atoi(q.Get("max-keys")); err == nil && mk > 0 && mk < maxKeys {
		maxKeys = mk
	}

	after := q.Get("start-after")
	if token := q.Get("continuation-token"); token != "" {
		raw, err := base64.StdEncoding.DecodeString(token)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "InvalidArgument", "The continuation token provided is incorrect", bucketName, "")
			return
		}
		after = string(raw)
	}

	res := listBucketV2Result{
		Name:              bucketName,
		Prefix:            prefix,
		Delimiter:         delimiter,
		MaxKeys:           maxKeys,
		ContinuationToken: q.Get("continuation-token"),
		StartAfter:        q.Get("start-after"),
	}

	keys := sortedKeys(b.objects)
	var last string
	count := 0
	for i := 0; i < len(keys); i++ {
		key := keys[i]
		if !strings.HasPrefix(key, prefix) || key <= after {
			continue
		}
		if count == maxKeys {
			res.IsTruncated = true
			res.NextContinuationToken = base64.StdEncoding.EncodeToString([]byte(last))
			break
		}

		rest := key[len(prefix):]
		if delimiter != "" {
			if idx := strings.Index(rest, delimiter); idx >= 0 {
				cp := prefix + rest[:idx+len(delimiter)]
				res.CommonPrefixes = append(res.CommonPrefixes, commonPrefix{Prefix: cp})
				// Skip the rest of the group.
				for i+1 < len(keys) && strings.HasPrefix(keys[i+1], cp) {
					i++
				}
				last = keys[i]
				count++
				continue
			}
		}

		o := b.objects[key]
		res.Contents = append(res.Contents, listEntry{
			Key:          key,
			LastModified: o.modified.Format(timeFormat),
			ETag:         o.etag,
			Size:         int64(len(o.data)),
			StorageClass: "STANDARD",
		})
		last = key
		count++
	}
	res.KeyCount = count

	writeXML(w, http.StatusOK, res)
}

func (s *Server) putObject(w http.ResponseWriter, r *http.Request, bucketName, key string) {
	data, err := readBody(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "IncompleteBody", err.Error(), bucketName, key)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucketName]
	if !ok {
		writeError(w, r, http.StatusNotFound, "NoSuchBucket", "The specified bucket does not exist", bucketName, key)
		return
	}
	o := newObject(data, r.Header.Get("Content-Type"))
	b.objects[key] = o

	w.Header().Set("ETag", o.etag)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) getObject(w http.ResponseWriter, r *http.Request, bucketName, key string) {
	s.mu.Lock()
	b, ok := s.buckets[bucketName]
	if !ok {
		s.mu.Unlock()
		writeError(w, r, http.StatusNotFound, "NoSuchBucket", "The specified bucket does not exist", bucketName, key)
		return
	}
	o, ok := b.objects[key]
	s.mu.Unlock()
	if !ok {
		writeError(w, r, http.StatusNotFound, "NoSuchKey", "The specified key does not exist.", bucketName, key)
		return
	}

	w.Header().Set("ETag", o.etag)
	w.Header().Set("Content-Type", o.contentType)
	w.Header().Set("Accept-Ranges", "bytes")
	http.ServeContent(w, r, key, o.modified, bytes.NewReader(o.data))
}

func (s *Server) copyObject(w http.ResponseWriter, r *http.Request, bucketName, key string) {
	source := r.Header.Get("X-Amz-Copy-Source")
	source, _, _ = strings.Cut(source, "?")
	if unescaped, err := url.PathUnescape(source); err == nil {
		source = unescaped
	}
	srcBucket, srcKey, _ := strings.Cut(strings.TrimPrefix(source, "/"), "/")

	s.mu.Lock()
	defer s.mu.Unlock()

	sb, ok := s.buckets[srcBucket]
	if !ok {
		writeError(w, r, http.StatusNotFound, "NoSuchBucket", "The specified bucket does not exist", srcBucket, srcKey)
		return
	}
	src, ok := sb.objects[srcKey]
	if !ok {
		writeError(w, r, http.StatusNotFound, "NoSuchKey", "The specified key does not exist.", srcBucket, srcKey)
		return
	}
	db, ok := s.buckets[bucketName]
	if !ok {
		writeError(w, r, http.StatusNotFound, "NoSuchBucket", "The specified bucket does not exist", bucketName, key)
		return
	}

	o := newObject(append([]byte(nil), src.data...), src.contentType)
	db.objects[key] = o

	writeXML(w, http.StatusOK, copyObjectResult{
		LastModified: o.modified.Format(timeFormat),
		ETag:         o.etag,
	})
}

func (s *Server) deleteObject(w http.ResponseWriter, r *http.Request, bucketName, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucketName]
	if !ok {
		writeError(w, r, http.StatusNotFound, "NoSuchBucket", "The specified bucket does not exist", bucketName, key)
		return
	}
	delete(b.objects, key)
	w.WriteHeader(http.StatusNoContent)
}

// --- wire helpers ---

// accessKeyOf extracts the access key from a SigV4 Authorization header.
func accessKeyOf(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	_, cred, ok := strings.Cut(auth, "Credential=")
	if !ok {
		return ""
	}
	key, _, _ := strings.Cut(cred, "/")
	return key
}

// readBody returns the request payload, decoding aws-chunked framing when
// the client used a streaming signature.
func readBody(r *http.Request) ([]byte, error) {
	streaming := strings.HasPrefix(r.Header.Get("X-Amz-Content-Sha256"), "STREAMING-") ||
		strings.Contains(r.Header.Get("Content-Encoding"), "aws-chunked")
	if !streaming {
		return io.ReadAll(r.Body)
	}
	return decodeChunked(r.Body)
}

// decodeChunked reads "<hex-size>[;ext]\r\n<data>\r\n" frames until the
// zero-length frame. Trailers after it are ignored.
func decodeChunked(body io.Reader) ([]byte, error) {
	var out bytes.Buffer
	br := bufio.NewReader(body)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read chunk header: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		sizeHex, _, _ := strings.Cut(line, ";")
		n, err := strconv.ParseInt(strings.TrimSpace(sizeHex), 16, 64)
		if err != nil {
			return nil, fmt.Errorf("bad chunk header %q", line)
		}
		if n == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, br, n); err != nil {
			return nil, fmt.Errorf("read chunk: %w", err)
		}
		if _, err := br.ReadString('\n'); err != nil {
			return nil, fmt.Errorf("read chunk terminator: %w", err)
		}
	}
}

func writeXML(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, xml.Header)
	_ = xml.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg, bucketName, key string) {
	if r.Method == http.MethodHead {
		w.WriteHeader(status)
		return
	}
	writeXML(w, status, errorResponse{
		Code:       code,
		Message:    msg,
		BucketName: bucketName,
		Key:        key,
		Resource:   r.URL.Path,
		RequestID:  "s3test",
	})
}

func sortedKeys(objects map[string]*object) []string {
	keys := make([]string, 0, len(objects))
	for k := range objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
