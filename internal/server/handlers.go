package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/koustreak/s3nav/internal/errs"
	"github.com/koustreak/s3nav/internal/filestore"
	"github.com/koustreak/s3nav/internal/logger"
	"github.com/koustreak/s3nav/internal/tree"
	"github.com/koustreak/s3nav/internal/worker"
)

type bucketJSON struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type folderJSON struct {
	Name     string `json:"name"`
	FullPath string `json:"full_path"`
}

type fileJSON struct {
	Key          string    `json:"key"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ETag         string    `json:"etag,omitempty"`
}

type treeJSON struct {
	Bucket  string       `json:"bucket"`
	Prefix  string       `json:"prefix"`
	Parent  string       `json:"parent"`
	Folders []folderJSON `json:"folders"`
	Files   []fileJSON   `json:"files"`
}

type folderRequest struct {
	Path string `json:"path"`
}

type transferRequest struct {
	Key       string `json:"key"`
	LocalPath string `json:"local_path"`
}

type credentialsRequest struct {
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
}

type renameRequest struct {
	OldKey string `json:"old_key"`
	NewKey string `json:"new_key"`
}

// do resolves params and runs fn in a worker slot.
func (s *Server) do(ctx context.Context, fn func(ctx context.Context, params filestore.ConnectionParams) error) error {
	params, err := s.params()
	if err != nil {
		return err
	}
	return s.runner.Do(ctx, func(ctx context.Context) error {
		return fn(ctx, params)
	})
}

// handleSaveCredentials stores a key pair for the configured endpoint.
func (s *Server) handleSaveCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.AccessKey == "" || req.SecretKey == "" {
		s.writeError(w, r, badRequest("access_key and secret_key are required"))
		return
	}
	if err := s.settings.Validate(); err != nil {
		s.writeError(w, r, errs.Wrap(errs.ErrKindInvalidInput, "settings are incomplete", err))
		return
	}
	if err := s.creds.Save(s.settings.Endpoint, req.AccessKey, req.SecretKey); err != nil {
		s.writeError(w, r, errs.Wrap(errs.ErrKindUnknown, "failed to save credentials", err))
		return
	}

	logger.FromContext(r.Context()).InfoWith("credentials saved", map[string]interface{}{
		"endpoint":   s.settings.Endpoint,
		"access_key": logger.Redact(req.AccessKey),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteCredentials(w http.ResponseWriter, r *http.Request) {
	if err := s.creds.Delete(s.settings.Endpoint); err != nil {
		s.writeError(w, r, errs.Wrap(errs.ErrKindUnknown, "failed to delete credentials", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	bucket := r.URL.Query().Get("bucket")
	if bucket == "" {
		bucket = s.settings.Bucket
	}

	var status filestore.ConnectionStatus
	err := s.do(r.Context(), func(ctx context.Context, params filestore.ConnectionParams) error {
		status = s.client.TestConnection(ctx, params, bucket)
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": status.String(),
		"bucket": bucket,
	})
}

func (s *Server) handleListBuckets(w http.ResponseWriter, r *http.Request) {
	var buckets []filestore.Bucket
	err := s.do(r.Context(), func(ctx context.Context, params filestore.ConnectionParams) (err error) {
		buckets, err = s.client.ListBuckets(ctx, params)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]bucketJSON, len(buckets))
	for i, b := range buckets {
		out[i] = bucketJSON{Name: b.Name, CreatedAt: b.CreatedAt}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	prefix := filestore.FolderKey(r.URL.Query().Get("prefix"))
	node := &tree.FolderNode{
		Name:     filestore.BaseName(prefix),
		FullPath: prefix,
		Bucket:   bucket,
		IsBucket: prefix == "",
	}

	var files []filestore.ObjectEntry
	err := s.do(r.Context(), func(ctx context.Context, params filestore.ConnectionParams) (err error) {
		files, err = node.Expand(ctx, s.client, params)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := treeJSON{
		Bucket:  bucket,
		Prefix:  prefix,
		Parent:  filestore.ParentPrefix(prefix),
		Folders: make([]folderJSON, len(node.Children)),
		Files:   make([]fileJSON, len(files)),
	}
	for i, c := range node.Children {
		out.Folders[i] = folderJSON{Name: c.Name, FullPath: c.FullPath}
	}
	for i, f := range files {
		out.Files[i] = fileJSON{
			Key:          f.Key,
			Name:         filestore.BaseName(f.Key),
			Size:         f.Size,
			LastModified: f.LastModified,
			ETag:         f.ETag,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	var req folderRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	err := s.do(r.Context(), func(ctx context.Context, params filestore.ConnectionParams) error {
		return s.client.CreateFolderMarker(ctx, params, bucket, req.Path)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"key": filestore.FolderKey(req.Path)})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.LocalPath == "" {
		s.writeError(w, r, badRequest("local_path is required"))
		return
	}

	err := s.do(r.Context(), func(ctx context.Context, params filestore.ConnectionParams) error {
		return s.client.UploadObject(ctx, params, bucket, req.Key, req.LocalPath)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"key": req.Key})
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key := r.URL.Query().Get("key")

	var data []byte
	err := s.do(r.Context(), func(ctx context.Context, params filestore.ConnectionParams) (err error) {
		data, err = s.client.DownloadObjectToBuffer(ctx, params, bucket, key)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleStartDownload(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Key == "" || req.LocalPath == "" {
		s.writeError(w, r, badRequest("key and local_path are required"))
		return
	}

	params, err := s.params()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	job := s.runner.Download(s.client, params, bucket, req.Key, req.LocalPath)
	w.Header().Set("Location", "/api/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, job.Snapshot())
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	var req renameRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	err := s.do(r.Context(), func(ctx context.Context, params filestore.ConnectionParams) error {
		return s.client.RenameObject(ctx, params, bucket, req.OldKey, req.NewKey)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"key":   req.NewKey,
		"phase": string(filestore.PhaseDone),
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key := r.URL.Query().Get("key")

	err := s.do(r.Context(), func(ctx context.Context, params filestore.ConnectionParams) error {
		return s.client.DeleteObject(ctx, params, bucket, key)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	jobs := s.runner.List()
	out := make([]worker.Snapshot, len(jobs))
	for i, j := range jobs {
		out[i] = j.Snapshot()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.runner.Get(chi.URLParam(r, "id"))
	if !ok {
		s.writeError(w, r, errJobNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.runner.Get(chi.URLParam(r, "id"))
	if !ok {
		s.writeError(w, r, errJobNotFound)
		return
	}
	job.Cancel()
	writeJSON(w, http.StatusAccepted, job.Snapshot())
}

// errJobNotFound is a local lookup miss in the job registry.
var errJobNotFound = errs.New(errs.ErrKindInvalidInput, "no such job")
