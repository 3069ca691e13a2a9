// Package server exposes the object store client over a local HTTP API.
//
// It plays the part of the desktop front end: every request resolves the
// connection parameters from the current settings and credential store,
// performs one client operation and answers with JSON. Downloads run as
// background jobs that can be polled and cancelled.
//
// Usage:
//
//	srv := server.New(server.Config{
//		Settings:    cfg,
//		Credentials: credentials.Chain{credentials.NewMemoryStore(), credentials.NewEnvStore(log)},
//		Client:      minio.New(minio.WithLogger(log)),
//		Runner:      worker.NewRunner(4),
//	})
//	err := srv.ListenAndServe(ctx, "127.0.0.1:8080")
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/koustreak/s3nav/internal/credentials"
	"github.com/koustreak/s3nav/internal/errs"
	"github.com/koustreak/s3nav/internal/filestore"
	"github.com/koustreak/s3nav/internal/logger"
	"github.com/koustreak/s3nav/internal/metrics"
	"github.com/koustreak/s3nav/internal/settings"
	"github.com/koustreak/s3nav/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// Config wires the server to its collaborators. Settings, Credentials,
// Client and Runner are required.
type Config struct {
	Settings    *settings.Settings
	Credentials credentials.Store
	Client      filestore.Client
	Runner      *worker.Runner
	Metrics     *metrics.Collector // optional; enables /metrics
	Log         *logger.Logger     // optional
}

// Server is the HTTP front end.
type Server struct {
	settings *settings.Settings
	creds    credentials.Store
	client   filestore.Client
	runner   *worker.Runner
	metrics  *metrics.Collector
	log      *logger.Logger
	router   chi.Router
}

// New builds the server and its routes.
func New(cfg Config) *Server {
	s := &Server{
		settings: cfg.Settings,
		creds:    cfg.Credentials,
		client:   cfg.Client,
		runner:   cfg.Runner,
		metrics:  cfg.Metrics,
		log:      cfg.Log,
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))

		r.Put("/credentials", s.handleSaveCredentials)
		r.Delete("/credentials", s.handleDeleteCredentials)
		r.Get("/connection", s.handleTestConnection)
		r.Get("/buckets", s.handleListBuckets)

		r.Route("/buckets/{bucket}", func(r chi.Router) {
			r.Get("/tree", s.handleTree)
			r.Post("/folders", s.handleCreateFolder)
			r.Post("/uploads", s.handleUpload)
			r.Get("/content", s.handleContent)
			r.Post("/downloads", s.handleStartDownload)
			r.Post("/rename", s.handleRename)
			r.Delete("/objects", s.handleDelete)
		})

		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Delete("/jobs/{id}", s.handleCancelJob)
	})

	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully and cancels running jobs.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.InfoWith("http server listening", map[string]interface{}{"addr": addr})
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.log.Info("shutting down http server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return s.runner.Shutdown(shutdownCtx)
}

// params resolves the connection parameters for one request.
func (s *Server) params() (filestore.ConnectionParams, error) {
	if err := s.settings.Validate(); err != nil {
		return filestore.ConnectionParams{}, errs.Wrap(errs.ErrKindInvalidInput, "settings are incomplete", err)
	}
	ak, sk, err := s.creds.Load(s.settings.Endpoint)
	if errors.Is(err, credentials.ErrNotFound) {
		return filestore.ConnectionParams{}, errs.New(errs.ErrKindAuth, "no credentials configured for "+s.settings.Endpoint)
	}
	if err != nil {
		return filestore.ConnectionParams{}, errs.Wrap(errs.ErrKindUnknown, "failed to load credentials", err)
	}
	return s.settings.Params(ak, sk), nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		reqLog := s.log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
		next.ServeHTTP(ww, r.WithContext(reqLog.WithContext(r.Context())))

		s.log.HTTPEvent().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
