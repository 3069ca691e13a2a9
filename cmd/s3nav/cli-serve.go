package main

import (
	"github.com/koustreak/s3nav/internal/credentials"
	"github.com/koustreak/s3nav/internal/filestore/minio"
	"github.com/koustreak/s3nav/internal/metrics"
	"github.com/koustreak/s3nav/internal/server"
	"github.com/koustreak/s3nav/internal/worker"
	"github.com/spf13/cobra"
)

var (
	serveAddr        string
	serveConcurrency int64
	serveMetrics     bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the browser API over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "127.0.0.1:8080", "listen address")
	serveCmd.Flags().Int64Var(&serveConcurrency, "concurrency", worker.DefaultConcurrency, "store operations run at once")
	serveCmd.Flags().BoolVar(&serveMetrics, "metrics", true, "expose Prometheus metrics at /metrics")

	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := server.Config{
		Settings:    app.settings,
		Credentials: credentials.Chain{credentials.NewMemoryStore(), app.creds},
		Log:         app.log,
	}

	runnerOpts := []worker.Option{worker.WithLogger(app.log)}
	if serveMetrics {
		m := metrics.New()
		cfg.Metrics = m
		runnerOpts = append(runnerOpts, worker.WithObserver(m))

		opts, err := clientOptions(minio.WithObserver(m))
		if err != nil {
			return err
		}
		_ = app.client.Close()
		app.client = minio.New(opts...)
	}
	cfg.Client = app.client
	cfg.Runner = worker.NewRunner(serveConcurrency, runnerOpts...)

	ctx, stop := signalContext()
	defer stop()

	return server.New(cfg).ListenAndServe(ctx, serveAddr)
}
