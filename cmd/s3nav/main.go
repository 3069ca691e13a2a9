package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/koustreak/s3nav/internal/credentials"
	"github.com/koustreak/s3nav/internal/errs"
	"github.com/koustreak/s3nav/internal/filestore"
	"github.com/koustreak/s3nav/internal/filestore/minio"
	"github.com/koustreak/s3nav/internal/logger"
	"github.com/koustreak/s3nav/internal/settings"
	"github.com/spf13/cobra"
)

var (
	settingsPath string
	logToFile    bool
	logFormat    string
	insecureTLS  bool
)

// app holds what every subcommand needs once the root command has run.
var app struct {
	settings *settings.Settings
	creds    credentials.Store
	client   *minio.Driver
	log      *logger.Logger
	logFile  io.Closer
}

var rootCmd = &cobra.Command{
	Use:   "s3nav",
	Short: "Browse and manage objects in S3-compatible storage",
	Long: `s3nav lists buckets, walks folders, uploads, downloads, renames and deletes
objects on any S3-compatible store. Credentials are read from S3NAV_ACCESS_KEY
and S3NAV_SECRET_KEY (a .env file in the working directory is loaded first).`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: teardown,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "settings file (default is <config dir>/s3nav/settings.yaml)")
	rootCmd.PersistentFlags().BoolVar(&logToFile, "log-file", false, "write logs to a file in the log directory")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format on stderr (console, json)")
	rootCmd.PersistentFlags().BoolVar(&insecureTLS, "insecure", false, "skip TLS certificate verification (self-signed stores)")
	settings.RegisterFlags(rootCmd.PersistentFlags())
}

func setup(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	if settingsPath == "" {
		path, err := settings.DefaultPath()
		if err != nil {
			return err
		}
		settingsPath = path
	}

	cfg, err := settings.Load(settingsPath, cmd.Flags())
	if err != nil {
		return err
	}
	app.settings = cfg

	logCfg := &logger.Config{
		Level:  cfg.Logging.Level,
		Format: logFormat,
		Output: os.Stderr,
	}
	if logToFile || cfg.Logging.Enabled {
		dir, err := logger.DefaultLogDir()
		if err != nil {
			return fmt.Errorf("failed to resolve log directory: %w", err)
		}
		f, err := logger.OpenLogFile(dir, time.Now())
		if err != nil {
			return err
		}
		logCfg.Format = "json"
		logCfg.Output = f
		app.logFile = f
	}
	app.log = logger.New(logCfg)
	logger.SetGlobal(app.log)

	app.creds = credentials.NewEnvStore(app.log)
	opts, err := clientOptions()
	if err != nil {
		return err
	}
	app.client = minio.New(opts...)
	return nil
}

// clientOptions configures the store client from the global flags.
func clientOptions(extra ...minio.Option) ([]minio.Option, error) {
	opts := []minio.Option{minio.WithLogger(app.log)}
	if insecureTLS {
		tr, err := minio.InsecureTransport()
		if err != nil {
			return nil, fmt.Errorf("failed to build transport: %w", err)
		}
		opts = append(opts, minio.WithTransport(tr))
		app.log.Warn("TLS certificate verification is disabled")
	}
	return append(opts, extra...), nil
}

func teardown(_ *cobra.Command, _ []string) {
	if app.client != nil {
		_ = app.client.Close()
	}
	if app.logFile != nil {
		_ = app.logFile.Close()
	}
}

// connectionParams resolves the settings and credentials for one call.
func connectionParams() (filestore.ConnectionParams, error) {
	if err := app.settings.Validate(); err != nil {
		return filestore.ConnectionParams{}, fmt.Errorf("invalid settings (%s): %w", settingsPath, err)
	}
	ak, sk, err := app.creds.Load(app.settings.Endpoint)
	if errors.Is(err, credentials.ErrNotFound) {
		return filestore.ConnectionParams{}, fmt.Errorf("no credentials: set %s and %s", credentials.EnvAccessKey, credentials.EnvSecretKey)
	}
	if err != nil {
		return filestore.ConnectionParams{}, err
	}
	return app.settings.Params(ak, sk), nil
}

// selectedBucket returns the bucket selected with --bucket or in the settings file.
func selectedBucket() (string, error) {
	if app.settings.Bucket == "" {
		return "", errs.New(errs.ErrKindInvalidInput, "no bucket: pass --bucket or set one in the settings file")
	}
	return app.settings.Bucket, nil
}

// signalContext is cancelled on Ctrl-C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
