package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/koustreak/s3nav/internal/filestore"
	"github.com/koustreak/s3nav/internal/progress"
	"github.com/koustreak/s3nav/internal/worker"
	"github.com/spf13/cobra"
)

var (
	putPrefix string
	getQuiet  bool
)

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create a folder marker",
	Args:  cobra.ExactArgs(1),
	RunE:  runMkdir,
}

var putCmd = &cobra.Command{
	Use:   "put <local-file> [key]",
	Short: "Upload a local file",
	Long:  "Upload a local file. Without a key the file name is used, placed under --prefix.",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runPut,
}

var getCmd = &cobra.Command{
	Use:   "get <key> [local-file]",
	Short: "Download an object with progress; Ctrl-C cancels",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runGet,
}

var catCmd = &cobra.Command{
	Use:   "cat <key>",
	Short: "Print a small object to stdout",
	Args:  cobra.ExactArgs(1),
	RunE:  runCat,
}

var mvCmd = &cobra.Command{
	Use:   "mv <old-key> <new-key>",
	Short: "Rename an object (copy, then delete the old key)",
	Args:  cobra.ExactArgs(2),
	RunE:  runMv,
}

var rmCmd = &cobra.Command{
	Use:   "rm <key>...",
	Short: "Delete objects",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRm,
}

func init() {
	putCmd.Flags().StringVar(&putPrefix, "prefix", "", "folder to upload into when no key is given")
	getCmd.Flags().BoolVarP(&getQuiet, "quiet", "q", false, "do not print progress")

	rootCmd.AddCommand(mkdirCmd, putCmd, getCmd, catCmd, mvCmd, rmCmd)
}

func runMkdir(cmd *cobra.Command, args []string) error {
	bucket, err := selectedBucket()
	if err != nil {
		return err
	}
	params, err := connectionParams()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	if err := app.client.CreateFolderMarker(ctx, params, bucket, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %s/%s\n", bucket, filestore.FolderKey(args[0]))
	return nil
}

func runPut(cmd *cobra.Command, args []string) error {
	bucket, err := selectedBucket()
	if err != nil {
		return err
	}
	params, err := connectionParams()
	if err != nil {
		return err
	}

	local := args[0]
	key := filestore.JoinKey(putPrefix, filepath.Base(local))
	if len(args) == 2 {
		key = args[1]
	}

	ctx, stop := signalContext()
	defer stop()

	start := time.Now()
	if err := app.client.UploadObject(ctx, params, bucket, key, local); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s to %s/%s in %s\n", local, bucket, key, progress.FormatDuration(time.Since(start)))
	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	bucket, err := selectedBucket()
	if err != nil {
		return err
	}
	params, err := connectionParams()
	if err != nil {
		return err
	}

	key := args[0]
	local := filestore.BaseName(key)
	if len(args) == 2 {
		local = args[1]
	}

	ctx, stop := signalContext()
	defer stop()

	runner := worker.NewRunner(1, worker.WithLogger(app.log))
	defer func() { _ = runner.Shutdown(ctx) }()

	job := runner.Download(app.client, params, bucket, key, local)
	tracker := progress.NewTracker()

	interrupted := ctx.Done()
	for events := job.Progress(); events != nil; {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			tracker.Observe(ev)
			if !getQuiet {
				fmt.Fprintf(os.Stderr, "\r%-60s", tracker.Line())
			}
		case <-interrupted:
			job.Cancel()
			interrupted = nil
		}
	}
	<-job.Done()
	if !getQuiet {
		fmt.Fprintln(os.Stderr)
	}

	if err := job.Err(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "downloaded %s/%s to %s (%s)\n", bucket, key, local, progress.FormatBytes(tracker.Status().BytesTransferred))
	return nil
}

func runCat(cmd *cobra.Command, args []string) error {
	bucket, err := selectedBucket()
	if err != nil {
		return err
	}
	params, err := connectionParams()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	data, err := app.client.DownloadObjectToBuffer(ctx, params, bucket, args[0])
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runMv(cmd *cobra.Command, args []string) error {
	bucket, err := selectedBucket()
	if err != nil {
		return err
	}
	params, err := connectionParams()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	if err := app.client.RenameObject(ctx, params, bucket, args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "renamed %s to %s\n", args[0], args[1])
	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
	bucket, err := selectedBucket()
	if err != nil {
		return err
	}
	params, err := connectionParams()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	for _, key := range args {
		if err := app.client.DeleteObject(ctx, params, bucket, key); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s/%s\n", bucket, key)
	}
	return nil
}
