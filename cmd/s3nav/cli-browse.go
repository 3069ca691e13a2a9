package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/koustreak/s3nav/internal/filestore"
	"github.com/koustreak/s3nav/internal/tree"
	"github.com/spf13/cobra"
)

var (
	testBucket string
	treeDepth  int
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Check that the store is reachable with the configured credentials",
	Args:  cobra.NoArgs,
	RunE:  runTest,
}

var bucketsCmd = &cobra.Command{
	Use:   "buckets",
	Short: "List buckets",
	Args:  cobra.NoArgs,
	RunE:  runBuckets,
}

var lsCmd = &cobra.Command{
	Use:   "ls [prefix]",
	Short: "List one folder level of the selected bucket",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLs,
}

var treeCmd = &cobra.Command{
	Use:   "tree [prefix]",
	Short: "Print the folder hierarchy of the selected bucket",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTree,
}

func init() {
	testCmd.Flags().StringVar(&testBucket, "check-bucket", "", "bucket to check (default is --bucket)")
	treeCmd.Flags().IntVar(&treeDepth, "depth", 2, "folder levels to load below the prefix")

	rootCmd.AddCommand(testCmd, bucketsCmd, lsCmd, treeCmd)
}

func runTest(cmd *cobra.Command, _ []string) error {
	params, err := connectionParams()
	if err != nil {
		return err
	}
	bucket := testBucket
	if bucket == "" {
		bucket = app.settings.Bucket
	}

	ctx, stop := signalContext()
	defer stop()

	status := app.client.TestConnection(ctx, params, bucket)
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", params, status)
	if status != filestore.StatusOK {
		return fmt.Errorf("connection check %s", status)
	}
	return nil
}

func runBuckets(cmd *cobra.Command, _ []string) error {
	params, err := connectionParams()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	buckets, err := app.client.ListBuckets(ctx, params)
	if err != nil {
		return err
	}

	roots := tree.BucketNodes(buckets)
	selected := tree.FindBucket(roots, app.settings.Bucket)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for i, b := range buckets {
		mark := " "
		if roots[i] == selected {
			mark = "*"
		}
		created := "-"
		if !b.CreatedAt.IsZero() {
			created = humanize.Time(b.CreatedAt)
		}
		fmt.Fprintf(w, "%s %s\t%s\n", mark, b.Name, created)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if app.settings.Bucket != "" && selected == nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "selected bucket %q is not in the list\n", app.settings.Bucket)
	}
	return nil
}

func runLs(cmd *cobra.Command, args []string) error {
	bucket, err := selectedBucket()
	if err != nil {
		return err
	}
	params, err := connectionParams()
	if err != nil {
		return err
	}
	prefix := ""
	if len(args) == 1 {
		prefix = args[0]
	}

	ctx, stop := signalContext()
	defer stop()

	node := &tree.FolderNode{Bucket: bucket, FullPath: filestore.FolderKey(prefix), IsBucket: prefix == ""}
	files, err := node.Expand(ctx, app.client, params)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, f := range node.Children {
		fmt.Fprintf(w, "%s/\t-\t-\n", f.Name)
	}
	for _, f := range files {
		fmt.Fprintf(w, "%s\t%s\t%s\n", filestore.BaseName(f.Key), humanize.Bytes(uint64(f.Size)), f.LastModified.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runTree(cmd *cobra.Command, args []string) error {
	bucket, err := selectedBucket()
	if err != nil {
		return err
	}
	params, err := connectionParams()
	if err != nil {
		return err
	}
	prefix := ""
	if len(args) == 1 {
		prefix = args[0]
	}

	ctx, stop := signalContext()
	defer stop()

	root := &tree.FolderNode{
		Name:     bucket,
		Bucket:   bucket,
		FullPath: filestore.FolderKey(prefix),
		IsBucket: prefix == "",
	}
	if !root.IsBucket {
		root.Name = filestore.BaseName(root.FullPath)
	}
	if err := root.ExpandAll(ctx, app.client, params, treeDepth); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	root.Walk(func(n *tree.FolderNode, depth int) bool {
		suffix := "/"
		if n.IsBucket {
			suffix = ""
		}
		fmt.Fprintf(out, "%s%s%s\n", strings.Repeat("  ", depth), n.Name, suffix)
		return true
	})
	return nil
}
