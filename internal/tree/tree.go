// Package tree projects flat object listings onto a lazily loaded folder
// hierarchy. Buckets are the roots; each folder's children are fetched by
// listing one level under its path when the folder is expanded. Files never
// enter the tree: Expand returns them as the file list of the expanded folder.
package tree

import (
	"context"
	"strings"

	"github.com/koustreak/s3nav/internal/filestore"
)

// Lister is the part of filestore.Client the tree needs.
type Lister interface {
	ListObjects(ctx context.Context, params filestore.ConnectionParams, bucket, prefix, delimiter string) ([]filestore.ObjectEntry, error)
}

// FolderNode is one folder (or bucket) in the hierarchy.
type FolderNode struct {
	Name     string
	FullPath string // folder key within Bucket, "" for the bucket root
	Bucket   string
	IsBucket bool
	Children []*FolderNode
	Loaded   bool // Children reflects at least one listing
}

// BucketNodes returns one unloaded root node per bucket, in the given order.
func BucketNodes(buckets []filestore.Bucket) []*FolderNode {
	nodes := make([]*FolderNode, len(buckets))
	for i, b := range buckets {
		nodes[i] = &FolderNode{
			Name:     b.Name,
			Bucket:   b.Name,
			IsBucket: true,
		}
	}
	return nodes
}

// Project splits one listing of parentPath into child folders and files.
//
// Every common prefix or folder marker below parentPath becomes a folder.
// Keys nested deeper than one level (as returned by a listing without a
// delimiter) contribute their first path segment as a folder. Entries
// outside parentPath and the marker of parentPath itself are skipped.
// Folders and files keep the listing's order; folders are deduplicated.
func Project(bucket, parentPath string, entries []filestore.ObjectEntry) ([]*FolderNode, []filestore.ObjectEntry) {
	parent := filestore.FolderKey(parentPath)

	folders := []*FolderNode{}
	files := []filestore.ObjectEntry{}
	seen := make(map[string]bool)

	for _, e := range entries {
		if !strings.HasPrefix(e.Key, parent) || e.Key == parent {
			continue
		}
		rest := e.Key[len(parent):]

		if i := strings.Index(rest, filestore.Delimiter); i >= 0 || e.IsFolder() {
			name := strings.TrimSuffix(rest, filestore.Delimiter)
			if i >= 0 {
				name = rest[:i]
			}
			if name == "" {
				continue
			}
			path := parent + name + filestore.Delimiter
			if seen[path] {
				continue
			}
			seen[path] = true
			folders = append(folders, &FolderNode{
				Name:     name,
				FullPath: path,
				Bucket:   bucket,
			})
			continue
		}

		files = append(files, e)
	}

	return folders, files
}

// Expand lists the folder's level and replaces its children. Children that
// survive a reload keep their own loaded subtrees. It returns the files
// directly inside the folder.
func (n *FolderNode) Expand(ctx context.Context, lister Lister, params filestore.ConnectionParams) ([]filestore.ObjectEntry, error) {
	entries, err := lister.ListObjects(ctx, params, n.Bucket, n.FullPath, filestore.Delimiter)
	if err != nil {
		return nil, err
	}

	folders, files := Project(n.Bucket, n.FullPath, entries)

	previous := make(map[string]*FolderNode, len(n.Children))
	for _, c := range n.Children {
		previous[c.FullPath] = c
	}
	for i, f := range folders {
		if old, ok := previous[f.FullPath]; ok {
			folders[i] = old
		}
	}

	n.Children = folders
	n.Loaded = true
	return files, nil
}

// ExpandAll expands n and its descendants down to depth levels below n.
// A depth of 0 expands only n.
func (n *FolderNode) ExpandAll(ctx context.Context, lister Lister, params filestore.ConnectionParams, depth int) error {
	if _, err := n.Expand(ctx, lister, params); err != nil {
		return err
	}
	if depth <= 0 {
		return nil
	}
	for _, c := range n.Children {
		if err := c.ExpandAll(ctx, lister, params, depth-1); err != nil {
			return err
		}
	}
	return nil
}

// Find returns the loaded descendant at path (a folder key relative to the
// bucket), n itself for an empty path, or nil when it is not in the tree.
func (n *FolderNode) Find(path string) *FolderNode {
	path = filestore.FolderKey(path)
	if path == n.FullPath {
		return n
	}
	for _, c := range n.Children {
		if strings.HasPrefix(path, c.FullPath) {
			return c.Find(path)
		}
	}
	return nil
}

// FindBucket returns the root node for bucket.
func FindBucket(roots []*FolderNode, bucket string) *FolderNode {
	for _, r := range roots {
		if r.IsBucket && r.Bucket == bucket {
			return r
		}
	}
	return nil
}

// Walk visits n and its loaded descendants depth first. Returning false
// from fn skips the node's children.
func (n *FolderNode) Walk(fn func(node *FolderNode, depth int) bool) {
	n.walk(fn, 0)
}

func (n *FolderNode) walk(fn func(*FolderNode, int) bool, depth int) {
	if !fn(n, depth) {
		return
	}
	for _, c := range n.Children {
		c.walk(fn, depth+1)
	}
}
