package filestore

import "strings"

// Delimiter separates folder levels in object keys.
const Delimiter = "/"

// FolderKey returns path as a folder key: no leading slash, exactly one
// trailing slash. An empty path stays empty (the bucket root).
func FolderKey(path string) string {
	path = strings.Trim(path, Delimiter)
	if path == "" {
		return ""
	}
	return path + Delimiter
}

// JoinKey joins a folder prefix and a name into an object key.
func JoinKey(prefix, name string) string {
	return FolderKey(prefix) + strings.TrimPrefix(name, Delimiter)
}

// BaseName returns the last path segment of key, without a trailing slash.
func BaseName(key string) string {
	key = strings.TrimSuffix(key, Delimiter)
	if i := strings.LastIndex(key, Delimiter); i >= 0 {
		return key[i+1:]
	}
	return key
}

// ParentPrefix returns the folder key containing key, or "" at the root.
func ParentPrefix(key string) string {
	key = strings.TrimSuffix(key, Delimiter)
	if i := strings.LastIndex(key, Delimiter); i >= 0 {
		return key[:i+1]
	}
	return ""
}
