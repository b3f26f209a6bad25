// Package fs provides the file gateway: path confinement, local filesystem
// operations, and the read-only remote mirror and manifest listing sources.
package fs

import (
	"context"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// EntryType is the kind of a listing entry.
type EntryType string

// Entry kinds.
const (
	TypeFile      EntryType = "file"
	TypeDirectory EntryType = "directory"
)

// FileEntry is one file or directory record in a listing.
//
// Path is slash separated and always starts with the confinement root
// segment. URL is only set for entries served by the remote mirror; readers
// must download those from URL instead of building a local path. Children is
// only populated for entries that come from a manifest scan.
type FileEntry struct {
	Name         string      `json:"name"`
	Path         string      `json:"path"`
	Type         EntryType   `json:"type"`
	Size         int64       `json:"size"`
	Extension    string      `json:"extension,omitempty"`
	LastModified time.Time   `json:"lastModified"`
	URL          string      `json:"url,omitempty"`
	Children     []FileEntry `json:"children,omitempty"`
}

// IsDir reports whether the entry is a directory.
func (e FileEntry) IsDir() bool {
	return e.Type == TypeDirectory
}

// Lister is a source of directory listings. LocalFS, RemoteFS and ManifestFS
// all normalise their own storage shapes to FileEntry.
type Lister interface {
	List(ctx context.Context, path string) ([]FileEntry, error)
}

// Extension returns the lower-cased suffix after the last '.' in name.
func Extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// SortEntries orders entries with directories first, then files, each group
// by locale-aware name comparison.
func SortEntries(entries []FileEntry) {
	// Collators keep internal buffers and are not safe for concurrent use.
	col := collate.New(language.English)
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.IsDir() != b.IsDir() {
			return a.IsDir()
		}
		if c := col.CompareString(a.Name, b.Name); c != 0 {
			return c < 0
		}
		return a.Name < b.Name
	})
}

func joinSlash(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

func parentDir(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return ""
	}
	return path[:i]
}
