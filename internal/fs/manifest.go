package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultManifestName is the manifest file name inside the confinement root.
const DefaultManifestName = "file-manifest.json"

// Scan builds the eager tree of the confinement root: every directory
// carries its full sorted children. The manifest file itself is left out.
func Scan(ctx context.Context, guard *Guard) ([]FileEntry, error) {
	return scanDir(ctx, guard.RootAbs(), guard.Root(), true)
}

func scanDir(ctx context.Context, abs, rel string, top bool) ([]FileEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	des, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", rel, err)
	}
	entries := make([]FileEntry, 0, len(des))
	for _, de := range des {
		name := de.Name()
		if top && name == DefaultManifestName {
			continue
		}
		childAbs := filepath.Join(abs, name)
		info, err := os.Stat(childAbs)
		if err != nil {
			continue
		}
		e := entryFromInfo(joinSlash(rel, name), info)
		if e.IsDir() && de.Type()&os.ModeSymlink == 0 {
			children, err := scanDir(ctx, childAbs, e.Path, false)
			if err != nil {
				return nil, err
			}
			e.Children = children
		}
		entries = append(entries, e)
	}
	SortEntries(entries)
	return entries, nil
}

// WriteManifest writes tree to file as indented JSON.
func WriteManifest(file string, tree []FileEntry) error {
	if tree == nil {
		tree = []FileEntry{}
	}
	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(file, data, filePerm)
}

// ReadManifest loads a manifest tree from file.
func ReadManifest(file string) ([]FileEntry, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var tree []FileEntry
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", file, err)
	}
	return tree, nil
}

// Lookup returns the children of the directory at p inside tree. A segment
// that matches no directory yields an empty listing rather than an error, so
// unknown paths look like empty folders.
func Lookup(tree []FileEntry, p, root string) []FileEntry {
	var rest string
	switch {
	case p == root:
	case strings.HasPrefix(p, root+"/"):
		rest = strings.Trim(p[len(root)+1:], "/")
	default:
		return []FileEntry{}
	}
	level := tree
	if rest == "" {
		return nonNil(level)
	}
	for _, seg := range strings.Split(rest, "/") {
		var next []FileEntry
		found := false
		for _, e := range level {
			if e.IsDir() && e.Name == seg {
				next, found = e.Children, true
				break
			}
		}
		if !found {
			return []FileEntry{}
		}
		level = next
	}
	return nonNil(level)
}

func nonNil(entries []FileEntry) []FileEntry {
	if entries == nil {
		return []FileEntry{}
	}
	return entries
}

// ManifestFS serves listings from a manifest file. The file is read on every
// call so a regenerated manifest is picked up without a restart.
type ManifestFS struct {
	guard *Guard
	file  string
}

// NewManifestFS creates a ManifestFS reading file.
func NewManifestFS(guard *Guard, file string) *ManifestFS {
	return &ManifestFS{guard: guard, file: file}
}

// File returns the manifest path.
func (m *ManifestFS) File() string {
	return m.file
}

// List returns the manifest children of dir.
func (m *ManifestFS) List(_ context.Context, dir string) ([]FileEntry, error) {
	rel, err := m.guard.Clean(dir)
	if err != nil {
		return nil, err
	}
	tree, err := ReadManifest(m.file)
	if err != nil {
		return nil, &Error{Kind: KindUnexpected, Op: "list manifest", Path: rel, Msg: "Failed to read file manifest", Err: err}
	}
	return Lookup(tree, rel, m.guard.Root()), nil
}
