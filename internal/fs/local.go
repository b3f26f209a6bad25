package fs

import (
	"context"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	filePerm = 0o644
	dirPerm  = 0o755
)

// LocalFS executes one filesystem primitive per call against the
// confinement root. Every path argument is admitted independently, and
// mutations are refused outright unless the LocalFS was built writable.
//
// Operations are check-then-act: two callers racing on the same path are not
// serialised, and a failure halfway through a recursive delete is not undone.
type LocalFS struct {
	guard    *Guard
	writable bool
}

// NewLocalFS creates a LocalFS. writable is the mutation gate; it is fixed for
// the lifetime of the value.
func NewLocalFS(guard *Guard, writable bool) *LocalFS {
	return &LocalFS{guard: guard, writable: writable}
}

// Guard returns the path guard used by l.
func (l *LocalFS) Guard() *Guard {
	return l.guard
}

// Writable reports whether mutations are permitted.
func (l *LocalFS) Writable() bool {
	return l.writable
}

// List returns the immediate children of dir, sorted directories first.
func (l *LocalFS) List(_ context.Context, dir string) ([]FileEntry, error) {
	a, err := l.guard.Admit(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(a.Abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newError(KindNotFound, "list", a.Rel, "Directory not found")
		}
		return nil, classify("list", a.Rel, err)
	}
	if !info.IsDir() {
		return nil, newError(KindWrongKind, "list", a.Rel, "Path is not a directory")
	}

	des, err := os.ReadDir(a.Abs)
	if err != nil {
		return nil, classify("list", a.Rel, err)
	}
	entries := make([]FileEntry, 0, len(des))
	for _, de := range des {
		// Stat rather than de.Info so links report their target's kind.
		info, err := os.Stat(filepath.Join(a.Abs, de.Name()))
		if err != nil {
			continue
		}
		entries = append(entries, entryFromInfo(joinSlash(a.Rel, de.Name()), info))
	}
	SortEntries(entries)
	return entries, nil
}

// Stat returns the entry for a single path.
func (l *LocalFS) Stat(_ context.Context, p string) (FileEntry, error) {
	a, err := l.guard.Admit(p)
	if err != nil {
		return FileEntry{}, err
	}
	info, err := os.Stat(a.Abs)
	if err != nil {
		return FileEntry{}, classify("stat", a.Rel, err)
	}
	return entryFromInfo(a.Rel, info), nil
}

// CreateFile creates name inside dir with the given initial content and
// returns the new path. An existing item is never overwritten.
func (l *LocalFS) CreateFile(_ context.Context, dir, name string, content []byte) (string, error) {
	const op = "create file"
	if err := l.requireWritable(op, dir); err != nil {
		return "", err
	}
	if err := validName(op, name); err != nil {
		return "", err
	}
	d, t, err := l.admitChild(op, dir, name)
	if err != nil {
		return "", err
	}
	if exists(t.Link) {
		return "", newError(KindAlreadyExists, op, t.Rel, "File already exists")
	}
	if err := requireDir(op, d); err != nil {
		return "", err
	}

	f, err := os.OpenFile(t.Link, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return "", classify(op, t.Rel, err)
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return "", classify(op, t.Rel, err)
	}
	if err := f.Close(); err != nil {
		return "", classify(op, t.Rel, err)
	}
	return t.Rel, nil
}

// CreateFolder creates name inside dir, including any missing parents, and
// returns the new path.
func (l *LocalFS) CreateFolder(_ context.Context, dir, name string) (string, error) {
	const op = "create folder"
	if err := l.requireWritable(op, dir); err != nil {
		return "", err
	}
	if err := validName(op, name); err != nil {
		return "", err
	}
	d, t, err := l.admitChild(op, dir, name)
	if err != nil {
		return "", err
	}
	if exists(t.Link) {
		return "", newError(KindAlreadyExists, op, t.Rel, "Folder already exists")
	}
	// Missing parents are created; an existing file in the way is not.
	if info, err := os.Stat(d.Abs); err == nil && !info.IsDir() {
		return "", newError(KindWrongKind, op, d.Rel, "Path is not a directory")
	}
	if err := os.MkdirAll(t.Link, dirPerm); err != nil {
		return "", classify(op, t.Rel, err)
	}
	return t.Rel, nil
}

// Save replaces the whole content of an existing regular file.
func (l *LocalFS) Save(_ context.Context, p string, content []byte) error {
	const op = "save"
	if err := l.requireWritable(op, p); err != nil {
		return err
	}
	a, err := l.guard.Admit(p)
	if err != nil {
		return err
	}
	info, err := os.Stat(a.Abs)
	if err != nil {
		if os.IsNotExist(err) {
			return newError(KindNotFound, op, a.Rel, "File does not exist")
		}
		return classify(op, a.Rel, err)
	}
	if !info.Mode().IsRegular() {
		return newError(KindWrongKind, op, a.Rel, "Path is not a file")
	}
	if err := os.WriteFile(a.Abs, content, info.Mode().Perm()); err != nil {
		return classify(op, a.Rel, err)
	}
	return nil
}

// Rename gives the item at p a new base name in the same directory and
// returns the new path.
func (l *LocalFS) Rename(_ context.Context, p, newName string) (string, error) {
	const op = "rename"
	if err := l.requireWritable(op, p); err != nil {
		return "", err
	}
	if err := validName(op, newName); err != nil {
		return "", err
	}
	a, err := l.guard.Admit(p)
	if err != nil {
		return "", err
	}
	if a.IsRoot() {
		return "", newError(KindOutOfScope, op, a.Rel, "The "+l.guard.Root()+" directory cannot be renamed")
	}
	if !exists(a.Link) {
		return "", newError(KindNotFound, op, a.Rel, "Item does not exist")
	}
	n, err := l.guard.Admit(joinSlash(parentDir(a.Rel), newName))
	if err != nil {
		return "", err
	}
	if exists(n.Link) {
		return "", newError(KindAlreadyExists, op, n.Rel, "An item with this name already exists")
	}
	if err := os.Rename(a.Link, n.Link); err != nil {
		return "", classify(op, a.Rel, err)
	}
	return n.Rel, nil
}

// Move relocates the item at src into the directory destDir, keeping its
// base name, and returns the new path. Directory trees are never merged.
func (l *LocalFS) Move(_ context.Context, src, destDir string) (string, error) {
	const op = "move"
	if err := l.requireWritable(op, src); err != nil {
		return "", err
	}
	s, err := l.guard.Admit(src)
	if err != nil {
		return "", err
	}
	d, err := l.guard.Admit(destDir)
	if err != nil {
		return "", err
	}
	if s.IsRoot() {
		return "", newError(KindOutOfScope, op, s.Rel, "The "+l.guard.Root()+" directory cannot be moved")
	}
	srcInfo, err := os.Lstat(s.Link)
	if err != nil {
		if os.IsNotExist(err) {
			return "", newError(KindNotFound, op, s.Rel, "Source item does not exist")
		}
		return "", classify(op, s.Rel, err)
	}
	info, err := os.Stat(d.Abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", newError(KindNotFound, op, d.Rel, "Destination directory does not exist")
		}
		return "", classify(op, d.Rel, err)
	}
	if !info.IsDir() {
		return "", newError(KindWrongKind, op, d.Rel, "Destination is not a directory")
	}
	if srcInfo.IsDir() && within(s.Link, d.Abs) {
		return "", newError(KindWrongKind, op, d.Rel, "Cannot move a directory into itself")
	}

	t, err := l.guard.Admit(joinSlash(d.Rel, baseName(s.Rel)))
	if err != nil {
		return "", err
	}
	if exists(t.Link) {
		return "", newError(KindAlreadyExists, op, t.Rel, "An item with this name already exists at the destination")
	}
	if err := os.Rename(s.Link, t.Link); err != nil {
		return "", classify(op, s.Rel, err)
	}
	return t.Rel, nil
}

// Delete removes the item at p. Directories are removed recursively with no
// confirmation and no undo.
func (l *LocalFS) Delete(_ context.Context, p string) error {
	const op = "delete"
	if err := l.requireWritable(op, p); err != nil {
		return err
	}
	a, err := l.guard.Admit(p)
	if err != nil {
		return err
	}
	if a.IsRoot() {
		return newError(KindOutOfScope, op, a.Rel, "The "+l.guard.Root()+" directory cannot be deleted")
	}
	info, err := os.Lstat(a.Link)
	if err != nil {
		if os.IsNotExist(err) {
			return newError(KindNotFound, op, a.Rel, "Item does not exist")
		}
		return classify(op, a.Rel, err)
	}
	if info.IsDir() {
		err = os.RemoveAll(a.Link)
	} else {
		err = os.Remove(a.Link)
	}
	return classify(op, a.Rel, err)
}

// Upload writes r verbatim to a new file called name inside dir.
func (l *LocalFS) Upload(_ context.Context, dir, name string, r io.Reader) (FileEntry, error) {
	const op = "upload"
	if err := l.requireWritable(op, dir); err != nil {
		return FileEntry{}, err
	}
	if err := validName(op, name); err != nil {
		return FileEntry{}, err
	}
	d, t, err := l.admitChild(op, dir, name)
	if err != nil {
		return FileEntry{}, err
	}
	if exists(t.Link) {
		return FileEntry{}, newError(KindAlreadyExists, op, t.Rel, "File already exists")
	}
	if err := requireDir(op, d); err != nil {
		return FileEntry{}, err
	}

	f, err := os.OpenFile(t.Link, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return FileEntry{}, classify(op, t.Rel, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(t.Link)
		return FileEntry{}, classify(op, t.Rel, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(t.Link)
		return FileEntry{}, classify(op, t.Rel, err)
	}
	info, err := os.Stat(t.Link)
	if err != nil {
		return FileEntry{}, classify(op, t.Rel, err)
	}
	return entryFromInfo(t.Rel, info), nil
}

// Open opens a regular file for reading. Reads are allowed in every mode.
// The caller closes the returned file.
func (l *LocalFS) Open(_ context.Context, p string) (*os.File, FileEntry, error) {
	const op = "open"
	a, err := l.guard.Admit(p)
	if err != nil {
		return nil, FileEntry{}, err
	}
	f, err := os.Open(a.Abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, FileEntry{}, newError(KindNotFound, op, a.Rel, "File not found")
		}
		return nil, FileEntry{}, classify(op, a.Rel, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, FileEntry{}, classify(op, a.Rel, err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, FileEntry{}, newError(KindWrongKind, op, a.Rel, "Path is a directory")
	}
	return f, entryFromInfo(a.Rel, info), nil
}

// WalkFunc is called for every entry below the walked directory.
type WalkFunc func(entry FileEntry) error

// Walk visits every file and directory below dir in lexical order. Symbolic
// links are skipped; callers that read files admit each path again.
func (l *LocalFS) Walk(ctx context.Context, dir string, fn WalkFunc) error {
	const op = "walk"
	a, err := l.guard.Admit(dir)
	if err != nil {
		return err
	}
	if err := requireDir(op, a); err != nil {
		return err
	}
	err = filepath.WalkDir(a.Abs, func(p string, de iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == a.Abs || de.Type()&iofs.ModeSymlink != 0 {
			return nil
		}
		r, err := filepath.Rel(a.Abs, p)
		if err != nil {
			return err
		}
		info, err := de.Info()
		if err != nil {
			return err
		}
		return fn(entryFromInfo(joinSlash(a.Rel, filepath.ToSlash(r)), info))
	})
	return classify(op, a.Rel, err)
}

func (l *LocalFS) requireWritable(op, p string) error {
	if l.writable {
		return nil
	}
	return newError(KindModeForbidden, op, p, "File operations are only allowed in development mode")
}

// admitChild admits dir and dir/name.
func (l *LocalFS) admitChild(op, dir, name string) (Admitted, Admitted, error) {
	if dir == "" {
		return Admitted{}, Admitted{}, newError(KindMissingField, op, dir, "Path is required")
	}
	d, err := l.guard.Admit(dir)
	if err != nil {
		return Admitted{}, Admitted{}, err
	}
	t, err := l.guard.Admit(joinSlash(d.Rel, name))
	if err != nil {
		return Admitted{}, Admitted{}, err
	}
	return d, t, nil
}

func requireDir(op string, a Admitted) error {
	info, err := os.Stat(a.Abs)
	if err != nil {
		if os.IsNotExist(err) {
			return newError(KindNotFound, op, a.Rel, "Directory not found")
		}
		return classify(op, a.Rel, err)
	}
	if !info.IsDir() {
		return newError(KindWrongKind, op, a.Rel, "Path is not a directory")
	}
	return nil
}

func validName(op, name string) error {
	if name == "" {
		return newError(KindMissingField, op, name, "Name is required")
	}
	if name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00") {
		return newError(KindOutOfScope, op, name, "Name must not contain path separators")
	}
	return nil
}

func exists(abs string) bool {
	_, err := os.Lstat(abs)
	return err == nil
}

// within reports whether child is parent or lies below it.
func within(parent, child string) bool {
	r, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return r == "." || (r != ".." && !strings.HasPrefix(r, ".."+string(filepath.Separator)))
}

func entryFromInfo(rel string, info iofs.FileInfo) FileEntry {
	e := FileEntry{
		Name:         baseName(rel),
		Path:         rel,
		LastModified: info.ModTime().UTC(),
	}
	if info.IsDir() {
		e.Type = TypeDirectory
		return e
	}
	e.Type = TypeFile
	e.Size = info.Size()
	e.Extension = Extension(e.Name)
	return e
}
