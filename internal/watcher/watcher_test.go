package watcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
)

func newTestWatcher(t *testing.T) (*Watcher, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "public")
	if err := os.MkdirAll(filepath.Join(root, "docs"), 0o755); err != nil {
		t.Fatal(err)
	}
	w, err := New(root, "public", "file-manifest.json")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = w.watcher.Close() })
	return w, root
}

func TestRelPath(t *testing.T) {
	w, root := newTestWatcher(t)

	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{root, "public", true},
		{filepath.Join(root, "docs", "a.md"), "public/docs/a.md", true},
		{filepath.Join(filepath.Dir(root), "secret.txt"), "", false},
	}
	for _, tt := range tests {
		got, ok := w.relPath(tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("relPath(%q) = %q, %v; want %q, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestHandleEvent(t *testing.T) {
	w, root := newTestWatcher(t)

	var got []Event
	w.OnChange(func(e Event) { got = append(got, e) })

	w.handleEvent(fsnotify.Event{Name: filepath.Join(root, "docs", "a.md"), Op: fsnotify.Write})
	w.handleEvent(fsnotify.Event{Name: filepath.Join(root, "old.txt"), Op: fsnotify.Remove})
	w.handleEvent(fsnotify.Event{Name: filepath.Join(root, "file-manifest.json"), Op: fsnotify.Write})
	w.handleEvent(fsnotify.Event{Name: filepath.Join(root, "docs"), Op: fsnotify.Chmod})

	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(got), got)
	}
	if got[0].Type != EventWrite || got[0].Path != "public/docs/a.md" {
		t.Errorf("unexpected first event %+v", got[0])
	}
	if got[1].Type != EventRemove || got[1].Type.String() != "remove" {
		t.Errorf("unexpected second event %+v", got[1])
	}
}
