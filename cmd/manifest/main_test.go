package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/CageChen/filehub/internal/config"
	mfs "github.com/CageChen/filehub/internal/fs"
)

func TestRun(t *testing.T) {
	work := t.TempDir()
	if err := os.MkdirAll(filepath.Join(work, "public", "docs"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(work, "public", "docs", "a.md"), []byte("# a"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.WorkDir = work
	if err := run(context.Background(), cfg); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	tree, err := mfs.ReadManifest(cfg.ManifestPath())
	if err != nil {
		t.Fatalf("ReadManifest failed: %v", err)
	}
	if got := countEntries(tree); got != 2 {
		t.Errorf("expected 2 entries, got %d", got)
	}

	// A second run must not list the manifest itself.
	if err := run(context.Background(), cfg); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	tree, _ = mfs.ReadManifest(cfg.ManifestPath())
	if len(tree) != 1 || tree[0].Path != "public/docs" {
		t.Errorf("unexpected top level %+v", tree)
	}
}
