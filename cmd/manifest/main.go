// Package main writes the file manifest that production listings are served
// from. Run it at build time after the confinement root is populated.
package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/CageChen/filehub/internal/config"
	mfs "github.com/CageChen/filehub/internal/fs"
	"github.com/CageChen/filehub/internal/logging"
	"github.com/CageChen/filehub/internal/metrics"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logging.Sync() }()

	if err := run(context.Background(), cfg); err != nil {
		logging.L().Error("manifest generation failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	guard, err := mfs.NewGuard(cfg.WorkDir, cfg.Root)
	if err != nil {
		return err
	}
	tree, err := mfs.Scan(ctx, guard)
	if err != nil {
		return err
	}
	out := cfg.ManifestPath()
	if err := mfs.WriteManifest(out, tree); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	n := countEntries(tree)
	metrics.SetManifestEntries(n)
	logging.L().Info("manifest written",
		zap.String("file", out),
		zap.Int("entries", n),
	)
	return nil
}

func countEntries(tree []mfs.FileEntry) int {
	n := len(tree)
	for _, e := range tree {
		n += countEntries(e.Children)
	}
	return n
}
