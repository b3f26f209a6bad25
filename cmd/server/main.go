// Package main is the entry point for the filehub server.
package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/CageChen/filehub/internal/config"
	mfs "github.com/CageChen/filehub/internal/fs"
	"github.com/CageChen/filehub/internal/logging"
	"github.com/CageChen/filehub/internal/server"
	"github.com/CageChen/filehub/internal/watcher"
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
	log := logging.L()

	if p := cfg.GetConfigFilePath(); p != "" {
		log.Info("config loaded", zap.String("file", p))
	}

	gin.SetMode(gin.ReleaseMode)
	srv, err := server.New(cfg)
	if err != nil {
		log.Fatal("failed to create server", zap.Error(err))
	}

	// Only the live filesystem changes under a running server; in production
	// listings come from the manifest.
	if cfg.Watch && cfg.Writable() {
		w, err := watcher.New(srv.Guard().RootAbs(), srv.Guard().Root(), mfs.DefaultManifestName)
		if err != nil {
			log.Warn("failed to create file watcher", zap.Error(err))
		} else {
			w.OnChange(srv.WS().OnFileChange)
			if err := w.Start(); err != nil {
				log.Warn("failed to start file watcher", zap.Error(err))
			} else {
				defer func() { _ = w.Stop() }()
				log.Info("file watcher enabled", zap.String("root", srv.Guard().RootAbs()))
			}
		}
	}

	if err := srv.Run(); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}
