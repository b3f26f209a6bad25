// Package server assembles the filehub HTTP API.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/CageChen/filehub/internal/config"
	mfs "github.com/CageChen/filehub/internal/fs"
	"github.com/CageChen/filehub/internal/handler"
	"github.com/CageChen/filehub/internal/logging"
	"github.com/CageChen/filehub/internal/metrics"
	"github.com/CageChen/filehub/internal/preview"
)

// Server owns the gateways and the router built on them.
type Server struct {
	cfg      *config.Config
	guard    *mfs.Guard
	local    *mfs.LocalFS
	remote   *mfs.RemoteFS
	manifest *mfs.ManifestFS
	ws       *handler.WSHandler
	engine   *gin.Engine
}

// New builds the gateways for cfg and registers every route.
func New(cfg *config.Config) (*Server, error) {
	guard, err := mfs.NewGuard(cfg.WorkDir, cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("create path guard: %w", err)
	}

	timeout := cfg.Remote.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &Server{
		cfg:   cfg,
		guard: guard,
		local: mfs.NewLocalFS(guard, cfg.Writable()),
		remote: mfs.NewRemoteFS(guard, mfs.RemoteConfig{
			BaseURL: cfg.Remote.BaseURL,
			Owner:   cfg.Remote.Owner,
			Repo:    cfg.Remote.Repo,
			Branch:  cfg.Remote.Branch,
			Token:   cfg.Remote.Token,
		}, &http.Client{Timeout: timeout}),
		manifest: mfs.NewManifestFS(guard, cfg.ManifestPath()),
		ws:       handler.NewWSHandler(),
	}
	s.engine = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	files := handler.NewFilesHandler(s.cfg, s.local, s.remote, s.manifest)
	content := handler.NewContentHandler(s.local, preview.NewRenderer(), s.cfg.Preview.MaxBytes)
	writable := handler.RequireWritable(s.cfg.Writable())

	r := gin.New()
	r.Use(logging.Middleware())
	r.Use(gin.Recovery())
	r.Use(handler.CORS())

	api := r.Group("/api")
	{
		api.GET("/config", files.GetConfig)
		api.GET("/ws", s.ws.HandleWS)

		fg := api.Group("/files")
		fg.GET("", files.List)
		fg.GET("/raw", content.Raw)
		fg.GET("/preview", content.Preview)
		fg.GET("/archive", content.Archive)

		fg.POST("/create-file", writable, files.CreateFile)
		fg.POST("/create-folder", writable, files.CreateFolder)
		fg.PUT("/save", writable, files.Save)
		fg.PATCH("/rename", writable, files.Rename)
		fg.PATCH("/move", writable, files.Move)
		fg.DELETE("/delete", writable, files.Delete)
		fg.POST("/upload", writable, files.Upload)
	}
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	return r
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Guard returns the path guard shared by every gateway.
func (s *Server) Guard() *mfs.Guard {
	return s.guard
}

// WS returns the websocket hub that change events are broadcast through.
func (s *Server) WS() *handler.WSHandler {
	return s.ws
}

// Run serves the API on the configured address until it fails.
func (s *Server) Run() error {
	logging.L().Info("server starting",
		zap.String("addr", s.cfg.Addr()),
		zap.String("mode", s.cfg.Mode),
		zap.String("root", s.guard.RootAbs()),
	)
	return s.engine.Run(s.cfg.Addr())
}
