package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/CageChen/filehub/internal/config"
	mfs "github.com/CageChen/filehub/internal/fs"
	"github.com/CageChen/filehub/internal/metrics"
)

// FilesHandler serves listings and the mutation endpoints.
type FilesHandler struct {
	cfg      *config.Config
	local    *mfs.LocalFS
	remote   mfs.Lister
	manifest mfs.Lister
}

// NewFilesHandler creates a new files handler
func NewFilesHandler(cfg *config.Config, local *mfs.LocalFS, remote, manifest mfs.Lister) *FilesHandler {
	return &FilesHandler{
		cfg:      cfg,
		local:    local,
		remote:   remote,
		manifest: manifest,
	}
}

// lister picks the listing source: the remote mirror when asked for (or
// configured as default), the live filesystem in development mode, and the
// manifest otherwise.
func (h *FilesHandler) lister(source string) mfs.Lister {
	switch strings.ToLower(source) {
	case config.SourceRemote, "github":
		return h.remote
	case config.SourceLocal:
	default:
		if h.cfg.Source == config.SourceRemote {
			return h.remote
		}
	}
	if h.cfg.Writable() {
		return h.local
	}
	return h.manifest
}

// List returns the sorted children of a directory.
func (h *FilesHandler) List(c *gin.Context) {
	const op = "list"
	dir := c.DefaultQuery("path", h.local.Guard().Root())

	entries, err := h.lister(c.Query("source")).List(c.Request.Context(), dir)
	if err != nil {
		respondError(c, op, err)
		return
	}
	succeeded(op)
	c.JSON(http.StatusOK, entries)
}

// CreateFileRequest is the body of a create-file request.
type CreateFileRequest struct {
	Path     string `json:"path"`
	FileName string `json:"fileName"`
	Content  string `json:"content"`
}

// CreateFile creates a new file, optionally seeded with content.
func (h *FilesHandler) CreateFile(c *gin.Context) {
	const op = "create file"
	var req CreateFileRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Path == "" || req.FileName == "" {
		missingField(c, op, "Path and file name are required")
		return
	}

	p, err := h.local.CreateFile(c.Request.Context(), req.Path, req.FileName, []byte(req.Content))
	if err != nil {
		respondError(c, op, err)
		return
	}
	succeeded(op)
	c.JSON(http.StatusOK, gin.H{"success": true, "path": p})
}

// CreateFolderRequest is the body of a create-folder request.
type CreateFolderRequest struct {
	Path       string `json:"path"`
	FolderName string `json:"folderName"`
}

// CreateFolder creates a new directory.
func (h *FilesHandler) CreateFolder(c *gin.Context) {
	const op = "create folder"
	var req CreateFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Path == "" || req.FolderName == "" {
		missingField(c, op, "Path and folder name are required")
		return
	}

	p, err := h.local.CreateFolder(c.Request.Context(), req.Path, req.FolderName)
	if err != nil {
		respondError(c, op, err)
		return
	}
	succeeded(op)
	c.JSON(http.StatusOK, gin.H{"success": true, "path": p})
}

// SaveRequest is the body of a save request. Content is a pointer so an
// empty file body can be told apart from a missing one.
type SaveRequest struct {
	Path    string  `json:"path"`
	Content *string `json:"content"`
}

// Save overwrites an existing file.
func (h *FilesHandler) Save(c *gin.Context) {
	const op = "save"
	var req SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Path == "" {
		missingField(c, op, "Path is required")
		return
	}
	if req.Content == nil {
		missingField(c, op, "Content is required")
		return
	}

	if err := h.local.Save(c.Request.Context(), req.Path, []byte(*req.Content)); err != nil {
		respondError(c, op, err)
		return
	}
	succeeded(op)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RenameRequest is the body of a rename request.
type RenameRequest struct {
	Path    string `json:"path"`
	NewName string `json:"newName"`
}

// Rename renames an item inside its directory.
func (h *FilesHandler) Rename(c *gin.Context) {
	const op = "rename"
	var req RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Path == "" || req.NewName == "" {
		missingField(c, op, "Path and new name are required")
		return
	}

	p, err := h.local.Rename(c.Request.Context(), req.Path, req.NewName)
	if err != nil {
		respondError(c, op, err)
		return
	}
	succeeded(op)
	c.JSON(http.StatusOK, gin.H{"success": true, "newPath": p})
}

// MoveRequest is the body of a move request. DestinationPath is a directory.
type MoveRequest struct {
	SourcePath      string `json:"sourcePath"`
	DestinationPath string `json:"destinationPath"`
}

// Move relocates an item into another directory.
func (h *FilesHandler) Move(c *gin.Context) {
	const op = "move"
	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SourcePath == "" || req.DestinationPath == "" {
		missingField(c, op, "Source and destination paths are required")
		return
	}

	p, err := h.local.Move(c.Request.Context(), req.SourcePath, req.DestinationPath)
	if err != nil {
		respondError(c, op, err)
		return
	}
	succeeded(op)
	c.JSON(http.StatusOK, gin.H{"success": true, "newPath": p})
}

// DeleteRequest is the body of a delete request.
type DeleteRequest struct {
	Path string `json:"path"`
}

// Delete removes a file or a whole directory tree. The path may also be
// given as a query parameter for clients that cannot send DELETE bodies.
func (h *FilesHandler) Delete(c *gin.Context) {
	const op = "delete"
	var req DeleteRequest
	if c.Request.ContentLength != 0 {
		_ = c.ShouldBindJSON(&req)
	}
	if req.Path == "" {
		req.Path = c.Query("path")
	}
	if req.Path == "" {
		missingField(c, op, "Path is required")
		return
	}

	if err := h.local.Delete(c.Request.Context(), req.Path); err != nil {
		respondError(c, op, err)
		return
	}
	succeeded(op)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Upload stores a multipart file under its original name.
func (h *FilesHandler) Upload(c *gin.Context) {
	const op = "upload"
	header, err := c.FormFile("file")
	if err != nil {
		missingField(c, op, "No file provided")
		return
	}
	dir := c.PostForm("path")
	if dir == "" {
		missingField(c, op, "Path is required")
		return
	}

	file, err := header.Open()
	if err != nil {
		respondError(c, op, err)
		return
	}
	defer func() { _ = file.Close() }()

	entry, err := h.local.Upload(c.Request.Context(), dir, header.Filename, file)
	if err != nil {
		respondError(c, op, err)
		return
	}
	metrics.RecordUpload(entry.Size)
	succeeded(op)
	c.JSON(http.StatusOK, gin.H{"success": true, "file": entry})
}

// GetConfig reports the settings a client needs to decide which actions to
// offer.
func (h *FilesHandler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"mode":     h.cfg.Mode,
		"writable": h.cfg.Writable(),
		"source":   h.cfg.Source,
		"root":     h.local.Guard().Root(),
	})
}
