// Package handler provides HTTP handlers for the filehub REST API.
package handler

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	mfs "github.com/CageChen/filehub/internal/fs"
	"github.com/CageChen/filehub/internal/logging"
	"github.com/CageChen/filehub/internal/metrics"
	"github.com/CageChen/filehub/internal/preview"
)

// PreviewResponse represents the response for a preview request
type PreviewResponse struct {
	Path     string            `json:"path"`
	Category preview.Category  `json:"category"`
	HTML     string            `json:"html,omitempty"`
	TOC      []preview.TOCItem `json:"toc,omitempty"`
	Title    string            `json:"title,omitempty"`
	URL      string            `json:"url"`
	Size     int64             `json:"size"`
	TooLarge bool              `json:"tooLarge,omitempty"`
}

// ContentHandler serves file contents: raw downloads, rendered previews and
// directory archives.
type ContentHandler struct {
	local    *mfs.LocalFS
	renderer *preview.Renderer
	maxBytes int64
}

// NewContentHandler creates a new content handler. Files larger than
// maxBytes are not rendered.
func NewContentHandler(local *mfs.LocalFS, renderer *preview.Renderer, maxBytes int64) *ContentHandler {
	return &ContentHandler{
		local:    local,
		renderer: renderer,
		maxBytes: maxBytes,
	}
}

// Raw streams a file with a sniffed content type.
func (h *ContentHandler) Raw(c *gin.Context) {
	const op = "download"
	p := c.Query("path")
	if p == "" {
		missingField(c, op, "Path is required")
		return
	}

	f, entry, err := h.local.Open(c.Request.Context(), p)
	if err != nil {
		respondError(c, op, err)
		return
	}
	defer func() { _ = f.Close() }()

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		respondError(c, op, err)
		return
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		respondError(c, op, err)
		return
	}

	c.Header("Content-Type", mt.String())
	if c.Query("download") != "" {
		c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": entry.Name}))
	}
	metrics.RecordDownload(entry.Size)
	succeeded(op)
	http.ServeContent(c.Writer, c.Request, entry.Name, entry.LastModified, f)
}

// Preview renders a file for display.
func (h *ContentHandler) Preview(c *gin.Context) {
	const op = "preview"
	p := c.Query("path")
	if p == "" {
		missingField(c, op, "Path is required")
		return
	}

	f, entry, err := h.local.Open(c.Request.Context(), p)
	if err != nil {
		respondError(c, op, err)
		return
	}
	defer func() { _ = f.Close() }()

	resp := PreviewResponse{
		Path:     entry.Path,
		Category: preview.CategoryOf(entry.Extension),
		URL:      rawURL(entry.Path),
		Size:     entry.Size,
	}
	if h.maxBytes > 0 && entry.Size > h.maxBytes {
		resp.TooLarge = true
		succeeded(op)
		c.JSON(http.StatusOK, resp)
		return
	}

	src, err := io.ReadAll(f)
	if err != nil {
		respondError(c, op, err)
		return
	}
	result, err := h.renderer.Render(entry.Name, src)
	if err != nil {
		respondError(c, op, err)
		return
	}
	resp.Category = result.Category
	resp.HTML = result.HTML
	resp.TOC = result.TOC
	resp.Title = result.Title

	succeeded(op)
	c.JSON(http.StatusOK, resp)
}

// Archive streams a directory as a zip file. Entry names are relative to the
// directory's parent so the archive unpacks into a single folder.
func (h *ContentHandler) Archive(c *gin.Context) {
	const op = "archive"
	p := c.Query("path")
	if p == "" {
		missingField(c, op, "Path is required")
		return
	}

	ctx := c.Request.Context()
	dir, err := h.local.Stat(ctx, p)
	if err != nil {
		respondError(c, op, err)
		return
	}
	if !dir.IsDir() {
		respondError(c, op, &mfs.Error{Kind: mfs.KindWrongKind, Op: op, Path: dir.Path, Msg: "Path is not a directory"})
		return
	}

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dir.Name + ".zip"}))
	c.Status(http.StatusOK)

	base := path.Dir(dir.Path)
	zw := zip.NewWriter(c.Writer)
	var written int64
	err = h.local.Walk(ctx, dir.Path, func(entry mfs.FileEntry) error {
		name := strings.TrimPrefix(entry.Path, base+"/")
		if entry.IsDir() {
			_, err := zw.Create(name + "/")
			return err
		}
		f, _, err := h.local.Open(ctx, entry.Path)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()

		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: entry.LastModified,
		})
		if err != nil {
			return err
		}
		n, err := io.Copy(w, f)
		written += n
		return err
	})
	if err == nil {
		err = zw.Close()
	}
	if err != nil {
		// Headers are already sent; the truncated archive is the only signal
		// the client gets.
		logging.WithContext(ctx).Error("archive failed",
			zap.String("path", dir.Path),
			zap.Error(err),
		)
		metrics.RecordOperation(op, string(mfs.KindOf(err)))
		return
	}
	metrics.RecordDownload(written)
	succeeded(op)
}

// rawURL returns the download link for a listing path.
func rawURL(p string) string {
	return fmt.Sprintf("/api/files/raw?path=%s", url.QueryEscape(p))
}
