package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/CageChen/filehub/internal/config"
	mfs "github.com/CageChen/filehub/internal/fs"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type testServer struct {
	h    http.Handler
	work string
}

func newTestServer(t *testing.T, mode string, opts ...func(*config.Config)) *testServer {
	t.Helper()
	work := t.TempDir()
	if err := os.MkdirAll(filepath.Join(work, "public", "docs"), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := config.DefaultConfig()
	cfg.WorkDir = work
	cfg.Mode = mode
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid config: %v", err)
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return &testServer{h: s.Handler(), work: work}
}

func (ts *testServer) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.h.ServeHTTP(w, req)
	return w
}

func (ts *testServer) write(t *testing.T, rel, content string) {
	t.Helper()
	p := filepath.Join(ts.work, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func wantError(t *testing.T, w *httptest.ResponseRecorder, status int, kind mfs.Kind) errorBody {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, w.Code, w.Body.String())
	}
	var body errorBody
	decode(t, w, &body)
	if body.Kind != string(kind) {
		t.Errorf("expected kind %s, got %s", kind, body.Kind)
	}
	return body
}

func TestListAndCreate(t *testing.T) {
	ts := newTestServer(t, config.ModeDevelopment)

	w := ts.do(t, http.MethodPost, "/api/files/create-file", map[string]string{
		"path": "public/docs", "fileName": "a.md", "content": "# A",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("create file: %d %s", w.Code, w.Body.String())
	}
	var created struct {
		Success bool   `json:"success"`
		Path    string `json:"path"`
	}
	decode(t, w, &created)
	if !created.Success || created.Path != "public/docs/a.md" {
		t.Errorf("unexpected response %+v", created)
	}

	w = ts.do(t, http.MethodPost, "/api/files/create-file", map[string]string{
		"path": "public/docs", "fileName": "a.md",
	})
	wantError(t, w, http.StatusConflict, mfs.KindAlreadyExists)

	w = ts.do(t, http.MethodPost, "/api/files/create-folder", map[string]string{
		"path": "public", "folderName": "Images",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("create folder: %d %s", w.Code, w.Body.String())
	}

	w = ts.do(t, http.MethodGet, "/api/files", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}
	var entries []mfs.FileEntry
	decode(t, w, &entries)
	if len(entries) != 2 || entries[0].Name != "docs" || entries[1].Name != "Images" {
		t.Errorf("unexpected root listing %+v", entries)
	}

	w = ts.do(t, http.MethodGet, "/api/files?path=public/docs", nil)
	decode(t, w, &entries)
	if len(entries) != 1 || entries[0].Extension != "md" || entries[0].Size != 3 {
		t.Errorf("unexpected docs listing %+v", entries)
	}
}

func TestMissingFieldsAndScope(t *testing.T) {
	ts := newTestServer(t, config.ModeDevelopment)

	w := ts.do(t, http.MethodPost, "/api/files/create-file", map[string]string{"path": "public"})
	body := wantError(t, w, http.StatusBadRequest, mfs.KindMissingField)
	if body.Error != "Path and file name are required" {
		t.Errorf("unexpected message %q", body.Error)
	}

	w = ts.do(t, http.MethodPut, "/api/files/save", map[string]string{"path": "public/docs/a.md"})
	wantError(t, w, http.StatusBadRequest, mfs.KindMissingField)

	w = ts.do(t, http.MethodDelete, "/api/files/delete", nil)
	wantError(t, w, http.StatusBadRequest, mfs.KindMissingField)

	w = ts.do(t, http.MethodGet, "/api/files?path=../etc", nil)
	body = wantError(t, w, http.StatusBadRequest, mfs.KindOutOfScope)
	if body.Error != "Path must be within the public directory" {
		t.Errorf("unexpected message %q", body.Error)
	}

	w = ts.do(t, http.MethodPost, "/api/files/create-file", map[string]string{
		"path": "public-evil", "fileName": "x",
	})
	wantError(t, w, http.StatusBadRequest, mfs.KindOutOfScope)
	if _, err := os.Stat(filepath.Join(ts.work, "public-evil")); !os.IsNotExist(err) {
		t.Error("nothing may be created outside the root")
	}
}

func TestSaveRenameMoveDelete(t *testing.T) {
	ts := newTestServer(t, config.ModeDevelopment)
	ts.write(t, "public/a.md", "old")

	w := ts.do(t, http.MethodPut, "/api/files/save", map[string]string{"path": "public/a.md", "content": ""})
	if w.Code != http.StatusOK {
		t.Fatalf("save: %d %s", w.Code, w.Body.String())
	}
	if data, _ := os.ReadFile(filepath.Join(ts.work, "public", "a.md")); len(data) != 0 {
		t.Errorf("expected emptied file, got %q", data)
	}

	w = ts.do(t, http.MethodPatch, "/api/files/rename", map[string]string{"path": "public/a.md", "newName": "b.md"})
	var renamed struct {
		Success bool   `json:"success"`
		NewPath string `json:"newPath"`
	}
	decode(t, w, &renamed)
	if w.Code != http.StatusOK || renamed.NewPath != "public/b.md" {
		t.Fatalf("rename: %d %s", w.Code, w.Body.String())
	}

	w = ts.do(t, http.MethodPatch, "/api/files/move", map[string]string{
		"sourcePath": "public/b.md", "destinationPath": "public/docs",
	})
	decode(t, w, &renamed)
	if w.Code != http.StatusOK || renamed.NewPath != "public/docs/b.md" {
		t.Fatalf("move: %d %s", w.Code, w.Body.String())
	}

	w = ts.do(t, http.MethodPatch, "/api/files/move", map[string]string{
		"sourcePath": "public/docs", "destinationPath": "public/docs",
	})
	wantError(t, w, http.StatusBadRequest, mfs.KindWrongKind)

	w = ts.do(t, http.MethodDelete, "/api/files/delete", map[string]string{"path": "public/docs"})
	if w.Code != http.StatusOK {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}
	w = ts.do(t, http.MethodGet, "/api/files?path=public/docs", nil)
	wantError(t, w, http.StatusNotFound, mfs.KindNotFound)

	ts.write(t, "public/c.md", "c")
	w = ts.do(t, http.MethodDelete, "/api/files/delete?path=public/c.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete by query: %d %s", w.Code, w.Body.String())
	}
}

func TestProductionForbidsMutations(t *testing.T) {
	ts := newTestServer(t, config.ModeProduction)
	ts.write(t, "public/a.md", "keep")

	requests := []struct {
		method string
		target string
		body   interface{}
	}{
		{http.MethodPost, "/api/files/create-file", map[string]string{"path": "public", "fileName": "x.md"}},
		{http.MethodPost, "/api/files/create-folder", map[string]string{"path": "public", "folderName": "x"}},
		{http.MethodPut, "/api/files/save", map[string]string{"path": "public/a.md", "content": "changed"}},
		{http.MethodPatch, "/api/files/rename", map[string]string{"path": "public/a.md", "newName": "b.md"}},
		{http.MethodPatch, "/api/files/move", map[string]string{"sourcePath": "public/a.md", "destinationPath": "public/docs"}},
		{http.MethodDelete, "/api/files/delete", map[string]string{"path": "public/a.md"}},
		{http.MethodPost, "/api/files/create-file", nil},
	}
	for _, r := range requests {
		w := ts.do(t, r.method, r.target, r.body)
		body := wantError(t, w, http.StatusForbidden, mfs.KindModeForbidden)
		if body.Error != "File operations are only allowed in development mode" {
			t.Errorf("unexpected message %q", body.Error)
		}
	}

	data, err := os.ReadFile(filepath.Join(ts.work, "public", "a.md"))
	if err != nil || string(data) != "keep" {
		t.Errorf("file changed in production: %q, %v", data, err)
	}
	des, _ := os.ReadDir(filepath.Join(ts.work, "public"))
	if len(des) != 2 {
		t.Errorf("tree changed in production: %d entries", len(des))
	}
}

func TestProductionListsFromManifest(t *testing.T) {
	ts := newTestServer(t, config.ModeProduction)
	ts.write(t, "public/docs/a.md", "a")

	guard, err := mfs.NewGuard(ts.work, "public")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	tree, err := mfs.Scan(ctx, guard)
	if err != nil {
		t.Fatal(err)
	}
	if err := mfs.WriteManifest(filepath.Join(ts.work, "public", mfs.DefaultManifestName), tree); err != nil {
		t.Fatal(err)
	}
	ts.write(t, "public/docs/unlisted.md", "x")

	w := ts.do(t, http.MethodGet, "/api/files?path=public/docs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}
	var entries []mfs.FileEntry
	decode(t, w, &entries)
	if len(entries) != 1 || entries[0].Name != "a.md" {
		t.Errorf("expected manifest listing, got %+v", entries)
	}

	w = ts.do(t, http.MethodGet, "/api/files?path=public/ghost", nil)
	decode(t, w, &entries)
	if w.Code != http.StatusOK || len(entries) != 0 {
		t.Errorf("expected empty listing for unknown path, got %d %s", w.Code, w.Body.String())
	}
}

func TestRemoteListing(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/site/contents/public" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`[{"name":"a.md","path":"public/a.md","type":"file","size":4,"download_url":"https://raw.example.com/a.md"}]`))
	}))
	defer remote.Close()

	ts := newTestServer(t, config.ModeProduction, func(c *config.Config) {
		c.Remote.BaseURL = remote.URL
		c.Remote.Owner = "acme"
		c.Remote.Repo = "site"
	})

	w := ts.do(t, http.MethodGet, "/api/files?source=github", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}
	var entries []mfs.FileEntry
	decode(t, w, &entries)
	if len(entries) != 1 || entries[0].URL != "https://raw.example.com/a.md" {
		t.Errorf("unexpected remote listing %+v", entries)
	}

	w = ts.do(t, http.MethodGet, "/api/files?source=remote&path=public/missing", nil)
	wantError(t, w, http.StatusInternalServerError, mfs.KindRemoteFetchFailed)
}

func TestUpload(t *testing.T) {
	ts := newTestServer(t, config.ModeDevelopment)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "photo.png")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte("\x89PNG\r\n\x1a\n"))
	_ = mw.WriteField("path", "public/docs")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	ts.h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Success bool          `json:"success"`
		File    mfs.FileEntry `json:"file"`
	}
	decode(t, w, &resp)
	if resp.File.Path != "public/docs/photo.png" || resp.File.Size != 8 {
		t.Errorf("unexpected upload response %+v", resp)
	}

	w = ts.do(t, http.MethodGet, "/api/files/raw?path=public/docs/photo.png&download=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("raw: %d %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("unexpected content type %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment") {
		t.Errorf("unexpected disposition %s", cd)
	}
}

func TestPreview(t *testing.T) {
	ts := newTestServer(t, config.ModeProduction, func(c *config.Config) {
		c.Preview.MaxBytes = 64
	})
	ts.write(t, "public/docs/readme.md", "# Title\n\nbody")
	ts.write(t, "public/docs/big.txt", strings.Repeat("x", 100))

	w := ts.do(t, http.MethodGet, "/api/files/preview?path=public/docs/readme.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("preview: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Category string `json:"category"`
		HTML     string `json:"html"`
		Title    string `json:"title"`
		URL      string `json:"url"`
		TooLarge bool   `json:"tooLarge"`
	}
	decode(t, w, &resp)
	if resp.Category != "text" || resp.Title != "Title" || !strings.Contains(resp.HTML, "<h1") {
		t.Errorf("unexpected preview %+v", resp)
	}
	if resp.URL != "/api/files/raw?path=public%2Fdocs%2Freadme.md" {
		t.Errorf("unexpected url %s", resp.URL)
	}

	w = ts.do(t, http.MethodGet, "/api/files/preview?path=public/docs/big.txt", nil)
	resp.HTML = ""
	decode(t, w, &resp)
	if !resp.TooLarge || resp.HTML != "" {
		t.Errorf("expected oversized file to skip rendering, got %+v", resp)
	}

	w = ts.do(t, http.MethodGet, "/api/files/preview?path=public/docs", nil)
	wantError(t, w, http.StatusBadRequest, mfs.KindWrongKind)
}

func TestArchive(t *testing.T) {
	ts := newTestServer(t, config.ModeProduction)
	ts.write(t, "public/docs/a.md", "a")
	ts.write(t, "public/docs/sub/b.md", "bb")

	w := ts.do(t, http.MethodGet, "/api/files/archive?path=public/docs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("archive: %d %s", w.Code, w.Body.String())
	}
	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	if err != nil {
		t.Fatalf("invalid zip: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	want := "docs/a.md,docs/sub/,docs/sub/b.md"
	if got := strings.Join(names, ","); got != want {
		t.Errorf("archive entries %s, want %s", got, want)
	}

	w = ts.do(t, http.MethodGet, "/api/files/archive?path=public/docs/a.md", nil)
	wantError(t, w, http.StatusBadRequest, mfs.KindWrongKind)
}

func TestConfigEndpoint(t *testing.T) {
	ts := newTestServer(t, config.ModeDevelopment)
	w := ts.do(t, http.MethodGet, "/api/config", nil)
	var resp struct {
		Mode     string `json:"mode"`
		Writable bool   `json:"writable"`
		Source   string `json:"source"`
		Root     string `json:"root"`
	}
	decode(t, w, &resp)
	if resp.Mode != "development" || !resp.Writable || resp.Source != "local" || resp.Root != "public" {
		t.Errorf("unexpected config %+v", resp)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, config.ModeDevelopment)
	_ = ts.do(t, http.MethodGet, "/api/files", nil)
	w := ts.do(t, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "filehub_http_requests_total") {
		t.Errorf("metrics not exposed: %d", w.Code)
	}
}
