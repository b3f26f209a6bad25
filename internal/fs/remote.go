package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/CageChen/filehub/internal/metrics"
)

// DefaultRemoteBaseURL is the GitHub REST API endpoint.
const DefaultRemoteBaseURL = "https://api.github.com"

// RemoteConfig identifies the repository mirrored by RemoteFS.
type RemoteConfig struct {
	BaseURL string
	Owner   string
	Repo    string
	Branch  string
	// Token is sent as a bearer token when set.
	Token string
}

// remoteItem is one element of a GitHub contents API directory response.
type remoteItem struct {
	Name        string  `json:"name"`
	Path        string  `json:"path"`
	Type        string  `json:"type"`
	Size        int64   `json:"size"`
	DownloadURL *string `json:"download_url"`
}

// RemoteFS lists directories of a remote repository through its contents
// API. It is read-only: one request per List call, no retry and no caching.
type RemoteFS struct {
	guard  *Guard
	cfg    RemoteConfig
	client *http.Client
	now    func() time.Time
}

// NewRemoteFS creates a RemoteFS. A nil client uses http.DefaultClient.
func NewRemoteFS(guard *Guard, cfg RemoteConfig, client *http.Client) *RemoteFS {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultRemoteBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &RemoteFS{guard: guard, cfg: cfg, client: client, now: time.Now}
}

// Configured reports whether a repository identity is set.
func (r *RemoteFS) Configured() bool {
	return r.cfg.Owner != "" && r.cfg.Repo != ""
}

// List fetches the contents of dir from the remote repository. The
// lastModified of every entry is the fetch time; the contents API does not
// report modification times.
func (r *RemoteFS) List(ctx context.Context, dir string) ([]FileEntry, error) {
	const op = "list remote"
	rel, err := r.guard.Clean(dir)
	if err != nil {
		return nil, err
	}
	if !r.Configured() {
		return nil, r.fail(op, rel, fmt.Errorf("remote repository is not configured"))
	}

	start := time.Now()
	items, err := r.fetch(ctx, rel)
	metrics.RecordRemoteFetch(time.Since(start), err == nil)
	if err != nil {
		return nil, r.fail(op, rel, err)
	}

	fetched := r.now().UTC()
	entries := make([]FileEntry, 0, len(items))
	for _, it := range items {
		e := FileEntry{
			Name:         it.Name,
			Path:         it.Path,
			LastModified: fetched,
		}
		if it.Type == "dir" {
			e.Type = TypeDirectory
		} else {
			e.Type = TypeFile
			e.Size = it.Size
			e.Extension = Extension(it.Name)
		}
		if it.DownloadURL != nil {
			e.URL = *it.DownloadURL
		}
		entries = append(entries, e)
	}
	SortEntries(entries)
	return entries, nil
}

func (r *RemoteFS) fetch(ctx context.Context, rel string) ([]remoteItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.contentsURL(rel), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if r.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.Token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("remote API error: %s", resp.Status)
	}
	var items []remoteItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode remote listing: %w", err)
	}
	return items, nil
}

func (r *RemoteFS) contentsURL(rel string) string {
	segs := strings.Split(rel, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	u := strings.TrimSuffix(r.cfg.BaseURL, "/") +
		"/repos/" + url.PathEscape(r.cfg.Owner) + "/" + url.PathEscape(r.cfg.Repo) +
		"/contents/" + strings.Join(segs, "/")
	if r.cfg.Branch != "" {
		u += "?ref=" + url.QueryEscape(r.cfg.Branch)
	}
	return u
}

func (r *RemoteFS) fail(op, rel string, err error) error {
	return &Error{
		Kind: KindRemoteFetchFailed,
		Op:   op,
		Path: rel,
		Msg:  "Failed to fetch files from the remote repository",
		Err:  err,
	}
}
