package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "frabcal/internal/errors"
	appLog "frabcal/internal/log"
)

// Feed is the raw payload of a calendar feed.
type Feed struct {
	// Source is the path or URL the feed was read from.
	Source string
	Body   []byte
	// FromCache is true if a remote feed was served from the disk cache
	// (304 Not Modified, or network failure with a cached copy).
	FromCache bool
}

// cacheEntry holds HTTP cache metadata for a single feed URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads remote feeds with HTTP caching (ETag / Last-Modified)
// backed by a disk cache.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher creates a new Fetcher storing per-URL cache entries below
// cacheDir.
func NewFetcher(cacheDir string) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./cache/ics-cache"
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		cacheDir: cacheDir,
	}
}

// IsRemote reports whether input names an http(s) feed.
func IsRemote(input string) bool {
	u, err := url.Parse(input)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ReadFeed reads the feed named by input: a local file path, or an http(s)
// URL fetched through f.
func ReadFeed(ctx context.Context, f *Fetcher, input string) (Feed, error) {
	if IsRemote(input) {
		if f == nil {
			f = NewFetcher("")
		}
		return f.Fetch(ctx, input)
	}

	body, err := os.ReadFile(input)
	if err != nil {
		return Feed{}, &apperrors.IOError{Op: "read", Path: input, Err: err}
	}
	appLog.Info("feed read", "path", input, "bytes", len(body))
	return Feed{Source: input, Body: body}, nil
}

// Fetch fetches a single remote feed, honoring ETag and Last-Modified.
// It uses a disk cache under f.cacheDir keyed by a hash of the URL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Feed, error) {
	if rawURL == "" {
		return Feed{}, errors.New("feed URL is empty")
	}

	cachePath := f.cachePathForURL(rawURL)
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return Feed{}, &apperrors.IOError{Op: "mkdir", Path: cachePath, Err: err}
	}

	meta, _ := f.loadCacheMeta(cachePath)
	cachedBody, _ := f.loadCacheBody(cachePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Feed{}, err
	}

	// Conditional headers only make sense if the body is still on disk.
	if len(cachedBody) > 0 && meta.URL == rawURL {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Info("feed fetch start", "url", redactURL(rawURL))

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cachedBody) > 0 {
			appLog.Error("feed fetch network error, using cached body", err, "url", redactURL(rawURL))
			return Feed{Source: rawURL, Body: cachedBody, FromCache: true}, nil
		}
		return Feed{}, &apperrors.IOError{Op: "fetch", Path: redactURL(rawURL), Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return Feed{}, &apperrors.IOError{Op: "fetch", Path: redactURL(rawURL), Err: readErr}
		}

		newMeta := cacheEntry{
			URL:          rawURL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := f.saveCache(cachePath, newMeta, body); err != nil {
			// Log but still return the freshly fetched body.
			appLog.Error("feed cache save failed", err, "url", redactURL(rawURL))
		}

		appLog.Info("feed fetch success", "url", redactURL(rawURL), "status", resp.StatusCode, "bytes", len(body))
		return Feed{Source: rawURL, Body: body}, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return Feed{}, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Info("feed not modified; using cache", "url", redactURL(rawURL))
		return Feed{Source: rawURL, Body: cachedBody, FromCache: true}, nil

	default:
		if len(cachedBody) > 0 {
			appLog.Error("feed fetch non-OK, using cached body", errors.New(resp.Status), "url", redactURL(rawURL), "status", resp.StatusCode)
			return Feed{Source: rawURL, Body: cachedBody, FromCache: true}, nil
		}
		return Feed{}, &apperrors.IOError{Op: "fetch", Path: redactURL(rawURL), Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
}

func (f *Fetcher) cachePathForURL(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	// Use first 16 hex chars as directory name.
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func (f *Fetcher) loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (f *Fetcher) loadCacheBody(cachePath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(cachePath, "body.ics"))
}

func (f *Fetcher) saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body.ics"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// redactURL hides path and query of a feed URL for logging; private
// calendar links usually carry their token there.
//
//	https://example.com/path/to/private.ics?token=abcd
//	-> https://example.com/...(redacted)
func redactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "ics://...(redacted)"
	}
	return parsed.Scheme + "://" + strings.TrimSuffix(parsed.Host, "/") + "/...(redacted)"
}
