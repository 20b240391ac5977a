// Package storage is the object-store abstraction the pipeline reads inputs
// from and writes tables to.
//
// A Store is rooted at a location URL (a local directory, or s3://bucket/prefix)
// and addresses objects by slash-separated keys relative to that root. Concrete
// stores live in subpackages and register a factory for their URL scheme at
// init time; import storage/all to enable every built-in scheme:
//
//   - "file" (storage/file): local filesystem, also used for bare paths
//   - "s3"   (storage/s3):   Amazon S3 and S3-compatible endpoints
//
// Callers depend only on this package and pick the backend by URL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is returned (wrapped) when a key does not exist.
var ErrNotFound = errors.New("storage: not found")

// Object is one listed key.
type Object struct {
	Key  string
	Size int64
}

// Store is the minimal interface every backend implements.
type Store interface {
	// List returns all objects under prefix ("" for everything), sorted by key.
	// A missing prefix yields an empty list, not an error.
	List(ctx context.Context, prefix string) ([]Object, error)
	// Open returns a reader for key. Missing keys wrap ErrNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Put writes key from r, replacing any existing object.
	Put(ctx context.Context, key string, r io.Reader) error
	// Delete removes one key; a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every object under prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	// URL returns the root location, for logging.
	URL() string
}

// Config selects and configures a Store.
type Config struct {
	// URL is the root location: a path, file:///path, or s3://bucket/prefix.
	URL string
	S3  S3Config
}

// S3Config carries the S3 client options; ignored by other schemes.
type S3Config struct {
	Region       string
	Endpoint     string
	Profile      string
	UsePathStyle bool
}

// Factory opens a Store for cfg.
type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs (or replaces) the factory for a URL scheme.
func Register(scheme string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[scheme] = f
}

// ListKinds returns a snapshot of the registered schemes, sorted.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New opens the Store for cfg.URL's scheme.
func New(ctx context.Context, cfg Config) (Store, error) {
	scheme := Scheme(cfg.URL)
	mu.RLock()
	f, ok := factories[scheme]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage scheme=%s", scheme)
	}
	return f(ctx, cfg)
}

// Scheme returns the URL scheme of loc, "file" for bare paths.
func Scheme(loc string) string {
	i := strings.Index(loc, "://")
	if i <= 0 {
		return "file"
	}
	return strings.ToLower(loc[:i])
}

// SplitBucket splits s3://bucket/prefix into bucket and prefix (no slashes at
// either end of prefix).
func SplitBucket(loc string) (bucket, prefix string, err error) {
	u, err := url.Parse(loc)
	if err != nil {
		return "", "", fmt.Errorf("storage: parse %q: %w", loc, err)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("storage: %q has no bucket", loc)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}

// LocalPath strips an optional file:// scheme.
func LocalPath(loc string) string {
	return strings.TrimPrefix(loc, "file://")
}

// Join joins key segments with "/", skipping empty ones.
func Join(parts ...string) string {
	var kept []string
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "/")
}

// ReadAll reads key fully.
func ReadAll(ctx context.Context, s Store, key string) ([]byte, error) {
	rc, err := s.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", key, err)
	}
	return b, nil
}
