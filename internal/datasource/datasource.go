// Package datasource turns an input location (a directory or a glob on a
// storage URL) into an ordered list of readable sources, and decodes them.
//
// Locations look like:
//
//	data/song_data                      every file under the directory
//	data/song_data/*/*/*/*.json         glob, one "*" per path segment
//	s3://udacity-dend/log_data/*/*/*.json
//
// Sources are returned in lexical key order, which is the input order the
// users dedup policy relies on.
package datasource

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"datalake/internal/storage"
)

// Source is a single readable input.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Name() string
}

// Opener opens the store rooted at a URL.
type Opener func(ctx context.Context, url string) (storage.Store, error)

// Object is a Source backed by one key in a Store.
type Object struct {
	Store storage.Store
	Key   string
}

func (o Object) Name() string {
	if o.Key == "." {
		return o.Store.URL()
	}
	return strings.TrimSuffix(o.Store.URL(), "/") + "/" + o.Key
}

// Open opens the object, transparently decompressing gzip content.
func (o Object) Open(ctx context.Context) (io.ReadCloser, error) {
	rc, err := o.Store.Open(ctx, o.Key)
	if err != nil {
		return nil, err
	}
	return maybeGunzip(rc, o.Key)
}

type gzipReadCloser struct {
	*gzip.Reader
	under io.Closer
}

func (g gzipReadCloser) Close() error {
	err := g.Reader.Close()
	if cerr := g.under.Close(); err == nil {
		err = cerr
	}
	return err
}

type bufReadCloser struct {
	*bufio.Reader
	io.Closer
}

// maybeGunzip sniffs the gzip magic bytes; a .gz key that is not actually
// compressed (some S3 clients decompress transparently) is read as-is.
func maybeGunzip(rc io.ReadCloser, key string) (io.ReadCloser, error) {
	br := bufio.NewReader(rc)
	header, err := br.Peek(2)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		rc.Close()
		return nil, fmt.Errorf("read header of %s: %w", key, err)
	}
	if len(header) == 2 && header[0] == 0x1f && header[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("gzip reader for %s: %w", key, err)
		}
		return gzipReadCloser{Reader: gz, under: rc}, nil
	}
	return bufReadCloser{Reader: br, Closer: rc}, nil
}

// SplitGlob splits loc into the static root (no glob metacharacters) and the
// remaining slash-separated pattern. A location without metacharacters has an
// empty pattern.
func SplitGlob(loc string) (root, pattern string) {
	i := strings.IndexAny(loc, "*?[")
	if i < 0 {
		return strings.TrimSuffix(loc, "/"), ""
	}
	cut := strings.LastIndex(loc[:i], "/")
	if cut < 0 {
		return ".", loc
	}
	root = loc[:cut]
	if root == "" {
		root = "/"
	}
	return root, loc[cut+1:]
}

// Expand resolves loc to its sources, sorted by key.
func Expand(ctx context.Context, loc string, open Opener) ([]Source, error) {
	root, pattern := SplitGlob(loc)
	store, err := open(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("datasource: open %s: %w", root, err)
	}
	objs, err := store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("datasource: %w", err)
	}

	var out []Source
	for _, o := range objs {
		if hidden(o.Key) {
			continue
		}
		if pattern != "" {
			ok, err := path.Match(pattern, o.Key)
			if err != nil {
				return nil, fmt.Errorf("datasource: bad pattern %q: %w", pattern, err)
			}
			if !ok {
				continue
			}
		}
		out = append(out, Object{Store: store, Key: o.Key})
	}
	return out, nil
}

// hidden reports keys that bookkeeping tools leave next to data files
// (_SUCCESS, .crc, .DS_Store); any segment starting with "_" or "." hides
// the key.
func hidden(key string) bool {
	if key == "." {
		return false
	}
	for _, seg := range strings.Split(key, "/") {
		if strings.HasPrefix(seg, "_") || strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
