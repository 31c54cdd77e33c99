// Package httpcache caches API responses below the client. Entries live in a
// two-tier sfcache, so concurrent misses on one key share a single fetch.
package httpcache

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/codeGROOVE-dev/sfcache"
	"github.com/codeGROOVE-dev/sfcache/pkg/store/localfs"
	"github.com/codeGROOVE-dev/sfcache/pkg/store/null"
)

// cacheID names the on-disk store inside the cache directory.
const cacheID = "vimeonet-responses"

// Cacher stores encoded responses by key.
// GetSet fills a missing key once for all concurrent callers. Set replaces an
// entry after the transport refetched it.
type Cacher interface {
	GetSet(ctx context.Context, key string, fetch func(context.Context) ([]byte, error), ttl ...time.Duration) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl ...time.Duration) error
	TTL() time.Duration
}

// Cache is a Cacher backed by memory and a directory of entry files.
type Cache struct {
	*sfcache.TieredCache[string, []byte]

	ttl time.Duration
}

// Open returns a Cache persisted under dir, creating the directory if needed.
// Entries expire ttl after they are written.
func Open(dir string, ttl time.Duration) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	store, err := localfs.New[string, []byte](cacheID, dir)
	if err != nil {
		return nil, fmt.Errorf("open cache store %s: %w", dir, err)
	}
	tc, err := sfcache.NewTiered[string, []byte](store, sfcache.TTL(ttl))
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &Cache{TieredCache: tc, ttl: ttl}, nil
}

// Discard returns a Cache that keeps nothing, so every lookup misses.
func Discard() *Cache {
	tc, err := sfcache.NewTiered[string, []byte](null.New[string, []byte]())
	if err != nil {
		panic("sfcache.NewTiered with null store: " + err.Error())
	}
	return &Cache{TieredCache: tc}
}

// TTL is the lifetime of entries without a response max-age.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Stats counts the cache decisions of one Transport.
type Stats struct {
	Hits   int64
	Misses int64
}

// HitRate returns hits as a percentage (0-100) of all lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// HTTPError is a non-2xx API response.
type HTTPError struct {
	Method     string
	URL        string
	Status     string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Status)
}

// CheckStatus returns an *HTTPError unless resp has a 2xx status.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	e := &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
	if e.Status == "" {
		e.Status = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	if req := resp.Request; req != nil {
		e.Method = req.Method
		if e.Method == "" {
			e.Method = http.MethodGet
		}
		if req.URL != nil {
			e.URL = req.URL.String()
		}
	}
	return e
}
