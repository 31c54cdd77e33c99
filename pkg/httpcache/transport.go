package httpcache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/codeGROOVE-dev/vimeonet/pkg/apijson"
	"github.com/codeGROOVE-dev/vimeonet/pkg/cachecontrol"
	"github.com/codeGROOVE-dev/vimeonet/pkg/iso8601"
)

// errNotCached is returned from the fetch of an only-if-cached lookup so that
// nothing is stored on a miss.
var errNotCached = errors.New("not cached")

// uncacheableError carries a response that was fetched but must not be stored.
// Concurrent waiters on the same key each rebuild their own response from it.
type uncacheableError struct {
	data []byte
}

func (*uncacheableError) Error() string { return "response not cacheable" }

// networkError carries a failure from the underlying transport through GetSet.
type networkError struct {
	err error
}

func (e *networkError) Error() string { return e.err.Error() }
func (e *networkError) Unwrap() error { return e.err }

// entry is the stored form of a response. Varied holds the request header
// values named by the response Vary header.
type entry struct {
	Header         http.Header
	Varied         http.Header
	StoredAt       iso8601.Date
	Body           []byte
	StatusCode     int
	Lifetime       int
	MustRevalidate bool

	storable bool
}

// Transport is an http.RoundTripper that serves GET responses from a Cacher.
// It honors request Cache-Control directives and the max-age and Vary headers
// of stored responses. Requests carrying cookies or credentials are keyed
// separately.
type Transport struct {
	next   http.RoundTripper
	cache  Cacher
	logger *slog.Logger
	now    func() time.Time
	hits   atomic.Int64
	misses atomic.Int64
}

// NewTransport wraps next with response caching. A nil cache disables caching.
func NewTransport(next http.RoundTripper, cache Cacher, logger *slog.Logger) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{next: next, cache: cache, logger: logger, now: time.Now}
}

// Stats returns the hit/miss counters for this transport.
func (t *Transport) Stats() Stats {
	return Stats{Hits: t.hits.Load(), Misses: t.misses.Load()}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	cc := cachecontrol.Parse(req.Header)
	if t.cache == nil || req.Method != http.MethodGet || req.Header.Get("Range") != "" || cc.NoStore() {
		return t.next.RoundTrip(req)
	}

	ctx := req.Context()
	key := cacheKey(req)

	if cc.OnlyIfCached() {
		data, err := t.cache.GetSet(ctx, key, func(context.Context) ([]byte, error) {
			return nil, errNotCached
		})
		if errors.Is(err, errNotCached) {
			t.misses.Add(1)
			t.logger.DebugContext(ctx, "cache miss for only-if-cached request", "url", req.URL.String())
			return unsatisfiable(req), nil
		}
		if err != nil {
			return nil, fmt.Errorf("read cache: %w", err)
		}
		e, err := decodeEntry(data)
		if err != nil || !e.matches(req) || !t.usable(e, cc) {
			t.misses.Add(1)
			return unsatisfiable(req), nil //nolint:nilerr // an unreadable entry is a miss
		}
		t.hits.Add(1)
		return e.response(req), nil
	}

	if cc.NoCache() {
		t.misses.Add(1)
		return t.refresh(req, key)
	}

	fetched := false
	data, err := t.cache.GetSet(ctx, key, func(context.Context) ([]byte, error) {
		fetched = true
		e, err := t.fetch(req)
		if err != nil {
			return nil, &networkError{err: err}
		}
		data, err := e.encode()
		if err != nil {
			return nil, &networkError{err: err}
		}
		if !e.storable {
			return nil, &uncacheableError{data: data}
		}
		return data, nil
	}, t.cache.TTL())
	if err != nil {
		var netErr *networkError
		if errors.As(err, &netErr) {
			return nil, netErr.err
		}
		var unc *uncacheableError
		if errors.As(err, &unc) {
			t.misses.Add(1)
			e, decErr := decodeEntry(unc.data)
			if decErr != nil {
				return nil, decErr
			}
			return e.response(req), nil
		}
		return nil, fmt.Errorf("read cache: %w", err)
	}

	e, err := decodeEntry(data)
	if err != nil {
		t.logger.WarnContext(ctx, "replacing unreadable cache entry", "url", req.URL.String(), "error", err)
		t.misses.Add(1)
		return t.refresh(req, key)
	}
	if fetched {
		t.misses.Add(1)
		t.logger.DebugContext(ctx, "cache miss", "url", req.URL.String(), "lifetime", e.Lifetime)
		return e.response(req), nil
	}
	if !e.matches(req) {
		t.misses.Add(1)
		t.logger.DebugContext(ctx, "cache entry varies from request", "url", req.URL.String())
		return t.refresh(req, key)
	}
	if !t.usable(e, cc) {
		t.misses.Add(1)
		t.logger.DebugContext(ctx, "cache entry stale", "url", req.URL.String())
		return t.refresh(req, key)
	}
	t.hits.Add(1)
	t.logger.DebugContext(ctx, "cache hit", "url", req.URL.String())
	return e.response(req), nil
}

// refresh fetches req from the network and replaces the stored entry with
// the response when it may be stored.
func (t *Transport) refresh(req *http.Request, key string) (*http.Response, error) {
	e, err := t.fetch(req)
	if err != nil {
		return nil, err
	}
	if e.storable {
		ctx := req.Context()
		data, err := e.encode()
		if err == nil {
			err = t.cache.Set(ctx, key, data, t.cache.TTL())
		}
		if err != nil {
			t.logger.WarnContext(ctx, "store refreshed cache entry", "url", req.URL.String(), "error", err)
		}
	}
	return e.response(req), nil
}

// fetch performs the network request and reads the response into an entry.
// Only 200 responses that allow storing and name no Vary "*" are storable.
func (t *Transport) fetch(req *http.Request) (*entry, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	rc := cachecontrol.Parse(resp.Header)
	e := &entry{
		StatusCode:     resp.StatusCode,
		Header:         resp.Header.Clone(),
		Body:           body,
		StoredAt:       iso8601.NewDate(t.now()),
		Lifetime:       int(t.cache.TTL() / time.Second),
		MustRevalidate: rc.MustRevalidate(),
	}
	if maxAge, ok := rc.MaxAge(); ok {
		e.Lifetime = int(maxAge / time.Second)
	}
	varied, ok := variedHeaders(resp.Header, req.Header)
	e.Varied = varied
	e.storable = ok && resp.StatusCode == http.StatusOK && !rc.NoStore() && !rc.NoCache() && e.Lifetime > 0
	return e, nil
}

// variedHeaders collects the request values of the headers named by Vary.
// It reports false for Vary "*", which matches no later request.
func variedHeaders(resp, req http.Header) (http.Header, bool) {
	var varied http.Header
	for _, v := range resp.Values("Vary") {
		for name := range strings.SplitSeq(v, ",") {
			name = strings.TrimSpace(name)
			switch name {
			case "":
				continue
			case "*":
				return nil, false
			default:
			}
			if varied == nil {
				varied = http.Header{}
			}
			name = http.CanonicalHeaderKey(name)
			varied[name] = req.Values(name)
		}
	}
	return varied, true
}

// matches reports whether req sends the header values the entry was stored for.
func (e *entry) matches(req *http.Request) bool {
	for name, want := range e.Varied {
		if !slices.Equal(want, req.Header.Values(name)) {
			return false
		}
	}
	return true
}

func (e *entry) encode() ([]byte, error) {
	data, err := apijson.Default().Encode(e)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return data, nil
}

// usable reports whether a stored entry satisfies the request directives.
func (t *Transport) usable(e *entry, cc cachecontrol.CacheControl) bool {
	age := t.now().Sub(e.StoredAt.Time)
	lifetime := time.Duration(e.Lifetime) * time.Second

	if maxAge, ok := cc.MaxAge(); ok && age > maxAge {
		return false
	}
	if minFresh, ok := cc.MinFresh(); ok {
		lifetime -= minFresh
	}
	if maxStale, ok := cc.MaxStale(); ok && !e.MustRevalidate {
		lifetime += maxStale
	}
	return age < lifetime
}

func decodeEntry(data []byte) (*entry, error) {
	var e entry
	if err := apijson.Default().Decode(data, &e); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return &e, nil
}

func (e *entry) response(req *http.Request) *http.Response {
	h := e.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode)),
		StatusCode:    e.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

func unsatisfiable(req *http.Request) *http.Response {
	return &http.Response{
		Status:     "504 Unsatisfiable Request (only-if-cached)",
		StatusCode: http.StatusGatewayTimeout,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     http.Header{},
		Body:       http.NoBody,
		Request:    req,
	}
}

// cacheKey derives the storage key from method and URL. Requests that carry
// cookies or an Authorization header get a key bound to those credentials.
func cacheKey(req *http.Request) string {
	key := req.Method + " " + req.URL.String()
	cookie := req.Header.Values("Cookie")
	authz := req.Header.Get("Authorization")
	if len(cookie) > 0 || authz != "" {
		sum := sha256.Sum256([]byte(strings.Join(cookie, "; ") + "\n" + authz))
		key += "|auth:" + hex.EncodeToString(sum[:8])
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
