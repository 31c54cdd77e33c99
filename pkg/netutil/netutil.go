// Package netutil holds small helpers shared by API clients.
package netutil

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/vimeonet/pkg/cachecontrol"
)

// SimpleQueryMap returns the query parameters of rawURL with exactly one value
// per name: the first one given. Names without a value map to "".
//
// rawURL must be an absolute http or https URL with a host and a port no
// greater than 65535. Anything else, including a URL that fails to parse,
// yields an empty map rather than an error.
func SimpleQueryMap(rawURL string) map[string]string {
	out := make(map[string]string)

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return out
	}
	if s := strings.ToLower(u.Scheme); s != "http" && s != "https" {
		return out
	}
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err != nil || n < 1 || n > 65535 {
			return out
		}
	}

	// url.Values would drop pairs holding ';' or a bad escape, so split by hand.
	for pair := range strings.SplitSeq(u.RawQuery, "&") {
		if pair == "" {
			continue
		}
		name, value, _ := strings.Cut(pair, "=")
		name = unescape(name)
		if _, seen := out[name]; seen {
			continue
		}
		out[name] = unescape(value)
	}
	return out
}

// unescape decodes a query component, keeping the raw text when it holds a
// malformed escape.
func unescape(s string) string {
	if d, err := url.QueryUnescape(s); err == nil {
		return d
	}
	return s
}

// CacheControlBuilder returns a Builder preloaded with the directives of cc,
// so more can be layered on. Only directives a Builder can express are copied:
// set durations (max-age of 0 included) and true flags.
func CacheControlBuilder(cc cachecontrol.CacheControl) *cachecontrol.Builder {
	b := cachecontrol.NewBuilder()
	if s := cc.MaxAgeSeconds(); s > -1 {
		b.MaxAge(time.Duration(s) * time.Second)
	}
	if s := cc.MaxStaleSeconds(); s > -1 {
		b.MaxStale(time.Duration(s) * time.Second)
	}
	if s := cc.MinFreshSeconds(); s > -1 {
		b.MinFresh(time.Duration(s) * time.Second)
	}
	if cc.NoCache() {
		b.NoCache()
	}
	if cc.NoStore() {
		b.NoStore()
	}
	if cc.NoTransform() {
		b.NoTransform()
	}
	if cc.OnlyIfCached() {
		b.OnlyIfCached()
	}
	return b
}
