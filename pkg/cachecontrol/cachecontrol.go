// Package cachecontrol models HTTP Cache-Control directives.
//
// A CacheControl is an immutable value, read from headers with Parse or
// assembled with a Builder. Second-valued directives report -1 when unset.
package cachecontrol

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxSeconds caps second-valued directives, matching common client behavior.
const maxSeconds = math.MaxInt32

type optSeconds struct {
	n  int
	ok bool
}

func (o optSeconds) seconds() int {
	if !o.ok {
		return -1
	}
	return o.n
}

func (o optSeconds) duration() (time.Duration, bool) {
	return time.Duration(o.n) * time.Second, o.ok
}

// CacheControl is a set of Cache-Control directives.
// The zero value has no directives.
//
//nolint:govet // fieldalignment: grouped by directive kind
type CacheControl struct {
	maxAge   optSeconds
	sMaxAge  optSeconds
	maxStale optSeconds
	minFresh optSeconds

	noCache        bool
	noStore        bool
	noTransform    bool
	onlyIfCached   bool
	private        bool
	public         bool
	mustRevalidate bool
	immutable      bool
}

// MaxAgeSeconds returns max-age, or -1 if unset.
func (c CacheControl) MaxAgeSeconds() int { return c.maxAge.seconds() }

// SMaxAgeSeconds returns s-maxage, or -1 if unset.
func (c CacheControl) SMaxAgeSeconds() int { return c.sMaxAge.seconds() }

// MaxStaleSeconds returns max-stale, or -1 if unset.
func (c CacheControl) MaxStaleSeconds() int { return c.maxStale.seconds() }

// MinFreshSeconds returns min-fresh, or -1 if unset.
func (c CacheControl) MinFreshSeconds() int { return c.minFresh.seconds() }

// MaxAge returns max-age and whether it is set.
func (c CacheControl) MaxAge() (time.Duration, bool) { return c.maxAge.duration() }

// MaxStale returns max-stale and whether it is set.
func (c CacheControl) MaxStale() (time.Duration, bool) { return c.maxStale.duration() }

// MinFresh returns min-fresh and whether it is set.
func (c CacheControl) MinFresh() (time.Duration, bool) { return c.minFresh.duration() }

// NoCache reports the no-cache directive (or a "Pragma: no-cache" header).
func (c CacheControl) NoCache() bool { return c.noCache }

// NoStore reports the no-store directive.
func (c CacheControl) NoStore() bool { return c.noStore }

// NoTransform reports the no-transform directive.
func (c CacheControl) NoTransform() bool { return c.noTransform }

// OnlyIfCached reports the only-if-cached directive.
func (c CacheControl) OnlyIfCached() bool { return c.onlyIfCached }

// Private reports the private directive.
func (c CacheControl) Private() bool { return c.private }

// Public reports the public directive.
func (c CacheControl) Public() bool { return c.public }

// MustRevalidate reports the must-revalidate directive.
func (c CacheControl) MustRevalidate() bool { return c.mustRevalidate }

// Immutable reports the immutable directive.
func (c CacheControl) Immutable() bool { return c.immutable }

// IsZero reports whether c carries no directives.
func (c CacheControl) IsZero() bool { return c == CacheControl{} }

// String renders c as a Cache-Control header value.
func (c CacheControl) String() string {
	var parts []string
	add := func(ok bool, s string) {
		if ok {
			parts = append(parts, s)
		}
	}
	addSeconds := func(o optSeconds, name string) {
		if o.ok {
			parts = append(parts, name+"="+strconv.Itoa(o.n))
		}
	}

	add(c.noCache, "no-cache")
	add(c.noStore, "no-store")
	addSeconds(c.maxAge, "max-age")
	addSeconds(c.sMaxAge, "s-maxage")
	add(c.private, "private")
	add(c.public, "public")
	add(c.mustRevalidate, "must-revalidate")
	addSeconds(c.maxStale, "max-stale")
	addSeconds(c.minFresh, "min-fresh")
	add(c.onlyIfCached, "only-if-cached")
	add(c.noTransform, "no-transform")
	add(c.immutable, "immutable")
	return strings.Join(parts, ", ")
}

// Apply writes c to h's Cache-Control header, or removes the header when c is empty.
func (c CacheControl) Apply(h http.Header) {
	if c.IsZero() {
		h.Del("Cache-Control")
		return
	}
	h.Set("Cache-Control", c.String())
}

// ForceNetwork requires the request to go to the network.
func ForceNetwork() CacheControl {
	return NewBuilder().NoCache().Build()
}

// ForceCache requires the request to be served from the cache, even if stale.
func ForceCache() CacheControl {
	return NewBuilder().OnlyIfCached().MaxStale(maxSeconds * time.Second).Build()
}

func clampSeconds(d time.Duration) int {
	s := int64(d / time.Second)
	if s > maxSeconds {
		return maxSeconds
	}
	return int(s)
}
