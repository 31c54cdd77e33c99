package cachecontrol

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/pquerna/cachecontrol/cacheobject"
)

// Parse reads the Cache-Control and Pragma headers of h.
// Unknown directives and malformed values are skipped.
func Parse(h http.Header) CacheControl {
	var c CacheControl
	for _, v := range h.Values("Cache-Control") {
		c.parse(v)
	}
	for _, v := range h.Values("Pragma") {
		for _, d := range directives(v) {
			if d.name == "no-cache" {
				c.noCache = true
			}
		}
	}
	return c
}

// ParseString reads a single Cache-Control header value.
func ParseString(value string) CacheControl {
	var c CacheControl
	c.parse(value)
	return c
}

// parse hands directives to cacheobject one at a time. cacheobject rejects a
// whole header when any directive in it is malformed.
func (c *CacheControl) parse(value string) {
	for _, d := range directives(value) {
		text := d.String()
		if req, err := cacheobject.ParseRequestCacheControl(text); err == nil {
			c.mergeRequest(req)
		}
		if resp, err := cacheobject.ParseResponseCacheControl(text); err == nil {
			c.mergeResponse(resp)
		}
	}
}

func (c *CacheControl) mergeRequest(cd *cacheobject.RequestCacheDirectives) {
	c.maxAge = fromDelta(cd.MaxAge, c.maxAge)
	c.minFresh = fromDelta(cd.MinFresh, c.minFresh)
	c.maxStale = fromDelta(cd.MaxStale, c.maxStale)
	if cd.MaxStaleSet && cd.MaxStale < 0 {
		// A bare max-stale accepts a response of any staleness.
		c.maxStale = optSeconds{n: maxSeconds, ok: true}
	}
	c.noCache = c.noCache || cd.NoCache
	c.noStore = c.noStore || cd.NoStore
	c.noTransform = c.noTransform || cd.NoTransform
	c.onlyIfCached = c.onlyIfCached || cd.OnlyIfCached
}

func (c *CacheControl) mergeResponse(cd *cacheobject.ResponseCacheDirectives) {
	c.maxAge = fromDelta(cd.MaxAge, c.maxAge)
	c.sMaxAge = fromDelta(cd.SMaxAge, c.sMaxAge)
	c.noCache = c.noCache || cd.NoCachePresent
	c.noStore = c.noStore || cd.NoStore
	c.noTransform = c.noTransform || cd.NoTransform
	c.private = c.private || cd.PrivatePresent
	c.public = c.public || cd.Public
	c.mustRevalidate = c.mustRevalidate || cd.MustRevalidate
	c.immutable = c.immutable || cd.Immutable
}

// fromDelta keeps prev when d is unset (-1).
func fromDelta(d cacheobject.DeltaSeconds, prev optSeconds) optSeconds {
	if d < 0 {
		return prev
	}
	return optSeconds{n: min(int(d), maxSeconds), ok: true}
}

type directive struct {
	name     string
	value    string
	hasValue bool
}

// String renders d in the form cacheobject reads. Negative seconds become 0.
func (d directive) String() string {
	if !d.hasValue {
		return d.name
	}
	v := d.value
	if n, err := strconv.ParseInt(v, 10, 64); err == nil && n < 0 {
		v = "0"
	}
	if strings.ContainsAny(v, ", \t\"\\") {
		v = `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v) + `"`
	}
	return d.name + "=" + v
}

// directives splits a header value on commas and semicolons,
// honoring quoted-string values.
func directives(value string) []directive {
	var out []directive
	for value != "" {
		var d directive
		end := strings.IndexAny(value, "=,;")
		if end < 0 {
			end = len(value)
		}
		d.name = strings.ToLower(strings.TrimSpace(value[:end]))
		value = value[end:]

		if strings.HasPrefix(value, "=") {
			d.hasValue = true
			value = strings.TrimLeft(value[1:], " \t")
			if strings.HasPrefix(value, `"`) {
				closing := strings.IndexByte(value[1:], '"')
				if closing < 0 {
					d.value, value = value[1:], ""
				} else {
					d.value, value = value[1:closing+1], value[closing+2:]
				}
			} else {
				end = strings.IndexAny(value, ",;")
				if end < 0 {
					end = len(value)
				}
				d.value, value = strings.TrimSpace(value[:end]), value[end:]
			}
		}

		// Skip the separator, plus anything left over after a quoted value.
		if i := strings.IndexAny(value, ",;"); i >= 0 {
			value = value[i+1:]
		} else {
			value = ""
		}
		if d.name != "" {
			out = append(out, d)
		}
	}
	return out
}
