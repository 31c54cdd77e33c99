package cachecontrol

import "time"

// Builder accumulates directives. The zero value is ready to use.
// Builder is not safe for concurrent use; each Build returns an independent snapshot.
type Builder struct {
	cc CacheControl
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// MaxAge sets max-age, truncated to whole seconds. Negative durations are ignored.
func (b *Builder) MaxAge(d time.Duration) *Builder {
	if d >= 0 {
		b.cc.maxAge = optSeconds{n: clampSeconds(d), ok: true}
	}
	return b
}

// MaxStale sets max-stale, truncated to whole seconds. Negative durations are ignored.
func (b *Builder) MaxStale(d time.Duration) *Builder {
	if d >= 0 {
		b.cc.maxStale = optSeconds{n: clampSeconds(d), ok: true}
	}
	return b
}

// MinFresh sets min-fresh, truncated to whole seconds. Negative durations are ignored.
func (b *Builder) MinFresh(d time.Duration) *Builder {
	if d >= 0 {
		b.cc.minFresh = optSeconds{n: clampSeconds(d), ok: true}
	}
	return b
}

// NoCache sets no-cache.
func (b *Builder) NoCache() *Builder {
	b.cc.noCache = true
	return b
}

// NoStore sets no-store.
func (b *Builder) NoStore() *Builder {
	b.cc.noStore = true
	return b
}

// NoTransform sets no-transform.
func (b *Builder) NoTransform() *Builder {
	b.cc.noTransform = true
	return b
}

// OnlyIfCached sets only-if-cached.
func (b *Builder) OnlyIfCached() *Builder {
	b.cc.onlyIfCached = true
	return b
}

// Immutable sets immutable.
func (b *Builder) Immutable() *Builder {
	b.cc.immutable = true
	return b
}

// Build returns the accumulated directives.
func (b *Builder) Build() CacheControl {
	return b.cc
}
