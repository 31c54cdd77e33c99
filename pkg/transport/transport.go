// Package transport assembles the HTTP client used to talk to the video API.
package transport

import (
	"crypto/tls"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/spf13/afero"

	"github.com/codeGROOVE-dev/vimeonet/pkg/httpcache"
)

// Interceptor wraps the network transport. Interceptors run beneath the
// redirect-following client and the response cache, once per network hop.
type Interceptor func(next http.RoundTripper) http.RoundTripper

// Config is an immutable snapshot of builder state.
type Config struct {
	CookieStore    http.CookieJar
	ResponseCache  httpcache.Cacher
	Trust          TrustStrategy
	logger         *slog.Logger
	fs             afero.Fs
	interceptors   []Interceptor
	ConnectTimeout time.Duration
	AllowInsecure  bool
}

// Interceptors returns the network interceptors in the order they run.
func (c Config) Interceptors() []Interceptor {
	return slices.Clone(c.interceptors)
}

// Builder collects transport settings. It is not safe for concurrent use.
type Builder struct {
	cfg Config
}

// NewBuilder returns a builder with default trust, no cache, no cookie store
// and the OS filesystem for trust store resources.
func NewBuilder() *Builder {
	return &Builder{cfg: Config{
		Trust:  DefaultTrust(),
		logger: slog.Default(),
		fs:     afero.NewOsFs(),
	}}
}

// ConnectionTimeout bounds TCP connection establishment. Zero keeps the
// library default.
func (b *Builder) ConnectionTimeout(d time.Duration) *Builder {
	b.cfg.ConnectTimeout = d
	return b
}

// CookieStore sets the jar consulted for every request.
func (b *Builder) CookieStore(jar http.CookieJar) *Builder {
	b.cfg.CookieStore = jar
	return b
}

// ResponseCache enables response caching backed by c.
func (b *Builder) ResponseCache(c httpcache.Cacher) *Builder {
	b.cfg.ResponseCache = c
	return b
}

// AddNetworkInterceptor appends an interceptor. The first one added sees
// each request first.
func (b *Builder) AddNetworkInterceptor(i Interceptor) *Builder {
	b.cfg.interceptors = append(b.cfg.interceptors, i)
	return b
}

// Trust selects the TLS trust strategy.
func (b *Builder) Trust(s TrustStrategy) *Builder {
	b.cfg.Trust = s
	return b
}

// AllowInsecureTrust opts in to InsecureTrustAllCertificates.
func (b *Builder) AllowInsecureTrust() *Builder {
	b.cfg.AllowInsecure = true
	return b
}

// Logger sets the logger used at build time and by the response cache.
func (b *Builder) Logger(l *slog.Logger) *Builder {
	b.cfg.logger = l
	return b
}

// ResourceFs sets the filesystem trust stores are read from.
func (b *Builder) ResourceFs(fs afero.Fs) *Builder {
	b.cfg.fs = fs
	return b
}

// Config returns a snapshot of the current settings.
func (b *Builder) Config() Config {
	c := b.cfg
	c.interceptors = slices.Clone(b.cfg.interceptors)
	return c
}

// Build snapshots the settings and assembles a new client. Trust store
// failures are returned here and never fall back to default trust.
func (b *Builder) Build() (*Handle, error) {
	cfg := b.Config()
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	fs := cfg.fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	trust := cfg.Trust
	if trust == nil {
		trust = DefaultTrust()
	}

	tlsCfg, err := trust.tlsConfig(fs, logger, cfg.AllowInsecure)
	if err != nil {
		return nil, err
	}

	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		base = &http.Transport{}
	}
	tr := base.Clone()
	tr.TLSClientConfig = tlsCfg
	if cfg.ConnectTimeout > 0 {
		dialer := &net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}
		tr.DialContext = dialer.DialContext
	}

	var rt http.RoundTripper = tr
	for i := len(cfg.interceptors) - 1; i >= 0; i-- {
		rt = cfg.interceptors[i](rt)
	}

	h := &Handle{config: cfg, transport: tr}
	if cfg.ResponseCache != nil {
		h.cache = httpcache.NewTransport(rt, cfg.ResponseCache, logger)
		rt = h.cache
	}
	h.client = &http.Client{Transport: rt, Jar: cfg.CookieStore}

	logger.Debug("built transport",
		"trust", trust.String(),
		"connect_timeout", cfg.ConnectTimeout,
		"interceptors", len(cfg.interceptors),
		"cache", cfg.ResponseCache != nil,
		"cookies", cfg.CookieStore != nil)
	return h, nil
}

// Handle is a built transport. It is safe for concurrent use.
type Handle struct {
	client    *http.Client
	transport *http.Transport
	cache     *httpcache.Transport
	config    Config
}

// Client returns a copy of the configured client.
func (h *Handle) Client() *http.Client {
	c := *h.client
	return &c
}

// Config returns the settings this handle was built with.
func (h *Handle) Config() Config {
	c := h.config
	c.interceptors = slices.Clone(h.config.interceptors)
	return c
}

// Do sends a request with the configured client.
func (h *Handle) Do(req *http.Request) (*http.Response, error) {
	return h.client.Do(req)
}

// CacheStats returns response cache counters. It is zero when no cache is set.
func (h *Handle) CacheStats() httpcache.Stats {
	if h.cache == nil {
		return httpcache.Stats{}
	}
	return h.cache.Stats()
}

// CloseIdleConnections closes idle pooled connections.
func (h *Handle) CloseIdleConnections() {
	h.transport.CloseIdleConnections()
}

// TLSConfig returns a copy of the TLS settings in effect.
func (h *Handle) TLSConfig() *tls.Config {
	return h.transport.TLSClientConfig.Clone()
}
