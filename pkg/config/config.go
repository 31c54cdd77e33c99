// Package config loads vimeonet settings from a TOML file.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/codeGROOVE-dev/vimeonet/pkg/auth"
	"github.com/codeGROOVE-dev/vimeonet/pkg/httpcache"
	"github.com/codeGROOVE-dev/vimeonet/pkg/transport"
)

// Trust modes accepted in the trust.mode key.
const (
	TrustDefault  = "default"
	TrustPinned   = "pinned"
	TrustInsecure = "insecure"
)

const (
	defaultConfigPath     = "~/.config/vimeonet/config.toml"
	defaultConnectTimeout = 10 * time.Second
	defaultCookieDomain   = "vimeo.com"
	defaultCacheTTL       = time.Hour
	defaultUserAgent      = "vimeonet/1.0"
)

var (
	// ErrInvalid is matched by every validation failure in Load.
	ErrInvalid = errors.New("invalid config")

	// ErrMissingPassword is returned by Apply when the pinned keystore
	// password environment variable is unset.
	ErrMissingPassword = errors.New("keystore password not set")
)

// Config holds the resolved settings.
type Config struct {
	Cookies        Cookies
	Cache          Cache
	Trust          Trust
	UserAgent      string
	ConnectTimeout time.Duration
	// MinRequestInterval spaces requests to one host; zero disables it.
	MinRequestInterval time.Duration
}

// Cookies selects where session cookies come from. Environment variables are
// always consulted first.
type Cookies struct {
	Domain  string
	Browser bool
}

// Cache configures the on-disk response cache.
type Cache struct {
	Dir     string
	TTL     time.Duration
	Enabled bool
}

// Trust configures TLS verification. The keystore password is never stored
// in the file; PasswordEnv names the variable that carries it.
type Trust struct {
	Mode        string
	Keystore    string
	PasswordEnv string
}

// Default returns the settings used when no file exists.
func Default() Config {
	return Config{
		ConnectTimeout: defaultConnectTimeout,
		UserAgent:      defaultUserAgent,
		Cookies:        Cookies{Domain: defaultCookieDomain},
		Cache:          Cache{Enabled: true, TTL: defaultCacheTTL, Dir: defaultCacheDir()},
		Trust:          Trust{Mode: TrustDefault},
	}
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "vimeonet")
}

// Load parses the config at path, falling back to defaults when it is missing.
// An empty path means ~/.config/vimeonet/config.toml.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		path = defaultConfigPath
	}
	resolved, err := expandPath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close() //nolint:errcheck // read-only

	data, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return parse(data, cfg)
}

type rawConfig struct {
	ConnectTimeout     string `toml:"connect_timeout"`
	MinRequestInterval string `toml:"min_request_interval"`
	UserAgent          string `toml:"user_agent"`
	Cookies            struct {
		Browser *bool  `toml:"browser"`
		Domain  string `toml:"domain"`
	} `toml:"cookies"`
	Cache struct {
		Enabled *bool  `toml:"enabled"`
		Dir     string `toml:"dir"`
		TTL     string `toml:"ttl"`
	} `toml:"cache"`
	Trust struct {
		Mode        string `toml:"mode"`
		Keystore    string `toml:"keystore"`
		PasswordEnv string `toml:"password_env"`
	} `toml:"trust"`
}

func parse(data []byte, cfg Config) (Config, error) {
	var raw rawConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	var err error
	if cfg.ConnectTimeout, err = duration("connect_timeout", raw.ConnectTimeout, cfg.ConnectTimeout); err != nil {
		return Config{}, err
	}
	if cfg.MinRequestInterval, err = duration("min_request_interval", raw.MinRequestInterval, cfg.MinRequestInterval); err != nil {
		return Config{}, err
	}
	if ua := strings.TrimSpace(raw.UserAgent); ua != "" {
		cfg.UserAgent = ua
	}

	if raw.Cookies.Browser != nil {
		cfg.Cookies.Browser = *raw.Cookies.Browser
	}
	if d := strings.TrimSpace(raw.Cookies.Domain); d != "" {
		cfg.Cookies.Domain = d
	}

	if raw.Cache.Enabled != nil {
		cfg.Cache.Enabled = *raw.Cache.Enabled
	}
	if d := strings.TrimSpace(raw.Cache.Dir); d != "" {
		if cfg.Cache.Dir, err = expandPath(d); err != nil {
			return Config{}, err
		}
	}
	if cfg.Cache.TTL, err = duration("cache.ttl", raw.Cache.TTL, cfg.Cache.TTL); err != nil {
		return Config{}, err
	}

	if m := strings.TrimSpace(raw.Trust.Mode); m != "" {
		cfg.Trust.Mode = strings.ToLower(m)
	}
	cfg.Trust.PasswordEnv = strings.TrimSpace(raw.Trust.PasswordEnv)
	if k := strings.TrimSpace(raw.Trust.Keystore); k != "" {
		if cfg.Trust.Keystore, err = expandPath(k); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that cannot produce a working transport.
func (c Config) Validate() error {
	if c.ConnectTimeout < 0 {
		return fmt.Errorf("%w: connect_timeout must not be negative", ErrInvalid)
	}
	if c.MinRequestInterval < 0 {
		return fmt.Errorf("%w: min_request_interval must not be negative", ErrInvalid)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("%w: cache.ttl must not be negative", ErrInvalid)
	}
	switch c.Trust.Mode {
	case TrustDefault, TrustInsecure:
	case TrustPinned:
		if c.Trust.Keystore == "" {
			return fmt.Errorf("%w: trust.keystore is required for pinned trust", ErrInvalid)
		}
		if c.Trust.PasswordEnv == "" {
			return fmt.Errorf("%w: trust.password_env is required for pinned trust", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown trust.mode %q", ErrInvalid, c.Trust.Mode)
	}
	return nil
}

// Apply wires the settings into b. The returned cleanup closes the response
// cache and must be called once the built transport is no longer used.
func (c Config) Apply(ctx context.Context, b *transport.Builder, logger *slog.Logger) (cleanup func() error, err error) {
	cleanup = func() error { return nil }

	b.Logger(logger).ConnectionTimeout(c.ConnectTimeout)
	if c.UserAgent != "" {
		b.AddNetworkInterceptor(transport.UserAgent(c.UserAgent))
	}
	if c.MinRequestInterval > 0 {
		b.AddNetworkInterceptor(transport.Throttle(c.MinRequestInterval, logger))
	}
	b.AddNetworkInterceptor(transport.Logging(logger))

	sources := []auth.Source{auth.EnvSource{}}
	if c.Cookies.Browser {
		sources = append(sources, auth.NewBrowserSource(logger))
	}
	jar, err := auth.Jar(ctx, c.Cookies.Domain, sources...)
	if err != nil {
		return nil, err
	}
	b.CookieStore(jar)

	switch c.Trust.Mode {
	case TrustPinned:
		pw, ok := os.LookupEnv(c.Trust.PasswordEnv)
		if !ok {
			return nil, fmt.Errorf("%w: $%s", ErrMissingPassword, c.Trust.PasswordEnv)
		}
		b.Trust(transport.PinnedKeystore(c.Trust.Keystore, transport.Secret(pw)))
	case TrustInsecure:
		b.Trust(transport.InsecureTrustAllCertificates()).AllowInsecureTrust()
	default:
		b.Trust(transport.DefaultTrust())
	}

	if c.Cache.Enabled {
		cache, err := httpcache.Open(c.Cache.Dir, c.Cache.TTL)
		if err != nil {
			return nil, err
		}
		b.ResponseCache(cache)
		cleanup = cache.Close
		logger.DebugContext(ctx, "response cache enabled", "dir", c.Cache.Dir, "ttl", c.Cache.TTL)
	}
	return cleanup, nil
}

func duration(key, value string, fallback time.Duration) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalid, key, err)
	}
	return d, nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", errors.New("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
