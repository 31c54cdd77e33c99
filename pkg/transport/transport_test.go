package transport

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"software.sslmate.com/src/go-pkcs12"

	"github.com/codeGROOVE-dev/vimeonet/pkg/httpcache"
)

const storePassword = Secret("changeit")

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTLSServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/redirect" {
			http.Redirect(w, r, "/final", http.StatusFound)
			return
		}
		w.Header().Set("X-Seen-Agent", r.Header.Get("User-Agent"))
		if c, err := r.Cookie("vimeo"); err == nil {
			w.Header().Set("X-Seen-Cookie", c.Value)
		}
		_, _ = io.WriteString(w, "ok") //nolint:errcheck // test server
	}))
	t.Cleanup(ts.Close)
	return ts
}

func fetch(t *testing.T, client interface {
	Do(*http.Request) (*http.Response, error)
}, rawURL string,
) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body.Close() //nolint:errcheck,gosec // test
	return resp, nil
}

func selfSigned(t *testing.T, name string) *x509.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(42),
		Subject:               pkix.Name{CommonName: name},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}
	return cert
}

func writeTrustStore(t *testing.T, fs afero.Fs, path string, password Secret, certs ...*x509.Certificate) {
	t.Helper()
	data, err := pkcs12.Modern.EncodeTrustStore(certs, password.Reveal())
	if err != nil {
		t.Fatalf("EncodeTrustStore: %v", err)
	}
	if err := afero.WriteFile(fs, path, data, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestDefaultTrustRejectsSelfSigned(t *testing.T) {
	ts := newTLSServer(t)
	h, err := NewBuilder().Logger(quietLogger()).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer h.CloseIdleConnections()

	if _, err := fetch(t, h, ts.URL); err == nil {
		t.Fatal("request to self-signed server succeeded with default trust")
	}
}

func TestInsecureTrustAllAcceptsSelfSigned(t *testing.T) {
	ts := newTLSServer(t)
	h, err := NewBuilder().
		Logger(quietLogger()).
		Trust(InsecureTrustAllCertificates()).
		AllowInsecureTrust().
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer h.CloseIdleConnections()

	resp, err := fetch(t, h, ts.URL)
	if err != nil {
		t.Fatalf("request with trust-all failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestInsecureTrustRequiresOptIn(t *testing.T) {
	_, err := NewBuilder().Logger(quietLogger()).Trust(InsecureTrustAllCertificates()).Build()
	if !errors.Is(err, ErrInsecureNotAllowed) {
		t.Errorf("Build() error = %v, want ErrInsecureNotAllowed", err)
	}
}

func TestInsecureTrustWarnsOnEveryBuild(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	b := NewBuilder().Logger(logger).Trust(InsecureTrustAllCertificates()).AllowInsecureTrust()

	for range 2 {
		if _, err := b.Build(); err != nil {
			t.Fatalf("Build: %v", err)
		}
	}
	if got := strings.Count(buf.String(), "level=WARN"); got != 2 {
		t.Errorf("warnings logged = %d, want 2\n%s", got, buf.String())
	}
}

func TestPinnedKeystoreMissing(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := NewBuilder().
		Logger(quietLogger()).
		ResourceFs(fs).
		Trust(PinnedKeystore("/certs/missing.p12", storePassword)).
		Build()

	if !errors.Is(err, ErrTrustStore) {
		t.Fatalf("Build() error = %v, want ErrTrustStore", err)
	}
	var tsErr *TrustStoreError
	if !errors.As(err, &tsErr) {
		t.Fatalf("Build() error = %T, want *TrustStoreError", err)
	}
	if tsErr.Path != "/certs/missing.p12" {
		t.Errorf("Path = %q, want /certs/missing.p12", tsErr.Path)
	}
}

func TestPinnedKeystoreFailures(t *testing.T) {
	tests := []struct {
		setup   func(t *testing.T, fs afero.Fs)
		wantErr error
		name    string
	}{
		{
			name: "wrong password",
			setup: func(t *testing.T, fs afero.Fs) {
				t.Helper()
				writeTrustStore(t, fs, "/store.p12", "other-password", selfSigned(t, "api.example"))
			},
			wantErr: pkcs12.ErrIncorrectPassword,
		},
		{
			name: "corrupt store",
			setup: func(t *testing.T, fs afero.Fs) {
				t.Helper()
				if err := afero.WriteFile(fs, "/store.p12", []byte("not a keystore"), 0o600); err != nil {
					t.Fatal(err)
				}
			},
		},
		{
			name: "empty file",
			setup: func(t *testing.T, fs afero.Fs) {
				t.Helper()
				if err := afero.WriteFile(fs, "/store.p12", nil, 0o600); err != nil {
					t.Fatal(err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			tt.setup(t, fs)
			_, err := NewBuilder().
				Logger(quietLogger()).
				ResourceFs(fs).
				Trust(PinnedKeystore("/store.p12", storePassword)).
				Build()
			if !errors.Is(err, ErrTrustStore) {
				t.Fatalf("Build() error = %v, want ErrTrustStore", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Build() error = %v, want %v", err, tt.wantErr)
			}
			if strings.Contains(err.Error(), storePassword.Reveal()) {
				t.Errorf("error leaks password: %v", err)
			}
		})
	}
}

func TestPinnedKeystoreTrustsOnlyStoredCertificates(t *testing.T) {
	ts := newTLSServer(t)

	tests := []struct {
		certs  func(t *testing.T) []*x509.Certificate
		name   string
		wantOK bool
	}{
		{
			name:   "server certificate pinned",
			certs:  func(*testing.T) []*x509.Certificate { return []*x509.Certificate{ts.Certificate()} },
			wantOK: true,
		},
		{
			name: "unrelated certificate pinned",
			certs: func(t *testing.T) []*x509.Certificate {
				t.Helper()
				return []*x509.Certificate{selfSigned(t, "unrelated")}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeTrustStore(t, fs, "/certs/api.p12", storePassword, tt.certs(t)...)

			h, err := NewBuilder().
				Logger(quietLogger()).
				ResourceFs(fs).
				Trust(PinnedKeystore("/certs/api.p12", storePassword)).
				Build()
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			defer h.CloseIdleConnections()

			_, err = fetch(t, h, ts.URL)
			if (err == nil) != tt.wantOK {
				t.Errorf("request error = %v, want success %v", err, tt.wantOK)
			}
		})
	}
}

func TestPinnedKeystoreWithClientKey(t *testing.T) {
	ts := newTLSServer(t)
	leaf := ts.Certificate()
	data, err := pkcs12.Modern.Encode(ts.TLS.Certificates[0].PrivateKey, leaf, nil, storePassword.Reveal())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/certs/client.p12", data, 0o600); err != nil {
		t.Fatal(err)
	}

	h, err := NewBuilder().
		Logger(quietLogger()).
		ResourceFs(fs).
		Trust(PinnedKeystore("/certs/client.p12", storePassword)).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer h.CloseIdleConnections()

	if got := len(h.TLSConfig().Certificates); got != 1 {
		t.Errorf("client certificates = %d, want 1", got)
	}
	if _, err := fetch(t, h, ts.URL); err != nil {
		t.Errorf("request failed: %v", err)
	}
}

func TestBuildIsNotRetroactive(t *testing.T) {
	noop := func(next http.RoundTripper) http.RoundTripper { return next }
	b := NewBuilder().Logger(quietLogger()).ConnectionTimeout(time.Second)

	first, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	b.ConnectionTimeout(2 * time.Second).AddNetworkInterceptor(noop).CookieStore(jar)
	second, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	type view struct {
		Timeout      time.Duration
		Interceptors int
		Cookies      bool
	}
	summarize := func(c Config) view {
		return view{Timeout: c.ConnectTimeout, Interceptors: len(c.Interceptors()), Cookies: c.CookieStore != nil}
	}

	if diff := cmp.Diff(view{Timeout: time.Second}, summarize(first.Config())); diff != "" {
		t.Errorf("first handle changed after later setters (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(view{Timeout: 2 * time.Second, Interceptors: 1, Cookies: true}, summarize(second.Config())); diff != "" {
		t.Errorf("second handle config mismatch (-want +got):\n%s", diff)
	}
	if first.Client().Jar != nil {
		t.Error("first client picked up a cookie store set after Build")
	}
	if first.transport == second.transport {
		t.Error("builds share one *http.Transport")
	}
}

func TestHandleClientIsACopy(t *testing.T) {
	h, err := NewBuilder().Logger(quietLogger()).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	c := h.Client()
	c.Timeout = time.Minute
	c.Transport = nil
	if got := h.Client(); got.Timeout != 0 || got.Transport == nil {
		t.Errorf("mutating Client() copy changed the handle: timeout=%v transport=%v", got.Timeout, got.Transport)
	}
}

func TestConfigInterceptorsIsACopy(t *testing.T) {
	noop := func(next http.RoundTripper) http.RoundTripper { return next }
	b := NewBuilder().AddNetworkInterceptor(noop)
	cfg := b.Config()
	got := cfg.Interceptors()
	got[0] = nil
	if cfg.Interceptors()[0] == nil {
		t.Error("Interceptors() exposes the backing slice")
	}
}

func TestInterceptorOrder(t *testing.T) {
	ts := newTLSServer(t)
	var (
		mu    sync.Mutex
		calls []string
	)
	record := func(name string) Interceptor {
		return func(next http.RoundTripper) http.RoundTripper {
			return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
				mu.Lock()
				calls = append(calls, name+" "+req.URL.Path)
				mu.Unlock()
				return next.RoundTrip(req)
			})
		}
	}

	h, err := NewBuilder().
		Logger(quietLogger()).
		Trust(InsecureTrustAllCertificates()).
		AllowInsecureTrust().
		AddNetworkInterceptor(record("first")).
		AddNetworkInterceptor(record("second")).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer h.CloseIdleConnections()

	if _, err := fetch(t, h, ts.URL+"/redirect"); err != nil {
		t.Fatalf("request: %v", err)
	}

	want := []string{"first /redirect", "second /redirect", "first /final", "second /final"}
	if diff := cmp.Diff(want, calls); diff != "" {
		t.Errorf("interceptor calls mismatch (-want +got):\n%s", diff)
	}
}

func TestUserAgentInterceptor(t *testing.T) {
	ts := newTLSServer(t)
	h, err := NewBuilder().
		Logger(quietLogger()).
		Trust(InsecureTrustAllCertificates()).
		AllowInsecureTrust().
		AddNetworkInterceptor(UserAgent("vimeonet-test/1.0")).
		AddNetworkInterceptor(Logging(quietLogger())).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer h.CloseIdleConnections()

	resp, err := fetch(t, h, ts.URL)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if got := resp.Header.Get("X-Seen-Agent"); got != "vimeonet-test/1.0" {
		t.Errorf("server saw User-Agent %q", got)
	}
}

func TestCookieStore(t *testing.T) {
	ts := newTLSServer(t)
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	jar.SetCookies(u, []*http.Cookie{{Name: "vimeo", Value: "session-1"}})

	h, err := NewBuilder().
		Logger(quietLogger()).
		Trust(InsecureTrustAllCertificates()).
		AllowInsecureTrust().
		CookieStore(jar).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer h.CloseIdleConnections()

	resp, err := fetch(t, h, ts.URL)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if got := resp.Header.Get("X-Seen-Cookie"); got != "session-1" {
		t.Errorf("server saw cookie %q, want session-1", got)
	}
}

type countingCache struct {
	data map[string][]byte
	mu   sync.Mutex
}

func (c *countingCache) GetSet(ctx context.Context, key string, fetch func(context.Context) ([]byte, error), _ ...time.Duration) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.data[key]; ok {
		return v, nil
	}
	v, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.data[key] = v
	return v, nil
}

func (c *countingCache) Set(_ context.Context, key string, value []byte, _ ...time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (*countingCache) TTL() time.Duration { return time.Hour }

func TestResponseCacheSitsAboveInterceptors(t *testing.T) {
	ts := newTLSServer(t)
	var (
		mu   sync.Mutex
		hops int
	)
	count := func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			mu.Lock()
			hops++
			mu.Unlock()
			return next.RoundTrip(req)
		})
	}

	var cache httpcache.Cacher = &countingCache{data: map[string][]byte{}}
	h, err := NewBuilder().
		Logger(quietLogger()).
		Trust(InsecureTrustAllCertificates()).
		AllowInsecureTrust().
		ResponseCache(cache).
		AddNetworkInterceptor(count).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer h.CloseIdleConnections()

	for i := range 3 {
		if _, err := fetch(t, h, ts.URL+"/final"); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if hops != 1 {
		t.Errorf("network hops = %d, want 1", hops)
	}
	if diff := cmp.Diff(httpcache.Stats{Hits: 2, Misses: 1}, h.CacheStats()); diff != "" {
		t.Errorf("CacheStats() mismatch (-want +got):\n%s", diff)
	}
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("hunter2")
	for _, got := range []string{
		fmt.Sprint(s),
		fmt.Sprintf("%s %v %+v %#v", s, s, s, s),
		fmt.Sprint(PinnedKeystore("/p.p12", s)),
	} {
		if strings.Contains(got, "hunter2") {
			t.Errorf("formatted output leaks secret: %q", got)
		}
	}

	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("loading", "password", s)
	if strings.Contains(buf.String(), "hunter2") {
		t.Errorf("log output leaks secret: %q", buf.String())
	}
	if s.Reveal() != "hunter2" {
		t.Errorf("Reveal() = %q", s.Reveal())
	}
}

func TestTrustStrategyString(t *testing.T) {
	tests := []struct {
		strategy TrustStrategy
		want     string
	}{
		{DefaultTrust(), "default"},
		{PinnedKeystore("/certs/api.p12", storePassword), "pinned(/certs/api.p12)"},
		{InsecureTrustAllCertificates(), "insecure-trust-all"},
	}
	for _, tt := range tests {
		if got := tt.strategy.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestNewBuilderDefaults(t *testing.T) {
	cfg := NewBuilder().Config()
	if cfg.Trust.String() != "default" {
		t.Errorf("default trust = %v", cfg.Trust)
	}
	if cfg.ConnectTimeout != 0 || cfg.CookieStore != nil || cfg.ResponseCache != nil || cfg.AllowInsecure {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.Interceptors()) != 0 {
		t.Errorf("default interceptors = %d, want 0", len(cfg.Interceptors()))
	}
}
