package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"
	"software.sslmate.com/src/go-pkcs12"
)

var (
	// ErrTrustStore is matched by every trust store failure at build time.
	ErrTrustStore = errors.New("trust store")

	// ErrInsecureNotAllowed is returned when InsecureTrustAllCertificates is
	// selected on a builder that was not opted in with AllowInsecureTrust.
	ErrInsecureNotAllowed = errors.New("insecure trust strategy selected without AllowInsecureTrust")

	errEmptyTrustStore = errors.New("no certificates in store")
)

// TrustStoreError reports a keystore that could not be read, decrypted or parsed.
type TrustStoreError struct {
	Err  error
	Path string
}

func (e *TrustStoreError) Error() string {
	return fmt.Sprintf("load trust store %s: %v", e.Path, e.Err)
}

func (e *TrustStoreError) Unwrap() error { return e.Err }

// Is reports whether target is ErrTrustStore.
func (*TrustStoreError) Is(target error) bool { return target == ErrTrustStore }

// Secret holds a credential that must never be printed or logged.
type Secret string

const redacted = "[REDACTED]"

func (Secret) String() string { return redacted }

// GoString keeps %#v from leaking the value.
func (Secret) GoString() string { return redacted }

// LogValue implements slog.LogValuer.
func (Secret) LogValue() slog.Value { return slog.StringValue(redacted) }

// Reveal returns the underlying value.
func (s Secret) Reveal() string { return string(s) }

// TrustStrategy selects how server certificates are verified. The set of
// strategies is closed: DefaultTrust, PinnedKeystore and
// InsecureTrustAllCertificates.
type TrustStrategy interface {
	fmt.Stringer
	tlsConfig(fs afero.Fs, logger *slog.Logger, allowInsecure bool) (*tls.Config, error)
}

type defaultTrust struct{}

// DefaultTrust verifies against the platform root store.
func DefaultTrust() TrustStrategy { return defaultTrust{} }

func (defaultTrust) String() string { return "default" }

func (defaultTrust) tlsConfig(afero.Fs, *slog.Logger, bool) (*tls.Config, error) {
	return &tls.Config{MinVersion: tls.VersionTLS12}, nil
}

type pinnedKeystore struct {
	path     string
	password Secret
}

// PinnedKeystore trusts only the certificates in the PKCS#12 store at path.
// Stores holding a private key also supply the client certificate. The store
// is read from the builder's resource filesystem when Build is called.
func PinnedKeystore(path string, password Secret) TrustStrategy {
	return pinnedKeystore{path: path, password: password}
}

func (p pinnedKeystore) String() string { return "pinned(" + p.path + ")" }

func (p pinnedKeystore) tlsConfig(fs afero.Fs, logger *slog.Logger, _ bool) (*tls.Config, error) {
	data, err := afero.ReadFile(fs, p.path)
	if err != nil {
		return nil, &TrustStoreError{Path: p.path, Err: err}
	}

	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	certs, err := pkcs12.DecodeTrustStore(data, p.password.Reveal())
	if err != nil && !errors.Is(err, pkcs12.ErrIncorrectPassword) {
		// Not a pure trust store; try a key and certificate chain instead.
		key, leaf, caCerts, chainErr := pkcs12.DecodeChain(data, p.password.Reveal())
		if chainErr == nil {
			chain := [][]byte{leaf.Raw}
			for _, c := range caCerts {
				chain = append(chain, c.Raw)
			}
			cfg.Certificates = []tls.Certificate{{Certificate: chain, PrivateKey: key, Leaf: leaf}}
			certs, err = append([]*x509.Certificate{leaf}, caCerts...), nil
		}
	}
	if err != nil {
		return nil, &TrustStoreError{Path: p.path, Err: err}
	}
	if len(certs) == 0 {
		return nil, &TrustStoreError{Path: p.path, Err: errEmptyTrustStore}
	}

	pool := x509.NewCertPool()
	for _, c := range certs {
		pool.AddCert(c)
	}
	cfg.RootCAs = pool
	logger.Debug("loaded pinned trust store", "path", p.path, "certificates", len(certs), "client_cert", len(cfg.Certificates) > 0)
	return cfg, nil
}

type insecureTrustAll struct{}

// InsecureTrustAllCertificates accepts every server certificate chain
// without any verification: no chain of trust, no hostname check, no expiry
// check. Anyone on the network path can impersonate the server. It exists for
// local development against self-signed endpoints only. Build refuses it
// unless the builder was opted in with AllowInsecureTrust, and logs a
// warning on every build that uses it.
func InsecureTrustAllCertificates() TrustStrategy { return insecureTrustAll{} }

func (insecureTrustAll) String() string { return "insecure-trust-all" }

func (insecureTrustAll) tlsConfig(_ afero.Fs, logger *slog.Logger, allowInsecure bool) (*tls.Config, error) {
	if !allowInsecure {
		return nil, ErrInsecureNotAllowed
	}
	logger.Warn("TLS certificate verification is DISABLED: all certificate chains and hostnames are accepted")
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: true, //nolint:gosec // explicit opt-in via AllowInsecureTrust
	}, nil
}
