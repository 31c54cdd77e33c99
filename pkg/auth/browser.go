package auth

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/all" // Import all browser cookie stores
	"github.com/browserutils/kooky/browser/firefox"
)

// BrowserSource reads cookies from browser cookie stores.
type BrowserSource struct {
	logger    *slog.Logger
	readAll   func(ctx context.Context, domain string) ([]*kooky.Cookie, error)
	essential []string
}

// NewBrowserSource creates a browser cookie source.
// When essential names are given, only those cookies are returned.
func NewBrowserSource(logger *slog.Logger, essential ...string) *BrowserSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserSource{
		logger:    logger,
		essential: essential,
		readAll: func(ctx context.Context, domain string) ([]*kooky.Cookie, error) {
			return kooky.ReadCookies(ctx, kooky.Valid, kooky.DomainHasSuffix(domain))
		},
	}
}

// Cookies returns cookies for the given domain from browser stores.
func (s *BrowserSource) Cookies(ctx context.Context, domain string) (map[string]string, error) {
	s.logger.DebugContext(ctx, "reading browser cookies", "domain", domain)

	// Try Firefox profiles first (including Developer Edition)
	if cookies := s.tryFirefoxProfiles(ctx, domain); len(cookies) > 0 {
		return cookies, nil
	}

	// Fall back to kooky's automatic browser detection
	kookies, err := s.readAll(ctx, domain)
	if err != nil {
		s.logger.DebugContext(ctx, "failed to read browser cookies", "domain", domain, "error", err)
		return nil, nil //nolint:nilnil // failed browser read is not a fatal error
	}

	if len(kookies) == 0 {
		return nil, nil //nolint:nilnil // no browser cookies is not an error
	}

	return s.filterEssentialCookies(kookies, domain), nil
}

// tryFirefoxProfiles attempts to read cookies from Firefox profiles.
func (s *BrowserSource) tryFirefoxProfiles(ctx context.Context, domain string) map[string]string {
	home := os.Getenv("HOME")
	if home == "" {
		return nil
	}

	dirs := []string{
		filepath.Join(home, "Library", "Application Support", "Firefox", "Profiles"),
		filepath.Join(home, ".mozilla", "firefox"),
	}
	for _, dir := range dirs {
		matches, err := filepath.Glob(filepath.Join(dir, "*", "cookies.sqlite"))
		if err != nil || len(matches) == 0 {
			continue
		}
		for _, f := range matches {
			kookies, err := firefox.ReadCookies(ctx, f, kooky.Valid, kooky.DomainHasSuffix(domain))
			if err == nil && len(kookies) > 0 {
				s.logger.DebugContext(ctx, "found Firefox cookies",
					"profile", filepath.Base(filepath.Dir(f)),
					"domain", domain,
					"count", len(kookies))
				return s.filterEssentialCookies(kookies, domain)
			}
		}
	}

	return nil
}

// filterEssentialCookies extracts only the required cookies.
func (s *BrowserSource) filterEssentialCookies(kookies []*kooky.Cookie, domain string) map[string]string {
	cookies := make(map[string]string)
	if len(s.essential) == 0 {
		// No filter defined, return all cookies
		for _, c := range kookies {
			cookies[c.Name] = c.Value
		}
		return cookies
	}

	essentialSet := make(map[string]bool)
	for _, name := range s.essential {
		essentialSet[name] = true
	}
	for _, c := range kookies {
		if essentialSet[c.Name] {
			cookies[c.Name] = c.Value
		}
	}

	// Log which essential cookies were found vs missing
	var found, missing []string
	for _, name := range s.essential {
		if _, ok := cookies[name]; ok {
			found = append(found, name)
		} else {
			missing = append(missing, name)
		}
	}
	if len(found) > 0 {
		s.logger.Info("browser cookies found", "domain", domain, "keys", found)
	}
	if len(missing) > 0 {
		s.logger.Info("browser cookies missing", "domain", domain, "keys", missing)
	}

	return cookies
}
