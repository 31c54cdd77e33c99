// Package auth provides cookie stores for authenticated API sessions.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
)

// NewCookieJar creates an http.CookieJar populated with the given cookies for a domain.
func NewCookieJar(domain string, cookies map[string]string) (*cookiejar.Jar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse("https://" + domain)
	if err != nil {
		return nil, err
	}

	var httpCookies []*http.Cookie
	for name, value := range cookies {
		if value != "" {
			httpCookies = append(httpCookies, &http.Cookie{
				Name:   name,
				Value:  value,
				Domain: "." + domain,
				Path:   "/",
			})
		}
	}

	jar.SetCookies(u, httpCookies)
	return jar, nil
}

// Source represents a source of session cookies.
type Source interface {
	// Cookies returns cookies for the given domain, or nil if unavailable.
	Cookies(ctx context.Context, domain string) (map[string]string, error)
}

// ChainSources returns cookies from the first source that provides them.
func ChainSources(ctx context.Context, domain string, sources ...Source) (map[string]string, error) {
	for _, src := range sources {
		cookies, err := src.Cookies(ctx, domain)
		if err != nil {
			return nil, err
		}
		if len(cookies) > 0 {
			return cookies, nil
		}
	}
	return nil, nil //nolint:nilnil // no source had cookies, but this is not an error
}

// Jar builds a cookie jar for domain from the first source that has cookies.
// The jar is empty, not nil, when no source does.
func Jar(ctx context.Context, domain string, sources ...Source) (*cookiejar.Jar, error) {
	cookies, err := ChainSources(ctx, domain, sources...)
	if err != nil {
		return nil, fmt.Errorf("read cookies for %s: %w", domain, err)
	}
	return NewCookieJar(domain, cookies)
}
