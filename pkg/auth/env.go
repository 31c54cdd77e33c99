package auth

import (
	"context"
	"os"
	"slices"
)

// DefaultEnvVars maps environment variables to the session cookies of vimeo.com.
var DefaultEnvVars = map[string]string{
	"VIMEO_SESSION": "vimeo",
	"VIMEO_VUID":    "vuid",
}

// EnvSource reads cookies from environment variables.
// Vars maps env var name to cookie name; nil means DefaultEnvVars.
type EnvSource struct {
	Vars map[string]string
}

// Cookies returns cookies from environment variables. The domain is not consulted.
func (s EnvSource) Cookies(_ context.Context, _ string) (map[string]string, error) {
	cookies := make(map[string]string)
	for envVar, cookieName := range s.vars() {
		if value := os.Getenv(envVar); value != "" {
			cookies[cookieName] = value
		}
	}

	if len(cookies) == 0 {
		return nil, nil //nolint:nilnil // no env vars set is not an error
	}
	return cookies, nil
}

// EnvVars returns the environment variable names s reads, sorted.
// This is useful for generating help messages.
func (s EnvSource) EnvVars() []string {
	vars := make([]string, 0, len(s.vars()))
	for envVar := range s.vars() {
		vars = append(vars, envVar)
	}
	slices.Sort(vars)
	return vars
}

func (s EnvSource) vars() map[string]string {
	if s.Vars == nil {
		return DefaultEnvVars
	}
	return s.Vars
}
