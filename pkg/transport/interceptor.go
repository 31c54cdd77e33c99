package transport

import (
	"log/slog"
	"net/http"
	"time"
)

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper.
func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// SetHeader returns an interceptor that sets a request header on every hop.
func SetHeader(key, value string) Interceptor {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			req = req.Clone(req.Context())
			req.Header.Set(key, value)
			return next.RoundTrip(req)
		})
	}
}

// UserAgent returns an interceptor that sets the User-Agent header.
func UserAgent(ua string) Interceptor {
	return SetHeader("User-Agent", ua)
}

// Logging returns an interceptor that logs each network exchange at debug level.
func Logging(logger *slog.Logger) Interceptor {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.RoundTrip(req)
			if err != nil {
				logger.DebugContext(req.Context(), "request failed", "method", req.Method, "url", req.URL.String(), "error", err)
				return nil, err
			}
			logger.DebugContext(req.Context(), "response",
				"method", req.Method,
				"url", req.URL.String(),
				"status", resp.StatusCode,
				"duration", time.Since(start))
			return resp, nil
		})
	}
}
