package transport

import (
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// hostLimiter enforces a minimum delay between requests to the same host.
type hostLimiter struct {
	logger   *slog.Logger
	last     map[string]time.Time
	locks    sync.Map // map[string]*sync.Mutex
	mu       sync.Mutex
	minDelay time.Duration
}

// Throttle returns an interceptor that spaces requests to the same host at
// least minDelay apart. A wait is abandoned when the request context is done.
func Throttle(minDelay time.Duration, logger *slog.Logger) Interceptor {
	if logger == nil {
		logger = slog.Default()
	}
	l := &hostLimiter{minDelay: minDelay, last: map[string]time.Time{}, logger: logger}
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if err := l.wait(req); err != nil {
				return nil, err
			}
			return next.RoundTrip(req)
		})
	}
}

// wait blocks until req's host may be contacted and records the request.
func (l *hostLimiter) wait(req *http.Request) error {
	host := req.URL.Host
	if host == "" || l.minDelay <= 0 {
		return nil
	}

	muI, _ := l.locks.LoadOrStore(host, &sync.Mutex{})
	mu := muI.(*sync.Mutex) //nolint:forcetypeassert // locks only holds *sync.Mutex
	mu.Lock()
	defer mu.Unlock()

	l.mu.Lock()
	last, seen := l.last[host]
	l.mu.Unlock()

	if seen {
		if elapsed := time.Since(last); elapsed < l.minDelay {
			pause := l.minDelay - elapsed
			l.logger.DebugContext(req.Context(), "rate limit pause", "host", host, "wait", pause)
			timer := time.NewTimer(pause)
			select {
			case <-timer.C:
			case <-req.Context().Done():
				timer.Stop()
				return req.Context().Err()
			}
		}
	}

	l.mu.Lock()
	l.last[host] = time.Now()
	l.mu.Unlock()
	return nil
}
