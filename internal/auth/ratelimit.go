package auth

import (
	"net"
	"net/http"
	"sync"
	"time"
)

const (
	rateLimitWindow  = 5 * time.Minute
	rateLimitMaxFail = 10

	// rateLimitPruneThreshold is the number of tracked IPs above which
	// the limiter prunes expired entries to prevent unbounded growth.
	rateLimitPruneThreshold = 1000
)

// remoteIP extracts the IP address from r.RemoteAddr, stripping the
// port. Falls back to the raw value if parsing fails.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

// failureLimiter tracks failed state checks per IP with a sliding
// window. After rateLimitMaxFail failures within the window, further
// failures are reported as rate limited until the window expires.
type failureLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	now      func() time.Time
}

func newFailureLimiter() *failureLimiter {
	return &failureLimiter{
		failures: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// check returns true if the IP is currently rate-limited.
func (rl *failureLimiter) check(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rateLimitWindow)

	if len(rl.failures) > rateLimitPruneThreshold {
		for k, times := range rl.failures {
			if len(times) == 0 || times[len(times)-1].Before(cutoff) {
				delete(rl.failures, k)
			}
		}
	}

	recent := rl.failures[ip][:0]
	for _, t := range rl.failures[ip] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) == 0 {
		delete(rl.failures, ip)
	} else {
		rl.failures[ip] = recent
	}

	return len(recent) >= rateLimitMaxFail
}

// record adds a failed attempt for the IP.
func (rl *failureLimiter) record(ip string) {
	rl.mu.Lock()
	rl.failures[ip] = append(rl.failures[ip], rl.now())
	rl.mu.Unlock()
}
