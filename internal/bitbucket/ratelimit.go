package bitbucket

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// defaultRateLimitWait is used when a 429 carries no usable Retry-After.
	defaultRateLimitWait = 60 * time.Second

	// maxRateLimitWait caps how long a single request waits out a limit.
	maxRateLimitWait = 5 * time.Minute
)

// IsRateLimited reports whether resp is a 429 Too Many Requests.
func IsRateLimited(resp *http.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusTooManyRequests
}

// NearLimit reports whether Bitbucket flagged the caller as close to its
// hourly limit.
func NearLimit(resp *http.Response) bool {
	return resp != nil && strings.EqualFold(resp.Header.Get("X-RateLimit-NearLimit"), "true")
}

// RetryAfter returns how long to wait before retrying a rate-limited
// response. It honours Retry-After in seconds or as an HTTP date.
func RetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	v := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if v == "" {
		return defaultRateLimitWait
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		return clampWait(time.Duration(seconds) * time.Second)
	}
	if at, err := http.ParseTime(v); err == nil {
		return clampWait(time.Until(at))
	}
	return defaultRateLimitWait
}

func clampWait(d time.Duration) time.Duration {
	return min(max(d, 0), maxRateLimitWait)
}
