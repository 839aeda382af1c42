package github

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

const (
	// throttleThreshold is the remaining request count below which list
	// calls pause until the window resets.
	throttleThreshold = 100

	// defaultRateLimitWait is used when a limited response has no timing.
	defaultRateLimitWait = 60 * time.Second

	// maxThrottleWait caps a single pause.
	maxThrottleWait = 5 * time.Minute
)

// RateLimit is the rate limit state reported by a GitHub response.
type RateLimit struct {
	Remaining int
	Reset     time.Time
	Observed  time.Time
}

// ParseRateLimit reads the X-RateLimit headers of resp. It returns nil when
// they are absent.
func ParseRateLimit(resp *http.Response) *RateLimit {
	if resp == nil {
		return nil
	}

	remainingStr := resp.Header.Get("X-RateLimit-Remaining")
	resetStr := resp.Header.Get("X-RateLimit-Reset")
	if remainingStr == "" && resetStr == "" {
		return nil
	}

	rl := &RateLimit{Observed: time.Now()}
	if n, err := strconv.Atoi(remainingStr); err == nil {
		rl.Remaining = n
	}
	if unix, err := strconv.ParseInt(resetStr, 10, 64); err == nil {
		rl.Reset = time.Unix(unix, 0)
	}
	return rl
}

// ShouldThrottle reports whether the remaining budget is below the safety
// threshold.
func (r *RateLimit) ShouldThrottle() bool {
	return r != nil && r.Remaining < throttleThreshold
}

// WaitDuration returns the time until the window resets, or zero.
func (r *RateLimit) WaitDuration() time.Duration {
	if r == nil {
		return 0
	}
	return max(time.Until(r.Reset), 0)
}

// IsRateLimitError reports whether resp is a 403 or 429.
func IsRateLimitError(resp *http.Response) bool {
	return resp != nil && (resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests)
}

// IsServerError reports whether resp has a 5xx status.
func IsServerError(resp *http.Response) bool {
	return resp != nil && resp.StatusCode >= 500 && resp.StatusCode < 600
}

// RateLimitWait returns how long to wait before retrying a limited
// response, from the reset header, then Retry-After, then a fixed default.
// It reports false when resp is not rate limited.
func RateLimitWait(resp *http.Response) (time.Duration, bool) {
	if !IsRateLimitError(resp) {
		return 0, false
	}
	if rl := ParseRateLimit(resp); rl != nil && !rl.Reset.IsZero() {
		if wait := rl.WaitDuration(); wait > 0 {
			return min(wait, maxThrottleWait), true
		}
	}
	if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
		return min(max(time.Duration(seconds)*time.Second, 0), maxThrottleWait), true
	}
	return defaultRateLimitWait, true
}

// exhausted tells a rate-limit 403 from a permission 403: GitHub marks the
// former with a zero remaining count or a Retry-After header.
func exhausted(resp *http.Response) bool {
	if resp == nil {
		return false
	}
	return resp.StatusCode == http.StatusTooManyRequests ||
		resp.Header.Get("X-RateLimit-Remaining") == "0" ||
		resp.Header.Get("Retry-After") != ""
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
