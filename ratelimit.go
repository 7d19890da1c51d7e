package scouter

import (
	"net/http"
	"strconv"
	"time"
)

// Rate limit headers sent by the remote service.
const (
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
)

// RateLimits is the remote service's view of our request budget, taken
// from the headers of a single response.
type RateLimits struct {
	ResetAt        time.Time
	Remaining      int
	Limit          int
	UsedThisWindow int
}

// ParseRateLimits reads the rate limit headers. It returns nil unless all
// three headers are present and numeric.
func ParseRateLimits(h http.Header) *RateLimits {
	reset, err := strconv.ParseInt(h.Get(HeaderRateLimitReset), 10, 64)
	if err != nil {
		return nil
	}
	remaining, err := strconv.Atoi(h.Get(HeaderRateLimitRemaining))
	if err != nil {
		return nil
	}
	limit, err := strconv.Atoi(h.Get(HeaderRateLimitLimit))
	if err != nil {
		return nil
	}

	return &RateLimits{
		ResetAt:        time.Unix(reset, 0),
		Remaining:      remaining,
		Limit:          limit,
		UsedThisWindow: limit - remaining,
	}
}

// CalculateNextDelay returns how long to wait before the next remote call.
// Early in a window, while most of the budget is left, calls are paced at
// defaultDelay. Past that point the remaining budget is spread evenly over
// the rest of the window, and once it's spent we wait for the reset.
func CalculateNextDelay(limits RateLimits, now time.Time, initialDelay, defaultDelay time.Duration) time.Duration {
	untilReset := limits.ResetAt.Sub(now)

	switch {
	case limits.Remaining <= 0:
		if untilReset <= 0 {
			return initialDelay
		}
		return untilReset
	case untilReset < 0:
		return initialDelay
	case float64(limits.Remaining) > 0.75*float64(limits.Limit):
		return defaultDelay
	default:
		return time.Duration(float64(untilReset) / float64(limits.Remaining))
	}
}
