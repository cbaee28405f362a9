package tracker

import (
	"fmt"
	"strconv"
	"strings"
)

// RateLimitError indicates the backend rejected a call because the request
// rate was exceeded. The gateway retries these transparently.
type RateLimitError struct {
	// Message is the backend's error text.
	Message string
	// RetryAfter is the server-provided wait hint in seconds, 0 if absent.
	RetryAfter int
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("tracker: rate limited (retry after %ds): %s", e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("tracker: rate limited: %s", e.Message)
}

// Throttle marks this error as backend throttling for the gateway.
func (e *RateLimitError) Throttle() bool { return true }

// RetryAfterSeconds returns the server-provided wait hint in seconds.
func (e *RateLimitError) RetryAfterSeconds() int { return e.RetryAfter }

// parseRetryAfter interprets a Retry-After header value as integer seconds.
// Malformed or absent values yield 0, leaving the gateway to compute its own
// backoff.
func parseRetryAfter(header string) int {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0
	}
	return secs
}
