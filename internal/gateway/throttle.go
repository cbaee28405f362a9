package gateway

import (
	"errors"
	"regexp"
)

// ThrottleError is implemented by errors that represent backend throttling.
// The gateway retries these transparently; all other errors propagate to the
// caller on the first failure.
type ThrottleError interface {
	error
	Throttle() bool
}

// throttleIndicator matches error text that signals a rate limit when the
// backend does not return a typed error (e.g. a bare HTTP 429).
var throttleIndicator = regexp.MustCompile(`(?i)(429|rate.?limit|ratelimited|too.?many.?requests)`)

// IsThrottle classifies err as backend throttling. Typed ThrottleError
// values are authoritative; otherwise the error text is matched against
// known rate-limit indicators.
func IsThrottle(err error) bool {
	if err == nil {
		return false
	}
	var te ThrottleError
	if errors.As(err, &te) {
		return te.Throttle()
	}
	return throttleIndicator.MatchString(err.Error())
}
