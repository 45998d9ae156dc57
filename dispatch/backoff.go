package dispatch

import (
	"time"
)

// Caps the exponential backoff; with queue-length retry counts the exponent is unbounded.
var MaxBackoff = 15 * time.Minute

// 2^n seconds, capped at [MaxBackoff].
func ExponentialBackoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > 30 {
		return MaxBackoff
	}
	d := time.Duration(1<<uint(retryCount)) * time.Second
	if d > MaxBackoff {
		return MaxBackoff
	}
	return d
}
