package stream

import (
	"math/rand/v2"
	"time"
)

// backoff returns a truncated exponential delay for the given retry count:
// a random whole number of slots in [1, 2^retries], capped at maximum.
func backoff(retries int, slot, maximum time.Duration) time.Duration {
	if slot <= 0 || retries <= 0 {
		return 0
	}
	if retries > 30 {
		return maximum
	}
	n := rand.Int64N(int64(1)<<retries) + 1
	if n > int64(maximum/slot) {
		return maximum
	}
	return time.Duration(n) * slot
}
