package outbox

import "time"

const (
	backoffBase = 30 * time.Second
	backoffCap  = time.Hour
)

// Backoff returns the retry delay after the given number of completed
// attempts: 30s, 1m, 2m, 4m, ... capped at one hour.
func Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	shift := attempts - 1
	if shift > 12 {
		shift = 12
	}
	delay := backoffBase * (1 << shift)
	if delay > backoffCap {
		return backoffCap
	}
	return delay
}
