package resilience

import "time"

// Policy maps a retry count to the delay before the next attempt.
type Policy func(retries int) time.Duration

// Exponential returns a policy of initial * 2^retries capped at max. A
// retries value below zero is treated as zero.
func Exponential(initial, max time.Duration) Policy {
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	return func(retries int) time.Duration {
		if retries < 0 {
			retries = 0
		}
		d := initial
		for i := 0; i < retries; i++ {
			d *= 2
			if d >= max {
				return max
			}
		}
		if d > max {
			d = max
		}
		return d
	}
}
