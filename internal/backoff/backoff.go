// Package backoff computes retry delays. Attempt counts are carried as data
// by the callers (retry loops, failed-operation records) so the schedule
// survives restarts and stays inspectable.
package backoff

import "time"

// Delay returns base doubled per prior attempt, capped at max. attempt is
// 1-based: Delay(b, m, 1) == b.
func Delay(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}

	if d > max {
		return max
	}

	return d
}
