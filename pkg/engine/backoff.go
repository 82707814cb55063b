package engine

import "time"

// maxShift keeps base << shift from overflowing time.Duration.
const maxShift = 20

// backoffDuration returns the retry delay after the nth consecutive failure.
// The delay starts at max(hint, floor) and doubles per failure. It never
// drops below prev and never exceeds limit.
func backoffDuration(failures int, hint, floor, prev, limit time.Duration) time.Duration {
	base := floor
	if hint > base {
		base = hint
	}
	shift := failures - 1
	if shift < 0 {
		shift = 0
	}
	if shift > maxShift {
		shift = maxShift
	}
	d := base << uint(shift)
	if d>>uint(shift) != base { // overflow
		d = limit
	}
	if d < prev {
		d = prev
	}
	if limit > 0 && d > limit {
		d = limit
	}
	return d
}

// backoffLimit is the largest retry delay: BackoffMax, further capped at
// Period times BackoffPeriodFactor.
func (c Config) backoffLimit() time.Duration {
	limit := c.BackoffMax
	if c.Period > 0 && c.BackoffPeriodFactor > 0 {
		if p := c.Period * time.Duration(c.BackoffPeriodFactor); p < limit {
			limit = p
		}
	}
	return limit
}
