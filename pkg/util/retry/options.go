package retry

import "time"

type config struct {
	attempts     uint
	sleep        time.Duration
	maxSleepTime time.Duration
}

func newDefaultConfig() *config {
	return &config{
		attempts:     10,
		sleep:        200 * time.Millisecond,
		maxSleepTime: 3 * time.Second,
	}
}

// Option configures a retry loop.
type Option func(*config)

// Attempts sets the total number of attempts. Zero means retry until ctx is
// done.
func Attempts(attempts uint) Option {
	return func(c *config) {
		c.attempts = attempts
	}
}

// Sleep sets the initial interval between attempts.
func Sleep(sleep time.Duration) Option {
	return func(c *config) {
		c.sleep = sleep
		// ensure max sleep stays above the initial interval
		if c.sleep > c.maxSleepTime {
			c.maxSleepTime = c.sleep
		}
	}
}

// MaxSleepTime caps the interval between attempts.
func MaxSleepTime(maxSleepTime time.Duration) Option {
	return func(c *config) {
		if maxSleepTime < c.sleep {
			c.maxSleepTime = c.sleep
		} else {
			c.maxSleepTime = maxSleepTime
		}
	}
}
