package config

import "time"

// LockoutConfig throttles failed unlock attempts per account and app.
// After MaxFailures failures inside Window the app is locked for Base,
// doubling with every further failure up to Max.
type LockoutConfig struct {
	Enabled     bool
	MaxFailures int
	Window      time.Duration
	Base        time.Duration
	Max         time.Duration
	Prefix      string
}

func LoadLockoutConfig() LockoutConfig {
	c := LockoutConfig{
		Enabled:     envBool("LOCKOUT_ENABLED", true),
		MaxFailures: envInt("LOCKOUT_MAX_FAILURES", 5),
		Window:      envDur("LOCKOUT_WINDOW", 15*time.Minute),
		Base:        envDur("LOCKOUT_BASE", 30*time.Second),
		Max:         envDur("LOCKOUT_MAX", 15*time.Minute),
		Prefix:      envStr("LOCKOUT_PREFIX", "lockout"),
	}
	if c.MaxFailures < 1 {
		c.MaxFailures = 1
	}
	if c.Base <= 0 {
		c.Base = time.Second
	}
	if c.Max < c.Base {
		c.Max = c.Base
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	return c
}
