package ingest

import "time"

type Config struct {
	BatchSize int
	// MaxBatches bounds one run even when the source keeps reporting more data.
	MaxBatches   int
	SoftBudget   time.Duration
	HardBudget   time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	// LockMargin is added to the worst case run time to get the in-flight lock TTL.
	LockMargin      time.Duration
	DraftingEnabled bool
}

func DefaultConfig() Config {
	return Config{
		BatchSize:    100,
		MaxBatches:   50,
		SoftBudget:   2 * time.Minute,
		HardBudget:   5 * time.Minute,
		MaxRetries:   2,
		RetryBackoff: 2 * time.Second,
		LockMargin:   30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxBatches <= 0 {
		c.MaxBatches = d.MaxBatches
	}
	if c.SoftBudget <= 0 {
		c.SoftBudget = d.SoftBudget
	}
	if c.HardBudget <= 0 {
		c.HardBudget = d.HardBudget
	}
	if c.SoftBudget > c.HardBudget {
		c.SoftBudget = c.HardBudget
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.LockMargin <= 0 {
		c.LockMargin = d.LockMargin
	}
	return c
}

// backoff is the wait before retry attempt n (1-based).
func (c Config) backoff(n int) time.Duration {
	return c.RetryBackoff * time.Duration(1<<(n-1))
}

// lockTTL covers every attempt, every backoff and the margin.
func (c Config) lockTTL() time.Duration {
	ttl := c.HardBudget*time.Duration(c.MaxRetries+1) + c.LockMargin
	for n := 1; n <= c.MaxRetries; n++ {
		ttl += c.backoff(n)
	}
	return ttl
}
